package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Signing     SigningConfig     `mapstructure:"signing"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Indexing    IndexingConfig    `mapstructure:"indexing"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite | postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // disk | s3 | r2 | s3compatible
	DiskPath  string `mapstructure:"disk_path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type SigningConfig struct {
	Secret     string        `mapstructure:"secret"`
	BaseURL    string        `mapstructure:"base_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MaxTTL     time.Duration `mapstructure:"max_ttl"`
}

type ValidationConfig struct {
	StandardMaxBytes int64 `mapstructure:"standard_max_bytes"`
	PremiumMaxBytes  int64 `mapstructure:"premium_max_bytes"`
}

type SchedulerConfig struct {
	Workers      int           `mapstructure:"workers"`
	MaxRetries   int           `mapstructure:"max_retries"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
}

type RecognitionConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ArchiveConfig struct {
	MaxAgeDays  int           `mapstructure:"max_age_days"`
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are usually injected through the environment
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("signing.secret", "SIGNING_SECRET")
	v.BindEnv("recognition.api_key", "OPENAI_API_KEY")
	v.BindEnv("recognition.base_url", "OPENAI_BASE_URL")
	v.BindEnv("indexing.embedding.api_key", "JINA_API_KEY")
	v.BindEnv("indexing.qdrant.api_key", "QDRANT_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Indexing.Enabled {
		if err := cfg.Indexing.Validate(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/docpipe.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "docpipe")
	v.SetDefault("database.dbname", "docpipe")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.type", "disk")
	v.SetDefault("storage.disk_path", "./data/blobs")
	v.SetDefault("storage.bucket", "documents")

	v.SetDefault("signing.base_url", "http://localhost:8080")
	v.SetDefault("signing.default_ttl", 15*time.Minute)
	v.SetDefault("signing.max_ttl", 24*time.Hour)

	v.SetDefault("validation.standard_max_bytes", 10<<20)
	v.SetDefault("validation.premium_max_bytes", 50<<20)

	v.SetDefault("scheduler.workers", 1)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.stage_timeout", 2*time.Minute)
	v.SetDefault("scheduler.backoff_base", 2*time.Second)
	v.SetDefault("scheduler.backoff_max", time.Minute)

	v.SetDefault("recognition.provider", "vlm")
	v.SetDefault("recognition.model", "gpt-4o-mini")
	v.SetDefault("recognition.base_url", "https://api.openai.com/v1")
	v.SetDefault("recognition.timeout", 60*time.Second)

	v.SetDefault("indexing.enabled", false)
	v.SetDefault("indexing.qdrant.host", "localhost")
	v.SetDefault("indexing.qdrant.port", 6334)
	v.SetDefault("indexing.qdrant.collection", "documents")
	v.SetDefault("indexing.embedding.provider", "jina")
	v.SetDefault("indexing.embedding.model", "jina-embeddings-v3")
	v.SetDefault("indexing.embedding.base_url", "https://api.jina.ai/v1")
	v.SetDefault("indexing.embedding.dimensions", 1024)
	v.SetDefault("indexing.max_text_chars", 8000)

	v.SetDefault("archive.max_age_days", 90)
	v.SetDefault("archive.interval", 24*time.Hour)
	v.SetDefault("archive.concurrency", 8)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
