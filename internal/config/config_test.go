package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || !cfg.Database.AutoMigrate {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Storage.Type != "disk" {
		t.Errorf("storage type = %q", cfg.Storage.Type)
	}
	if cfg.Signing.DefaultTTL != 15*time.Minute || cfg.Signing.MaxTTL != 24*time.Hour {
		t.Errorf("signing ttl = %s / %s", cfg.Signing.DefaultTTL, cfg.Signing.MaxTTL)
	}
	if cfg.Validation.StandardMaxBytes != 10<<20 || cfg.Validation.PremiumMaxBytes != 50<<20 {
		t.Errorf("validation = %+v", cfg.Validation)
	}
	if cfg.Scheduler.MaxRetries != 3 || cfg.Scheduler.StageTimeout != 2*time.Minute {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Archive.MaxAgeDays != 90 || cfg.Archive.Interval != 24*time.Hour {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if cfg.Indexing.Enabled {
		t.Error("indexing should be off by default")
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	t.Setenv("SIGNING_SECRET", "from-env")
	t.Setenv("SCHEDULER_WORKERS", "6")

	path := writeConfig(t, strings.Join([]string{
		"signing:",
		"  secret: from-file",
		"  default_ttl: 5m",
		"scheduler:",
		"  workers: 2",
		"  backoff_base: 500ms",
		"archive:",
		"  max_age_days: 30",
		"log:",
		"  level: debug",
		"  format: text",
	}, "\n"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Signing.Secret != "from-env" {
		t.Errorf("secret = %q, want the environment value", cfg.Signing.Secret)
	}
	if cfg.Scheduler.Workers != 6 {
		t.Errorf("workers = %d, want 6", cfg.Scheduler.Workers)
	}
	if cfg.Signing.DefaultTTL != 5*time.Minute || cfg.Scheduler.BackoffBase != 500*time.Millisecond {
		t.Errorf("durations = %s / %s", cfg.Signing.DefaultTTL, cfg.Scheduler.BackoffBase)
	}
	if cfg.Archive.MaxAgeDays != 30 {
		t.Errorf("max age = %d", cfg.Archive.MaxAgeDays)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for an explicit missing file")
	}

	path := writeConfig(t, "indexing:\n  enabled: true\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Errorf("Load with incomplete indexing = %v, want api_key error", err)
	}
}

func TestIndexingValidate(t *testing.T) {
	valid := IndexingConfig{
		Enabled: true,
		Qdrant:  QdrantConfig{Host: "localhost", Port: 6334, Collection: "documents"},
		Embedding: EmbeddingConfig{
			Provider:   "jina",
			Model:      "jina-embeddings-v3",
			APIKey:     "key",
			Dimensions: 1024,
		},
	}

	tests := []struct {
		name    string
		mutate  func(c *IndexingConfig)
		wantErr string
	}{
		{"valid", func(*IndexingConfig) {}, ""},
		{"openai compatible", func(c *IndexingConfig) { c.Embedding.Provider = "openai-compatible" }, ""},
		{"no host", func(c *IndexingConfig) { c.Qdrant.Host = "" }, "host and port"},
		{"no collection", func(c *IndexingConfig) { c.Qdrant.Collection = "" }, "collection"},
		{"no model", func(c *IndexingConfig) { c.Embedding.Model = "" }, "model"},
		{"zero dimensions", func(c *IndexingConfig) { c.Embedding.Dimensions = 0 }, "dimensions"},
		{"unknown provider", func(c *IndexingConfig) { c.Embedding.Provider = "word2vec" }, "unknown embedding provider"},
		{"no key", func(c *IndexingConfig) { c.Embedding.APIKey = "" }, "api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/x.db"}
	if got := sqlite.DSN(); got != "./data/x.db" {
		t.Errorf("sqlite DSN = %q", got)
	}
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "docs", SSLMode: "disable"}
	if got := pg.DSN(); got != "host=db port=5432 user=u password=p dbname=docs sslmode=disable" {
		t.Errorf("postgres DSN = %q", got)
	}
}
