package config

import "fmt"

// IndexingConfig configures the vector indexing stage. When Enabled is false
// the stage still runs but records nothing outside the document metadata.
type IndexingConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	MaxTextChars int             `mapstructure:"max_text_chars"`
	Qdrant       QdrantConfig    `mapstructure:"qdrant"`
	Embedding    EmbeddingConfig `mapstructure:"embedding"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// EmbeddingConfig defines the embedding provider used by the indexing stage.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // jina | openai-compatible
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// Validate checks that indexing has everything it needs to run.
// Returns an error describing the first validation failure, or nil if valid.
func (c *IndexingConfig) Validate() error {
	if c.Qdrant.Host == "" || c.Qdrant.Port <= 0 {
		return fmt.Errorf("indexing: qdrant host and port are required")
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("indexing: qdrant collection is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("indexing: embedding model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("indexing: embedding dimensions must be positive")
	}

	switch c.Embedding.Provider {
	case "jina", "openai-compatible":
	default:
		return fmt.Errorf("indexing: unknown embedding provider %q", c.Embedding.Provider)
	}

	if c.Embedding.APIKey == "" {
		return fmt.Errorf("indexing: embedding api_key is required (set directly or via JINA_API_KEY)")
	}
	return nil
}
