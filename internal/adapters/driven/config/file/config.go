package file

import (
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// ErrInvalidConfig indicates a configuration value out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete docqa configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Chunker   ChunkerConfig   `toml:"chunker"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Fetch     FetchConfig     `toml:"fetch"`
	Blob      BlobConfig      `toml:"blob"`
	Expiry    ExpiryConfig    `toml:"expiry"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadMB    int      `toml:"max_upload_mb"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
}

// StorageConfig selects where session indexes are kept.
type StorageConfig struct {
	// Backend is sqlite, redis or memory.
	Backend string `toml:"backend"`

	// DataDir holds sqlite session snapshots. Empty uses ~/.docqa/data.
	DataDir string `toml:"data_dir"`

	// TempDir stages documents during extraction. Empty uses the OS default.
	TempDir string `toml:"temp_dir"`

	Redis RedisConfig `toml:"redis"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string   `toml:"addr"`
	Password  string   `toml:"password"`
	DB        int      `toml:"db"`
	KeyPrefix string   `toml:"key_prefix"`
	Timeout   Duration `toml:"timeout"`
}

// ChunkerConfig configures text splitting.
type ChunkerConfig struct {
	Size    int `toml:"size"`
	Overlap int `toml:"overlap"`

	// Unit is chars or tokens.
	Unit string `toml:"unit"`

	// Encoding is the tiktoken encoding used when Unit is tokens.
	Encoding string `toml:"encoding"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string   `toml:"provider"`
	Model             string   `toml:"model"`
	BaseURL           string   `toml:"base_url"`
	APIKey            string   `toml:"api_key"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	BatchSize         int      `toml:"batch_size"`
}

// LLMConfig configures answer generation.
type LLMConfig struct {
	Provider     string   `toml:"provider"`
	Model        string   `toml:"model"`
	BaseURL      string   `toml:"base_url"`
	APIKey       string   `toml:"api_key"`
	Timeout      Duration `toml:"timeout"`
	MaxRetries   int      `toml:"max_retries"`
	RetryBackoff Duration `toml:"retry_backoff"`
	MaxTokens    int      `toml:"max_tokens"`
	Temperature  float64  `toml:"temperature"`
	TopK         int      `toml:"top_k"`
}

// FetchConfig configures downloading documents by URL.
type FetchConfig struct {
	Enabled  bool     `toml:"enabled"`
	Timeout  Duration `toml:"timeout"`
	MaxBytes int64    `toml:"max_bytes"`
	Retries  int      `toml:"retries"`
}

// BlobConfig configures companion upload cleanup.
type BlobConfig struct {
	// Provider is supabase or none.
	Provider   string   `toml:"provider"`
	URL        string   `toml:"url"`
	ServiceKey string   `toml:"service_key"`
	Bucket     string   `toml:"bucket"`
	Timeout    Duration `toml:"timeout"`
}

// ExpiryConfig configures the background session sweep.
type ExpiryConfig struct {
	Enabled  bool     `toml:"enabled"`
	Schedule string   `toml:"schedule"`
	TTL      Duration `toml:"ttl"`
}

// LogConfig configures log output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Chunk length units.
const (
	UnitChars  = "chars"
	UnitTokens = "tokens"
)

// Blob providers.
const (
	BlobProviderNone     = "none"
	BlobProviderSupabase = "supabase"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    50,
			ReadTimeout:    Duration(2 * time.Minute),
			WriteTimeout:   Duration(3 * time.Minute),
		},
		Storage: StorageConfig{
			Backend: string(domain.StoreBackendSQLite),
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "docqa",
				Timeout:   Duration(5 * time.Second),
			},
		},
		Chunker: ChunkerConfig{
			Size:     1000,
			Overlap:  200,
			Unit:     UnitChars,
			Encoding: "cl100k_base",
		},
		Embedding: EmbeddingConfig{
			Provider:          string(domain.AIProviderOpenAI),
			Model:             domain.DefaultEmbeddingModels()[domain.AIProviderOpenAI],
			Timeout:           Duration(60 * time.Second),
			RequestsPerSecond: 5,
			Burst:             10,
			BatchSize:         64,
		},
		LLM: LLMConfig{
			Provider:     string(domain.AIProviderOpenAI),
			Model:        domain.DefaultLLMModels()[domain.AIProviderOpenAI],
			Timeout:      Duration(60 * time.Second),
			MaxRetries:   2,
			RetryBackoff: Duration(500 * time.Millisecond),
			MaxTokens:    1024,
			Temperature:  0.2,
			TopK:         domain.DefaultTopK,
		},
		Fetch: FetchConfig{
			Enabled:  true,
			Timeout:  Duration(30 * time.Second),
			MaxBytes: 50 << 20,
			Retries:  2,
		},
		Blob: BlobConfig{
			Provider: BlobProviderNone,
			Bucket:   "pdfs",
			Timeout:  Duration(10 * time.Second),
		},
		Expiry: ExpiryConfig{
			Enabled:  true,
			Schedule: "0 * * * *",
			TTL:      Duration(24 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks values the services cannot default themselves.
func (c *Config) Validate() error {
	var errs []error
	if !domain.StoreBackend(c.Storage.Backend).IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q must be sqlite, redis or memory", c.Storage.Backend))
	}
	if c.Chunker.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunker.size must be positive"))
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, fmt.Errorf("chunker.overlap must be between 0 and chunker.size"))
	}
	if c.Chunker.Unit != UnitChars && c.Chunker.Unit != UnitTokens {
		errs = append(errs, fmt.Errorf("chunker.unit %q must be chars or tokens", c.Chunker.Unit))
	}
	if !domain.AIProvider(c.Embedding.Provider).IsValid() || c.Embedding.Provider == string(domain.AIProviderAnthropic) {
		errs = append(errs, fmt.Errorf("embedding.provider %q is not an embedding provider", c.Embedding.Provider))
	}
	if c.LLM.Provider != "" && !domain.AIProvider(c.LLM.Provider).IsValid() {
		errs = append(errs, fmt.Errorf("llm.provider %q is not recognised", c.LLM.Provider))
	}
	if c.LLM.TopK <= 0 {
		errs = append(errs, fmt.Errorf("llm.top_k must be positive"))
	}
	if c.Blob.Provider != BlobProviderNone && c.Blob.Provider != BlobProviderSupabase {
		errs = append(errs, fmt.Errorf("blob.provider %q must be none or supabase", c.Blob.Provider))
	}
	if c.Expiry.Enabled && c.Expiry.TTL <= 0 {
		errs = append(errs, fmt.Errorf("expiry.ttl must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// EmbeddingSettings converts the embedding section for the AI factory.
func (c *Config) EmbeddingSettings() *domain.EmbeddingSettings {
	return &domain.EmbeddingSettings{
		Provider: domain.AIProvider(c.Embedding.Provider),
		Model:    c.Embedding.Model,
		BaseURL:  c.Embedding.BaseURL,
		APIKey:   c.Embedding.APIKey,
	}
}

// LLMSettings converts the llm section for the AI factory.
// Returns nil when no provider is configured.
func (c *Config) LLMSettings() *domain.LLMSettings {
	if c.LLM.Provider == "" {
		return nil
	}
	return &domain.LLMSettings{
		Provider: domain.AIProvider(c.LLM.Provider),
		Model:    c.LLM.Model,
		BaseURL:  c.LLM.BaseURL,
		APIKey:   c.LLM.APIKey,
	}
}
