package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultDir returns ~/.docqa.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".docqa"), nil
}

// DefaultPath returns ~/.docqa/config.toml.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when
// none are given. Missing files are skipped and variables already set in
// the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the config file at path over the defaults and applies
// environment overrides. An empty path uses DefaultPath.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// No config file yet, defaults apply.
		case err != nil:
			return nil, err
		default:
			dec := toml.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(cfg); err != nil {
				var strict *toml.StrictMissingError
				if errors.As(err, &strict) {
					return nil, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, strict.String())
				}
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
			}
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverride maps an environment variable onto a config field.
type envOverride struct {
	name  string
	apply func(cfg *Config, value string) error
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

var envOverrides = []envOverride{
	{"DOCQA_ADDR", setString(func(c *Config) *string { return &c.Server.Addr })},
	{"PORT", func(c *Config, v string) error {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT %q is not a number", v)
		}
		c.Server.Addr = ":" + v
		return nil
	}},
	{"DOCQA_ALLOWED_ORIGINS", func(c *Config, v string) error {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
		return nil
	}},
	{"DOCQA_STORAGE_BACKEND", setString(func(c *Config) *string { return &c.Storage.Backend })},
	{"DOCQA_DATA_DIR", setString(func(c *Config) *string { return &c.Storage.DataDir })},
	{"DOCQA_REDIS_ADDR", setString(func(c *Config) *string { return &c.Storage.Redis.Addr })},
	{"DOCQA_REDIS_PASSWORD", setString(func(c *Config) *string { return &c.Storage.Redis.Password })},
	{"DOCQA_EMBEDDING_PROVIDER", setString(func(c *Config) *string { return &c.Embedding.Provider })},
	{"DOCQA_EMBEDDING_MODEL", setString(func(c *Config) *string { return &c.Embedding.Model })},
	{"DOCQA_LLM_PROVIDER", setString(func(c *Config) *string { return &c.LLM.Provider })},
	{"DOCQA_LLM_MODEL", setString(func(c *Config) *string { return &c.LLM.Model })},
	{"DOCQA_LOG_LEVEL", setString(func(c *Config) *string { return &c.Log.Level })},
	{"DOCQA_LOG_FORMAT", setString(func(c *Config) *string { return &c.Log.Format })},
	{"SUPABASE_URL", setString(func(c *Config) *string { return &c.Blob.URL })},
	{"SUPABASE_SERVICE_KEY", setString(func(c *Config) *string { return &c.Blob.ServiceKey })},
}

// applyEnv applies overrides, then fills provider API keys from the
// providers' conventional variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, o := range envOverrides {
		v, ok := lookup(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	keys := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}
	if name, ok := keys[cfg.Embedding.Provider]; ok && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey, _ = lookup(name)
	}
	if name, ok := keys[cfg.LLM.Provider]; ok && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey, _ = lookup(name)
	}

	if cfg.Blob.Provider == BlobProviderNone && cfg.Blob.URL != "" && cfg.Blob.ServiceKey != "" {
		cfg.Blob.Provider = BlobProviderSupabase
	}
	return nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// secretSuffixes mark keys whose values are redacted by Flatten.
var secretSuffixes = []string{"api_key", "service_key", "password"}

// Flatten returns the configuration as sorted dot-notation keys with
// secrets redacted.
func Flatten(cfg *Config) ([]string, map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, nil, err
	}
	var nested map[string]any
	if err := toml.Unmarshal(data, &nested); err != nil {
		return nil, nil, err
	}

	flat := flattenMap(nested, "")
	keys := make([]string, 0, len(flat))
	for k, v := range flat {
		keys = append(keys, k)
		for _, suffix := range secretSuffixes {
			if s, ok := v.(string); ok && s != "" && strings.HasSuffix(k, suffix) {
				flat[k] = "****"
			}
		}
	}
	sort.Strings(keys)
	return keys, flat, nil
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}
