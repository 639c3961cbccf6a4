package model

import "time"

// Config is the complete metroscope configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Search      SearchConfig      `yaml:"search" mapstructure:"search"`
	Geocode     GeocodeConfig     `yaml:"geocode" mapstructure:"geocode"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	S3          S3Config          `yaml:"s3" mapstructure:"s3"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// HTTPConfig controls outbound HTTP behavior shared by the search client,
// the snippet enricher and the geocoder.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// LLMConfig configures the synthesis provider. An empty APIKey is a fatal
// configuration error for any run that reaches synthesis.
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"-" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
}

// SearchConfig configures the retrieval gateway. An empty APIKey is
// non-fatal: the workflow proceeds in no-web mode.
type SearchConfig struct {
	APIKey            string  `yaml:"-" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Depth             string  `yaml:"depth" mapstructure:"depth"`
	MaxResults        int     `yaml:"max_results" mapstructure:"max_results"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	EnrichTopResult   bool    `yaml:"enrich_top_result" mapstructure:"enrich_top_result"`
}

// GeocodeConfig configures Nominatim coordinate inference.
type GeocodeConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	CacheDir          string  `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// CacheConfig controls the on-disk byte caches (geocode, search). The
// profile cache is session-scoped and in-memory only; it has no expiry
// before session teardown and is not configured here.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// S3Config configures optional persistence of the preprocessed table.
type S3Config struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Key    string `yaml:"key" mapstructure:"key"`
	Region string `yaml:"region" mapstructure:"region"`
}

// ConcurrencyConfig bounds the batch profiling worker pool.
type ConcurrencyConfig struct {
	BatchWorkers int `yaml:"batch_workers" mapstructure:"batch_workers"`
}

// OutputConfig controls rendering.
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Metroscope/0.1 (+https://github.com/duffmetro/metroscope)",
			MaxBodyBytes: 2_000_000,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     60,
			MaxTokens:   2000,
			Temperature: 0.3,
		},
		Search: SearchConfig{
			Depth:             "basic",
			MaxResults:        5,
			RequestsPerSecond: 1,
		},
		Geocode: GeocodeConfig{
			BaseURL:           "https://nominatim.openstreetmap.org",
			RequestsPerSecond: 1,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			BatchWorkers: 2,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
