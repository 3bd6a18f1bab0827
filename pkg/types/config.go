// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// LogConfig holds logger construction settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is "console" or "json" (default console).
	Format string `json:"format" yaml:"format" mapstructure:"format" validate:"omitempty,oneof=console json"`

	// OutputPaths lists zap sinks (default stderr).
	OutputPaths []string `json:"output_paths" yaml:"output_paths" mapstructure:"output_paths"`
}

// HTTPConfig holds shared HTTP settings used by clients that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// CorpusConfig locates the corpus database and the extraction files it is
// built from.
type CorpusConfig struct {
	// DataDir holds the SQLite database (data/index/corpus.db).
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir" validate:"required"`

	// ExtractedDir holds one extraction YAML file per paper.
	ExtractedDir string `json:"extracted_dir" yaml:"extracted_dir" mapstructure:"extracted_dir"`
}

// ScoringConfig holds settings for mechanism-richness scoring.
type ScoringConfig struct {
	// MinScore is the selection threshold for extraction candidates (default 5).
	MinScore int `json:"min_score" yaml:"min_score" mapstructure:"min_score" validate:"gte=0,lte=10"`
}

// Embedding provider identifiers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderTEI    = "tei"
)

// Embedding cache backends.
const (
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// EmbeddingConfig holds settings for the embedding stage.
type EmbeddingConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Provider is ollama, openai or tei.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider" validate:"oneof=ollama openai tei"`

	// Model is the embedding model name (default all-minilm).
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL is the provider endpoint. Empty selects the provider default
	// (local ollama, the hosted OpenAI API); tei requires it.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey authenticates against hosted providers.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Dimensions is the expected vector length (default 384).
	Dimensions int `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions" validate:"gte=1"`

	// BatchSize is the number of texts submitted per provider call (default 64).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size" validate:"gte=1"`

	// MaxRetries bounds retries per batch (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`

	// Cache selects the embedding cache: sqlite, redis or none.
	Cache string `json:"cache" yaml:"cache" mapstructure:"cache" validate:"oneof=sqlite redis none"`

	// RedisAddr is the redis address when Cache is redis.
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`

	// RedisDB is the redis database number.
	RedisDB int `json:"redis_db,omitempty" yaml:"redis_db,omitempty" mapstructure:"redis_db"`

	// RedisPassword authenticates against redis. Usually supplied by the
	// secrets directory.
	RedisPassword string `json:"-" yaml:"-" mapstructure:"redis_password"`
}

// Match scopes.
const (
	ScopeAll       = "all"
	ScopeCanonical = "canonical"
)

// MatchConfig holds settings for candidate matching.
type MatchConfig struct {
	// MinConfidence is the emission threshold (default 0.35).
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence" validate:"gte=0,lte=1"`

	// Weights are the confidence formula coefficients.
	Weights ScoreWeights `json:"weights" yaml:"weights" mapstructure:"weights"`

	// Workers is the size of the bucket worker pool (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers" validate:"gte=1"`

	// Scope is "all" (every cross-domain pair) or "canonical" (pairs sharing
	// a canonical mechanism only).
	Scope string `json:"scope" yaml:"scope" mapstructure:"scope" validate:"oneof=all canonical"`

	// MathLengthThreshold is the description length above which a mechanism
	// counts as detailed for the math-content factor (default 100).
	MathLengthThreshold int `json:"math_length_threshold" yaml:"math_length_threshold" mapstructure:"math_length_threshold" validate:"gte=1"`

	// DepthNormalizer is the description length at which the depth factor
	// saturates (default 200).
	DepthNormalizer int `json:"depth_normalizer" yaml:"depth_normalizer" mapstructure:"depth_normalizer" validate:"gte=1"`

	// DomainTablePath overrides the embedded domain-distance table.
	DomainTablePath string `json:"domain_table_path,omitempty" yaml:"domain_table_path,omitempty" mapstructure:"domain_table_path"`

	// LexiconPath overrides the embedded synonym lexicon.
	LexiconPath string `json:"lexicon_path,omitempty" yaml:"lexicon_path,omitempty" mapstructure:"lexicon_path"`
}

// DedupConfig holds settings for the discovery registry.
type DedupConfig struct {
	// RegistryPath is the discovered-pairs JSON document.
	RegistryPath string `json:"registry_path" yaml:"registry_path" mapstructure:"registry_path" validate:"required"`

	// StaleThreshold is the duplication rate above which the registry or
	// corpus is considered stale (default 0.5).
	StaleThreshold float64 `json:"stale_threshold" yaml:"stale_threshold" mapstructure:"stale_threshold" validate:"gte=0,lte=1"`
}

// OutputConfig holds the batch output locations.
type OutputConfig struct {
	// CandidatesPath receives the ranked new candidates as JSON.
	CandidatesPath string `json:"candidates_path" yaml:"candidates_path" mapstructure:"candidates_path" validate:"required"`

	// MetricsTextfile, when set, receives batch metrics in Prometheus text format.
	MetricsTextfile string `json:"metrics_textfile,omitempty" yaml:"metrics_textfile,omitempty" mapstructure:"metrics_textfile"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`
	Corpus    CorpusConfig    `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
	Scoring   ScoringConfig   `json:"scoring" yaml:"scoring" mapstructure:"scoring"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Match     MatchConfig     `json:"match" yaml:"match" mapstructure:"match"`
	Dedup     DedupConfig     `json:"dedup" yaml:"dedup" mapstructure:"dedup"`
	Output    OutputConfig    `json:"output" yaml:"output" mapstructure:"output"`
}

// DefaultPipelineConfig returns the configuration used when no file or
// environment overrides a value.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Log: LogConfig{Level: "info", Format: "console", OutputPaths: []string{"stderr"}},
		Corpus: CorpusConfig{
			DataDir:      "data",
			ExtractedDir: "data/extracted",
		},
		Scoring: ScoringConfig{MinScore: 5},
		Embedding: EmbeddingConfig{
			HTTPConfig: HTTPConfig{Timeout: 60 * time.Second, UserAgent: "analog-engine/0.1"},
			Provider:   ProviderOllama,
			Model:      "all-minilm",
			Dimensions: 384,
			BatchSize:  64,
			MaxRetries: 3,
			Cache:      CacheSQLite,
		},
		Match: MatchConfig{
			MinConfidence:       0.35,
			Weights:             DefaultScoreWeights(),
			Workers:             4,
			Scope:               ScopeAll,
			MathLengthThreshold: 100,
			DepthNormalizer:     200,
		},
		Dedup: DedupConfig{
			RegistryPath:   "data/discovered_pairs.json",
			StaleThreshold: 0.5,
		},
		Output: OutputConfig{
			CandidatesPath: "output/candidates.json",
		},
	}
}
