// Package config provides configuration management for Engram.
// Settings resolve in three layers: built-in defaults, an optional YAML
// file, then environment variables with the ENGRAM_ prefix. Later layers
// win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Engram memory engine.
type Config struct {
	Storage      StorageConfig      `yaml:"storage"`
	Ranker       RankerConfig       `yaml:"ranker"`
	Consolidate  ConsolidateConfig  `yaml:"consolidate"`
	Graph        GraphConfig        `yaml:"graph"`
	Collaborator CollaboratorConfig `yaml:"collaborator"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	// Engine selects the document-store backend: sqlite or postgres
	// (default: sqlite). The graph store is always sqlite.
	Engine string `yaml:"engine"`

	// DataPath is the directory holding the sqlite database files
	// (default: ./data).
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string used when Engine is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimension sizes the pgvector column (default: 768).
	EmbeddingDimension int `yaml:"embedding_dimension"`
}

// RankerConfig tunes context ranking.
type RankerConfig struct {
	RelevanceWeight   float64 `yaml:"relevance_weight"`   // default: 0.40
	RecencyWeight     float64 `yaml:"recency_weight"`     // default: 0.25
	ConnectionsWeight float64 `yaml:"connections_weight"` // default: 0.20
	FrequencyWeight   float64 `yaml:"frequency_weight"`   // default: 0.15

	// DiversityPenalty is the MMR redundancy lambda (default: 0.3).
	DiversityPenalty float64 `yaml:"diversity_penalty"`

	// RecencyHalfLife controls recency decay (default: 24h).
	RecencyHalfLife time.Duration `yaml:"recency_half_life"`

	// TokenBudget caps the assembled recall context (default: 2000).
	TokenBudget int `yaml:"token_budget"`

	// SearchLimit is how many index hits feed the ranker (default: 20).
	SearchLimit int `yaml:"search_limit"`
}

// ConsolidateConfig tunes the maintenance pass.
type ConsolidateConfig struct {
	// SimilarityThreshold is the Jaccard dedup threshold (default: 0.55).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// PromoteMinMentions is the repetition count for promotion (default: 3).
	PromoteMinMentions int `yaml:"promote_min_mentions"`

	// PromoteMinScore promotes any single fragment at or above this score
	// (default: 0.8).
	PromoteMinScore float64 `yaml:"promote_min_score"`
}

// GraphConfig tunes the knowledge graph.
type GraphConfig struct {
	// DecayHalfLife is how long a relationship takes to lose half its
	// weight without being re-observed (default: 168h).
	DecayHalfLife time.Duration `yaml:"decay_half_life"`
}

// CollaboratorConfig tunes resilience around the external extraction,
// summarization, and embedding calls.
type CollaboratorConfig struct {
	// RateLimit is the maximum calls per second (default: 2).
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the limiter burst size (default: 4).
	RateBurst int `yaml:"rate_burst"`

	// BreakerMaxFailures trips the circuit after this many consecutive
	// failures (default: 3).
	BreakerMaxFailures int `yaml:"breaker_max_failures"`

	// BreakerTimeout is how long the circuit stays open (default: 30s).
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
}

// LoadConfig loads configuration from defaults and environment variables.
// All environment variables use the ENGRAM_ prefix.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg, nil
}

// LoadConfigFile loads configuration from defaults, the given YAML file,
// and environment variables, in that order of precedence. A missing file
// is an error; pass "" to skip the file layer.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:             "sqlite",
			DataPath:           "./data",
			EmbeddingDimension: 768,
		},
		Ranker: RankerConfig{
			RelevanceWeight:   0.40,
			RecencyWeight:     0.25,
			ConnectionsWeight: 0.20,
			FrequencyWeight:   0.15,
			DiversityPenalty:  0.3,
			RecencyHalfLife:   24 * time.Hour,
			TokenBudget:       2000,
			SearchLimit:       20,
		},
		Consolidate: ConsolidateConfig{
			SimilarityThreshold: 0.55,
			PromoteMinMentions:  3,
			PromoteMinScore:     0.8,
		},
		Graph: GraphConfig{
			DecayHalfLife: 7 * 24 * time.Hour,
		},
		Collaborator: CollaboratorConfig{
			RateLimit:          2,
			RateBurst:          4,
			BreakerMaxFailures: 3,
			BreakerTimeout:     30 * time.Second,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("ENGRAM_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("ENGRAM_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("ENGRAM_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.EmbeddingDimension = getEnvInt("ENGRAM_EMBEDDING_DIMENSION", cfg.Storage.EmbeddingDimension)

	cfg.Ranker.RelevanceWeight = getEnvFloat("ENGRAM_RELEVANCE_WEIGHT", cfg.Ranker.RelevanceWeight)
	cfg.Ranker.RecencyWeight = getEnvFloat("ENGRAM_RECENCY_WEIGHT", cfg.Ranker.RecencyWeight)
	cfg.Ranker.ConnectionsWeight = getEnvFloat("ENGRAM_CONNECTIONS_WEIGHT", cfg.Ranker.ConnectionsWeight)
	cfg.Ranker.FrequencyWeight = getEnvFloat("ENGRAM_FREQUENCY_WEIGHT", cfg.Ranker.FrequencyWeight)
	cfg.Ranker.DiversityPenalty = getEnvFloat("ENGRAM_DIVERSITY_PENALTY", cfg.Ranker.DiversityPenalty)
	cfg.Ranker.RecencyHalfLife = getEnvDuration("ENGRAM_RECENCY_HALF_LIFE", cfg.Ranker.RecencyHalfLife)
	cfg.Ranker.TokenBudget = getEnvInt("ENGRAM_TOKEN_BUDGET", cfg.Ranker.TokenBudget)
	cfg.Ranker.SearchLimit = getEnvInt("ENGRAM_SEARCH_LIMIT", cfg.Ranker.SearchLimit)

	cfg.Consolidate.SimilarityThreshold = getEnvFloat("ENGRAM_SIMILARITY_THRESHOLD", cfg.Consolidate.SimilarityThreshold)
	cfg.Consolidate.PromoteMinMentions = getEnvInt("ENGRAM_PROMOTE_MIN_MENTIONS", cfg.Consolidate.PromoteMinMentions)
	cfg.Consolidate.PromoteMinScore = getEnvFloat("ENGRAM_PROMOTE_MIN_SCORE", cfg.Consolidate.PromoteMinScore)

	cfg.Graph.DecayHalfLife = getEnvDuration("ENGRAM_DECAY_HALF_LIFE", cfg.Graph.DecayHalfLife)

	cfg.Collaborator.RateLimit = getEnvFloat("ENGRAM_RATE_LIMIT", cfg.Collaborator.RateLimit)
	cfg.Collaborator.RateBurst = getEnvInt("ENGRAM_RATE_BURST", cfg.Collaborator.RateBurst)
	cfg.Collaborator.BreakerMaxFailures = getEnvInt("ENGRAM_BREAKER_MAX_FAILURES", cfg.Collaborator.BreakerMaxFailures)
	cfg.Collaborator.BreakerTimeout = getEnvDuration("ENGRAM_BREAKER_TIMEOUT", cfg.Collaborator.BreakerTimeout)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "24h") or
// returns a default value. Unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
