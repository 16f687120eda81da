package kuchikomi

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Strategy selects how candidate cluster counts are evaluated.
type Strategy string

const (
	StrategyExact        Strategy = "exact"
	StrategySampling     Strategy = "sampling"
	StrategyFastSampling Strategy = "fast_sampling"
	StrategyParallel     Strategy = "parallel"
)

// Config is the full configuration surface of the pipeline, loaded from a
// single TOML file. Components receive the sections they need explicitly;
// there is no package-level mutable state.
type Config struct {
	RandomSeed int64            `toml:"random_seed"`
	Clustering ClusteringConfig `toml:"clustering"`
	Vectorizer VectorizerConfig `toml:"vectorizer"`
	Topics     TopicsConfig     `toml:"topics"`
	Sentiment  SentimentConfig  `toml:"sentiment"`
}

// ClusteringConfig drives the k search and the final k-means fit.
type ClusteringConfig struct {
	KMin       int      `toml:"k_min"`
	KMax       int      `toml:"k_max"`
	SampleSize int      `toml:"sample_size"`
	Strategy   Strategy `toml:"strategy"`
	// ParallelBase is the per-candidate semantics used by the parallel
	// strategy: "sampling" or "fast_sampling".
	ParallelBase Strategy `toml:"parallel_base"`
	NJobs        int      `toml:"n_jobs"`
	NInit        int      `toml:"n_init"`
	MaxIter      int      `toml:"max_iterations"`
	// CandidateTimeoutSeconds bounds the evaluation of a single candidate
	// k. Zero disables the timeout.
	CandidateTimeoutSeconds float64 `toml:"per_candidate_timeout_seconds"`
	// MaxDenseBytes bounds the dense row block materialized for
	// silhouette scoring.
	MaxDenseBytes int64 `toml:"max_dense_bytes"`
}

// CandidateTimeout returns the per-candidate timeout as a duration.
func (c ClusteringConfig) CandidateTimeout() time.Duration {
	return time.Duration(c.CandidateTimeoutSeconds * float64(time.Second))
}

// VectorizerConfig drives TF-IDF and term-count vectorization.
type VectorizerConfig struct {
	MaxFeatures int     `toml:"max_features" json:"max_features"`
	NgramMin    int     `toml:"ngram_min" json:"ngram_min"`
	NgramMax    int     `toml:"ngram_max" json:"ngram_max"`
	MinDF       int     `toml:"min_df" json:"min_df"`
	MaxDF       float64 `toml:"max_df" json:"max_df"`
}

// TopicsConfig drives LDA topic modeling.
type TopicsConfig struct {
	NTopics        int    `toml:"n_topics"`
	LearningMethod string `toml:"learning_method"` // "batch" or "online"
	Iterations     int    `toml:"iterations"`
	TopTerms       int    `toml:"top_terms"`
}

// SentimentConfig drives lexicon-based sentiment scoring.
type SentimentConfig struct {
	// Threshold is the score above which a review is labeled negative.
	Threshold float64 `toml:"threshold"`
}

// DefaultConfig returns the configuration used when no config file is
// present.
func DefaultConfig() Config {
	return Config{
		RandomSeed: 42,
		Clustering: ClusteringConfig{
			KMin:          2,
			KMax:          10,
			SampleSize:    10000,
			Strategy:      StrategySampling,
			ParallelBase:  StrategySampling,
			NJobs:         4,
			NInit:         3,
			MaxIter:       100,
			MaxDenseBytes: 2 << 30,
		},
		Vectorizer: VectorizerConfig{
			MaxFeatures: 20000,
			NgramMin:    1,
			NgramMax:    1,
			MinDF:       1,
			MaxDF:       1.0,
		},
		Topics: TopicsConfig{
			NTopics:        8,
			LearningMethod: "batch",
			Iterations:     50,
			TopTerms:       10,
		},
		Sentiment: SentimentConfig{Threshold: 0},
	}
}

// LoadConfig reads a TOML config file and validates it. A missing file
// yields the defaults; a present but invalid file is an error, never a
// silent fallback.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the numeric ranges of every parameter.
func (c Config) Validate() error {
	cl := c.Clustering
	if cl.KMin < 2 {
		return &ConfigError{Param: "clustering.k_min", Value: cl.KMin, Detail: "must be at least 2"}
	}
	if cl.KMax < cl.KMin {
		return &ConfigError{Param: "clustering.k_max", Value: cl.KMax, Detail: fmt.Sprintf("must be >= k_min (%d)", cl.KMin)}
	}
	if cl.SampleSize <= 0 {
		return &ConfigError{Param: "clustering.sample_size", Value: cl.SampleSize, Detail: "must be positive"}
	}
	switch cl.Strategy {
	case StrategyExact, StrategySampling, StrategyFastSampling, StrategyParallel:
	default:
		return &ConfigError{Param: "clustering.strategy", Value: cl.Strategy, Detail: "must be exact, sampling, fast_sampling or parallel"}
	}
	switch cl.ParallelBase {
	case StrategySampling, StrategyFastSampling:
	default:
		return &ConfigError{Param: "clustering.parallel_base", Value: cl.ParallelBase, Detail: "must be sampling or fast_sampling"}
	}
	if cl.Strategy == StrategyParallel && cl.NJobs < 1 {
		return &ConfigError{Param: "clustering.n_jobs", Value: cl.NJobs, Detail: "must be at least 1 for the parallel strategy"}
	}
	if cl.NInit < 1 {
		return &ConfigError{Param: "clustering.n_init", Value: cl.NInit, Detail: "must be at least 1"}
	}
	if cl.MaxIter < 1 {
		return &ConfigError{Param: "clustering.max_iterations", Value: cl.MaxIter, Detail: "must be at least 1"}
	}
	if cl.CandidateTimeoutSeconds < 0 {
		return &ConfigError{Param: "clustering.per_candidate_timeout_seconds", Value: cl.CandidateTimeoutSeconds, Detail: "must not be negative"}
	}
	if cl.MaxDenseBytes <= 0 {
		return &ConfigError{Param: "clustering.max_dense_bytes", Value: cl.MaxDenseBytes, Detail: "must be positive"}
	}

	v := c.Vectorizer
	if v.MaxFeatures <= 0 {
		return &ConfigError{Param: "vectorizer.max_features", Value: v.MaxFeatures, Detail: "must be positive"}
	}
	if v.NgramMin < 1 || v.NgramMax < v.NgramMin {
		return &ConfigError{Param: "vectorizer.ngram_range", Value: fmt.Sprintf("(%d,%d)", v.NgramMin, v.NgramMax), Detail: "must satisfy 1 <= min <= max"}
	}
	if v.MinDF < 1 {
		return &ConfigError{Param: "vectorizer.min_df", Value: v.MinDF, Detail: "must be at least 1"}
	}
	if v.MaxDF <= 0 || v.MaxDF > 1 {
		return &ConfigError{Param: "vectorizer.max_df", Value: v.MaxDF, Detail: "must be in (0, 1]"}
	}

	t := c.Topics
	if t.NTopics <= 0 {
		return &ConfigError{Param: "topics.n_topics", Value: t.NTopics, Detail: "must be positive"}
	}
	switch t.LearningMethod {
	case "batch", "online":
	default:
		return &ConfigError{Param: "topics.learning_method", Value: t.LearningMethod, Detail: "must be batch or online"}
	}
	if t.Iterations < 1 {
		return &ConfigError{Param: "topics.iterations", Value: t.Iterations, Detail: "must be at least 1"}
	}
	if t.TopTerms < 1 {
		return &ConfigError{Param: "topics.top_terms", Value: t.TopTerms, Detail: "must be at least 1"}
	}

	if c.Sentiment.Threshold < 0 {
		return &ConfigError{Param: "sentiment.threshold", Value: c.Sentiment.Threshold, Detail: "must not be negative"}
	}
	return nil
}

// Env carries the validated configuration and resolved file locations for
// one pipeline run. Commands receive it explicitly instead of reading
// package globals.
type Env struct {
	Config       Config
	DBPath       string
	ArtifactsDir string
}
