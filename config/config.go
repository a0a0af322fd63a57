package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/finextract/ai"
	"github.com/poiesic/finextract/chunker"
	"github.com/poiesic/finextract/extract"
	"github.com/poiesic/finextract/orchestrator"
	"github.com/poiesic/finextract/retry"
	"github.com/poiesic/finextract/staging"
	"github.com/poiesic/finextract/summarize"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// StoreKind selects the table backend.
type StoreKind string

const (
	StoreCSV    StoreKind = "csv"
	StoreBadger StoreKind = "badger"
)

// ParseStoreKind converts a flag or file value into a StoreKind.
func ParseStoreKind(s string) (StoreKind, error) {
	switch StoreKind(strings.ToLower(strings.TrimSpace(s))) {
	case StoreCSV, "":
		return StoreCSV, nil
	case StoreBadger:
		return StoreBadger, nil
	default:
		return "", fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, s)
	}
}

// Config is the complete pipeline configuration.
type Config struct {
	// Workspace is the root of the staged_chunks and structured_data
	// directories, or of the badger database.
	Workspace string    `yaml:"workspace"`
	Store     StoreKind `yaml:"store"`

	AI         AI         `yaml:"ai"`
	Staging    Staging    `yaml:"staging"`
	Summary    Summary    `yaml:"summary"`
	Extraction Extraction `yaml:"extraction"`
	Retry      Retry      `yaml:"retry"`

	// Roster is the master CSV or XLSX used for filing hints. Empty disables hints.
	Roster string `yaml:"roster"`
}

// AI mirrors ai.Config. Host sets both hosts unless they are given separately.
type AI struct {
	Backend           string  `yaml:"backend"`
	Host              string  `yaml:"host"`
	EmbeddingHost     string  `yaml:"embedding_host"`
	GeneratorHost     string  `yaml:"generator_host"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	GeneratorModel    string  `yaml:"generator_model"`
	Token             string  `yaml:"token"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type Staging struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
	Workers   int `yaml:"workers"`
}

type Summary struct {
	InputBudget     int `yaml:"input_budget"`
	MaxSummaryRunes int `yaml:"max_summary_runes"`
	MaxTokens       int `yaml:"max_tokens"`
}

type Extraction struct {
	Workers           int    `yaml:"workers"`
	ContextMode       string `yaml:"context_mode"`
	ContextBudget     int    `yaml:"context_budget"`
	TopK              int    `yaml:"top_k"`
	ParseAttempts     int    `yaml:"parse_attempts"`
	MaxTokens         int    `yaml:"max_tokens"`
	IncludeIncomplete bool   `yaml:"include_incomplete"`
}

type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	policy := retry.DefaultPolicy()
	return &Config{
		Workspace: ".",
		Store:     StoreCSV,
		AI: AI{
			Backend:        string(aiDefaults.Backend),
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			GeneratorHost:  aiDefaults.GeneratorHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			GeneratorModel: aiDefaults.GeneratorModel,
			Burst:          aiDefaults.Burst,
		},
		Staging: Staging{
			ChunkSize: chunker.DefaultMaxChunkSize,
			Workers:   staging.DefaultPoolSize,
		},
		Summary: Summary{
			InputBudget:     summarize.DefaultInputBudget,
			MaxSummaryRunes: summarize.DefaultMaxSummaryRunes,
			MaxTokens:       summarize.DefaultMaxTokens,
		},
		Extraction: Extraction{
			Workers:       orchestrator.DefaultPoolSize,
			ContextMode:   string(extract.ContextSummary),
			ContextBudget: extract.DefaultContextBudget,
			TopK:          extract.DefaultTopK,
			ParseAttempts: extract.DefaultParseAttempts,
			MaxTokens:     extract.DefaultMaxTokens,
		},
		Retry: Retry{
			MaxAttempts: policy.MaxAttempts,
			BaseDelay:   policy.BaseDelay,
			MaxDelay:    policy.MaxDelay,
			CallTimeout: policy.CallTimeout,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r over the defaults.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.AI.Host != "" {
		cfg.AI.EmbeddingHost = cfg.AI.Host
		cfg.AI.GeneratorHost = cfg.AI.Host
	}
	return cfg, nil
}

// Validate checks every section and normalizes the store kind.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(strings.TrimSpace(c.Workspace) != "", "workspace is required")
	kind, err := ParseStoreKind(string(c.Store))
	if err != nil {
		errs = append(errs, err)
	} else {
		c.Store = kind
	}

	check(c.Staging.ChunkSize > 0, "staging.chunk_size must be positive")
	check(c.Staging.Overlap >= 0, "staging.overlap must not be negative")
	check(c.Staging.Workers > 0, "staging.workers must be positive")

	check(c.Summary.MaxSummaryRunes > 0, "summary.max_summary_runes must be positive")
	check(c.Summary.InputBudget >= 2*c.Summary.MaxSummaryRunes,
		"summary.input_budget must be at least twice max_summary_runes")
	check(c.Summary.MaxTokens >= 0, "summary.max_tokens must not be negative")

	check(c.Extraction.Workers > 0, "extraction.workers must be positive")
	if _, err := extract.ParseContextMode(c.Extraction.ContextMode); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	check(c.Extraction.ContextBudget > 0, "extraction.context_budget must be positive")
	check(c.Extraction.TopK > 0, "extraction.top_k must be positive")
	check(c.Extraction.ParseAttempts > 0, "extraction.parse_attempts must be positive")
	check(c.Extraction.MaxTokens >= 0, "extraction.max_tokens must not be negative")

	if err := c.RetryPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: retry: %w", ErrInvalidConfig, err))
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		CallTimeout: c.Retry.CallTimeout,
	}
}

// AIConfig converts the ai section. Unknown backends are left for
// ai.Config.Validate to reject.
func (c *Config) AIConfig() *ai.Config {
	embeddingHost, generatorHost := c.AI.EmbeddingHost, c.AI.GeneratorHost
	if c.AI.Host != "" {
		embeddingHost, generatorHost = c.AI.Host, c.AI.Host
	}
	return ai.NewConfig(
		ai.WithBackend(ai.Backend(strings.ToLower(strings.TrimSpace(c.AI.Backend)))),
		ai.WithEmbeddingHost(embeddingHost),
		ai.WithGeneratorHost(generatorHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
		ai.WithToken(c.AI.Token),
		ai.WithRateLimit(c.AI.RequestsPerSecond, c.AI.Burst),
	)
}

// ContextMode returns the parsed extraction context mode.
func (c *Config) ContextMode() (extract.ContextMode, error) {
	return extract.ParseContextMode(c.Extraction.ContextMode)
}
