// Package config loads and validates citematch configuration.
//
// Configuration is resolved in priority order:
//  1. CITEMATCH_* environment variables (highest)
//  2. Project config (./citematch.yaml)
//  3. User config ($XDG_CONFIG_HOME/citematch/config.yaml)
//  4. Built-in defaults
//
// Invalid search parameters are rejected here, before any pipeline
// execution begins. Everything downstream treats the config value as
// immutable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	cerr "github.com/scholarkit/citematch/internal/errors"
)

// Config is the complete citematch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Oracle     OracleConfig     `yaml:"oracle" json:"oracle"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig configures on-disk data locations.
type PathsConfig struct {
	// DataDir holds the paper database, keyword index, and vector index.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig holds the retrieval and ranking tunables.
// These are the external tunables of the matching core; each pipeline
// stage consumes only the fields it needs.
type SearchConfig struct {
	// VectorWeight scales vector-retriever scores during fusion (0-1).
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// KeywordWeight scales keyword-index scores during fusion (0-1).
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// CitationWeight scales citation-graph scores during fusion (0-1).
	CitationWeight float64 `yaml:"citation_weight" json:"citation_weight"`

	// MMRLambda trades relevance against diversity (0-1).
	// 1.0 behaves like a plain relevance sort; 0.0 maximizes dispersion.
	MMRLambda float64 `yaml:"mmr_lambda" json:"mmr_lambda"`

	// TopKSemantic is how many candidates survive the semantic gate.
	TopKSemantic int `yaml:"top_k_semantic" json:"top_k_semantic"`

	// WeightRecency is the recency share of the composite score, in percent.
	// WeightRecency + WeightCitation is expected to total 100; the ranker
	// does not renormalize.
	WeightRecency int `yaml:"weight_recency" json:"weight_recency"`

	// WeightCitation is the citation-impact share, in percent.
	WeightCitation int `yaml:"weight_citation" json:"weight_citation"`

	// MinRelevance is the semantic gate threshold (0-1).
	MinRelevance float64 `yaml:"min_relevance" json:"min_relevance"`

	// MaxCitations caps recommendations per sentence (typically 1-5).
	MaxCitations int `yaml:"max_citations" json:"max_citations"`

	// MinCitedBy is the citation-graph source floor (papers below this
	// citation count are not pulled by the citation source).
	MinCitedBy int `yaml:"min_cited_by" json:"min_cited_by"`

	// YearRange restricts retrieval to the last N years (0 = unbounded).
	YearRange int `yaml:"year_range" json:"year_range"`

	// KeywordBackend selects the keyword index backend: "bleve" (default)
	// or "fts5" (SQLite FTS5, shares the paper database file).
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" (default) or "static".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// OracleConfig configures the relevance oracle (LLM scoring service).
type OracleConfig struct {
	// Provider is the chat backend: "deepseek", "openai", or any
	// OpenAI-compatible endpoint.
	Provider string `yaml:"provider" json:"provider"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
	Model    string `yaml:"model" json:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never lives in the config file.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
	// Timeout bounds each oracle call. A hanging call must not stall
	// the batch, so zero is replaced by the default at load time.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// BatchSize is the number of candidates scored per oracle call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// RerankerConfig configures the cross-encoder scoring service.
type RerankerConfig struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Model    string        `yaml:"model" json:"model"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// New returns a Config with built-in defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Search: SearchConfig{
			VectorWeight:   0.4,
			KeywordWeight:  0.3,
			CitationWeight: 0.3,
			MMRLambda:      0.6,
			TopKSemantic:   50,
			WeightRecency:  50,
			WeightCitation: 50,
			MinRelevance:   0.6,
			MaxCitations:   3,
			MinCitedBy:     50,
			YearRange:      10,
			KeywordBackend: "bleve",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0, // auto-detect from the embedder
			BatchSize:  32,
			CacheSize:  1000,
		},
		Oracle: OracleConfig{
			Provider:  "deepseek",
			BaseURL:   "https://api.deepseek.com/v1",
			Model:     "deepseek-chat",
			APIKeyEnv: "CITEMATCH_API_KEY",
			Timeout:   60 * time.Second,
			BatchSize: 5,
		},
		Reranker: RerankerConfig{
			Endpoint: "",
			Model:    "",
			Timeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultDataDir returns the default data directory (~/.citematch).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".citematch")
	}
	return filepath.Join(home, ".citematch")
}

// UserConfigPath returns the user-level configuration file path
// following the XDG Base Directory specification.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "citematch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "citematch", "config.yaml")
	}
	return filepath.Join(home, ".config", "citematch", "config.yaml")
}

// ProjectConfigPath returns the project-level config path under dir.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, "citematch.yaml")
}

// Load resolves configuration for the given working directory.
// Missing config files are not an error; defaults apply.
// Validation failures are an error, since the pipeline must not run
// on an invalid config.
func Load(dir string) (*Config, error) {
	cfg := New()

	for _, path := range []string{UserConfigPath(), ProjectConfigPath(dir)} {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the YAML file at path onto the config, if it exists.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cerr.New(cerr.ErrCodeConfigNotFound, fmt.Sprintf("cannot read config %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return cerr.New(cerr.ErrCodeConfigInvalid, fmt.Sprintf("cannot parse config %s", path), err).
			WithSuggestion("check YAML syntax with `citematch config validate`")
	}
	return nil
}

// applyEnvOverrides applies CITEMATCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CITEMATCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("CITEMATCH_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.VectorWeight = f
		}
	}
	if v := os.Getenv("CITEMATCH_KEYWORD_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.KeywordWeight = f
		}
	}
	if v := os.Getenv("CITEMATCH_CITATION_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.CitationWeight = f
		}
	}
	if v := os.Getenv("CITEMATCH_MIN_RELEVANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.MinRelevance = f
		}
	}
	if v := os.Getenv("CITEMATCH_ORACLE_BASE_URL"); v != "" {
		c.Oracle.BaseURL = v
	}
	if v := os.Getenv("CITEMATCH_ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv("CITEMATCH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CITEMATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects invalid configuration eagerly. These are programmer or
// caller errors, not environmental unavailability, so unlike every runtime
// degradation they are fatal.
func (c *Config) Validate() error {
	s := &c.Search

	if s.MinRelevance < 0 || s.MinRelevance > 1 {
		return cerr.New(cerr.ErrCodeConfigInvalid,
			fmt.Sprintf("min_relevance must be in [0,1], got %g", s.MinRelevance), nil)
	}
	if s.TopKSemantic <= 0 {
		return cerr.New(cerr.ErrCodeConfigInvalid,
			fmt.Sprintf("top_k_semantic must be positive, got %d", s.TopKSemantic), nil)
	}
	for _, w := range []struct {
		name string
		val  float64
	}{
		{"vector_weight", s.VectorWeight},
		{"keyword_weight", s.KeywordWeight},
		{"citation_weight", s.CitationWeight},
		{"mmr_lambda", s.MMRLambda},
	} {
		if w.val < 0 || w.val > 1 {
			return cerr.New(cerr.ErrCodeInvalidWeights,
				fmt.Sprintf("%s must be in [0,1], got %g", w.name, w.val), nil)
		}
	}
	for _, w := range []struct {
		name string
		val  int
	}{
		{"weight_recency", s.WeightRecency},
		{"weight_citation", s.WeightCitation},
	} {
		if w.val < 0 || w.val > 100 {
			return cerr.New(cerr.ErrCodeInvalidWeights,
				fmt.Sprintf("%s must be in [0,100], got %d", w.name, w.val), nil)
		}
	}
	// Caller contract, not enforced: the ranker divides by 100 verbatim,
	// so a non-100 sum scales composite scores uniformly.
	if s.WeightRecency+s.WeightCitation != 100 {
		fmt.Fprintf(os.Stderr, "warning: weight_recency + weight_citation = %d, expected 100\n",
			s.WeightRecency+s.WeightCitation)
	}
	if s.MaxCitations <= 0 {
		return cerr.New(cerr.ErrCodeConfigInvalid,
			fmt.Sprintf("max_citations must be positive, got %d", s.MaxCitations), nil)
	}
	switch s.KeywordBackend {
	case "", "bleve", "fts5":
	default:
		return cerr.New(cerr.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown keyword_backend %q (valid: bleve, fts5)", s.KeywordBackend), nil)
	}

	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = 60 * time.Second
	}
	if c.Oracle.BatchSize <= 0 {
		c.Oracle.BatchSize = 5
	}
	if c.Reranker.Timeout <= 0 {
		c.Reranker.Timeout = 30 * time.Second
	}
	return nil
}

// APIKey resolves the oracle API key from the environment.
func (c *Config) APIKey() string {
	if c.Oracle.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Oracle.APIKeyEnv)
}

// Save writes the config as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return cerr.InternalError("cannot marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cerr.New(cerr.ErrCodeConfigInvalid, "cannot create config directory", err)
	}
	return os.WriteFile(path, data, 0o644)
}
