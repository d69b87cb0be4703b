package model

import "time"

// Config holds the complete medrights configuration
type Config struct {
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	QueryLog QueryLogConfig `yaml:"querylog" mapstructure:"querylog"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Watch    WatchConfig    `yaml:"watch" mapstructure:"watch"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
}

// DataConfig points at the versioned data files. Empty paths select the
// copies embedded in the binary.
type DataConfig struct {
	KnowledgePath string `yaml:"knowledge_path" mapstructure:"knowledge_path"`
	TemplatesPath string `yaml:"templates_path" mapstructure:"templates_path"`
	IntentsPath   string `yaml:"intents_path" mapstructure:"intents_path"`
}

// ScoringConfig carries the classifier policy constants
type ScoringConfig struct {
	KeywordWeight  float64 `yaml:"keyword_weight" mapstructure:"keyword_weight"`
	PatternWeight  float64 `yaml:"pattern_weight" mapstructure:"pattern_weight"`
	VerbWeight     float64 `yaml:"verb_weight" mapstructure:"verb_weight"`
	Normalizer     float64 `yaml:"normalizer" mapstructure:"normalizer"`
	MaxIntents     int     `yaml:"max_intents" mapstructure:"max_intents"`
	RetrievalDepth int     `yaml:"retrieval_depth" mapstructure:"retrieval_depth"` // Intents used for clause retrieval
}

// OutputConfig controls answer presentation
type OutputConfig struct {
	ShowProof bool `yaml:"show_proof" mapstructure:"show_proof"`
	Pretty    bool `yaml:"pretty" mapstructure:"pretty"` // Render markdown for terminals
	Verbose   bool `yaml:"verbose" mapstructure:"verbose"`
}

// CacheConfig controls the answer cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Dir     string        `yaml:"dir" mapstructure:"dir"` // Optional disk layer
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr              string        `yaml:"addr" mapstructure:"addr"`
	MaxConnections    int           `yaml:"max_connections" mapstructure:"max_connections"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	TrackedClients    int           `yaml:"tracked_clients" mapstructure:"tracked_clients"`
	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxQueryBytes     int64         `yaml:"max_query_bytes" mapstructure:"max_query_bytes"`
}

// QueryLogConfig selects the fire-and-forget query log sink
type QueryLogConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // none, jsonl, postgres
	Path   string `yaml:"path" mapstructure:"path"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
	Buffer int    `yaml:"buffer" mapstructure:"buffer"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console, json
}

// WatchConfig controls data-file reloading
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// BatchConfig controls batch processing
type BatchConfig struct {
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 answers as fast as the workers allow
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Scoring: DefaultScoring(),
		Output: OutputConfig{
			ShowProof: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			MaxConnections:    256,
			RequestsPerSecond: 5,
			Burst:             10,
			TrackedClients:    4096,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			MaxQueryBytes:     16 << 10,
		},
		QueryLog: QueryLogConfig{
			Driver: "none",
			Path:   "medrights-queries.jsonl",
			Buffer: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 500 * time.Millisecond,
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// DefaultScoring returns the classifier weights: +2 per keyword, +3 per
// negative pattern, +1 per verb, confidence = min(raw/6, 1), top 3 intents,
// clauses retrieved for the top 2.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		KeywordWeight:  2,
		PatternWeight:  3,
		VerbWeight:     1,
		Normalizer:     6,
		MaxIntents:     3,
		RetrievalDepth: 2,
	}
}
