package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Models      ModelConfig     `mapstructure:"models"`
	Analysis    AnalysisConfig  `mapstructure:"analysis"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Safety      SafetyConfig    `mapstructure:"safety"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Database    DatabaseConfig  `mapstructure:"database"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	MCP         MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// ModelConfig configures the text-completion service and the per-call-site model chains.
// Preview is ordered lowest latency first, Full highest quality first.
type ModelConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
	Temperature      float64       `mapstructure:"temperature"`
	Preview          []string      `mapstructure:"preview"`
	Full             []string      `mapstructure:"full"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the per-model circuit breaker.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// AnalysisConfig bounds the inputs and batch sizes of the analysis pipelines.
type AnalysisConfig struct {
	MaxDefinitionTerms int `mapstructure:"max_definition_terms"`
	PreviewMaxChars    int `mapstructure:"preview_max_chars"`
	FullMaxChars       int `mapstructure:"full_max_chars"`
}

// CacheConfig configures the term-definition cache tiers.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MemorySize int           `mapstructure:"memory_size"`
	TTL        time.Duration `mapstructure:"ttl"`
	RedisURL   string        `mapstructure:"redis_url"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

// SafetyConfig is the claim-filter policy. Empty pattern lists keep the built-in defaults.
type SafetyConfig struct {
	Granularity        string   `mapstructure:"granularity"`
	FallbackSentence   string   `mapstructure:"fallback_sentence"`
	DiagnosticPatterns []string `mapstructure:"diagnostic_patterns"`
	PrognosticPatterns []string `mapstructure:"prognostic_patterns"`
	TreatmentPatterns  []string `mapstructure:"treatment_patterns"`
	DefaultDisclaimer  string   `mapstructure:"default_disclaimer"`
}

// StorageConfig selects where result snapshots are kept.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RateLimitConfig configures inbound per-client rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
