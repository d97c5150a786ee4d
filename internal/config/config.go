package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/medreport-explainer/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MEDREPORT_MODELS_API_KEY.
const EnvPrefix = "MEDREPORT"

// ConfigFileEnv names an explicit config file when no WithConfigFile option is given.
const ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// Option customizes a Manager.
type Option func(*Manager)

// WithConfigFile reads configuration from an explicit file instead of the search paths.
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{configFile: os.Getenv(ConfigFileEnv)}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/medreport-explainer/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults and environment variables apply without it.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 25<<20)

	// Text-completion service defaults
	v.SetDefault("models.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("models.api_key", "")
	v.SetDefault("models.timeout", "60s")
	v.SetDefault("models.rate_limit", 5)
	v.SetDefault("models.max_response_bytes", 4<<20)
	v.SetDefault("models.temperature", 0.2)
	v.SetDefault("models.preview", []string{
		"gemini-2.5-flash-lite",
		"gemini-2.0-flash-lite-preview-02-05",
		"gemini-1.5-flash",
	})
	v.SetDefault("models.full", []string{
		"gemini-2.5-flash",
		"gemini-2.5-flash-lite",
		"gemini-1.5-flash",
	})
	v.SetDefault("models.breaker.max_requests", 1)
	v.SetDefault("models.breaker.interval", "60s")
	v.SetDefault("models.breaker.timeout", "30s")
	v.SetDefault("models.breaker.min_requests", 3)
	v.SetDefault("models.breaker.failure_ratio", 0.6)

	// Analysis defaults
	v.SetDefault("analysis.max_definition_terms", 15)
	v.SetDefault("analysis.preview_max_chars", 15000)
	v.SetDefault("analysis.full_max_chars", 0)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.memory_size", 2048)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "medreport:term:")

	// Safety defaults
	v.SetDefault("safety.granularity", "sentence")
	v.SetDefault("safety.fallback_sentence", "")
	v.SetDefault("safety.diagnostic_patterns", []string{})
	v.SetDefault("safety.prognostic_patterns", []string{})
	v.SetDefault("safety.treatment_patterns", []string{})
	v.SetDefault("safety.default_disclaimer", "")

	// Storage defaults
	v.SetDefault("storage.driver", "none")
	v.SetDefault("storage.sqlite_path", "medreport.db")
	v.SetDefault("storage.run_migrations", true)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "medreport")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Inbound rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 2)
	v.SetDefault("rate_limit.burst", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "medreport-explainer")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetModelConfig returns text-completion service configuration
func (m *Manager) GetModelConfig() *domain.ModelConfig {
	return &m.config.Models
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks a configuration for values the services cannot run with.
func Validate(config *domain.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Models.BaseURL == "" {
		return fmt.Errorf("models base URL is required")
	}
	if len(config.Models.Preview) == 0 {
		return fmt.Errorf("at least one preview model is required")
	}
	if len(config.Models.Full) == 0 {
		return fmt.Errorf("at least one full-analysis model is required")
	}
	if config.Models.RateLimit < 0 {
		return fmt.Errorf("invalid models rate limit: %v", config.Models.RateLimit)
	}

	if config.Analysis.MaxDefinitionTerms <= 0 {
		return fmt.Errorf("analysis.max_definition_terms must be positive")
	}
	if config.Analysis.PreviewMaxChars <= 0 {
		return fmt.Errorf("analysis.preview_max_chars must be positive")
	}

	switch strings.ToLower(config.Safety.Granularity) {
	case "", "sentence", "field":
	default:
		return fmt.Errorf("invalid safety granularity: %s", config.Safety.Granularity)
	}

	switch strings.ToLower(config.Storage.Driver) {
	case "", "none":
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for sqlite storage")
		}
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s", config.Storage.Driver)
	}

	if config.Cache.Enabled && config.Cache.MemorySize <= 0 {
		return fmt.Errorf("cache.memory_size must be positive when the cache is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	return DatabaseConnectionString(m.config.Database)
}

// DatabaseConnectionString formats a libpq-style DSN from db.
func DatabaseConnectionString(db domain.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
