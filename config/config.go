package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Search    SearchConfig    `mapstructure:"search"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Client    ClientConfig    `mapstructure:"client"`
}

// GeneralConfig contains logging settings.
type GeneralConfig struct {
	Debug         bool   `mapstructure:"debug"`
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
}

func (g GeneralConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(g.LogLevel)) {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("general.log_level must be one of debug|info|warn|error, got %q", g.LogLevel)
	}
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SearchConfig selects and configures the web search provider.
type SearchConfig struct {
	Provider   string        `mapstructure:"provider"` // serpapi, serper, brave
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"` // 0 disables the redis result cache
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "serpapi", "serper", "brave":
	default:
		return fmt.Errorf("search.provider must be one of serpapi|serper|brave, got %q", s.Provider)
	}
	if s.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	if s.CacheTTL < 0 {
		return fmt.Errorf("search.cache_ttl cannot be negative")
	}
	return nil
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider         string        `mapstructure:"provider"` // anthropic, openai
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	SuggestMaxTokens int           `mapstructure:"suggest_max_tokens"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be one of anthropic|openai, got %q", l.Provider)
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	if l.MaxTokens <= 0 || l.SuggestMaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens and llm.suggest_max_tokens must be > 0")
	}
	return nil
}

// StorageConfig selects where conversations are persisted.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"` // memory, redis, postgres
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "memory":
		return nil
	case "redis":
		return s.Redis.Validate()
	case "postgres":
		return s.Postgres.Validate()
	default:
		return fmt.Errorf("storage.backend must be one of memory|redis|postgres, got %q", s.Backend)
	}
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      string        `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL           string        `mapstructure:"url"`
	Host          string        `mapstructure:"host"`
	Port          string        `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	DBName        string        `mapstructure:"dbname"`
	SSLMode       string        `mapstructure:"sslmode"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MigrationsDir string        `mapstructure:"migrations_dir"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the configured URL or assembles one from the discrete fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// TelemetryConfig contains tracing and metrics settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ClientConfig is read by the CLI when it talks to a running server.
type ClientConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// Validate checks every section.
func (c *Config) Validate() error {
	return errors.Join(
		c.General.Validate(),
		c.Search.Validate(),
		c.LLM.Validate(),
		c.Storage.Validate(),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_max_size_mb", 100)
	v.SetDefault("general.log_max_backups", 3)
	v.SetDefault("general.log_max_age_days", 28)
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("search.provider", "serpapi")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.cache_ttl", 0)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.suggest_max_tokens", 300)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.redis.key_prefix", "simplexity")
	v.SetDefault("storage.postgres.migrations_dir", "file://migrations")
	v.SetDefault("telemetry.service_name", "simplexity")
	v.SetDefault("client.base_url", "http://localhost:10001")
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_file", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.ttl", 0)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// LoadConfig reads config from path, or searches the usual locations when path
// is empty. A missing config file is not an error: defaults plus SIMPLEXITY_*
// environment variables are enough to run.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, ".."))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SIMPLEXITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
