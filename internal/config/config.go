package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_DATABASE_HOST.
const EnvPrefix = "LEDGER"

// Orphan policies for records whose resource no longer resolves.
const (
	OrphanPolicyHide   = "hide"
	OrphanPolicyDelete = "delete"
)

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" split_words:"true"`
	Database   DatabaseConfig   `mapstructure:"database" split_words:"true"`
	Storage    StorageConfig    `mapstructure:"storage" split_words:"true"`
	Redis      RedisConfig      `mapstructure:"redis" split_words:"true"`
	JWT        JWTConfig        `mapstructure:"jwt" split_words:"true"`
	SMTP       SMTPConfig       `mapstructure:"smtp" split_words:"true"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch" split_words:"true"`
	Retention  RetentionConfig  `mapstructure:"retention" split_words:"true"`
	Visibility VisibilityConfig `mapstructure:"visibility" split_words:"true"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" split_words:"true"`
	Log        LogConfig        `mapstructure:"log" split_words:"true"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" split_words:"true"`
	MetricsPort    int           `mapstructure:"metrics_port" split_words:"true"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" split_words:"true"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" split_words:"true"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" split_words:"true"`
	Port            int           `mapstructure:"port" split_words:"true"`
	User            string        `mapstructure:"user" split_words:"true"`
	Password        string        `mapstructure:"password" split_words:"true"`
	Name            string        `mapstructure:"name" split_words:"true"`
	SSLMode         string        `mapstructure:"sslmode" split_words:"true"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" split_words:"true"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled" split_words:"true"`
	URL          string        `mapstructure:"url" split_words:"true"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret" split_words:"true"`
	Issuer      string `mapstructure:"issuer" split_words:"true"`
	ExpiryHours int    `mapstructure:"expiry_hours" split_words:"true"`
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" split_words:"true"`
	Port     int    `mapstructure:"port" split_words:"true"`
	Username string `mapstructure:"username" split_words:"true"`
	Password string `mapstructure:"password" split_words:"true"`
	From     string `mapstructure:"from" split_words:"true"`
	BaseURL  string `mapstructure:"base_url" split_words:"true"`
}

type DispatchConfig struct {
	BatchSize            int           `mapstructure:"batch_size" split_words:"true"`
	AlertPollInterval    time.Duration `mapstructure:"alert_poll_interval" split_words:"true"`
	ReminderPollInterval time.Duration `mapstructure:"reminder_poll_interval" split_words:"true"`
	ReminderDelay        time.Duration `mapstructure:"reminder_delay" split_words:"true"`
	RetryAttempts        int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay           time.Duration `mapstructure:"retry_delay" split_words:"true"`
	BreakerMaxFailures   int           `mapstructure:"breaker_max_failures" split_words:"true"`
	BreakerResetTimeout  time.Duration `mapstructure:"breaker_reset_timeout" split_words:"true"`
}

type RetentionConfig struct {
	Days     int           `mapstructure:"days" split_words:"true"`
	Interval time.Duration `mapstructure:"interval" split_words:"true"`
}

type VisibilityConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl" split_words:"true"`
	OrphanPolicy string        `mapstructure:"orphan_policy" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" split_words:"true"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst" split_words:"true"`
}

type LogConfig struct {
	Level string `mapstructure:"level" split_words:"true"`
	JSON  bool   `mapstructure:"json" split_words:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "notification_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("storage.driver", StorageDriverPostgres)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.issuer", "notification-ledger")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "notifications@localhost")

	v.SetDefault("dispatch.batch_size", 100)
	v.SetDefault("dispatch.alert_poll_interval", "10s")
	v.SetDefault("dispatch.reminder_poll_interval", "5m")
	v.SetDefault("dispatch.reminder_delay", "15m")
	v.SetDefault("dispatch.retry_attempts", 3)
	v.SetDefault("dispatch.retry_delay", "2s")
	v.SetDefault("dispatch.breaker_max_failures", 5)
	v.SetDefault("dispatch.breaker_reset_timeout", "30s")

	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.interval", "24h")

	v.SetDefault("visibility.cache_ttl", "1m")
	v.SetDefault("visibility.orphan_policy", OrphanPolicyHide)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yml from the usual locations, or from path when it
// is not empty, then applies LEDGER_* environment overrides. A missing config
// file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}
	switch c.Visibility.OrphanPolicy {
	case OrphanPolicyHide, OrphanPolicyDelete:
	default:
		return fmt.Errorf("invalid orphan policy %q", c.Visibility.OrphanPolicy)
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("dispatch.batch_size must be positive")
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("retention.days must not be negative")
	}
	return nil
}
