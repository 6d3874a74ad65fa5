package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/notify-digest/internal/digest"
	"github.com/jwalitptl/notify-digest/internal/email"
	"github.com/jwalitptl/notify-digest/internal/worker"
	"github.com/jwalitptl/notify-digest/pkg/messaging/redis"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Digest   DigestConfig   `mapstructure:"digest"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	HealthPort   int           `mapstructure:"health_port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	// URL empty means single-instance mode: in-process lock, no broker.
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	LockPrefix   string        `mapstructure:"lock_prefix"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type SMTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=0,max=65535"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	From            string        `mapstructure:"from"`
	BCC             string        `mapstructure:"bcc" validate:"omitempty,email"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" validate:"min=0"`
	Burst           int           `mapstructure:"burst" validate:"min=0"`
	BreakerFailures int           `mapstructure:"breaker_failures" validate:"min=0"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type DigestConfig struct {
	DefaultTimezone string        `mapstructure:"default_timezone" validate:"required"`
	DeliveryWindow  time.Duration `mapstructure:"delivery_window" validate:"min=0"`
	MaxItems        int           `mapstructure:"max_items" validate:"min=1,max=100"`
	Brand           string        `mapstructure:"brand" validate:"required"`
}

type WorkerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout"`
	LedgerRetention time.Duration `mapstructure:"ledger_retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type ArchiveConfig struct {
	Dir     string `mapstructure:"dir"`
	Publish bool   `mapstructure:"publish"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// envOverrides are the deployment secrets and endpoints that always win over
// the file.
type envOverrides struct {
	DBHost       string `envconfig:"DB_HOST"`
	DBPort       int    `envconfig:"DB_PORT"`
	DBPassword   string `envconfig:"DB_PASSWORD"`
	RedisURL     string `envconfig:"REDIS_URL"`
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	JWTSecret    string `envconfig:"JWT_SECRET"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.read_timeout", 15*time.Second)
	// POST /digest/cycles answers only after the cycle finishes.
	v.SetDefault("server.write_timeout", 5*time.Minute)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "notifications")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.lock_prefix", "notify-digest:")

	v.SetDefault("jwt.issuer", "notify-digest")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.rate_per_second", 10)
	v.SetDefault("smtp.burst", 5)
	v.SetDefault("smtp.breaker_failures", 5)
	v.SetDefault("smtp.breaker_timeout", 30*time.Second)

	v.SetDefault("digest.default_timezone", digest.DefaultTimezone)
	v.SetDefault("digest.delivery_window", digest.DefaultDeliveryWindow)
	v.SetDefault("digest.max_items", digest.DefaultMaxItems)
	v.SetDefault("digest.brand", "Notify")

	v.SetDefault("worker.interval", 5*time.Minute)
	v.SetDefault("worker.cycle_timeout", 4*time.Minute)
	v.SetDefault("worker.lock_ttl", 10*time.Minute)
	v.SetDefault("worker.ledger_retention", 90*24*time.Hour)
	v.SetDefault("worker.cleanup_interval", 24*time.Hour)

	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.publish", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
}

// Load reads config.yaml from path (or the usual locations when path is
// empty), applies environment overrides and validates the result. A missing
// file is not an error; defaults and the environment are enough to run.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if env.DBHost != "" {
		cfg.Database.Host = env.DBHost
	}
	if env.DBPort != 0 {
		cfg.Database.Port = env.DBPort
	}
	if env.DBPassword != "" {
		cfg.Database.Password = env.DBPassword
	}
	if env.RedisURL != "" {
		cfg.Redis.URL = env.RedisURL
	}
	if env.SMTPHost != "" {
		cfg.SMTP.Host = env.SMTPHost
	}
	if env.SMTPPassword != "" {
		cfg.SMTP.Password = env.SMTPPassword
	}
	if env.JWTSecret != "" {
		cfg.JWT.Secret = env.JWTSecret
	}
	return nil
}

func (c *DigestConfig) ToDigestConfig() digest.Config {
	return digest.Config{
		DefaultTimezone: c.DefaultTimezone,
		DeliveryWindow:  c.DeliveryWindow,
		MaxItems:        c.MaxItems,
	}
}

func (c *WorkerConfig) ToWorkerConfig() worker.DigestWorkerConfig {
	return worker.DigestWorkerConfig{
		Interval:     c.Interval,
		CycleTimeout: c.CycleTimeout,
		LockTTL:      c.LockTTL,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *SMTPConfig) ToSMTPConfig() email.Config {
	return email.Config{
		Host:            c.Host,
		Port:            c.Port,
		Username:        c.Username,
		Password:        c.Password,
		From:            c.From,
		BCC:             c.BCC,
		RatePerSecond:   c.RatePerSecond,
		Burst:           c.Burst,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}
