package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	HTTPClient  HTTPClientConfig  `mapstructure:"http_client"`
	Log         LogConfig         `mapstructure:"log"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Paystack    PaystackConfig    `mapstructure:"paystack"`
	Alipay      AlipayConfig      `mapstructure:"alipay"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration.
// An empty Host selects the in-memory stores.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds Redis configuration. An empty Address disables Redis.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	// Timeout bounds dial, read and write. Rate limiting fails open past it.
	Timeout time.Duration `mapstructure:"timeout"`
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	// Connection pool settings
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`

	// Timeout settings
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`

	KeepAlive time.Duration `mapstructure:"keep_alive"`

	// UserAgent is sent on every provider API call.
	UserAgent string `mapstructure:"user_agent"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds allowed origins for browser clients.
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// PaymentConfig holds payment command configuration.
type PaymentConfig struct {
	DefaultProvider string `mapstructure:"default_provider"`
	ReturnURL       string `mapstructure:"return_url"`
	CancelURL       string `mapstructure:"cancel_url"`
	// MaxAmount is the largest accepted payment amount, as a decimal string.
	MaxAmount  string   `mapstructure:"max_amount"`
	Currencies []string `mapstructure:"currencies"`
}

// IdempotencyConfig holds idempotency key configuration.
type IdempotencyConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	Store           string        `mapstructure:"store"` // postgres, redis or memory
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// WebhookConfig holds webhook processing and retry configuration.
type WebhookConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	ReplayLimit       int           `mapstructure:"replay_limit"`
	ReplayWindow      time.Duration `mapstructure:"replay_window"`

	// RateLimit caps webhook requests per client IP per minute when Redis is
	// configured. Zero disables it.
	RateLimit int `mapstructure:"rate_limit"`
}

// BreakerConfig holds provider circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// AdminConfig holds admin endpoint authentication.
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ArchiveConfig holds dead-letter archive object storage configuration.
// An empty Bucket disables archiving.
type ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

// StripeConfig holds Stripe payment configuration.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// PaystackConfig holds Paystack payment configuration.
type PaystackConfig struct {
	SecretKey    string `mapstructure:"secret_key"`
	BaseURL      string `mapstructure:"base_url"`
	DefaultEmail string `mapstructure:"default_email"`
}

// AlipayConfig holds Alipay payment configuration.
type AlipayConfig struct {
	AppID           string `mapstructure:"app_id"`
	PrivateKey      string `mapstructure:"private_key"`       // RSA2 private key (PEM format)
	AlipayPublicKey string `mapstructure:"alipay_public_key"` // Alipay public key (PEM format)
	IsProd          bool   `mapstructure:"is_prod"`
	NotifyURL       string `mapstructure:"notify_url"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/payflow")

	return load(v)
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("PAYFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecrets overrides sensitive values from short environment names.
func applySecrets(cfg *Config) {
	overrides := map[string]*string{
		"PAYFLOW_DB_PASSWORD":           &cfg.Database.Password,
		"PAYFLOW_REDIS_PASSWORD":        &cfg.Redis.Password,
		"PAYFLOW_ADMIN_JWT_SECRET":      &cfg.Admin.JWTSecret,
		"PAYFLOW_ARCHIVE_SECRET_KEY":    &cfg.Archive.SecretAccessKey,
		"PAYFLOW_STRIPE_SECRET_KEY":     &cfg.Stripe.SecretKey,
		"PAYFLOW_STRIPE_WEBHOOK_SECRET": &cfg.Stripe.WebhookSecret,
		"PAYFLOW_PAYSTACK_SECRET_KEY":   &cfg.Paystack.SecretKey,
		"PAYFLOW_ALIPAY_APP_ID":         &cfg.Alipay.AppID,
		"PAYFLOW_ALIPAY_PRIVATE_KEY":    &cfg.Alipay.PrivateKey,
		"PAYFLOW_ALIPAY_PUBLIC_KEY":     &cfg.Alipay.AlipayPublicKey,
	}
	for name, field := range overrides {
		if value := os.Getenv(name); value != "" {
			*field = value
		}
	}

	if s := os.Getenv("PAYFLOW_CORS_ORIGINS"); s != "" {
		cfg.CORS.AllowOrigins = parseCommaSeparatedList(s)
	}
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Idempotency.Store {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("invalid idempotency.store %q: want postgres, redis or memory", c.Idempotency.Store)
	}
	if c.Idempotency.Store == "postgres" && !c.Database.Enabled() {
		return fmt.Errorf("idempotency.store is postgres but database.host is empty")
	}
	if c.Idempotency.Store == "redis" && c.Redis.Address == "" {
		return fmt.Errorf("idempotency.store is redis but redis.address is empty")
	}
	if c.Webhook.MaxRetries < 0 {
		return fmt.Errorf("webhook.max_retries must not be negative")
	}
	if c.Webhook.MaxDelay < c.Webhook.BaseDelay {
		return fmt.Errorf("webhook.max_delay must be at least webhook.base_delay")
	}
	return nil
}

func parseCommaSeparatedList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Database defaults
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "payflow")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.timeout", 500*time.Millisecond)

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 10*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 30*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)
	v.SetDefault("http_client.user_agent", "payflow/1.0")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cors.allow_origins", []string{"*"})

	// Payment defaults
	v.SetDefault("payment.default_provider", "stripe")
	v.SetDefault("payment.max_amount", "1000000.00")

	// Idempotency defaults
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.store", "memory")
	v.SetDefault("idempotency.janitor_interval", 10*time.Minute)

	// Webhook defaults
	v.SetDefault("webhook.max_retries", 5)
	v.SetDefault("webhook.base_delay", time.Second)
	v.SetDefault("webhook.max_delay", time.Hour)
	v.SetDefault("webhook.poll_interval", time.Minute)
	v.SetDefault("webhook.batch_size", 100)
	v.SetDefault("webhook.concurrency", 4)
	v.SetDefault("webhook.processing_timeout", 10*time.Second)
	v.SetDefault("webhook.stale_after", 5*time.Minute)
	v.SetDefault("webhook.replay_limit", 3)
	v.SetDefault("webhook.replay_window", time.Hour)
	v.SetDefault("webhook.rate_limit", 600)

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)

	// Archive defaults
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.prefix", "dead-letters")

	v.SetDefault("paystack.base_url", "https://api.paystack.co")
}
