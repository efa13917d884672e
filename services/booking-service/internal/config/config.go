package config

import (
	"time"

	"github.com/cockroachdb/errors"
	libconfig "github.com/md-rashed-zaman/bookingengine/libs/config"
)

// Config is read from the process environment without a prefix.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"booking-service"`
	Port        string `envconfig:"PORT" default:"8083"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9083"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	KafkaBrokers       string `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID       string `envconfig:"KAFKA_GROUP_ID" default:"booking-service"`
	KafkaIdentityTopic string `envconfig:"KAFKA_IDENTITY_TOPIC" default:"identity.customer.updated.v1"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	JWKSURL   string `envconfig:"JWKS_URL"`

	TrustCacheTTL    time.Duration `envconfig:"TRUST_CACHE_TTL" default:"5m"`
	IdentityCacheTTL time.Duration `envconfig:"IDENTITY_CACHE_TTL" default:"1m"`
	NotifyTimeout    time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"3s"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	OutboxPollEvery time.Duration `envconfig:"OUTBOX_POLL_EVERY" default:"2s"`
	OutboxBatchSize int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`

	HTTPBodyLimitBytes int64         `envconfig:"HTTP_BODY_LIMIT_BYTES" default:"1048576"`
	HTTPTimeout        time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	CORSAllowedOrigins string        `envconfig:"CORS_ALLOWED_ORIGINS"`
}

func Load() (Config, error) {
	var cfg Config
	if err := libconfig.Load("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	var err error
	if c.Port, err = libconfig.Port("PORT", c.Port, "8083"); err != nil {
		return err
	}
	if c.GRPCPort, err = libconfig.Port("GRPC_PORT", c.GRPCPort, "9083"); err != nil {
		return err
	}
	if c.JWTSecret == "" && c.JWKSURL == "" {
		return errors.New("one of JWT_SECRET or JWKS_URL is required")
	}
	if c.OutboxBatchSize <= 0 {
		return errors.Newf("OUTBOX_BATCH_SIZE must be positive (got %d)", c.OutboxBatchSize)
	}
	if c.RateLimitPerMinute < 0 {
		return errors.Newf("RATE_LIMIT_PER_MINUTE must not be negative (got %d)", c.RateLimitPerMinute)
	}
	return nil
}

func (c Config) AllowedOrigins() []string {
	return libconfig.SplitList(c.CORSAllowedOrigins)
}
