package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	QueueDriverSQS    = "sqs"
	QueueDriverMemory = "memory"

	devJWTSecret = "echocast-dev-secret"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8081"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Env      string `env:"ENV" envDefault:"development"`

	// Empty DatabaseURL keeps the message cache in memory; empty RedisURL
	// keeps fan-out local to this process.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	// AdminTokenHash is a bcrypt hash of the admin token. Empty disables
	// the admin routes.
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`

	Queue QueueConfig

	FanoutBuffer int `env:"FANOUT_BUFFER" envDefault:"64"`

	// WSAllowedOrigins are the browser origins allowed to open /v1/ws,
	// comma separated. "*" allows any; empty allows only the API's own host.
	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

type QueueConfig struct {
	Driver string `env:"QUEUE_DRIVER" envDefault:"memory"`

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	SQSEndpoint    string `env:"SQS_ENDPOINT"`

	Retention         time.Duration `env:"QUEUE_RETENTION" envDefault:"336h"`
	VisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" envDefault:"30s"`
	ReceiveWait       time.Duration `env:"QUEUE_RECEIVE_WAIT" envDefault:"20s"`

	ReconcileWait  time.Duration `env:"RECONCILE_WAIT" envDefault:"2s"`
	ReconcileBatch int           `env:"RECONCILE_BATCH" envDefault:"10"`
	PollWait       time.Duration `env:"POLL_WAIT" envDefault:"10s"`
}

// LoadConfig reads the environment, seeded from ./.env when that file
// exists. Variables already set in the environment win over the file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	switch c.Queue.Driver {
	case QueueDriverSQS, QueueDriverMemory:
	default:
		return fmt.Errorf("QUEUE_DRIVER must be %q or %q, got %q", QueueDriverSQS, QueueDriverMemory, c.Queue.Driver)
	}

	if c.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		c.JWTSecret = devJWTSecret
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.Queue.ReconcileBatch < 1 || c.Queue.ReconcileBatch > 10 {
		return fmt.Errorf("RECONCILE_BATCH must be between 1 and 10, got %d", c.Queue.ReconcileBatch)
	}
	if c.FanoutBuffer < 1 {
		return fmt.Errorf("FANOUT_BUFFER must be positive, got %d", c.FanoutBuffer)
	}
	return nil
}
