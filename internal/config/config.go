package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	playground "github.com/go-playground/validator/v10"

	appenv "github.com/garrettladley/sesgate/internal/env"
	"github.com/garrettladley/sesgate/internal/validator"
)

const (
	SinkPostgres = "postgres"
	SinkHybrid   = "hybrid"
	SinkSQLite   = "sqlite"
	SinkKafka    = "kafka"
	SinkMemory   = "memory"

	ObjectStoreS3    = "s3"
	ObjectStoreMinIO = "minio"
	ObjectStoreNone  = "none"
)

type Config struct {
	Env             appenv.Environment `env:"ENV" envDefault:"development" validate:"oneof=development production test"`
	Port            string             `env:"PORT" envDefault:"8080" validate:"required,numeric"`
	MaxBodyBytes    int64              `env:"MAX_BODY_BYTES" envDefault:"262144" validate:"gt=0"`
	OutboundTimeout time.Duration      `env:"OUTBOUND_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	GracePeriod     time.Duration      `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"5s"`
	Sink            string             `env:"SINK" envDefault:"memory" validate:"oneof=postgres hybrid sqlite kafka memory"`
	ObjectStore     string             `env:"OBJECT_STORE" envDefault:"s3" validate:"oneof=s3 minio none"`

	SNS       SNSConfig       `envPrefix:"SNS_"`
	S3        S3Config        `envPrefix:"S3_"`
	MinIO     MinIOConfig     `envPrefix:"MINIO_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	SQLite    SQLiteConfig    `envPrefix:"SQLITE_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_"`
}

type SNSConfig struct {
	// Topics is the allow-list. The ingress is disabled when it is empty.
	Topics              []string      `env:"TOPICS" envSeparator:","`
	SigningHostPatterns []string      `env:"SIGNING_HOSTS" envSeparator:","`
	CertificateTTL      time.Duration `env:"CERT_TTL" envDefault:"1h" validate:"gt=0"`
	ConfirmTimeout      time.Duration `env:"CONFIRM_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

type S3Config struct {
	Region          string        `env:"REGION" envDefault:"us-east-1"`
	Endpoint        string        `env:"ENDPOINT" validate:"omitempty,url"`
	AccessKeyID     string        `env:"ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool          `env:"USE_PATH_STYLE"`
	MaxObjectBytes  int64         `env:"MAX_OBJECT_BYTES" envDefault:"41943040" validate:"gt=0"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"30s" validate:"gt=0"`
}

type MinIOConfig struct {
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	UseTLS          bool   `env:"USE_TLS" envDefault:"true"`
	Region          string `env:"REGION"`
}

type DatabaseConfig struct {
	URL string `env:"URL"`
}

type SQLiteConfig struct {
	Path string `env:"PATH" envDefault:"sesgate.db"`
}

type RedisConfig struct {
	URL string `env:"URL"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"inbound-emails"`
}

type RateLimitConfig struct {
	// SNS delivers from a small pool of addresses, so the per-IP limit is
	// sized for a whole topic's fan-in rather than one client.
	Limit            int           `env:"LIMIT" envDefault:"500" validate:"gt=0"`
	Window           time.Duration `env:"WINDOW" envDefault:"1s" validate:"gt=0"`
	TrustedProxyHops int           `env:"TRUSTED_PROXY_HOPS" envDefault:"0" validate:"gte=0"`
}

func Read() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var errInvalid = errors.New("invalid configuration")

func (c Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(crossFieldRules, Config{})

	if fields := validator.Fields(v.Struct(c)); fields != nil {
		return fmt.Errorf("%w: %s", errInvalid, validator.Describe(fields))
	}
	return nil
}

// crossFieldRules requires the settings of whichever sink and object store
// are selected, and keeps the memory sink out of production.
func crossFieldRules(sl playground.StructLevel) {
	c := sl.Current().Interface().(Config)

	if c.Env.IsProduction() && c.Sink == SinkMemory {
		sl.ReportError(c.Sink, "SINK", "Sink", "excluded_if", "ENV production")
	}

	sink := "SINK " + c.Sink
	switch c.Sink {
	case SinkPostgres:
		requireField(sl, c.Database.URL, "DATABASE.URL", sink)
	case SinkHybrid:
		requireField(sl, c.Database.URL, "DATABASE.URL", sink)
		requireField(sl, c.Redis.URL, "REDIS.URL", sink)
	case SinkSQLite:
		requireField(sl, c.SQLite.Path, "SQLITE.PATH", sink)
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			sl.ReportError(c.Kafka.Brokers, "KAFKA.BROKERS", "Brokers", "required_if", sink)
		}
	}

	if c.ObjectStore == ObjectStoreMinIO {
		requireField(sl, c.MinIO.Endpoint, "MINIO.ENDPOINT", "OBJECT_STORE minio")
	}
}

func requireField(sl playground.StructLevel, value, name, because string) {
	if value == "" {
		sl.ReportError(value, name, name, "required_if", because)
	}
}

// IngressEnabled reports whether any topic is configured.
func (c Config) IngressEnabled() bool {
	return len(c.SNS.Topics) > 0
}
