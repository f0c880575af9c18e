package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	appenv "github.com/garrettladley/sesgate/internal/env"
)

func TestRead_Defaults(t *testing.T) {
	t.Setenv("SNS_TOPICS", "arn:aws:sns:us-east-1:1:a,arn:aws:sns:eu-west-1:1:b")

	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Env != appenv.Development || cfg.Port != "8080" || cfg.Sink != SinkMemory || cfg.ObjectStore != ObjectStoreS3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxBodyBytes != 256<<10 {
		t.Errorf("MaxBodyBytes = %d, want 256 KiB", cfg.MaxBodyBytes)
	}
	if cfg.S3.MaxObjectBytes != 40<<20 {
		t.Errorf("S3.MaxObjectBytes = %d, want 40 MiB", cfg.S3.MaxObjectBytes)
	}
	if cfg.SNS.CertificateTTL != time.Hour || cfg.RateLimit.Window != time.Second {
		t.Errorf("durations = %v, %v", cfg.SNS.CertificateTTL, cfg.RateLimit.Window)
	}
	if cfg.RateLimit.Limit != 500 || cfg.RateLimit.TrustedProxyHops != 0 {
		t.Errorf("RateLimit = %+v, want limit 500 with no trusted proxies", cfg.RateLimit)
	}
	want := []string{"arn:aws:sns:us-east-1:1:a", "arn:aws:sns:eu-west-1:1:b"}
	if diff := cmp.Diff(want, cfg.SNS.Topics); diff != "" {
		t.Errorf("SNS.Topics mismatch (-want +got):\n%s", diff)
	}
	if !cfg.IngressEnabled() {
		t.Error("IngressEnabled() = false with topics set")
	}
}

func TestRead_Nested(t *testing.T) {
	t.Setenv("SINK", "hybrid")
	t.Setenv("DATABASE_URL", "postgres://localhost/sesgate")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("OBJECT_STORE", "minio")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_USE_TLS", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/sesgate" || cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("nested prefixes not applied: %+v / %+v", cfg.Database, cfg.Redis)
	}
	if cfg.MinIO.Endpoint != "localhost:9000" || cfg.MinIO.UseTLS {
		t.Errorf("MinIO = %+v", cfg.MinIO)
	}
	if diff := cmp.Diff([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers); diff != "" {
		t.Errorf("Kafka.Brokers mismatch (-want +got):\n%s", diff)
	}
	if cfg.IngressEnabled() {
		t.Error("IngressEnabled() = true without topics")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Env:             appenv.Development,
			Port:            "8080",
			MaxBodyBytes:    1,
			OutboundTimeout: time.Second,
			Sink:            SinkMemory,
			ObjectStore:     ObjectStoreS3,
			SNS:             SNSConfig{CertificateTTL: time.Hour, ConfirmTimeout: time.Second},
			S3:              S3Config{MaxObjectBytes: 1, Timeout: time.Second},
			SQLite:          SQLiteConfig{Path: "x.db"},
			Kafka:           KafkaConfig{Topic: "t"},
			RateLimit:       RateLimitConfig{Limit: 1, Window: time.Second},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory sink in production", mutate: func(c *Config) { c.Env = appenv.Production }, wantField: "SINK"},
		{name: "sqlite sink in production", mutate: func(c *Config) {
			c.Env = appenv.Production
			c.Sink = SinkSQLite
		}},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink = "s3" }, wantField: "SINK"},
		{name: "unknown object store", mutate: func(c *Config) { c.ObjectStore = "gcs" }, wantField: "OBJECT_STORE"},
		{name: "postgres without url", mutate: func(c *Config) { c.Sink = SinkPostgres }, wantField: "DATABASE_URL"},
		{name: "hybrid without redis", mutate: func(c *Config) {
			c.Sink = SinkHybrid
			c.Database.URL = "postgres://x"
		}, wantField: "REDIS_URL"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Sink = SinkKafka }, wantField: "KAFKA_BROKERS"},
		{name: "minio without endpoint", mutate: func(c *Config) { c.ObjectStore = ObjectStoreMinIO }, wantField: "MINIO_ENDPOINT"},
		{name: "bad s3 endpoint", mutate: func(c *Config) { c.S3.Endpoint = "not a url" }, wantField: "S3_ENDPOINT"},
		{name: "zero body limit", mutate: func(c *Config) { c.MaxBodyBytes = 0 }, wantField: "MAX_BODY_BYTES"},
		{name: "non-numeric port", mutate: func(c *Config) { c.Port = "http" }, wantField: "PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want failure on %s", tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantField+":") {
				t.Errorf("Validate() error = %q, want mention of %s", err, tt.wantField)
			}
		})
	}
}
