package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr           string        `envconfig:"ADDR" default:":8080"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	ScyllaHosts    []string      `envconfig:"SCYLLA_HOSTS" default:"localhost:9042"`
	ScyllaKeyspace string        `envconfig:"SCYLLA_KEYSPACE" default:"chat"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	KafkaBrokers   []string      `envconfig:"KAFKA_BROKERS" default:"localhost:19092"`
	KafkaTopic     string        `envconfig:"KAFKA_TOPIC" default:"chat-messages"`
	BlobUploadURL  string        `envconfig:"BLOB_UPLOAD_URL" required:"true"`
	BlobTimeout    time.Duration `envconfig:"BLOB_TIMEOUT" default:"30s"`
	NodeID         int64         `envconfig:"NODE_ID" default:"1"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
}

func LoadConfig() (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
