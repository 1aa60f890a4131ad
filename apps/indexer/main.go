package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mahaj/dakiya/pkg/db"
	"github.com/mahaj/dakiya/pkg/ledger"
	"github.com/mahaj/dakiya/pkg/logger"
)

type Config struct {
	ScyllaHosts    []string `envconfig:"SCYLLA_HOSTS" default:"localhost:9042"`
	ScyllaKeyspace string   `envconfig:"SCYLLA_KEYSPACE" default:"chat"`
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS" default:"localhost:19092"`
	KafkaTopic     string   `envconfig:"KAFKA_TOPIC" default:"chat-messages"`
	KafkaGroupID   string   `envconfig:"KAFKA_GROUP_ID" default:"indexer-group"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.New(slog.LevelInfo).Error("loading config", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Error("connecting to scylla", "hosts", cfg.ScyllaHosts, "error", err)
		os.Exit(1)
	}
	defer session.Close()

	consumer := NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, ledger.NewConversations(session), log)
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Error("closing consumer", "error", err)
		}
	}()

	log.Info("indexer consuming", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	consumer.Consume(ctx)
	log.Info("indexer stopped")
}
