package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/dakiya/pkg/auth"
	"github.com/mahaj/dakiya/pkg/blobstore"
	"github.com/mahaj/dakiya/pkg/broker"
	"github.com/mahaj/dakiya/pkg/db"
	"github.com/mahaj/dakiya/pkg/ingest"
	"github.com/mahaj/dakiya/pkg/ledger"
	"github.com/mahaj/dakiya/pkg/logger"
	"github.com/mahaj/dakiya/pkg/presence"
	"github.com/mahaj/dakiya/pkg/snowflake"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		logger.New(slog.LevelInfo).Error("loading config", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	log.Info("starting chatd", "addr", cfg.Addr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Error("connecting to scylla", "hosts", cfg.ScyllaHosts, "error", err)
		os.Exit(1)
	}
	defer session.Close()

	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		log.Error("initializing id node", "error", err)
		os.Exit(1)
	}

	events := broker.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() {
		if err := events.Close(); err != nil {
			log.Error("closing kafka writer", "error", err)
		}
	}()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	store := blobstore.NewClient(cfg.BlobUploadURL, cfg.BlobTimeout)
	registry := presence.NewRegistry()
	b := broker.New(
		ingest.New(store, log),
		ledger.New(session, ids),
		registry,
		events,
		log,
	)

	server := NewServer(
		b,
		registry,
		auth.NewManager(cfg.JWTSecret, cfg.TokenTTL),
		newRedisMirror(rdb),
		ledger.NewConversations(session),
		log,
		cfg.MaxUploadBytes,
	)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Routes(),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutting down http server", "error", err)
	}
}
