// Package main runs the background worker that executes queued repository
// syncs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/lockin/config"
	"github.com/oremus-labs/lockin/internal/agent"
	"github.com/oremus-labs/lockin/internal/events"
	"github.com/oremus-labs/lockin/internal/jobs"
	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/oremus-labs/lockin/internal/queue"
	"github.com/oremus-labs/lockin/internal/redisx"
	"github.com/oremus-labs/lockin/internal/store"
	"github.com/oremus-labs/lockin/internal/worker"
)

const workerVersion = "0.1.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logutil.Info("worker_bootstrap", map[string]interface{}{
		"version":    workerVersion,
		"redisAddr":  cfg.RedisAddr,
		"syncStream": cfg.RedisSyncStream,
		"syncGroup":  cfg.RedisSyncGroup,
	})

	stateStore, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
	if err != nil {
		log.Fatalf("worker: failed to open datastore: %v", err)
	}
	defer stateStore.Close()

	redisClient, err := redisx.NewClient(ctx, redisx.Config{
		URL:         cfg.RedisURL,
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatalf("worker: failed to connect to redis: %v", err)
	}
	if redisClient == nil {
		log.Fatalf("worker: REDIS_URL or REDIS_ADDR is required")
	}
	defer redisClient.Close()

	eventBus := events.NewBus(events.Options{
		Client:  redisClient,
		Channel: cfg.EventsChannel,
	})
	defer eventBus.Close()

	jobManager := jobs.New(jobs.Options{
		Store: stateStore,
		Syncer: &agent.Client{
			BaseURL: cfg.AgentURL,
			Token:   cfg.AgentToken,
			Timeout: cfg.AgentTimeout,
		},
		EventPublisher: eventBus,
		MaxJobAttempts: cfg.SyncMaxAttempts,
		Timeout:        cfg.SyncTimeout,
		DefaultToken:   cfg.GitHubToken,
	})

	host, _ := os.Hostname()
	consumerName := fmt.Sprintf("%s-%d", host, time.Now().UnixNano())
	consumer := queue.NewConsumer(redisClient, cfg.RedisSyncStream, cfg.RedisSyncGroup, consumerName)

	runner := worker.New(worker.Options{
		Consumer: consumer,
		Jobs:     jobManager,
	})

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logutil.Error("worker stopped", err, nil)
		os.Exit(1)
	}
	logutil.Info("worker exited cleanly", nil)
}
