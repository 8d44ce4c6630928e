// Package main is the entry point for the Lock-In gateway service.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/lockin/config"
	"github.com/oremus-labs/lockin/internal/agent"
	"github.com/oremus-labs/lockin/internal/api"
	"github.com/oremus-labs/lockin/internal/archive"
	"github.com/oremus-labs/lockin/internal/events"
	"github.com/oremus-labs/lockin/internal/filecache"
	"github.com/oremus-labs/lockin/internal/graphqlapi"
	"github.com/oremus-labs/lockin/internal/handlers"
	"github.com/oremus-labs/lockin/internal/jobs"
	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/oremus-labs/lockin/internal/queue"
	"github.com/oremus-labs/lockin/internal/redisx"
	"github.com/oremus-labs/lockin/internal/relay"
	"github.com/oremus-labs/lockin/internal/store"
	"github.com/oremus-labs/lockin/internal/validator"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logutil.Info("gateway_bootstrap", map[string]interface{}{
		"version":   version,
		"agentUrl":  cfg.AgentURL,
		"datastore": cfg.DataStoreDriver,
		"redis":     cfg.RedisURL != "" || cfg.RedisAddr != "",
		"archive":   cfg.ArchiveEndpoint != "",
	})

	stateStore, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
	if err != nil {
		log.Fatalf("gateway: failed to open datastore: %v", err)
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
		log.Fatalf("gateway: failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewBus(events.Options{
		Client:  redisClient,
		Channel: cfg.EventsChannel,
	})
	defer eventBus.Close()

	archiver, err := archive.New(archive.Config{
		Endpoint:  cfg.ArchiveEndpoint,
		AccessKey: cfg.ArchiveAccessKey,
		SecretKey: cfg.ArchiveSecretKey,
		Bucket:    cfg.ArchiveBucket,
		UseSSL:    cfg.ArchiveUseSSL,
	})
	if err != nil {
		log.Fatalf("gateway: failed to initialize archive: %v", err)
	}
	if archiver.Enabled() {
		if err := archiver.EnsureBucket(ctx); err != nil {
			logutil.Error("archive bucket unavailable", err, map[string]interface{}{"bucket": cfg.ArchiveBucket})
		}
	}

	agentClient := &agent.Client{
		BaseURL: cfg.AgentURL,
		Token:   cfg.AgentToken,
		Timeout: cfg.AgentTimeout,
	}

	jobOpts := jobs.Options{
		Store:          stateStore,
		Syncer:         agentClient,
		EventPublisher: eventBus,
		MaxJobAttempts: cfg.SyncMaxAttempts,
		Timeout:        cfg.SyncTimeout,
		DefaultToken:   cfg.GitHubToken,
	}
	if redisClient != nil {
		jobOpts.Queue = queue.NewProducer(redisClient, cfg.RedisSyncStream)
	}
	jobManager := jobs.New(jobOpts)

	promptRelay := relay.New(relay.Options{
		Agent:    agentClient,
		Store:    stateStore,
		Events:   eventBus,
		Archiver: archiver,
	})

	requestValidator, err := validator.New(validator.Options{PromptMaxLength: cfg.PromptMaxLength})
	if err != nil {
		log.Fatalf("gateway: failed to compile request schemas: %v", err)
	}

	gqlHandler, err := graphqlapi.NewHandler(graphqlapi.Config{Store: stateStore})
	if err != nil {
		log.Fatalf("gateway: failed to build GraphQL schema: %v", err)
	}

	remoteFiles := filecache.New(filecache.Options{
		Source: agentClient,
		Redis:  redisClient,
		TTL:    cfg.FileCacheTTL,
	})

	h := handlers.New(handlers.Deps{
		Store:     stateStore,
		Relay:     promptRelay,
		Jobs:      jobManager,
		Events:    eventBus,
		Agent:     remoteFiles,
		Validator: requestValidator,
	}, handlers.Options{
		GitHubToken: cfg.GitHubToken,
	})

	server := api.NewServer(h, api.Options{
		APIToken:       cfg.APIToken,
		GraphQLHandler: gqlHandler,
	})
	srv := server.Start(":" + cfg.ServerPort)
	logutil.Info("gateway listening", map[string]interface{}{"addr": srv.Addr})

	<-ctx.Done()
	logutil.Info("gateway shutting down", nil)
	if err := api.Shutdown(srv, shutdownTimeout); err != nil {
		logutil.Error("gateway forced to shutdown", err, nil)
	}
	logutil.Info("gateway stopped", nil)
}
