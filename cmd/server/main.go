// Package main provides the API server entry point for the portfolio ledger service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/portfolio-ledger/internal/api"
	"github.com/portfolio-ledger/internal/config"
	"github.com/portfolio-ledger/internal/graph"
	"github.com/portfolio-ledger/internal/logging"
	"github.com/portfolio-ledger/internal/retry"
	"github.com/portfolio-ledger/internal/service"
	"github.com/portfolio-ledger/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":     cfg.Logging.Level,
		"format":    cfg.Logging.Format,
		"programId": cfg.Program.ID.String(),
	}).Info("Portfolio ledger starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backing stores may come up after us in compose setups, so retry the first connection
	backoff := retry.DefaultConfig()

	var postgres *storage.PostgresDB
	if err := retry.Do(ctx, backoff, func(ctx context.Context, _ int) error {
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	}); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var redis *storage.RedisCache
	if err := retry.Do(ctx, backoff, func(ctx context.Context, _ int) error {
		redis, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
		return err
	}); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() {
		_ = redis.Close()
	}()

	var clickhouse *storage.ClickHouseDB
	if err := retry.Do(ctx, backoff, func(ctx context.Context, _ int) error {
		clickhouse, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		return err
	}); err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer func() {
		_ = clickhouse.Close()
	}()

	logger.Info("Database connections established")

	portfolioService := service.NewPortfolioService(cfg.Program, storage.NewAccountRepository(postgres, cfg.Program.ID))
	portfolioService.SetCache(storage.NewCacheService(redis, cfg.Cache.TTL))
	// Timestamps are accepted on both sides of server time
	portfolioService.SetReplayGuard(storage.NewReplayGuard(redis, 2*cfg.Program.SignatureWindow))
	portfolioService.SetActivityLog(storage.NewActivityRepository(clickhouse))

	var graphClient graph.Client
	if cfg.Graph.URI != "" {
		graphClient, err = graph.NewNeo4jClient(ctx, graph.Options{
			URI:            cfg.Graph.URI,
			Database:       cfg.Graph.Database,
			Username:       cfg.Graph.Username,
			Password:       cfg.Graph.Password,
			MaxConnections: cfg.Graph.MaxConnections,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to vouch graph")
		}
		defer func() {
			_ = graphClient.Close(context.Background())
		}()
		portfolioService.SetVouchGraph(graph.NewVouchGraph(graphClient))
	} else {
		logger.Warn("GRAPH_URI not set - vouch graph disabled")
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RequestsPerSec:  cfg.RateLimit.RequestsPerSecond,
		Burst:           cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, portfolioService)
	server.AddHealthCheck("postgres", postgres.Ping)
	server.AddHealthCheck("redis", redis.Ping)
	server.AddHealthCheck("clickhouse", clickhouse.Ping)
	if graphClient != nil {
		server.AddHealthCheck("graph", graphClient.VerifyConnectivity)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server failed")
		}
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
