package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/internal/config"
	"github.com/kumarabd/ingestion-plane/miner/internal/metrics"
	"github.com/kumarabd/ingestion-plane/miner/pkg/cache"
	"github.com/kumarabd/ingestion-plane/miner/pkg/ingest"
	"github.com/kumarabd/ingestion-plane/miner/pkg/matcher"
	"github.com/kumarabd/ingestion-plane/miner/pkg/merge"
	"github.com/kumarabd/ingestion-plane/miner/pkg/miner"
	"github.com/kumarabd/ingestion-plane/miner/pkg/server"
	"github.com/kumarabd/ingestion-plane/miner/pkg/token"
)

// main is the entry point of the application
func main() {
	// Initialize a new logger with the application name and syslog format
	log, err := logger.New(config.ApplicationName, logger.Options{
		Format: logger.SyslogLogFormat,
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// Initialize a new configuration handler
	configHandler, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("")
		os.Exit(1)
	}

	// Initialize a new metrics handler with the application name
	metricsHandler, err := metrics.New(config.ApplicationName)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	tok, err := token.New(configHandler.Tokenizer)
	if err != nil {
		log.Error().Err(err).Msg("tokenizer initialization failed")
		os.Exit(1)
	}
	engine, err := merge.New(configHandler.Merge, tok)
	if err != nil {
		log.Error().Err(err).Msg("merge engine initialization failed")
		os.Exit(1)
	}
	cacheHandler, err := cache.New(configHandler.Cache)
	if err != nil {
		log.Error().Err(err).Msg("cache initialization failed")
		os.Exit(1)
	}

	// Initialize the miner service that owns the template trie
	svc, err := miner.New(configHandler.Miner, log,
		miner.WithTokenizer(tok),
		miner.WithEngine(engine),
		miner.WithMatcher(matcher.New(tok, cacheHandler)),
		miner.WithTrieConfig(configHandler.Trie),
		miner.WithMetrics(miner.NewMetrics(metricsHandler)),
	)
	if err != nil {
		log.Error().Err(err).Msg("miner initialization failed")
		os.Exit(1)
	}
	log.Info().Int("templates", svc.Len()).Msg("miner initialized")

	ingestHandler := ingest.NewHandler(configHandler.Ingest)

	// Create server instance
	srv, err := server.New(log, metricsHandler, configHandler.Server, configHandler.Miner, svc, ingestHandler)
	if err != nil {
		log.Error().Err(err).Msg("server initialization failed")
		os.Exit(1)
	}
	log.Info().Msg("server initialized")

	// Run the server with graceful shutdown
	ch := make(chan struct{}, 2)
	srv.Start(ch)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ch:
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("server stop failed")
	}
	log.Info().Int("templates", svc.Len()).Msg("server stopped")
}
