package config

import (
	"fmt"
	"time"

	config_pkg "github.com/kumarabd/gokit/config"
	"github.com/kumarabd/ingestion-plane/miner/internal/metrics"
	"github.com/kumarabd/ingestion-plane/miner/pkg/cache"
	"github.com/kumarabd/ingestion-plane/miner/pkg/ingest"
	"github.com/kumarabd/ingestion-plane/miner/pkg/merge"
	"github.com/kumarabd/ingestion-plane/miner/pkg/miner"
	"github.com/kumarabd/ingestion-plane/miner/pkg/server"
	"github.com/kumarabd/ingestion-plane/miner/pkg/sink/loki"
	"github.com/kumarabd/ingestion-plane/miner/pkg/token"
	"github.com/kumarabd/ingestion-plane/miner/pkg/trie"
)

var (
	ApplicationName    = "miner"
	ApplicationVersion = "dev"
)

type Config struct {
	Server    *server.Config   `json:"server,omitempty" yaml:"server,omitempty"`
	Ingest    *ingest.Config   `json:"ingest" yaml:"ingest"`
	Tokenizer *token.Config    `json:"tokenizer" yaml:"tokenizer"`
	Merge     *merge.Config    `json:"merge" yaml:"merge"`
	Trie      *trie.Config     `json:"trie" yaml:"trie"`
	Miner     *miner.Config    `json:"miner" yaml:"miner"`
	Cache     *cache.Config    `json:"cache" yaml:"cache"`
	Metrics   *metrics.Options `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Default returns the configuration used before any file or environment is applied
func Default() *Config {
	mergeConfig := merge.DefaultConfig()
	mergeConfig.NoisePatterns = ingest.NewMasker().NoisePatterns()

	return &Config{
		Server: &server.Config{
			HTTP: &server.HTTPConfig{
				Host:         "0.0.0.0",
				Port:         "8080",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
				Bounds: &server.BoundsConfig{
					MaxBatch:        1000,
					MaxMessageBytes: 65536,
				},
				Pipeline: &server.PipelineConfig{
					EnqueueTimeout: 5 * time.Second,
				},
			},
			GRPC: &server.GRPCConfig{
				Host:                  "0.0.0.0",
				Port:                  "9090",
				MaxConcurrentStreams:  100,
				MaxConnectionIdle:     30 * time.Second,
				MaxConnectionAge:      60 * time.Second,
				MaxConnectionAgeGrace: 10 * time.Second,
				Time:                  5 * time.Second,
				Timeout:               time.Second,
			},
			Sink: loki.DefaultConfig(),
		},
		Ingest:    ingest.DefaultConfig(),
		Tokenizer: token.DefaultConfig(),
		Merge:     mergeConfig,
		Trie:      &trie.Config{},
		Miner:     miner.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Metrics:   &metrics.Options{},
	}
}

// New creates a new config instance
func New() (*Config, error) {
	// Load config using gokit config package
	finalConfig, err := config_pkg.New(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Safe type assertion
	if finalConfig == nil {
		return nil, fmt.Errorf("config is nil")
	}

	cfg, ok := finalConfig.(*Config)
	if !ok {
		return nil, fmt.Errorf("config type assertion failed: expected *Config, got %T", finalConfig)
	}

	return cfg, nil
}
