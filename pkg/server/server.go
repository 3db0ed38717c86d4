package server

import (
	"context"
	"errors"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/internal/metrics"
	"github.com/kumarabd/ingestion-plane/miner/pkg/ingest"
	"github.com/kumarabd/ingestion-plane/miner/pkg/miner"
	"github.com/kumarabd/ingestion-plane/miner/pkg/sink/loki"
)

// Type represents the type of server to create
type Type string

const (
	TypeHTTP Type = "http"
	TypeGRPC Type = "grpc"
)

// Config contains configuration for all server types
type Config struct {
	HTTP *HTTPConfig  `json:"http" yaml:"http"`
	GRPC *GRPCConfig  `json:"grpc" yaml:"grpc"`
	Sink *loki.Config `json:"sink,omitempty" yaml:"sink,omitempty"` // forwards mined lines to Loki when enabled
}

// Handler runs the configured servers around one miner service
type Handler struct {
	HTTP   *HTTP
	GRPC   *GRPC
	config *Config
	log    *logger.Handler
}

// New creates a new server handler
func New(l *logger.Handler, m *metrics.Handler, serverConfig *Config, minerConfig *miner.Config, svc *miner.Service, in *ingest.Handler) (*Handler, error) {
	if serverConfig == nil {
		return nil, errors.New("server: config is required")
	}
	if svc == nil {
		return nil, errors.New("server: miner service is required")
	}

	// Create HTTP server if configured
	var httpServer *HTTP
	if serverConfig.HTTP != nil {
		var sink *loki.Sink
		if serverConfig.Sink != nil && serverConfig.Sink.Enabled {
			sink = loki.New(serverConfig.Sink, loki.NewMetrics(m), l)
		}
		httpServer = NewHTTP(serverConfig.HTTP, minerConfig, svc, in, sink, l, m)
	}

	// Create gRPC server if configured
	var grpcServer *GRPC
	if serverConfig.GRPC != nil {
		grpcServer = NewGRPC(serverConfig.GRPC, l, m)
	}

	return &Handler{
		HTTP:   httpServer,
		GRPC:   grpcServer,
		config: serverConfig,
		log:    l,
	}, nil
}

// Start starts the servers. ch receives one value per server that exits.
func (h *Handler) Start(ch chan struct{}) {
	// Start HTTP server if available
	if h.HTTP != nil {
		go func() {
			if err := h.HTTP.Start(); err != nil {
				h.log.Error().Err(err).Msg("HTTP server failed")
			}
			ch <- struct{}{}
		}()
	}

	// Start gRPC server if available
	if h.GRPC != nil {
		go func() {
			if err := h.GRPC.Start(); err != nil {
				h.log.Error().Err(err).Msg("gRPC server failed")
			}
			ch <- struct{}{}
		}()
	}
}

// Stop gracefully stops every running server
func (h *Handler) Stop(ctx context.Context) error {
	var errs []error
	if h.GRPC != nil {
		errs = append(errs, h.GRPC.Stop(ctx))
	}
	if h.HTTP != nil {
		errs = append(errs, h.HTTP.Stop(ctx))
	}
	return errors.Join(errs...)
}
