package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/internal/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported by the health service
const ServiceName = "miner"

// GRPCConfig contains configuration for the gRPC server
type GRPCConfig struct {
	Host                  string        `json:"host" yaml:"host" default:"0.0.0.0"`
	Port                  string        `json:"port" yaml:"port" default:"9090"`
	MaxConcurrentStreams  uint32        `json:"max_concurrent_streams" yaml:"max_concurrent_streams" default:"100"`
	MaxConnectionIdle     time.Duration `json:"max_connection_idle" yaml:"max_connection_idle" default:"30s"`
	MaxConnectionAge      time.Duration `json:"max_connection_age" yaml:"max_connection_age" default:"60s"`
	MaxConnectionAgeGrace time.Duration `json:"max_connection_age_grace" yaml:"max_connection_age_grace" default:"10s"`
	Time                  time.Duration `json:"time" yaml:"time" default:"5s"`
	Timeout               time.Duration `json:"timeout" yaml:"timeout" default:"1s"`
}

// GRPC serves the health and reflection services
type GRPC struct {
	handler   *grpc.Server
	health    *health.Server
	log       *logger.Handler
	metric    *metrics.Handler
	config    *GRPCConfig
	listener  net.Listener
	isRunning bool
	mu        sync.RWMutex
}

// NewGRPC creates a new gRPC server instance
func NewGRPC(config *GRPCConfig, log *logger.Handler, metric *metrics.Handler) *GRPC {
	opts := []grpc.ServerOption{
		grpc.MaxConcurrentStreams(config.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     config.MaxConnectionIdle,
			MaxConnectionAge:      config.MaxConnectionAge,
			MaxConnectionAgeGrace: config.MaxConnectionAgeGrace,
			Time:                  config.Time,
			Timeout:               config.Timeout,
		}),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_recovery.UnaryServerInterceptor(),
			grpcLoggingInterceptor(log),
			grpcMetricsInterceptor(metric),
		)),
	}

	server := &GRPC{
		handler: grpc.NewServer(opts...),
		health:  health.NewServer(),
		log:     log,
		metric:  metric,
		config:  config,
	}

	healthpb.RegisterHealthServer(server.handler, server.health)
	server.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	server.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Register reflection service for gRPC debugging
	reflection.Register(server.handler)

	return server
}

// Start starts the gRPC server
func (s *GRPC) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Stop is called
func (s *GRPC) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("gRPC server is already running")
	}
	s.listener = listener
	s.isRunning = true
	s.mu.Unlock()

	s.log.Info().Msgf("Starting gRPC server on %s", listener.Addr())
	return s.handler.Serve(listener)
}

// Stop gracefully shuts down the gRPC server
func (s *GRPC) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.handler == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down gRPC server...")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.handler.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.handler.Stop()
	}

	s.isRunning = false
	s.log.Info().Msg("gRPC server stopped")
	return nil
}

// IsRunning returns true if the gRPC server is currently running
func (s *GRPC) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetName returns the name of the server implementation
func (s *GRPC) GetName() string {
	return "gRPC"
}

// GetServer returns the underlying gRPC server for service registration
func (s *GRPC) GetServer() *grpc.Server {
	return s.handler
}

// SetServingStatus updates the status reported for the miner service
func (s *GRPC) SetServingStatus(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}
