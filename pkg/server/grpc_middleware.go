package server

import (
	"context"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/internal/metrics"
	"google.golang.org/grpc"
)

func grpcLoggingInterceptor(log *logger.Handler) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if err != nil {
			log.Error().
				Err(err).
				Str("method", info.FullMethod).
				Dur("latency", time.Since(start)).
				Msg("gRPC Request failed")
		} else {
			log.Debug().
				Str("method", info.FullMethod).
				Dur("latency", time.Since(start)).
				Msg("gRPC Request completed")
		}

		return resp, err
	}
}

func grpcMetricsInterceptor(metric *metrics.Handler) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		if metric != nil {
			metric.ObserveGRPCRequest(info.FullMethod, time.Since(start), err)
		}

		return resp, err
	}
}
