package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/internal/metrics"
	"github.com/kumarabd/ingestion-plane/miner/pkg/ingest"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
	"github.com/kumarabd/ingestion-plane/miner/pkg/miner"
	"github.com/kumarabd/ingestion-plane/miner/pkg/sink/loki"
)

// HTTPConfig contains configuration for the HTTP server
type HTTPConfig struct {
	Host         string          `json:"host" yaml:"host" default:"0.0.0.0"`
	Port         string          `json:"port" yaml:"port" default:"8080"`
	ReadTimeout  time.Duration   `json:"read_timeout" yaml:"read_timeout" default:"30s"`
	WriteTimeout time.Duration   `json:"write_timeout" yaml:"write_timeout" default:"30s"`
	IdleTimeout  time.Duration   `json:"idle_timeout" yaml:"idle_timeout" default:"60s"`
	Bounds       *BoundsConfig   `json:"bounds" yaml:"bounds"`
	Pipeline     *PipelineConfig `json:"pipeline" yaml:"pipeline"`
}

// BoundsConfig contains bounds configuration for ingestion
type BoundsConfig struct {
	MaxBatch        int `json:"max_batch" yaml:"max_batch" default:"1000"`
	MaxMessageBytes int `json:"max_message_bytes" yaml:"max_message_bytes" default:"65536"`
}

// PipelineConfig contains pipeline configuration
type PipelineConfig struct {
	EnqueueTimeout time.Duration `json:"enqueue_timeout" yaml:"enqueue_timeout" default:"5s"`
}

// queuedItem represents a batch queued for the miner
type queuedItem struct {
	Source string
	Batch  logtypes.Batch
}

// HTTP implements the Server interface for HTTP
type HTTP struct {
	handler   *gin.Engine
	miner     *miner.Service
	ingest    *ingest.Handler
	log       *logger.Handler
	metric    *metrics.Handler
	config    *HTTPConfig
	server    *http.Server
	isRunning bool
	mu        sync.RWMutex

	// Raw worker components
	rawQueue     chan queuedItem
	lineQueue    chan logtypes.Line
	batcher      *miner.Batcher
	minedQueue   chan miner.Mined // nil without a sink
	sink         *loki.Sink
	sinkDone     chan struct{}
	workerCtx    context.Context
	workerCancel context.CancelFunc
	workerWg     sync.WaitGroup
}

// NewHTTP creates a new HTTP server instance. Lines mined from the asynchronous
// intake are forwarded to sink when it is not nil.
func NewHTTP(config *HTTPConfig, minerConfig *miner.Config, svc *miner.Service, in *ingest.Handler, sink *loki.Sink, l *logger.Handler, m *metrics.Handler) *HTTP {
	gin.SetMode(gin.ReleaseMode)

	// Set up default configuration if not provided
	if config.Bounds == nil {
		config.Bounds = &BoundsConfig{
			MaxBatch:        1000,
			MaxMessageBytes: 65536,
		}
	}
	if config.Pipeline == nil {
		config.Pipeline = &PipelineConfig{
			EnqueueTimeout: 5 * time.Second,
		}
	}
	if minerConfig == nil {
		minerConfig = miner.DefaultConfig()
	}
	if in == nil {
		in = ingest.NewHandler(&ingest.Config{
			MaxMessageBytes: config.Bounds.MaxMessageBytes,
			MaxBatchSize:    config.Bounds.MaxBatch,
			MaxLabels:       100,
			ValidateUTF8:    true,
		})
	}

	lineQueue := make(chan logtypes.Line, minerConfig.QueueSize)
	var minedQueue chan miner.Mined
	var output chan<- miner.Mined
	if sink != nil {
		minedQueue = make(chan miner.Mined, minerConfig.QueueSize)
		output = minedQueue
	}

	server := &HTTP{
		handler:    gin.New(),
		miner:      svc,
		ingest:     in,
		log:        l,
		metric:     m,
		config:     config,
		rawQueue:   make(chan queuedItem, config.Bounds.MaxBatch*2), // Buffer for 2x max batch size
		lineQueue:  lineQueue,
		minedQueue: minedQueue,
		sink:       sink,
		batcher:    miner.NewBatcher(minerConfig.MaxBatch, minerConfig.MaxBatchWait, lineQueue, output, svc, miner.NewMetrics(m), l),
	}

	// Add global middleware
	server.handler.Use(gin.Recovery())
	server.handler.Use(server.loggingMiddleware())
	server.handler.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Content-Encoding", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and raw worker
func (s *HTTP) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("HTTP server is already running")
	}

	s.startRawWorker()

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.isRunning = true
	srv := s.server
	s.mu.Unlock()

	s.log.Info().Msgf("Starting HTTP server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server and raw worker
func (s *HTTP) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.server == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("Error during HTTP server shutdown")
		return err
	}
	s.stopRawWorker(ctx)

	s.isRunning = false
	s.log.Info().Msg("HTTP server stopped")
	return nil
}

// IsRunning returns true if the HTTP server is currently running
func (s *HTTP) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetName returns the name of the server implementation
func (s *HTTP) GetName() string {
	return "HTTP"
}

// GetHandler returns the gin engine for adding routes
func (s *HTTP) GetHandler() *gin.Engine {
	return s.handler
}

// setupRoutes adds HTTP-specific routes
func (s *HTTP) setupRoutes() {
	v1 := s.handler.Group("/v1")
	v1.POST("/parse", s.parseHandler)
	v1.POST("/search", s.searchHandler)
	v1.GET("/templates", s.listTemplatesHandler)
	v1.POST("/templates", s.insertTemplateHandler)
	v1.DELETE("/templates", s.deleteTemplateHandler)

	// Asynchronous intake, mined by the batcher
	s.handler.POST("/loki/api/v1/push", func(c *gin.Context) {
		s.lokiHandler(c, time.Now())
	})
	v1.POST("/ingest/otlp", func(c *gin.Context) {
		s.otlpHandler(c, time.Now())
	})

	// Health and metrics endpoints
	s.handler.GET("/healthz", s.healthHandler)
	s.handler.GET("/metrics", s.metricsHandler)
}

// getBodyReader returns a reader for the request body, handling gzip decompression if needed
func getBodyReader(r *http.Request) (io.ReadCloser, error) {
	if r.Body == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Encoding")), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		return gz, nil
	}
	return r.Body, nil
}

// healthHandler handles health check endpoint
func (s *HTTP) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"time":      time.Now().UTC(),
		"templates": s.miner.Len(),
	})
}

// metricsHandler handles metrics endpoint
func (s *HTTP) metricsHandler(c *gin.Context) {
	if s.metric == nil {
		c.Status(http.StatusNotFound)
		return
	}
	s.metric.HTTPHandler().ServeHTTP(c.Writer, c.Request)
}

// loggingMiddleware adds request logging
func (s *HTTP) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.log.Info().
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status", param.StatusCode).
			Dur("latency", param.Latency).
			Str("client_ip", param.ClientIP).
			Str("user_agent", param.Request.UserAgent()).
			Msg("HTTP Request")
		if s.metric != nil {
			s.metric.RequestsReceived.WithLabelValues(fmt.Sprintf("%d", param.StatusCode)).Inc()
		}
		return ""
	})
}

// startRawWorker starts the sink, the batcher and the goroutine that feeds it
func (s *HTTP) startRawWorker() {
	s.workerCtx, s.workerCancel = context.WithCancel(context.Background())
	if s.sink != nil {
		s.sink.Start()
		s.sinkDone = make(chan struct{})
		go func() {
			defer close(s.sinkDone)
			s.sink.Consume(s.minedQueue)
		}()
	}
	s.batcher.Start()
	s.workerWg.Add(1)
	go s.runRawWorker()
	s.log.Info().Msg("Raw worker started")
}

// stopRawWorker stops the feeding goroutine, flushes the batcher, then drains the sink
func (s *HTTP) stopRawWorker(ctx context.Context) {
	s.log.Info().Msg("Stopping raw worker...")
	s.workerCancel()
	s.workerWg.Wait()
	s.batcher.Stop()
	if s.sink != nil {
		close(s.minedQueue)
		<-s.sinkDone
		s.sink.Stop(ctx)
	}
	s.log.Info().Msg("Raw worker stopped")
}

// runRawWorker normalizes queued batches and hands their lines to the batcher
func (s *HTTP) runRawWorker() {
	defer s.workerWg.Done()

	for {
		select {
		case item := <-s.rawQueue:
			batch, skipped, err := s.ingest.NormalizeBatch(&item.Batch)
			if err != nil {
				s.log.Error().Err(err).Str("source", item.Source).Msg("Failed to normalize batch")
				continue
			}
			if skipped > 0 && s.metric != nil {
				s.metric.IncIngestRejectedTotal("invalid_line")
			}
			for _, line := range batch.Records {
				select {
				case s.lineQueue <- line:
				case <-s.workerCtx.Done():
					return
				}
			}
		case <-s.workerCtx.Done():
			s.log.Info().Msg("Raw worker shutting down")
			return
		}
	}
}

// enqueueRawBatch enqueues a batch for background mining with timeout handling
func (s *HTTP) enqueueRawBatch(ctx context.Context, source string, batch logtypes.Batch) error {
	item := queuedItem{
		Source: source,
		Batch:  batch,
	}

	timer := time.NewTimer(s.config.Pipeline.EnqueueTimeout)
	defer timer.Stop()

	select {
	case s.rawQueue <- item:
		return nil
	case <-timer.C:
		return fmt.Errorf("enqueue timeout after %v", s.config.Pipeline.EnqueueTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// accept validates and enqueues an intake batch, writing the response
func (s *HTTP) accept(c *gin.Context, start time.Time, source string, batch logtypes.Batch) {
	success := false
	defer func() {
		if s.metric != nil {
			s.metric.ObserveIngestHandlerLatency(time.Since(start), source, success)
		}
	}()

	switch {
	case len(batch.Records) == 0:
		s.reject(c, http.StatusBadRequest, "empty_batch", "empty batch")
		return
	case len(batch.Records) > s.config.Bounds.MaxBatch:
		s.reject(c, http.StatusRequestEntityTooLarge, "batch_too_large", "batch too large")
		return
	}

	if err := s.enqueueRawBatch(c.Request.Context(), source, batch); err != nil {
		s.log.Warn().Err(err).Str("source", source).Msg("Failed to enqueue batch")
		s.reject(c, http.StatusServiceUnavailable, "enqueue_timeout", "service busy, please retry")
		return
	}

	success = true
	if s.metric != nil {
		s.metric.IncIngestBatchesTotal(source)
		s.metric.AddIngestRecordsTotal(source, len(batch.Records))
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"accepted": len(batch.Records),
	})
}

func (s *HTTP) reject(c *gin.Context, status int, reason, message string) {
	if s.metric != nil {
		s.metric.IncIngestRejectedTotal(reason)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
