package loki

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/internal/metrics"
	"github.com/kumarabd/ingestion-plane/miner/pkg/miner"
)

// TemplateLabel is the stream label carrying the id of a line's template
const TemplateLabel = "template_id"

// Entry is one mined line waiting to be pushed
type Entry struct {
	Timestamp time.Time
	Labels    map[string]string
	Line      string
}

// streamBuffer holds the entries of one label set until they are flushed
type streamBuffer struct {
	labels   map[string]string
	entries  []Entry
	bytes    int // rough running total of payload bytes
	lastPush time.Time
}

// Config contains configuration for the Loki sink
type Config struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" default:"false"`
	Addr             string        `json:"addr" yaml:"addr" default:"http://loki:3100"`
	FlushInterval    time.Duration `json:"flush_interval" yaml:"flush_interval" default:"400ms"`
	MaxBatchBytes    int           `json:"max_batch_bytes" yaml:"max_batch_bytes" default:"1000000"`
	MaxBatchEntries  int           `json:"max_batch_entries" yaml:"max_batch_entries" default:"5000"`
	MaxBufferEntries int           `json:"max_buffer_entries" yaml:"max_buffer_entries" default:"1000000"`
	RequestTimeout   time.Duration `json:"request_timeout" yaml:"request_timeout" default:"5s"`
	Retry            RetryConfig   `json:"retry" yaml:"retry"`
	Breaker          BreakerConfig `json:"breaker" yaml:"breaker"`
	Labels           LabelConfig   `json:"labels" yaml:"labels"`
}

// RetryConfig contains retry configuration
type RetryConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" default:"true"`
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff" default:"200ms"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff" default:"5s"`
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts" default:"5"`
}

// BreakerConfig controls when pushes are skipped after repeated failures
type BreakerConfig struct {
	MaxFailures int           `json:"max_failures" yaml:"max_failures" default:"5"` // 0 disables the breaker
	Timeout     time.Duration `json:"timeout" yaml:"timeout" default:"30s"`
}

// LabelConfig selects the labels a pushed stream carries besides the template id
type LabelConfig struct {
	Static map[string]string `json:"static" yaml:"static"`
	Keep   []string          `json:"keep" yaml:"keep"` // line labels copied onto the stream
}

// DefaultConfig returns a disabled sink configuration with the defaults filled in
func DefaultConfig() *Config {
	return &Config{
		Addr:             "http://loki:3100",
		FlushInterval:    400 * time.Millisecond,
		MaxBatchBytes:    1000000,
		MaxBatchEntries:  5000,
		MaxBufferEntries: 1000000,
		RequestTimeout:   5 * time.Second,
		Retry: RetryConfig{
			Enabled:        true,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			MaxAttempts:    5,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Labels: LabelConfig{
			Keep: []string{"service", "env", "severity", "namespace", "pod"},
		},
	}
}

// Metrics records the sink's activity
type Metrics interface {
	IncSinkEnqueued()
	IncSinkDropped(reason string)
	IncSinkFlush(status string)
	ObserveSinkFlushLatency(duration time.Duration)
	SetSinkBuffer(lines, streams int)
}

// NewMetrics returns m as sink metrics, or a recorder that discards everything when m is nil
func NewMetrics(m *metrics.Handler) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

type noopMetrics struct{}

func (noopMetrics) IncSinkEnqueued()                      {}
func (noopMetrics) IncSinkDropped(string)                 {}
func (noopMetrics) IncSinkFlush(string)                   {}
func (noopMetrics) ObserveSinkFlushLatency(time.Duration) {}
func (noopMetrics) SetSinkBuffer(int, int)                {}

// Sink pushes mined lines to Loki, one stream per template and label set
type Sink struct {
	client  *http.Client
	config  *Config
	keep    map[string]struct{}
	breaker *Breaker

	// state
	mu       sync.Mutex
	streams  map[string]*streamBuffer // key -> buffer
	buffered int

	// worker management
	stopCh chan struct{}
	doneCh chan struct{}

	metrics Metrics
	log     *logger.Handler
}

// New creates a new Loki sink
func New(cfg *Config, m Metrics, log *logger.Handler) *Sink {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if m == nil {
		m = noopMetrics{}
	}

	keep := make(map[string]struct{}, len(cfg.Labels.Keep))
	for _, k := range cfg.Labels.Keep {
		keep[k] = struct{}{}
	}

	// Create HTTP client with sensible defaults
	client := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Sink{
		client:  client,
		config:  cfg,
		keep:    keep,
		breaker: NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout),
		streams: make(map[string]*streamBuffer),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		metrics: m,
		log:     log,
	}
}

// Start starts the periodic flush loop
func (s *Sink) Start() {
	ticker := time.NewTicker(s.config.FlushInterval)
	go func() {
		defer close(s.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.flushDue()
			case <-s.stopCh:
				return
			}
		}
	}()
	s.log.Info().Str("addr", s.config.Addr).Msg("Loki sink started")
}

// Stop stops the flush loop and pushes whatever is still buffered
func (s *Sink) Stop(ctx context.Context) {
	close(s.stopCh)
	<-s.doneCh
	s.flushAll(ctx)
	s.log.Info().Msg("Loki sink stopped")
}

// Consume buffers every mined line received on in until in is closed
func (s *Sink) Consume(in <-chan miner.Mined) {
	for m := range in {
		if m.Result.TemplateID == "" {
			continue
		}
		s.Enqueue(s.Entry(m))
	}
}

// Entry converts a mined line into the entry pushed for it
func (s *Sink) Entry(m miner.Mined) Entry {
	labels := make(map[string]string, len(s.keep)+len(s.config.Labels.Static)+1)
	for k, v := range m.Line.Labels {
		if _, ok := s.keep[k]; ok {
			labels[k] = v
		}
	}
	for k, v := range s.config.Labels.Static {
		labels[k] = v
	}
	labels[TemplateLabel] = m.Result.TemplateID

	ts := m.Line.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Entry{Timestamp: ts, Labels: labels, Line: m.Line.Message}
}

// Enqueue buffers entries. Entries arriving while the buffer is full are dropped.
func (s *Sink) Enqueue(entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if s.buffered >= s.config.MaxBufferEntries {
			s.metrics.IncSinkDropped("buffer_full")
			continue
		}

		key := streamKey(e.Labels)
		buf := s.streams[key]
		if buf == nil {
			buf = &streamBuffer{labels: e.Labels, lastPush: time.Now()}
			s.streams[key] = buf
		}
		buf.entries = append(buf.entries, e)
		buf.bytes += len(e.Line) + 32
		s.buffered++
		s.metrics.IncSinkEnqueued()
	}
	s.metrics.SetSinkBuffer(s.buffered, len(s.streams))
}

// Buffered returns the number of entries waiting to be pushed
func (s *Sink) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

// streamKey computes a stable key for stream grouping
func streamKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}

// flushDue flushes buffers that are full or have waited a whole interval
func (s *Sink) flushDue() {
	now := time.Now()
	var due []string

	s.mu.Lock()
	for k, buf := range s.streams {
		if len(buf.entries) == 0 {
			continue
		}
		if buf.bytes >= s.config.MaxBatchBytes || len(buf.entries) >= s.config.MaxBatchEntries || now.Sub(buf.lastPush) >= s.config.FlushInterval {
			due = append(due, k)
		}
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.FlushInterval*2+s.config.RequestTimeout)
	defer cancel()
	for _, k := range due {
		s.flushStream(ctx, k)
	}
}

// flushAll flushes all streams (used during shutdown)
func (s *Sink) flushAll(ctx context.Context) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.streams))
	for k, buf := range s.streams {
		if len(buf.entries) > 0 {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()

	for _, k := range keys {
		if ctx.Err() != nil {
			return
		}
		s.flushStream(ctx, k)
	}
}

// flushStream pushes the entries of one stream in chunks
func (s *Sink) flushStream(ctx context.Context, key string) {
	// Take ownership of entries (pop under lock)
	s.mu.Lock()
	buf := s.streams[key]
	if buf == nil || len(buf.entries) == 0 {
		s.mu.Unlock()
		return
	}
	entries := buf.entries
	labels := buf.labels
	delete(s.streams, key)
	s.mu.Unlock()

	for start := 0; start < len(entries); {
		end := start + s.config.MaxBatchEntries
		if end > len(entries) || s.config.MaxBatchEntries <= 0 {
			end = len(entries)
		}

		lp := lokiPush{Streams: []lokiStream{{Stream: labels, Values: make([][2]string, 0, end-start)}}}
		approxBytes := 0
		for i := start; i < end; i++ {
			lp.Streams[0].Values = append(lp.Streams[0].Values, [2]string{
				strconv.FormatInt(entries[i].Timestamp.UnixNano(), 10),
				entries[i].Line,
			})
			approxBytes += len(entries[i].Line) + 32
			if approxBytes >= s.config.MaxBatchBytes {
				end = i + 1
				break
			}
		}

		if s.breaker.Open() {
			s.metrics.IncSinkFlush("skipped")
			for i := start; i < end; i++ {
				s.metrics.IncSinkDropped("breaker_open")
			}
			s.release(end - start)
			start = end
			continue
		}

		started := time.Now()
		status, err := s.push(ctx, lp)
		s.metrics.ObserveSinkFlushLatency(time.Since(started))
		if err != nil {
			s.breaker.Fail()
			s.metrics.IncSinkFlush("fail")
			for i := start; i < end; i++ {
				s.metrics.IncSinkDropped("push_failed")
			}
			s.log.Warn().Err(err).
				Int("status", status).
				Str(TemplateLabel, labels[TemplateLabel]).
				Int("entries", end-start).
				Msg("Loki push failed, entries dropped")
		} else {
			s.breaker.Success()
			s.metrics.IncSinkFlush("success")
		}

		s.release(end - start)
		start = end
	}
}

// release forgets n entries that were pushed or dropped
func (s *Sink) release(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffered -= n
	s.metrics.SetSinkBuffer(s.buffered, len(s.streams))
}

// push serializes one payload and posts it with retry
func (s *Sink) push(ctx context.Context, lp lokiPush) (int, error) {
	var body bytes.Buffer
	gz := gzip.NewWriter(&body)
	if err := json.NewEncoder(gz).Encode(lp); err != nil {
		return 0, fmt.Errorf("encode push: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("compress push: %w", err)
	}
	return s.postWithRetry(ctx, body.Bytes())
}

// postWithRetry sends the payload, retrying network errors, 429 and 5xx with jittered backoff
func (s *Sink) postWithRetry(ctx context.Context, body []byte) (int, error) {
	attempts := s.config.Retry.MaxAttempts
	if !s.config.Retry.Enabled || attempts <= 0 {
		attempts = 1
	}
	backoff := s.config.Retry.InitialBackoff

	var (
		status int
		err    error
	)
	for attempt := 1; ; attempt++ {
		status, err = s.post(ctx, body)
		if err == nil {
			return status, nil
		}
		if !retryable(status) || attempt >= attempts {
			return status, err
		}

		d := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		if d > s.config.Retry.MaxBackoff {
			d = s.config.Retry.MaxBackoff
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return status, ctx.Err()
		}
		if backoff < s.config.Retry.MaxBackoff/2 {
			backoff *= 2
		} else {
			backoff = s.config.Retry.MaxBackoff
		}
	}
}

func (s *Sink) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Addr+"/loki/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("loki returned %s", resp.Status)
	}
	return resp.StatusCode, nil
}

// retryable reports whether a push that ended with status may succeed later.
// Status 0 is a transport error.
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

// Loki push format structures
type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}
