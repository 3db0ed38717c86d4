package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	registry *prometheus.Registry

	RequestsReceived     *prometheus.CounterVec
	IngestBatchesTotal   *prometheus.CounterVec
	IngestRecordsTotal   *prometheus.CounterVec
	IngestRejectedTotal  *prometheus.CounterVec
	IngestHandlerLatency *prometheus.HistogramVec

	LinesTotal           *prometheus.CounterVec
	TemplatesLive        prometheus.Gauge
	MergesTotal          prometheus.Counter
	MergeRejectionsTotal *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	GeneratorFallbacks   prometheus.Counter
	BatchFlushesTotal    *prometheus.CounterVec

	GRPCRequestsTotal  *prometheus.CounterVec
	GRPCRequestLatency *prometheus.HistogramVec

	SinkEnqueuedTotal prometheus.Counter
	SinkDroppedTotal  *prometheus.CounterVec
	SinkFlushesTotal  *prometheus.CounterVec
	SinkFlushLatency  prometheus.Histogram
	SinkBufferedLines prometheus.Gauge
	SinkStreamsActive prometheus.Gauge
}

type Options struct {
	// Additional labels necessary
}

// New creates a handler whose collectors live in their own registry, so several
// handlers can coexist in one process
func New(name string) (*Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"app": name}

	return &Handler{
		registry: reg,
		RequestsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_received",
			ConstLabels: constLabels,
			Help:        "The total number of http requests received",
		}, []string{"status"}),
		IngestBatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "ingest_batches_total",
			ConstLabels: constLabels,
			Help:        "The total number of batches ingested",
		}, []string{"source"}),
		IngestRecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "ingest_records_total",
			ConstLabels: constLabels,
			Help:        "The total number of records ingested",
		}, []string{"source"}),
		IngestRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "ingest_rejected_total",
			ConstLabels: constLabels,
			Help:        "The total number of batches rejected",
		}, []string{"reason"}),
		IngestHandlerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "ingest_handler_latency_seconds",
			ConstLabels: constLabels,
			Help:        "The latency of ingest handler requests",
			Buckets:     prometheus.DefBuckets,
		}, []string{"source", "success"}),
		LinesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "miner_lines_total",
			ConstLabels: constLabels,
			Help:        "The total number of lines mined, by outcome",
		}, []string{"result"}),
		TemplatesLive: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "miner_templates_live",
			ConstLabels: constLabels,
			Help:        "The number of live templates in the trie",
		}),
		MergesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "miner_merges_total",
			ConstLabels: constLabels,
			Help:        "The total number of accepted template merges",
		}),
		MergeRejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "miner_merge_rejections_total",
			ConstLabels: constLabels,
			Help:        "The total number of refused template merges, by reason",
		}, []string{"reason"}),
		SearchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "miner_search_latency_seconds",
			ConstLabels: constLabels,
			Help:        "The latency of trie searches",
			Buckets:     []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"matched"}),
		GeneratorFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name:        "miner_generator_fallbacks_total",
			ConstLabels: constLabels,
			Help:        "The total number of lines whose generated template was replaced by the heuristic one",
		}),
		BatchFlushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "miner_batch_flushes_total",
			ConstLabels: constLabels,
			Help:        "The total number of batch flushes, by trigger",
		}, []string{"reason"}),
		GRPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "grpc_requests_total",
			ConstLabels: constLabels,
			Help:        "The total number of gRPC requests",
		}, []string{"method", "status"}),
		GRPCRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "grpc_request_latency_seconds",
			ConstLabels: constLabels,
			Help:        "The latency of gRPC requests",
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "status"}),
		SinkEnqueuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sink_enqueued_total",
			ConstLabels: constLabels,
			Help:        "The total number of mined lines buffered for the sink",
		}),
		SinkDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "sink_dropped_total",
			ConstLabels: constLabels,
			Help:        "The total number of mined lines the sink dropped, by reason",
		}, []string{"reason"}),
		SinkFlushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "sink_flushes_total",
			ConstLabels: constLabels,
			Help:        "The total number of sink pushes, by status",
		}, []string{"status"}),
		SinkFlushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "sink_flush_latency_seconds",
			ConstLabels: constLabels,
			Help:        "The latency of sink pushes including retries",
			Buckets:     prometheus.DefBuckets,
		}),
		SinkBufferedLines: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "sink_buffered_lines",
			ConstLabels: constLabels,
			Help:        "The number of lines waiting in the sink",
		}),
		SinkStreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "sink_streams_active",
			ConstLabels: constLabels,
			Help:        "The number of streams buffered in the sink",
		}),
	}, nil
}

// Registry returns the registry the handler's collectors are registered with
func (h *Handler) Registry() *prometheus.Registry {
	return h.registry
}

// HTTPHandler serves the handler's registry in the Prometheus exposition format
func (h *Handler) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry})
}

// IncIngestBatchesTotal increments the ingest batches counter
func (h *Handler) IncIngestBatchesTotal(source string) {
	h.IngestBatchesTotal.WithLabelValues(source).Inc()
}

// AddIngestRecordsTotal adds n to the ingest records counter
func (h *Handler) AddIngestRecordsTotal(source string, n int) {
	h.IngestRecordsTotal.WithLabelValues(source).Add(float64(n))
}

// IncIngestRejectedTotal increments the ingest rejected counter
func (h *Handler) IncIngestRejectedTotal(reason string) {
	h.IngestRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveIngestHandlerLatency records the latency of ingest handler requests
func (h *Handler) ObserveIngestHandlerLatency(duration time.Duration, source string, success bool) {
	h.IngestHandlerLatency.WithLabelValues(source, boolLabel(success)).Observe(duration.Seconds())
}

// IncLines counts a mined line by outcome (matched, new, merged, empty)
func (h *Handler) IncLines(result string) {
	h.LinesTotal.WithLabelValues(result).Inc()
}

// SetTemplatesLive records the number of live templates
func (h *Handler) SetTemplatesLive(n int) {
	h.TemplatesLive.Set(float64(n))
}

// IncMerges counts an accepted merge
func (h *Handler) IncMerges() {
	h.MergesTotal.Inc()
}

// IncMergeRejection counts a refused merge
func (h *Handler) IncMergeRejection(reason string) {
	h.MergeRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveSearchLatency records the latency of one trie search
func (h *Handler) ObserveSearchLatency(duration time.Duration, matched bool) {
	h.SearchLatency.WithLabelValues(boolLabel(matched)).Observe(duration.Seconds())
}

// IncGeneratorFallbacks counts a heuristic fallback
func (h *Handler) IncGeneratorFallbacks() {
	h.GeneratorFallbacks.Inc()
}

// IncBatchFlush counts a batch flush by trigger (full, timer, stop)
func (h *Handler) IncBatchFlush(reason string) {
	h.BatchFlushesTotal.WithLabelValues(reason).Inc()
}

// ObserveGRPCRequest records one unary gRPC call
func (h *Handler) ObserveGRPCRequest(method string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	h.GRPCRequestsTotal.WithLabelValues(method, status).Inc()
	h.GRPCRequestLatency.WithLabelValues(method, status).Observe(duration.Seconds())
}

// IncSinkEnqueued counts a line buffered by the sink
func (h *Handler) IncSinkEnqueued() {
	h.SinkEnqueuedTotal.Inc()
}

// IncSinkDropped counts a line the sink gave up on
func (h *Handler) IncSinkDropped(reason string) {
	h.SinkDroppedTotal.WithLabelValues(reason).Inc()
}

// IncSinkFlush counts a push by status (success, fail)
func (h *Handler) IncSinkFlush(status string) {
	h.SinkFlushesTotal.WithLabelValues(status).Inc()
}

// ObserveSinkFlushLatency records the latency of one push
func (h *Handler) ObserveSinkFlushLatency(duration time.Duration) {
	h.SinkFlushLatency.Observe(duration.Seconds())
}

// SetSinkBuffer records the sink's buffered lines and streams
func (h *Handler) SetSinkBuffer(lines, streams int) {
	h.SinkBufferedLines.Set(float64(lines))
	h.SinkStreamsActive.Set(float64(streams))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
