package miner

import (
	"time"

	"github.com/kumarabd/ingestion-plane/miner/internal/metrics"
)

// Metrics interface for miner-specific metrics
type Metrics interface {
	IncLines(result string)
	SetTemplatesLive(n int)
	IncMerges()
	IncMergeRejection(reason string)
	ObserveSearchLatency(duration time.Duration, matched bool)
	IncGeneratorFallbacks()
	IncBatchFlush(reason string)
}

// NewMetrics returns h as a miner Metrics. A nil handler yields a no-op implementation.
func NewMetrics(h *metrics.Handler) Metrics {
	if h == nil {
		return noopMetrics{}
	}
	return h
}

type noopMetrics struct{}

func (noopMetrics) IncLines(string)                          {}
func (noopMetrics) SetTemplatesLive(int)                     {}
func (noopMetrics) IncMerges()                               {}
func (noopMetrics) IncMergeRejection(string)                 {}
func (noopMetrics) ObserveSearchLatency(time.Duration, bool) {}
func (noopMetrics) IncGeneratorFallbacks()                   {}
func (noopMetrics) IncBatchFlush(string)                     {}
