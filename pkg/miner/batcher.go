package miner

import (
	"context"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
	"github.com/kumarabd/ingestion-plane/miner/pkg/types"
)

// Processor assigns templates to a batch of lines
type Processor interface {
	Process(ctx context.Context, lines []logtypes.Line) ([]types.TemplateResult, error)
}

// Mined pairs a line with the template it was assigned
type Mined struct {
	Line   logtypes.Line
	Result types.TemplateResult
}

// Batcher drains a line channel into a Processor in size- or time-bounded
// batches. It is the single writer for streamed input.
type Batcher struct {
	maxBatch int
	maxWait  time.Duration
	inputCh  <-chan logtypes.Line
	outputCh chan<- Mined // optional
	proc     Processor
	metrics  Metrics
	log      *logger.Handler
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBatcher creates a new miner batcher. outputCh may be nil when results are not consumed.
func NewBatcher(
	maxBatch int,
	maxWait time.Duration,
	inputCh <-chan logtypes.Line,
	outputCh chan<- Mined,
	proc Processor,
	metrics Metrics,
	log *logger.Handler,
) *Batcher {
	if maxBatch <= 0 {
		maxBatch = 1
	}
	if maxWait <= 0 {
		maxWait = 25 * time.Millisecond
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Batcher{
		maxBatch: maxBatch,
		maxWait:  maxWait,
		inputCh:  inputCh,
		outputCh: outputCh,
		proc:     proc,
		metrics:  metrics,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the miner batcher
func (b *Batcher) Start() {
	go b.run()
}

// Stop flushes pending lines and waits for the batcher to exit
func (b *Batcher) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

// run is the main processing loop for the batcher
func (b *Batcher) run() {
	defer close(b.doneCh)

	buf := make([]logtypes.Line, 0, b.maxBatch)
	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()

	flush := func(reason string) {
		if len(buf) == 0 {
			return
		}
		b.metrics.IncBatchFlush(reason)

		results, err := b.proc.Process(context.Background(), buf)
		if err != nil {
			b.log.Error().Err(err).
				Int("batch_size", len(buf)).
				Int("processed", len(results)).
				Msg("miner batch failed")
		}

		if b.outputCh != nil {
			for i, r := range results {
				b.outputCh <- Mined{Line: buf[i], Result: r}
			}
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-b.stopCh:
			flush("stop")
			return
		case line, ok := <-b.inputCh:
			if !ok {
				flush("closed")
				return
			}
			buf = append(buf, line)
			if len(buf) >= b.maxBatch {
				flush("full")
				timer.Reset(b.maxWait)
			}
		case <-timer.C:
			flush("timer")
			timer.Reset(b.maxWait)
		}
	}
}
