package miner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
	"github.com/kumarabd/ingestion-plane/miner/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeProcessor struct {
	mu      sync.Mutex
	batches [][]logtypes.Line
	err     error
}

func (p *fakeProcessor) Process(_ context.Context, lines []logtypes.Line) ([]types.TemplateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]logtypes.Line(nil), lines...))
	if p.err != nil {
		return nil, p.err
	}
	out := make([]types.TemplateResult, len(lines))
	for i := range lines {
		out[i] = types.TemplateResult{RecordIndex: int32(i), Template: lines[i].Message}
	}
	return out, nil
}

func (p *fakeProcessor) sizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n []int
	for _, b := range p.batches {
		n = append(n, len(b))
	}
	return n
}

// go-cache runs a janitor goroutine for the lifetime of each cache
func leakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	}
}

func testLogger(t *testing.T) *logger.Handler {
	t.Helper()
	log, err := logger.New("test", logger.Options{Format: logger.JSONLogFormat})
	require.NoError(t, err)
	return log
}

func TestBatcherFlushesWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions()...)

	in := make(chan logtypes.Line)
	out := make(chan Mined, 10)
	proc := &fakeProcessor{}
	m := newRecordingMetrics()
	b := NewBatcher(2, time.Hour, in, out, proc, m, testLogger(t))
	b.Start()

	in <- logtypes.Line{Message: "a"}
	in <- logtypes.Line{Message: "b"}

	for _, want := range []string{"a", "b"} {
		select {
		case got := <-out:
			assert.Equal(t, want, got.Line.Message)
			assert.Equal(t, want, got.Result.Template)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for mined line")
		}
	}

	b.Stop()
	assert.Equal(t, []int{2}, proc.sizes())
	assert.Equal(t, 1, m.flushes["full"])
}

func TestBatcherFlushesOnTimer(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions()...)

	in := make(chan logtypes.Line)
	proc := &fakeProcessor{}
	b := NewBatcher(100, 10*time.Millisecond, in, nil, proc, nil, testLogger(t))
	b.Start()

	in <- logtypes.Line{Message: "a"}
	assert.Eventually(t, func() bool {
		return len(proc.sizes()) == 1
	}, time.Second, 5*time.Millisecond)

	b.Stop()
}

func TestBatcherFlushesOnStop(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions()...)

	in := make(chan logtypes.Line, 3)
	proc := &fakeProcessor{err: errors.New("boom")}
	b := NewBatcher(100, time.Hour, in, nil, proc, nil, testLogger(t))

	in <- logtypes.Line{Message: "a"}
	in <- logtypes.Line{Message: "b"}
	b.Start()
	assert.Eventually(t, func() bool {
		return len(in) == 0
	}, time.Second, time.Millisecond)
	b.Stop()

	assert.Equal(t, []int{2}, proc.sizes())
}

func TestBatcherDrivesService(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions()...)

	s := newService(t, nil)
	in := make(chan logtypes.Line)
	b := NewBatcher(10, 5*time.Millisecond, in, nil, s, nil, testLogger(t))
	b.Start()

	in <- logtypes.Line{ID: 1, Message: "User alice logged in"}
	in <- logtypes.Line{ID: 2, Message: "User bob logged in"}
	close(in)
	b.Stop()

	entries := s.Templates()
	require.Len(t, entries, 1)
	assert.Equal(t, "User {variables} logged in", entries[0].Template)
	assert.ElementsMatch(t, []int{1, 2}, entries[0].LineIDs)
}
