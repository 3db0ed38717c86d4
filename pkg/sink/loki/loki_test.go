package loki

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
	"github.com/kumarabd/ingestion-plane/miner/pkg/miner"
	"github.com/kumarabd/ingestion-plane/miner/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoki records every push it receives
type fakeLoki struct {
	mu      sync.Mutex
	pushes  []lokiPush
	failFor int32 // number of requests answered with 503 before accepting
	calls   atomic.Int32
}

func (f *fakeLoki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.calls.Add(1)
	if r.URL.Path != "/loki/api/v1/push" || r.Header.Get("Content-Encoding") != "gzip" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if n <= f.failFor {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var p lokiPush
	if err := json.NewDecoder(gz).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.pushes = append(f.pushes, p)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeLoki) streams() []lokiStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []lokiStream
	for _, p := range f.pushes {
		out = append(out, p.Streams...)
	}
	return out
}

func newSink(t *testing.T, addr string) *Sink {
	t.Helper()
	log, err := logger.New("test", logger.Options{Format: logger.JSONLogFormat})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Addr = addr
	cfg.FlushInterval = 10 * time.Millisecond
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	cfg.Labels.Static = map[string]string{"job": "miner"}
	return New(cfg, nil, log)
}

func mined(id, message string, labels map[string]string) miner.Mined {
	return miner.Mined{
		Line:   logtypes.Line{Message: message, Labels: labels, Timestamp: time.Unix(0, 42)},
		Result: types.TemplateResult{TemplateID: id},
	}
}

func TestEntryLabels(t *testing.T) {
	s := newSink(t, "http://unused")

	e := s.Entry(mined("abcd1234", "user bob logged in", map[string]string{
		"service": "auth",
		"pod":     "auth-0",
		"trace":   "dropped",
	}))

	assert.Equal(t, map[string]string{
		"service":     "auth",
		"pod":         "auth-0",
		"job":         "miner",
		TemplateLabel: "abcd1234",
	}, e.Labels)
	assert.Equal(t, "user bob logged in", e.Line)
	assert.Equal(t, int64(42), e.Timestamp.UnixNano())
}

func TestStreamKeyIsOrderIndependent(t *testing.T) {
	a := streamKey(map[string]string{"a": "1", "b": "2"})
	b := streamKey(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
	assert.Equal(t, "a=1,b=2", a)
}

func TestConsumePushesOneStreamPerTemplate(t *testing.T) {
	loki := &fakeLoki{}
	srv := httptest.NewServer(loki)
	defer srv.Close()

	s := newSink(t, srv.URL)
	s.Start()

	in := make(chan miner.Mined, 4)
	in <- mined("t1", "user alice logged in", nil)
	in <- mined("t1", "user bob logged in", nil)
	in <- mined("t2", "disk full", nil)
	in <- mined("", "", nil)
	close(in)
	s.Consume(in)

	s.Stop(context.Background())
	assert.Equal(t, 0, s.Buffered())

	byTemplate := map[string][]string{}
	for _, st := range loki.streams() {
		assert.Equal(t, "miner", st.Stream["job"])
		for _, v := range st.Values {
			byTemplate[st.Stream[TemplateLabel]] = append(byTemplate[st.Stream[TemplateLabel]], v[1])
		}
	}
	assert.Equal(t, map[string][]string{
		"t1": {"user alice logged in", "user bob logged in"},
		"t2": {"disk full"},
	}, byTemplate)
}

func TestPushRetriesTransientFailures(t *testing.T) {
	loki := &fakeLoki{failFor: 2}
	srv := httptest.NewServer(loki)
	defer srv.Close()

	s := newSink(t, srv.URL)
	s.Enqueue(s.Entry(mined("t1", "hello", nil)))
	s.flushAll(context.Background())

	assert.Equal(t, int32(3), loki.calls.Load())
	require.Len(t, loki.streams(), 1)
	assert.Equal(t, 0, s.Buffered())
}

func TestPushGivesUpOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := newSink(t, srv.URL)
	s.Enqueue(s.Entry(mined("t1", "hello", nil)))
	s.flushAll(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, s.Buffered())
}

func TestEnqueueDropsWhenBufferFull(t *testing.T) {
	s := newSink(t, "http://unused")
	s.config.MaxBufferEntries = 2

	for i := 0; i < 5; i++ {
		s.Enqueue(s.Entry(mined("t1", "line", nil)))
	}
	assert.Equal(t, 2, s.Buffered())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryable(tt.status), "status %d", tt.status)
	}
}

func TestBreaker(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	assert.False(t, b.Open())
	b.Fail()
	assert.False(t, b.Open())
	b.Fail()
	assert.True(t, b.Open())

	now = now.Add(2 * time.Minute)
	assert.False(t, b.Open(), "half-open after the cool-down")

	b.Success()
	b.Fail()
	assert.False(t, b.Open())

	disabled := NewBreaker(0, time.Minute)
	disabled.Fail()
	assert.False(t, disabled.Open())
}

func TestOpenBreakerSkipsPushes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := newSink(t, srv.URL)
	s.breaker = NewBreaker(1, time.Hour)

	s.Enqueue(s.Entry(mined("t1", "first", nil)))
	s.flushAll(context.Background())
	s.Enqueue(s.Entry(mined("t1", "second", nil)))
	s.flushAll(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, s.Buffered())
}
