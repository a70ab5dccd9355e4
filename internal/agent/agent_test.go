package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"crawlerd/internal/models"
)

type fakeTransport struct {
	mu        sync.Mutex
	calls     int
	delivered [][]*models.CrawlerEvent
	sendFn    func(call int, events []*models.CrawlerEvent) error
	ping      *models.PingResult
}

func (f *fakeTransport) Send(_ context.Context, events []*models.CrawlerEvent) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fn := f.sendFn
	f.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(call, events)
	}
	if err == nil {
		batch := make([]*models.CrawlerEvent, len(events))
		copy(batch, events)
		f.mu.Lock()
		f.delivered = append(f.delivered, batch)
		f.mu.Unlock()
	}
	return err
}

func (f *fakeTransport) Ping(_ context.Context) (*models.PingResult, error) {
	return f.ping, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) batches() [][]*models.CrawlerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]*models.CrawlerEvent, len(f.delivered))
	copy(out, f.delivered)
	return out
}

func (f *fakeTransport) deliveredPaths() []string {
	var paths []string
	for _, b := range f.batches() {
		for _, ev := range b {
			paths = append(paths, ev.Path)
		}
	}
	return paths
}

var gptbot = &models.CrawlerIdentity{Name: "GPTBot", Company: "OpenAI", Category: models.CategoryAITraining}

func hit(path string) EventInput {
	return EventInput{
		Domain:    "example.com",
		Path:      path,
		UserAgent: "GPTBot/1.2",
		Crawler:   gptbot,
	}
}

func newTestAgent(t *testing.T, cfg Config, tr *fakeTransport, opts ...Option) *Agent {
	t.Helper()
	if cfg.BatchInterval == 0 {
		cfg.BatchInterval = time.Hour
	}
	a, err := New(cfg, append([]Option{WithTransport(tr)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Destroy(ctx)
	})
	return a
}

func TestNew_RequiresEndpointWithoutTransport(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingConfig)

	a, err := New(Config{Endpoint: "http://localhost:8080", APIKey: "k", Compress: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, a.cfg.BatchSize)
	assert.Equal(t, DefaultMaxRetries, a.cfg.MaxRetries)
	assert.NotNil(t, a.compressor)
	require.NoError(t, a.Destroy(context.Background()))
}

func TestAgent_SizeThresholdFlushesFirstBatch(t *testing.T) {
	tr := &fakeTransport{}
	a := newTestAgent(t, Config{BatchSize: 3}, tr)

	for i := 0; i < 5; i++ {
		a.Track(hit(fmt.Sprintf("/page-%d", i)))
	}

	require.Eventually(t, func() bool { return len(tr.batches()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, tr.batches()[0], 3)

	require.NoError(t, a.Flush(context.Background()))
	require.Eventually(t, func() bool { return len(tr.deliveredPaths()) == 5 }, time.Second, 5*time.Millisecond)

	batches := tr.batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[1], 2)
	assert.ElementsMatch(t, []string{"/page-0", "/page-1", "/page-2", "/page-3", "/page-4"}, tr.deliveredPaths())
	assert.Equal(t, 0, a.Len())
}

func TestAgent_IntervalTimerFlushes(t *testing.T) {
	tr := &fakeTransport{}
	a := newTestAgent(t, Config{BatchSize: 50, BatchInterval: 20 * time.Millisecond}, tr)

	a.Track(hit("/only"))
	assert.Equal(t, StateBuffering, a.State())

	require.Eventually(t, func() bool { return len(tr.batches()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/only"}, tr.deliveredPaths())
	assert.Equal(t, StateIdle, a.State())
}

func TestAgent_EventsTrackedDuringFlushGoToNextFlush(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tr := &fakeTransport{sendFn: func(call int, _ []*models.CrawlerEvent) error {
		if call == 1 {
			close(started)
			<-release
		}
		return nil
	}}
	a := newTestAgent(t, Config{BatchSize: 10}, tr)

	a.Track(hit("/a"))
	a.Track(hit("/b"))

	done := make(chan error, 1)
	go func() { done <- a.Flush(context.Background()) }()
	<-started
	assert.Equal(t, StateFlushing, a.State())

	a.Track(hit("/c"))
	a.Track(hit("/d"))
	a.Track(hit("/e"))
	close(release)
	require.NoError(t, <-done)

	batches := tr.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"/a", "/b"}, pathsOf(batches[0]))
	assert.Equal(t, 3, a.Len())

	require.NoError(t, a.Flush(context.Background()))
	batches = tr.batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"/c", "/d", "/e"}, pathsOf(batches[1]))
}

func TestAgent_ConcurrentFlushesAreCoalesced(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tr := &fakeTransport{sendFn: func(call int, _ []*models.CrawlerEvent) error {
		if call == 1 {
			close(started)
			<-release
		}
		return nil
	}}
	a := newTestAgent(t, Config{BatchSize: 100}, tr)

	a.Track(hit("/1"))
	a.Track(hit("/2"))
	done := make(chan error, 1)
	go func() { done <- a.Flush(context.Background()) }()
	<-started

	a.Track(hit("/3"))
	a.Track(hit("/4"))
	for i := 0; i < 3; i++ {
		assert.NoError(t, a.Flush(context.Background()))
	}
	close(release)
	require.NoError(t, <-done)

	require.Eventually(t, func() bool { return tr.callCount() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, tr.callCount(), "three requests collapse into one follow-up")
	assert.ElementsMatch(t, []string{"/1", "/2", "/3", "/4"}, tr.deliveredPaths())
}

func TestAgent_BoundedRetryDropsBatchAndReportsOnce(t *testing.T) {
	tr := &fakeTransport{sendFn: func(_ int, _ []*models.CrawlerEvent) error {
		return &SendError{StatusCode: http.StatusServiceUnavailable}
	}}
	errCount := atomic.NewInt32(0)
	var reported *BatchError
	var mu sync.Mutex
	a := newTestAgent(t, Config{
		BatchSize:      10,
		MaxRetries:     3,
		RetryBaseDelay: 5 * time.Millisecond,
		RetryMaxDelay:  20 * time.Millisecond,
	}, tr, WithOnError(func(be *BatchError) {
		errCount.Inc()
		mu.Lock()
		reported = be
		mu.Unlock()
	}))

	a.Track(hit("/x"))
	a.Track(hit("/y"))
	assert.Error(t, a.Flush(context.Background()))

	require.Eventually(t, func() bool { return errCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, int32(1), errCount.Load())
	assert.Equal(t, 3, tr.callCount())
	assert.Equal(t, 0, a.Len())

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, reported)
	assert.Equal(t, 3, reported.Attempts)
	assert.Len(t, reported.Events, 2)
	var se *SendError
	assert.True(t, errors.As(reported, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestAgent_QueueIsBoundedDuringOutage(t *testing.T) {
	tr := &fakeTransport{sendFn: func(_ int, _ []*models.CrawlerEvent) error {
		return &SendError{StatusCode: http.StatusServiceUnavailable}
	}}
	var mu sync.Mutex
	var evicted []*models.CrawlerEvent
	a := newTestAgent(t, Config{BatchSize: 10, RetryBaseDelay: time.Minute}, tr, WithOnError(func(be *BatchError) {
		if !errors.Is(be, ErrQueueFull) {
			return
		}
		assert.Zero(t, be.Attempts)
		mu.Lock()
		evicted = append(evicted, be.Events...)
		mu.Unlock()
	}))
	require.Equal(t, 10*DefaultMaxQueueFactor, a.cfg.MaxQueueSize)

	for i := 0; i < 10; i++ {
		a.Track(hit(fmt.Sprintf("/retry-%d", i)))
	}
	require.Eventually(t, a.inBackoff, time.Second, 5*time.Millisecond)

	for i := 0; i < 5000; i++ {
		a.Track(hit(fmt.Sprintf("/page-%d", i)))
		require.LessOrEqual(t, a.Len(), a.cfg.MaxQueueSize)
	}
	assert.Equal(t, 1, tr.callCount())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5010, len(evicted)+a.Len())
	require.NotEmpty(t, evicted)
	assert.Equal(t, "/page-0", evicted[0].Path)

	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("/retry-%d", i), a.queue[i].Path)
	}
	assert.Equal(t, "/page-4999", a.queue[len(a.queue)-1].Path)
}

func TestNew_MaxQueueSizeNeverBelowBatchSize(t *testing.T) {
	a := newTestAgent(t, Config{BatchSize: 20, MaxQueueSize: 5}, &fakeTransport{})
	assert.Equal(t, 20, a.cfg.MaxQueueSize)
}

func TestAgent_RetryResendsSameBatch(t *testing.T) {
	tr := &fakeTransport{sendFn: func(call int, _ []*models.CrawlerEvent) error {
		if call == 1 {
			return &SendError{Err: errors.New("connection refused")}
		}
		return nil
	}}
	errCount := atomic.NewInt32(0)
	a := newTestAgent(t, Config{BatchSize: 2, RetryBaseDelay: 5 * time.Millisecond}, tr,
		WithOnError(func(*BatchError) { errCount.Inc() }))

	a.Track(hit("/a"))
	a.Track(hit("/b"))
	require.Eventually(t, func() bool { return tr.callCount() >= 1 }, time.Second, time.Millisecond)
	a.Track(hit("/c"))

	require.Eventually(t, func() bool { return len(tr.batches()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/a", "/b"}, pathsOf(tr.batches()[0]))

	require.NoError(t, a.Flush(context.Background()))
	require.Eventually(t, func() bool { return len(tr.deliveredPaths()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), errCount.Load())
}

func TestAgent_TerminalStatusIsNotRetried(t *testing.T) {
	tr := &fakeTransport{sendFn: func(_ int, _ []*models.CrawlerEvent) error {
		return &SendError{StatusCode: http.StatusUnauthorized, Message: "invalid api key"}
	}}
	errCount := atomic.NewInt32(0)
	a := newTestAgent(t, Config{BatchSize: 10, RetryBaseDelay: time.Millisecond}, tr,
		WithOnError(func(be *BatchError) {
			errCount.Inc()
			assert.Equal(t, 1, be.Attempts)
		}))

	a.Track(hit("/secret"))
	err := a.Flush(context.Background())
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tr.callCount())
	assert.Equal(t, int32(1), errCount.Load())
	assert.Equal(t, 0, a.Len())
}

func TestAgent_DestroyFlushesBufferOnce(t *testing.T) {
	tr := &fakeTransport{}
	a := newTestAgent(t, Config{BatchSize: 50}, tr)

	for i := 0; i < 4; i++ {
		a.Track(hit(fmt.Sprintf("/d-%d", i)))
	}
	require.NoError(t, a.Destroy(context.Background()))

	assert.Equal(t, 1, tr.callCount())
	require.Len(t, tr.batches(), 1)
	assert.Len(t, tr.batches()[0], 4)
	assert.Equal(t, StateDestroyed, a.State())

	a.Track(hit("/late"))
	assert.Equal(t, 0, a.Len())
	assert.ErrorIs(t, a.Flush(context.Background()), ErrDestroyed)
	assert.NoError(t, a.Destroy(context.Background()), "second destroy is a no-op")
	assert.Equal(t, 1, tr.callCount())
}

func TestAgent_DestroyFailureIsReportedWithoutRetry(t *testing.T) {
	tr := &fakeTransport{sendFn: func(_ int, _ []*models.CrawlerEvent) error {
		return &SendError{StatusCode: http.StatusBadGateway}
	}}
	errCount := atomic.NewInt32(0)
	a := newTestAgent(t, Config{BatchSize: 50, RetryBaseDelay: time.Millisecond}, tr,
		WithOnError(func(*BatchError) { errCount.Inc() }))

	a.Track(hit("/a"))
	a.Track(hit("/b"))
	assert.Error(t, a.Destroy(context.Background()))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tr.callCount())
	assert.Equal(t, int32(1), errCount.Load())
}

func TestAgent_TrackClassifiesWhenNoIdentity(t *testing.T) {
	tr := &fakeTransport{}
	a := newTestAgent(t, Config{BatchSize: 50}, tr)

	a.Track(EventInput{Domain: "Example.com:443", Path: "/", UserAgent: "Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)"})
	a.Track(EventInput{Domain: "example.com", Path: "/", UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"})
	assert.Equal(t, 1, a.Len())

	require.NoError(t, a.Flush(context.Background()))
	ev := tr.batches()[0][0]
	assert.Equal(t, "ClaudeBot", ev.Crawler.Name)
	assert.Equal(t, "example.com", ev.Domain)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
}

func TestAgent_FlushEmptyQueueIsNoop(t *testing.T) {
	tr := &fakeTransport{}
	a := newTestAgent(t, Config{}, tr)

	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, 0, tr.callCount())
	assert.Equal(t, StateIdle, a.State())
}

func TestAgent_ConcurrentTrackLosesNothing(t *testing.T) {
	tr := &fakeTransport{}
	a := newTestAgent(t, Config{BatchSize: 7}, tr)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				a.Track(hit(fmt.Sprintf("/g%d/%d", g, i)))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, a.Destroy(context.Background()))

	paths := tr.deliveredPaths()
	assert.Len(t, paths, 200)
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate delivery of %s", p)
		seen[p] = true
	}
}

func TestAgent_PingDelegatesToTransport(t *testing.T) {
	tr := &fakeTransport{ping: &models.PingResult{Status: models.PingStatusOK}}
	a := newTestAgent(t, Config{}, tr)

	res, err := a.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.PingStatusOK, res.Status)
}

func TestRetryState_Delay(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		r := retryState{attempt: tt.attempt}
		assert.Equal(t, tt.expected, r.delay(time.Second, 30*time.Second), "attempt %d", tt.attempt)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "buffering", StateBuffering.String())
	assert.Equal(t, "flushing", StateFlushing.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
}

func pathsOf(batch []*models.CrawlerEvent) []string {
	paths := make([]string, len(batch))
	for i, ev := range batch {
		paths[i] = ev.Path
	}
	return paths
}
