package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"crawlerd/internal/compression"
	"crawlerd/internal/crawlers"
	"crawlerd/internal/models"
	"crawlerd/internal/providers"
)

const (
	DefaultBatchSize      = 50
	DefaultBatchInterval  = 5 * time.Second
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultRetryMaxDelay  = 30 * time.Second
	// DefaultMaxQueueFactor sizes the queue bound as a multiple of BatchSize.
	DefaultMaxQueueFactor = 10
)

var (
	ErrDestroyed     = errors.New("agent destroyed")
	ErrMissingConfig = errors.New("agent endpoint and api key are required")
	ErrQueueFull     = errors.New("agent queue full")
)

type State int32

const (
	StateIdle State = iota
	StateBuffering
	StateFlushing
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateFlushing:
		return "flushing"
	case StateDestroyed:
		return "destroyed"
	default:
		return "idle"
	}
}

type Config struct {
	Endpoint      string
	APIKey        string
	BatchSize     int
	BatchInterval time.Duration
	Timeout       time.Duration
	// MaxRetries is the total number of delivery attempts per batch.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// Compress sends zstd encoded bodies.
	Compress bool
	// MaxQueueSize bounds buffered events while the endpoint is failing.
	// The oldest events outside the batch awaiting retry are dropped first.
	MaxQueueSize int
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = DefaultBatchInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = max(DefaultRetryMaxDelay, c.RetryBaseDelay)
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueFactor * c.BatchSize
	}
	c.MaxQueueSize = max(c.MaxQueueSize, c.BatchSize)
}

// EventInput is one observed hit. Crawler may be left nil, in which case the
// user agent is classified and unrecognised agents are dropped.
type EventInput struct {
	Domain         string
	Path           string
	UserAgent      string
	Crawler        *models.CrawlerIdentity
	StatusCode     *int
	ResponseTimeMs *int
	Country        string
	Metadata       map[string]any
}

// BatchError is handed to the error callback once per dropped batch. Attempts
// is zero when events were evicted from a full queue without being sent.
type BatchError struct {
	Events   []*models.CrawlerEvent
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("dropped %d events: %s", len(e.Events), e.Err)
	}
	return fmt.Sprintf("dropped batch of %d events after %d attempts: %s", len(e.Events), e.Attempts, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// retryState tracks the batch at the head of the queue that failed to send.
type retryState struct {
	attempt  int
	batchLen int
}

func (r retryState) active() bool {
	return r.attempt > 0
}

// delay is base*2^(attempt-1), capped at limit.
func (r retryState) delay(base, limit time.Duration) time.Duration {
	d := base
	for i := 1; i < r.attempt; i++ {
		d *= 2
		if d >= limit || d <= 0 {
			return limit
		}
	}
	return min(d, limit)
}

type Option func(*Agent)

func WithTransport(t Transport) Option {
	return func(a *Agent) { a.transport = t }
}

func WithLogger(l providers.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) { a.client = c }
}

func WithOnError(fn func(*BatchError)) Option {
	return func(a *Agent) { a.onError = fn }
}

type Agent struct {
	cfg        Config
	transport  Transport
	client     *http.Client
	compressor compression.CompressorInterface
	logger     providers.Logger
	onError    func(*BatchError)

	mu         sync.Mutex
	queue      []*models.CrawlerEvent
	retry      retryState
	timer      *time.Timer
	timerGen   uint64
	retryTimer *time.Timer
	retryGen   uint64

	inFlight  *atomic.Bool
	pending   *atomic.Bool
	destroyed *atomic.Bool
}

func New(cfg Config, opts ...Option) (*Agent, error) {
	cfg.applyDefaults()
	a := &Agent{
		cfg:       cfg,
		logger:    providers.NopLogger{},
		inFlight:  atomic.NewBool(false),
		pending:   atomic.NewBool(false),
		destroyed: atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.transport == nil {
		if cfg.Endpoint == "" || cfg.APIKey == "" {
			return nil, ErrMissingConfig
		}
		if cfg.Compress {
			c, err := compression.NewZstdCompressor()
			if err != nil {
				return nil, err
			}
			a.compressor = c
		}
		client := a.client
		if client == nil {
			client = &http.Client{Timeout: cfg.Timeout}
		}
		a.transport = NewHTTPTransport(cfg.Endpoint, cfg.APIKey, client, a.compressor)
	}
	return a, nil
}

// Track queues an observed hit. It never performs I/O on the caller's
// goroutine and is a no-op once the agent is destroyed.
func (a *Agent) Track(in EventInput) {
	if a.destroyed.Load() {
		return
	}
	ev := a.buildEvent(in)
	if ev == nil {
		return
	}

	a.mu.Lock()
	if a.destroyed.Load() {
		a.mu.Unlock()
		return
	}
	a.queue = append(a.queue, ev)
	dropped := a.trimLocked()
	kick := len(a.queue) >= a.cfg.BatchSize && !a.retry.active()
	a.scheduleLocked()
	a.mu.Unlock()

	if len(dropped) > 0 {
		a.reportError(&BatchError{Events: dropped, Err: ErrQueueFull})
	}
	if kick {
		a.goFlush()
	}
}

// trimLocked enforces MaxQueueSize by removing the oldest events that are not
// part of the pending retry batch. It drops at least a BatchSize worth at a
// time so a long outage reports in chunks rather than per event.
func (a *Agent) trimLocked() []*models.CrawlerEvent {
	excess := len(a.queue) - a.cfg.MaxQueueSize
	if excess <= 0 {
		return nil
	}
	head := 0
	if a.retry.active() {
		head = min(a.retry.batchLen, len(a.queue))
	}
	n := min(max(excess, a.cfg.BatchSize), len(a.queue)-head)
	if n <= 0 {
		return nil
	}
	dropped := slices.Clone(a.queue[head : head+n])
	a.queue = slices.Delete(a.queue, head, head+n)
	return dropped
}

func (a *Agent) buildEvent(in EventInput) *models.CrawlerEvent {
	identity := in.Crawler
	if identity == nil || identity.Name == "" {
		identity = crawlers.Classify(in.UserAgent)
	}
	if identity == nil {
		return nil
	}
	return &models.CrawlerEvent{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		Domain:         models.NormalizeDomain(in.Domain),
		Path:           in.Path,
		Crawler:        *identity,
		UserAgent:      in.UserAgent,
		StatusCode:     in.StatusCode,
		ResponseTimeMs: in.ResponseTimeMs,
		Country:        in.Country,
		Metadata:       in.Metadata,
	}
}

// Flush sends up to one batch. A call made while another send is in flight
// is coalesced into a single follow-up flush and returns nil at once.
func (a *Agent) Flush(ctx context.Context) error {
	if a.destroyed.Load() {
		return ErrDestroyed
	}
	return a.flush(ctx)
}

func (a *Agent) flush(ctx context.Context) error {
	if !a.inFlight.CompareAndSwap(false, true) {
		a.pending.Store(true)
		return nil
	}
	if a.destroyed.Load() {
		a.inFlight.Store(false)
		return nil
	}

	batch, attempts := a.takeBatch()
	if len(batch) == 0 {
		a.inFlight.Store(false)
		return nil
	}

	err := a.transport.Send(ctx, batch)
	more, dropped := a.settle(batch, attempts, err)
	a.inFlight.Store(false)

	if dropped != nil {
		a.reportError(dropped)
	}
	if (a.pending.Swap(false) || more) && !a.inBackoff() {
		a.goFlush()
	}
	return err
}

// takeBatch removes the next batch from the head of the queue. While a retry
// is pending the head batch is exactly the one that failed.
func (a *Agent) takeBatch() ([]*models.CrawlerEvent, int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopTimersLocked()

	n := min(len(a.queue), a.cfg.BatchSize)
	if a.retry.active() && a.retry.batchLen <= len(a.queue) {
		n = a.retry.batchLen
	}
	batch := make([]*models.CrawlerEvent, n)
	copy(batch, a.queue[:n])
	a.queue = a.queue[n:]
	if len(a.queue) == 0 {
		a.queue = nil
	}
	return batch, a.retry.attempt
}

// settle applies the outcome of a send. It reports whether another batch is
// ready and returns the batch to give up on, if any.
func (a *Agent) settle(batch []*models.CrawlerEvent, prevAttempts int, err error) (bool, *BatchError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err == nil {
		a.retry = retryState{}
		a.scheduleLocked()
		return len(a.queue) >= a.cfg.BatchSize, nil
	}

	attempts := prevAttempts + 1
	if a.destroyed.Load() {
		// Destroy drains the queue after this send returns.
		a.queue = slices.Concat(batch, a.queue)
		a.retry = retryState{}
		return false, nil
	}

	if isRetryable(err) && attempts < a.cfg.MaxRetries {
		a.queue = slices.Concat(batch, a.queue)
		a.retry = retryState{attempt: attempts, batchLen: len(batch)}
		delay := a.retry.delay(a.cfg.RetryBaseDelay, a.cfg.RetryMaxDelay)
		a.retryGen++
		gen := a.retryGen
		a.retryTimer = time.AfterFunc(delay, func() { a.fireRetry(gen) })
		a.pending.Store(false)
		a.logger.Debugf(providers.TypeApp, "batch of %d failed (attempt %d), retrying in %s: %s", len(batch), attempts, delay, err)
		return false, nil
	}

	a.retry = retryState{}
	a.scheduleLocked()
	return len(a.queue) >= a.cfg.BatchSize, &BatchError{Events: batch, Attempts: attempts, Err: err}
}

func (a *Agent) reportError(be *BatchError) {
	a.logger.Warnf(providers.TypeApp, "%s", be.Error())
	if a.onError != nil {
		a.onError(be)
	}
}

func (a *Agent) inBackoff() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retry.active()
}

func (a *Agent) goFlush() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
		defer cancel()
		_ = a.flush(ctx)
	}()
}

// scheduleLocked arms the interval timer when events are waiting and nothing
// else will pick them up.
func (a *Agent) scheduleLocked() {
	if a.timer != nil || a.retryTimer != nil || len(a.queue) == 0 || a.destroyed.Load() {
		return
	}
	a.timerGen++
	gen := a.timerGen
	a.timer = time.AfterFunc(a.cfg.BatchInterval, func() { a.fireInterval(gen) })
}

func (a *Agent) stopTimersLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
		a.timerGen++
	}
	if a.retryTimer != nil {
		a.retryTimer.Stop()
		a.retryTimer = nil
		a.retryGen++
	}
}

func (a *Agent) fireInterval(gen uint64) {
	a.mu.Lock()
	if gen != a.timerGen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()
	a.timedFlush()
}

func (a *Agent) fireRetry(gen uint64) {
	a.mu.Lock()
	if gen != a.retryGen {
		a.mu.Unlock()
		return
	}
	a.retryTimer = nil
	a.mu.Unlock()
	a.timedFlush()
}

func (a *Agent) timedFlush() {
	if a.destroyed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()
	_ = a.flush(ctx)
}

// Ping checks connectivity and the key's identity.
func (a *Agent) Ping(ctx context.Context) (*models.PingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	return a.transport.Ping(ctx)
}

// Destroy stops the timers, waits for an in-flight send and makes one
// best-effort pass over everything still buffered. Failed batches are
// reported through the error callback without retries.
func (a *Agent) Destroy(ctx context.Context) error {
	if !a.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.Lock()
	a.stopTimersLocked()
	a.mu.Unlock()

	for !a.inFlight.CompareAndSwap(false, true) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	defer a.inFlight.Store(false)

	a.mu.Lock()
	events := a.queue
	a.queue = nil
	a.retry = retryState{}
	a.mu.Unlock()

	var errs []error
	for start := 0; start < len(events); start += a.cfg.BatchSize {
		batch := events[start:min(start+a.cfg.BatchSize, len(events))]
		sendCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		err := a.transport.Send(sendCtx, batch)
		cancel()
		if err != nil {
			a.reportError(&BatchError{Events: batch, Attempts: 1, Err: err})
			errs = append(errs, err)
		}
	}

	if a.compressor != nil {
		a.compressor.Close()
	}
	return errors.Join(errs...)
}

func (a *Agent) State() State {
	if a.destroyed.Load() {
		return StateDestroyed
	}
	if a.inFlight.Load() {
		return StateFlushing
	}
	if a.Len() > 0 {
		return StateBuffering
	}
	return StateIdle
}

// Len is the number of buffered events, including a batch awaiting retry.
func (a *Agent) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}
