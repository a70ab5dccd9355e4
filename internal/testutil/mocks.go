package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crawlerd/internal/keys"
	"crawlerd/internal/models"
	"crawlerd/internal/providers"
	"crawlerd/internal/storage"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Count returns how many entries were logged at level.
func (m *MockLogger) Count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.Logs {
		if l.Level == level {
			n++
		}
	}
	return n
}

// MockMetrics implements providers.MetricsProviderInterface with counters.
type MockMetrics struct {
	mu             sync.Mutex
	Requests       map[string]int
	Events         map[string]int
	RollupFailures int
	KeyCacheHits   int
	KeyCacheMisses int
	CacheHits      int
	CacheMisses    int
	Persistence    []time.Duration
	Records        map[string]int
	RateLimiters   int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Requests: make(map[string]int),
		Events:   make(map[string]int),
		Records:  make(map[string]int),
	}
}

func (m *MockMetrics) IncRequestsTotal(endpoint string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests[endpoint]++
}
func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}
func (m *MockMetrics) IncCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMisses++
}
func (m *MockMetrics) IncKeyCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.KeyCacheHits++
}
func (m *MockMetrics) IncKeyCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.KeyCacheMisses++
}
func (m *MockMetrics) AddEvents(result string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[result] += n
}
func (m *MockMetrics) IncRollupFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RollupFailures++
}
func (m *MockMetrics) ObservePersistenceDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Persistence = append(m.Persistence, d)
}
func (m *MockMetrics) SetRecordsTotal(store string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records[store] = count
}
func (m *MockMetrics) SetRateLimiters(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimiters = count
}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
	TTLs map[string]time.Duration
	Gens map[string]int
}

func NewMockCache() *MockCache {
	return &MockCache{
		Data: make(map[string][]byte),
		TTLs: make(map[string]time.Duration),
		Gens: make(map[string]int),
	}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

func (m *MockCache) SetTTL(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
	m.TTLs[key] = ttl
}

func (m *MockCache) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
}

func (m *MockCache) ScopedKey(scope, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%s@%d:%s", scope, m.Gens[scope], key)
}

func (m *MockCache) Invalidate(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gens[scope]++
}

// MockCompressor implements compression.CompressorInterface with injectable behavior.
type MockCompressor struct {
	CompressFn   func([]byte) ([]byte, error)
	DecompressFn func([]byte) ([]byte, error)
}

func (m *MockCompressor) Compress(val []byte) ([]byte, error) {
	if m.CompressFn != nil {
		return m.CompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Decompress(val []byte) ([]byte, error) {
	if m.DecompressFn != nil {
		return m.DecompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Close() {}

// MockValidator implements keys.Validator from a map of hash to record.
type MockValidator struct {
	mu      sync.Mutex
	Records map[string]*models.ApiKeyRecord
	Err     error
	Calls   int
}

func (m *MockValidator) Lookup(_ context.Context, hash string) (*models.ApiKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	rec, ok := m.Records[hash]
	if !ok {
		return nil, keys.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// MockEventStore implements storage.EventStore and keeps every batch.
type MockEventStore struct {
	mu      sync.Mutex
	Batches []EventBatch
	Err     error
}

type EventBatch struct {
	OwnerID     string
	WorkspaceID string
	Events      []*models.CrawlerEvent
}

func (m *MockEventStore) InsertEvents(_ context.Context, ownerID, workspaceID string, events []*models.CrawlerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Batches = append(m.Batches, EventBatch{OwnerID: ownerID, WorkspaceID: workspaceID, Events: events})
	return nil
}

func (m *MockEventStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.Batches {
		n += len(b.Events)
	}
	return n
}

// FailingRollupStore wraps a RollupStore and fails merges for which FailFn
// returns true.
type FailingRollupStore struct {
	storage.RollupStore
	FailFn func(key models.DailyKey) bool
	Err    error
}

func (f *FailingRollupStore) Merge(ctx context.Context, key models.DailyKey, delta *models.DailyDelta) error {
	if f.FailFn != nil && f.FailFn(key) {
		return f.Err
	}
	return f.RollupStore.Merge(ctx, key, delta)
}

// MockTenantResolver implements storage.TenantResolver.
type MockTenantResolver struct {
	Workspaces map[string]string
	Err        error
}

func (m *MockTenantResolver) PrimaryWorkspace(_ context.Context, ownerID string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Workspaces[ownerID], nil
}
