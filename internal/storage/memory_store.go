package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crawlerd/internal/models"
)

// DefaultMaxRawEvents bounds the raw events a MemoryStore keeps.
const DefaultMaxRawEvents = 100_000

type memoryEntry struct {
	mu        sync.Mutex
	company   string
	category  models.Category
	visits    int64
	paths     map[string]struct{}
	rtSum     int64
	rtSamples int64
	countries map[string]int64
	updatedAt time.Time
}

func newMemoryEntry() *memoryEntry {
	return &memoryEntry{
		paths:     make(map[string]struct{}),
		countries: make(map[string]int64),
	}
}

func (e *memoryEntry) record(key models.DailyKey) *models.DailyStatsRecord {
	countries := make(map[string]int64, len(e.countries))
	for c, n := range e.countries {
		countries[c] = n
	}
	return &models.DailyStatsRecord{
		OwnerID:             key.OwnerID,
		Domain:              key.Domain,
		Date:                key.Date,
		CrawlerName:         key.CrawlerName,
		CrawlerCompany:      e.company,
		CrawlerCategory:     e.category,
		VisitCount:          e.visits,
		UniquePathCount:     int64(len(e.paths)),
		AvgResponseTimeMs:   models.MeanResponseTime(e.rtSum, e.rtSamples),
		ResponseTimeSamples: e.rtSamples,
		CountryCounts:       countries,
		UpdatedAt:           e.updatedAt,
	}
}

type storedEvent struct {
	ownerID     string
	workspaceID string
	event       *models.CrawlerEvent
}

// MemoryStore keeps rollups in process memory. The map lock only guards
// membership; each key has its own lock so merges on different keys never
// contend.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[models.DailyKey]*memoryEntry

	eventsMu  sync.Mutex
	events    []storedEvent
	maxEvents int

	now func() time.Time
}

func NewMemoryStore(maxEvents int) *MemoryStore {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxRawEvents
	}
	return &MemoryStore{
		entries:   make(map[models.DailyKey]*memoryEntry),
		maxEvents: maxEvents,
		now:       time.Now,
	}
}

// InsertEvents keeps the newest maxEvents events and drops older ones.
func (s *MemoryStore) InsertEvents(_ context.Context, ownerID, workspaceID string, events []*models.CrawlerEvent) error {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	for _, ev := range events {
		s.events = append(s.events, storedEvent{ownerID: ownerID, workspaceID: workspaceID, event: ev})
	}
	if over := len(s.events) - s.maxEvents; over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
	return nil
}

func (s *MemoryStore) EventCount() int {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	return len(s.events)
}

func (s *MemoryStore) entry(key models.DailyKey) *memoryEntry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; !ok {
		e = newMemoryEntry()
		s.entries[key] = e
	}
	return e
}

func (s *MemoryStore) Merge(_ context.Context, key models.DailyKey, delta *models.DailyDelta) error {
	if delta == nil || delta.Count == 0 {
		return nil
	}
	e := s.entry(key)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.company == "" {
		e.company = delta.CrawlerCompany
		e.category = delta.CrawlerCategory
	}
	e.visits += delta.Count
	for p := range delta.Paths {
		e.paths[p] = struct{}{}
	}
	e.rtSum += delta.ResponseTimeSum
	e.rtSamples += delta.ResponseTimeSamples
	for c, n := range delta.Countries {
		e.countries[c] += n
	}
	e.updatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key models.DailyKey) (*models.DailyStatsRecord, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record(key), nil
}

func (s *MemoryStore) List(_ context.Context, ownerID, domain, from, to string) ([]*models.DailyStatsRecord, error) {
	s.mu.RLock()
	keys := make([]models.DailyKey, 0)
	entries := make([]*memoryEntry, 0)
	for k, e := range s.entries {
		if k.OwnerID == ownerID && k.Domain == domain && k.Date >= from && k.Date <= to {
			keys = append(keys, k)
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	records := make([]*models.DailyStatsRecord, len(keys))
	for i, e := range entries {
		e.mu.Lock()
		records[i] = e.record(keys[i])
		e.mu.Unlock()
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].CrawlerName < records[j].CrawlerName
	})
	return records, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Version: snapshotVersion,
		SavedAt: s.now().UTC(),
		Records: make([]*SnapshotRecord, 0, len(s.entries)),
	}
	for key, e := range s.entries {
		e.mu.Lock()
		paths := make([]string, 0, len(e.paths))
		for p := range e.paths {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		countries := make(map[string]int64, len(e.countries))
		for c, n := range e.countries {
			countries[c] = n
		}
		snap.Records = append(snap.Records, &SnapshotRecord{
			Key:                 key,
			CrawlerCompany:      e.company,
			CrawlerCategory:     e.category,
			VisitCount:          e.visits,
			Paths:               paths,
			ResponseTimeSum:     e.rtSum,
			ResponseTimeSamples: e.rtSamples,
			Countries:           countries,
			UpdatedAt:           e.updatedAt,
		})
		e.mu.Unlock()
	}
	return snap
}

// Restore replaces the store contents with a snapshot.
func (s *MemoryStore) Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	entries := make(map[models.DailyKey]*memoryEntry, len(snap.Records))
	for _, r := range snap.Records {
		if r == nil {
			continue
		}
		e := newMemoryEntry()
		e.company = r.CrawlerCompany
		e.category = r.CrawlerCategory
		e.visits = r.VisitCount
		for _, p := range r.Paths {
			e.paths[p] = struct{}{}
		}
		e.rtSum = r.ResponseTimeSum
		e.rtSamples = r.ResponseTimeSamples
		for c, n := range r.Countries {
			e.countries[c] = n
		}
		e.updatedAt = r.UpdatedAt
		entries[r.Key] = e
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}
