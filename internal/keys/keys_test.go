package keys

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlerd/internal/models"
	"crawlerd/internal/storage"
	"crawlerd/internal/structures"
)

type countingValidator struct {
	calls int
	rec   *models.ApiKeyRecord
	err   error
}

func (v *countingValidator) Lookup(_ context.Context, _ string) (*models.ApiKeyRecord, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	cp := *v.rec
	return &cp, nil
}

type countingMetrics struct {
	hits, misses int
}

func (m *countingMetrics) IncKeyCacheHits()   { m.hits++ }
func (m *countingMetrics) IncKeyCacheMisses() { m.misses++ }

func TestHashKey(t *testing.T) {
	// sha256("test")
	assert.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", HashKey("test"))
	assert.Equal(t, "9f86d081", ShortHash(HashKey("test")))
	assert.Equal(t, "abc", ShortHash("abc"))
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer sk_live"}, "sk_live"},
		{"lowercase scheme", map[string]string{"Authorization": "bearer sk_live"}, "sk_live"},
		{"basic rejected", map[string]string{"Authorization": "Basic Zm9v"}, ""},
		{"no scheme", map[string]string{"Authorization": "sk_live"}, ""},
		{"legacy header", map[string]string{"X-API-Key": "sk_old"}, "sk_old"},
		{"authorization wins", map[string]string{"Authorization": "Bearer a", "X-API-Key": "b"}, "a"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/events", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, FromRequest(r))
		})
	}
}

func TestCachedValidator_CachesHits(t *testing.T) {
	inner := &countingValidator{rec: &models.ApiKeyRecord{OwnerID: "owner-1", Name: "prod", IsValid: true, DomainAllowList: []string{"example.com"}}}
	metrics := &countingMetrics{}
	v := NewCachedValidator(inner, NewCache(1, time.Minute), metrics)

	for i := 0; i < 3; i++ {
		rec, err := v.Lookup(context.Background(), "hash")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", rec.OwnerID)
		assert.Equal(t, []string{"example.com"}, rec.DomainAllowList)
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
}

func TestCachedValidator_InvalidateForcesLookup(t *testing.T) {
	inner := &countingValidator{rec: &models.ApiKeyRecord{OwnerID: "owner-1", IsValid: true}}
	v := NewCachedValidator(inner, NewCache(1, time.Minute), &countingMetrics{})

	_, _ = v.Lookup(context.Background(), "hash")
	v.Invalidate("hash")
	_, _ = v.Lookup(context.Background(), "hash")
	assert.Equal(t, 2, inner.calls)

	v.InvalidateAll()
	_, _ = v.Lookup(context.Background(), "hash")
	assert.Equal(t, 3, inner.calls)
}

func TestCachedValidator_NotFoundIsNotCached(t *testing.T) {
	inner := &countingValidator{err: ErrNotFound}
	v := NewCachedValidator(inner, NewCache(1, time.Minute), &countingMetrics{})

	_, err := v.Lookup(context.Background(), "hash")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = v.Lookup(context.Background(), "hash")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedValidator_DisabledCache(t *testing.T) {
	inner := &countingValidator{rec: &models.ApiKeyRecord{OwnerID: "owner-1"}}
	v := NewCachedValidator(inner, NewCache(1, 0), &countingMetrics{})

	_, _ = v.Lookup(context.Background(), "hash")
	_, _ = v.Lookup(context.Background(), "hash")
	assert.Equal(t, 2, inner.calls)
}

func TestCache_Len(t *testing.T) {
	c := NewCache(1, time.Minute)
	c.Set("a", &models.ApiKeyRecord{OwnerID: "o"})
	assert.Equal(t, int64(1), c.Len())

	var disabled *Cache
	assert.Zero(t, disabled.Len())
}

func TestStaticValidator(t *testing.T) {
	hash := HashKey("sk_live")
	v := NewStaticValidator([]structures.StaticKey{
		{Hash: hash, OwnerID: "owner-1", Name: "prod", Domains: []string{"example.com", " "}},
		{Hash: HashKey("sk_off"), OwnerID: "owner-1", Disabled: true},
	})

	rec, err := v.Lookup(context.Background(), hash)
	require.NoError(t, err)
	assert.True(t, rec.IsValid)
	assert.Equal(t, []string{"example.com"}, rec.DomainAllowList)

	rec.DomainAllowList[0] = "mutated"
	again, _ := v.Lookup(context.Background(), hash)
	assert.Equal(t, "example.com", again.DomainAllowList[0])

	off, err := v.Lookup(context.Background(), HashKey("sk_off"))
	require.NoError(t, err)
	assert.False(t, off.IsValid)

	_, err = v.Lookup(context.Background(), HashKey("nope"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStaticValidator_NormalizesAllowList(t *testing.T) {
	hash := HashKey("sk_live")
	v := NewStaticValidator([]structures.StaticKey{
		{Hash: hash, OwnerID: "owner-1", Domains: []string{"example.com.", "Docs.Example.com:443", " "}},
	})

	rec, err := v.Lookup(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "docs.example.com"}, rec.DomainAllowList)
	assert.True(t, rec.AllowsDomain("example.com"))
	assert.True(t, rec.AllowsDomain("docs.example.com"))
	assert.False(t, rec.AllowsDomain("other.com"))
}

func TestSplitDomains(t *testing.T) {
	assert.Equal(t, []string{"example.com", "docs.example.com"}, splitDomains("Example.com:443, docs.example.com.,,"))
	assert.Empty(t, splitDomains(""))
}

func TestSQLValidator(t *testing.T) {
	db, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	hash := HashKey("sk_live")
	_, err = db.Exec(`INSERT INTO api_keys (key_hash, owner_id, name, domains, is_active) VALUES (?, ?, ?, ?, ?)`,
		hash, "owner-1", "prod", "example.com, docs.example.com", true)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO api_keys (key_hash, owner_id, name, domains, is_active) VALUES (?, ?, ?, ?, ?)`,
		HashKey("sk_old"), "owner-1", "old", "", false)
	require.NoError(t, err)

	v := NewSQLValidator(db)
	rec, err := v.Lookup(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", rec.OwnerID)
	assert.Equal(t, "prod", rec.Name)
	assert.True(t, rec.IsValid)
	assert.Equal(t, []string{"example.com", "docs.example.com"}, rec.DomainAllowList)

	old, err := v.Lookup(context.Background(), HashKey("sk_old"))
	require.NoError(t, err)
	assert.False(t, old.IsValid)
	assert.Empty(t, old.DomainAllowList)

	_, err = v.Lookup(context.Background(), HashKey("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}
