package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(domain, path, crawler string, ts time.Time, rt *int, country string) *CrawlerEvent {
	return &CrawlerEvent{
		Timestamp:      ts,
		Domain:         domain,
		Path:           path,
		Crawler:        CrawlerIdentity{Name: crawler, Company: "OpenAI", Category: CategoryAITraining},
		UserAgent:      crawler,
		ResponseTimeMs: rt,
		Country:        country,
	}
}

func TestGroupDaily_SplitsByDomainDateCrawler(t *testing.T) {
	day1 := time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Hour)

	events := []*CrawlerEvent{
		event("a.com", "/1", "GPTBot", day1, intPtr(10), "US"),
		event("a.com", "/1", "GPTBot", day1, intPtr(30), "US"),
		event("a.com", "/2", "GPTBot", day1, nil, "DE"),
		event("a.com", "/1", "GPTBot", day2, nil, ""),
		event("b.com", "/1", "GPTBot", day1, nil, ""),
		event("a.com", "/1", "ClaudeBot", day1, nil, ""),
	}

	groups := GroupDaily("owner-1", events)
	require.Len(t, groups, 4)

	key := DailyKey{OwnerID: "owner-1", Domain: "a.com", Date: "2026-10-16", CrawlerName: "GPTBot"}
	delta := groups[key]
	require.NotNil(t, delta)
	assert.Equal(t, int64(3), delta.Count)
	assert.Equal(t, []string{"/1", "/2"}, delta.PathList())
	assert.Equal(t, int64(40), delta.ResponseTimeSum)
	assert.Equal(t, int64(2), delta.ResponseTimeSamples)
	assert.Equal(t, map[string]int64{"US": 2, "DE": 1}, delta.Countries)
	assert.Equal(t, "OpenAI", delta.CrawlerCompany)

	next := DailyKey{OwnerID: "owner-1", Domain: "a.com", Date: "2026-10-17", CrawlerName: "GPTBot"}
	assert.Equal(t, int64(1), groups[next].Count)
}

func TestMeanResponseTime(t *testing.T) {
	assert.Equal(t, 0.0, MeanResponseTime(100, 0))
	assert.Equal(t, 25.0, MeanResponseTime(100, 4))
}

func TestApiKeyRecord_AllowsDomain(t *testing.T) {
	open := &ApiKeyRecord{IsValid: true}
	assert.True(t, open.AllowsDomain("anything.com"))
	assert.Equal(t, "", open.PrimaryDomain())

	restricted := &ApiKeyRecord{IsValid: true, DomainAllowList: []string{"Example.com"}}
	assert.True(t, restricted.AllowsDomain("example.com"))
	assert.False(t, restricted.AllowsDomain("other.com"))
	assert.Equal(t, "Example.com", restricted.PrimaryDomain())

	dotted := &ApiKeyRecord{IsValid: true, DomainAllowList: []string{"example.com.", "Docs.Example.com:443"}}
	assert.True(t, dotted.AllowsDomain("example.com"))
	assert.True(t, dotted.AllowsDomain("docs.example.com"))
	assert.False(t, dotted.AllowsDomain("example.org"))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryArchival, ParseCategory(" Archival "))
	assert.Equal(t, CategoryUnknown, ParseCategory(""))
	assert.Equal(t, CategoryUnknown, ParseCategory("browser"))
}
