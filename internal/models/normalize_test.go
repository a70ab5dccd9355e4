package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func validFlat() *FlatEventDTO {
	return &FlatEventDTO{
		Domain:          "Example.COM",
		Path:            "docs/page?x=1",
		CrawlerName:     "GPTBot",
		CrawlerCompany:  "OpenAI",
		CrawlerCategory: "ai-training",
		UserAgent:       "Mozilla/5.0 (compatible; GPTBot/1.2)",
		Timestamp:       Timestamp{time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)},
		StatusCode:      intPtr(200),
		ResponseTimeMs:  intPtr(42),
		Country:         "us",
	}
}

func TestNormalize_Flat(t *testing.T) {
	ev, err := Normalize(FlatEvent(validFlat()), received)
	require.NoError(t, err)

	assert.Equal(t, "example.com", ev.Domain)
	assert.Equal(t, "/docs/page", ev.Path)
	assert.Equal(t, CrawlerIdentity{Name: "GPTBot", Company: "OpenAI", Category: CategoryAITraining}, ev.Crawler)
	assert.Equal(t, "US", ev.Country)
	assert.Equal(t, 200, *ev.StatusCode)
	assert.Equal(t, 42, *ev.ResponseTimeMs)
	assert.Equal(t, "2026-10-16", ev.Date())
}

func TestNormalize_Rich(t *testing.T) {
	dto := &RichEventDTO{
		URL:       "https://www.example.com:8443",
		Crawler:   &CrawlerIdentity{Name: "PerplexityBot", Company: "Perplexity", Category: "AI-SEARCH"},
		UserAgent: "PerplexityBot/1.0",
	}

	ev, err := Normalize(RichEvent(dto), received)
	require.NoError(t, err)

	assert.Equal(t, "www.example.com", ev.Domain)
	assert.Equal(t, "/", ev.Path)
	assert.Equal(t, CategoryAISearch, ev.Crawler.Category)
	assert.Equal(t, received, ev.Timestamp)
}

func TestNormalize_MissingTimestampUsesReceiveTime(t *testing.T) {
	dto := validFlat()
	dto.Timestamp = Timestamp{}

	ev, err := Normalize(FlatEvent(dto), received)
	require.NoError(t, err)
	assert.Equal(t, received, ev.Timestamp)
	assert.Equal(t, "2026-10-17", ev.Date())
}

func TestNormalize_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *FlatEventDTO)
	}{
		{"domain", func(d *FlatEventDTO) { d.Domain = "" }},
		{"path", func(d *FlatEventDTO) { d.Path = "  " }},
		{"crawler", func(d *FlatEventDTO) { d.CrawlerName = "" }},
		{"user agent", func(d *FlatEventDTO) { d.UserAgent = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dto := validFlat()
			tt.mutate(dto)
			_, err := Normalize(FlatEvent(dto), received)
			assert.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestNormalize_RichWithoutCrawlerFails(t *testing.T) {
	_, err := Normalize(RichEvent(&RichEventDTO{URL: "https://a.com/", UserAgent: "x"}), received)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestNormalize_InvalidURL(t *testing.T) {
	_, err := Normalize(RichEvent(&RichEventDTO{URL: "not a url", UserAgent: "x"}), received)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestNormalize_NegativeResponseTime(t *testing.T) {
	dto := validFlat()
	dto.ResponseTimeMs = intPtr(-1)
	_, err := Normalize(FlatEvent(dto), received)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestNormalize_DropsBadOptionalFields(t *testing.T) {
	dto := validFlat()
	dto.StatusCode = intPtr(42)
	dto.Country = "USA"
	dto.CrawlerCompany = ""
	dto.CrawlerCategory = "nonsense"

	ev, err := Normalize(FlatEvent(dto), received)
	require.NoError(t, err)
	assert.Nil(t, ev.StatusCode)
	assert.Empty(t, ev.Country)
	assert.Equal(t, "Unknown", ev.Crawler.Company)
	assert.Equal(t, CategoryUnknown, ev.Crawler.Category)
}

func TestNormalize_EmptyDTO(t *testing.T) {
	_, err := Normalize(EventDTO{}, received)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeDomain(" Example.com. "))
	assert.Equal(t, "example.com", NormalizeDomain("example.com:443"))
}
