package models

import "time"

const DateLayout = "2006-01-02"

// CrawlerEvent is one observed crawler hit in canonical form.
// Events are never mutated once normalized.
type CrawlerEvent struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Domain         string          `json:"domain"`
	Path           string          `json:"path"`
	Crawler        CrawlerIdentity `json:"crawler"`
	UserAgent      string          `json:"userAgent"`
	StatusCode     *int            `json:"statusCode,omitempty"`
	ResponseTimeMs *int            `json:"responseTimeMs,omitempty"`
	Country        string          `json:"country,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// Date returns the UTC calendar day the event belongs to.
func (e *CrawlerEvent) Date() string {
	return e.Timestamp.UTC().Format(DateLayout)
}
