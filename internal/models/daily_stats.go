package models

import (
	"sort"
	"time"
)

// DailyKey identifies one rollup row.
type DailyKey struct {
	OwnerID     string `json:"ownerId"`
	Domain      string `json:"domain"`
	Date        string `json:"date"`
	CrawlerName string `json:"crawlerName"`
}

func (k DailyKey) String() string {
	return k.OwnerID + "/" + k.Domain + "/" + k.Date + "/" + k.CrawlerName
}

// DailyDelta is the increment one ingestion request contributes to a key.
type DailyDelta struct {
	CrawlerCompany      string
	CrawlerCategory     Category
	Count               int64
	Paths               map[string]struct{}
	ResponseTimeSum     int64
	ResponseTimeSamples int64
	Countries           map[string]int64
}

func NewDailyDelta() *DailyDelta {
	return &DailyDelta{
		Paths:     make(map[string]struct{}),
		Countries: make(map[string]int64),
	}
}

func (d *DailyDelta) Add(ev *CrawlerEvent) {
	d.Count++
	d.Paths[ev.Path] = struct{}{}
	if ev.ResponseTimeMs != nil {
		d.ResponseTimeSum += int64(*ev.ResponseTimeMs)
		d.ResponseTimeSamples++
	}
	if ev.Country != "" {
		d.Countries[ev.Country]++
	}
	if d.CrawlerCompany == "" {
		d.CrawlerCompany = ev.Crawler.Company
		d.CrawlerCategory = ev.Crawler.Category
	}
}

// PathList returns the delta's paths in a stable order.
func (d *DailyDelta) PathList() []string {
	paths := make([]string, 0, len(d.Paths))
	for p := range d.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// GroupDaily splits accepted events into per-key deltas.
func GroupDaily(ownerID string, events []*CrawlerEvent) map[DailyKey]*DailyDelta {
	groups := make(map[DailyKey]*DailyDelta)
	for _, ev := range events {
		key := DailyKey{
			OwnerID:     ownerID,
			Domain:      ev.Domain,
			Date:        ev.Date(),
			CrawlerName: ev.Crawler.Name,
		}
		delta, ok := groups[key]
		if !ok {
			delta = NewDailyDelta()
			groups[key] = delta
		}
		delta.Add(ev)
	}
	return groups
}

type DailyStatsRecord struct {
	OwnerID             string           `json:"ownerId"`
	Domain              string           `json:"domain"`
	Date                string           `json:"date"`
	CrawlerName         string           `json:"crawlerName"`
	CrawlerCompany      string           `json:"crawlerCompany"`
	CrawlerCategory     Category         `json:"crawlerCategory"`
	VisitCount          int64            `json:"visitCount"`
	UniquePathCount     int64            `json:"uniquePathCount"`
	AvgResponseTimeMs   float64          `json:"avgResponseTimeMs"`
	ResponseTimeSamples int64            `json:"responseTimeSamples"`
	CountryCounts       map[string]int64 `json:"countryCounts"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

func (r *DailyStatsRecord) Key() DailyKey {
	return DailyKey{OwnerID: r.OwnerID, Domain: r.Domain, Date: r.Date, CrawlerName: r.CrawlerName}
}

// MeanResponseTime is the weighted mean for a running sum over samples.
func MeanResponseTime(sum, samples int64) float64 {
	if samples <= 0 {
		return 0
	}
	return float64(sum) / float64(samples)
}
