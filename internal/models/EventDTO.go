package models

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Timestamp accepts RFC3339 strings or epoch milliseconds on the wire.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		return nil
	}
	if b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return fmt.Errorf("%w: timestamp %s", ErrInvalidField, b)
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		return fmt.Errorf("%w: timestamp %q", ErrInvalidField, s)
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp %s", ErrInvalidField, b)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}

// FlatEventDTO is the wire shape with separately named domain, path and
// crawler fields.
type FlatEventDTO struct {
	Domain          string         `json:"domain"`
	Path            string         `json:"path"`
	CrawlerName     string         `json:"crawlerName"`
	CrawlerCompany  string         `json:"crawlerCompany"`
	CrawlerCategory string         `json:"crawlerCategory"`
	UserAgent       string         `json:"userAgent"`
	Timestamp       Timestamp      `json:"timestamp"`
	StatusCode      *int           `json:"statusCode,omitempty"`
	ResponseTimeMs  *int           `json:"responseTimeMs,omitempty"`
	Country         string         `json:"country,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// RichEventDTO is the wire shape carrying a full URL and a nested identity.
type RichEventDTO struct {
	URL            string           `json:"url"`
	Crawler        *CrawlerIdentity `json:"crawler"`
	UserAgent      string           `json:"userAgent"`
	Timestamp      Timestamp        `json:"timestamp"`
	StatusCode     *int             `json:"statusCode,omitempty"`
	ResponseTimeMs *int             `json:"responseTimeMs,omitempty"`
	Country        string           `json:"country,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
}

type EventShape int

const (
	ShapeFlat EventShape = iota
	ShapeRich
)

func (s EventShape) String() string {
	if s == ShapeRich {
		return "rich"
	}
	return "flat"
}

// EventDTO holds exactly one of the two wire shapes. The rich shape wins
// whenever both "url" and a "crawler" object are present.
type EventDTO struct {
	Shape EventShape
	Flat  *FlatEventDTO
	Rich  *RichEventDTO
}

func FlatEvent(dto *FlatEventDTO) EventDTO {
	return EventDTO{Shape: ShapeFlat, Flat: dto}
}

func RichEvent(dto *RichEventDTO) EventDTO {
	return EventDTO{Shape: ShapeRich, Rich: dto}
}

func (d *EventDTO) UnmarshalJSON(data []byte) error {
	var shape struct {
		URL     string          `json:"url"`
		Crawler json.RawMessage `json:"crawler"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}

	crawler := bytes.TrimSpace(shape.Crawler)
	if shape.URL != "" && len(crawler) > 0 && crawler[0] == '{' {
		var rich RichEventDTO
		if err := json.Unmarshal(data, &rich); err != nil {
			return err
		}
		*d = RichEvent(&rich)
		return nil
	}

	var flat FlatEventDTO
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*d = FlatEvent(&flat)
	return nil
}

func (d EventDTO) MarshalJSON() ([]byte, error) {
	switch {
	case d.Shape == ShapeRich && d.Rich != nil:
		return json.Marshal(d.Rich)
	case d.Flat != nil:
		return json.Marshal(d.Flat)
	default:
		return []byte("null"), nil
	}
}

// ToFlatDTO renders a canonical event in the flat wire shape.
func ToFlatDTO(ev *CrawlerEvent) *FlatEventDTO {
	return &FlatEventDTO{
		Domain:          ev.Domain,
		Path:            ev.Path,
		CrawlerName:     ev.Crawler.Name,
		CrawlerCompany:  ev.Crawler.Company,
		CrawlerCategory: string(ev.Crawler.Category),
		UserAgent:       ev.UserAgent,
		Timestamp:       Timestamp{ev.Timestamp},
		StatusCode:      ev.StatusCode,
		ResponseTimeMs:  ev.ResponseTimeMs,
		Country:         ev.Country,
		Metadata:        ev.Metadata,
	}
}
