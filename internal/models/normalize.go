package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field")
)

// Normalize converts either wire shape into a canonical CrawlerEvent.
// A missing timestamp is replaced by receivedAt.
func Normalize(dto EventDTO, receivedAt time.Time) (*CrawlerEvent, error) {
	switch {
	case dto.Shape == ShapeRich && dto.Rich != nil:
		return normalizeRich(dto.Rich, receivedAt)
	case dto.Flat != nil:
		return normalizeFlat(dto.Flat, receivedAt)
	default:
		return nil, fmt.Errorf("%w: empty event", ErrMissingField)
	}
}

func normalizeFlat(dto *FlatEventDTO, receivedAt time.Time) (*CrawlerEvent, error) {
	ev := &CrawlerEvent{
		Domain: NormalizeDomain(dto.Domain),
		Path:   normalizePath(dto.Path),
		Crawler: CrawlerIdentity{
			Name:     strings.TrimSpace(dto.CrawlerName),
			Company:  strings.TrimSpace(dto.CrawlerCompany),
			Category: ParseCategory(dto.CrawlerCategory),
		},
		UserAgent: strings.TrimSpace(dto.UserAgent),
		Timestamp: dto.Timestamp.Time,
		Metadata:  dto.Metadata,
	}
	return finish(ev, dto.StatusCode, dto.ResponseTimeMs, dto.Country, receivedAt)
}

func normalizeRich(dto *RichEventDTO, receivedAt time.Time) (*CrawlerEvent, error) {
	u, err := url.Parse(strings.TrimSpace(dto.URL))
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: url %q", ErrInvalidField, dto.URL)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	ev := &CrawlerEvent{
		Domain:    NormalizeDomain(u.Hostname()),
		Path:      normalizePath(path),
		UserAgent: strings.TrimSpace(dto.UserAgent),
		Timestamp: dto.Timestamp.Time,
		Metadata:  dto.Metadata,
	}
	if dto.Crawler != nil {
		ev.Crawler = CrawlerIdentity{
			Name:     strings.TrimSpace(dto.Crawler.Name),
			Company:  strings.TrimSpace(dto.Crawler.Company),
			Category: ParseCategory(string(dto.Crawler.Category)),
		}
	}
	return finish(ev, dto.StatusCode, dto.ResponseTimeMs, dto.Country, receivedAt)
}

func finish(ev *CrawlerEvent, statusCode, responseTimeMs *int, country string, receivedAt time.Time) (*CrawlerEvent, error) {
	switch {
	case ev.Domain == "":
		return nil, fmt.Errorf("%w: domain", ErrMissingField)
	case strings.ContainsAny(ev.Domain, "/ \t"):
		return nil, fmt.Errorf("%w: domain %q", ErrInvalidField, ev.Domain)
	case ev.Path == "":
		return nil, fmt.Errorf("%w: path", ErrMissingField)
	case ev.Crawler.Name == "":
		return nil, fmt.Errorf("%w: crawler name", ErrMissingField)
	case ev.UserAgent == "":
		return nil, fmt.Errorf("%w: userAgent", ErrMissingField)
	}

	if responseTimeMs != nil {
		if *responseTimeMs < 0 {
			return nil, fmt.Errorf("%w: responseTimeMs %d", ErrInvalidField, *responseTimeMs)
		}
		rt := *responseTimeMs
		ev.ResponseTimeMs = &rt
	}
	// out-of-range status codes are dropped rather than rejected
	if statusCode != nil && *statusCode >= 100 && *statusCode <= 599 {
		sc := *statusCode
		ev.StatusCode = &sc
	}
	ev.Country = normalizeCountry(country)

	if ev.Timestamp.IsZero() {
		ev.Timestamp = receivedAt
	}
	ev.Timestamp = ev.Timestamp.UTC()
	if ev.Crawler.Company == "" {
		ev.Crawler.Company = "Unknown"
	}
	return ev, nil
}

// NormalizeDomain lower-cases a hostname and strips a port if present.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	if host, _, ok := strings.Cut(d, ":"); ok && !strings.Contains(d, "]") {
		d = host
	}
	return d
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func normalizeCountry(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if len(c) != 2 {
		return ""
	}
	for _, r := range c {
		if !unicode.IsLetter(r) {
			return ""
		}
	}
	return c
}
