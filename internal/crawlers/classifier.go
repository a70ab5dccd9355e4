package crawlers

import (
	"strings"

	"github.com/mileusna/useragent"

	"crawlerd/internal/models"
)

const (
	unknownName    = "Unknown Bot"
	unknownCompany = "Unknown"
)

var botKeywords = []string{"bot", "crawler", "spider", "scraper", "fetcher", "slurp", "headless"}

// Classify resolves a user agent to a crawler identity. Registered tokens
// win; other automated clients get a synthesized identity with the unknown
// category. Human or empty user agents return nil.
func Classify(ua string) *models.CrawlerIdentity {
	if id := ClassifyKnown(ua); id != nil {
		return id
	}
	return synthesize(ua)
}

// ClassifyKnown only consults the registry.
func ClassifyKnown(ua string) *models.CrawlerIdentity {
	if strings.TrimSpace(ua) == "" {
		return nil
	}
	lower := strings.ToLower(ua)
	for i, token := range lowerTokens {
		if strings.Contains(lower, token) {
			id := registry[i].Identity
			return &id
		}
	}
	return nil
}

// IsAICrawler reports whether ua belongs to a registered crawler.
func IsAICrawler(ua string) bool {
	return ClassifyKnown(ua) != nil
}

func synthesize(ua string) *models.CrawlerIdentity {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return nil
	}

	parsed := useragent.Parse(ua)
	name := botToken(ua)
	if !parsed.Bot && name == "" {
		return nil
	}
	if name == "" {
		name = parsed.Name
	}
	if name == "" {
		name = unknownName
	}

	return &models.CrawlerIdentity{
		Name:     name,
		Company:  unknownCompany,
		Category: models.CategoryUnknown,
	}
}

// botToken picks the product token that names the bot, e.g. "FooBot" out of
// "Mozilla/5.0 (compatible; FooBot/2.1; +https://foo.example/bot)".
func botToken(ua string) string {
	fields := strings.FieldsFunc(ua, func(r rune) bool {
		return r == ' ' || r == ';' || r == '(' || r == ')' || r == ','
	})
	for _, f := range fields {
		if strings.HasPrefix(f, "+") || strings.Contains(f, "://") {
			continue
		}
		name, _, _ := strings.Cut(f, "/")
		lower := strings.ToLower(name)
		for _, kw := range botKeywords {
			if strings.Contains(lower, kw) {
				return name
			}
		}
	}
	return ""
}
