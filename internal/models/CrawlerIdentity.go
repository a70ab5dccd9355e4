package models

import "strings"

type Category string

const (
	CategoryAITraining   Category = "ai-training"
	CategoryAIAssistant  Category = "ai-assistant"
	CategoryAISearch     Category = "ai-search"
	CategorySearchAI     Category = "search-ai"
	CategorySocialAI     Category = "social-ai"
	CategoryArchival     Category = "archival"
	CategoryAIExtraction Category = "ai-extraction"
	CategoryUnknown      Category = "unknown"
)

var categories = map[Category]struct{}{
	CategoryAITraining:   {},
	CategoryAIAssistant:  {},
	CategoryAISearch:     {},
	CategorySearchAI:     {},
	CategorySocialAI:     {},
	CategoryArchival:     {},
	CategoryAIExtraction: {},
	CategoryUnknown:      {},
}

func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// ParseCategory maps free-form input onto the closed category set.
// Anything unrecognised becomes CategoryUnknown.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryUnknown
}

type CrawlerIdentity struct {
	Name     string   `json:"name"`
	Company  string   `json:"company"`
	Category Category `json:"category"`
}
