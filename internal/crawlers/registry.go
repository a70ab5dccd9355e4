package crawlers

import (
	"strings"

	"crawlerd/internal/models"
)

// Entry maps a user-agent token onto a crawler identity.
type Entry struct {
	Token    string                 `json:"token"`
	Identity models.CrawlerIdentity `json:"identity"`
}

func entry(token, name, company string, category models.Category) Entry {
	return Entry{
		Token:    token,
		Identity: models.CrawlerIdentity{Name: name, Company: company, Category: category},
	}
}

// registry is scanned in order and the first match wins, so a token that
// is a substring of another must come after it.
var registry = []Entry{
	// OpenAI
	entry("ChatGPT-User", "ChatGPT-User", "OpenAI", models.CategoryAIAssistant),
	entry("OAI-SearchBot", "OAI-SearchBot", "OpenAI", models.CategoryAISearch),
	entry("GPTBot", "GPTBot", "OpenAI", models.CategoryAITraining),

	// Anthropic
	entry("Claude-User", "Claude-User", "Anthropic", models.CategoryAIAssistant),
	entry("Claude-SearchBot", "Claude-SearchBot", "Anthropic", models.CategoryAISearch),
	entry("Claude-Web", "Claude-Web", "Anthropic", models.CategoryAIAssistant),
	entry("ClaudeBot", "ClaudeBot", "Anthropic", models.CategoryAITraining),
	entry("anthropic-ai", "anthropic-ai", "Anthropic", models.CategoryAITraining),

	// Perplexity
	entry("Perplexity-User", "Perplexity-User", "Perplexity", models.CategoryAIAssistant),
	entry("PerplexityBot", "PerplexityBot", "Perplexity", models.CategoryAISearch),

	// Google
	entry("Google-Extended", "Google-Extended", "Google", models.CategoryAITraining),
	entry("Google-CloudVertexBot", "Google-CloudVertexBot", "Google", models.CategoryAIExtraction),
	entry("GoogleOther", "GoogleOther", "Google", models.CategoryAITraining),
	entry("Googlebot", "Googlebot", "Google", models.CategorySearchAI),

	// Microsoft
	entry("bingbot", "Bingbot", "Microsoft", models.CategorySearchAI),

	// Apple
	entry("Applebot-Extended", "Applebot-Extended", "Apple", models.CategoryAITraining),
	entry("Applebot", "Applebot", "Apple", models.CategorySearchAI),

	// Meta
	entry("meta-externalfetcher", "Meta-ExternalFetcher", "Meta", models.CategoryAIAssistant),
	entry("meta-externalagent", "Meta-ExternalAgent", "Meta", models.CategoryAITraining),
	entry("FacebookBot", "FacebookBot", "Meta", models.CategorySocialAI),
	entry("facebookexternalhit", "facebookexternalhit", "Meta", models.CategorySocialAI),

	// Amazon, ByteDance, others
	entry("Amazonbot", "Amazonbot", "Amazon", models.CategoryAIAssistant),
	entry("Bytespider", "Bytespider", "ByteDance", models.CategoryAITraining),
	entry("DuckAssistBot", "DuckAssistBot", "DuckDuckGo", models.CategoryAIAssistant),
	entry("MistralAI-User", "MistralAI-User", "Mistral", models.CategoryAIAssistant),
	entry("cohere-training-data-crawler", "cohere-training-data-crawler", "Cohere", models.CategoryAITraining),
	entry("cohere-ai", "cohere-ai", "Cohere", models.CategoryAIAssistant),
	entry("YouBot", "YouBot", "You.com", models.CategoryAISearch),
	entry("PetalBot", "PetalBot", "Huawei", models.CategorySearchAI),
	entry("PanguBot", "PanguBot", "Huawei", models.CategoryAITraining),
	entry("AI2Bot", "AI2Bot", "Allen Institute for AI", models.CategoryAITraining),
	entry("Timpibot", "Timpibot", "Timpi", models.CategoryAITraining),
	entry("Webzio-Extended", "Webzio-Extended", "Webz.io", models.CategoryAITraining),
	entry("omgili", "Omgilibot", "Webz.io", models.CategoryAIExtraction),
	entry("Diffbot", "Diffbot", "Diffbot", models.CategoryAIExtraction),
	entry("ImagesiftBot", "ImagesiftBot", "ImageSift", models.CategoryAIExtraction),
	entry("FirecrawlAgent", "FirecrawlAgent", "Firecrawl", models.CategoryAIExtraction),
	entry("LinkedInBot", "LinkedInBot", "LinkedIn", models.CategorySocialAI),
	entry("Twitterbot", "Twitterbot", "X", models.CategorySocialAI),

	// Archival
	entry("CCBot", "CCBot", "Common Crawl", models.CategoryArchival),
	entry("archive.org_bot", "archive.org_bot", "Internet Archive", models.CategoryArchival),
	entry("ia_archiver", "ia_archiver", "Internet Archive", models.CategoryArchival),
}

var lowerTokens = func() []string {
	tokens := make([]string, len(registry))
	for i, e := range registry {
		tokens[i] = strings.ToLower(e.Token)
	}
	return tokens
}()

// Registry returns a copy of the known crawler table in match order.
func Registry() []Entry {
	out := make([]Entry, len(registry))
	copy(out, registry)
	return out
}
