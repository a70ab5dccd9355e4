package controllers

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"crawlerd/internal/crawlers"
	"crawlerd/internal/models"
	"crawlerd/internal/providers"
	"crawlerd/internal/services"
)

// registryTTL applies to /crawlers, which only changes with a release.
const registryTTL = 10 * time.Minute

// ApiController serves read-only queries over the rollups and the crawler
// registry. Stats responses are cached per key for cache.ttl and dropped
// when the key's owner ingests new events.
type ApiController struct {
	logger  providers.Logger
	service services.IngestionServiceInterface
	cache   providers.CacheProviderInterface
}

func NewApiController(logger providers.Logger, service services.IngestionServiceInterface, cache providers.CacheProviderInterface) *ApiController {
	return &ApiController{
		logger:  logger,
		service: service,
		cache:   cache,
	}
}

func (ac *ApiController) serveFromCacheOrCompute(w http.ResponseWriter, cacheKey string, ttl time.Duration, compute func() (any, error)) {
	if data, ok := ac.cache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	result, err := compute()
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			ac.logger.Errorf(providers.TypeQuery, "Query %s failed: %v", cacheKey, err)
		}
		writeError(w, status, errorMessage(status, err))
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if ttl > 0 {
		ac.cache.SetTTL(cacheKey, gson, ttl)
	} else {
		ac.cache.Set(cacheKey, gson)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

// GetStats lists daily rollups for ?domain= between ?from= and ?to=.
func (ac *ApiController) GetStats(w http.ResponseWriter, r *http.Request) {
	caller, err := authenticate(r.Context(), ac.service, r)
	if err != nil {
		status := statusFor(err)
		writeError(w, status, errorMessage(status, err))
		return
	}

	q := r.URL.Query()
	domain, from, to := models.NormalizeDomain(q.Get("domain")), q.Get("from"), q.Get("to")
	// Keys of one owner can carry different allow-lists, so the check runs
	// before the cache and the entry is scoped to the key hash.
	if domain != "" && !caller.Key.AllowsDomain(domain) {
		writeError(w, http.StatusForbidden, errorMessage(http.StatusForbidden, services.ErrForbidden))
		return
	}
	key := ac.cache.ScopedKey(caller.Key.OwnerID, "stats:"+caller.Hash+":"+domain+":"+from+":"+to)
	ac.serveFromCacheOrCompute(w, key, 0, func() (any, error) {
		return ac.service.Stats(r.Context(), caller, domain, from, to)
	})
}

func (ac *ApiController) GetCrawlers(w http.ResponseWriter, _ *http.Request) {
	ac.serveFromCacheOrCompute(w, "crawlers", registryTTL, func() (any, error) {
		return crawlers.Registry(), nil
	})
}
