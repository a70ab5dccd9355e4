package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"crawlerd/internal/compression"
	"crawlerd/internal/keys"
	"crawlerd/internal/models"
	"crawlerd/internal/providers"
	"crawlerd/internal/services"
	"crawlerd/internal/structures"
)

// EventsController serves the agent-facing endpoints.
type EventsController struct {
	logger      providers.Logger
	service     services.IngestionServiceInterface
	limiter     providers.RateLimiterInterface
	compressor  compression.CompressorInterface
	cache       providers.CacheProviderInterface
	maxBodySize int64
}

func NewEventsController(
	conf *structures.Config,
	logger providers.Logger,
	service services.IngestionServiceInterface,
	limiter providers.RateLimiterInterface,
	compressor compression.CompressorInterface,
	cache providers.CacheProviderInterface,
) *EventsController {
	return &EventsController{
		logger:      logger,
		service:     service,
		limiter:     limiter,
		compressor:  compressor,
		cache:       cache,
		maxBodySize: conf.Ingest.MaxBodySize,
	}
}

func (ec *EventsController) ReceiveEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := authenticate(ctx, ec.service, r)
	if err != nil {
		status := statusFor(err)
		writeError(w, status, errorMessage(status, err))
		return
	}
	if !ec.limiter.Allow(caller.Hash) {
		ec.logger.Warnf(providers.TypeIngest, "Rate limited key %s", keys.ShortHash(caller.Hash))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, status, err := ec.readBody(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	var payload models.RawEventsRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := ec.service.Ingest(ctx, caller, payload.Events)
	if err != nil {
		status := statusFor(err)
		writeError(w, status, errorMessage(status, err))
		return
	}
	if resp.Processed > 0 {
		ec.cache.Invalidate(caller.Key.OwnerID)
	}
	writeJSON(w, http.StatusOK, resp)
}

var errBodyTooLarge = errors.New("request body too large")

// readBody enforces the body limit on both the wire bytes and the decoded
// bytes of a zstd body.
func (ec *EventsController) readBody(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, ec.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge, errBodyTooLarge
		}
		return nil, http.StatusBadRequest, errors.New("unreadable body")
	}

	encoding := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return body, 0, nil
	case compression.ContentEncoding:
		decoded, err := ec.compressor.Decompress(body)
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("invalid zstd body")
		}
		if int64(len(decoded)) > ec.maxBodySize {
			return nil, http.StatusRequestEntityTooLarge, errBodyTooLarge
		}
		return decoded, 0, nil
	default:
		return nil, http.StatusUnsupportedMediaType, errors.New("unsupported content encoding " + encoding)
	}
}

// Ping answers GET and POST /ping with the identity the key resolves to.
func (ec *EventsController) Ping(w http.ResponseWriter, r *http.Request) {
	caller, err := authenticate(r.Context(), ec.service, r)
	if err != nil {
		status := statusFor(err)
		writeJSON(w, status, models.PingResult{Status: models.PingStatusError, Error: errorMessage(status, err)})
		return
	}
	writeJSON(w, http.StatusOK, ec.service.Ping(r.Context(), caller))
}
