package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"crawlerd/internal/keys"
	"crawlerd/internal/models"
	"crawlerd/internal/providers"
	"crawlerd/internal/storage"
	"crawlerd/internal/structures"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("persistence failed")
)

// Caller is an authenticated API key. Hash is the SHA-256 hex of the raw key.
type Caller struct {
	Hash string
	Key  *models.ApiKeyRecord
}

type IngestionServiceInterface interface {
	Authenticate(ctx context.Context, rawKey string) (*Caller, error)
	Ingest(ctx context.Context, caller *Caller, items []json.RawMessage) (*models.IngestResponse, error)
	Ping(ctx context.Context, caller *Caller) *models.PingResult
	Stats(ctx context.Context, caller *Caller, domain, from, to string) ([]*models.DailyStatsRecord, error)
}

type IngestionService struct {
	validator    keys.Validator
	events       storage.EventStore
	rollups      storage.RollupStore
	tenants      storage.TenantResolver
	logger       providers.Logger
	metrics      providers.MetricsProviderInterface
	maxBatchSize int
	now          func() time.Time
}

func NewIngestionService(
	conf *structures.Config,
	validator keys.Validator,
	events storage.EventStore,
	rollups storage.RollupStore,
	tenants storage.TenantResolver,
	logger providers.Logger,
	metrics providers.MetricsProviderInterface,
) IngestionServiceInterface {
	return &IngestionService{
		validator:    validator,
		events:       events,
		rollups:      rollups,
		tenants:      tenants,
		logger:       logger,
		metrics:      metrics,
		maxBatchSize: conf.Ingest.MaxBatchSize,
		now:          time.Now,
	}
}

func (s *IngestionService) Authenticate(ctx context.Context, rawKey string) (*Caller, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("%w: missing api key", ErrUnauthorized)
	}
	hash := keys.HashKey(rawKey)

	rec, err := s.validator.Lookup(ctx, hash)
	if errors.Is(err, keys.ErrNotFound) {
		s.logger.Warnf(providers.TypeIngest, "Unknown api key %s", keys.ShortHash(hash))
		return nil, fmt.Errorf("%w: invalid api key", ErrUnauthorized)
	}
	if err != nil {
		s.logger.Errorf(providers.TypeIngest, "Key lookup failed for %s: %v", keys.ShortHash(hash), err)
		return nil, fmt.Errorf("key lookup: %w", err)
	}
	if !rec.IsValid {
		s.logger.Warnf(providers.TypeIngest, "Inactive api key %s", keys.ShortHash(hash))
		return nil, fmt.Errorf("%w: invalid api key", ErrUnauthorized)
	}
	return &Caller{Hash: hash, Key: rec}, nil
}

// Ingest normalizes, filters and stores one batch. Only a failure to store
// the raw events fails the request; rollup failures are logged per key.
func (s *IngestionService) Ingest(ctx context.Context, caller *Caller, items []json.RawMessage) (*models.IngestResponse, error) {
	if items == nil {
		return nil, fmt.Errorf("%w: events field is required", ErrValidation)
	}
	if s.maxBatchSize > 0 && len(items) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: %d events exceeds the limit of %d", ErrValidation, len(items), s.maxBatchSize)
	}

	resp := &models.IngestResponse{Success: true}
	receivedAt := s.now().UTC()
	accepted := make([]*models.CrawlerEvent, 0, len(items))

	for i, raw := range items {
		ev, err := decodeEvent(raw, receivedAt)
		if err != nil {
			resp.Invalid++
			s.logger.Debugf(providers.TypeIngest, "Dropping event %d from %s: %v", i, keys.ShortHash(caller.Hash), err)
			continue
		}
		if !caller.Key.AllowsDomain(ev.Domain) {
			resp.Skipped++
			continue
		}
		accepted = append(accepted, ev)
	}

	s.metrics.AddEvents(providers.EventsInvalid, resp.Invalid)
	s.metrics.AddEvents(providers.EventsSkipped, resp.Skipped)
	if len(accepted) == 0 {
		return resp, nil
	}

	owner := caller.Key.OwnerID
	workspace, err := s.tenants.PrimaryWorkspace(ctx, owner)
	if err != nil {
		s.logger.Warnf(providers.TypeIngest, "Workspace lookup for %s failed, storing untagged: %v", owner, err)
		workspace = ""
	} else if workspace == "" {
		s.logger.Debugf(providers.TypeIngest, "Owner %s has no workspace", owner)
	}

	if err := s.events.InsertEvents(ctx, owner, workspace, accepted); err != nil {
		s.logger.Errorf(providers.TypeIngest, "Storing %d events for %s failed: %v", len(accepted), owner, err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	resp.Processed = len(accepted)
	s.metrics.AddEvents(providers.EventsProcessed, resp.Processed)

	for key, delta := range models.GroupDaily(owner, accepted) {
		if err := s.rollups.Merge(ctx, key, delta); err != nil {
			s.metrics.IncRollupFailures()
			s.logger.Errorf(providers.TypeIngest, "Rollup merge %s failed: %v", key, err)
		}
	}
	return resp, nil
}

func decodeEvent(raw json.RawMessage, receivedAt time.Time) (*models.CrawlerEvent, error) {
	var dto models.EventDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidField, err)
	}
	ev, err := models.Normalize(dto, receivedAt)
	if err != nil {
		return nil, err
	}
	ev.ID = uuid.NewString()
	return ev, nil
}

func (s *IngestionService) Ping(ctx context.Context, caller *Caller) *models.PingResult {
	conn := &models.PingConnection{
		Authenticated: true,
		KeyName:       caller.Key.Name,
		Domain:        caller.Key.PrimaryDomain(),
	}
	workspace, err := s.tenants.PrimaryWorkspace(ctx, caller.Key.OwnerID)
	if err != nil {
		s.logger.Warnf(providers.TypeQuery, "Workspace lookup for %s failed: %v", caller.Key.OwnerID, err)
	}
	conn.Workspace = workspace
	return &models.PingResult{Status: models.PingStatusOK, Connection: conn}
}

// Stats lists the caller's rollups for one domain. from and to default to
// the last 30 days ending today (UTC).
func (s *IngestionService) Stats(ctx context.Context, caller *Caller, domain, from, to string) ([]*models.DailyStatsRecord, error) {
	domain = models.NormalizeDomain(domain)
	if domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if !caller.Key.AllowsDomain(domain) {
		return nil, fmt.Errorf("%w: domain %s not allowed for this key", ErrForbidden, domain)
	}

	today := s.now().UTC()
	if to == "" {
		to = today.Format(models.DateLayout)
	}
	if from == "" {
		from = today.AddDate(0, 0, -29).Format(models.DateLayout)
	}
	for _, d := range []string{from, to} {
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			return nil, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, d)
		}
	}
	if from > to {
		return nil, fmt.Errorf("%w: from is after to", ErrValidation)
	}

	records, err := s.rollups.List(ctx, caller.Key.OwnerID, domain, from, to)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	if records == nil {
		records = []*models.DailyStatsRecord{}
	}
	return records, nil
}
