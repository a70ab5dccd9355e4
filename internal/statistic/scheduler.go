package statistic

import (
	"sync"
	"time"

	"github.com/roylee0704/gron"

	"crawlerd/internal/providers"
	"crawlerd/internal/storage"
	"crawlerd/internal/structures"
)

const (
	pruneInterval   = time.Minute
	limiterIdleTime = 10 * time.Minute
	gaugeInterval   = 15 * time.Second
)

type SchedulerInterface interface {
	Init()
	Stop()
	Restore() error
	Persist() error
}

// Scheduler runs periodic housekeeping: snapshots of the in-memory store,
// pruning of idle rate limiters and gauge updates.
type Scheduler struct {
	config      *structures.Config
	logger      providers.Logger
	fileManager *FileManager
	records     storage.Snapshotter
	limiter     providers.RateLimiterInterface
	metrics     providers.MetricsProviderInterface
	cron        *gron.Cron
	opsMu       sync.Mutex
}

// persistent reports whether snapshots are written at all.
func (s *Scheduler) persistent() bool {
	return s.records != nil && s.fileManager != nil && s.config.Persistence.FilePath != ""
}

func (s *Scheduler) Init() {
	s.cron = gron.New()

	if interval := s.config.Persistence.SaveInterval; s.persistent() && interval > 0 {
		s.cron.AddFunc(gron.Every(interval), func() {
			if err := s.Persist(); err == nil {
				s.logger.Debugf(providers.TypeApp, "Persisted data to file %s", s.config.Persistence.FilePath)
			}
		})
	}

	s.cron.AddFunc(gron.Every(pruneInterval), func() {
		if n := s.limiter.Prune(limiterIdleTime); n > 0 {
			s.logger.Debugf(providers.TypeApp, "Pruned %d idle rate limiters", n)
		}
	})

	s.cron.AddFunc(gron.Every(gaugeInterval), s.updateGauges)

	s.cron.Start()
}

func (s *Scheduler) updateGauges() {
	s.metrics.SetRateLimiters(s.limiter.Len())
	if s.records != nil {
		s.metrics.SetRecordsTotal(s.config.Storage.Driver, s.records.Len())
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) Restore() error {
	if !s.persistent() {
		return nil
	}
	if err := s.fileManager.LoadFromFile(s.config.Persistence.FilePath); err != nil {
		return err
	}
	s.updateGauges()
	return nil
}

func (s *Scheduler) Persist() error {
	if !s.persistent() {
		return nil
	}
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	start := time.Now()
	err := s.fileManager.SaveToFile(s.config.Persistence.FilePath)
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting data: %s", err)
		return err
	}
	s.metrics.ObservePersistenceDuration(time.Since(start))
	return nil
}

func NewScheduler(
	config *structures.Config,
	logger providers.Logger,
	fileManager *FileManager,
	records storage.Snapshotter,
	limiter providers.RateLimiterInterface,
	metrics providers.MetricsProviderInterface,
) SchedulerInterface {
	return &Scheduler{
		config:      config,
		logger:      logger,
		fileManager: fileManager,
		records:     records,
		limiter:     limiter,
		metrics:     metrics,
	}
}
