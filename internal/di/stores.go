package di

import (
	"fmt"

	"crawlerd/internal/compression"
	"crawlerd/internal/keys"
	"crawlerd/internal/providers"
	"crawlerd/internal/storage"
	"crawlerd/internal/structures"
)

// Stores holds the backends selected by the storage section. Records is
// non-nil only when rollups live in process memory.
type Stores struct {
	Events  storage.EventStore
	Rollups storage.RollupStore
	Tenants storage.TenantResolver
	Records storage.Snapshotter
	DB      *storage.DB
}

func NewStores(conf *structures.Config, logger providers.Logger) (*Stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	s := &Stores{}
	switch conf.Storage.Driver {
	case storage.DriverPostgres, storage.DriverSQLite:
		db, err := storage.OpenDatabase(conf)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", conf.Storage.Driver, err)
		}
		closers = append(closers, func() { _ = db.Close() })
		sqlStore := storage.NewSQLStore(db)
		s.DB = db
		s.Events = sqlStore
		s.Rollups = sqlStore
	default:
		mem := storage.NewMemoryStore(storage.DefaultMaxRawEvents)
		s.Events = mem
		s.Rollups = mem
		s.Records = mem
	}

	if conf.Storage.Rollup == "redis" {
		rs, err := storage.NewRedisRollupStore(conf)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = rs.Close() })
		s.Rollups = rs
		s.Records = nil
	}

	if conf.Auth.Source == "database" && s.DB != nil {
		s.Tenants = storage.NewSQLTenantResolver(s.DB)
	} else {
		s.Tenants = storage.NewStaticTenantResolver(conf.Auth.Keys)
	}

	logger.Infof(providers.TypeApp, "Storage ready: events=%s rollups=%s", conf.Storage.Driver, rollupName(conf))
	return s, cleanup, nil
}

func rollupName(conf *structures.Config) string {
	if conf.Storage.Rollup == "redis" {
		return "redis"
	}
	return conf.Storage.Driver
}

// NewKeyValidator resolves key hashes from the configured source, fronted by
// the in-process key cache.
func NewKeyValidator(conf *structures.Config, stores *Stores, metrics providers.MetricsProviderInterface) (keys.Validator, error) {
	var inner keys.Validator
	switch conf.Auth.Source {
	case "database":
		if stores.DB == nil {
			return nil, fmt.Errorf("auth source database needs a sql storage driver, got %s", conf.Storage.Driver)
		}
		inner = keys.NewSQLValidator(stores.DB)
	default:
		inner = keys.NewStaticValidator(conf.Auth.Keys)
	}
	return keys.NewCachedValidator(inner, keys.NewCache(conf.Auth.CacheSize, conf.Auth.CacheTTL), metrics), nil
}

// NewCompressor returns the shared zstd codec with a cleanup that releases
// its encoder and decoder.
func NewCompressor() (compression.CompressorInterface, func(), error) {
	c, err := compression.NewZstdCompressor()
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}
