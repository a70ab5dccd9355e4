package providers

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gookit/validate"

	"crawlerd/internal/structures"
)

type CnfValidatorInterface interface {
	Validate() error
}

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) CnfValidatorInterface {
	return &CnfValidator{conf: conf}
}

func (c *CnfValidator) Validate() error {
	v := validate.Struct(c.conf)
	if !v.Validate() {
		return v.Errors
	}
	return c.validateDependencies()
}

// validateDependencies covers rules that span sections.
func (c *CnfValidator) validateDependencies() error {
	conf := c.conf
	var errs []error

	sqlDriver := conf.Storage.Driver == "postgres" || conf.Storage.Driver == "sqlite3"
	if sqlDriver && conf.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required for storage driver %s", conf.Storage.Driver))
	}
	if conf.Storage.Rollup == "redis" && conf.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when storage.rollup is redis"))
	}
	if conf.Auth.Source == "database" && !sqlDriver {
		errs = append(errs, errors.New("auth.source database needs a postgres or sqlite3 storage driver"))
	}
	if conf.Auth.CacheTTL < 0 {
		errs = append(errs, errors.New("auth.cacheTTL must not be negative"))
	}
	if conf.Ingest.RateLimit < 0 || conf.Ingest.RateBurst < 0 {
		errs = append(errs, errors.New("ingest rate limit must not be negative"))
	}

	for i, k := range conf.Auth.Keys {
		if b, err := hex.DecodeString(k.Hash); err != nil || len(b) != 32 {
			errs = append(errs, fmt.Errorf("auth.keys[%d]: hash must be a sha256 hex digest", i))
		}
		if k.OwnerID == "" {
			errs = append(errs, fmt.Errorf("auth.keys[%d]: ownerId is required", i))
		}
	}

	return errors.Join(errs...)
}
