package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"crawlerd/internal/models"
	"crawlerd/internal/storage"
)

// SQLValidator reads the api_keys table. Domains are stored comma-separated.
type SQLValidator struct {
	db *storage.DB
}

func NewSQLValidator(db *storage.DB) *SQLValidator {
	return &SQLValidator{db: db}
}

func (v *SQLValidator) Lookup(ctx context.Context, hash string) (*models.ApiKeyRecord, error) {
	var (
		rec     models.ApiKeyRecord
		domains string
	)
	err := v.db.QueryRowContext(ctx, v.db.Rebind(`SELECT owner_id, name, domains, is_active
		FROM api_keys WHERE key_hash = ?`), strings.ToLower(hash)).
		Scan(&rec.OwnerID, &rec.Name, &domains, &rec.IsValid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup key %s: %w", ShortHash(hash), err)
	}
	rec.DomainAllowList = splitDomains(domains)
	return &rec, nil
}

func splitDomains(s string) []string {
	return normalizeAllowList(strings.Split(s, ","))
}
