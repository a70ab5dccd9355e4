package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crawlerd/internal/structures"
)

// SQLTenantResolver reads the workspaces table. The primary workspace wins,
// otherwise the oldest.
type SQLTenantResolver struct {
	db *DB
}

func NewSQLTenantResolver(db *DB) *SQLTenantResolver {
	return &SQLTenantResolver{db: db}
}

func (r *SQLTenantResolver) PrimaryWorkspace(ctx context.Context, ownerID string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT id FROM workspaces WHERE owner_id = ?
		ORDER BY is_primary DESC, created_at ASC LIMIT 1`), ownerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve workspace for %s: %w", ownerID, err)
	}
	return id, nil
}

// StaticTenantResolver serves workspaces declared next to static keys.
type StaticTenantResolver struct {
	workspaces map[string]string
}

func NewStaticTenantResolver(keys []structures.StaticKey) *StaticTenantResolver {
	ws := make(map[string]string)
	for _, k := range keys {
		if k.Workspace == "" {
			continue
		}
		if _, ok := ws[k.OwnerID]; !ok {
			ws[k.OwnerID] = k.Workspace
		}
	}
	return &StaticTenantResolver{workspaces: ws}
}

func (r *StaticTenantResolver) PrimaryWorkspace(_ context.Context, ownerID string) (string, error) {
	return r.workspaces[ownerID], nil
}
