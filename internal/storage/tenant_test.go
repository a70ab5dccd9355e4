package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlerd/internal/structures"
)

func TestSQLTenantResolver_PrefersPrimaryThenOldest(t *testing.T) {
	_, db := newSQLiteStore(t)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	insert := `INSERT INTO workspaces (id, owner_id, name, is_primary, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := db.Exec(insert, "ws-old", "owner-1", "old", false, t0)
	require.NoError(t, err)
	_, err = db.Exec(insert, "ws-new", "owner-1", "new", false, t0.Add(time.Hour))
	require.NoError(t, err)

	r := NewSQLTenantResolver(db)
	ws, err := r.PrimaryWorkspace(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "ws-old", ws)

	_, err = db.Exec(insert, "ws-main", "owner-1", "main", true, t0.Add(2*time.Hour))
	require.NoError(t, err)
	ws, err = r.PrimaryWorkspace(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "ws-main", ws)
}

func TestSQLTenantResolver_NoWorkspace(t *testing.T) {
	_, db := newSQLiteStore(t)
	ws, err := NewSQLTenantResolver(db).PrimaryWorkspace(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func TestStaticTenantResolver(t *testing.T) {
	r := NewStaticTenantResolver([]structures.StaticKey{
		{OwnerID: "owner-1"},
		{OwnerID: "owner-1", Workspace: "ws-1"},
		{OwnerID: "owner-1", Workspace: "ws-2"},
	})

	ws, err := r.PrimaryWorkspace(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "ws-1", ws)

	ws, err = r.PrimaryWorkspace(context.Background(), "owner-2")
	require.NoError(t, err)
	assert.Empty(t, ws)
}
