package statistic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlerd/internal/compression"
	"crawlerd/internal/models"
	"crawlerd/internal/storage"
	"crawlerd/internal/testutil"
)

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore(0)
	rt := 120
	events := []*models.CrawlerEvent{
		{
			Timestamp:      time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
			Domain:         "example.com",
			Path:           "/a",
			Crawler:        models.CrawlerIdentity{Name: "GPTBot", Company: "OpenAI", Category: models.CategoryAITraining},
			UserAgent:      "GPTBot",
			Country:        "US",
			ResponseTimeMs: &rt,
		},
	}
	for k, d := range models.GroupDaily("owner-1", events) {
		require.NoError(t, store.Merge(context.Background(), k, d))
	}
	return store
}

var seededKey = models.DailyKey{OwnerID: "owner-1", Domain: "example.com", Date: "2024-03-10", CrawlerName: "GPTBot"}

func TestFileManager_SaveToFile_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.dat")
	fm := NewFileManager(&testutil.MockCompressor{}, seededStore(t), &testutil.MockLogger{})

	require.NoError(t, fm.SaveToFile(path))

	_, err := os.Stat(path)
	assert.NoError(t, err)

	// Temp file should not exist
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileManager_RoundTripWithZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollups.zst")
	comp, err := compression.NewZstdCompressor()
	require.NoError(t, err)

	fm := NewFileManager(comp, seededStore(t), &testutil.MockLogger{})
	require.NoError(t, fm.SaveToFile(path))

	restored := storage.NewMemoryStore(0)
	loader := NewFileManager(comp, restored, &testutil.MockLogger{})
	require.NoError(t, loader.LoadFromFile(path))
	loader.Close()

	rec, err := restored.Get(context.Background(), seededKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.VisitCount)
	assert.Equal(t, int64(1), rec.UniquePathCount)
	assert.InDelta(t, 120.0, rec.AvgResponseTimeMs, 0.001)
	assert.Equal(t, map[string]int64{"US": 1}, rec.CountryCounts)
}

func TestFileManager_LoadFromFile_FileNotExist(t *testing.T) {
	fm := NewFileManager(&testutil.MockCompressor{}, storage.NewMemoryStore(0), &testutil.MockLogger{})
	err := fm.LoadFromFile("/nonexistent/path/file.dat")
	assert.NoError(t, err) // not an error, just no data
}

func TestFileManager_LoadFromFile_Corrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.dat")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	fm := NewFileManager(&testutil.MockCompressor{}, storage.NewMemoryStore(0), &testutil.MockLogger{})
	assert.Error(t, fm.LoadFromFile(path))
}

func TestFileManager_LoadFromFile_UnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.dat")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":7,"records":[]}`), 0644))

	fm := NewFileManager(&testutil.MockCompressor{}, storage.NewMemoryStore(0), &testutil.MockLogger{})
	assert.Error(t, fm.LoadFromFile(path))
}

func TestFileManager_DecompressError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	comp := &testutil.MockCompressor{DecompressFn: func([]byte) ([]byte, error) { return nil, errors.New("bad frame") }}
	fm := NewFileManager(comp, storage.NewMemoryStore(0), &testutil.MockLogger{})
	assert.ErrorContains(t, fm.LoadFromFile(path), "bad frame")
}

func TestFileManager_SaveToFile_BadDirectory(t *testing.T) {
	fm := NewFileManager(&testutil.MockCompressor{}, storage.NewMemoryStore(0), &testutil.MockLogger{})
	assert.Error(t, fm.SaveToFile("/nonexistent/dir/file.dat"))
}
