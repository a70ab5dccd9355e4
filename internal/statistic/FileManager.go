package statistic

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"crawlerd/internal/compression"
	"crawlerd/internal/providers"
	"crawlerd/internal/storage"
)

// FileManager writes and reads zstd-compressed JSON snapshots of an
// in-memory rollup store.
type FileManager struct {
	store      storage.Snapshotter
	compressor compression.CompressorInterface
	logger     providers.Logger
}

func NewFileManager(compressor compression.CompressorInterface, store storage.Snapshotter, logger providers.Logger) *FileManager {
	return &FileManager{
		compressor: compressor,
		store:      store,
		logger:     logger,
	}
}

// SaveToFile writes to a temp file and renames it over fileName so a crash
// never leaves a half-written snapshot.
func (f *FileManager) SaveToFile(fileName string) error {
	snapshot := f.store.Snapshot()

	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	data, err := f.compressor.Compress(jsonData)
	if err != nil {
		return err
	}

	tmpFile := fileName + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, fileName)
}

func (f *FileManager) Close() {
	f.compressor.Close()
}

// LoadFromFile restores the store from fileName. A missing file is not an
// error: the daemon starts empty.
func (f *FileManager) LoadFromFile(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	decompressedData, err := f.compressor.Decompress(data)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", fileName, err)
	}

	var snapshot storage.Snapshot
	if err := json.Unmarshal(decompressedData, &snapshot); err != nil {
		return fmt.Errorf("decode %s: %w", fileName, err)
	}
	if err := f.store.Restore(&snapshot); err != nil {
		return err
	}
	f.logger.Infof(providers.TypeApp, "Restored %d rollup records saved at %s", len(snapshot.Records), snapshot.SavedAt)
	return nil
}
