package persistence

import (
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"referrald/internal/models"
	"referrald/internal/persistence/interfaces"
	"referrald/internal/providers"
	"referrald/internal/storage"
)

// FileManager writes the in-memory participant store to a single zstd
// compressed JSON file and reads it back at boot. With a store that persists
// on its own the snapshotter is nil and every call is a no-op.
type FileManager struct {
	snapshotter storage.Snapshotter
	compressor  interfaces.CompressorInterface
	metrics     providers.MetricsProviderInterface
	logger      providers.Logger
}

func NewFileManager(compressor interfaces.CompressorInterface, snapshotter storage.Snapshotter, metrics providers.MetricsProviderInterface, logger providers.Logger) *FileManager {
	return &FileManager{
		compressor:  compressor,
		snapshotter: snapshotter,
		metrics:     metrics,
		logger:      logger,
	}
}

func (f *FileManager) Enabled() bool {
	return f.snapshotter != nil
}

func (f *FileManager) SaveToFile(fileName string) error {
	if !f.Enabled() {
		return nil
	}
	start := time.Now()
	snapshot := f.snapshotter.Snapshot()

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

	if err = os.Rename(tmpFile, fileName); err != nil {
		return err
	}
	f.metrics.ObservePersistenceDuration(time.Since(start))
	f.logger.Debugf(providers.TypeStorage, "Snapshot of %d participants written to %s", len(snapshot.Participants), fileName)
	return nil
}

func (f *FileManager) Close() {
	f.compressor.Close()
}

// LoadFromFile restores the snapshot. A missing file means a fresh ledger.
func (f *FileManager) LoadFromFile(fileName string) error {
	if !f.Enabled() {
		return nil
	}
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			f.logger.Infof(providers.TypeStorage, "No snapshot at %s, starting empty", fileName)
			return nil
		}
		return err
	}

	decompressed, err := f.compressor.Decompress(data)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(decompressed, &snapshot); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if snapshot.Version > models.SnapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than supported %d", snapshot.Version, models.SnapshotVersion)
	}
	if snapshot.Version < models.SnapshotVersion {
		f.logger.Warnf(providers.TypeStorage, "Snapshot version %d is older than %d, loading as is", snapshot.Version, models.SnapshotVersion)
	}

	f.snapshotter.Restore(&snapshot)
	f.logger.Infof(providers.TypeStorage, "Restored %d participants and %d receipts from %s",
		len(snapshot.Participants), len(snapshot.Receipts), fileName)
	return nil
}
