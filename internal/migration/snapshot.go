package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"github.com/arkilian/entitydb/internal/storage"
	"github.com/arkilian/entitydb/internal/store"
)

// SnapshotKey is the object path a shard snapshot is stored under.
func SnapshotKey(runID, shardPath, fromVersion string) string {
	return fmt.Sprintf("snapshots/%s/%s.%s.sz", runID, filepath.Base(shardPath), fromVersion)
}

// Snapshot checkpoints db, compresses its file, and uploads it to st under
// key.
func Snapshot(ctx context.Context, db *store.DB, st storage.ObjectStorage, key string) error {
	// Fold the WAL into the main file so the copy is complete.
	if _, err := db.Exec(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("migration: checkpoint before snapshot failed: %w", err)
	}
	raw, err := os.ReadFile(db.Path())
	if err != nil {
		return fmt.Errorf("migration: failed to read %s: %w", db.Path(), err)
	}
	if err := st.Put(ctx, key, snappy.Encode(nil, raw)); err != nil {
		return fmt.Errorf("migration: failed to upload snapshot %s: %w", key, err)
	}
	return nil
}

// RestoreSnapshot downloads the snapshot at key and writes it to destPath,
// replacing the shard file. The shard must not be open.
func RestoreSnapshot(ctx context.Context, st storage.ObjectStorage, key, destPath string) error {
	compressed, err := st.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("migration: failed to download snapshot %s: %w", key, err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return fmt.Errorf("migration: corrupt snapshot %s: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("migration: failed to create %s: %w", filepath.Dir(destPath), err)
	}
	tmp := destPath + ".restore"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("migration: failed to write %s: %w", tmp, err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(destPath + suffix); err != nil && !os.IsNotExist(err) {
			os.Remove(tmp)
			return fmt.Errorf("migration: failed to remove stale %s: %w", destPath+suffix, err)
		}
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("migration: failed to replace %s: %w", destPath, err)
	}
	return nil
}
