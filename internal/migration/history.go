package migration

import (
	"context"
	"fmt"
	"time"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/arkilian/entitydb/internal/store"
	"github.com/arkilian/entitydb/pkg/types"
)

const (
	historyTable    = "_entitydb_migrations"
	historySetTable = "_entitydb_migration_set"
)

// historySource creates the per-shard bookkeeping table. It is applied with
// sql-migrate so the table itself is versioned like any other schema.
var historySource = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_create_migration_history",
			Up: []string{`CREATE TABLE IF NOT EXISTS "_entitydb_migrations" (
				"run_id" TEXT NOT NULL,
				"from_version" TEXT NOT NULL,
				"to_version" TEXT NOT NULL,
				"checksum" TEXT NOT NULL,
				"applied_at" INTEGER NOT NULL
			)`},
			Down: []string{`DROP TABLE IF EXISTS "_entitydb_migrations"`},
		},
	},
}

// HistoryEntry is one applied step recorded in a shard.
type HistoryEntry struct {
	RunID       string
	FromVersion string
	ToVersion   string
	Checksum    string
	AppliedAt   time.Time
}

func installHistory(db *store.DB) error {
	set := migrate.MigrationSet{TableName: historySetTable}
	if _, err := set.Exec(db.SQL(), "sqlite3", historySource, migrate.Up); err != nil {
		return fmt.Errorf("migration: failed to install history table: %w", err)
	}
	return nil
}

func alreadyApplied(ctx context.Context, db *store.DB, to, checksum string) (bool, error) {
	cur, err := db.Query(ctx, historyTable, `"to_version" = ? AND "checksum" = ?`, []any{to, checksum}, "", "1")
	if err != nil {
		return false, err
	}
	defer cur.Close()
	found := cur.Next()
	return found, cur.Err()
}

func recordApplied(ctx context.Context, tx *store.Tx, e HistoryEntry) error {
	_, err := tx.Insert(ctx, historyTable, []types.ColumnValue{
		{Column: "run_id", Value: e.RunID},
		{Column: "from_version", Value: e.FromVersion},
		{Column: "to_version", Value: e.ToVersion},
		{Column: "checksum", Value: e.Checksum},
		{Column: "applied_at", Value: e.AppliedAt.Unix()},
	})
	return err
}

// History returns the steps recorded in the shard at path, oldest first.
func History(ctx context.Context, path string) ([]HistoryEntry, error) {
	db, err := store.OpenExisting(path, store.Options{})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := installHistory(db); err != nil {
		return nil, err
	}
	cur, err := db.Query(ctx, historyTable, "", nil, `"applied_at" ASC, rowid ASC`, "")
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []HistoryEntry
	for cur.Next() {
		var e HistoryEntry
		e.RunID, _ = cur.GetString(cur.ColumnIndex("run_id"))
		e.FromVersion, _ = cur.GetString(cur.ColumnIndex("from_version"))
		e.ToVersion, _ = cur.GetString(cur.ColumnIndex("to_version"))
		e.Checksum, _ = cur.GetString(cur.ColumnIndex("checksum"))
		at, err := cur.GetLong(cur.ColumnIndex("applied_at"))
		if err != nil {
			return nil, fmt.Errorf("migration: bad history row: %w", err)
		}
		e.AppliedAt = time.Unix(at, 0)
		out = append(out, e)
	}
	return out, cur.Err()
}
