package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arkilian/entitydb/internal/store"
	"github.com/arkilian/entitydb/pkg/types"
)

const versionTable = "_entitydb_schemas"

const createVersionTableSQL = `CREATE TABLE IF NOT EXISTS "_entitydb_schemas" (
	"table_name" TEXT NOT NULL,
	"version" INTEGER NOT NULL,
	"schema_json" TEXT NOT NULL,
	"created_at" INTEGER NOT NULL,
	PRIMARY KEY ("table_name", "version")
)`

// VersionManager tracks the derived schema of every bound table in the
// database the table lives in.
type VersionManager struct {
	db *store.DB
}

// VersionRecord represents a stored schema version.
type VersionRecord struct {
	Version   int
	Schema    types.Schema
	CreatedAt time.Time
}

// NewVersionManager creates the bookkeeping table if needed.
func NewVersionManager(ctx context.Context, db *store.DB) (*VersionManager, error) {
	if _, err := db.Exec(ctx, createVersionTableSQL); err != nil {
		return nil, fmt.Errorf("schema_version: failed to create table: %w", err)
	}
	return &VersionManager{db: db}, nil
}

// GetCurrentVersion returns the latest version registered for table.
// Returns 0 if none has been registered.
func (m *VersionManager) GetCurrentVersion(ctx context.Context, table string) (int, error) {
	records, err := m.query(ctx, table, `"version" DESC`, "1")
	if err != nil {
		return 0, fmt.Errorf("schema_version: failed to get current version: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[0].Version, nil
}

// GetSchemaVersion retrieves a specific schema version record.
func (m *VersionManager) GetSchemaVersion(ctx context.Context, table string, version int) (*VersionRecord, error) {
	cur, err := m.db.Query(ctx, versionTable, `"table_name" = ? AND "version" = ?`,
		[]any{table, version}, "", "")
	if err != nil {
		return nil, fmt.Errorf("schema_version: failed to get version %d: %w", version, err)
	}
	records, err := scanVersions(cur)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("schema_version: %s version %d not found", table, version)
	}
	return &records[0], nil
}

// RegisterSchema registers schema under its table. If it differs from the
// current version a new version is created; otherwise the current version is
// returned unchanged.
func (m *VersionManager) RegisterSchema(ctx context.Context, schema types.Schema) (int, error) {
	current, err := m.GetCurrentVersion(ctx, schema.Table)
	if err != nil {
		return 0, err
	}

	if current > 0 {
		rec, err := m.GetSchemaVersion(ctx, schema.Table, current)
		if err != nil {
			return 0, err
		}
		if schemasEqual(rec.Schema, schema) {
			return current, nil
		}
	}

	next := current + 1
	schema.Version = next
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return 0, fmt.Errorf("schema_version: failed to marshal schema: %w", err)
	}

	_, err = m.db.Insert(ctx, versionTable, []types.ColumnValue{
		{Column: "table_name", Value: schema.Table},
		{Column: "version", Value: next},
		{Column: "schema_json", Value: string(schemaJSON)},
		{Column: "created_at", Value: time.Now().Unix()},
	})
	if err != nil {
		return 0, fmt.Errorf("schema_version: failed to insert version %d: %w", next, err)
	}
	return next, nil
}

// ListVersions returns every version registered for table, oldest first.
func (m *VersionManager) ListVersions(ctx context.Context, table string) ([]VersionRecord, error) {
	records, err := m.query(ctx, table, `"version" ASC`, "")
	if err != nil {
		return nil, fmt.Errorf("schema_version: failed to list versions: %w", err)
	}
	return records, nil
}

// GetColumnDiff returns columns present in newVersion but absent in oldVersion.
func (m *VersionManager) GetColumnDiff(ctx context.Context, table string, oldVersion, newVersion int) ([]types.ColumnDef, error) {
	oldRecord, err := m.GetSchemaVersion(ctx, table, oldVersion)
	if err != nil {
		return nil, err
	}
	newRecord, err := m.GetSchemaVersion(ctx, table, newVersion)
	if err != nil {
		return nil, err
	}
	return ColumnDiff(oldRecord.Schema, newRecord.Schema), nil
}

// ColumnDiff returns the columns of next that are absent from prev.
func ColumnDiff(prev, next types.Schema) []types.ColumnDef {
	oldCols := make(map[string]bool, len(prev.Columns))
	for _, col := range prev.Columns {
		oldCols[col.Name] = true
	}
	var diff []types.ColumnDef
	for _, col := range next.Columns {
		if !oldCols[col.Name] {
			diff = append(diff, col)
		}
	}
	return diff
}

func (m *VersionManager) query(ctx context.Context, table, orderBy, limit string) ([]VersionRecord, error) {
	cur, err := m.db.Query(ctx, versionTable, `"table_name" = ?`, []any{table}, orderBy, limit)
	if err != nil {
		return nil, err
	}
	return scanVersions(cur)
}

func scanVersions(cur *store.Cursor) ([]VersionRecord, error) {
	defer cur.Close()

	vIdx := cur.ColumnIndex("version")
	jIdx := cur.ColumnIndex("schema_json")
	tIdx := cur.ColumnIndex("created_at")

	var records []VersionRecord
	for cur.Next() {
		version, err := cur.GetInt(vIdx)
		if err != nil {
			return nil, fmt.Errorf("schema_version: failed to scan version: %w", err)
		}
		schemaJSON, err := cur.GetString(jIdx)
		if err != nil {
			return nil, fmt.Errorf("schema_version: failed to scan schema: %w", err)
		}
		createdAt, err := cur.GetLong(tIdx)
		if err != nil {
			return nil, fmt.Errorf("schema_version: failed to scan created_at: %w", err)
		}

		var schema types.Schema
		if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
			return nil, fmt.Errorf("schema_version: failed to unmarshal schema for version %d: %w", version, err)
		}
		records = append(records, VersionRecord{
			Version:   int(version),
			Schema:    schema,
			CreatedAt: time.Unix(createdAt, 0),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("schema_version: error iterating versions: %w", err)
	}
	return records, nil
}

// schemasEqual compares two schemas for structural equality (ignoring version field).
func schemasEqual(a, b types.Schema) bool {
	if a.Table != b.Table || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Name != b.Columns[i].Name || a.Columns[i].Type != b.Columns[i].Type {
			return false
		}
	}
	return true
}
