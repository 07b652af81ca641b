package schema

import (
	"context"
	"fmt"
	"log"

	apperrors "github.com/arkilian/entitydb/internal/errors"
	"github.com/arkilian/entitydb/internal/store"
)

// BindOptions controls how a descriptor is attached to a live table.
type BindOptions struct {
	// AutoAddColumns issues ALTER TABLE ADD COLUMN for declared columns the
	// live table lacks. When false such columns are dropped from the binding.
	AutoAddColumns bool

	// TrackVersions records the bound schema in the _entitydb_schemas table.
	TrackVersions bool
}

// Binding is a descriptor attached to an open database whose columns have
// been verified against the live table.
type Binding[T any] struct {
	Descriptor    *Descriptor[T]
	DB            *store.DB
	SchemaVersion int
}

// Bind creates the table if it does not exist and restricts d to the columns
// the live table actually has.
func Bind[T any](ctx context.Context, db *store.DB, d *Descriptor[T], opts BindOptions) (*Binding[T], error) {
	if db == nil || !db.IsOpen() {
		return nil, apperrors.NewInitError(apperrors.CodeHandleClosed,
			fmt.Sprintf("schema: cannot bind %s: database handle is closed", d.Table), nil)
	}

	if _, err := db.Exec(ctx, d.CreateTableSQL()); err != nil {
		return nil, apperrors.NewInitError(apperrors.CodeDescriptorFailed,
			fmt.Sprintf("schema: failed to create table %s", d.Table), err)
	}
	db.Stats().RecordStatement(d.Table, "create")

	live, err := db.Columns(ctx, d.Table)
	if err != nil {
		return nil, apperrors.NewInitError(apperrors.CodeDescriptorFailed,
			fmt.Sprintf("schema: failed to read columns of %s", d.Table), err)
	}

	if opts.AutoAddColumns {
		live, err = addMissingColumns(ctx, db, d, live)
		if err != nil {
			return nil, err
		}
	}

	bound := d.Restrict(live)
	if dropped := len(d.Columns) - len(bound.Columns); dropped > 0 {
		log.Printf("schema: [WARN] %s: %d declared column(s) missing from live table, ignoring them", d.Table, dropped)
	}

	b := &Binding[T]{Descriptor: bound, DB: db}
	if opts.TrackVersions {
		vm, err := NewVersionManager(ctx, db)
		if err != nil {
			return nil, apperrors.NewInitError(apperrors.CodeDescriptorFailed, "schema: version tracking unavailable", err)
		}
		v, err := vm.RegisterSchema(ctx, bound.Schema())
		if err != nil {
			return nil, apperrors.NewInitError(apperrors.CodeDescriptorFailed, "schema: failed to register schema version", err)
		}
		b.SchemaVersion = v
	}
	return b, nil
}

func addMissingColumns[T any](ctx context.Context, db *store.DB, d *Descriptor[T], live []string) ([]string, error) {
	present := make(map[string]bool, len(live))
	for _, c := range live {
		present[c] = true
	}
	for _, c := range d.Columns {
		if present[c.Name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			store.QuoteIdent(d.Table), store.QuoteIdent(c.Name), c.Type.SQL())
		if _, err := db.Exec(ctx, stmt); err != nil {
			return nil, apperrors.NewInitError(apperrors.CodeDescriptorFailed,
				fmt.Sprintf("schema: failed to add column %s.%s", d.Table, c.Name), err)
		}
		log.Printf("schema: added column %s.%s %s", d.Table, c.Name, c.Type.SQL())
		live = append(live, c.Name)
	}
	return live, nil
}
