// Package schema derives table descriptors from explicit per-entity field
// tables and binds them to live SQLite tables.
package schema

import (
	"fmt"
	"strings"

	apperrors "github.com/arkilian/entitydb/internal/errors"
	"github.com/arkilian/entitydb/internal/store"
	"github.com/arkilian/entitydb/pkg/types"
)

// FieldMap registers one entity field. Ref returns a pointer to the field
// inside the given entity; the pointer's type decides the storage type.
type FieldMap[T any] struct {
	Name   string
	Column string // optional override; defaults to Name
	Ref    func(*T) any
}

// Mapping is the field table an entity type registers with a DAO.
type Mapping[T any] struct {
	Table  string // optional override; defaults to the Go type name
	Fields []FieldMap[T]
}

// Column describes one persisted field.
type Column[T any] struct {
	Name  string
	Field string
	Type  types.StorageType
	ref   func(*T) any
}

// Ptr returns the pointer to this column's field inside e.
func (c Column[T]) Ptr(e *T) any {
	return c.ref(e)
}

// Descriptor is the immutable table layout of entity type T.
type Descriptor[T any] struct {
	Table   string
	Columns []Column[T]
}

// Build derives a Descriptor from m. Fields whose pointer type has no storage
// mapping are skipped.
func Build[T any](m Mapping[T]) (*Descriptor[T], error) {
	var probe T
	table := TableName(m)
	if len(m.Fields) == 0 {
		return nil, descriptorError(table, "mapping declares no fields")
	}

	d := &Descriptor[T]{Table: table}
	seen := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		if f.Ref == nil {
			return nil, descriptorError(table, fmt.Sprintf("field %q has no accessor", f.Name))
		}
		st, ok := storageTypeOf(f.Ref(&probe))
		if !ok {
			continue
		}
		col := f.Column
		if col == "" {
			col = f.Name
		}
		if col == "" {
			return nil, descriptorError(table, "field with empty name")
		}
		if seen[col] {
			return nil, descriptorError(table, fmt.Sprintf("duplicate column %q", col))
		}
		seen[col] = true
		d.Columns = append(d.Columns, Column[T]{Name: col, Field: f.Name, Type: st, ref: f.Ref})
	}
	if len(d.Columns) == 0 {
		return nil, descriptorError(table, "no field has a supported storage type")
	}
	return d, nil
}

// TableName returns the table m binds to: its override, or the Go type name
// of T.
func TableName[T any](m Mapping[T]) string {
	if m.Table != "" {
		return m.Table
	}
	return fmt.Sprintf("%T", *new(T))
}

func storageTypeOf(ptr any) (types.StorageType, bool) {
	switch ptr.(type) {
	case **string:
		return types.Text, true
	case **int32:
		return types.Integer, true
	case **int64:
		return types.BigInt, true
	case **float64:
		return types.Double, true
	case *[]byte:
		return types.Blob, true
	}
	return 0, false
}

func descriptorError(table, msg string) error {
	return apperrors.NewInitError(apperrors.CodeDescriptorFailed, "schema: "+table+": "+msg, nil)
}

// CreateTableSQL renders the idempotent CREATE TABLE statement.
func (d *Descriptor[T]) CreateTableSQL() string {
	defs := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		defs[i] = store.QuoteIdent(c.Name) + " " + c.Type.SQL()
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s(%s)", store.QuoteIdent(d.Table), strings.Join(defs, ", "))
}

// Column looks up a column by name.
func (d *Descriptor[T]) Column(name string) (Column[T], bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column[T]{}, false
}

// ColumnNames returns the column names in declaration order.
func (d *Descriptor[T]) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Restrict returns a copy keeping only the columns present in live.
func (d *Descriptor[T]) Restrict(live []string) *Descriptor[T] {
	present := make(map[string]bool, len(live))
	for _, c := range live {
		present[c] = true
	}
	out := &Descriptor[T]{Table: d.Table}
	for _, c := range d.Columns {
		if present[c.Name] {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// Schema returns the serializable form of d.
func (d *Descriptor[T]) Schema() types.Schema {
	s := types.Schema{Table: d.Table, Columns: make([]types.ColumnDef, len(d.Columns))}
	for i, c := range d.Columns {
		s.Columns[i] = types.ColumnDef{Name: c.Name, Type: c.Type.SQL(), Field: c.Field}
	}
	return s
}
