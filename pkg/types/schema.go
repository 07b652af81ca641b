package types

// Schema is the derived table layout of one entity binding, persisted as JSON
// so later bindings can detect additive column changes.
type Schema struct {
	// Version tracks schema evolution for the table
	Version int `json:"version"`

	// Table is the SQL table name
	Table string `json:"table"`

	// Columns defines the columns in declaration order
	Columns []ColumnDef `json:"columns"`
}

// ColumnDef defines a single column in the schema.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the storage type name: TEXT, INTEGER, BIGINT, DOUBLE, BLOB
	Type string `json:"type"`

	// Field is the entity field the column is read from
	Field string `json:"field,omitempty"`
}

// ColumnValue is one entry of an ordered column map. Value is a string for
// scalar storage types and a []byte for blobs.
type ColumnValue struct {
	Column string
	Value  any
}

// Columns returns the column names of values, in order.
func Columns(values []ColumnValue) []string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = v.Column
	}
	return names
}

// Args returns the values of values, in order, for statement binding.
func Args(values []ColumnValue) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v.Value
	}
	return args
}
