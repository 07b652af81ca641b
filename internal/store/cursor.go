package store

import (
	"fmt"
	"math"
	"strconv"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/arkilian/entitydb/internal/errors"
)

// Cursor iterates query results row by row with positional accessors.
type Cursor struct {
	rows    *sqlx.Rows
	columns []string
	index   map[string]int
	current []any
	err     error
	closed  bool
}

func newCursor(rows *sqlx.Rows) (*Cursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, apperrors.NewStoreError("failed to read result columns", err)
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}
	return &Cursor{rows: rows, columns: cols, index: index}, nil
}

// Columns returns the result column names.
func (c *Cursor) Columns() []string {
	return c.columns
}

// ColumnIndex returns the position of column, or -1 if the result lacks it.
func (c *Cursor) ColumnIndex(column string) int {
	if i, ok := c.index[column]; ok {
		return i
	}
	return -1
}

// Next advances to the next row. It returns false at the end of the result
// or on error; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = apperrors.NewStoreError("row iteration failed", err)
		}
		return false
	}
	row, err := c.rows.SliceScan()
	if err != nil {
		c.err = apperrors.NewStoreError("failed to scan row", err)
		return false
	}
	c.current = row
	return true
}

// Err returns the first error encountered while iterating.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying rows. Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

func (c *Cursor) value(i int) (any, error) {
	if c.current == nil {
		return nil, fmt.Errorf("store: no current row")
	}
	if i < 0 || i >= len(c.current) {
		return nil, fmt.Errorf("store: column index %d out of range", i)
	}
	return c.current[i], nil
}

// IsNull reports whether column i of the current row is SQL NULL.
func (c *Cursor) IsNull(i int) bool {
	v, err := c.value(i)
	return err == nil && v == nil
}

// GetString returns column i as text.
func (c *Cursor) GetString(i int) (string, error) {
	v, err := c.value(i)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(x), nil
	}
}

// GetLong returns column i as a 64-bit integer.
func (c *Cursor) GetLong(i int) (int64, error) {
	v, err := c.value(i)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("store: column %s holds non-integral %v", c.columns[i], x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("store: column %s has unsupported type %T", c.columns[i], v)
	}
}

// GetInt returns column i as a 32-bit integer.
func (c *Cursor) GetInt(i int) (int32, error) {
	n, err := c.GetLong(i)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("store: column %s value %d overflows int32", c.columns[i], n)
	}
	return int32(n), nil
}

// GetDouble returns column i as a float.
func (c *Cursor) GetDouble(i int) (float64, error) {
	v, err := c.value(i)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("store: column %s has unsupported type %T", c.columns[i], v)
	}
}

// GetBlob returns column i as raw bytes.
func (c *Cursor) GetBlob(i int) ([]byte, error) {
	v, err := c.value(i)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("store: column %s has unsupported blob type %T", c.columns[i], v)
	}
}
