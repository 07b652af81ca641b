// Package marshal converts entities to ordered column maps and query rows
// back to entities.
package marshal

import (
	"fmt"
	"log"
	"strconv"

	apperrors "github.com/arkilian/entitydb/internal/errors"
	"github.com/arkilian/entitydb/internal/schema"
	"github.com/arkilian/entitydb/internal/store"
	"github.com/arkilian/entitydb/pkg/types"
)

// Options controls which values ToColumnMap emits.
type Options struct {
	// IncludeEmptyValues keeps empty strings and empty blobs, which are
	// otherwise treated as absent.
	IncludeEmptyValues bool
}

// ToColumnMap reads every descriptor column from e. Nil fields are omitted.
// Scalars are rendered as strings; blobs are passed through as bytes.
func ToColumnMap[T any](d *schema.Descriptor[T], e *T, opts Options) []types.ColumnValue {
	if e == nil {
		return nil
	}
	values := make([]types.ColumnValue, 0, len(d.Columns))
	for _, c := range d.Columns {
		v, ok := readField(c.Ptr(e), opts)
		if !ok {
			continue
		}
		values = append(values, types.ColumnValue{Column: c.Name, Value: v})
	}
	return values
}

func readField(ptr any, opts Options) (any, bool) {
	switch p := ptr.(type) {
	case **string:
		if *p == nil || (**p == "" && !opts.IncludeEmptyValues) {
			return nil, false
		}
		return **p, true
	case **int32:
		if *p == nil {
			return nil, false
		}
		return strconv.FormatInt(int64(**p), 10), true
	case **int64:
		if *p == nil {
			return nil, false
		}
		return strconv.FormatInt(**p, 10), true
	case **float64:
		if *p == nil {
			return nil, false
		}
		return strconv.FormatFloat(**p, 'g', -1, 64), true
	case *[]byte:
		if *p == nil || (len(*p) == 0 && !opts.IncludeEmptyValues) {
			return nil, false
		}
		out := make([]byte, len(*p))
		copy(out, *p)
		return out, true
	}
	return nil, false
}

// FromRows materializes one entity per row of cur. Columns absent from either
// the result or the descriptor are ignored; NULL leaves a field nil. A row
// that cannot be converted is logged and skipped. cur is always closed.
func FromRows[T any](cur *store.Cursor, d *schema.Descriptor[T]) ([]*T, error) {
	defer cur.Close()

	idx := make([]int, len(d.Columns))
	for i, c := range d.Columns {
		idx[i] = cur.ColumnIndex(c.Name)
	}

	var out []*T
	for cur.Next() {
		e := new(T)
		if err := assignRow(cur, d, idx, e); err != nil {
			log.Printf("marshal: [WARN] skipping row of %s: %v", d.Table, err)
			continue
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func assignRow[T any](cur *store.Cursor, d *schema.Descriptor[T], idx []int, e *T) error {
	for i, c := range d.Columns {
		pos := idx[i]
		if pos < 0 || cur.IsNull(pos) {
			continue
		}
		if err := assign(cur, pos, c.Ptr(e)); err != nil {
			return apperrors.NewMarshalError(apperrors.CodeAssignFailed,
				fmt.Sprintf("cannot assign column %s to field %s", c.Name, c.Field), err)
		}
	}
	return nil
}

func assign(cur *store.Cursor, pos int, ptr any) error {
	switch p := ptr.(type) {
	case **string:
		v, err := cur.GetString(pos)
		if err != nil {
			return err
		}
		*p = &v
	case **int32:
		v, err := cur.GetInt(pos)
		if err != nil {
			return err
		}
		*p = &v
	case **int64:
		v, err := cur.GetLong(pos)
		if err != nil {
			return err
		}
		*p = &v
	case **float64:
		v, err := cur.GetDouble(pos)
		if err != nil {
			return err
		}
		*p = &v
	case *[]byte:
		v, err := cur.GetBlob(pos)
		if err != nil {
			return err
		}
		*p = v
	default:
		return fmt.Errorf("unsupported field type %T", ptr)
	}
	return nil
}
