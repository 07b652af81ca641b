// Package dao implements generic CRUD access objects over bound SQLite tables
// and the registries that hand them out.
package dao

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/arkilian/entitydb/internal/errors"
	"github.com/arkilian/entitydb/internal/marshal"
	"github.com/arkilian/entitydb/internal/schema"
	"github.com/arkilian/entitydb/internal/store"
	"github.com/arkilian/entitydb/pkg/types"
)

// Options configures every DAO a registry creates.
type Options struct {
	Marshal marshal.Options
	Bind    schema.BindOptions
}

// QueryOptions are the optional clauses of QueryWith. The LIMIT clause is
// emitted only when both Offset and Limit are set.
type QueryOptions struct {
	OrderBy string
	Offset  *int
	Limit   *int
}

// Initializer is implemented by every DAO a registry can construct.
type Initializer[T any] interface {
	Configure(opts Options)
	Init(ctx context.Context, db *store.DB, m schema.Mapping[T]) (bool, error)
	Table() string
}

// BaseDao provides CRUD operations for entity type T. The zero value is
// usable after Init.
type BaseDao[T any] struct {
	mu      sync.RWMutex
	opts    Options
	binding *schema.Binding[T]
}

// Configure sets the options used by Init and later operations.
func (d *BaseDao[T]) Configure(opts Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = opts
}

// Init binds the DAO to db. Calling Init on an initialized DAO is a no-op.
// On failure the DAO stays uninitialized.
func (d *BaseDao[T]) Init(ctx context.Context, db *store.DB, m schema.Mapping[T]) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.binding != nil {
		return true, nil
	}
	desc, err := schema.Build(m)
	if err != nil {
		return false, err
	}
	b, err := schema.Bind(ctx, db, desc, d.opts.Bind)
	if err != nil {
		return false, err
	}
	d.binding = b
	return true, nil
}

// IsInit reports whether Init has succeeded.
func (d *BaseDao[T]) IsInit() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.binding != nil
}

// Table returns the bound table name, or "" before Init.
func (d *BaseDao[T]) Table() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.binding == nil {
		return ""
	}
	return d.binding.Descriptor.Table
}

// Descriptor returns the bound descriptor.
func (d *BaseDao[T]) Descriptor() (*schema.Descriptor[T], error) {
	b, _, err := d.bound()
	if err != nil {
		return nil, err
	}
	return b.Descriptor, nil
}

func (d *BaseDao[T]) bound() (*schema.Binding[T], marshal.Options, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.binding == nil {
		return nil, marshal.Options{}, apperrors.NewInitError(apperrors.CodeNotInitialized,
			fmt.Sprintf("dao for %T used before Init", *new(T)), nil)
	}
	return d.binding, d.opts.Marshal, nil
}

// Insert writes e and returns its rowid, or -1 on failure.
func (d *BaseDao[T]) Insert(ctx context.Context, e *T) (int64, error) {
	b, mo, err := d.bound()
	if err != nil {
		return -1, err
	}
	return b.DB.Insert(ctx, b.Descriptor.Table, marshal.ToColumnMap(b.Descriptor, e, mo))
}

// Update sets the non-nil fields of values on every row matching the non-nil
// fields of where, and returns the number of rows changed. A nil or empty
// where matches every row.
func (d *BaseDao[T]) Update(ctx context.Context, values, where *T) (int64, error) {
	b, mo, err := d.bound()
	if err != nil {
		return 0, err
	}
	cond := d.condition(b, where, mo)
	return b.DB.Update(ctx, b.Descriptor.Table, marshal.ToColumnMap(b.Descriptor, values, mo), cond.Clause, cond.Args)
}

// Delete removes every row matching the non-nil fields of where.
func (d *BaseDao[T]) Delete(ctx context.Context, where *T) (int64, error) {
	b, mo, err := d.bound()
	if err != nil {
		return 0, err
	}
	cond := d.condition(b, where, mo)
	return b.DB.Delete(ctx, b.Descriptor.Table, cond.Clause, cond.Args)
}

// Query returns every row matching the non-nil fields of where.
func (d *BaseDao[T]) Query(ctx context.Context, where *T) ([]*T, error) {
	return d.QueryWith(ctx, where, QueryOptions{})
}

// QueryWith is Query with ordering and pagination.
func (d *BaseDao[T]) QueryWith(ctx context.Context, where *T, qo QueryOptions) ([]*T, error) {
	b, mo, err := d.bound()
	if err != nil {
		return nil, err
	}
	cond := d.condition(b, where, mo)

	var limit string
	if qo.Offset != nil && qo.Limit != nil {
		limit = fmt.Sprintf("%d, %d", *qo.Offset, *qo.Limit)
	}

	cur, err := b.DB.Query(ctx, b.Descriptor.Table, cond.Clause, cond.Args, qo.OrderBy, limit)
	if err != nil {
		return nil, err
	}
	return marshal.FromRows(cur, b.Descriptor)
}

func (d *BaseDao[T]) condition(b *schema.Binding[T], where *T, mo marshal.Options) Condition {
	values := marshal.ToColumnMap(b.Descriptor, where, mo)
	stats := b.DB.Stats()
	for _, c := range types.Columns(values) {
		stats.RecordPredicate(b.Descriptor.Table, c)
	}
	return NewCondition(values)
}
