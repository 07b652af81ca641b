package dao

import (
	"strings"

	"github.com/arkilian/entitydb/internal/store"
	"github.com/arkilian/entitydb/pkg/types"
)

// Condition is a WHERE clause and its positional arguments. The two are
// always built together so placeholders and values stay aligned.
type Condition struct {
	Clause string
	Args   []any
}

// NewCondition builds an equality conjunction over values. An empty list
// yields the always-true clause "1=1".
func NewCondition(values []types.ColumnValue) Condition {
	var b strings.Builder
	b.WriteString("1=1")
	args := make([]any, 0, len(values))
	for _, v := range values {
		b.WriteString(" AND ")
		b.WriteString(store.QuoteIdent(v.Column))
		b.WriteString(" = ?")
		args = append(args, v.Value)
	}
	return Condition{Clause: b.String(), Args: args}
}
