package dao

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/entitydb/pkg/types"
)

func TestNewConditionEmpty(t *testing.T) {
	c := NewCondition(nil)
	if c.Clause != "1=1" {
		t.Errorf("got %q, want %q", c.Clause, "1=1")
	}
	if len(c.Args) != 0 {
		t.Errorf("expected no args, got %v", c.Args)
	}
}

func TestNewConditionOrder(t *testing.T) {
	c := NewCondition([]types.ColumnValue{
		{Column: "name", Value: "alice"},
		{Column: "status", Value: "1"},
	})
	want := `1=1 AND "name" = ? AND "status" = ?`
	if c.Clause != want {
		t.Errorf("got %q, want %q", c.Clause, want)
	}
	if len(c.Args) != 2 || c.Args[0] != "alice" || c.Args[1] != "1" {
		t.Errorf("args = %v", c.Args)
	}
}

// TestProperty_ConditionAlignment checks that every placeholder has exactly
// one argument and arguments keep the column order.
func TestProperty_ConditionAlignment(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("placeholders match arguments", prop.ForAll(
		func(cols []string) bool {
			values := make([]types.ColumnValue, len(cols))
			for i, c := range cols {
				values[i] = types.ColumnValue{Column: c, Value: i}
			}
			cond := NewCondition(values)
			if !strings.HasPrefix(cond.Clause, "1=1") {
				return false
			}
			if strings.Count(cond.Clause, "?") != len(cond.Args) || len(cond.Args) != len(cols) {
				return false
			}
			for i, a := range cond.Args {
				if a != i {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
