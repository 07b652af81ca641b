package migration

import (
	"testing"
)

func TestSelectStepLastMatchWins(t *testing.T) {
	steps := []Step{
		{FromVersions: []string{"V001"}, ToVersion: "V002"},
		{FromVersions: []string{"V001,V002"}, ToVersion: "V003", Statements: []StatementGroup{{Create: "CREATE TABLE a(x)"}}},
		{FromVersions: []string{"v002"}, ToVersion: "v003", Statements: []StatementGroup{{Create: "CREATE TABLE b(x)"}}},
	}

	step, ok := SelectStep(steps, "V002", "V003")
	if !ok {
		t.Fatal("expected a matching step")
	}
	if step != &steps[2] {
		t.Errorf("expected the last matching step, got %+v", step)
	}

	step, ok = SelectStep(steps, "V001", "V003")
	if !ok || step != &steps[1] {
		t.Errorf("V001->V003 should select the comma-list step, got %+v", step)
	}
}

func TestSelectStepNoMatch(t *testing.T) {
	steps := []Step{{FromVersions: []string{"V001"}, ToVersion: "V002"}}
	if _, ok := SelectStep(steps, "V002", "V003"); ok {
		t.Error("expected no match")
	}
	if _, ok := SelectStep(nil, "V001", "V002"); ok {
		t.Error("expected no match on empty list")
	}
	if _, ok := SelectStep([]Step{{ToVersion: "V002"}}, "", "V002"); ok {
		t.Error("step without from versions must not match")
	}
}

func TestStepSQLNormalizesAndOrders(t *testing.T) {
	s := Step{
		ToVersion: "V003",
		Statements: []StatementGroup{
			{
				Delete:     "DROP TABLE bak",
				InsertSeed: "INSERT INTO t\r\nSELECT * FROM bak",
				Create:     "CREATE TABLE t(\n  x TEXT\n)",
				Rename:     "ALTER TABLE t RENAME TO bak",
			},
			{Create: "   \n  "},
		},
	}
	got := s.SQL()
	want := []string{
		"ALTER TABLE t RENAME TO bak",
		"CREATE TABLE t(   x TEXT )",
		"INSERT INTO t SELECT * FROM bak",
		"DROP TABLE bak",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d statements %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stmt %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChecksumStable(t *testing.T) {
	a := Step{ToVersion: "V003", Statements: []StatementGroup{{Create: "CREATE TABLE t(x)"}}}
	b := Step{ToVersion: "v003", Statements: []StatementGroup{{Create: "CREATE TABLE t(x)\n"}}}
	c := Step{ToVersion: "V003", Statements: []StatementGroup{{Create: "CREATE TABLE t(y)"}}}

	if a.Checksum() != b.Checksum() {
		t.Error("equivalent steps should share a checksum")
	}
	if a.Checksum() == c.Checksum() {
		t.Error("different statements should change the checksum")
	}
}
