package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordPredicateConcurrent tests concurrent RecordPredicate calls for race conditions.
func TestRecordPredicateConcurrent(t *testing.T) {
	s := NewStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				s.RecordPredicate("tb_user", "status")
				s.RecordPredicate("tb_user", "u_id")
				s.RecordPredicate("tb_photo", "path")
				s.RecordStatement("tb_user", "query")
			}
		}()
	}

	wg.Wait()

	top := s.GetTopPredicates(10)
	if len(top) != 3 {
		t.Errorf("expected 3 predicates, got %d", len(top))
	}

	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s.%s, got %d", expectedFreq, stat.Table, stat.Column, stat.Frequency)
		}
	}
	if got := s.Count("tb_user", "query"); got != expectedFreq {
		t.Errorf("expected %d queries, got %d", expectedFreq, got)
	}
}

// TestGetTopPredicatesOrdering tests that GetTopPredicates returns results sorted by frequency.
func TestGetTopPredicatesOrdering(t *testing.T) {
	s := NewStats(1 * time.Hour)

	for i := 0; i < 10; i++ {
		s.RecordPredicate("tb_user", "u_id")
	}
	for i := 0; i < 5; i++ {
		s.RecordPredicate("tb_user", "name")
	}
	for i := 0; i < 20; i++ {
		s.RecordPredicate("tb_user", "status")
	}

	top := s.GetTopPredicates(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 predicates, got %d", len(top))
	}

	want := []struct {
		column string
		freq   int64
	}{{"status", 20}, {"u_id", 10}, {"name", 5}}
	for i, w := range want {
		if top[i].Column != w.column || top[i].Frequency != w.freq {
			t.Errorf("top[%d] = %s/%d, want %s/%d", i, top[i].Column, top[i].Frequency, w.column, w.freq)
		}
	}
}

// TestPruneRemovesOldEntries tests that Prune removes entries older than the window.
func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	s := NewStats(window)

	s.RecordPredicate("tb_user", "status")
	s.RecordStatement("tb_user", "query")

	if top := s.GetTopPredicates(10); len(top) != 1 {
		t.Errorf("expected 1 predicate before prune, got %d", len(top))
	}

	time.Sleep(window + 50*time.Millisecond)
	s.Prune()

	if top := s.GetTopPredicates(10); len(top) != 0 {
		t.Errorf("expected 0 predicates after prune, got %d", len(top))
	}
	if tables := s.Tables(); len(tables) != 0 {
		t.Errorf("expected 0 tables after prune, got %d", len(tables))
	}
}

func TestTablesSortedWithTotals(t *testing.T) {
	s := NewStats(time.Hour)
	s.RecordStatement("tb_user", "create")
	s.RecordStatement("tb_user", "insert")
	s.RecordStatement("tb_user", "insert")
	s.RecordStatement("tb_photo", "create")

	tables := s.Tables()
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	if tables[0].Table != "tb_photo" || tables[1].Table != "tb_user" {
		t.Errorf("unexpected order: %s, %s", tables[0].Table, tables[1].Table)
	}
	if tables[1].Total() != 3 {
		t.Errorf("tb_user total = %d, want 3", tables[1].Total())
	}

	// Returned maps are copies.
	tables[1].Operations["insert"] = 100
	if got := s.Count("tb_user", "insert"); got != 2 {
		t.Errorf("Count after external mutation = %d, want 2", got)
	}
}

func TestNilStatsIgnoresRecords(t *testing.T) {
	var s *Stats
	s.RecordStatement("tb_user", "insert")
	s.RecordPredicate("tb_user", "status")
}

// TestGetTopPredicatesEmpty tests GetTopPredicates with no data.
func TestGetTopPredicatesEmpty(t *testing.T) {
	s := NewStats(1 * time.Hour)
	if top := s.GetTopPredicates(10); len(top) != 0 {
		t.Errorf("expected 0 predicates, got %d", len(top))
	}
	if top := s.GetTopPredicates(0); len(top) != 0 {
		t.Errorf("expected 0 predicates for n=0, got %d", len(top))
	}
}
