// Package observability provides statement and predicate statistics for DAO
// bindings, used for diagnostics and for spotting columns worth indexing.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Stats tracks statement counts per table and predicate frequency per column.
type Stats struct {
	mu            sync.RWMutex
	statements    map[string]*TableStats
	predicateFreq map[string]*ColumnStats
	window        time.Duration
}

// TableStats holds statement counts for a single table.
type TableStats struct {
	Table      string
	Operations map[string]int64 // operation → count (e.g., "insert" → 5)
	LastSeen   time.Time
}

// Total returns the sum of all operation counts.
func (t TableStats) Total() int64 {
	var n int64
	for _, c := range t.Operations {
		n += c
	}
	return n
}

// ColumnStats holds statistics for one table column used in WHERE clauses.
type ColumnStats struct {
	Table     string
	Column    string
	Frequency int64
	LastSeen  time.Time
}

// NewStats creates a new statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewStats(window time.Duration) *Stats {
	return &Stats{
		statements:    make(map[string]*TableStats),
		predicateFreq: make(map[string]*ColumnStats),
		window:        window,
	}
}

// RecordStatement records one executed statement against table.
// operation: "create", "insert", "update", "delete", "query", "exec"
func (s *Stats) RecordStatement(table, operation string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, exists := s.statements[table]
	if !exists {
		ts = &TableStats{
			Table:      table,
			Operations: make(map[string]int64),
		}
		s.statements[table] = ts
	}
	ts.Operations[operation]++
	ts.LastSeen = time.Now()
}

// RecordPredicate records an equality predicate on table.column.
// This method is O(1) and thread-safe.
func (s *Stats) RecordPredicate(table, column string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := table + "." + column
	cs, exists := s.predicateFreq[key]
	if !exists {
		cs = &ColumnStats{Table: table, Column: column}
		s.predicateFreq[key] = cs
	}
	cs.Frequency++
	cs.LastSeen = time.Now()
}

// Count returns how many times operation ran against table.
func (s *Stats) Count(table, operation string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ts, ok := s.statements[table]; ok {
		return ts.Operations[operation]
	}
	return 0
}

// Tables returns a copy of the per-table statement counts sorted by table name.
func (s *Stats) Tables() []TableStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TableStats, 0, len(s.statements))
	for _, ts := range s.statements {
		cp := TableStats{
			Table:      ts.Table,
			LastSeen:   ts.LastSeen,
			Operations: make(map[string]int64, len(ts.Operations)),
		}
		for op, c := range ts.Operations {
			cp.Operations[op] = c
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Table < out[j].Table
	})
	return out
}

// GetTopPredicates returns the top N predicate columns by frequency.
// Returns a copy of the stats sorted by frequency (descending).
func (s *Stats) GetTopPredicates(n int) []ColumnStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.predicateFreq) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(s.predicateFreq))
	for _, cs := range s.predicateFreq {
		stats = append(stats, *cs)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Table+"."+stats[i].Column < stats[j].Table+"."+stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries where time.Since(LastSeen) > window.
func (s *Stats) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-s.window)

	for key, cs := range s.predicateFreq {
		if cs.LastSeen.Before(threshold) {
			delete(s.predicateFreq, key)
		}
	}
	for table, ts := range s.statements {
		if ts.LastSeen.Before(threshold) {
			delete(s.statements, table)
		}
	}
}
