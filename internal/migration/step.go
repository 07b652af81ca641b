// Package migration applies versioned SQL upgrade steps to every shard
// database.
package migration

import (
	"encoding/hex"
	"strings"

	"github.com/spaolacci/murmur3"
)

// StatementGroup is one unit of an upgrade step. Its statements run in the
// order rename, create, insert, delete; any of them may be empty.
type StatementGroup struct {
	Rename     string `yaml:"rename"`
	Create     string `yaml:"create"`
	InsertSeed string `yaml:"insert"`
	Delete     string `yaml:"delete"`
}

func (g StatementGroup) ordered() []string {
	return []string{g.Rename, g.Create, g.InsertSeed, g.Delete}
}

// Step upgrades a shard from any of FromVersions to ToVersion.
type Step struct {
	FromVersions []string
	ToVersion    string
	Statements   []StatementGroup
}

// Matches reports whether s upgrades current to target. Versions compare
// case-insensitively; a FromVersions entry may itself be a comma-separated
// list.
func (s Step) Matches(current, target string) bool {
	if s.ToVersion == "" || !strings.EqualFold(strings.TrimSpace(s.ToVersion), strings.TrimSpace(target)) {
		return false
	}
	for _, entry := range s.FromVersions {
		for _, v := range strings.Split(entry, ",") {
			if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(current)) {
				return true
			}
		}
	}
	return false
}

// SQL returns the executable statements of s in order. Line breaks are
// replaced by spaces and blank statements are dropped.
func (s Step) SQL() []string {
	var out []string
	for _, g := range s.Statements {
		for _, stmt := range g.ordered() {
			stmt = normalize(stmt)
			if stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out
}

// Checksum identifies the content of s for the migration history.
func (s Step) Checksum() string {
	h := murmur3.New64()
	h.Write([]byte(strings.ToUpper(strings.TrimSpace(s.ToVersion))))
	for _, stmt := range s.SQL() {
		h.Write([]byte{0})
		h.Write([]byte(stmt))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SelectStep returns the step that upgrades current to target. When several
// steps match, the last one in steps wins.
func SelectStep(steps []Step, current, target string) (*Step, bool) {
	var selected *Step
	for i := range steps {
		if steps[i].Matches(current, target) {
			selected = &steps[i]
		}
	}
	return selected, selected != nil
}

func normalize(stmt string) string {
	stmt = strings.ReplaceAll(stmt, "\r\n", " ")
	stmt = strings.ReplaceAll(stmt, "\n", " ")
	return strings.TrimSpace(stmt)
}
