package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/arkilian/entitydb/internal/errors"
)

const yamlSteps = `
steps:
  - from: V001
    to: V002
    statements:
      - create: CREATE TABLE tb_note(body TEXT)
  - from: "V001, V002"
    to: V003
    statements:
      - rename: ALTER TABLE tb_photo RENAME TO bak_tb_photo
        create: |
          CREATE TABLE tb_photo(
            time TEXT,
            path TEXT,
            note TEXT
          )
        insert: INSERT INTO tb_photo(time, path) SELECT time, path FROM bak_tb_photo
        delete: DROP TABLE bak_tb_photo
`

const xmlSteps = `<?xml version="1.0" encoding="utf-8"?>
<updateXml>
  <createVersion version="V003">
    <createDb>
      <sql_createTable>CREATE TABLE tb_photo(time TEXT, path TEXT, note TEXT)</sql_createTable>
    </createDb>
  </createVersion>
  <updateStep versionFrom="V001,V002" versionTo="V003">
    <updateDb>
      <sql_rename>ALTER TABLE tb_photo RENAME TO bak_tb_photo</sql_rename>
      <sql_create>CREATE TABLE tb_photo(
        time TEXT, path TEXT, note TEXT)</sql_create>
      <sql_insert>INSERT INTO tb_photo(time, path) SELECT time, path FROM bak_tb_photo</sql_insert>
      <sql_delete>DROP TABLE bak_tb_photo</sql_delete>
    </updateDb>
  </updateStep>
  <updateStep versionTo="V004">
    <updateDb><sql_create>CREATE TABLE ignored(x)</sql_create></updateDb>
  </updateStep>
</updateXml>
`

func TestParseYAML(t *testing.T) {
	steps, err := ParseYAML([]byte(yamlSteps))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}

	step, ok := SelectStep(steps, "v002", "v003")
	if !ok {
		t.Fatal("expected V002->V003 to match")
	}
	if len(step.FromVersions) != 2 || step.FromVersions[1] != "V002" {
		t.Errorf("from versions = %q", step.FromVersions)
	}
	stmts := step.SQL()
	if len(stmts) != 4 {
		t.Fatalf("expected 4 statements, got %q", stmts)
	}
	if strings.Contains(stmts[1], "\n") || !strings.HasPrefix(stmts[1], "CREATE TABLE tb_photo(") {
		t.Errorf("create statement not normalized: %q", stmts[1])
	}
}

func TestParseYAMLRejectsIncompleteStep(t *testing.T) {
	_, err := ParseYAML([]byte("steps:\n  - to: V002\n"))
	if apperrors.GetCode(err) != apperrors.CodeDescriptorInvalid {
		t.Errorf("expected DESCRIPTOR_INVALID, got %v", err)
	}
	_, err = ParseYAML([]byte("steps: [unterminated"))
	if apperrors.GetCode(err) != apperrors.CodeDescriptorInvalid {
		t.Errorf("expected DESCRIPTOR_INVALID for bad YAML, got %v", err)
	}
}

func TestParseXML(t *testing.T) {
	steps, err := ParseXML(strings.NewReader(xmlSteps))
	if err != nil {
		t.Fatalf("ParseXML: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("step without versionFrom should be ignored, got %d steps", len(steps))
	}
	s := steps[0]
	if !s.Matches("V001", "V003") || !s.Matches("V002", "v003") {
		t.Errorf("unexpected versions: %q -> %q", s.FromVersions, s.ToVersion)
	}
	want := []string{
		"ALTER TABLE tb_photo RENAME TO bak_tb_photo",
		"CREATE TABLE tb_photo( time TEXT, path TEXT, note TEXT)",
		"INSERT INTO tb_photo(time, path) SELECT time, path FROM bak_tb_photo",
		"DROP TABLE bak_tb_photo",
	}
	got := s.SQL()
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if strings.Contains(got[i], "\n") || collapse(got[i]) != collapse(want[i]) {
			t.Errorf("stmt %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "update.XML")
	yamlPath := filepath.Join(dir, "update.yaml")
	if err := os.WriteFile(xmlPath, []byte(xmlSteps), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte(yamlSteps), 0644); err != nil {
		t.Fatal(err)
	}

	fromXML, err := LoadFile(xmlPath)
	if err != nil {
		t.Fatalf("LoadFile xml: %v", err)
	}
	fromYAML, err := LoadFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadFile yaml: %v", err)
	}
	if len(fromXML) != 1 || len(fromYAML) != 2 {
		t.Errorf("xml=%d yaml=%d steps", len(fromXML), len(fromYAML))
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing descriptor")
	}
}
