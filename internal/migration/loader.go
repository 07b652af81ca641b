package migration

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
	"gopkg.in/yaml.v3"

	apperrors "github.com/arkilian/entitydb/internal/errors"
)

// yamlDescriptor is the YAML layout of a step list:
//
//	steps:
//	  - from: V001,V002
//	    to: V003
//	    statements:
//	      - rename: ALTER TABLE tb_photo RENAME TO bak_tb_photo
//	        create: CREATE TABLE tb_photo(...)
type yamlDescriptor struct {
	Steps []struct {
		From       string           `yaml:"from"`
		To         string           `yaml:"to"`
		Statements []StatementGroup `yaml:"statements"`
	} `yaml:"steps"`
}

// LoadFile reads a step descriptor, choosing the format by extension:
// .xml for the updateStep layout, anything else for YAML.
func LoadFile(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("migration: failed to read descriptor: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return ParseXML(bytes.NewReader(data))
	}
	return ParseYAML(data)
}

// ParseYAML decodes a YAML step descriptor.
func ParseYAML(data []byte) ([]Step, error) {
	var d yamlDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, descriptorInvalid("invalid YAML descriptor", err)
	}
	steps := make([]Step, 0, len(d.Steps))
	for i, s := range d.Steps {
		if s.From == "" || s.To == "" {
			return nil, descriptorInvalid(fmt.Sprintf("step %d needs both from and to", i), nil)
		}
		steps = append(steps, Step{
			FromVersions: splitVersions(s.From),
			ToVersion:    strings.TrimSpace(s.To),
			Statements:   s.Statements,
		})
	}
	return steps, nil
}

// ParseXML decodes the updateStep XML layout:
//
//	<updateXml>
//	  <updateStep versionFrom="V001,V002" versionTo="V003">
//	    <updateDb>
//	      <sql_rename>...</sql_rename>
//	      <sql_create>...</sql_create>
//	      <sql_insert>...</sql_insert>
//	      <sql_delete>...</sql_delete>
//	    </updateDb>
//	  </updateStep>
//	</updateXml>
//
// Steps missing either version attribute are ignored.
func ParseXML(r io.Reader) ([]Step, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, descriptorInvalid("invalid XML descriptor", err)
	}
	nodes, err := xmlquery.QueryAll(root, "//updateStep")
	if err != nil {
		return nil, descriptorInvalid("failed to query updateStep", err)
	}

	var steps []Step
	for _, n := range nodes {
		from := n.SelectAttr("versionFrom")
		to := n.SelectAttr("versionTo")
		if from == "" || to == "" {
			continue
		}
		step := Step{FromVersions: splitVersions(from), ToVersion: strings.TrimSpace(to)}
		for _, db := range xmlquery.Find(n, ".//updateDb") {
			step.Statements = append(step.Statements, StatementGroup{
				Rename:     childText(db, "sql_rename"),
				Create:     childText(db, "sql_create"),
				InsertSeed: childText(db, "sql_insert"),
				Delete:     childText(db, "sql_delete"),
			})
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func childText(n *xmlquery.Node, name string) string {
	if c := xmlquery.FindOne(n, name); c != nil {
		return c.InnerText()
	}
	return ""
}

func splitVersions(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func descriptorInvalid(msg string, cause error) error {
	return apperrors.NewMigrationError(apperrors.CodeDescriptorInvalid, msg, cause)
}
