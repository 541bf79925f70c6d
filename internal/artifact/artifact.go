// Package artifact reads and writes generated migration files. An artifact
// sits next to its raw .sql file and pairs the migration's dependencies with
// the verbatim operations to execute.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// RawExt is the extension of hand-written migration files.
	RawExt = ".sql"
	// Ext is the extension of generated artifacts.
	Ext = ".yaml"
)

// ErrNotMigration is returned for files that do not hold an artifact.
var ErrNotMigration = errors.New("not a migration")

// Artifact is one generated migration.
type Artifact struct {
	Dependencies []string `yaml:"dependencies" json:"dependencies"`
	Operations   string   `yaml:"operations" json:"operations"`
}

// Status describes what Write did.
type Status string

const (
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
)

// ID identifies a migration as component/slot/name.
type ID struct {
	Component string
	Slot      string
	Name      string
}

// ParseID parses the "component/slot/name" form stored in dependency lists.
func ParseID(s string) (ID, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ID{}, fmt.Errorf("invalid migration identifier %q: expected component/slot/name", s)
	}
	return ID{Component: parts[0], Slot: parts[1], Name: parts[2]}, nil
}

func (id ID) String() string {
	return id.Component + "/" + id.Slot + "/" + id.Name
}

// PathFor returns the artifact path belonging to a raw migration file.
func PathFor(rawPath string) string {
	return strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + Ext
}

// Read loads the artifact at path. Files without an operations entry are
// reported with ErrNotMigration.
func Read(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	var raw struct {
		Dependencies []string `yaml:"dependencies"`
		Operations   *string  `yaml:"operations"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w: %w", path, ErrNotMigration, err)
	}
	if raw.Operations == nil {
		return nil, fmt.Errorf("artifact %s has no operations: %w", path, ErrNotMigration)
	}
	return &Artifact{Dependencies: raw.Dependencies, Operations: *raw.Operations}, nil
}

// Marshal renders the artifact as YAML with operations in literal block style.
func (a *Artifact) Marshal() ([]byte, error) {
	deps := &yaml.Node{Kind: yaml.SequenceNode}
	for _, d := range a.Dependencies {
		deps.Content = append(deps.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: d})
	}
	ops := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: a.Operations}
	if strings.Contains(a.Operations, "\n") {
		ops.Style = yaml.LiteralStyle
	}
	if len(a.Dependencies) == 0 {
		deps.Style = yaml.FlowStyle
	}
	doc := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "dependencies"}, deps,
			{Kind: yaml.ScalarNode, Value: "operations"}, ops,
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(4)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Write stores a at path. An existing artifact with the same fingerprint is
// left untouched.
func Write(path string, a *Artifact) (Status, error) {
	status := StatusCreated
	if existing, err := Read(path); err == nil {
		same, err := Equal(existing, a)
		if err != nil {
			return "", err
		}
		if same {
			return StatusUnchanged, nil
		}
		status = StatusUpdated
	} else if _, statErr := os.Stat(path); statErr == nil {
		status = StatusUpdated
	}

	data, err := a.Marshal()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return status, nil
}
