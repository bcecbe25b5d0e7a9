// SPDX-License-Identifier: Apache-2.0
// Package skills manages external skill processes: the manifests that
// describe them, the stdio connections to them, and the liveness bookkeeping
// the gateway needs to route calls defensively.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Manifest describes one external skill process and the tools it provides.
type Manifest struct {
	Name        string
	Description string
	Command     string
	Args        []string
	Env         map[string]string
	Tools       []ToolSpec
	Path        string
	Dir         string
}

// ToolSpec is one tool advertised by a skill.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

const (
	manifestFile      = "skill.yaml"
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// LoadDir scans a directory for skill subdirectories containing skill.yaml.
func LoadDir(root string) ([]Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), manifestFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type manifestYAML struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Tools       []toolYAML        `yaml:"tools"`
}

type toolYAML struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	InputSchema map[string]any `yaml:"input_schema"`
}

// LoadFile parses and validates a single skill.yaml.
func LoadFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var parsed manifestYAML
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", path, err)
	}

	m := Manifest{
		Name:        strings.TrimSpace(parsed.Name),
		Description: strings.TrimSpace(parsed.Description),
		Command:     strings.TrimSpace(parsed.Command),
		Args:        parsed.Args,
		Env:         parsed.Env,
		Path:        path,
		Dir:         filepath.Dir(path),
	}
	for _, tool := range parsed.Tools {
		m.Tools = append(m.Tools, ToolSpec{
			Name:        strings.TrimSpace(tool.Name),
			Description: strings.TrimSpace(tool.Description),
			InputSchema: tool.InputSchema,
		})
	}

	if err := validate(m); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func validate(m Manifest) error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(m.Name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if dirName := filepath.Base(m.Dir); dirName != m.Name {
		return fmt.Errorf("name must match directory name (%s)", dirName)
	}
	if m.Description == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(m.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	if m.Command == "" {
		return errors.New("command is required")
	}
	if len(m.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	seen := make(map[string]bool, len(m.Tools))
	for _, tool := range m.Tools {
		if tool.Name == "" {
			return errors.New("tool name is required")
		}
		if !namePattern.MatchString(tool.Name) {
			return fmt.Errorf("tool name %q must match %s", tool.Name, namePattern.String())
		}
		if seen[tool.Name] {
			return fmt.Errorf("duplicate tool name %q", tool.Name)
		}
		seen[tool.Name] = true
	}
	return nil
}
