package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shanefrancis93/anchor-research/logger"
)

// LoadFile loads a single scenario: schema validation first, then parse.
// Malformed files are rejected here so the engine never sees one.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	violations, err := ValidateContent(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("%s: schema violation: %s", filepath.Base(path), violations[0].Error())
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.FilePath = path
	return s, nil
}

// LoadDir loads every *.md scenario in a directory, sorted by name. Files
// that fail to load are logged and skipped rather than failing the whole
// directory, so one bad file does not block a batch.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios directory: %w", err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		s, err := LoadFile(path)
		if err != nil {
			logger.Warn("skipping scenario", "file", entry.Name(), "error", err)
			continue
		}
		scenarios = append(scenarios, s)
	}

	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].Name < scenarios[j].Name
	})
	return scenarios, nil
}

// FindByName returns the scenario with the given name from a loaded set.
func FindByName(scenarios []*Scenario, name string) (*Scenario, bool) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}
