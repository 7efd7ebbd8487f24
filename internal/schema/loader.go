package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/llm-council/council/internal/pathsafe"
)

// Load reads a canonical JSON Schema by name from dir. name is validated
// against the same lowercase-alphanumeric/hyphen/underscore allowlist the
// role registry applies to its own file names, and the resolved path is
// checked against dir before the file is opened.
func Load(dir, name string) (map[string]any, error) {
	if err := pathsafe.ValidateName(name, "schema"); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, name+".json")
	if err := pathsafe.EnsureContained(path, dir, "schema"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path validated above
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", name, err)
	}

	var canonical map[string]any
	if err := json.Unmarshal(data, &canonical); err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", name, err)
	}

	if err := SanityCheck(canonical); err != nil {
		return nil, err
	}
	return canonical, nil
}

// List returns the names of every "*.json" schema file directly under dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("schema: read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name()[:len(entry.Name())-len(".json")])
	}
	return names, nil
}
