// Package pathsafe validates resource names and resolved file paths so
// that user- or config-supplied identifiers cannot escape a base
// directory — shared by the role registry (role file names) and the
// schema loader (schema file names).
package pathsafe

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// namePattern allows lowercase alphanumerics, hyphens, and underscores,
// starting with an alphanumeric — the same allowlist the role and schema
// file loaders apply to untrusted name input before it ever touches a
// filesystem path.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateName rejects names that are empty or contain characters outside
// the lowercase-alphanumeric/hyphen/underscore allowlist, which is
// sufficient to prevent path traversal and null-byte injection when the
// name is later joined onto a base directory.
func ValidateName(name, resourceType string) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", resourceType)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid %s name %q: must match pattern %q (lowercase alphanumeric, hyphens, underscores)", resourceType, name, namePattern.String())
	}
	return nil
}

// EnsureContained makes path absolute and confirms it still lives under
// baseDir once ".." segments are cleaned away. It returns an error if path
// escapes baseDir. Symlinks are not resolved.
func EnsureContained(path, baseDir, resourceType string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%s path: %w", resourceType, err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("%s base dir: %w", resourceType, err)
	}

	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s path escapes allowed directory: %s", resourceType, path)
	}
	return nil
}
