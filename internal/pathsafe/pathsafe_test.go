package pathsafe_test

import (
	"path/filepath"
	"testing"

	"github.com/llm-council/council/internal/pathsafe"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"drafter", false},
		{"test-designer", false},
		{"red_team_2", false},
		{"", true},
		{"Drafter", true},
		{"../etc/passwd", true},
		{"drafter/../other", true},
		{"-leading-hyphen", true},
	}

	for _, tt := range tests {
		err := pathsafe.ValidateName(tt.name, "role")
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestEnsureContained(t *testing.T) {
	base := t.TempDir()

	if err := pathsafe.EnsureContained(filepath.Join(base, "drafter.yaml"), base, "role"); err != nil {
		t.Errorf("expected contained path to pass, got %v", err)
	}

	if err := pathsafe.EnsureContained(filepath.Join(base, "..", "escape.yaml"), base, "role"); err == nil {
		t.Error("expected escaping path to be rejected")
	}
}
