package version

import (
	"strings"
	"testing"
)

// stamp sets the build variables for one test and restores them afterwards.
func stamp(t *testing.T, version, commit, built string) {
	t.Helper()
	v, c, b := Version, Commit, BuildDate
	t.Cleanup(func() { Version, Commit, BuildDate = v, c, b })
	Version, Commit, BuildDate = version, commit, built
}

func TestInfo(t *testing.T) {
	tests := []struct {
		commit string
		want   string
	}{
		{"unknown", "0.9.1"},
		{"abc", "0.9.1"},
		{"1234567", "0.9.1"},
		{"12345678", "0.9.1 (1234567)"},
		{"f00dcafe0123", "0.9.1 (f00dcaf)"},
	}
	for _, tt := range tests {
		t.Run(tt.commit, func(t *testing.T) {
			stamp(t, "0.9.1", tt.commit, "unknown")
			if got := Info(); got != tt.want {
				t.Errorf("Info() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFull(t *testing.T) {
	stamp(t, "1.2.3", "f00dcafe0123", "2026-03-02")

	lines := strings.Split(Full(), "\n")
	want := []string{"clslens version 1.2.3", "Commit: f00dcafe0123", "Built: 2026-03-02"}
	if len(lines) != len(want) {
		t.Fatalf("Full() has %d lines, want %d: %q", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestUserAgent(t *testing.T) {
	stamp(t, "9.9.9", "unknown", "unknown")
	if got := UserAgent(); got != "clslens/9.9.9" {
		t.Errorf("UserAgent() = %q, want %q", got, "clslens/9.9.9")
	}
}

func TestDefaultVersionIsSemver(t *testing.T) {
	if parts := strings.Split(Version, "."); len(parts) != 3 {
		t.Errorf("Version %q is not major.minor.patch", Version)
	}
}
