package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home) // windows variant of os.UserHomeDir

	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/var/lib/widgetd/state.json", "/var/lib/widgetd/state.json"},
		{"relative/state.json", "relative/state.json"},
		{"~", home},
		{"~/", home},
		{"~/.widgetd/state.json", filepath.Join(home, ".widgetd", "state.json")},
	}
	for _, tc := range cases {
		got, err := ExpandHome(tc.in)
		if err != nil {
			t.Fatalf("ExpandHome(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ExpandHome(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "deep", "state.json")
	if err := EnsureDir(target); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	fi, err := os.Stat(filepath.Dir(target))
	if err != nil || !fi.IsDir() {
		t.Fatalf("parent not created: fi=%v err=%v", fi, err)
	}

	// Idempotent on existing directories, no-op for bare file names.
	if err := EnsureDir(target); err != nil {
		t.Fatalf("EnsureDir twice: %v", err)
	}
	if err := EnsureDir("state.json"); err != nil {
		t.Fatalf("EnsureDir bare name: %v", err)
	}
}
