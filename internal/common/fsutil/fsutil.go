// Package fsutil holds the small path helpers shared by the config loader
// and the state store.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory, so paths
// like ~/.widgetd/state.json work from config files and flags.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")
	if rest == "" {
		return home, nil
	}
	return filepath.Join(home, rest), nil
}

// EnsureDir creates the directory containing path if it does not exist yet.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
