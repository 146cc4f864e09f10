// Package store persists widget state as a versioned JSON document on disk.
// It plugs into the persist callbacks: Load/Save match the LoadFunc/SaveFunc
// signatures directly.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Caldeiraaf/ipywidgets/internal/common/fsutil"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// FileStore reads and writes one state file.
type FileStore struct {
	path string
	log  zerolog.Logger
}

func NewFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty state file path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: p, log: log}, nil
}

func (s *FileStore) Path() string { return s.path }

// Load reads the state file. A missing file means a fresh document: empty
// state, no error. A file with a different major version is refused rather
// than half-parsed.
func (s *FileStore) Load(_ context.Context) (types.StateMap, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return types.StateMap{}, nil
	}
	if err != nil {
		return nil, err
	}
	var f types.StateFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	if f.VersionMajor != types.StateVersionMajor {
		return nil, fmt.Errorf("state file %s: unsupported version %d.%d", s.path, f.VersionMajor, f.VersionMinor)
	}
	if f.State == nil {
		f.State = types.StateMap{}
	}
	s.log.Debug().Str("path", s.path).Int("models", len(f.State)).Msg("state file loaded")
	return f.State, nil
}

// Save writes the state atomically: a temp file in the target directory,
// then a rename over the destination. A crash mid-save leaves the previous
// file intact.
func (s *FileStore) Save(_ context.Context, state types.StateMap) error {
	f := types.StateFile{
		VersionMajor: types.StateVersionMajor,
		VersionMinor: types.StateVersionMinor,
		State:        state,
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := fsutil.EnsureDir(s.path); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".widgets-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	s.log.Debug().Str("path", s.path).Int("models", len(state)).Msg("state file written")
	return nil
}
