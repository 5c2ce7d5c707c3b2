// Package dotdir manages the .parley/ and ~/.parley directories that hold
// config.toml.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the parley directory.
	dirName = ".parley"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the .parley/ directory to use:
//  1. overrideDir, created when missing
//  2. ./.parley/ in the working directory
//  3. ~/.parley/
//
// It returns "" when overrideDir is empty and neither directory exists.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating parley directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	for _, base := range []func() (string, error){os.Getwd, os.UserHomeDir} {
		dir, err := base()
		if err != nil {
			return "", fmt.Errorf("locating parley directory: %w", err)
		}
		if candidate := filepath.Join(dir, dirName); isDir(candidate) {
			return candidate, nil
		}
	}

	return "", nil
}

// Create is Target, except that it creates ~/.parley/ when no directory was
// resolved.
func (m *Manager) Create(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir != "" {
		return dir, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir = filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating parley directory %s: %w", dir, err)
	}
	return dir, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
