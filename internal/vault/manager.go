// Package vault locates journal documents on disk.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Journal is a directory tree of journal documents.
type Journal struct {
	root string
}

// Open returns the journal rooted at dir. The directory must exist.
func Open(dir string) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal directory is not set")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve journal directory %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("journal path %s is not a directory", root)
	}
	return &Journal{root: root}, nil
}

// Root returns the absolute journal directory.
func (j *Journal) Root() string {
	return j.root
}

// AbsPath returns the absolute path of a file relative to the journal root.
func (j *Journal) AbsPath(relPath string) string {
	return filepath.Join(j.root, filepath.FromSlash(relPath))
}

// Contains reports whether path lies inside the journal directory.
func (j *Journal) Contains(path string) bool {
	rel, err := filepath.Rel(j.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
