package vault

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ScannedFile represents a markdown file found during a journal scan.
type ScannedFile struct {
	RelPath string // Relative path from the journal root (e.g., "2024/2024-01-15.md")
	Folder  string // Folder path (path components except filename, e.g., "2024")
	AbsPath string // Absolute file path
}

// Scan walks the journal and returns every markdown file in lexical order.
// Hidden directories such as .git or .obsidian are skipped.
func (j *Journal) Scan(ctx context.Context) ([]ScannedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var scannedFiles []ScannedFile
	err := filepath.WalkDir(j.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != j.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".md" || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		relPath, err := filepath.Rel(j.root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		relPath = filepath.ToSlash(relPath)

		folder := filepath.ToSlash(filepath.Dir(relPath))
		if folder == "." {
			folder = ""
		}

		scannedFiles = append(scannedFiles, ScannedFile{
			RelPath: relPath,
			Folder:  folder,
			AbsPath: path,
		})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return scannedFiles, fmt.Errorf("failed to scan journal %s: %w", j.root, err)
	}
	return scannedFiles, nil
}
