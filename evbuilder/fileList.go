package main

import (
	"fmt"
	"path/filepath"

	"golang.org/x/exp/slices"
)

// GetFileList returns the files of dir matching pattern in name order,
// at most maxFiles of them when maxFiles > 0.
func GetFileList(dir string, pattern string, maxFiles int) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
	}
	slices.Sort(files)
	if maxFiles > 0 && len(files) > maxFiles {
		files = files[:maxFiles]
	}
	return files, nil
}

// outputPath places relative file names under outputDir.
func outputPath(outputDir string, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(outputDir, name)
}
