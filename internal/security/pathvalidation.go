// Package security checks the paths the control panel is asked to write.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOutsideDirectory is returned for a path that resolves outside the
	// directory it must stay in.
	ErrOutsideDirectory = errors.New("path escapes directory")
	// ErrNotPNG is returned for an output path without a .png extension.
	ErrNotPNG = errors.New("output file must have a .png extension")
)

// canonical resolves symlinks in the longest existing prefix of path, so a
// file that does not exist yet is still checked through its parents.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	existing, rest := abs, ""
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

// ValidatePathWithinDirectory rejects a path that, after cleaning and
// symlink resolution, lies outside dir.
func ValidatePathWithinDirectory(path, dir string) error {
	target, err := canonical(path)
	if err != nil {
		return err
	}
	base, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutsideDirectory, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is not inside %s", ErrOutsideDirectory, path, dir)
	}
	return nil
}

// ValidateOutputPath checks a map export destination: a .png file inside
// dir that is not an existing directory. Relative paths are taken relative
// to dir. It returns the path to write.
func ValidateOutputPath(path, dir string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("output path is empty")
	}
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		return "", fmt.Errorf("%w: %s", ErrNotPNG, path)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if err := ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return "", fmt.Errorf("output path %s is a directory", path)
	}
	return filepath.Clean(path), nil
}
