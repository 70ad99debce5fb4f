// Package security checks user-supplied output locations before the
// analyser writes captures or plots to them.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowedDirs is returned when an output path resolves outside every
// allowed root.
var ErrOutsideAllowedDirs = errors.New("path escapes allowed directories")

// resolve returns the absolute, symlink-free form of path. A path that does
// not exist yet is resolved through its nearest existing ancestor, so a
// symlinked parent cannot redirect a new file elsewhere.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}

	var rest []string
	dir := abs
	for {
		parent := filepath.Dir(dir)
		rest = append([]string{filepath.Base(dir)}, rest...)
		if parent == dir {
			return abs, nil
		}
		if real, err := filepath.EvalSymlinks(parent); err == nil {
			return filepath.Join(append([]string{real}, rest...)...), nil
		}
		dir = parent
	}
}

// Within reports whether path resolves to root or somewhere beneath it.
func Within(path, root string) (bool, error) {
	p, err := resolve(path)
	if err != nil {
		return false, err
	}
	r, err := resolve(root)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return false, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false, nil
	}
	return true, nil
}

// ValidateOutputPath accepts path only if it lies under one of roots.
func ValidateOutputPath(path string, roots ...string) error {
	if len(roots) == 0 {
		return errors.New("no output roots configured")
	}
	for _, root := range roots {
		ok, err := Within(path, root)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%s: %w %v", path, ErrOutsideAllowedDirs, roots)
}

// DefaultOutputRoots returns the working directory and the system temp dir.
func DefaultOutputRoots() ([]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return []string{cwd, os.TempDir()}, nil
}

// ValidateExportPath checks a capture or plot location against
// DefaultOutputRoots.
func ValidateExportPath(path string) error {
	roots, err := DefaultOutputRoots()
	if err != nil {
		return err
	}
	return ValidateOutputPath(path, roots...)
}

const maxFilenameLen = 64

// SanitizeFilename maps a series label onto a file stem made of ASCII letters,
// digits, dot, dash and underscore. Runs of other characters collapse to one
// underscore.
func SanitizeFilename(label string) string {
	var b strings.Builder
	pending := false
	for _, r := range label {
		if b.Len() >= maxFilenameLen {
			break
		}
		ok := r == '.' || r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "series"
	}
	return out
}
