// Package security keeps file output inside directories the operator
// expects and makes session-derived names safe to use as file names.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Roots is a set of directories that writes are confined to.
type Roots []string

// Check resolves path (relative parts, "..", symlinks on the existing
// prefix) and reports an error unless it falls under one of the roots.
func (rs Roots) Check(path string) error {
	if len(rs) == 0 {
		return errors.New("no allowed directories configured")
	}
	target, err := resolve(path)
	if err != nil {
		return err
	}
	for _, root := range rs {
		if err := within(target, root); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%s is outside %s", path, strings.Join(rs, ", "))
}

func within(target, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	base, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s escapes %s", target, root)
	}
	return nil
}

// resolve follows symlinks on the longest prefix of path that exists, so
// a file that is about to be created is judged by where it would land.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	var tail []string
	for p := abs; ; p = filepath.Dir(p) {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if filepath.Dir(p) == p {
			return abs, nil
		}
		tail = append([]string{filepath.Base(p)}, tail...)
	}
}

// ValidateExportPath allows analysis output under the temp directory or
// the working directory.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	return Roots{os.TempDir(), cwd}.Check(path)
}

const maxFilenameLen = 128

var (
	unsafeRun     = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	underscoreRun = regexp.MustCompile(`_{2,}`)
)

// SanitizeFilename keeps ASCII letters, digits, '.', '_' and '-' and turns
// everything else into single underscores. Leading and trailing dots and
// underscores are dropped; an empty result becomes "unknown".
func SanitizeFilename(s string) string {
	out := underscoreRun.ReplaceAllString(unsafeRun.ReplaceAllString(s, "_"), "_")
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
	}
	if out = strings.Trim(out, "._"); out == "" {
		return "unknown"
	}
	return out
}
