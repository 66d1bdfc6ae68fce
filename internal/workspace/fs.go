// Package workspace gives the services rooted access to the files being indexed and edited.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/coderag/internal/domain"
)

// FS resolves paths against a root directory. Relative paths are joined to
// the root, absolute paths are used as given.
type FS struct {
	root string
}

// New creates an FS rooted at root, which must be an existing directory.
func New(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *FS) Root() string { return w.root }

// Resolve returns the absolute path for p.
func (w *FS) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", domain.InvalidInputf("path is required")
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Join(w.root, filepath.FromSlash(p)), nil
}

// Rel returns p relative to the root with forward slashes. Paths outside the
// root are returned cleaned and absolute.
func (w *FS) Rel(p string) string {
	abs, err := w.Resolve(p)
	if err != nil {
		return p
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// Read returns the file content. A missing file wraps domain.ErrNotFound.
func (w *FS) Read(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := w.Resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", p, domain.ErrNotFound)
		}
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return string(data), nil
}

// Exists reports whether p names an existing regular file.
func (w *FS) Exists(p string) bool {
	info, err := w.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Stat returns file info for p.
func (w *FS) Stat(p string) (fs.FileInfo, error) {
	abs, err := w.Resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", p, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	return info, nil
}

// Write stores content at p, creating parent directories. An existing file is
// only replaced when overwrite is set, otherwise domain.ErrFileExists is returned.
// The file mode of a replaced file is kept.
func (w *FS) Write(ctx context.Context, p, content string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := w.Resolve(p)
	if err != nil {
		return err
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return domain.InvalidInputf("%s is a directory", p)
		}
		if !overwrite {
			return fmt.Errorf("write %s: %w", p, domain.ErrFileExists)
		}
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(dir, ".coderag-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Chmod(name, mode); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Rename(name, abs); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// Walk visits every regular file under the root in lexical order. Directories
// for which skipDir returns true are not entered. fn receives the path relative
// to the root with forward slashes.
func (w *FS) Walk(ctx context.Context, skipDir func(name string) bool, fn func(rel string, info fs.FileInfo) error) error {
	return filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == w.root {
				return err
			}
			// Unreadable entries are skipped.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != w.root && skipDir != nil && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return nil
		}
		return fn(filepath.ToSlash(rel), info)
	})
}
