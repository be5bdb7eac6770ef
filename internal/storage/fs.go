package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS implements Provider backed by a local directory.
type FS struct {
	root string // absolute path to the archive directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute archive directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a file name against the root and rejects anything that is
// not a plain file directly inside it.
func (f *FS) safePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("storage: empty file name")
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", name)
	}
	if cleaned != filepath.Base(cleaned) || cleaned == ".." || cleaned == "." {
		return "", fmt.Errorf("storage: path escapes archive root: %s", name)
	}
	return filepath.Join(f.root, cleaned), nil
}

// Path returns the absolute path of name without validating it.
func (f *FS) Path(name string) string {
	return filepath.Join(f.root, filepath.Base(name))
}

// List returns every .md file directly under the root.
func (f *FS) List() ([]FileInfo, error) {
	dirents, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []FileInfo
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") || strings.HasPrefix(d.Name(), TempPrefix) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", d.Name(), err)
		}
		out = append(out, FileInfo{Name: d.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns the raw bytes of an archive file.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a file from the archive.
func (f *FS) Delete(name string) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}

// Sweep removes leftover temp files and returns their names.
func (f *FS) Sweep() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(f.root, TempPrefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("storage: sweep: %w", err)
	}
	var removed []string
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("storage: sweep %s: %w", filepath.Base(m), err)
		}
		removed = append(removed, filepath.Base(m))
	}
	return removed, nil
}
