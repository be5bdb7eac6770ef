// Package storage defines the flat-file abstraction the archive is built on.
package storage

import "time"

// TempPrefix marks in-flight writes. Files with this prefix are never listed.
const TempPrefix = ".monologue-tmp-"

// FileInfo describes one stored markdown file.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Provider is the interface for archive file operations. Names are relative to
// the provider root.
type Provider interface {
	// List returns every .md file directly under the root, sorted by name.
	List() ([]FileInfo, error)
	// Read returns the raw bytes of the named file.
	Read(name string) ([]byte, error)
	// Write atomically replaces the named file with content.
	Write(name string, content []byte) error
	// Delete removes the named file.
	Delete(name string) error
	// Sweep removes temp files left behind by interrupted writes.
	Sweep() ([]string, error)
	// Path returns the absolute path of the named file.
	Path(name string) string
}
