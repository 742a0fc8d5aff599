// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/laguz/internal/models"

// Provider is the interface for vault file operations. All paths are
// relative to the vault root.
type Provider interface {
	// List walks dir and returns metadata (including content checksum) for
	// every supported file. Per-file read errors are collected into errs and
	// do not abort the walk.
	List(dir string) (metas []models.FileMetadata, errs []string, err error)
	// Read returns the raw bytes of a vault file.
	Read(path string) ([]byte, error)
	// Stat returns metadata for a single vault file.
	Stat(path string) (models.FileMetadata, error)
	// Supported reports whether the file at path has a supported extension.
	Supported(path string) bool
	// Kind returns the extension-derived type tag for path ("markdown",
	// "text", ...), or empty when unsupported.
	Kind(path string) string
	// Root returns the absolute vault root directory.
	Root() string
}
