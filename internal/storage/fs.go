package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/laguz/internal/checksum"
	"github.com/starford/laguz/internal/models"
)

// kindByExt maps supported file extensions to their type tags.
var kindByExt = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
}

// defaultIgnoreDirs are directory names skipped during walks regardless of
// configuration (VCS and vault-internal metadata).
var defaultIgnoreDirs = map[string]struct{}{
	".git":      {},
	".obsidian": {},
	".laguz":    {},
}

// FS implements Provider backed by the local file system.
type FS struct {
	root   string // absolute path to vault directory
	ignore map[string]struct{}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist. ignoreDirs extends the built-in
// ignore set.
func NewFS(root string, ignoreDirs ...string) (*FS, error) {
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
	ignore := make(map[string]struct{}, len(defaultIgnoreDirs)+len(ignoreDirs))
	for d := range defaultIgnoreDirs {
		ignore[d] = struct{}{}
	}
	for _, d := range ignoreDirs {
		ignore[d] = struct{}{}
	}
	return &FS{root: abs, ignore: ignore}, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string { return f.root }

// Supported reports whether path has a supported extension.
func (f *FS) Supported(path string) bool {
	return f.Kind(path) != ""
}

// Kind returns the extension-derived type tag, or empty when unsupported.
func (f *FS) Kind(path string) string {
	return kindByExt[strings.ToLower(filepath.Ext(path))]
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// skippable reports whether a directory entry should be skipped: hidden
// entries and configured ignore directories.
func (f *FS) skippable(name string, isDir bool) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if isDir {
		_, ok := f.ignore[name]
		return ok
	}
	return false
}

// List walks dir (relative to root) depth-first and returns metadata for
// every supported file. A file that disappears between the walk seeing it
// and the hash read is reported in errs, not as a fatal error.
func (f *FS) List(dir string) ([]models.FileMetadata, []string, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, nil, err
	}
	var out []models.FileMetadata
	var errs []string
	walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, wErr error) error {
		if wErr != nil {
			if p == base {
				return wErr
			}
			errs = append(errs, fmt.Sprintf("%s: %v", p, wErr))
			return nil
		}
		if f.skippable(d.Name(), d.IsDir()) {
			if d.IsDir() && p != base {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !f.Supported(p) {
			return nil
		}
		rel, relErr := filepath.Rel(f.root, p)
		if relErr != nil {
			return nil
		}
		meta, statErr := f.stat(p, rel)
		if statErr != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", rel, statErr))
			return nil
		}
		out = append(out, meta)
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("storage: list: %w", walkErr)
	}
	return out, errs, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Stat returns metadata for a single vault file.
func (f *FS) Stat(path string) (models.FileMetadata, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return models.FileMetadata{}, err
	}
	return f.stat(abs, path)
}

func (f *FS) stat(abs, rel string) (models.FileMetadata, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return models.FileMetadata{}, fmt.Errorf("storage: stat %s: %w", rel, err)
	}
	cs, err := checksum.File(abs)
	if err != nil {
		return models.FileMetadata{}, err
	}
	return models.FileMetadata{
		Path:       filepath.ToSlash(rel),
		Checksum:   cs,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}
