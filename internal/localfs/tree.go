package localfs

import (
	"os"
	"path/filepath"
	"sort"
)

// LocalFile is one regular file discovered under an upload root, identified
// by its path relative to that root.
type LocalFile struct {
	RelPath string
	Size    int64
}

// FS bundles the filesystem operations the transfer queue engine consumes.
// It exists as a struct (rather than free functions) so the engine can take
// it behind a small interface and tests can substitute a fake.
type FS struct {
	opts WalkOptions
}

// NewFS creates a filesystem accessor. includeHidden controls whether
// dot-files participate in folder uploads.
func NewFS(includeHidden bool) *FS {
	return &FS{
		opts: WalkOptions{
			IncludeHidden:  includeHidden,
			SkipHiddenDirs: !includeHidden,
		},
	}
}

// Exists reports whether a local path exists.
func (f *FS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileSize returns the size of a local file, or 0 if it cannot be stat'd.
func (f *FS) FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CreateDirAll creates a local directory and any missing parents.
func (f *FS) CreateDirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Subdirectories returns every directory under root (root itself excluded)
// as root-relative paths, parents strictly before children. This is the
// order remote mkdirs must be issued in during a folder upload.
func (f *FS) Subdirectories(root string) ([]string, error) {
	var dirs []string
	err := Walk(root, f.opts, func(entry FileEntry) error {
		if !entry.IsDir || entry.Path == root {
			return nil
		}
		rel, err := filepath.Rel(root, entry.Path)
		if err != nil {
			return nil
		}
		dirs = append(dirs, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// WalkDir already yields parents before children; the sort keeps that
	// guarantee explicit and stable across platforms.
	sort.Strings(dirs)
	return dirs, nil
}

// FilesUnder returns every regular file under root as root-relative paths
// with sizes, in deterministic lexical order.
func (f *FS) FilesUnder(root string) ([]LocalFile, error) {
	var files []LocalFile
	err := WalkFiles(root, f.opts, func(entry FileEntry) error {
		rel, err := filepath.Rel(root, entry.Path)
		if err != nil {
			return nil
		}
		files = append(files, LocalFile{RelPath: rel, Size: entry.Size})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}
