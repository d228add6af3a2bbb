// Package pathutil provides path helpers shared by the queue engine, the
// transport, and the CLI. Remote paths always use forward slashes regardless
// of the local OS.
package pathutil

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NormalizeRemote canonicalizes a remote device path: forward slashes only,
// redundant separators collapsed, trailing slash stripped. The root stays "/".
// Recursive-operation duplicate detection compares normalized paths, so two
// spellings of the same folder coalesce into one request.
func NormalizeRemote(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "/"
	}
	return cleaned
}

// JoinRemote joins remote path elements with forward slashes.
func JoinRemote(elem ...string) string {
	return NormalizeRemote(path.Join(elem...))
}

// RemoteBase returns the last element of a remote path.
func RemoteBase(p string) string {
	return path.Base(NormalizeRemote(p))
}

// RemoteParent returns the parent directory of a remote path.
// The parent of "/" is "/".
func RemoteParent(p string) string {
	return path.Dir(NormalizeRemote(p))
}

// RemoteDepth returns the number of path separators in a normalized remote
// path. Deeper paths have strictly larger depth than their ancestors, which
// is what the recursive-delete ordering relies on.
func RemoteDepth(p string) int {
	return strings.Count(NormalizeRemote(p), "/")
}

// ToRemote converts a local relative path (possibly with OS separators)
// into remote separator form.
func ToRemote(rel string) string {
	return strings.ReplaceAll(rel, string(filepath.Separator), "/")
}

// ResolveLocal converts a local path to an absolute path, expanding a
// leading ~ to the user's home directory.
func ResolveLocal(p string) (string, error) {
	if p == "" {
		return os.Getwd()
	}
	if p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = home + p[1:]
	}
	return filepath.Abs(p)
}
