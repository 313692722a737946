package mirror

import (
	"path/filepath"
	"strings"
)

// Reflect maps eventPath, which must lie inside sourceRoot, to the same
// relative location under targetRoot. The source root itself maps to
// targetRoot. No filesystem access is made.
func Reflect(eventPath, sourceRoot, targetRoot string) string {
	rel := relativeTo(eventPath, sourceRoot)
	if rel == "" {
		return filepath.Clean(targetRoot)
	}

	return filepath.Join(targetRoot, rel)
}

// relativeTo is a lexical filepath.Rel for paths known to be inside root.
// It avoids the error return of filepath.Rel, which only fires for inputs
// that cannot occur here.
func relativeTo(path, root string) string {
	path = filepath.Clean(path)
	root = filepath.Clean(root)

	if path == root {
		return ""
	}

	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	return strings.TrimPrefix(path, prefix)
}

// isWithin reports whether path is root or lies below it.
func isWithin(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)

	if path == root {
		return true
	}

	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}

	return strings.HasPrefix(path, root)
}
