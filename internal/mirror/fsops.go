package mirror

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	dirPerm       = 0o755
	partialSuffix = ".partial"
)

// fileOps is the filesystem surface the processor acts through. Every
// method reports false instead of failing when the entry it needs is
// already gone, because those are expected races rather than errors.
type fileOps interface {
	CopyFile(src, dst string) (bool, error)
	CopyTree(src, dst string) (bool, error)
	Remove(path string) (bool, error)
	RemoveTree(path string) (bool, error)
}

// osFileOps implements fileOps on the local filesystem.
type osFileOps struct{}

// CopyFile copies src to dst, creating parent directories and replacing any
// existing file. The content lands in a .partial sibling first and is
// renamed into place, so the application server never sees a torn file.
// Modification time and permission bits follow the source.
func (osFileOps) CopyFile(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("mirror: opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return false, fmt.Errorf("mirror: stat %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return false, fmt.Errorf("mirror: creating parent of %s: %w", dst, err)
	}

	partialPath := dst + partialSuffix

	out, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return false, fmt.Errorf("mirror: creating partial file %s: %w", partialPath, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(partialPath)

		return false, fmt.Errorf("mirror: copying %s to %s: %w", src, dst, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(partialPath)

		return false, fmt.Errorf("mirror: closing partial file %s: %w", partialPath, err)
	}

	mtime := info.ModTime()
	if err := os.Chtimes(partialPath, mtime, mtime); err != nil {
		os.Remove(partialPath)

		return false, fmt.Errorf("mirror: setting mtime on %s: %w", partialPath, err)
	}

	if err := os.Rename(partialPath, dst); err != nil {
		os.Remove(partialPath)

		return false, fmt.Errorf("mirror: renaming partial to %s: %w", dst, err)
	}

	return true, nil
}

// CopyTree copies every file below src to the same relative path below
// dst. Directories are created even when empty. Entries that disappear
// while the walk runs are skipped.
func (o osFileOps) CopyTree(src, dst string) (bool, error) {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}

			return walkErr
		}

		target := Reflect(path, src, dst)

		if d.IsDir() {
			return os.MkdirAll(target, dirPerm)
		}

		if !d.Type().IsRegular() {
			return nil
		}

		_, err := o.CopyFile(path, target)

		return err
	})
	if err != nil {
		return false, fmt.Errorf("mirror: copying tree %s to %s: %w", src, dst, err)
	}

	return true, nil
}

// Remove deletes one file. An absent file is not an error.
func (osFileOps) Remove(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("mirror: removing %s: %w", path, err)
	}

	return true, nil
}

// RemoveTree deletes a directory and everything below it. An absent
// directory is not an error.
func (osFileOps) RemoveTree(path string) (bool, error) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("mirror: removing tree %s: %w", path, err)
	}

	return true, nil
}

// isDirectory classifies an entry, preferring the target side: after a
// deletion the source no longer exists but the mirrored copy still does.
func isDirectory(target, source string) bool {
	if info, err := os.Stat(target); err == nil {
		return info.IsDir()
	}

	if info, err := os.Stat(source); err == nil {
		return info.IsDir()
	}

	return false
}
