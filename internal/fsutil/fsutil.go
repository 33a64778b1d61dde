// Package fsutil provides the file tree primitives behind kernel extraction and project overlays:
// recursive copy with subtree pruning, content-hash comparison, and text detection.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
	// sniffLen matches the prefix length git uses to decide whether a blob is binary.
	sniffLen = 8000
)

// Result lists the files touched by a copy, as slash-separated paths relative to the destination.
type Result struct {
	Written   []string
	Unchanged []string
}

// Options configures CopyTree.
type Options struct {
	// SkipDir prunes a directory and its whole subtree. rel is relative to the source root.
	SkipDir func(rel string, d fs.DirEntry) bool
	// SkipFile leaves a single file out of the copy.
	SkipFile func(rel string) bool
	// Transform rewrites file content before it is written. Nil copies verbatim.
	Transform func(rel string, data []byte) []byte
}

// CopyTree copies every regular file under src into dst, creating directories as needed and
// overwriting files whose content differs. Files already holding identical content are left
// untouched. Nothing in dst is ever deleted. The copy is not transactional: on error the files
// written so far stay in place.
func CopyTree(src, dst string, opts Options) (Result, error) {
	var res Result
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && opts.SkipDir != nil && opts.SkipDir(rel, d) {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), dirPerm)
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if opts.SkipFile != nil && opts.SkipFile(filepath.ToSlash(rel)) {
			return nil
		}
		written, err := CopyFile(path, filepath.Join(dst, rel), func(data []byte) []byte {
			if opts.Transform == nil {
				return data
			}
			return opts.Transform(filepath.ToSlash(rel), data)
		})
		if err != nil {
			return err
		}
		if written {
			res.Written = append(res.Written, filepath.ToSlash(rel))
		} else {
			res.Unchanged = append(res.Unchanged, filepath.ToSlash(rel))
		}
		return nil
	})
	return res, err
}

// CopyFile copies src to dst through transform (nil copies verbatim), creating parent
// directories. It reports whether dst was written; identical content is not rewritten.
func CopyFile(src, dst string, transform func([]byte) []byte) (bool, error) {
	data, err := os.ReadFile(src) // #nosec G304 -- src comes from a walk of the kernel template
	if err != nil {
		return false, err
	}
	if transform != nil {
		data = transform(data)
	}
	perm := fs.FileMode(filePerm)
	if info, statErr := os.Stat(src); statErr == nil {
		perm = info.Mode().Perm()
	}
	return WriteFileIfChanged(dst, data, perm)
}

// WriteFileIfChanged writes data to path unless path already holds the same bytes.
func WriteFileIfChanged(path string, data []byte, perm fs.FileMode) (bool, error) {
	same, err := SameContent(path, data)
	if err != nil {
		return false, err
	}
	if same {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, err
	}
	return true, nil
}

// SameContent reports whether the file at path exists and its BLAKE3 digest equals data's.
func SameContent(path string, data []byte) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() != int64(len(data)) {
		return false, nil
	}
	existing, err := os.ReadFile(path) // #nosec G304 -- path is inside the destination tree
	if err != nil {
		return false, err
	}
	return blake3.Sum256(existing) == blake3.Sum256(data), nil
}

// IsText reports whether data looks like text: no NUL byte in its leading sniffLen bytes.
func IsText(data []byte) bool {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	return !bytes.Contains(head, []byte{0})
}

// Exists reports whether path exists (file or directory).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Files lists the regular files under root as slash-separated relative paths.
func Files(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}
