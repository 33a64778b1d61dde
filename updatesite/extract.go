package updatesite

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/skosovsky/kernelctl"
)

// ExtractZip extracts the archive at path into dest verbatim and returns the number of files written.
// Entries that would land outside dest fail with kernelctl.ErrFilesystem before anything is written for them.
func ExtractZip(path, dest string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open archive: %w", kernelctl.ErrTransport, err)
	}
	defer func() { _ = r.Close() }()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return 0, fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}

	files := 0
	for _, f := range r.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return files, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return files, fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func entryPath(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: archive entry %q escapes destination", kernelctl.ErrFilesystem, name)
	}
	target := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: archive entry %q escapes destination", kernelctl.ErrFilesystem, name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %q: %w", kernelctl.ErrTransport, f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) // #nosec G304 -- target checked by entryPath
	if err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	if _, err := io.Copy(out, rc); err != nil { // #nosec G110 -- archive size is bounded by the download limit
		_ = out.Close()
		return fmt.Errorf("%w: write %s: %w", kernelctl.ErrFilesystem, target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	return nil
}
