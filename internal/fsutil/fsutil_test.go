package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestCopyTree_SkipDirPrunesSubtree(t *testing.T) {
	t.Parallel()
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":           "a",
		"sub/b.txt":       "b",
		"skip/c.txt":      "c",
		"skip/deep/d.txt": "d",
	})
	res, err := CopyTree(src, dst, Options{
		SkipDir: func(rel string, _ fs.DirEntry) bool { return rel == "skip" },
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt"}, res.Written)
	assert.NoDirExists(t, filepath.Join(dst, "skip"))
	assert.FileExists(t, filepath.Join(dst, "sub", "b.txt"))
}

func TestCopyTree_SkipFile(t *testing.T) {
	t.Parallel()
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"keep.txt": "k", ".meta.yaml": "m", "sub/.meta.yaml": "n"})
	res, err := CopyTree(src, dst, Options{
		SkipFile: func(rel string) bool { return rel == ".meta.yaml" },
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep.txt", "sub/.meta.yaml"}, res.Written)
	assert.NoFileExists(t, filepath.Join(dst, ".meta.yaml"))
}

func TestCopyTree_SecondRunUnchanged(t *testing.T) {
	t.Parallel()
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a", "b/c.txt": "c"})
	first, err := CopyTree(src, dst, Options{})
	require.NoError(t, err)
	assert.Len(t, first.Written, 2)

	second, err := CopyTree(src, dst, Options{})
	require.NoError(t, err)
	assert.Empty(t, second.Written)
	assert.ElementsMatch(t, []string{"a.txt", "b/c.txt"}, second.Unchanged)
}

func TestCopyTree_TransformAndNoDelete(t *testing.T) {
	t.Parallel()
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"x.txt": "hello NAME"})
	writeTree(t, dst, map[string]string{"keep.txt": "user file"})
	_, err := CopyTree(src, dst, Options{
		Transform: func(_ string, data []byte) []byte {
			return []byte(strings.ReplaceAll(string(data), "NAME", "proj"))
		},
	})
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dst, "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello proj", string(got))
	assert.FileExists(t, filepath.Join(dst, "keep.txt"))
}

func TestWriteFileIfChanged(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "f.txt")
	written, err := WriteFileIfChanged(path, []byte("v1"), 0o644)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteFileIfChanged(path, []byte("v1"), 0o644)
	require.NoError(t, err)
	assert.False(t, written)

	written, err = WriteFileIfChanged(path, []byte("v2"), 0o644)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestSameContent_Directory(t *testing.T) {
	t.Parallel()
	_, err := SameContent(t.TempDir(), []byte("x"))
	require.Error(t, err)
}

func TestIsText(t *testing.T) {
	t.Parallel()
	assert.True(t, IsText([]byte("plain text\n")))
	assert.True(t, IsText(nil))
	assert.False(t, IsText([]byte{0x7f, 'E', 'L', 'F', 0, 1}))
}

func TestFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a": "1", "d/b": "2"})
	got, err := Files(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "d/b"}, got)
}
