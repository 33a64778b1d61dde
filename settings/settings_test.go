package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cli.settings")
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	assert.Empty(t, s.UpdateSite())
	assert.Empty(t, s.LocalRepositoryPath())
	assert.Equal(t, SuggestedUpdateSite, s.SuggestUpdateSite())
}

func TestLoad_JSONWithComments(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cli.settings")
	content := `{
  // written by an older client
  "updateSite": "https://example.com/kernels",
  "kernelDirectory": "/opt/kernels",
  "unrelated": true,
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/kernels", s.UpdateSite())
	assert.Equal(t, "/opt/kernels", s.LocalRepositoryPath())
}

func TestLoad_Malformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cli.settings")
	require.NoError(t, os.WriteFile(path, []byte(`{"updateSite": `), 0o600))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_NullRecord(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cli.settings")
	require.NoError(t, os.WriteFile(path, []byte("null\n"), 0o600))
	s, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, s.UpdateSite())
	s.SetUpdateSite("https://kernels.example.com")
	require.NoError(t, s.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"updateSite": "https://kernels.example.com"`)
}

func TestStore_SaveRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cli.settings")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(`{"unrelated": "kept"}`), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	s.SetUpdateSite("  git clone https://example.com/k.git ")
	require.NoError(t, s.SetLocalRepositoryPath(filepath.Join(dir, "kernels")))
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "git clone https://example.com/k.git", record[KeyUpdateSite])
	assert.Equal(t, filepath.Join(dir, "kernels"), record[KeyKernelDirectory])
	assert.Equal(t, "kept", record["unrelated"])

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "git clone https://example.com/k.git", again.UpdateSite())
}

func TestStore_SaveCreatesParents(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "a", "b", "cli.settings")
	s, err := Load(path)
	require.NoError(t, err)
	s.SetUpdateSite("https://example.com")
	require.NoError(t, s.Save())
	assert.FileExists(t, path)
}

func TestStore_SaveRefusesDirectory(t *testing.T) {
	t.Parallel()
	path := t.TempDir()
	s, err := Load(filepath.Join(path, "missing"))
	require.NoError(t, err)
	s.path = path
	require.ErrorIs(t, s.Save(), ErrInvalid)
}

func TestStore_EnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.settings")
	require.NoError(t, os.WriteFile(path, []byte(`{"updateSite": "https://file.example"}`), 0o600))
	t.Setenv("KERNELCTL_UPDATE_SITE", "https://env.example")
	t.Setenv("KERNELCTL_KERNEL_DIRECTORY", "/env/kernels")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", s.UpdateSite())
	assert.Equal(t, "/env/kernels", s.LocalRepositoryPath())

	require.NoError(t, s.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://file.example")
	assert.NotContains(t, string(data), "env.example")
}

func TestAbsolute(t *testing.T) {
	t.Parallel()
	home, err := homedir.Dir()
	require.NoError(t, err)

	got, err := Absolute("~/kernels")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "kernels"), got)

	got, err = Absolute("relative/dir")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	_, err = Absolute(" ")
	require.Error(t, err)
}

func TestSuggestLocalRepositoryPath(t *testing.T) {
	t.Parallel()
	s, err := Load(filepath.Join(t.TempDir(), "cli.settings"))
	require.NoError(t, err)
	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".pros", "kernels"), s.SuggestLocalRepositoryPath())
}
