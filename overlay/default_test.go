package overlay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/kernelctl"
	"github.com/skosovsky/kernelctl/internal/fsutil"
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// newKernel builds a template with a base tree and two environments.
func newKernel(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "2.12.0")
	writeTree(t, dir, map[string]string{
		"common.mk":                          "ROOT=.\n",
		"Makefile":                           "include common.mk\n",
		"include/API.h":                      "// api v2.12\n",
		"include/main.h":                     "// main\n",
		"firmware/libccos.a":                 "lib\x00binary Default_VeX_Cortex",
		"src/init.c":                         "void init(void) {}\n",
		"=environments=/uart/src/uart.c":     "// project Default_VeX_Cortex\n",
		"=environments=/uart/include/uart.h": "#define NAME \"Default_VeX_Cortex\"\n",
		"=environments=/usb/src/usb.c":       "// usb\n",
		"=environments=/usb/img.bin":         "\x00Default_VeX_Cortex",
	})
	return dir
}

func TestDefaultLoader_Environments(t *testing.T) {
	t.Parallel()
	l := NewDefaultLoader()

	envs, err := l.Environments(newKernel(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"none", "uart", "usb"}, envs)

	bare := t.TempDir()
	envs, err = l.Environments(bare)
	require.NoError(t, err)
	assert.Equal(t, []string{"none"}, envs)
}

func TestDefaultLoader_Create_NoneReproducesBaseTree(t *testing.T) {
	t.Parallel()
	kernel := newKernel(t)
	project := filepath.Join(t.TempDir(), "robot")
	l := NewDefaultLoader()

	report, err := l.Create(context.Background(), kernel, project, nil, CreateOptions{})
	require.NoError(t, err)

	want := []string{"Makefile", "common.mk", "firmware/libccos.a", "include/API.h", "include/main.h", "src/init.c"}
	got, err := fsutil.Files(project)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, got)
	assert.Equal(t, want, report.Written)
	assert.Empty(t, report.Environments)
	assert.NoDirExists(t, filepath.Join(project, "=environments="))
	assert.True(t, l.Upgradeable(project))
}

func TestDefaultLoader_Create_AppliesEnvironments(t *testing.T) {
	t.Parallel()
	kernel := newKernel(t)
	project := filepath.Join(t.TempDir(), "robot")
	l := NewDefaultLoader()

	report, err := l.Create(context.Background(), kernel, project, []string{"uart", "usb", "wifi", "none"}, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"uart", "usb"}, report.Environments)
	assert.Equal(t, []string{"wifi"}, report.Skipped)

	assert.Equal(t, "// project robot\n", readFile(t, filepath.Join(project, "src", "uart.c")))
	assert.Equal(t, "#define NAME \"robot\"\n", readFile(t, filepath.Join(project, "include", "uart.h")))
	// Binary files are copied verbatim.
	assert.Equal(t, "\x00Default_VeX_Cortex", readFile(t, filepath.Join(project, "img.bin")))
}

func TestDefaultLoader_Create_ExistingProject(t *testing.T) {
	t.Parallel()
	kernel := newKernel(t)
	project := t.TempDir()
	writeTree(t, project, map[string]string{"old.txt": "old"})
	l := NewDefaultLoader()

	_, err := l.Create(context.Background(), kernel, project, nil, CreateOptions{})
	require.ErrorIs(t, err, kernelctl.ErrProjectExists)
	assert.FileExists(t, filepath.Join(project, "old.txt"))

	_, err = l.Create(context.Background(), kernel, project, nil, CreateOptions{Force: true})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(project, "old.txt"))
	assert.FileExists(t, filepath.Join(project, "common.mk"))
}

func TestDefaultLoader_Create_ForceKeepsKernel(t *testing.T) {
	t.Parallel()
	kernel := newKernel(t)
	l := NewDefaultLoader()

	for _, project := range []string{kernel, filepath.Dir(kernel)} {
		_, err := l.Create(context.Background(), kernel, project, nil, CreateOptions{Force: true})
		require.ErrorIs(t, err, kernelctl.ErrFilesystem)
		assert.FileExists(t, filepath.Join(kernel, "common.mk"))
	}

	sibling := filepath.Join(filepath.Dir(kernel), "2.12.0-project")
	writeTree(t, sibling, map[string]string{"old.txt": "old"})
	_, err := l.Create(context.Background(), kernel, sibling, nil, CreateOptions{Force: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(sibling, "common.mk"))
}

func TestDefaultLoader_Create_MissingTemplate(t *testing.T) {
	t.Parallel()
	_, err := NewDefaultLoader().Create(context.Background(), filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "p"), nil, CreateOptions{})
	require.ErrorIs(t, err, kernelctl.ErrFilesystem)
}

func TestDefaultLoader_Create_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDefaultLoader().Create(ctx, newKernel(t), filepath.Join(t.TempDir(), "p"), nil, CreateOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultLoader_Upgrade_OnlyUpgradeFiles(t *testing.T) {
	t.Parallel()
	kernel := newKernel(t)
	project := filepath.Join(t.TempDir(), "robot")
	l := NewDefaultLoader()
	ctx := context.Background()

	_, err := l.Create(ctx, kernel, project, nil, CreateOptions{})
	require.NoError(t, err)
	writeTree(t, project, map[string]string{"src/init.c": "user code\n", "include/API.h": "stale\n"})
	writeTree(t, kernel, map[string]string{"firmware/new.ld": "SECTIONS {}\n"})

	report, err := l.Upgrade(ctx, kernel, project, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"firmware/new.ld", "include/API.h"}, report.Written)
	assert.Equal(t, []string{"common.mk", "firmware/libccos.a"}, report.Unchanged)
	assert.Equal(t, "user code\n", readFile(t, filepath.Join(project, "src", "init.c")))
	assert.Equal(t, "// api v2.12\n", readFile(t, filepath.Join(project, "include", "API.h")))
}

func TestDefaultLoader_Upgrade_Idempotent(t *testing.T) {
	t.Parallel()
	kernel := newKernel(t)
	project := filepath.Join(t.TempDir(), "robot")
	l := NewDefaultLoader()
	ctx := context.Background()

	_, err := l.Create(ctx, kernel, project, []string{"uart"}, CreateOptions{})
	require.NoError(t, err)

	first, err := l.Upgrade(ctx, kernel, project, []string{"uart"})
	require.NoError(t, err)
	second, err := l.Upgrade(ctx, kernel, project, []string{"uart"})
	require.NoError(t, err)
	assert.Empty(t, first.Written)
	assert.Empty(t, second.Written)
	assert.Equal(t, first.Unchanged, second.Unchanged)
}

func TestDefaultLoader_Upgrade_InfersEnvironments(t *testing.T) {
	t.Parallel()
	kernel := newKernel(t)
	project := filepath.Join(t.TempDir(), "robot")
	l := NewDefaultLoader()
	ctx := context.Background()

	_, err := l.Create(ctx, kernel, project, []string{"uart"}, CreateOptions{})
	require.NoError(t, err)
	writeTree(t, kernel, map[string]string{"=environments=/uart/src/uart.c": "// v2 Default_VeX_Cortex\n"})

	report, err := l.Upgrade(ctx, kernel, project, []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"uart"}, report.Environments)
	assert.Equal(t, "// v2 robot\n", readFile(t, filepath.Join(project, "src", "uart.c")))
	assert.NoFileExists(t, filepath.Join(project, "src", "usb.c"))

	// nil applies no environment at all.
	writeTree(t, kernel, map[string]string{"=environments=/uart/src/uart.c": "// v3\n"})
	report, err = l.Upgrade(ctx, kernel, project, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Environments)
	assert.Equal(t, "// v2 robot\n", readFile(t, filepath.Join(project, "src", "uart.c")))
}

func TestDefaultLoader_Upgradeable(t *testing.T) {
	t.Parallel()
	l := NewDefaultLoader()
	project := t.TempDir()
	assert.False(t, l.Upgradeable(project))

	require.NoError(t, os.Mkdir(filepath.Join(project, "common.mk"), 0o755))
	assert.False(t, l.Upgradeable(project), "a directory is not the marker")

	custom := NewDefaultLoader(WithMarker("project.pros"))
	writeTree(t, project, map[string]string{"project.pros": "{}"})
	assert.True(t, custom.Upgradeable(project))
}

func TestDefaultLoader_Options(t *testing.T) {
	t.Parallel()
	kernel := filepath.Join(t.TempDir(), "3.0.0")
	writeTree(t, kernel, map[string]string{
		"project.pros":             "{}\n",
		"lib/kernel.a":             "k",
		"@envs@/cortex/main.cpp":   "// TEMPLATE\n",
		"=environments=/x/ignored": "base file in v3",
	})
	project := filepath.Join(t.TempDir(), "bot")
	l := NewDefaultLoader(
		WithEnvironmentsDir("@envs@"),
		WithPlaceholder("TEMPLATE"),
		WithMarker("project.pros"),
		WithUpgradeFiles("lib"),
	)
	ctx := context.Background()

	envs, err := l.Environments(kernel)
	require.NoError(t, err)
	assert.Equal(t, []string{"cortex", "none"}, envs)

	_, err = l.Create(ctx, kernel, project, []string{"cortex"}, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "// bot\n", readFile(t, filepath.Join(project, "main.cpp")))
	assert.FileExists(t, filepath.Join(project, "=environments=", "x", "ignored"))
	assert.True(t, l.Upgradeable(project))

	report, err := l.Upgrade(ctx, kernel, project, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/kernel.a"}, report.Unchanged)
}
