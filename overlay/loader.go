package overlay

import (
	"context"
	"slices"
)

// None is the pseudo-environment that every kernel declares and that adds nothing.
const None = "none"

// Loader applies a kernel template to a project directory.
type Loader interface {
	Create(ctx context.Context, kernelDir, projectDir string, envs []string, opts CreateOptions) (*Report, error)
	Upgrade(ctx context.Context, kernelDir, projectDir string, envs []string) (*Report, error)
	Environments(kernelDir string) ([]string, error)
	Upgradeable(projectDir string) bool
}

// CreateOptions configures Loader.Create.
type CreateOptions struct {
	// Force removes an existing project directory before copying.
	Force bool
}

// Report describes what a Create or Upgrade changed. Paths are slash-separated and
// relative to the project directory.
type Report struct {
	Written   []string
	Unchanged []string
	// Skipped lists requested environments the kernel does not declare.
	Skipped []string
	// Environments lists the overlays that were applied, "none" excluded.
	Environments []string
}

func (r *Report) normalize() {
	slices.Sort(r.Written)
	r.Written = slices.Compact(r.Written)
	slices.Sort(r.Unchanged)
	r.Unchanged = slices.Compact(r.Unchanged)
	// A path rewritten by an overlay after the base copy is reported once, as written.
	r.Unchanged = slices.DeleteFunc(r.Unchanged, func(p string) bool {
		_, found := slices.BinarySearch(r.Written, p)
		return found
	})
}
