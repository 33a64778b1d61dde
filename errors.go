package kernelctl

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for kernel resolution, update site and overlay operations.
// All use prefix "kernelctl:" for identification. Callers should use errors.Is/errors.As.
var (
	// ErrTransport indicates the update site was unreachable or answered with a malformed response.
	// Recoverable by falling back to local-only resolution where applicable.
	ErrTransport = errors.New("kernelctl: update site transport failed")
	// ErrNoProvider indicates no registered provider can handle the site identifier.
	ErrNoProvider = errors.New("kernelctl: no update site provider can handle site")
	// ErrAmbiguousKernel indicates a request matched several kernels where exactly one was required.
	ErrAmbiguousKernel = errors.New("kernelctl: kernel request is ambiguous")
	// ErrKernelNotFound indicates a request matched no kernel.
	ErrKernelNotFound = errors.New("kernelctl: kernel not found")
	// ErrFilesystem indicates a copy, delete or extract failure. The operation may be partially applied.
	ErrFilesystem = errors.New("kernelctl: filesystem operation failed")
	// ErrInvalidKernelID indicates an identifier that cannot name a kernel directory.
	ErrInvalidKernelID = errors.New("kernelctl: invalid kernel identifier")
	// ErrInvalidRequest indicates a kernel request that is not a valid regular expression.
	ErrInvalidRequest = errors.New("kernelctl: invalid kernel request")
	// ErrNoLatestPointer indicates the site does not publish a latest kernel pointer.
	// Callers fall back to the lexicographic maximum of the listing.
	ErrNoLatestPointer = errors.New("kernelctl: update site publishes no latest kernel")
	// ErrProjectExists indicates create was asked to write into an existing path without force.
	ErrProjectExists = errors.New("kernelctl: project already exists")
	// ErrNotUpgradeable indicates the project lacks the kernel's upgrade marker.
	ErrNotUpgradeable = errors.New("kernelctl: project is not upgradeable")
	// ErrUnknownEnvironment indicates an environment the kernel does not declare.
	ErrUnknownEnvironment = errors.New("kernelctl: unknown environment")
)

// KernelError wraps a sentinel error with kernel, site and path context.
// Use errors.Is(err, ErrAmbiguousKernel) and errors.As(err, &kernelErr) to inspect Candidates.
type KernelError struct {
	Kernel     string
	Site       string
	Path       string
	Candidates []string
	Err        error
}

// Error implements error.
func (e *KernelError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kernelctl: kernel %q", e.Kernel)
	if e.Site != "" {
		fmt.Fprintf(&b, " from site %q", e.Site)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (candidates: %s)", strings.Join(e.Candidates, ", "))
	}
	return b.String()
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *KernelError) Unwrap() error { return e.Err }

// SiteError wraps a sentinel error with the update site it concerns.
type SiteError struct {
	Site string
	Err  error
}

// Error implements error.
func (e *SiteError) Error() string {
	return fmt.Sprintf("kernelctl: site %q: %v", e.Site, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *SiteError) Unwrap() error { return e.Err }

// Compile-time checks that the context types implement error.
var (
	_ error = (*KernelError)(nil)
	_ error = (*SiteError)(nil)
)
