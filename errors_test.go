package kernelctl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelError_Error(t *testing.T) {
	t.Parallel()
	err := &KernelError{
		Kernel: "2b10",
		Site:   "https://example.com/kernels",
		Path:   "/tmp/repo/2b10",
		Err:    ErrKernelNotFound,
	}
	assert.Contains(t, err.Error(), "2b10")
	assert.Contains(t, err.Error(), "https://example.com/kernels")
	assert.Contains(t, err.Error(), "/tmp/repo/2b10")
	assert.Contains(t, err.Error(), "kernelctl:")
}

func TestKernelError_Candidates(t *testing.T) {
	t.Parallel()
	err := &KernelError{Kernel: "2.*", Candidates: []string{"2a01", "2b10"}, Err: ErrAmbiguousKernel}
	assert.Contains(t, err.Error(), "2a01, 2b10")
}

func TestKernelError_Unwrap(t *testing.T) {
	t.Parallel()
	err := &KernelError{Kernel: "x", Err: ErrAmbiguousKernel}
	require.ErrorIs(t, err, ErrAmbiguousKernel)
	unwrapped := errors.Unwrap(err)
	require.Error(t, unwrapped)
	assert.ErrorIs(t, unwrapped, ErrAmbiguousKernel)
}

func TestKernelError_errorsAs(t *testing.T) {
	t.Parallel()
	wrapped := &KernelError{Kernel: "foo", Candidates: []string{"a", "b"}, Err: ErrAmbiguousKernel}
	outer := fmt.Errorf("outer: %w", wrapped)

	var ke *KernelError
	require.ErrorAs(t, outer, &ke)
	assert.Equal(t, "foo", ke.Kernel)
	assert.Equal(t, []string{"a", "b"}, ke.Candidates)
	assert.ErrorIs(t, ke, ErrAmbiguousKernel)
}

func TestSiteError(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("resolve: %w", &SiteError{Site: "ftp://nowhere", Err: ErrNoProvider})
	require.ErrorIs(t, err, ErrNoProvider)
	var se *SiteError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ftp://nowhere", se.Site)
	assert.Contains(t, err.Error(), "ftp://nowhere")
}

func TestSentinelErrors_Is(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"transport", ErrTransport, ErrTransport, true},
		{"no provider", ErrNoProvider, ErrNoProvider, true},
		{"ambiguous", ErrAmbiguousKernel, ErrAmbiguousKernel, true},
		{"not found", ErrKernelNotFound, ErrKernelNotFound, true},
		{"filesystem", ErrFilesystem, ErrFilesystem, true},
		{"invalid id", ErrInvalidKernelID, ErrInvalidKernelID, true},
		{"wrapped transport", fmt.Errorf("%w: dial: %w", ErrTransport, errors.New("refused")), ErrTransport, true},
		{"wrong target", ErrTransport, ErrFilesystem, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}
