package kernelctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest_Kinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want RequestKind
	}{
		{"", RequestNone},
		{"all", RequestAll},
		{"ALL", RequestAll},
		{" ", RequestAll},
		{"\t  ", RequestAll},
		{"latest", RequestLatest},
		{"LaTeSt", RequestLatest},
		{"2b10", RequestPattern},
		{"2.*", RequestPattern},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			req, err := ParseRequest(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Kind())
			assert.Equal(t, tt.in, req.String())
		})
	}
}

func TestParseRequest_InvalidPattern(t *testing.T) {
	t.Parallel()
	_, err := ParseRequest("2b[")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRequest_Match(t *testing.T) {
	t.Parallel()
	local := []string{"2a01", "2b10", "3a01"}
	tests := []struct {
		name string
		req  string
		want []string
	}{
		{"empty selects nothing", "", nil},
		{"all", "all", []string{"2a01", "2b10", "3a01"}},
		{"whitespace", "   ", []string{"2a01", "2b10", "3a01"}},
		{"latest", "latest", []string{"3a01"}},
		{"pattern", "2.*", []string{"2a01", "2b10"}},
		{"literal", "2b10", []string{"2b10"}},
		{"pattern is anchored", "2b1", nil},
		{"no match", "9.*", nil},
		{"alternation", "2a01|3a01", []string{"2a01", "3a01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := ParseRequest(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Match(local))
		})
	}
}

func TestRequest_Match_Deduplicates(t *testing.T) {
	t.Parallel()
	req, err := ParseRequest("all")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, req.Match([]string{"b", "a", "b"}))
}

func TestRequest_Match_LatestEmpty(t *testing.T) {
	t.Parallel()
	req, err := ParseRequest("latest")
	require.NoError(t, err)
	assert.Empty(t, req.Match(nil))
}

func TestRequireOne(t *testing.T) {
	t.Parallel()
	req, err := ParseRequest("2.*")
	require.NoError(t, err)

	id, err := RequireOne(req, []string{"2b10"})
	require.NoError(t, err)
	assert.Equal(t, "2b10", id)

	_, err = RequireOne(req, nil)
	require.ErrorIs(t, err, ErrKernelNotFound)

	_, err = RequireOne(req, []string{"2a01", "2b10"})
	require.ErrorIs(t, err, ErrAmbiguousKernel)
	var ke *KernelError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, []string{"2a01", "2b10"}, ke.Candidates)
}

func TestParseScope(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Scope{
		"local":  ScopeLocal,
		"remote": ScopeRemote,
		"online": ScopeRemote,
		"all":    ScopeAll,
		"BOTH":   ScopeAll,
	} {
		got, err := ParseScope(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseScope("elsewhere")
	require.Error(t, err)

	assert.True(t, ScopeAll.IncludesLocal())
	assert.True(t, ScopeAll.IncludesRemote())
	assert.False(t, ScopeLocal.IncludesRemote())
	assert.False(t, ScopeRemote.IncludesLocal())
}
