package updatesite

import (
	"bufio"
	"bytes"
	"context"
	"slices"
	"strings"

	"github.com/skosovsky/kernelctl"
)

// Provider serves kernels from update sites of one transport.
//
// ListKernels returns an empty list (not an error) when the site advertises nothing.
// Wrap connectivity failures in kernelctl.ErrTransport so callers can fall back to local data.
// LatestKernel returns kernelctl.ErrNoLatestPointer when the site designates no latest kernel;
// callers then use the lexicographic maximum of ListKernels.
// FetchKernel replaces {repoRoot}/{id} with the site's copy. It is not transactional.
type Provider interface {
	Name() string
	CanHandle(ctx context.Context, site string) bool
	ListKernels(ctx context.Context, site string) ([]string, error)
	LatestKernel(ctx context.Context, site string) (string, error)
	FetchKernel(ctx context.Context, site, id, repoRoot string) error
}

// ShorthandClaimer is optional. Providers implementing it recognize non-URI site strings
// (e.g. "git clone <url>") and return the site they stand for.
type ShorthandClaimer interface {
	ClaimShorthand(s string) (site string, ok bool)
}

// ParseKernelList parses a newline-delimited kernel listing. Blank lines and lines starting
// with '#' are ignored; surrounding whitespace is trimmed; duplicates are dropped.
// Entries that are not valid kernel identifiers are returned in rejected.
func ParseKernelList(data []byte) (ids, rejected []string) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	seen := make(map[string]struct{})
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := kernelctl.ValidateKernelID(line); err != nil {
			rejected = append(rejected, line)
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		ids = append(ids, line)
	}
	slices.Sort(ids)
	return ids, rejected
}

// LatestOrMax asks p for the site's latest pointer and falls back to the lexicographic maximum
// of the listing when the site publishes none. It returns "" with no error for an empty site.
func LatestOrMax(ctx context.Context, p Provider, site string) (string, error) {
	latest, err := p.LatestKernel(ctx, site)
	if err == nil {
		return latest, nil
	}
	if !isNoLatest(err) {
		return "", err
	}
	ids, err := p.ListKernels(ctx, site)
	if err != nil {
		return "", err
	}
	return kernelctl.Latest(ids), nil
}
