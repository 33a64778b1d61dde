package kernelctl

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// RequestKind classifies a symbolic kernel request.
type RequestKind int

const (
	// RequestNone selects nothing (empty request).
	RequestNone RequestKind = iota
	// RequestAll selects every known kernel in scope ("all" or whitespace only).
	RequestAll
	// RequestLatest selects exactly one kernel: the designated or lexicographically greatest one.
	RequestLatest
	// RequestPattern selects every kernel fully matching a regular expression.
	RequestPattern
)

// String implements fmt.Stringer.
func (k RequestKind) String() string {
	switch k {
	case RequestNone:
		return "none"
	case RequestAll:
		return "all"
	case RequestLatest:
		return "latest"
	case RequestPattern:
		return "pattern"
	default:
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
}

// Request is a parsed kernel request. The zero value selects nothing.
type Request struct {
	raw  string
	kind RequestKind
	re   *regexp.Regexp
}

// ParseRequest classifies s. Rules, in order: empty selects nothing; "all" (any case) or
// whitespace only selects everything; "latest" (any case) selects the latest kernel;
// anything else is a regular expression that must match a whole identifier.
// A literal identifier is therefore a pattern matching itself.
func ParseRequest(s string) (Request, error) {
	switch {
	case s == "":
		return Request{}, nil
	case strings.EqualFold(s, "all"), strings.TrimSpace(s) == "":
		return Request{raw: s, kind: RequestAll}, nil
	case strings.EqualFold(s, "latest"):
		return Request{raw: s, kind: RequestLatest}, nil
	}
	re, err := regexp.Compile("^(?:" + s + ")$")
	if err != nil {
		return Request{}, fmt.Errorf("%w: %q: %w", ErrInvalidRequest, s, err)
	}
	return Request{raw: s, kind: RequestPattern, re: re}, nil
}

// Kind returns the request classification.
func (r Request) Kind() RequestKind { return r.kind }

// String returns the request as the user wrote it.
func (r Request) String() string { return r.raw }

// Match applies the request to candidate identifiers. The result is sorted and free of duplicates.
// For RequestLatest it holds at most one identifier.
func (r Request) Match(ids []string) []string {
	uniq := slices.Clone(ids)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)
	switch r.kind {
	case RequestAll:
		return uniq
	case RequestLatest:
		if len(uniq) == 0 {
			return nil
		}
		return []string{uniq[len(uniq)-1]}
	case RequestPattern:
		var out []string
		for _, id := range uniq {
			if r.re.MatchString(id) {
				out = append(out, id)
			}
		}
		return out
	default:
		return nil
	}
}

// RequireOne returns the single identifier in ids. Zero identifiers yield ErrKernelNotFound,
// more than one yield ErrAmbiguousKernel with the candidates attached; it never picks for the caller.
func RequireOne(req Request, ids []string) (string, error) {
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return "", &KernelError{Kernel: req.String(), Err: ErrKernelNotFound}
	default:
		return "", &KernelError{Kernel: req.String(), Candidates: slices.Clone(ids), Err: ErrAmbiguousKernel}
	}
}

// Scope selects which enumerations a resolution consults.
type Scope int

const (
	// ScopeLocal consults only the local repository. The update site is never contacted.
	ScopeLocal Scope = iota + 1
	// ScopeRemote consults only the update site listing.
	ScopeRemote
	// ScopeAll consults both and unions the results.
	ScopeAll
)

// ParseScope parses "local", "remote" (alias "online") or "all" (alias "both").
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return ScopeLocal, nil
	case "remote", "online":
		return ScopeRemote, nil
	case "all", "both", "":
		return ScopeAll, nil
	default:
		return 0, fmt.Errorf("kernelctl: unknown scope %q (expected local, remote or all)", s)
	}
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeRemote:
		return "remote"
	case ScopeAll:
		return "all"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// IncludesLocal reports whether the local repository is consulted.
func (s Scope) IncludesLocal() bool { return s == ScopeLocal || s == ScopeAll }

// IncludesRemote reports whether the update site is consulted.
func (s Scope) IncludesRemote() bool { return s == ScopeRemote || s == ScopeAll }
