package kernelctl

import (
	"fmt"
	"slices"
	"strings"
)

// ValidateKernelID checks that id can name a directory inside the local repository.
// Identifiers must be non-empty, contain no path separators or colons, and must not start
// with "." (dot-directories are never kernels).
func ValidateKernelID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKernelID)
	}
	if strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidKernelID, id)
	}
	if strings.ContainsAny(id, "/\\:") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKernelID, id)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidKernelID, id)
	}
	return nil
}

// Availability is a bit set telling where a kernel is known to exist.
type Availability uint8

const (
	// AvailableLocal marks a kernel present in the local repository.
	AvailableLocal Availability = 1 << iota
	// AvailableOnline marks a kernel advertised by the update site.
	AvailableOnline
)

// Has reports whether every bit of flag is set.
func (a Availability) Has(flag Availability) bool {
	return flag != 0 && a&flag == flag
}

// String renders the set as "local", "online", "local, online" or "none".
func (a Availability) String() string {
	var parts []string
	if a.Has(AvailableLocal) {
		parts = append(parts, "local")
	}
	if a.Has(AvailableOnline) {
		parts = append(parts, "online")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// Availabilities maps kernel identifiers to their availability flags.
type Availabilities map[string]Availability

// Add ORs flag into the entry for every id.
func (m Availabilities) Add(flag Availability, ids ...string) {
	for _, id := range ids {
		m[id] |= flag
	}
}

// Kernels returns the identifiers in lexicographic order.
func (m Availabilities) Kernels() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Filter returns the subset of entries whose identifier is selected by req.
// A latest request keeps only the lexicographic maximum of the whole record.
func (m Availabilities) Filter(req Request) Availabilities {
	out := make(Availabilities)
	for _, id := range req.Match(m.Kernels()) {
		out[id] = m[id]
	}
	return out
}

// MergeAvailability unions local and remote enumerations. Every local id carries
// AvailableLocal, every remote id carries AvailableOnline, ids in both carry both.
func MergeAvailability(local, remote []string) Availabilities {
	m := make(Availabilities, len(local)+len(remote))
	m.Add(AvailableLocal, local...)
	m.Add(AvailableOnline, remote...)
	return m
}

// Latest returns the lexicographic maximum of ids, or "" when ids is empty.
func Latest(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return slices.Max(ids)
}
