package generic

import (
	"sort"
	"strings"
)

// =============================================================================
// DIRECTORY - Closed lookup sets (customers, vessels, containers)
// =============================================================================

// Directory holds named sets of identifiers, built once per run by the
// ingestion layer and shared read-only by every pipeline. Matching is
// case-insensitive.
type Directory struct {
	sets map[string]map[string]bool
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{sets: make(map[string]map[string]bool)}
}

func normalizeMember(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// Add inserts members into a set. Empty members are ignored.
// Only call Add while building the directory.
func (d *Directory) Add(set string, members ...string) *Directory {
	s, ok := d.sets[set]
	if !ok {
		s = make(map[string]bool)
		d.sets[set] = s
	}
	for _, m := range members {
		if m = normalizeMember(m); m != "" {
			s[m] = true
		}
	}
	return d
}

// Has reports whether value belongs to set. A nil directory has no members.
func (d *Directory) Has(set, value string) bool {
	if d == nil {
		return false
	}
	return d.sets[set][normalizeMember(value)]
}

// Members returns the sorted members of set.
func (d *Directory) Members(set string) []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.sets[set]))
	for m := range d.sets[set] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Sets returns the sorted set names.
func (d *Directory) Sets() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.sets))
	for s := range d.sets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
