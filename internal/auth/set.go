package auth

import (
	"slices"
	"strings"
)

// Set is an immutable, sorted collection of distinct names.
type Set struct {
	items []string
}

// NewSet builds a set from values, dropping blanks and duplicates.
func NewSet(values ...string) Set {
	items := dedupeStrings(values)
	slices.Sort(items)
	return Set{items: items}
}

// Has reports whether name is a member. Matching is case-sensitive.
func (s Set) Has(name string) bool {
	_, ok := slices.BinarySearch(s.items, name)
	return ok
}

// Intersects reports whether any of names is a member.
func (s Set) Intersects(names ...string) bool {
	for _, n := range names {
		if s.Has(n) {
			return true
		}
	}
	return false
}

// Len returns the number of members.
func (s Set) Len() int { return len(s.items) }

// Values returns a sorted copy of the members.
func (s Set) Values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

func (s Set) String() string {
	return "{" + strings.Join(s.items, ",") + "}"
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
