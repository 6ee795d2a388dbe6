// Package tagset implements the label set attached to transactions and tag rules.
// On disk a set is stored as its labels joined by Separator.
package tagset

import (
	"sort"
	"strings"
)

// Separator joins labels in the serialized form.
const Separator = "|"

// Set is an unordered set of labels.
type Set map[string]struct{}

// New builds a set from the given labels, ignoring blanks.
func New(labels ...string) Set {
	s := make(Set, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		s[l] = struct{}{}
	}
	return s
}

// Parse splits a serialized set such as "food|uber".
func Parse(s string) Set {
	return New(strings.Split(s, Separator)...)
}

// Contains reports whether label is in the set.
func (s Set) Contains(label string) bool {
	_, ok := s[label]
	return ok
}

// Intersects reports whether both sets share at least one label.
func (s Set) Intersects(other Set) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for l := range small {
		if large.Contains(l) {
			return true
		}
	}
	return false
}

// Equal reports whether both sets hold the same labels.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for l := range s {
		if !other.Contains(l) {
			return false
		}
	}
	return true
}

// Slice returns the labels in lexical order.
func (s Set) Slice() []string {
	labels := make([]string, 0, len(s))
	for l := range s {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// String serializes the set, sorted so the output is stable.
func (s Set) String() string {
	return strings.Join(s.Slice(), Separator)
}
