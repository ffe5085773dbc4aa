package workflow

import (
	"fmt"
	"maps"
	"slices"
)

// Merge copies every key of partial into s, overwriting existing keys.
func (s State) Merge(partial State) {
	maps.Copy(s, partial)
}

// Keys returns the state's keys sorted.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// Clone returns a shallow copy of s.
func (s State) Clone() State {
	return maps.Clone(s)
}

// Get returns the value under key as a T.
func Get[T any](s State, key string) (T, error) {
	var zero T
	v, ok := s[key]
	if !ok {
		return zero, fmt.Errorf("state has no %q", key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("state %q is %T, want %T", key, v, zero)
	}
	return t, nil
}
