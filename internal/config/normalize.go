package config

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer maps free-form strings onto a closed value set, falling back to
// a default for unrecognized input. Lookup is case-insensitive and
// whitespace-tolerant.
type Normalizer[T comparable] struct {
	values       map[string]T
	defaultValue T
	keys         []string
}

// NewNormalizer builds a normalizer over valid string-to-value pairs.
func NewNormalizer[T comparable](values map[string]T, defaultValue T) *Normalizer[T] {
	cleaned := make(map[string]T, len(values))
	keys := make([]string, 0, len(values))
	for k, v := range values {
		key := canonical(k)
		cleaned[key] = v
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return &Normalizer[T]{values: cleaned, defaultValue: defaultValue, keys: keys}
}

// Normalize converts raw input, returning the default when unrecognized.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[canonical(raw)]; ok {
		return v
	}
	return n.defaultValue
}

// NormalizeWithError converts raw input, failing when unrecognized.
func (n *Normalizer[T]) NormalizeWithError(raw string) (T, error) {
	if v, ok := n.values[canonical(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %v", raw, n.keys)
}

// ValidKeys lists the accepted spellings, sorted.
func (n *Normalizer[T]) ValidKeys() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
