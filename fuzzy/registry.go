package fuzzy

import (
	"sort"
	"strings"

	"filesentry/logger"
)

// Hasher defines a fuzzy hashing implementation.
type Hasher interface {
	Name() string
	Hash(content []byte) (string, error)
}

var registry = map[string]Hasher{}

// Register adds a fuzzy hasher to the registry.
func Register(hasher Hasher) {
	if hasher == nil {
		return
	}
	registry[strings.ToLower(hasher.Name())] = hasher
}

// Lookup returns a registered hasher by name.
func Lookup(name string) (Hasher, bool) {
	hasher, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return hasher, ok
}

// Available returns the names of registered hashers, sorted.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute runs every named hasher over content. Hashers that cannot digest
// the content, usually because it is too short, are left out of the result.
func Compute(content []byte, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		h, ok := Lookup(name)
		if !ok {
			logger.Warnf("Unsupported fuzzy hash: %s", name)
			continue
		}
		digest, err := h.Hash(content)
		if err != nil {
			logger.Debugf("Fuzzy hash %s skipped: %v", h.Name(), err)
			continue
		}
		out[h.Name()] = digest
	}
	return out
}
