package signatures

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"filesentry/mimetypes"
)

var ErrInvalidEntry = errors.New("invalid signature entry")

// Signature is one exact-match variant: the first Length bytes of a buffer
// must equal Bytes.
type Signature struct {
	Bytes  []byte
	Length int
}

// Entry describes how content of one MIME type starts. Start is a cheap
// gate checked before any variant; it may be empty when the variants of a
// format share no common prefix.
type Entry struct {
	MIME     string
	Start    []byte
	Variants []Signature
}

// Registry is the ordered, read-only signature table. Entry order decides
// which MIME type wins when more than one entry could match.
type Registry struct {
	entries []Entry
	index   map[string]int
}

func New(entries []Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		mime := strings.ToLower(strings.TrimSpace(e.MIME))
		if mime == "" || mime == mimetypes.Unknown {
			return nil, fmt.Errorf("%w: missing mime type", ErrInvalidEntry)
		}
		if _, dup := r.index[mime]; dup {
			return nil, fmt.Errorf("%w: duplicate mime type %s", ErrInvalidEntry, mime)
		}
		if len(e.Variants) == 0 {
			return nil, fmt.Errorf("%w: %s has no signature variants", ErrInvalidEntry, mime)
		}
		entry := Entry{
			MIME:     mime,
			Start:    cloneBytes(e.Start),
			Variants: make([]Signature, 0, len(e.Variants)),
		}
		for i, v := range e.Variants {
			if v.Length <= 0 || v.Length != len(v.Bytes) {
				return nil, fmt.Errorf("%w: %s variant %d declares length %d for %d bytes",
					ErrInvalidEntry, mime, i, v.Length, len(v.Bytes))
			}
			if !bytes.HasPrefix(v.Bytes, entry.Start) {
				return nil, fmt.Errorf("%w: %s variant %d does not begin with the start prefix", ErrInvalidEntry, mime, i)
			}
			entry.Variants = append(entry.Variants, Signature{Bytes: cloneBytes(v.Bytes), Length: v.Length})
		}
		r.index[mime] = len(r.entries)
		r.entries = append(r.entries, entry)
	}
	if len(r.entries) == 0 {
		return nil, fmt.Errorf("%w: registry is empty", ErrInvalidEntry)
	}
	return r, nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the built-in registry, built on first use.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := New(builtinEntries())
		if err != nil {
			panic(fmt.Sprintf("signatures: built-in registry: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

func (r *Registry) Len() int { return len(r.entries) }

// MIMEs lists the registry's MIME types in match order.
func (r *Registry) MIMEs() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.MIME
	}
	return out
}

// Entries returns deep copies so callers cannot mutate the table.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = Entry{MIME: e.MIME, Start: cloneBytes(e.Start), Variants: make([]Signature, len(e.Variants))}
		for j, v := range e.Variants {
			out[i].Variants[j] = Signature{Bytes: cloneBytes(v.Bytes), Length: v.Length}
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
