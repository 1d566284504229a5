package signatures

import (
	"bytes"

	"filesentry/mimetypes"
)

// Match identifies content by magic bytes alone. Entries are tried in
// registry order; within an entry the variants are tried in order. A start
// prefix that matches without any full variant is not a match. Buffers
// shorter than a variant simply fail that variant.
func (r *Registry) Match(content []byte) string {
	if len(content) == 0 {
		return mimetypes.Unknown
	}
	for i := range r.entries {
		e := &r.entries[i]
		if !bytes.HasPrefix(content, e.Start) {
			continue
		}
		for _, v := range e.Variants {
			if len(content) < v.Length {
				continue
			}
			if bytes.Equal(content[:v.Length], v.Bytes) {
				return e.MIME
			}
		}
	}
	return mimetypes.Unknown
}

// MaxLength is the longest variant in the registry, i.e. the number of
// leading bytes Match can ever look at.
func (r *Registry) MaxLength() int {
	longest := 0
	for _, e := range r.entries {
		for _, v := range e.Variants {
			if v.Length > longest {
				longest = v.Length
			}
		}
	}
	return longest
}
