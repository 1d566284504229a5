package mimetypes

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Unknown is the MIME type assigned to anything that cannot be identified.
// It never equals a real MIME type and is never whitelisted.
const Unknown = "__unknown"

var ErrInvalidMapping = errors.New("invalid mime mapping")

type Mapping struct {
	MIME       string
	Extensions []string
}

// Mapper is a read-only bidirectional lookup between filename extensions
// and MIME types. The order of the mappings it was built from is kept and
// exposed through KnownMIMEs.
type Mapper struct {
	order  []string
	byExt  map[string]string
	byMIME map[string][]string
}

func NewMapper(mappings []Mapping) (*Mapper, error) {
	m := &Mapper{
		order:  make([]string, 0, len(mappings)),
		byExt:  make(map[string]string),
		byMIME: make(map[string][]string, len(mappings)),
	}
	for _, mapping := range mappings {
		mime := normalizeMIME(mapping.MIME)
		if mime == "" || mime == Unknown {
			return nil, fmt.Errorf("%w: empty mime type", ErrInvalidMapping)
		}
		if _, dup := m.byMIME[mime]; dup {
			return nil, fmt.Errorf("%w: duplicate mime type %s", ErrInvalidMapping, mime)
		}
		exts := make([]string, 0, len(mapping.Extensions))
		for _, ext := range mapping.Extensions {
			ext = normalizeExtension(ext)
			if ext == "" {
				return nil, fmt.Errorf("%w: empty extension for %s", ErrInvalidMapping, mime)
			}
			if owner, taken := m.byExt[ext]; taken {
				return nil, fmt.Errorf("%w: extension %q mapped to both %s and %s", ErrInvalidMapping, ext, owner, mime)
			}
			m.byExt[ext] = mime
			exts = append(exts, ext)
		}
		m.order = append(m.order, mime)
		m.byMIME[mime] = exts
	}
	if len(m.order) == 0 {
		return nil, fmt.Errorf("%w: no mappings", ErrInvalidMapping)
	}
	return m, nil
}

var (
	defaultMapper     *Mapper
	defaultMapperOnce sync.Once
)

// Default returns the built-in mapper. It is constructed once and shared.
func Default() *Mapper {
	defaultMapperOnce.Do(func() {
		m, err := NewMapper(builtinMappings)
		if err != nil {
			panic(fmt.Sprintf("mimetypes: built-in mappings: %v", err))
		}
		defaultMapper = m
	})
	return defaultMapper
}

// ExtensionToMime maps an extension (with or without the leading dot, any
// case) to its MIME type, or Unknown.
func (m *Mapper) ExtensionToMime(ext string) string {
	ext = normalizeExtension(ext)
	if ext == "" {
		return Unknown
	}
	if mime, ok := m.byExt[ext]; ok {
		return mime
	}
	return Unknown
}

func (m *Mapper) MimeToExtensions(mime string) []string {
	exts := m.byMIME[normalizeMIME(mime)]
	out := make([]string, len(exts))
	copy(out, exts)
	return out
}

func (m *Mapper) IsKnown(mime string) bool {
	_, ok := m.byMIME[normalizeMIME(mime)]
	return ok
}

// KnownMIMEs returns every MIME type in mapping order.
func (m *Mapper) KnownMIMEs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Mapper) Len() int { return len(m.order) }

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	return strings.TrimPrefix(ext, ".")
}

func normalizeMIME(mime string) string {
	return strings.ToLower(strings.TrimSpace(mime))
}
