package markers

import (
	"bytes"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// DefaultInjection lists the tokens that mark script or code smuggled into
// textual metadata.
var DefaultInjection = []string{
	"<?",
	"<%",
	"<script",
	"<iframe",
	"javascript:",
	"$_",
	"base64",
	"eval",
	"exec(",
	"system(",
	"passthru(",
	"shell_exec(",
	"fromcharcode",
}

// Set finds markers in content, ignoring ASCII case. Results are reported in
// marker order, not in order of appearance.
type Set interface {
	Find(content []byte) (string, bool)
	FindAll(content []byte) []string
	Terms() []string
}

const (
	autoAhoMinTerms        = 8
	autoAhoMinContentBytes = 4 * 1024
)

type naiveSet struct {
	terms     []string
	termsByte [][]byte
}

func (s naiveSet) Terms() []string { return append([]string(nil), s.terms...) }

func (s naiveSet) Find(content []byte) (string, bool) {
	lower := lowerASCII(content)
	for i, term := range s.termsByte {
		if bytes.Contains(lower, term) {
			return s.terms[i], true
		}
	}
	return "", false
}

func (s naiveSet) FindAll(content []byte) []string {
	lower := lowerASCII(content)
	var hits []string
	for i, term := range s.termsByte {
		if bytes.Contains(lower, term) {
			hits = append(hits, s.terms[i])
		}
	}
	return hits
}

type ahoSet struct {
	terms   []string
	matcher *ahocorasick.Matcher
}

func (s ahoSet) Terms() []string { return append([]string(nil), s.terms...) }

func (s ahoSet) matched(content []byte) []bool {
	hits := s.matcher.MatchThreadSafe(lowerASCII(content))
	if len(hits) == 0 {
		return nil
	}
	found := make([]bool, len(s.terms))
	for _, idx := range hits {
		if idx < 0 || idx >= len(s.terms) {
			continue
		}
		found[idx] = true
	}
	return found
}

func (s ahoSet) Find(content []byte) (string, bool) {
	for i, ok := range s.matched(content) {
		if ok {
			return s.terms[i], true
		}
	}
	return "", false
}

func (s ahoSet) FindAll(content []byte) []string {
	var hits []string
	for i, ok := range s.matched(content) {
		if ok {
			hits = append(hits, s.terms[i])
		}
	}
	return hits
}

type autoSet struct {
	naive naiveSet
	aho   ahoSet
}

func (s autoSet) Terms() []string { return s.naive.Terms() }

func (s autoSet) pick(content []byte) Set {
	if len(s.naive.terms) < autoAhoMinTerms || len(content) < autoAhoMinContentBytes {
		return s.naive
	}
	return s.aho
}

func (s autoSet) Find(content []byte) (string, bool) { return s.pick(content).Find(content) }

func (s autoSet) FindAll(content []byte) []string { return s.pick(content).FindAll(content) }

// Build returns a Set for the given markers. Markers are trimmed, lowered
// and de-duplicated; an empty input yields a Set that never matches.
func Build(terms []string) Set {
	normalized := normalizeTerms(terms)
	termBytes := make([][]byte, len(normalized))
	for i := range normalized {
		termBytes[i] = []byte(normalized[i])
	}
	naive := naiveSet{terms: normalized, termsByte: termBytes}
	if len(normalized) == 0 {
		return naive
	}
	aho := ahoSet{terms: normalized, matcher: ahocorasick.NewStringMatcher(normalized)}
	return autoSet{naive: naive, aho: aho}
}

func lowerASCII(content []byte) []byte {
	for i, b := range content {
		if b >= 'A' && b <= 'Z' {
			out := make([]byte, len(content))
			copy(out, content[:i])
			for j := i; j < len(content); j++ {
				out[j] = toASCIILower(content[j])
			}
			return out
		}
	}
	return content
}

func toASCIILower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		normalized = append(normalized, term)
	}
	return normalized
}
