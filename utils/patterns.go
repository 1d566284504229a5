package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// RegexPrefix marks a pattern as a regular expression matched against the
// full path. Anything else is a glob.
const RegexPrefix = "re:"

type pattern struct {
	glob     string
	fullPath bool
	re       *regexp.Regexp
}

func (p pattern) match(path string) bool {
	if p.re != nil {
		return p.re.MatchString(filepath.ToSlash(path))
	}
	target := filepath.Base(path)
	if p.fullPath {
		target = filepath.ToSlash(path)
	}
	matched, _ := filepath.Match(p.glob, target)
	return matched
}

// PatternMatcher decides which walked files are inspected. A file is
// included when it matches an include pattern (or none are set) and no
// exclude pattern. Globs without a slash match the base name; globs with one
// match the slash-separated path.
type PatternMatcher struct {
	include []pattern
	exclude []pattern
}

func NewPatternMatcher(includePatterns, excludePatterns []string) *PatternMatcher {
	include, _ := compilePatterns(includePatterns)
	exclude, _ := compilePatterns(excludePatterns)
	return &PatternMatcher{include: include, exclude: exclude}
}

// ValidatePatterns reports the first pattern that cannot be compiled.
func ValidatePatterns(patterns []string) error {
	_, err := compilePatterns(patterns)
	return err
}

func (m *PatternMatcher) ShouldInclude(path string) bool {
	if m == nil {
		return true
	}
	if len(m.include) > 0 && !matchAny(m.include, path) {
		return false
	}
	return !matchAny(m.exclude, path)
}

func matchAny(patterns []pattern, path string) bool {
	for _, p := range patterns {
		if p.match(path) {
			return true
		}
	}
	return false
}

// compilePatterns skips invalid patterns and returns the first error seen.
func compilePatterns(raw []string) ([]pattern, error) {
	var firstErr error
	compiled := make([]pattern, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if expr, ok := strings.CutPrefix(item, RegexPrefix); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("invalid pattern %q: %w", item, err)
				}
				continue
			}
			compiled = append(compiled, pattern{re: re})
			continue
		}
		if _, err := filepath.Match(item, ""); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid pattern %q: %w", item, err)
			}
			continue
		}
		compiled = append(compiled, pattern{glob: item, fullPath: strings.Contains(item, "/")})
	}
	return compiled, firstErr
}
