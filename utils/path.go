package utils

import (
	"path/filepath"
	"strings"
)

// PathGuard answers whether paths resolve inside a fixed set of roots.
// Roots are resolved once at construction.
type PathGuard struct {
	roots []string
}

func NewPathGuard(roots []string) *PathGuard {
	g := &PathGuard{roots: make([]string, 0, len(roots))}
	for _, root := range roots {
		if abs, ok := resolve(root); ok {
			g.roots = append(g.roots, abs)
		}
	}
	return g
}

// Contains reports whether path, after following symlinks, lies under one
// of the guard's roots.
func (g *PathGuard) Contains(path string) bool {
	absPath, ok := resolve(path)
	if !ok {
		return false
	}
	for _, absRoot := range g.roots {
		rel, err := filepath.Rel(absRoot, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func resolve(path string) (string, bool) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", false
	}
	return abs, true
}
