package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathGuardContains(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "a", "b.txt")
	outside := filepath.Join(filepath.Dir(root), "outside.txt")

	guard := NewPathGuard([]string{root})
	if !guard.Contains(child) {
		t.Fatalf("expected %s to be within %s", child, root)
	}
	if guard.Contains(outside) {
		t.Fatalf("did not expect %s to be within %s", outside, root)
	}
}

func TestPathGuardContainsMultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	inB := filepath.Join(rootB, "nested", "file.txt")

	guard := NewPathGuard([]string{rootA, rootB})
	if !guard.Contains(inB) {
		t.Fatalf("expected guard to include path under second root")
	}
}

func TestPathGuardFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	outsideDir := t.TempDir()
	target := filepath.Join(outsideDir, "secret.txt")
	if err := os.WriteFile(target, []byte("x"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if NewPathGuard([]string{root}).Contains(link) {
		t.Fatal("symlink escaping the root must not be contained")
	}
}
