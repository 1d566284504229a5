package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/exp/mmap"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestReadFileContentWithModeParity(t *testing.T) {
	want := "hello mmap parity"
	path := writeTemp(t, "parity.txt", want)

	for _, mode := range []string{"stream", "mmap", "auto", ""} {
		got, err := readFileContentWithMode(path, int64(len(want)+10), mode, 1)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if string(got) != want {
			t.Fatalf("unexpected %s content: %q", mode, string(got))
		}
	}
}

func TestReadFileContentWithModeAutoFallback(t *testing.T) {
	path := writeTemp(t, "fallback.txt", "fallback content")

	originalOpen := openMmapReader
	openMmapReader = func(string) (*mmap.ReaderAt, error) {
		return nil, errors.New("forced mmap failure")
	}
	defer func() { openMmapReader = originalOpen }()

	content, err := readFileContentWithMode(path, 1024, "auto", 1)
	if err != nil {
		t.Fatalf("auto fallback: %v", err)
	}
	if string(content) != "fallback content" {
		t.Fatalf("expected stream fallback content, got %q", string(content))
	}
}

func TestReadFileContentTooLarge(t *testing.T) {
	path := writeTemp(t, "big.bin", strings.Repeat("x", 100))
	for _, mode := range []string{"stream", "mmap", "auto"} {
		if _, err := readFileContentWithMode(path, 10, mode, 1); !errors.Is(err, errTooLarge) {
			t.Fatalf("%s: expected errTooLarge, got %v", mode, err)
		}
	}
}

func TestReadFileContentEmpty(t *testing.T) {
	path := writeTemp(t, "empty.bin", "")
	for _, mode := range []string{"stream", "mmap"} {
		content, err := readFileContentWithMode(path, 10, mode, 1)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if content == nil || len(content) != 0 {
			t.Fatalf("%s: expected empty non-nil content", mode)
		}
	}
}

func TestReadFileContentMmapNoDescriptorLeak(t *testing.T) {
	path := writeTemp(t, "leak.txt", "descriptor leak check")
	for i := 0; i < 16; i++ {
		if _, err := readFileContentWithMode(path, 1<<20, "mmap", 1); err != nil {
			t.Fatalf("mmap read failed: %v", err)
		}
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove failed (possible descriptor leak): %v", err)
	}
}

func TestClampContentMaxSize(t *testing.T) {
	if clampContentMaxSize(0) != maxContentBytes || clampContentMaxSize(maxContentBytes+1) != maxContentBytes {
		t.Fatal("expected hard cap")
	}
	if clampContentMaxSize(5) != 5 {
		t.Fatal("expected configured limit")
	}
}
