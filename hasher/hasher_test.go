package hasher

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"filesentry/logger"
)

func init() {
	logger.Init("error")
}

func TestCompute(t *testing.T) {
	hashes := Compute([]byte("hello world"), []string{"md5", "SHA1", "sha256", "sha256", "unknown"})
	if hashes["md5"] != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 mismatch: %s", hashes["md5"])
	}
	if hashes["sha1"] != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("sha1 mismatch: %s", hashes["sha1"])
	}
	if hashes["sha256"] != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("sha256 mismatch: %s", hashes["sha256"])
	}
	if _, ok := hashes["unknown"]; ok {
		t.Errorf("unexpected hash for unknown algorithm")
	}
	if len(hashes) != 3 {
		t.Errorf("expected 3 hashes, got %d", len(hashes))
	}
}

func TestComputeFastHashes(t *testing.T) {
	hashes := Compute([]byte("hello world"), []string{"xxh64", "blake3"})
	if len(hashes["xxh64"]) != 16 {
		t.Errorf("xxh64 should be 8 bytes hex, got %q", hashes["xxh64"])
	}
	if len(hashes["blake3"]) != 64 {
		t.Errorf("blake3 should be 32 bytes hex, got %q", hashes["blake3"])
	}
	again := Compute([]byte("hello world"), []string{"xxh64", "blake3"})
	if again["xxh64"] != hashes["xxh64"] || again["blake3"] != hashes["blake3"] {
		t.Error("hashes must be deterministic")
	}
	other := Compute([]byte("hello world!"), []string{"xxh64"})
	if other["xxh64"] == hashes["xxh64"] {
		t.Error("different content must produce a different xxh64")
	}
}

func TestComputeReaderLargeContent(t *testing.T) {
	content := bytes.Repeat([]byte("a"), hashLargeBufferThreshold+1)
	fromBytes := Compute(content, []string{"sha256"})
	fromReader := computeReader(bytes.NewReader(content), -1, []string{"sha256"}, "large")
	if fromBytes["sha256"] != fromReader["sha256"] {
		t.Fatal("buffer class must not change the digest")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestComputeReaderError(t *testing.T) {
	hashes := computeReader(io.MultiReader(strings.NewReader("x"), failingReader{}), 1, []string{"md5"}, "broken")
	if len(hashes) != 0 {
		t.Fatalf("expected no hashes after read error, got %v", hashes)
	}
}

func TestSupported(t *testing.T) {
	names := Supported()
	want := []string{"blake3", "md5", "sha1", "sha256", "xxh64"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected algorithms: %v", names)
	}
	if !IsSupported(" XXH64 ") || IsSupported("crc32") {
		t.Fatal("IsSupported mismatch")
	}
}
