package fuzzy

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"filesentry/logger"
)

func init() {
	logger.Init("error")
}

func sampleText() []byte {
	var b strings.Builder
	for i := 0; i < 64; i++ {
		fmt.Fprintf(&b, "line %d of a reasonably varied document body %x\n", i, i*7919)
	}
	return []byte(b.String())
}

func TestRegistry(t *testing.T) {
	if _, ok := Lookup(" TLSH "); !ok {
		t.Fatal("tlsh should be registered")
	}
	if names := Available(); len(names) == 0 || names[0] != "tlsh" {
		t.Fatalf("unexpected hashers: %v", names)
	}
	Register(nil)
}

func TestTLSHShortContent(t *testing.T) {
	if _, err := (tlshHasher{}).Hash([]byte("short")); !errors.Is(err, ErrContentTooShort) {
		t.Fatalf("expected ErrContentTooShort, got %v", err)
	}
}

func TestCompute(t *testing.T) {
	out := Compute(sampleText(), []string{"tlsh", "ssdeep"})
	if out["tlsh"] == "" {
		t.Fatalf("expected tlsh digest, got %v", out)
	}
	if _, ok := out["ssdeep"]; ok {
		t.Fatal("unknown hasher must be skipped")
	}
	if again := Compute(sampleText(), []string{"tlsh"}); again["tlsh"] != out["tlsh"] {
		t.Fatal("tlsh digest must be deterministic")
	}
	if len(Compute([]byte("tiny"), []string{"tlsh"})) != 0 {
		t.Fatal("short content must produce no digest")
	}
}

func TestTLSHWindow(t *testing.T) {
	base := bytes.Repeat(sampleText(), tlshWindow/len(sampleText())+1)[:tlshWindow]
	long := append(append([]byte{}, base...), []byte("trailing bytes past the window")...)
	a, err := (tlshHasher{}).Hash(base)
	if err != nil {
		t.Fatalf("hash base: %v", err)
	}
	b, err := (tlshHasher{}).Hash(long)
	if err != nil {
		t.Fatalf("hash long: %v", err)
	}
	if a != b {
		t.Fatal("bytes past the window must not change the digest")
	}
}
