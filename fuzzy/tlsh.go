package fuzzy

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/glaslos/tlsh"
)

const (
	// TLSH needs at least this much input to fill its buckets.
	minTLSHInput = 50
	// Digests cover at most the first tlshWindow bytes of an upload.
	tlshWindow = 4 << 20
)

var ErrContentTooShort = errors.New("content too short for fuzzy hash")

type tlshHasher struct{}

func (tlshHasher) Name() string { return "tlsh" }

func (tlshHasher) Hash(content []byte) (string, error) {
	if len(content) < minTLSHInput {
		return "", fmt.Errorf("%w: %d bytes", ErrContentTooShort, len(content))
	}
	if len(content) > tlshWindow {
		content = content[:tlshWindow]
	}
	digest, err := tlsh.HashReader(bytes.NewReader(content))
	if err != nil {
		// Uniform content (for example a zero-filled upload) has no usable
		// bucket spread.
		return "", fmt.Errorf("tlsh: %w", err)
	}
	return digest.String(), nil
}

func init() {
	Register(tlshHasher{})
}
