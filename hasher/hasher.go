package hasher

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"

	"filesentry/logger"
)

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

var constructors = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"xxh64":  func() hash.Hash { return xxhash.New() },
	"blake3": func() hash.Hash { return blake3.New(32, nil) },
}

// Supported returns the accepted algorithm names, sorted.
func Supported() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether algo names a known algorithm.
func IsSupported(algo string) bool {
	_, ok := constructors[strings.ToLower(strings.TrimSpace(algo))]
	return ok
}

// Compute fingerprints content with every requested algorithm. Unknown
// names are logged and skipped; duplicates are hashed once.
func Compute(content []byte, algorithms []string) map[string]string {
	return computeReader(bytes.NewReader(content), int64(len(content)), algorithms, "")
}

// computeReader streams r through every hasher. size picks the buffer class
// and may be -1 when unknown; label only appears in log lines.
func computeReader(r io.Reader, size int64, algorithms []string, label string) map[string]string {
	hashes := make(map[string]string, len(algorithms))

	type hasherEntry struct {
		name string
		h    hash.Hash
	}
	hashers := make([]hasherEntry, 0, len(algorithms))
	seen := make(map[string]struct{}, len(algorithms))
	for _, algo := range algorithms {
		algo = strings.ToLower(strings.TrimSpace(algo))
		if _, ok := seen[algo]; ok {
			continue
		}
		newHash, ok := constructors[algo]
		if !ok {
			logger.Warnf("Unsupported hash algorithm: %s", algo)
			continue
		}
		seen[algo] = struct{}{}
		hashers = append(hashers, hasherEntry{name: algo, h: newHash()})
	}
	if len(hashers) == 0 {
		return hashes
	}

	bufferPool := &hashBufferSmallPool
	if size >= hashLargeBufferThreshold {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	buffer := *bufferPtr
	for {
		n, readErr := r.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			for i := range hashers {
				if _, err := hashers[i].h.Write(chunk); err != nil {
					logger.Warnf("Failed to update hash %s for %s: %v", hashers[i].name, label, err)
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				logger.Warnf("Failed to compute hashes for %s: %v", label, readErr)
				bufferPool.Put(bufferPtr)
				return hashes
			}
			break
		}
	}
	bufferPool.Put(bufferPtr)

	for i := range hashers {
		hashes[hashers[i].name] = hex.EncodeToString(hashers[i].h.Sum(nil))
	}
	return hashes
}
