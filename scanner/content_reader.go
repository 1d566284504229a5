package scanner

import (
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/exp/mmap"
)

// maxContentBytes is the hard cap on what is loaded for inspection, applied
// even when no max file size is configured.
const maxContentBytes int64 = 256 * 1024 * 1024

const streamChunkSize = 256 * 1024

var errTooLarge = errors.New("file exceeds size limit")

var openMmapReader = mmap.Open

func readFileContentWithMode(path string, maxSize int64, mode string, mmapMinSize int64) ([]byte, error) {
	maxSize = clampContentMaxSize(maxSize)
	if mmapMinSize <= 0 {
		mmapMinSize = 128 * 1024
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	switch mode {
	case "stream":
		return readFileContentStream(path, maxSize)
	case "mmap":
		return readFileContentMmap(path, maxSize)
	default:
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > maxSize {
			return nil, errTooLarge
		}
		if info.Size() >= mmapMinSize {
			content, err := readFileContentMmap(path, maxSize)
			if err == nil {
				return content, nil
			}
		}
		return readFileContentStream(path, maxSize)
	}
}

func readFileContentMmap(path string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, errTooLarge
	}

	r, err := openMmapReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	readSize := int64(r.Len())
	if readSize <= 0 {
		return []byte{}, nil
	}
	buf := make([]byte, readSize)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

func readFileContentStream(path string, maxSize int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var content []byte
	if stat, err := file.Stat(); err == nil {
		if stat.Size() > maxSize {
			return nil, errTooLarge
		}
		content = make([]byte, 0, stat.Size())
	}
	return readContentChunks(file, content, maxSize)
}

// readContentChunks reads until EOF. Growth past maxSize means the file
// changed under us and is rejected rather than silently truncated.
func readContentChunks(r io.Reader, content []byte, maxSize int64) ([]byte, error) {
	buffer := make([]byte, streamChunkSize)
	var total int64
	for {
		n, err := r.Read(buffer)
		if n > 0 {
			total += int64(n)
			if total > maxSize {
				return nil, errTooLarge
			}
			content = append(content, buffer[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	if content == nil {
		content = []byte{}
	}
	return content, nil
}

func clampContentMaxSize(maxSize int64) int64 {
	if maxSize <= 0 || maxSize > maxContentBytes {
		return maxContentBytes
	}
	return maxSize
}
