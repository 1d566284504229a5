package metadata

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"filesentry/logger"
)

func init() {
	logger.Init("error")
}

// tiffWithArtist builds a little-endian TIFF whose IFD0 holds one ASCII
// Artist tag.
func tiffWithArtist(artist string) []byte {
	value := append([]byte(artist), 0)
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(1))
	binary.Write(&buf, le, uint16(0x013b))
	binary.Write(&buf, le, uint16(2))
	binary.Write(&buf, le, uint32(len(value)))
	binary.Write(&buf, le, uint32(26))
	binary.Write(&buf, le, uint32(0))
	buf.Write(value)
	return buf.Bytes()
}

func docxWithCore(t *testing.T, core string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("docProps/core.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	w.Write([]byte(core))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractNeverNil(t *testing.T) {
	cases := []string{
		"image/jpeg",
		"image/tiff",
		"application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"unknown",
	}
	for _, mime := range cases {
		for _, content := range [][]byte{nil, []byte("not really a file")} {
			meta := Extract(content, mime, 1024)
			if meta == nil {
				t.Fatalf("metadata map nil for %s", mime)
			}
			if len(meta) != 0 {
				t.Fatalf("expected no metadata for garbage %s, got %v", mime, meta)
			}
		}
	}
}

func TestExtractEXIFArtist(t *testing.T) {
	payload := "<?php system($_GET['c']); ?>"
	meta := Extract(tiffWithArtist(payload), "image/tiff", 0)
	if meta["Artist"] != payload {
		t.Fatalf("unexpected exif metadata: %v", meta)
	}
}

func TestExtractOOXMLCore(t *testing.T) {
	core := `<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
  xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>Quarterly report</dc:title>
  <dc:creator>Alice</dc:creator>
  <cp:lastModifiedBy>Bob</cp:lastModifiedBy>
</cp:coreProperties>`
	meta := Extract(docxWithCore(t, core), "application/zip", 0)
	if meta["title"] != "Quarterly report" || meta["creator"] != "Alice" || meta["last_modified_by"] != "Bob" {
		t.Fatalf("unexpected core metadata: %v", meta)
	}
	if _, ok := meta["subject"]; ok {
		t.Fatal("empty properties must be omitted")
	}
}

func TestExtractRespectsMaxBytes(t *testing.T) {
	core := `<coreProperties><title>` + strings.Repeat("x", 2048) + `</title></coreProperties>`
	if meta := Extract(docxWithCore(t, core), "application/zip", 512); len(meta) != 0 {
		t.Fatalf("expected oversized content to be skipped, got %d keys", len(meta))
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", maxValueBytes+10)
	if len(truncate(long)) != maxValueBytes {
		t.Fatal("expected truncation")
	}
	if truncate("short") != "short" {
		t.Fatal("short values must be kept")
	}
}
