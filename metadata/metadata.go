package metadata

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"maps"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"

	"filesentry/logger"
)

// maxValueBytes caps a single extracted value so a huge binary tag cannot
// bloat the record.
const maxValueBytes = 4096

func init() {
	exif.RegisterParsers(mknote.All...)
}

// Extract pulls embedded textual metadata out of content. mimeType selects
// the parser and should come from the content itself, not from the client.
// The result is never nil; unsupported or unreadable content yields an
// empty map.
func Extract(content []byte, mimeType string, maxBytes int64) map[string]string {
	meta := make(map[string]string)
	if len(content) == 0 {
		return meta
	}
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		content = content[:maxBytes]
	}

	switch mimeType {
	case "image/jpeg", "image/tiff":
		maps.Copy(meta, extractImageMetadata(content))
	case "application/pdf":
		maps.Copy(meta, extractPDFMetadata(content))
	case "application/zip",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation":
		maps.Copy(meta, extractOOXMLMetadata(content, maxBytes))
	default:
		// no parser for this type
	}
	return meta
}

type exifCollector map[string]string

func (c exifCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if name == exif.MakerNote {
		return nil
	}
	var value string
	switch tag.Format() {
	case tiff.StringVal:
		v, err := tag.StringVal()
		if err != nil {
			return nil
		}
		value = v
	case tiff.UndefVal:
		value = string(tag.Val)
	default:
		value = strings.Trim(tag.String(), "\"")
	}
	value = strings.TrimSpace(strings.TrimRight(value, "\x00"))
	if value == "" {
		return nil
	}
	c[string(name)] = truncate(value)
	return nil
}

// extractImageMetadata walks every EXIF tag, including maker notes decoded
// by the registered parsers.
func extractImageMetadata(content []byte) map[string]string {
	x, err := exif.Decode(bytes.NewReader(content))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		logger.Debugf("EXIF decode failed: %v", err)
		return nil
	}
	meta := exifCollector{}
	if err := x.Walk(meta); err != nil {
		logger.Debugf("EXIF walk failed: %v", err)
	}
	return meta
}

func extractPDFMetadata(content []byte) map[string]string {
	info, err := api.PDFInfo(bytes.NewReader(content), "upload.pdf", nil, false, nil)
	if err != nil {
		logger.Debugf("PDF info failed: %v", err)
		return nil
	}

	meta := make(map[string]string)
	if info.Title != "" {
		meta["title"] = truncate(info.Title)
	}
	if info.Author != "" {
		meta["author"] = truncate(info.Author)
	}
	if info.Creator != "" {
		meta["creator"] = truncate(info.Creator)
	}
	if info.Producer != "" {
		meta["producer"] = truncate(info.Producer)
	}
	return meta
}

// extractOOXMLMetadata reads docProps/core.xml, shared by docx, xlsx and
// pptx packages.
func extractOOXMLMetadata(content []byte, maxBytes int64) map[string]string {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil
	}

	var coreFile *zip.File
	for _, f := range r.File {
		if f.Name == "docProps/core.xml" {
			if maxBytes > 0 && f.UncompressedSize64 > uint64(maxBytes) {
				return nil
			}
			coreFile = f
			break
		}
	}
	if coreFile == nil {
		return nil
	}

	rc, err := coreFile.Open()
	if err != nil {
		return nil
	}
	defer rc.Close()

	type coreProperties struct {
		Title          string `xml:"title"`
		Subject        string `xml:"subject"`
		Creator        string `xml:"creator"`
		Keywords       string `xml:"keywords"`
		Description    string `xml:"description"`
		LastModifiedBy string `xml:"lastModifiedBy"`
	}

	var props coreProperties
	var reader io.Reader = rc
	if maxBytes > 0 {
		reader = io.LimitReader(rc, maxBytes)
	}
	if err := xml.NewDecoder(reader).Decode(&props); err != nil {
		return nil
	}

	meta := make(map[string]string)
	for key, value := range map[string]string{
		"title":            props.Title,
		"subject":          props.Subject,
		"creator":          props.Creator,
		"keywords":         props.Keywords,
		"description":      props.Description,
		"last_modified_by": props.LastModifiedBy,
	} {
		if value != "" {
			meta[key] = truncate(value)
		}
	}
	return meta
}

func truncate(value string) string {
	if len(value) > maxValueBytes {
		return value[:maxValueBytes]
	}
	return value
}
