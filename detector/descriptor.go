package detector

import (
	"mime"
	"strings"

	"filesentry/mimetypes"
)

// FileDescriptor is everything the engine needs about one uploaded file.
// The engine never modifies it.
type FileDescriptor struct {
	Name                string
	Size                int64
	Content             []byte
	DeclaredContentType string
	EmbeddedMetadata    map[string]string
}

func (fd *FileDescriptor) size() int64 {
	if fd.Size <= 0 {
		return int64(len(fd.Content))
	}
	return fd.Size
}

// normalizeDeclared reduces a Content-Type header to its lowercase media
// type. Anything that is not of the form type/subtype becomes Unknown.
func normalizeDeclared(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return mimetypes.Unknown
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	slash := strings.IndexByte(mediaType, '/')
	if slash <= 0 || slash == len(mediaType)-1 {
		return mimetypes.Unknown
	}
	return mediaType
}
