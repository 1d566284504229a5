package upload

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"

	"filesentry/logger"
)

// Middleware inspects multipart uploads before they reach next. Requests
// without file parts pass through untouched; the upload size limit only
// applies to multipart/form-data bodies.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody || !isMultipartForm(r.Header.Get("Content-Type")) {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > g.opts.MaxUploadBytes {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, g.opts.MaxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			default:
				logger.Debugf("Malformed multipart body: %v", err)
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			}
			return
		}
		if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		uploads, err := readFileHeaders(r.MultipartForm.File)
		if err != nil {
			logger.Warnf("Failed to read uploaded file: %v", err)
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		v := g.Inspect(r.Context(), r.Header.Get(RequestIDHeader), uploads)
		if v.Rejected {
			http.Error(w, RejectionMessage, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMultipartForm(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "multipart/form-data"
}

// readFileHeaders loads every file part in field-name order.
func readFileHeaders(files map[string][]*multipart.FileHeader) ([]Upload, error) {
	fields := make([]string, 0, len(files))
	for field := range files {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var uploads []Upload
	for _, field := range fields {
		for _, fh := range files[field] {
			content, err := readFileHeader(fh)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, Upload{
				Field:       field,
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Content:     content,
			})
		}
	}
	return uploads, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
