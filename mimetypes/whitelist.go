package mimetypes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyWhitelist = errors.New("mime whitelist is empty")
	ErrUnknownPreset  = errors.New("unknown whitelist preset")
)

// DefaultPreset is the whitelist used when none is configured.
const DefaultPreset = "restrictive"

// Whitelist is an immutable set of accepted MIME types. The zero value
// contains nothing.
type Whitelist struct {
	set   map[string]struct{}
	mimes []string
}

func NewWhitelist(mimes ...string) (Whitelist, error) {
	w := Whitelist{set: make(map[string]struct{}, len(mimes))}
	for _, mime := range mimes {
		mime = normalizeMIME(mime)
		if mime == "" || mime == Unknown {
			continue
		}
		if _, ok := w.set[mime]; ok {
			continue
		}
		w.set[mime] = struct{}{}
		w.mimes = append(w.mimes, mime)
	}
	if len(w.mimes) == 0 {
		return Whitelist{}, ErrEmptyWhitelist
	}
	return w, nil
}

// Contains reports whether mime is whitelisted. Unknown is never contained.
func (w Whitelist) Contains(mime string) bool {
	if w.set == nil {
		return false
	}
	_, ok := w.set[normalizeMIME(mime)]
	return ok
}

func (w Whitelist) Len() int { return len(w.mimes) }

func (w Whitelist) MIMEs() []string {
	out := make([]string, len(w.mimes))
	copy(out, w.mimes)
	return out
}

// Extend returns a new whitelist holding w's entries plus mimes.
func (w Whitelist) Extend(mimes ...string) (Whitelist, error) {
	return NewWhitelist(append(w.MIMEs(), mimes...)...)
}

var (
	imageAll = []string{
		"image/jpeg", "image/png", "image/gif", "image/tiff",
		"image/x-icon", "image/svg+xml", "image/webp", "image/bmp",
	}
	imageRestrictive = []string{"image/jpeg", "image/png", "image/gif"}

	audioAll = []string{
		"audio/mpeg", "audio/flac", "audio/ogg", "audio/midi", "audio/wav", "audio/aac",
	}
	audioRestrictive = []string{"audio/mpeg", "audio/ogg"}

	videoAll = []string{
		"video/mp4", "video/quicktime", "video/3gpp", "video/webm",
		"video/x-flv", "video/x-msvideo", "video/mpeg",
	}
	videoRestrictive = []string{"video/mp4", "video/webm"}

	applicationAll = []string{
		"application/pdf",
		"application/zip",
		"application/gzip",
		"application/x-bzip2",
		"application/x-7z-compressed",
		"application/vnd.rar",
		"application/x-xz",
		"application/msword",
		"application/vnd.ms-excel",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.oasis.opendocument.text",
		"application/json",
		"application/xml",
	}
	applicationRestrictive = []string{"application/pdf"}

	textAll = []string{
		"text/plain", "text/csv", "text/markdown", "text/calendar", "text/css", "text/html",
	}
	textRestrictive = []string{"text/plain", "text/csv"}
)

var presets = map[string][][]string{
	"audio_all":               {audioAll},
	"audio_restrictive":       {audioRestrictive},
	"application_all":         {applicationAll},
	"application_restrictive": {applicationRestrictive},
	"image_all":               {imageAll},
	"image_restrictive":       {imageRestrictive},
	"text_all":                {textAll},
	"text_restrictive":        {textRestrictive},
	"video_all":               {videoAll},
	"video_restrictive":       {videoRestrictive},
	"all":                     {audioAll, applicationAll, imageAll, textAll, videoAll},
	"restrictive": {
		audioRestrictive, applicationRestrictive, imageRestrictive, textRestrictive, videoRestrictive,
	},
}

// Preset returns a built-in whitelist by name, e.g. "image_restrictive" or
// "all". Names are case-insensitive and "-" may be used for "_".
func Preset(name string) (Whitelist, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	groups, ok := presets[key]
	if !ok {
		return Whitelist{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	var mimes []string
	for _, group := range groups {
		mimes = append(mimes, group...)
	}
	return NewWhitelist(mimes...)
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
