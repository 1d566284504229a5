package output

import (
	"time"

	"github.com/google/uuid"

	"filesentry/detector"
)

// Sources for Entry.Source.
const (
	SourceFile   = "file"
	SourceUpload = "upload"
)

// Entry is one report line: the detection record plus the context of where
// the file came from.
type Entry struct {
	ID           string            `json:"id"`
	Timestamp    string            `json:"timestamp"`
	Source       string            `json:"source"`
	Path         string            `json:"path,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	ModTime      string            `json:"mod_time,omitempty"`
	CreationTime string            `json:"creation_time,omitempty"`
	AccessTime   string            `json:"access_time,omitempty"`
	ChangeTime   string            `json:"change_time,omitempty"`
	Hashes       map[string]string `json:"hashes,omitempty"`
	FuzzyHashes  map[string]string `json:"fuzzy_hashes,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Record       *detector.Record  `json:"record"`
}

// NewEntry stamps a record with a fresh id and the current time.
func NewEntry(source string, rec *detector.Record) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Source:    source,
		Record:    rec,
	}
}

// Name returns the file name from the record, if any.
func (e Entry) Name() string {
	if e.Record == nil {
		return ""
	}
	return e.Record.File.Name
}

// Report modes decide which detections are written.
const (
	ModeSuccess = "success"
	ModeBlocked = "blocked"
	ModeAlways  = "always"
	ModeNever   = "never"
)

// Modes lists the accepted report modes.
func Modes() []string {
	return []string{ModeSuccess, ModeBlocked, ModeAlways, ModeNever}
}

// ShouldReport reports whether a detection with the given outcome is written
// under mode. Unknown modes report nothing.
func ShouldReport(mode string, blocked bool) bool {
	switch mode {
	case ModeAlways:
		return true
	case ModeSuccess:
		return !blocked
	case ModeBlocked:
		return blocked
	default:
		return false
	}
}
