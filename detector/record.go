package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Names of checks_done entries.
const (
	CheckWhitelistedRequestMime         = "whitelisted_request_mime"
	CheckWhitelistedExtensionMime       = "whitelisted_extension_mime"
	CheckSignatureValid                 = "signature_valid"
	CheckWhitelistedSignatureMime       = "whitelisted_signature_mime"
	CheckExtensionSignatureRequestMatch = "extension_signature_request_mime_match"
)

// Names of recognized_attacks entries.
const (
	AttackAdditionalFileExtensions = "additional_file_extensions"
	AttackNullByteInjection        = "null_byte_injection"
	AttackMimeManipulation         = "mime_manipulation"
	AttackMetadataInjection        = "metadata_injection"
)

// Names of sanitization_tasks entries.
const (
	TaskCleanMetadata  = "clean_metadata"
	TaskCleanStructure = "clean_structure"
)

var ErrFlagAlreadySet = errors.New("flag already set")

// Flags is a set of named booleans. Each name can be written once per
// detection run; a second write is rejected.
type Flags struct {
	values map[string]bool
}

func (f *Flags) set(name string, value bool) error {
	if f.values == nil {
		f.values = make(map[string]bool, 4)
	}
	if _, ok := f.values[name]; ok {
		return fmt.Errorf("%w: %s", ErrFlagAlreadySet, name)
	}
	f.values[name] = value
	return nil
}

// Get reports the value of name; unset names read as false.
func (f Flags) Get(name string) bool {
	return f.values[name]
}

// Has reports whether name was written during the run, true or false.
func (f Flags) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Names returns the names set to true, sorted.
func (f Flags) Names() []string {
	names := make([]string, 0, len(f.values))
	for name, v := range f.values {
		if v {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (f Flags) Len() int { return len(f.values) }

func (f Flags) MarshalJSON() ([]byte, error) {
	if f.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f.values)
}

func (f *Flags) UnmarshalJSON(data []byte) error {
	var values map[string]bool
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	f.values = values
	return nil
}

// FileFacts holds what the pipeline derived about a single file.
type FileFacts struct {
	Name                string   `json:"name"`
	Size                int64    `json:"size"`
	DeclaredMime        string   `json:"request_header_mime"`
	ExtensionMime       string   `json:"extension_mime"`
	SignatureMime       string   `json:"signature_mime"`
	GuessedMime         string   `json:"guessed_mime"`
	SniffedMime         string   `json:"sniffed_mime,omitempty"`
	PrimaryExtension    string   `json:"primary_extension"`
	SecondaryExtensions []string `json:"secondary_extensions"`
	Malicious           bool     `json:"malicious"`
	ConfidenceRatio     float64  `json:"confidence_ratio"`
}

// Record is the detection result for one file. It is owned by the run that
// built it and must be treated as read-only once returned.
type Record struct {
	ChecksDone        Flags     `json:"checks_done"`
	RecognizedAttacks Flags     `json:"recognized_attacks"`
	SanitizationTasks Flags     `json:"sanitization_tasks"`
	File              FileFacts `json:"file"`
	Block             bool      `json:"block"`
	BlockReasons      []string  `json:"block_reasons"`
	Error             string    `json:"error,omitempty"`
}

func newRecord() *Record {
	return &Record{
		File:         FileFacts{SecondaryExtensions: []string{}},
		BlockReasons: []string{},
	}
}

func (r *Record) block(reason string) {
	r.Block = true
	r.BlockReasons = append(r.BlockReasons, reason)
}

func (r *Record) fail(err error) {
	if err == nil {
		return
	}
	if r.Error == "" {
		r.Error = err.Error()
		return
	}
	r.Error = r.Error + "; " + err.Error()
}

func (r *Record) Malicious() bool { return r.File.Malicious }

func (r *Record) Blocked() bool { return r.Block }

// Failed reports whether the pipeline for this file hit an internal error.
// A failed record is incomplete and should not be trusted as clean.
func (r *Record) Failed() bool { return r.Error != "" }

func (r *Record) ConfidenceRatio() float64 { return r.File.ConfidenceRatio }

func (r *Record) AttackNames() []string { return r.RecognizedAttacks.Names() }

func (r *Record) TaskNames() []string { return r.SanitizationTasks.Names() }

func (r *Record) CheckNames() []string { return r.ChecksDone.Names() }

// Clean reports whether nothing about the file calls for rejection.
func (r *Record) Clean() bool {
	return !r.Block && !r.File.Malicious && !r.Failed()
}

// Rejected applies the acceptance policy: blocked and failed files are
// always rejected, malicious ones only when blockMalicious is set.
func (r *Record) Rejected(blockMalicious bool) bool {
	return r.Block || r.Failed() || (blockMalicious && r.File.Malicious)
}
