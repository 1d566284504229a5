package mimetypes

import (
	"errors"
	"testing"
)

func TestExtensionToMime(t *testing.T) {
	m := Default()
	cases := map[string]string{
		"jpg":     "image/jpeg",
		".JPEG":   "image/jpeg",
		" png ":   "image/png",
		"pdf":     "application/pdf",
		"exe":     "application/x-msdownload",
		"php5":    "application/x-httpd-php",
		"unknown": Unknown,
		"":        Unknown,
		".":       Unknown,
	}
	for ext, want := range cases {
		if got := m.ExtensionToMime(ext); got != want {
			t.Errorf("ExtensionToMime(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestMimeToExtensions(t *testing.T) {
	m := Default()
	exts := m.MimeToExtensions("IMAGE/JPEG")
	if len(exts) == 0 || exts[0] != "jpg" {
		t.Fatalf("unexpected extensions: %v", exts)
	}
	for _, ext := range exts {
		if m.ExtensionToMime(ext) != "image/jpeg" {
			t.Fatalf("round trip failed for %s", ext)
		}
	}
	if exts := m.MimeToExtensions(Unknown); len(exts) != 0 {
		t.Fatalf("expected no extensions for unknown, got %v", exts)
	}
}

func TestKnownMIMEsOrderStable(t *testing.T) {
	m := Default()
	first := m.KnownMIMEs()
	if first[0] != "image/jpeg" {
		t.Fatalf("expected image/jpeg first, got %s", first[0])
	}
	first[0] = "mutated"
	if m.KnownMIMEs()[0] != "image/jpeg" {
		t.Fatal("KnownMIMEs must return a copy")
	}
	if m.IsKnown(Unknown) {
		t.Fatal("unknown must not be a known mime")
	}
}

func TestNewMapperRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		mappings []Mapping
	}{
		{"empty", nil},
		{"blank mime", []Mapping{{MIME: " ", Extensions: []string{"a"}}}},
		{"unknown mime", []Mapping{{MIME: Unknown}}},
		{"duplicate mime", []Mapping{{MIME: "a/b"}, {MIME: "A/B"}}},
		{"shared extension", []Mapping{
			{MIME: "a/b", Extensions: []string{"x"}},
			{MIME: "c/d", Extensions: []string{".X"}},
		}},
		{"blank extension", []Mapping{{MIME: "a/b", Extensions: []string{"."}}}},
	}
	for _, tt := range tests {
		if _, err := NewMapper(tt.mappings); !errors.Is(err, ErrInvalidMapping) {
			t.Errorf("%s: expected ErrInvalidMapping, got %v", tt.name, err)
		}
	}
}

func TestWhitelist(t *testing.T) {
	if _, err := NewWhitelist(); !errors.Is(err, ErrEmptyWhitelist) {
		t.Fatalf("expected empty whitelist error, got %v", err)
	}
	if _, err := NewWhitelist("", Unknown); !errors.Is(err, ErrEmptyWhitelist) {
		t.Fatalf("expected empty whitelist error for blank entries, got %v", err)
	}
	w, err := NewWhitelist("Image/PNG", "image/png", "application/pdf")
	if err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if w.Len() != 2 {
		t.Fatalf("expected duplicates collapsed, got %v", w.MIMEs())
	}
	if !w.Contains("image/png") || !w.Contains(" IMAGE/PNG") {
		t.Fatal("expected png whitelisted")
	}
	if w.Contains(Unknown) || w.Contains("image/gif") {
		t.Fatal("unexpected whitelist membership")
	}
	var zero Whitelist
	if zero.Contains("image/png") {
		t.Fatal("zero whitelist must be empty")
	}
	ext, err := w.Extend("image/gif")
	if err != nil || !ext.Contains("image/gif") || w.Contains("image/gif") {
		t.Fatalf("extend must return a new whitelist: %v", err)
	}
}

func TestPresets(t *testing.T) {
	restrictive, err := Preset(DefaultPreset)
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	for _, mime := range []string{"image/jpeg", "application/pdf", "text/plain", "video/mp4", "audio/mpeg"} {
		if !restrictive.Contains(mime) {
			t.Errorf("restrictive preset missing %s", mime)
		}
	}
	if restrictive.Contains("application/x-msdownload") {
		t.Fatal("executables must not be whitelisted")
	}
	all, err := Preset("ALL")
	if err != nil {
		t.Fatalf("preset all: %v", err)
	}
	if all.Len() <= restrictive.Len() {
		t.Fatalf("expected all (%d) to exceed restrictive (%d)", all.Len(), restrictive.Len())
	}
	if _, err := Preset("image-restrictive"); err != nil {
		t.Fatalf("dash separated preset: %v", err)
	}
	if _, err := Preset("nope"); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("expected unknown preset error, got %v", err)
	}
	if len(PresetNames()) != 12 {
		t.Fatalf("unexpected preset names: %v", PresetNames())
	}
	m := Default()
	for _, name := range PresetNames() {
		w, _ := Preset(name)
		for _, mime := range w.MIMEs() {
			if !m.IsKnown(mime) {
				t.Errorf("preset %s lists unmapped mime %s", name, mime)
			}
		}
	}
}
