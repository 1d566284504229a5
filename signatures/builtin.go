package signatures

// sig builds a variant from a literal byte string.
func sig(s string) Signature {
	return Signature{Bytes: []byte(s), Length: len(s)}
}

// isoBoxVariants lists ISO base media "ftyp" boxes for the common box sizes.
func isoBoxVariants(brands ...string) []Signature {
	sizes := []byte{0x14, 0x18, 0x1c, 0x20}
	out := make([]Signature, 0, len(sizes)*len(brands))
	for _, brand := range brands {
		for _, size := range sizes {
			out = append(out, sig("\x00\x00\x00"+string([]byte{size})+"ftyp"+brand))
		}
	}
	return out
}

// Only exact prefixes are representable. Formats that need to skip variable
// bytes (RIFF containers, BMP, TAR) are absent and identify as unknown.
func builtinEntries() []Entry {
	bzip2 := make([]Signature, 0, 9)
	for level := '1'; level <= '9'; level++ {
		bzip2 = append(bzip2, sig("BZh"+string(level)))
	}
	return []Entry{
		// images
		{MIME: "image/jpeg", Start: []byte("\xff\xd8\xff"), Variants: []Signature{
			sig("\xff\xd8\xff\xdb"),
			sig("\xff\xd8\xff\xe0"),
			sig("\xff\xd8\xff\xe1"),
			sig("\xff\xd8\xff\xe2"),
			sig("\xff\xd8\xff\xe3"),
			sig("\xff\xd8\xff\xe8"),
			sig("\xff\xd8\xff\xee"),
		}},
		{MIME: "image/png", Start: []byte("\x89PNG"), Variants: []Signature{
			sig("\x89PNG\r\n\x1a\n"),
		}},
		{MIME: "image/gif", Start: []byte("GIF8"), Variants: []Signature{
			sig("GIF87a"),
			sig("GIF89a"),
		}},
		{MIME: "image/tiff", Variants: []Signature{
			sig("II*\x00"),
			sig("MM\x00*"),
		}},
		{MIME: "image/x-icon", Start: []byte("\x00\x00\x01\x00"), Variants: []Signature{
			sig("\x00\x00\x01\x00"),
		}},
		{MIME: "image/svg+xml", Start: []byte("<svg"), Variants: []Signature{
			sig("<svg"),
		}},

		// documents and archives
		{MIME: "application/pdf", Start: []byte("%PDF"), Variants: []Signature{
			sig("%PDF-1."),
			sig("%PDF-2."),
		}},
		{MIME: "application/zip", Start: []byte("PK"), Variants: []Signature{
			sig("PK\x03\x04"),
			sig("PK\x05\x06"),
			sig("PK\x07\x08"),
		}},
		{MIME: "application/gzip", Start: []byte("\x1f\x8b"), Variants: []Signature{
			sig("\x1f\x8b\x08"),
		}},
		{MIME: "application/x-bzip2", Start: []byte("BZh"), Variants: bzip2},
		{MIME: "application/x-7z-compressed", Start: []byte("7z"), Variants: []Signature{
			sig("7z\xbc\xaf\x27\x1c"),
		}},
		{MIME: "application/vnd.rar", Start: []byte("Rar!"), Variants: []Signature{
			sig("Rar!\x1a\x07\x00"),
			sig("Rar!\x1a\x07\x01\x00"),
		}},
		{MIME: "application/x-xz", Start: []byte("\xfd7zXZ"), Variants: []Signature{
			sig("\xfd7zXZ\x00"),
		}},
		{MIME: "application/msword", Start: []byte("\xd0\xcf\x11\xe0"), Variants: []Signature{
			sig("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1"),
		}},
		{MIME: "application/x-sqlite3", Start: []byte("SQLite"), Variants: []Signature{
			sig("SQLite format 3\x00"),
		}},
		{MIME: "application/wasm", Start: []byte("\x00asm"), Variants: []Signature{
			sig("\x00asm\x01\x00\x00\x00"),
		}},

		// executables
		{MIME: "application/x-msdownload", Start: []byte("MZ"), Variants: []Signature{
			sig("MZ\x90\x00"),
			sig("MZ\x50\x00"),
			sig("MZ\x78\x00"),
		}},
		{MIME: "application/x-executable", Start: []byte("\x7fELF"), Variants: []Signature{
			sig("\x7fELF\x01"),
			sig("\x7fELF\x02"),
		}},
		{MIME: "application/x-mach-binary", Variants: []Signature{
			sig("\xce\xfa\xed\xfe"),
			sig("\xcf\xfa\xed\xfe"),
			sig("\xfe\xed\xfa\xce"),
			sig("\xfe\xed\xfa\xcf"),
		}},

		// audio
		{MIME: "audio/mpeg", Start: []byte("ID3"), Variants: []Signature{
			sig("ID3\x02"),
			sig("ID3\x03"),
			sig("ID3\x04"),
		}},
		{MIME: "audio/flac", Start: []byte("fLaC"), Variants: []Signature{
			sig("fLaC"),
		}},
		{MIME: "audio/ogg", Start: []byte("OggS"), Variants: []Signature{
			sig("OggS\x00"),
		}},
		{MIME: "audio/midi", Start: []byte("MThd"), Variants: []Signature{
			sig("MThd\x00\x00\x00\x06"),
		}},

		// video
		{MIME: "video/mp4", Start: []byte("\x00\x00\x00"), Variants: isoBoxVariants("isom", "mp41", "mp42", "avc1")},
		{MIME: "video/quicktime", Start: []byte("\x00\x00\x00"), Variants: isoBoxVariants("qt  ")},
		{MIME: "video/3gpp", Start: []byte("\x00\x00\x00"), Variants: isoBoxVariants("3gp4", "3gp5", "3gp6")},
		{MIME: "video/webm", Start: []byte("\x1a\x45\xdf\xa3"), Variants: []Signature{
			sig("\x1a\x45\xdf\xa3"),
		}},
		{MIME: "video/x-flv", Start: []byte("FLV"), Variants: []Signature{
			sig("FLV\x01"),
		}},

		// fonts
		{MIME: "font/woff", Start: []byte("wOF"), Variants: []Signature{
			sig("wOFF"),
		}},
		{MIME: "font/woff2", Start: []byte("wOF"), Variants: []Signature{
			sig("wOF2"),
		}},
		{MIME: "font/otf", Start: []byte("OTTO"), Variants: []Signature{
			sig("OTTO\x00"),
		}},
		{MIME: "font/ttf", Start: []byte("\x00\x01\x00\x00"), Variants: []Signature{
			sig("\x00\x01\x00\x00\x00"),
		}},

		// markup
		{MIME: "text/html", Start: []byte("<"), Variants: []Signature{
			sig("<!DOCTYPE html"),
			sig("<!DOCTYPE HTML"),
			sig("<!doctype html"),
			sig("<html"),
			sig("<HTML"),
		}},
		{MIME: "application/xml", Start: []byte("<?xml"), Variants: []Signature{
			sig("<?xml "),
		}},
	}
}
