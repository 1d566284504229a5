package detector

import (
	"context"
	"strings"

	"filesentry/mimetypes"
)

var nullByteMarkers = []string{"0x00", "%00", "\x00"}

// FilenameAnalysis is the decomposition of a filename into extensions.
type FilenameAnalysis struct {
	Base      string
	Primary   string
	Secondary []string
	NullByte  bool
}

// AnalyzeFilename lowercases name and splits it on ".". The segment right
// after the base name is the primary extension, everything after that is
// secondary. A name without a dot, or with nothing after its first dot, has
// primary extension Unknown.
//
// "invoice.pdf.exe" yields primary "pdf" and secondary ["exe"]; the primary
// extension is positional, not the last segment.
func AnalyzeFilename(name string) FilenameAnalysis {
	segments := strings.Split(strings.ToLower(name), ".")
	a := FilenameAnalysis{
		Base:      segments[0],
		Primary:   mimetypes.Unknown,
		Secondary: []string{},
	}
	if len(segments) > 1 && segments[1] != "" {
		a.Primary = segments[1]
	}
	if len(segments) > 2 {
		a.Secondary = append(a.Secondary, segments[2:]...)
	}
	for _, segment := range segments {
		if containsNullByteMarker(segment) {
			a.NullByte = true
			break
		}
	}
	return a
}

// containsNullByteMarker expects a lowercased segment.
func containsNullByteMarker(segment string) bool {
	for _, marker := range nullByteMarkers {
		if strings.Contains(segment, marker) {
			return true
		}
	}
	return false
}

type filenameCheck struct {
	mapper *mimetypes.Mapper
}

func (c filenameCheck) Name() string { return "filename" }

func (c filenameCheck) Run(ctx context.Context, rc *runContext) error {
	a := AnalyzeFilename(rc.fd.Name)
	rec := rc.record
	rec.File.PrimaryExtension = a.Primary
	rec.File.SecondaryExtensions = a.Secondary

	extMime := mimetypes.Unknown
	if a.Primary != mimetypes.Unknown {
		extMime = c.mapper.ExtensionToMime(a.Primary)
	}
	rec.File.ExtensionMime = extMime
	rc.establish(sourceExtension)

	if err := rec.ChecksDone.set(CheckWhitelistedExtensionMime, rc.whitelist.Contains(extMime)); err != nil {
		return err
	}
	if len(a.Secondary) > 0 {
		if err := rec.RecognizedAttacks.set(AttackAdditionalFileExtensions, true); err != nil {
			return err
		}
	}
	if a.NullByte {
		if err := rec.RecognizedAttacks.set(AttackNullByteInjection, true); err != nil {
			return err
		}
	}
	return nil
}
