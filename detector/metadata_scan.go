package detector

import (
	"context"
	"fmt"
	"sort"

	"filesentry/markers"
)

type MetadataScan struct {
	InjectionDetected bool
	Key               string
	Marker            string
}

// MetadataScanner screens embedded metadata values for injection markers.
type MetadataScanner struct {
	set markers.Set
}

func NewMetadataScanner(set markers.Set) *MetadataScanner {
	return &MetadataScanner{set: set}
}

// Scan visits keys in sorted order and stops at the first value holding a
// marker, so the reported key is deterministic.
func (s *MetadataScanner) Scan(md map[string]string) MetadataScan {
	if len(md) == 0 {
		return MetadataScan{}
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if marker, ok := s.set.Find([]byte(md[k])); ok {
			return MetadataScan{InjectionDetected: true, Key: k, Marker: marker}
		}
	}
	return MetadataScan{}
}

type metadataCheck struct {
	scanner *MetadataScanner
}

func (c metadataCheck) Name() string { return "metadata" }

func (c metadataCheck) Run(ctx context.Context, rc *runContext) error {
	md := rc.fd.EmbeddedMetadata
	if len(md) == 0 {
		return nil
	}
	rec := rc.record
	scan := c.scanner.Scan(md)
	if !scan.InjectionDetected {
		return rec.SanitizationTasks.set(TaskCleanMetadata, true)
	}
	if err := rec.RecognizedAttacks.set(AttackMetadataInjection, true); err != nil {
		return err
	}
	rec.block(fmt.Sprintf("%s: marker %q in %q", AttackMetadataInjection, scan.Marker, scan.Key))
	return nil
}
