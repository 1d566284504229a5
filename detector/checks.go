package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/h2non/filetype"

	"filesentry/logger"
	"filesentry/mimetypes"
	"filesentry/signatures"
)

// Check is one step of the per-file pipeline. A check writes only its own
// flags and facts on the record held by rc.
type Check interface {
	Name() string
	Run(ctx context.Context, rc *runContext) error
}

type source int

const (
	sourceDeclared source = iota
	sourceExtension
	sourceSignature
	sourceCount
)

func (s source) String() string {
	switch s {
	case sourceDeclared:
		return "declared mime"
	case sourceExtension:
		return "extension mime"
	case sourceSignature:
		return "signature mime"
	}
	return "unknown source"
}

var ErrPreconditionUnmet = errors.New("classifier preconditions unmet")

// runContext carries one file through the pipeline.
type runContext struct {
	fd          *FileDescriptor
	record      *Record
	whitelist   mimetypes.Whitelist
	established [sourceCount]bool
}

func (rc *runContext) establish(s source) {
	rc.established[s] = true
}

func (rc *runContext) requireSources() error {
	var missing []string
	for s := source(0); s < sourceCount; s++ {
		if !rc.established[s] {
			missing = append(missing, s.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrPreconditionUnmet, missing)
	}
	return nil
}

type sizeCheck struct{}

func (sizeCheck) Name() string { return "size" }

func (sizeCheck) Run(ctx context.Context, rc *runContext) error {
	rc.record.File.Size = rc.fd.size()
	return nil
}

type requestMimeCheck struct{}

func (requestMimeCheck) Name() string { return "request_mime" }

func (requestMimeCheck) Run(ctx context.Context, rc *runContext) error {
	declared := normalizeDeclared(rc.fd.DeclaredContentType)
	rc.record.File.DeclaredMime = declared
	rc.establish(sourceDeclared)
	return rc.record.ChecksDone.set(CheckWhitelistedRequestMime, rc.whitelist.Contains(declared))
}

type signatureCheck struct {
	registry *signatures.Registry
}

func (signatureCheck) Name() string { return "signature" }

func (c signatureCheck) Run(ctx context.Context, rc *runContext) error {
	rec := rc.record
	sigMime := c.registry.Match(rc.fd.Content)
	rec.File.SignatureMime = sigMime
	rc.establish(sourceSignature)

	if sigMime != mimetypes.Unknown {
		logger.Debugf("Signature matched %s for %s", sigMime, rc.fd.Name)
		if err := rec.ChecksDone.set(CheckSignatureValid, true); err != nil {
			return err
		}
		if err := rec.ChecksDone.set(CheckWhitelistedSignatureMime, rc.whitelist.Contains(sigMime)); err != nil {
			return err
		}
	} else {
		logger.Debugf("Signature unknown for %s", rc.fd.Name)
	}
	// every received file gets its container rebuilt before it is trusted
	return rec.SanitizationTasks.set(TaskCleanStructure, true)
}

// sniffHeadBytes is the header size filetype inspects.
const sniffHeadBytes = 261

// sniffCheck records a second opinion on the content type. It never feeds
// the verdict.
type sniffCheck struct{}

func (sniffCheck) Name() string { return "sniff" }

func (sniffCheck) Run(ctx context.Context, rc *runContext) error {
	head := rc.fd.Content
	if len(head) > sniffHeadBytes {
		head = head[:sniffHeadBytes]
	}
	sniffed := mimetypes.Unknown
	if len(head) > 0 {
		kind, err := filetype.Match(head)
		if err == nil && kind != filetype.Unknown && kind.MIME.Value != "" {
			sniffed = kind.MIME.Value
		}
	}
	rc.record.File.SniffedMime = sniffed
	return nil
}
