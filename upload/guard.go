// Package upload puts the detection engine in front of HTTP handlers that
// accept multipart file uploads.
package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"filesentry/config"
	"filesentry/detector"
	"filesentry/fuzzy"
	"filesentry/hasher"
	"filesentry/logger"
	"filesentry/metadata"
	"filesentry/output"
	"filesentry/tracing"
)

// RejectionMessage is the body sent with a 403 for a rejected upload.
const RejectionMessage = "The file could not be uploaded."

// RequestIDHeader is honoured when present so reports can be correlated
// with upstream logs.
const RequestIDHeader = "X-Request-ID"

// multipartMemory is how much of a form is kept in memory before parts
// spill to temporary files.
const multipartMemory = 8 << 20

var ErrNilEngine = errors.New("upload guard needs a detection engine")

var optionsValidator = validator.New()

// Reporter receives the outcome of every inspected upload. *output.Writer
// implements it.
type Reporter interface {
	Observe(blocked, malicious, failed bool)
	Write(e output.Entry) error
}

type Options struct {
	BlockMalicious   bool
	LogMode          string `validate:"oneof=success blocked always never"`
	MaxUploadBytes   int64  `validate:"gte=1"`
	ExtractMetadata  bool
	MetadataMaxBytes int64 `validate:"gte=0"`
	HashAlgorithms   []string
	FuzzyAlgorithms  []string
}

// OptionsFromConfig copies the upload settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BlockMalicious:   cfg.BlockMalicious,
		LogMode:          cfg.UploadLogMode,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		ExtractMetadata:  cfg.ExtractMetadata,
		MetadataMaxBytes: cfg.MetadataMaxBytes,
		HashAlgorithms:   cfg.HashAlgorithms,
		FuzzyAlgorithms:  cfg.FuzzyAlgorithms,
	}
}

// Upload is one file part taken from a request.
type Upload struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// Verdict is the decision for a whole request. One rejected file rejects
// the request.
type Verdict struct {
	RequestID string
	Records   []*detector.Record
	Rejected  bool
}

type Guard struct {
	engine   *detector.Engine
	opts     Options
	reporter Reporter
}

// NewGuard checks opts and returns a guard. reporter may be nil.
func NewGuard(engine *detector.Engine, opts Options, reporter Reporter) (*Guard, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if err := optionsValidator.Struct(opts); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid upload option %s: %s", verrs[0].Field(), verrs[0].Tag())
		}
		return nil, err
	}
	return &Guard{engine: engine, opts: opts, reporter: reporter}, nil
}

// Inspect runs every upload through the engine and applies the acceptance
// policy. Reports are written for the whole request according to the log
// mode.
func (g *Guard) Inspect(ctx context.Context, requestID string, uploads []Upload) Verdict {
	ctx, endTask := tracing.StartTask(ctx, "inspect_upload")
	defer endTask()
	if requestID == "" {
		requestID = uuid.NewString()
	}
	tracing.Log(ctx, "request", requestID)

	files := make([]detector.FileDescriptor, len(uploads))
	metas := make([]map[string]string, len(uploads))
	for i, u := range uploads {
		files[i] = detector.FileDescriptor{
			Name:                u.Filename,
			Size:                int64(len(u.Content)),
			Content:             u.Content,
			DeclaredContentType: u.ContentType,
		}
		if g.opts.ExtractMetadata {
			metas[i] = metadata.Extract(u.Content, g.engine.SignatureMime(u.Content), g.opts.MetadataMaxBytes)
			files[i].EmbeddedMetadata = metas[i]
		}
	}

	v := Verdict{RequestID: requestID, Records: g.engine.DetectBatch(ctx, files)}
	for _, rec := range v.Records {
		if rec.Rejected(g.opts.BlockMalicious) {
			v.Rejected = true
		}
		if g.reporter != nil {
			g.reporter.Observe(rec.Blocked(), rec.Malicious(), rec.Failed())
		}
	}

	logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"files":      len(uploads),
		"rejected":   v.Rejected,
	}).Info("Upload inspected")

	if g.reporter != nil && output.ShouldReport(g.opts.LogMode, v.Rejected) {
		for i, rec := range v.Records {
			entry := output.NewEntry(output.SourceUpload, rec)
			entry.RequestID = requestID
			entry.Metadata = metas[i]
			entry.Hashes = hasher.Compute(uploads[i].Content, g.opts.HashAlgorithms)
			if len(g.opts.FuzzyAlgorithms) > 0 {
				entry.FuzzyHashes = fuzzy.Compute(uploads[i].Content, g.opts.FuzzyAlgorithms)
			}
			if err := g.reporter.Write(entry); err != nil {
				logger.Warnf("Failed to report upload %s: %v", rec.File.Name, err)
			}
		}
	}
	return v
}
