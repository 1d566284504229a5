package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"filesentry/logger"
	"filesentry/markers"
	"filesentry/mimetypes"
	"filesentry/signatures"
	"filesentry/tracing"
)

// DefaultThreshold flags anything short of full two-signal agreement.
const DefaultThreshold = 0.98

var (
	ErrInvalidThreshold  = errors.New("sensitivity threshold must be within [0,1]")
	ErrUnmappedSignature = errors.New("signature mime type has no extension mapping")
	ErrNoMarkers         = errors.New("no metadata injection markers configured")
	ErrCheckPanicked     = errors.New("check panicked")
)

type engineOptions struct {
	registry    *signatures.Registry
	mapper      *mimetypes.Mapper
	whitelist   mimetypes.Whitelist
	threshold   float64
	markers     []string
	concurrency int
}

type Option func(*engineOptions)

func WithRegistry(r *signatures.Registry) Option {
	return func(o *engineOptions) { o.registry = r }
}

func WithMapper(m *mimetypes.Mapper) Option {
	return func(o *engineOptions) { o.mapper = m }
}

func WithWhitelist(w mimetypes.Whitelist) Option {
	return func(o *engineOptions) { o.whitelist = w }
}

func WithThreshold(threshold float64) Option {
	return func(o *engineOptions) { o.threshold = threshold }
}

// WithMarkers replaces the metadata injection markers.
func WithMarkers(markers []string) Option {
	return func(o *engineOptions) { o.markers = markers }
}

// WithConcurrency sets how many files DetectBatch inspects at once.
func WithConcurrency(n int) Option {
	return func(o *engineOptions) { o.concurrency = n }
}

// Engine runs the detection pipeline. It holds only read-only state and is
// safe for concurrent use.
type Engine struct {
	registry    *signatures.Registry
	mapper      *mimetypes.Mapper
	whitelist   mimetypes.Whitelist
	threshold   float64
	concurrency int
	headLen     int
	markers     markers.Set

	independent []Check
	dependent   []Check
}

// NewEngine validates the configuration and builds an engine. A whitelist is
// required; every other option has a default.
func NewEngine(opts ...Option) (*Engine, error) {
	o := engineOptions{
		threshold:   DefaultThreshold,
		markers:     markers.DefaultInjection,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = signatures.Default()
	}
	if o.mapper == nil {
		o.mapper = mimetypes.Default()
	}
	if o.whitelist.Len() == 0 {
		return nil, mimetypes.ErrEmptyWhitelist
	}
	if math.IsNaN(o.threshold) || o.threshold < 0 || o.threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, o.threshold)
	}
	for _, mime := range o.registry.MIMEs() {
		if !o.mapper.IsKnown(mime) {
			return nil, fmt.Errorf("%w: %s", ErrUnmappedSignature, mime)
		}
	}
	set := markers.Build(o.markers)
	if len(set.Terms()) == 0 {
		return nil, ErrNoMarkers
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}

	e := &Engine{
		registry:    o.registry,
		mapper:      o.mapper,
		whitelist:   o.whitelist,
		threshold:   o.threshold,
		concurrency: o.concurrency,
		headLen:     o.registry.MaxLength(),
		markers:     set,
	}
	e.independent = []Check{
		sizeCheck{},
		requestMimeCheck{},
		metadataCheck{scanner: NewMetadataScanner(set)},
		filenameCheck{mapper: o.mapper},
		signatureCheck{registry: o.registry},
		sniffCheck{},
	}
	e.dependent = []Check{
		consistencyCheck{},
		confidenceCheck{table: newScoreTable(o.mapper.KnownMIMEs()), threshold: o.threshold},
	}
	return e, nil
}

func (e *Engine) Threshold() float64 { return e.threshold }

func (e *Engine) Whitelist() mimetypes.Whitelist { return e.whitelist }

func (e *Engine) Markers() []string { return e.markers.Terms() }

// SignatureMime reports the MIME type the registry assigns to content, or
// mimetypes.Unknown. Callers use it to pick a metadata parser before
// detection runs. Only the leading bytes any signature can cover are read.
func (e *Engine) SignatureMime(content []byte) string {
	if len(content) > e.headLen {
		content = content[:e.headLen]
	}
	return e.registry.Match(content)
}

// ExtensionMime maps ext through the same table the classifier scores
// against, so a type derived from it never disagrees with the engine.
func (e *Engine) ExtensionMime(ext string) string { return e.mapper.ExtensionToMime(ext) }

// Detect inspects one file. It always returns a record; internal failures
// are reported through Record.Error instead of an error value.
func (e *Engine) Detect(ctx context.Context, fd FileDescriptor) (rec *Record) {
	ctx, endTask := tracing.StartTask(ctx, "detect_file")
	defer endTask()
	tracing.Log(ctx, "file", fd.Name)

	rec = newRecord()
	rec.File.Name = fd.Name
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Detection panicked for %s: %v\n%s", fd.Name, r, debug.Stack())
			rec.fail(fmt.Errorf("%w: %v", ErrCheckPanicked, r))
		}
	}()

	rc := &runContext{fd: &fd, record: rec, whitelist: e.whitelist}
	e.run(ctx, rc)

	logger.WithFields(logrus.Fields{
		"file":         fd.Name,
		"guessed_mime": rec.File.GuessedMime,
		"ratio":        rec.File.ConfidenceRatio,
		"malicious":    rec.File.Malicious,
		"block":        rec.Block,
		"attacks":      rec.AttackNames(),
	}).Debug("Detection finished")
	return rec
}

func (e *Engine) run(ctx context.Context, rc *runContext) {
	endRegion := tracing.StartRegion(ctx, "independent_checks")
	for _, check := range e.independent {
		if err := check.Run(ctx, rc); err != nil {
			logger.Debugf("Check %s failed for %s: %v", check.Name(), rc.fd.Name, err)
			rc.record.fail(fmt.Errorf("%s: %w", check.Name(), err))
		}
	}
	endRegion()

	if err := rc.requireSources(); err != nil {
		rc.record.fail(err)
		return
	}

	endRegion = tracing.StartRegion(ctx, "dependent_checks")
	defer endRegion()
	for _, check := range e.dependent {
		if err := check.Run(ctx, rc); err != nil {
			logger.Debugf("Check %s failed for %s: %v", check.Name(), rc.fd.Name, err)
			rc.record.fail(fmt.Errorf("%s: %w", check.Name(), err))
		}
	}
}

// DetectBatch inspects files independently and returns their records in
// input order. One file's failure never affects another's record.
func (e *Engine) DetectBatch(ctx context.Context, files []FileDescriptor) []*Record {
	records := make([]*Record, len(files))
	workers := e.concurrency
	if workers > len(files) {
		workers = len(files)
	}
	if workers <= 1 {
		for i := range files {
			records[i] = e.Detect(ctx, files[i])
		}
		return records
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				records[i] = e.Detect(ctx, files[i])
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return records
}
