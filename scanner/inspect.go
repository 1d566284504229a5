package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"filesentry/config"
	"filesentry/detector"
	"filesentry/fuzzy"
	"filesentry/hasher"
	"filesentry/logger"
	"filesentry/metadata"
	"filesentry/mimetypes"
	"filesentry/output"
	"filesentry/tracing"
)

const fallbackContentType = "application/octet-stream"

func inspectFile(ctx context.Context, path string, info os.FileInfo, cfg *config.Config, engine *detector.Engine, w *output.Writer, c *counters) {
	ctx, endTask := tracing.StartTask(ctx, "inspect_file")
	defer endTask()
	tracing.Log(ctx, "file", path)

	endRegion := tracing.StartRegion(ctx, "read_content")
	content, err := readFileContentWithMode(path, cfg.MaxFileSize, cfg.ContentReadMode, cfg.MmapMinSize)
	endRegion()
	if err != nil {
		logger.Warnf("Failed to read %s: %v", path, err)
		c.skipped.Add(1)
		return
	}

	fd := detector.FileDescriptor{
		Name:                filepath.Base(path),
		Size:                int64(len(content)),
		Content:             content,
		DeclaredContentType: declaredContentType(path, engine),
	}
	var meta map[string]string
	if cfg.ExtractMetadata {
		meta = metadata.Extract(content, engine.SignatureMime(content), cfg.MetadataMaxBytes)
		fd.EmbeddedMetadata = meta
	}

	rec := engine.Detect(ctx, fd)
	rejected := rec.Rejected(cfg.BlockMalicious)
	c.inspected.Add(1)
	if rejected {
		c.rejected.Add(1)
	}
	if rec.Blocked() {
		c.blocked.Add(1)
	}
	if rec.Malicious() {
		c.malicious.Add(1)
	}
	if rec.Failed() {
		c.failed.Add(1)
	}
	if w == nil {
		return
	}
	w.Observe(rec.Blocked(), rec.Malicious(), rec.Failed())

	if !output.ShouldReport(cfg.UploadLogMode, rejected) {
		return
	}
	entry := output.NewEntry(output.SourceFile, rec)
	entry.Path = path
	entry.Metadata = meta
	endRegion = tracing.StartRegion(ctx, "hash_content")
	entry.Hashes = hasher.Compute(content, cfg.HashAlgorithms)
	if len(cfg.FuzzyAlgorithms) > 0 {
		entry.FuzzyHashes = fuzzy.Compute(content, cfg.FuzzyAlgorithms)
	}
	endRegion()
	stampFileTimes(&entry, path, info)
	if err := w.Write(entry); err != nil {
		logger.Warnf("Failed to report %s: %v", path, err)
	}
}

// declaredContentType stands in for a client-supplied type when the file
// comes from disk: the engine's type for its final extension.
func declaredContentType(path string, engine *detector.Engine) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return fallbackContentType
	}
	if mime := engine.ExtensionMime(ext); mime != mimetypes.Unknown {
		return mime
	}
	return fallbackContentType
}
