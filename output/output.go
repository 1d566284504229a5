package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"filesentry/config"
	"filesentry/logger"
)

const SchemaVersion = "1.0"

const (
	flushEveryRecords = 64
	flushMaxInterval  = 2 * time.Second
)

type Metrics struct {
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	TotalFiles     int    `json:"total_files"`
	FilesInspected int64  `json:"files_inspected"`
	FilesReported  int64  `json:"files_reported"`
	FilesBlocked   int64  `json:"files_blocked"`
	FilesMalicious int64  `json:"files_malicious"`
	FilesFailed    int64  `json:"files_failed"`
}

type ndjsonRecord struct {
	RecordType    string `json:"record_type"`
	SchemaVersion string `json:"schema_version"`
	Payload       any    `json:"payload"`
}

// Writer serializes report entries to a rotating file and, when configured,
// to an OpenTelemetry log exporter. It is safe for concurrent use.
type Writer struct {
	file    *os.File
	buf     *bufio.Writer
	csvw    *csv.Writer
	mu      sync.Mutex
	metrics *Metrics
	otel    *otelLogger
	base    string
	ext     string
	index   int
	format  string
	maxSize int64

	recordsSinceSync int
	lastSyncAt       time.Time

	filesInspected atomic.Int64
	filesReported  atomic.Int64
	filesBlocked   atomic.Int64
	filesMalicious atomic.Int64
	filesFailed    atomic.Int64
}

func New(cfg *config.Config, m *Metrics) (*Writer, error) {
	ext := filepath.Ext(cfg.OutputFile)
	base := strings.TrimSuffix(cfg.OutputFile, ext)
	format := strings.ToLower(cfg.OutputFormat)
	if format == "" {
		format = "json"
	}

	w := &Writer{
		metrics: m,
		base:    base,
		ext:     ext,
		format:  format,
		maxSize: cfg.MaxOutputFileSize,
	}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) openFile() error {
	name := w.base + w.ext
	if w.index > 0 {
		name = fmt.Sprintf("%s.%d%s", w.base, w.index, w.ext)
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 256*1024)
	w.csvw = nil
	w.recordsSinceSync = 0
	w.lastSyncAt = time.Now()

	if w.format == "csv" {
		w.csvw = csv.NewWriter(w.buf)
		if err := w.csvw.Write(csvHeader); err != nil {
			return err
		}
		w.csvw.Flush()
		if err := w.csvw.Error(); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

// Observe counts one inspected file, whether or not it ends up reported.
func (w *Writer) Observe(blocked, malicious, failed bool) {
	w.filesInspected.Add(1)
	if blocked {
		w.filesBlocked.Add(1)
	}
	if malicious {
		w.filesMalicious.Add(1)
	}
	if failed {
		w.filesFailed.Add(1)
	}
}

// Write appends one report entry.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writeRecordLocked("file", e); err != nil {
		logger.Warnf("Failed to write report for %s: %v", e.Name(), err)
		return err
	}
	w.filesReported.Add(1)
	if w.otel != nil {
		w.otel.Emit("file", e)
	}

	if w.maxSize > 0 {
		if info, err := w.file.Stat(); err == nil && info.Size() >= w.maxSize {
			w.rotate()
		}
	}
	return nil
}

func (w *Writer) writeRecordLocked(recordType string, payload any) error {
	switch w.format {
	case "csv":
		if err := w.csvw.Write(csvRow(recordType, payload)); err != nil {
			return err
		}
		w.csvw.Flush()
		if err := w.csvw.Error(); err != nil {
			return err
		}
	default:
		line, err := encodeRecord(recordType, payload)
		if err != nil {
			return err
		}
		if _, err := w.buf.Write(line); err != nil {
			return err
		}
	}
	w.recordsSinceSync++
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.shouldSync() {
		_ = w.file.Sync()
		w.recordsSinceSync = 0
		w.lastSyncAt = time.Now()
	}
	return nil
}

func (w *Writer) shouldSync() bool {
	if w.recordsSinceSync == 1 || w.recordsSinceSync >= flushEveryRecords {
		return true
	}
	return time.Since(w.lastSyncAt) >= flushMaxInterval
}

// SetMetrics replaces the metrics block; counters tracked by the writer win
// over the ones in m.
func (w *Writer) SetMetrics(m Metrics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics = &m
	w.syncCountersLocked()
}

func (w *Writer) syncCountersLocked() {
	if w.metrics == nil {
		return
	}
	w.metrics.FilesInspected = w.filesInspected.Load()
	w.metrics.FilesReported = w.filesReported.Load()
	w.metrics.FilesBlocked = w.filesBlocked.Load()
	w.metrics.FilesMalicious = w.filesMalicious.Load()
	w.metrics.FilesFailed = w.filesFailed.Load()
}

// Snapshot returns the current counters.
func (w *Writer) Snapshot() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	var m Metrics
	if w.metrics != nil {
		m = *w.metrics
	}
	m.FilesInspected = w.filesInspected.Load()
	m.FilesReported = w.filesReported.Load()
	m.FilesBlocked = w.filesBlocked.Load()
	m.FilesMalicious = w.filesMalicious.Load()
	m.FilesFailed = w.filesFailed.Load()
	return m
}

func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metrics != nil {
		w.syncCountersLocked()
		if w.metrics.EndTime == "" {
			w.metrics.EndTime = time.Now().UTC().Format(time.RFC3339)
		}
		if err := w.writeRecordLocked("metrics", w.metrics); err != nil {
			logger.Warnf("Failed to write metrics: %v", err)
		}
		if w.otel != nil {
			w.otel.Emit("metrics", w.metrics)
		}
	}
	w.closeFile()
	if w.otel != nil {
		w.otel.Shutdown()
	}
}

func (w *Writer) rotate() {
	w.closeFile()
	w.index++
	if err := w.openFile(); err != nil {
		logger.Errorf("Failed to rotate report file: %v", err)
	}
}

func (w *Writer) closeFile() {
	if w.file == nil {
		return
	}
	if w.csvw != nil {
		w.csvw.Flush()
	}
	_ = w.buf.Flush()
	_ = w.file.Sync()
	_ = w.file.Close()
	w.file = nil
}

var csvHeader = []string{
	"record_type",
	"schema_version",
	"id",
	"timestamp",
	"source",
	"path",
	"request_id",
	"name",
	"size",
	"request_header_mime",
	"extension_mime",
	"signature_mime",
	"guessed_mime",
	"sniffed_mime",
	"confidence_ratio",
	"malicious",
	"block",
	"block_reasons",
	"recognized_attacks",
	"checks_done",
	"sanitization_tasks",
	"error",
	"hashes",
	"fuzzy_hashes",
	"metadata",
	"mod_time",
	"creation_time",
	"access_time",
	"change_time",
	"metrics",
}

func csvRow(recordType string, payload any) []string {
	row := make([]string, len(csvHeader))
	row[0] = recordType
	row[1] = SchemaVersion
	switch v := payload.(type) {
	case Entry:
		row[2] = v.ID
		row[3] = v.Timestamp
		row[4] = v.Source
		row[5] = v.Path
		row[6] = v.RequestID
		if rec := v.Record; rec != nil {
			row[7] = rec.File.Name
			row[8] = strconv.FormatInt(rec.File.Size, 10)
			row[9] = rec.File.DeclaredMime
			row[10] = rec.File.ExtensionMime
			row[11] = rec.File.SignatureMime
			row[12] = rec.File.GuessedMime
			row[13] = rec.File.SniffedMime
			row[14] = strconv.FormatFloat(rec.File.ConfidenceRatio, 'f', -1, 64)
			row[15] = strconv.FormatBool(rec.File.Malicious)
			row[16] = strconv.FormatBool(rec.Block)
			row[17] = jsonString(rec.BlockReasons)
			row[18] = jsonString(rec.AttackNames())
			row[19] = jsonString(rec.CheckNames())
			row[20] = jsonString(rec.TaskNames())
			row[21] = rec.Error
		}
		row[22] = jsonString(v.Hashes)
		row[23] = jsonString(v.FuzzyHashes)
		row[24] = jsonString(v.Metadata)
		row[25] = v.ModTime
		row[26] = v.CreationTime
		row[27] = v.AccessTime
		row[28] = v.ChangeTime
	default:
		row[29] = jsonString(v)
	}
	return row
}

func jsonString(value any) string {
	if value == nil {
		return ""
	}
	bytes, err := encodeValue(value)
	if err != nil || string(bytes) == "null" {
		return ""
	}
	return string(bytes)
}
