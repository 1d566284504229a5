package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"filesentry/config"
	"filesentry/detector"
	"filesentry/logger"
)

func init() {
	logger.Init("error")
}

type ndjsonTestRecord struct {
	RecordType    string          `json:"record_type"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

func testRecord(name string, block, malicious bool) *detector.Record {
	rec := &detector.Record{
		File: detector.FileFacts{
			Name:                name,
			Size:                42,
			DeclaredMime:        "image/jpeg",
			ExtensionMime:       "image/jpeg",
			SignatureMime:       "image/jpeg",
			GuessedMime:         "image/jpeg",
			SecondaryExtensions: []string{},
			Malicious:           malicious,
			ConfidenceRatio:     1,
		},
		Block:        block,
		BlockReasons: []string{},
	}
	if block {
		rec.BlockReasons = append(rec.BlockReasons, "metadata_injection")
	}
	return rec
}

func TestOutputLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")
	cfg := &config.Config{OutputFile: path, OutputFormat: "json"}
	w, err := New(cfg, &Metrics{StartTime: "2026-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	entry := NewEntry(SourceFile, testRecord("photo.jpg", false, false))
	entry.Path = "/srv/photo.jpg"
	entry.Hashes = map[string]string{"sha256": "abc"}
	w.Observe(false, false, false)
	if err := w.Write(entry); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	records := readNDJSONRecords(t, path)
	if len(records) != 2 {
		t.Fatalf("expected file and metrics records, got %d", len(records))
	}
	if records[0].RecordType != "file" || records[1].RecordType != "metrics" {
		t.Fatalf("unexpected record types: %s, %s", records[0].RecordType, records[1].RecordType)
	}
	if records[0].SchemaVersion != SchemaVersion {
		t.Fatalf("unexpected schema version: %s", records[0].SchemaVersion)
	}

	var got Entry
	if err := json.Unmarshal(records[0].Payload, &got); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if got.ID != entry.ID || got.Path != entry.Path || got.Record == nil || got.Record.File.Name != "photo.jpg" {
		t.Fatalf("entry did not round-trip: %+v", got)
	}

	var m Metrics
	if err := json.Unmarshal(records[1].Payload, &m); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if m.FilesInspected != 1 || m.FilesReported != 1 || m.EndTime == "" {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestWriteConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.ndjson")
	w, err := New(&config.Config{OutputFile: path}, &Metrics{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = w.Write(NewEntry(SourceFile, testRecord("file"+strconv.Itoa(i)+".jpg", false, false)))
		}(i)
	}
	wg.Wait()
	w.Close()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range 5 {
		if !strings.Contains(string(content), "file"+strconv.Itoa(i)+".jpg") {
			t.Fatalf("missing entry %d", i)
		}
	}
	if records := readNDJSONRecords(t, path); len(records) != 6 {
		t.Fatalf("expected 5 entries plus metrics, got %d", len(records))
	}
}

func TestOutputRotation(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out.ndjson")
	cfg := &config.Config{OutputFile: base, OutputFormat: "json", MaxOutputFileSize: 200}
	w, err := New(cfg, &Metrics{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	for i := 0; i < 5; i++ {
		entry := NewEntry(SourceFile, testRecord(strings.Repeat("a", 150)+".txt", false, false))
		if err := w.Write(entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	w.Close()

	if _, err := os.Stat(base); err != nil {
		t.Fatalf("missing base file: %v", err)
	}
	if _, err := os.Stat(strings.TrimSuffix(base, ".ndjson") + ".1.ndjson"); err != nil {
		t.Fatalf("rotation file not created")
	}
}

func TestOutputCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := New(&config.Config{OutputFile: path, OutputFormat: "CSV"}, &Metrics{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	entry := NewEntry(SourceUpload, testRecord("evil.jpg", true, false))
	entry.RequestID = "req-1"
	if err := w.Write(entry); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header, file and metrics rows, got %d", len(rows))
	}
	if len(rows[0]) != len(csvHeader) || len(rows[1]) != len(csvHeader) {
		t.Fatal("row width must match header")
	}
	row := rows[1]
	if row[0] != "file" || row[4] != SourceUpload || row[6] != "req-1" || row[7] != "evil.jpg" {
		t.Fatalf("unexpected file row: %v", row)
	}
	if row[16] != "true" || !strings.Contains(row[17], "metadata_injection") {
		t.Fatalf("block columns not populated: %v", row)
	}
	if row[22] != "" {
		t.Fatalf("absent hashes should be empty, got %q", row[22])
	}
	if rows[2][0] != "metrics" || rows[2][len(csvHeader)-1] == "" {
		t.Fatalf("unexpected metrics row: %v", rows[2])
	}
}

func TestObserveAndSnapshot(t *testing.T) {
	w := &Writer{}
	w.Observe(true, false, false)
	w.Observe(false, true, false)
	w.Observe(true, true, true)
	m := w.Snapshot()
	if m.FilesInspected != 3 || m.FilesBlocked != 2 || m.FilesMalicious != 2 || m.FilesFailed != 1 {
		t.Fatalf("unexpected counters: %+v", m)
	}
}

func TestSetMetricsUsesAtomicCounters(t *testing.T) {
	w := &Writer{}
	w.filesInspected.Store(3)
	w.filesReported.Store(2)

	w.SetMetrics(Metrics{TotalFiles: 10, FilesInspected: 99})
	if w.metrics.TotalFiles != 10 {
		t.Fatalf("expected TotalFiles=10, got %d", w.metrics.TotalFiles)
	}
	if w.metrics.FilesInspected != 3 || w.metrics.FilesReported != 2 {
		t.Fatalf("expected writer counters to win, got %+v", *w.metrics)
	}
}

func TestShouldSync(t *testing.T) {
	w := &Writer{recordsSinceSync: 1, lastSyncAt: time.Now()}
	if !w.shouldSync() {
		t.Fatal("expected sync on first record")
	}

	w.recordsSinceSync = flushEveryRecords
	if !w.shouldSync() {
		t.Fatal("expected sync at flush threshold")
	}

	w.recordsSinceSync = 2
	w.lastSyncAt = time.Now().Add(-flushMaxInterval - time.Millisecond)
	if !w.shouldSync() {
		t.Fatal("expected time-based sync")
	}

	w.recordsSinceSync = 2
	w.lastSyncAt = time.Now()
	if w.shouldSync() {
		t.Fatal("expected no sync when below thresholds")
	}
}

func TestShouldReport(t *testing.T) {
	cases := []struct {
		mode    string
		blocked bool
		want    bool
	}{
		{ModeSuccess, false, true},
		{ModeSuccess, true, false},
		{ModeBlocked, true, true},
		{ModeBlocked, false, false},
		{ModeAlways, true, true},
		{ModeAlways, false, true},
		{ModeNever, true, false},
		{"bogus", true, false},
	}
	for _, tc := range cases {
		if got := ShouldReport(tc.mode, tc.blocked); got != tc.want {
			t.Errorf("ShouldReport(%q, %t) = %t, want %t", tc.mode, tc.blocked, got, tc.want)
		}
	}
	if len(Modes()) != 4 {
		t.Fatalf("unexpected modes: %v", Modes())
	}
}

func TestNewEntry(t *testing.T) {
	a := NewEntry(SourceFile, testRecord("a.jpg", false, false))
	b := NewEntry(SourceFile, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("entries need distinct ids: %q %q", a.ID, b.ID)
	}
	if _, err := time.Parse(time.RFC3339Nano, a.Timestamp); err != nil {
		t.Fatalf("bad timestamp %q: %v", a.Timestamp, err)
	}
	if a.Name() != "a.jpg" || b.Name() != "" {
		t.Fatal("Name should come from the record")
	}
}

func readNDJSONRecords(t *testing.T, path string) []ndjsonTestRecord {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var records []ndjsonTestRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec ndjsonTestRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode ndjson: %v", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan ndjson: %v", err)
	}
	return records
}
