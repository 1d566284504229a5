package diag

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filesentry/logger"
)

func init() {
	logger.Init("error")
}

type fakeProfile struct {
	content string
}

func (f fakeProfile) WriteTo(w io.Writer, debug int) error {
	_, err := io.WriteString(w, f.content)
	return err
}

func fakeLookup(name string) profileWriter {
	if name == "goroutine" {
		return fakeProfile{content: "goroutine-profile"}
	}
	return nil
}

func TestCheckStallDumpsArtifacts(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	d := NewWatchdog(Options{
		StallThreshold:  2 * time.Second,
		Dir:             dir,
		ProgressFn:      func() int64 { return 7 },
		CurrentFn:       func() []string { return []string{"/srv/uploads/huge.pdf"} },
		DumpFlight:      func(path string) error { return os.WriteFile(path, []byte("flight"), 0600) },
		NowFn:           func() time.Time { return now },
		ProfileLookupFn: fakeLookup,
	})
	d.lastProgress = 7
	d.lastProgressAt = now

	d.checkStall(now.Add(3 * time.Second))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	var eventPath string
	var foundFlight, foundProfile bool
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasPrefix(name, "filesentry-stall-") && strings.HasSuffix(name, ".json"):
			eventPath = filepath.Join(dir, name)
		case strings.HasPrefix(name, "filesentry-flight-"):
			foundFlight = true
		case strings.HasPrefix(name, "filesentry-goroutine-profile-"):
			foundProfile = true
		}
	}
	if eventPath == "" || !foundFlight || !foundProfile {
		t.Fatalf("missing artifacts in %v", entries)
	}

	data, err := os.ReadFile(eventPath)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var event stallEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Progress != 7 || event.StalledFor != 3000 || len(event.InFlight) != 1 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestCheckStallSkipsWhileProgressing(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	progress := int64(0)

	d := NewWatchdog(Options{
		StallThreshold:  time.Second,
		Dir:             dir,
		ProgressFn:      func() int64 { return progress },
		NowFn:           func() time.Time { return now },
		ProfileLookupFn: fakeLookup,
	})
	d.lastProgressAt = now

	for i := 1; i <= 5; i++ {
		progress++
		d.checkStall(now.Add(time.Duration(i) * 2 * time.Second))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no dumps, got %d", len(entries))
	}
}

func TestWriteProfileUnavailable(t *testing.T) {
	d := NewWatchdog(Options{Dir: t.TempDir(), ProfileLookupFn: fakeLookup})
	if _, err := d.writeProfile("heap-missing", 0); err == nil {
		t.Fatal("expected unavailable profile to return error")
	}
}

func TestCloseWritesGoroutineProfileWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	d := NewWatchdog(Options{Dir: dir, GoroutineDump: true, ProfileLookupFn: fakeLookup})
	d.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "filesentry-goroutine-profile-*.pprof"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 goroutine profile, got %d", len(matches))
	}
}

func TestStartDisabledWithoutThreshold(t *testing.T) {
	d := NewWatchdog(Options{ProgressFn: func() int64 { return 0 }})
	d.Start(t.Context())
	if d.stopCh != nil {
		t.Fatal("expected watchdog to stay idle")
	}
	d.Close()
}
