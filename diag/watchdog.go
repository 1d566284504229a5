// Package diag dumps diagnostics when a scan stops making progress.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"filesentry/logger"
)

const filePrefix = "filesentry"

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

type Options struct {
	// StallThreshold is how long the progress count may stay unchanged
	// before a dump. Zero disables the watchdog.
	StallThreshold  time.Duration
	Dir             string
	GoroutineDump   bool
	ProgressFn      func() int64
	CurrentFn       func() []string
	DumpFlight      func(path string) error
	NowFn           func() time.Time
	ProfileLookupFn func(name string) profileWriter
}

// Watchdog polls a progress counter and, once it stalls, writes an event
// file naming the files in flight plus a goroutine profile and optional
// flight recorder trace.
type Watchdog struct {
	opts Options

	mu             sync.Mutex
	lastProgress   int64
	lastProgressAt time.Time
	lastDumpAt     time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWatchdog(opts Options) *Watchdog {
	if opts.NowFn == nil {
		opts.NowFn = time.Now
	}
	if opts.ProfileLookupFn == nil {
		opts.ProfileLookupFn = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Watchdog{opts: opts}
}

func (d *Watchdog) Start(ctx context.Context) {
	if d == nil || d.opts.StallThreshold <= 0 || d.opts.ProgressFn == nil || d.stopCh != nil {
		return
	}

	d.mu.Lock()
	d.lastProgress = d.opts.ProgressFn()
	d.lastProgressAt = d.opts.NowFn()
	d.lastDumpAt = time.Time{}
	d.mu.Unlock()

	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	interval := min(max(d.opts.StallThreshold/2, 250*time.Millisecond), 2*time.Second)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(d.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.checkStall(d.opts.NowFn())
			}
		}
	}()
}

// Close stops polling and, when enabled, writes a final goroutine profile
// so leaked workers show up after the scan.
func (d *Watchdog) Close() {
	if d == nil {
		return
	}
	if d.stopCh != nil {
		close(d.stopCh)
		<-d.doneCh
		d.stopCh = nil
		d.doneCh = nil
	}
	if d.opts.GoroutineDump {
		if _, err := d.writeProfile("goroutine", 2); err != nil {
			logger.Warnf("Goroutine profile dump failed: %v", err)
		}
	}
}

func (d *Watchdog) checkStall(now time.Time) {
	progress := d.opts.ProgressFn()

	d.mu.Lock()
	if progress != d.lastProgress || d.lastProgressAt.IsZero() {
		d.lastProgress = progress
		d.lastProgressAt = now
		d.mu.Unlock()
		return
	}
	stalledFor := now.Sub(d.lastProgressAt)
	dump := stalledFor >= d.opts.StallThreshold &&
		(d.lastDumpAt.IsZero() || now.Sub(d.lastDumpAt) >= d.opts.StallThreshold)
	if dump {
		d.lastDumpAt = now
	}
	d.mu.Unlock()

	if dump {
		logger.Warnf("No file finished inspection for %s", stalledFor.Round(time.Millisecond))
		if err := d.dumpStall(now, progress, stalledFor); err != nil {
			logger.Warnf("Stall dump failed: %v", err)
		}
	}
}

type stallEvent struct {
	Event      string   `json:"event"`
	Timestamp  string   `json:"timestamp"`
	Progress   int64    `json:"progress_count"`
	Threshold  int64    `json:"threshold_ms"`
	StalledFor int64    `json:"observed_stalled_ms"`
	InFlight   []string `json:"in_flight,omitempty"`
}

func (d *Watchdog) dumpStall(now time.Time, progress int64, stalledFor time.Duration) error {
	if err := os.MkdirAll(d.opts.Dir, 0755); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102-150405.000")
	event := stallEvent{
		Event:      "scan_stalled",
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
		Progress:   progress,
		Threshold:  d.opts.StallThreshold.Milliseconds(),
		StalledFor: stalledFor.Milliseconds(),
	}
	if d.opts.CurrentFn != nil {
		event.InFlight = d.opts.CurrentFn()
	}
	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	eventPath := filepath.Join(d.opts.Dir, fmt.Sprintf("%s-stall-%s.json", filePrefix, ts))
	if err := os.WriteFile(eventPath, b, 0600); err != nil {
		return err
	}

	if _, err := d.writeProfile("goroutine", 1); err != nil {
		logger.Warnf("Goroutine profile dump failed: %v", err)
	}
	if d.opts.DumpFlight != nil {
		tracePath := filepath.Join(d.opts.Dir, fmt.Sprintf("%s-flight-%s.out", filePrefix, ts))
		if err := d.opts.DumpFlight(tracePath); err != nil {
			logger.Warnf("Flight recorder dump failed: %v", err)
		}
	}
	return nil
}

func (d *Watchdog) writeProfile(name string, debug int) (string, error) {
	profile := d.opts.ProfileLookupFn(name)
	if profile == nil {
		return "", fmt.Errorf("pprof profile %q unavailable", name)
	}
	if err := os.MkdirAll(d.opts.Dir, 0755); err != nil {
		return "", err
	}
	ts := d.opts.NowFn().UTC().Format("20060102-150405.000")
	path := filepath.Join(d.opts.Dir, fmt.Sprintf("%s-%s-profile-%s.pprof", filePrefix, name, ts))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}
