package tracing

import (
	"errors"
	"os"
	"runtime/trace"
	"sync"
	"time"
)

// DefaultTraceFile receives the execution trace when no path is configured.
const DefaultTraceFile = "filesentry.trace"

var ErrTraceRunning = errors.New("execution trace already running")

var (
	flightMu       sync.Mutex
	flightRecorder *trace.FlightRecorder
)

// StartFlightRecorder keeps a rolling in-memory trace window so that a
// snapshot can be written on shutdown or when a scan stalls.
func StartFlightRecorder(maxBytes uint64, minAge time.Duration) error {
	flightMu.Lock()
	defer flightMu.Unlock()
	if flightRecorder != nil {
		return nil
	}
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MaxBytes: maxBytes,
		MinAge:   minAge,
	})
	if err := fr.Start(); err != nil {
		return err
	}
	flightRecorder = fr
	return nil
}

func StopFlightRecorder() {
	flightMu.Lock()
	defer flightMu.Unlock()
	if flightRecorder != nil {
		flightRecorder.Stop()
		flightRecorder = nil
	}
}

// WriteFlightRecorder writes the current window to path. It does nothing
// when the recorder is not running.
func WriteFlightRecorder(path string) error {
	flightMu.Lock()
	defer flightMu.Unlock()
	if flightRecorder == nil || !flightRecorder.Enabled() {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = flightRecorder.WriteTo(f)
	return err
}
