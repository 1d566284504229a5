//go:build trace

package tracing

import (
	"context"
	"os"
	"runtime/trace"
	"sync"
)

var (
	traceMu   sync.Mutex
	traceFile *os.File
)

// Start begins an execution trace written to path, or DefaultTraceFile when
// path is empty. Only one trace can run per process.
func Start(path string) error {
	traceMu.Lock()
	defer traceMu.Unlock()
	if traceFile != nil {
		return ErrTraceRunning
	}
	if path == "" {
		path = DefaultTraceFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	traceFile = f
	return nil
}

// Stop ends the trace and closes its file.
func Stop() error {
	traceMu.Lock()
	defer traceMu.Unlock()
	if traceFile == nil {
		return nil
	}
	trace.Stop()
	err := traceFile.Close()
	traceFile = nil
	return err
}

// StartTask opens a named task such as a scan, an upload request or a
// single detection. The returned function ends it.
func StartTask(ctx context.Context, name string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, name)
	return ctx, task.End
}

func StartRegion(ctx context.Context, name string) func() {
	return trace.StartRegion(ctx, name).End
}

// Log attaches an annotation to the task in ctx. It is skipped when no
// tracer is collecting.
func Log(ctx context.Context, category, message string) {
	if !trace.IsEnabled() {
		return
	}
	trace.Log(ctx, category, message)
}
