//go:build !trace

package tracing

import "context"

// Without the trace tag every annotation compiles to a no-op so the
// detection hot path pays nothing.

func Start(path string) error { return nil }

func Stop() error { return nil }

func StartTask(ctx context.Context, name string) (context.Context, func()) {
	return ctx, func() {}
}

func StartRegion(ctx context.Context, name string) func() { return func() {} }

func Log(ctx context.Context, category, message string) {}
