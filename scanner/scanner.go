package scanner

import (
	"context"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"filesentry/config"
	"filesentry/detector"
	"filesentry/diag"
	"filesentry/logger"
	"filesentry/output"
	"filesentry/tracing"
	"filesentry/utils"
)

// Summary counts the outcome of one scan.
type Summary struct {
	Inspected int64
	Rejected  int64
	Blocked   int64
	Malicious int64
	Failed    int64
	Skipped   int64
}

// Flagged reports whether any inspected file was rejected.
func (s Summary) Flagged() bool { return s.Rejected > 0 }

type counters struct {
	inspected atomic.Int64
	rejected  atomic.Int64
	blocked   atomic.Int64
	malicious atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

func (c *counters) progress() int64 {
	return c.inspected.Load() + c.skipped.Load()
}

// inFlight tracks which file each worker is on, for stall reports.
type inFlight struct {
	mu    sync.Mutex
	paths map[int]string
}

func (f *inFlight) set(worker int, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == "" {
		delete(f.paths, worker)
		return
	}
	f.paths[worker] = path
}

func (f *inFlight) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.paths))
	for _, p := range f.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (c *counters) summary() Summary {
	return Summary{
		Inspected: c.inspected.Load(),
		Rejected:  c.rejected.Load(),
		Blocked:   c.blocked.Load(),
		Malicious: c.malicious.Load(),
		Failed:    c.failed.Load(),
		Skipped:   c.skipped.Load(),
	}
}

// Scan walks cfg.Paths and runs every matching regular file through the
// engine. Files are read and inspected by cfg.ConcurrencyLevel workers.
// Cancelling ctx stops the walk; files already queued are dropped.
func Scan(ctx context.Context, cfg *config.Config, engine *detector.Engine, w *output.Writer, metrics *output.Metrics) (Summary, error) {
	ctx, endTask := tracing.StartTask(ctx, "scan")
	defer endTask()

	sel := fileSelector{
		matcher: utils.NewPatternMatcher(cfg.IncludePatterns, cfg.ExcludePatterns),
		guard:   utils.NewPathGuard(cfg.Paths),
		maxSize: cfg.MaxFileSize,
	}

	var ioLimiter *rate.Limiter
	if cfg.MaxIOPerSecond > 0 {
		ioLimiter = rate.NewLimiter(rate.Limit(cfg.MaxIOPerSecond), cfg.MaxIOPerSecond)
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Inspecting files"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(cfg.Progress && progressVisible()),
		progressbar.OptionFullWidth(),
	)
	defer bar.Finish()

	workers := cfg.ConcurrencyLevel
	if workers < 1 {
		workers = 1
	}
	filesChan := make(chan fileScanTask, workers)
	var c counters
	current := &inFlight{paths: make(map[int]string, workers)}

	watchdog := diag.NewWatchdog(diag.Options{
		StallThreshold: cfg.StallThreshold,
		Dir:            cfg.DiagDir,
		GoroutineDump:  cfg.DiagGoroutines,
		ProgressFn:     c.progress,
		CurrentFn:      current.list,
		DumpFlight:     flightDumper(cfg),
	})
	watchdog.Start(ctx)
	defer watchdog.Close()

	var walkErr error
	go func() {
		defer close(filesChan)
		var tree walker = stackWalker{}
		for _, startPath := range cfg.Paths {
			err := tree.Walk(ctx, startPath, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					logger.Warnf("Failed to access %s: %v", path, err)
					return nil
				}
				task, verdict := sel.selectEntry(path, d)
				switch verdict {
				case entryIgnored:
					return nil
				case entrySkipped:
					c.skipped.Add(1)
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case filesChan <- task:
					if ioLimiter != nil {
						if err := ioLimiter.Wait(ctx); err != nil {
							return err
						}
					}
				}
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					walkErr = ctx.Err()
					return
				}
				logger.Warnf("Error walking path %s: %v", startPath, err)
			}
		}
	}()

	var wg sync.WaitGroup
	for worker := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range filesChan {
				select {
				case <-ctx.Done():
					continue
				default:
				}
				current.set(worker, task.path)
				inspectFile(ctx, task.path, task.info, cfg, engine, w, &c)
				current.set(worker, "")
				_ = bar.Add(1)
			}
		}()
	}
	wg.Wait()

	summary := c.summary()
	if metrics != nil {
		metrics.TotalFiles = int(summary.Inspected)
	}
	logger.Infof("Inspected %d files: %d rejected, %d skipped", summary.Inspected, summary.Rejected, summary.Skipped)
	return summary, walkErr
}

func flightDumper(cfg *config.Config) func(string) error {
	if !cfg.TraceFlight {
		return nil
	}
	return tracing.WriteFlightRecorder
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("FILESENTRY_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
