package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filesentry/config"
	"filesentry/detector"
	"filesentry/logger"
	"filesentry/output"
	"filesentry/scanner"
	"filesentry/tracing"
	"filesentry/upload"
	"filesentry/version"
)

const (
	exitError   = 1
	exitFlagged = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return exitError
	}

	// Initialize logger
	logger.Init(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		logger.SetJSON()
	}
	logger.Debugf("filesentry %s", version.Version)

	if err := tracing.Start(cfg.TraceFile); err != nil {
		logger.Warnf("Failed to start trace: %v", err)
	} else {
		defer func() {
			if err := tracing.Stop(); err != nil {
				logger.Warnf("Failed to close trace: %v", err)
			}
		}()
	}

	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	engineOpts, err := cfg.EngineOptions()
	if err != nil {
		logger.Errorf("Invalid detection settings: %v", err)
		return exitError
	}
	engine, err := detector.NewEngine(engineOpts...)
	if err != nil {
		logger.Errorf("Failed to build detection engine: %v", err)
		return exitError
	}

	metrics := output.Metrics{
		StartTime: time.Now().UTC().Format(time.RFC3339),
	}
	writer, err := output.New(cfg, &metrics)
	if err != nil {
		logger.Errorf("Failed to initialize output: %v", err)
		return exitError
	}
	defer writer.Close()

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel, &metrics, writer, cfg.TraceFlight, cfg.TraceFlightFile)

	flagged := false
	if len(cfg.Paths) > 0 {
		summary, err := scanner.Scan(ctx, cfg, engine, writer, &metrics)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("Scanning failed: %v", err)
			return exitError
		}
		printSummary(summary)
		flagged = summary.Flagged()
	}

	if cfg.ListenAddr != "" {
		if err := serve(ctx, cfg, engine, writer); err != nil {
			logger.Errorf("Server failed: %v", err)
			return exitError
		}
	}

	metrics.EndTime = time.Now().UTC().Format(time.RFC3339)
	writer.SetMetrics(metrics)

	if flagged {
		return exitFlagged
	}
	return 0
}

// serve runs the upload guard in front of a handler that accepts whatever
// gets through, until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, engine *detector.Engine, w *output.Writer) error {
	guard, err := upload.NewGuard(engine, upload.OptionsFromConfig(cfg), w)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/", guard.Middleware(http.HandlerFunc(acceptUpload)))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func acceptUpload(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func printSummary(s scanner.Summary) {
	fmt.Printf("Inspected: %d  Rejected: %d  Blocked: %d  Malicious: %d  Failed: %d  Skipped: %d\n",
		s.Inspected, s.Rejected, s.Blocked, s.Malicious, s.Failed, s.Skipped)
}

func handleSignals(cancelFunc context.CancelFunc, metrics *output.Metrics, w *output.Writer, traceFlight bool, traceFlightFile string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	handleSignalEvent(cancelFunc, metrics, w, traceFlight, traceFlightFile, sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, metrics *output.Metrics, w *output.Writer, traceFlight bool, traceFlightFile string, sigChan <-chan os.Signal) {
	<-sigChan
	logger.Info("Interrupt signal received. Shutting down...")

	metrics.EndTime = time.Now().UTC().Format(time.RFC3339)
	w.SetMetrics(*metrics)

	if traceFlight {
		if err := tracing.WriteFlightRecorder(traceFlightFile); err != nil {
			logger.Warnf("Failed to write flight recorder: %v", err)
		}
		tracing.StopFlightRecorder()
	}

	cancelFunc()
}
