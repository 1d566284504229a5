package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shirou/gopsutil/v4/cpu"

	"filesentry/detector"
	"filesentry/fuzzy"
	"filesentry/hasher"
	"filesentry/markers"
	"filesentry/mimetypes"
	"filesentry/utils"
	"filesentry/version"
)

type Config struct {
	Paths                []string          `json:"paths"`
	IncludePatterns      []string          `json:"include_patterns"`
	ExcludePatterns      []string          `json:"exclude_patterns"`
	SensitivityThreshold float64           `json:"sensitivity_threshold" validate:"gte=0,lte=1"`
	Whitelist            string            `json:"whitelist" validate:"required"`
	ExtraMimes           []string          `json:"extra_mimes" validate:"dive,contains=/"`
	MetadataMarkers      []string          `json:"metadata_markers"`
	ExtractMetadata      bool              `json:"extract_metadata"`
	MetadataMaxBytes     int64             `json:"metadata_max_bytes" validate:"gte=0"`
	MaxFileSize          int64             `json:"max_file_size" validate:"gte=0"`
	ConcurrencyLevel     int               `json:"concurrency" validate:"gte=1"`
	MaxIOPerSecond       int               `json:"max_io_per_second" validate:"gte=0"`
	ContentReadMode      string            `json:"content_read_mode" validate:"oneof=auto stream mmap"`
	MmapMinSize          int64             `json:"mmap_min_size" validate:"gte=0"`
	HashAlgorithms       []string          `json:"hash_algorithms"`
	FuzzyAlgorithms      []string          `json:"fuzzy_hashes"`
	OutputFormat         string            `json:"output_format" validate:"oneof=json csv"`
	OutputFile           string            `json:"output_file" validate:"required"`
	MaxOutputFileSize    int64             `json:"max_output_file_size" validate:"gte=0"`
	UploadLogMode        string            `json:"upload_log_mode" validate:"oneof=success blocked always never"`
	BlockMalicious       bool              `json:"block_malicious"`
	ListenAddr           string            `json:"listen_addr"`
	MaxUploadBytes       int64             `json:"max_upload_bytes" validate:"gte=1"`
	LogLevel             string            `json:"log_level" validate:"oneof=debug info warn error fatal panic"`
	LogFormat            string            `json:"log_format" validate:"oneof=text json"`
	Progress             bool              `json:"progress"`
	OtelEndpoint         string            `json:"otel_endpoint" validate:"omitempty,url"`
	OtelFromEnv          bool              `json:"otel_from_env"`
	OtelHeaders          map[string]string `json:"otel_headers"`
	OtelServiceName      string            `json:"otel_service_name"`
	OtelTimeout          time.Duration     `json:"otel_timeout" validate:"gte=0"`
	OtelExportPaths      bool              `json:"otel_export_paths"`
	OtelExportMetadata   bool              `json:"otel_export_metadata"`
	TraceFile            string            `json:"trace_file"`
	TraceFlight          bool              `json:"trace_flight"`
	TraceFlightFile      string            `json:"trace_flight_file"`
	TraceFlightMaxBytes  uint64            `json:"trace_flight_max_bytes"`
	TraceFlightMinAge    time.Duration     `json:"trace_flight_min_age" validate:"gte=0"`
	StallThreshold       time.Duration     `json:"stall_threshold" validate:"gte=0"`
	DiagDir              string            `json:"diag_dir"`
	DiagGoroutines       bool              `json:"diag_goroutines"`
	ConfigFile           string            `json:"config_file"`
	ConcurrencySet       bool              `json:"-"`
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// defaultConcurrency is one worker per logical CPU.
func defaultConcurrency() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	now := time.Now().UTC()
	return &Config{
		Paths:                []string{},
		IncludePatterns:      []string{},
		ExcludePatterns:      []string{},
		SensitivityThreshold: 0.98,
		Whitelist:            mimetypes.DefaultPreset,
		ExtraMimes:           []string{},
		MetadataMarkers:      []string{},
		ExtractMetadata:      true,
		MetadataMaxBytes:     1 * 1024 * 1024,
		MaxFileSize:          10485760,
		ConcurrencyLevel:     defaultConcurrency(),
		MaxIOPerSecond:       1000,
		ContentReadMode:      "auto",
		MmapMinSize:          128 * 1024,
		HashAlgorithms:       []string{"sha256"},
		FuzzyAlgorithms:      []string{},
		OutputFormat:         "json",
		OutputFile:           fmt.Sprintf("filesentry-%s-%d.ndjson", now.Format("20060102-150405"), now.Unix()),
		MaxOutputFileSize:    104857600,
		UploadLogMode:        "blocked",
		BlockMalicious:       true,
		MaxUploadBytes:       32 * 1024 * 1024,
		LogLevel:             "info",
		LogFormat:            "text",
		Progress:             true,
		OtelHeaders:          map[string]string{},
		OtelServiceName:      "filesentry",
		OtelTimeout:          5 * time.Second,
		TraceFlightFile:      "trace-flight.out",
		DiagDir:              "diagnostics",
	}
}

func LoadConfig() (*Config, error) {
	cfg := Default()

	paths := flag.String("path", "", "Comma-separated list of files or directories to inspect (default: current directory unless -listen is set).")
	includes := flag.String("include", "", "Comma-separated list of include patterns (default: none).")
	excludes := flag.String("exclude", "", "Comma-separated list of exclude patterns (default: none).")
	threshold := flag.Float64("sensitivity", cfg.SensitivityThreshold, fmt.Sprintf("Confidence ratio below which a file is flagged malicious (default: %g).", cfg.SensitivityThreshold))
	whitelist := flag.String("whitelist", cfg.Whitelist, fmt.Sprintf("Whitelist preset: %s (default: %s).", strings.Join(mimetypes.PresetNames(), ", "), cfg.Whitelist))
	extraMimes := flag.String("extra-mimes", "", "Comma-separated MIME types added to the whitelist preset (default: none).")
	metadataMarkers := flag.String("metadata-markers", "", "Comma-separated metadata injection markers replacing the built-in list (default: built-in).")
	extractMetadata := flag.Bool("extract-metadata", cfg.ExtractMetadata, fmt.Sprintf("Extract embedded EXIF/PDF/Office metadata for injection screening (default: %t).", cfg.ExtractMetadata))
	metadataMaxBytes := flag.Int64("metadata-max-bytes", cfg.MetadataMaxBytes, fmt.Sprintf("Maximum bytes metadata parsers may read per file (default: %d, 0 means unlimited).", cfg.MetadataMaxBytes))
	maxFileSize := flag.Int64("max-file-size", cfg.MaxFileSize, fmt.Sprintf("Maximum file size to inspect in bytes (default: %d, 0 means unlimited).", cfg.MaxFileSize))
	concurrency := flag.Int("concurrency", cfg.ConcurrencyLevel, "Number of files inspected in parallel (default: logical CPU count).")
	maxIO := flag.Int("max-io-per-second", cfg.MaxIOPerSecond, fmt.Sprintf("Maximum file reads per second (default: %d, 0 means unlimited).", cfg.MaxIOPerSecond))
	contentReadMode := flag.String("content-read-mode", cfg.ContentReadMode, "Content read mode: auto, stream, or mmap (default: auto).")
	mmapMinSize := flag.Int64("mmap-min-size", cfg.MmapMinSize, fmt.Sprintf("Minimum file size in bytes for the mmap read path (default: %d).", cfg.MmapMinSize))
	hashes := flag.String("hashes", strings.Join(cfg.HashAlgorithms, ","), fmt.Sprintf("Comma-separated list of hash algorithms: %s (default: %s).", strings.Join(hasher.Supported(), ", "), strings.Join(cfg.HashAlgorithms, ",")))
	fuzzyHashes := flag.String("fuzzy-hashes", "", fmt.Sprintf("Comma-separated list of fuzzy hash algorithms: %s (default: none).", strings.Join(fuzzy.Available(), ", ")))
	format := flag.String("format", cfg.OutputFormat, fmt.Sprintf("Report format: json or csv (default: %s).", cfg.OutputFormat))
	output := flag.String("output", cfg.OutputFile, "Report file name (default: filesentry-<timestamp>-<unix>.ndjson).")
	maxOutputFileSize := flag.Int64("max-output-file-size", cfg.MaxOutputFileSize, fmt.Sprintf("Maximum report file size before rotation in bytes (default: %d).", cfg.MaxOutputFileSize))
	uploadLogMode := flag.String("log-mode", cfg.UploadLogMode, fmt.Sprintf("Which detections are reported: success, blocked, always, or never (default: %s).", cfg.UploadLogMode))
	blockMalicious := flag.Bool("block-malicious", cfg.BlockMalicious, fmt.Sprintf("Reject uploads flagged malicious, not only blocked ones (default: %t).", cfg.BlockMalicious))
	listen := flag.String("listen", cfg.ListenAddr, "Serve the upload guard on this address, e.g. :8080 (default: off).")
	maxUploadBytes := flag.Int64("max-upload-bytes", cfg.MaxUploadBytes, fmt.Sprintf("Maximum accepted request body in bytes (default: %d).", cfg.MaxUploadBytes))
	logFormat := flag.String("log-format", cfg.LogFormat, fmt.Sprintf("Log format: text or json (default: %s).", cfg.LogFormat))
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	progress := flag.Bool("progress", cfg.Progress, fmt.Sprintf("Show a progress bar while scanning (default: %t).", cfg.Progress))
	configFile := flag.String("config", "", "Path to JSON configuration file (default: none).")
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := flag.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: filesentry).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := flag.Bool("otel-export-paths", cfg.OtelExportPaths, "Include file paths in OTEL payloads (default: false).")
	otelExportMetadata := flag.Bool("otel-export-metadata", cfg.OtelExportMetadata, "Include extracted metadata values in OTEL payloads (default: false).")
	traceFile := flag.String("trace-file", cfg.TraceFile, "Execution trace output when built with the trace tag (default: filesentry.trace).")
	traceFlight := flag.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := flag.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := flag.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := flag.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	stallThreshold := flag.Duration("stall-threshold", cfg.StallThreshold, "Dump diagnostics when no file finishes inspection for this long (default: 0, off).")
	diagDir := flag.String("diag-dir", cfg.DiagDir, fmt.Sprintf("Directory for diagnostics dumps (default: %s).", cfg.DiagDir))
	diagGoroutines := flag.Bool("diag-goroutines", cfg.DiagGoroutines, "Write a goroutine profile when the scan ends (default: false).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("filesentry version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path":
			cfg.Paths = parseCommaSeparated(*paths)
		case "include":
			cfg.IncludePatterns = parseCommaSeparated(*includes)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "sensitivity":
			cfg.SensitivityThreshold = *threshold
		case "whitelist":
			cfg.Whitelist = *whitelist
		case "extra-mimes":
			cfg.ExtraMimes = parseCommaSeparated(*extraMimes)
		case "metadata-markers":
			cfg.MetadataMarkers = parseCommaSeparated(*metadataMarkers)
		case "extract-metadata":
			cfg.ExtractMetadata = *extractMetadata
		case "metadata-max-bytes":
			cfg.MetadataMaxBytes = *metadataMaxBytes
		case "max-file-size":
			cfg.MaxFileSize = *maxFileSize
		case "concurrency":
			cfg.ConcurrencyLevel = *concurrency
			cfg.ConcurrencySet = true
		case "max-io-per-second":
			cfg.MaxIOPerSecond = *maxIO
		case "content-read-mode":
			cfg.ContentReadMode = *contentReadMode
		case "mmap-min-size":
			cfg.MmapMinSize = *mmapMinSize
		case "hashes":
			cfg.HashAlgorithms = parseCommaSeparated(*hashes)
		case "fuzzy-hashes":
			cfg.FuzzyAlgorithms = parseCommaSeparated(*fuzzyHashes)
		case "format":
			cfg.OutputFormat = *format
		case "output":
			cfg.OutputFile = *output
		case "max-output-file-size":
			cfg.MaxOutputFileSize = *maxOutputFileSize
		case "log-mode":
			cfg.UploadLogMode = *uploadLogMode
		case "block-malicious":
			cfg.BlockMalicious = *blockMalicious
		case "listen":
			cfg.ListenAddr = strings.TrimSpace(*listen)
		case "max-upload-bytes":
			cfg.MaxUploadBytes = *maxUploadBytes
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "progress":
			cfg.Progress = *progress
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		case "otel-export-metadata":
			cfg.OtelExportMetadata = *otelExportMetadata
		case "trace-file":
			cfg.TraceFile = *traceFile
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		case "stall-threshold":
			cfg.StallThreshold = *stallThreshold
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "diag-goroutines":
			cfg.DiagGoroutines = *diagGoroutines
		}
	})
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.Whitelist = strings.ToLower(strings.TrimSpace(cfg.Whitelist))
	cfg.OutputFormat = strings.ToLower(strings.TrimSpace(cfg.OutputFormat))
	cfg.UploadLogMode = strings.ToLower(strings.TrimSpace(cfg.UploadLogMode))
	cfg.ContentReadMode = strings.ToLower(strings.TrimSpace(cfg.ContentReadMode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	cfg.HashAlgorithms = normalizeAlgorithms(cfg.HashAlgorithms)
	cfg.FuzzyAlgorithms = normalizeAlgorithms(cfg.FuzzyAlgorithms)
	cfg.ExtraMimes = normalizeAlgorithms(cfg.ExtraMimes)
	if cfg.ContentReadMode == "" {
		cfg.ContentReadMode = "auto"
	}
	if cfg.MmapMinSize <= 0 {
		cfg.MmapMinSize = 128 * 1024
	}
	if !containsString(cfg.HashAlgorithms, "sha256") {
		cfg.HashAlgorithms = append(cfg.HashAlgorithms, "sha256")
	}
	if cfg.TraceFlight && cfg.TraceFlightFile == "" {
		cfg.TraceFlightFile = "trace-flight.out"
	}
	if cfg.ConcurrencyLevel <= 0 && !cfg.ConcurrencySet {
		cfg.ConcurrencyLevel = defaultConcurrency()
	}
	if cfg.DiagDir == "" {
		cfg.DiagDir = "diagnostics"
	}
	if len(cfg.Paths) == 0 && cfg.ListenAddr == "" {
		cfg.Paths = []string{"."}
	}
}

func displayHelp() {
	fmt.Println("filesentry - upload file identity and attack detection")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  filesentry [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  filesentry -path ./uploads")
	fmt.Println("  filesentry -path \"/srv/a,/srv/b\" -whitelist image_restrictive -format csv")
	fmt.Println("  filesentry -listen :8080 -log-mode always")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	if _, ok := raw["concurrency"]; ok {
		cfg.ConcurrencySet = true
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	return nil
}

func (cfg *Config) validate() error {
	if err := structValidator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid %s: %v (must satisfy %s)", fe.Field(), fe.Value(), describeTag(fe))
		}
		return err
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	for _, algo := range cfg.HashAlgorithms {
		if !hasher.IsSupported(algo) {
			return fmt.Errorf("unsupported hash algorithm: %s", algo)
		}
	}
	for _, algo := range cfg.FuzzyAlgorithms {
		if _, ok := fuzzy.Lookup(algo); !ok {
			return fmt.Errorf("unsupported fuzzy hash algorithm: %s", algo)
		}
	}
	if err := utils.ValidatePatterns(cfg.IncludePatterns); err != nil {
		return fmt.Errorf("include: %w", err)
	}
	if err := utils.ValidatePatterns(cfg.ExcludePatterns); err != nil {
		return fmt.Errorf("exclude: %w", err)
	}
	for _, mime := range cfg.ExtraMimes {
		if !mimetypes.Default().IsKnown(mime) {
			return fmt.Errorf("extra mime %s has no known extension", mime)
		}
	}
	if _, _, err := cfg.Resolve(); err != nil {
		return err
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Resolve turns the whitelist preset, extra MIME types and marker settings
// into the values the detection engine consumes. An empty marker list means
// the built-in markers.
func (cfg *Config) Resolve() (mimetypes.Whitelist, []string, error) {
	wl, err := mimetypes.Preset(cfg.Whitelist)
	if err != nil {
		return mimetypes.Whitelist{}, nil, err
	}
	if len(cfg.ExtraMimes) > 0 {
		if wl, err = wl.Extend(cfg.ExtraMimes...); err != nil {
			return mimetypes.Whitelist{}, nil, err
		}
	}
	terms := markers.DefaultInjection
	if len(cfg.MetadataMarkers) > 0 {
		terms = cfg.MetadataMarkers
		if len(markers.Build(terms).Terms()) == 0 {
			return mimetypes.Whitelist{}, nil, fmt.Errorf("metadata markers are all blank")
		}
	}
	return wl, terms, nil
}

// EngineOptions resolves the detection settings into engine options.
func (cfg *Config) EngineOptions() ([]detector.Option, error) {
	wl, terms, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	return []detector.Option{
		detector.WithWhitelist(wl),
		detector.WithThreshold(cfg.SensitivityThreshold),
		detector.WithMarkers(terms),
		detector.WithConcurrency(cfg.ConcurrencyLevel),
	}, nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func normalizeAlgorithms(items []string) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || containsString(normalized, item) {
			continue
		}
		normalized = append(normalized, item)
	}
	return normalized
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
