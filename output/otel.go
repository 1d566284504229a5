package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filesentry/config"
	"filesentry/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

// otelPolicy controls which parts of an entry leave the host. Paths and
// metadata values can carry user data and are off by default.
type otelPolicy struct {
	includePaths    bool
	includeMetadata bool
}

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OtelServiceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("filesentry"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		policy: otelPolicy{
			includePaths:    cfg.OtelExportPaths,
			includeMetadata: cfg.OtelExportMetadata,
		},
	}, nil
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *otelLogger) Emit(recordType string, payload any) {
	if o == nil || o.logger == nil {
		return
	}
	safePayload := sanitizePayload(payload, o.policy)

	var record otelLog.Record
	now := time.Now()
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("filesentry.record")
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(safePayload, o.policy); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}

	if data := payloadToMap(safePayload); data != nil {
		record.SetBody(toLogValue(data))
	} else if raw, err := json.Marshal(safePayload); err == nil {
		record.SetBody(otelLog.StringValue(string(raw)))
	}

	o.logger.Emit(context.Background(), record)
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

// sanitizePayload returns a copy of an entry stripped of what the policy
// keeps local. Other payloads pass through.
func sanitizePayload(payload any, policy otelPolicy) any {
	e, ok := payload.(Entry)
	if !ok {
		return payload
	}
	if !policy.includePaths {
		e.Path = ""
	}
	if !policy.includeMetadata {
		e.Metadata = nil
	}
	return e
}

func semanticAttributes(payload any, policy otelPolicy) []otelLog.KeyValue {
	switch v := payload.(type) {
	case Entry:
		return fileSemanticAttributes(v, policy)
	case *Metrics:
		if v == nil {
			return nil
		}
		return metricsSemanticAttributes(*v)
	case Metrics:
		return metricsSemanticAttributes(v)
	default:
		return nil
	}
}

func fileSemanticAttributes(e Entry, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	if policy.includePaths && e.Path != "" {
		kvs = append(kvs, otelLog.String(string(semconv.FilePathKey), e.Path))
		kvs = append(kvs, otelLog.String(string(semconv.FileDirectoryKey), filepath.Dir(e.Path)))
	}
	kvs = appendStringAttr(kvs, "filesentry.entry.id", e.ID)
	kvs = appendStringAttr(kvs, "filesentry.entry.source", e.Source)
	kvs = appendStringAttr(kvs, "filesentry.entry.request_id", e.RequestID)

	if rec := e.Record; rec != nil {
		f := rec.File
		kvs = appendStringAttr(kvs, string(semconv.FileNameKey), f.Name)
		if ext := strings.TrimPrefix(filepath.Ext(f.Name), "."); ext != "" {
			kvs = append(kvs, otelLog.String(string(semconv.FileExtensionKey), ext))
		}
		kvs = append(kvs, otelLog.Int64(string(semconv.FileSizeKey), f.Size))
		kvs = appendStringAttr(kvs, "filesentry.file.request_header_mime", f.DeclaredMime)
		kvs = appendStringAttr(kvs, "filesentry.file.extension_mime", f.ExtensionMime)
		kvs = appendStringAttr(kvs, "filesentry.file.signature_mime", f.SignatureMime)
		kvs = appendStringAttr(kvs, "filesentry.file.guessed_mime", f.GuessedMime)
		kvs = appendStringAttr(kvs, "filesentry.file.sniffed_mime", f.SniffedMime)
		kvs = append(kvs,
			otelLog.Float64("filesentry.file.confidence_ratio", f.ConfidenceRatio),
			otelLog.Bool("filesentry.file.malicious", f.Malicious),
			otelLog.Bool("filesentry.file.block", rec.Block),
		)
		kvs = appendStringSliceAttr(kvs, "filesentry.file.recognized_attacks", rec.AttackNames())
		kvs = appendStringSliceAttr(kvs, "filesentry.file.block_reasons", rec.BlockReasons)
		kvs = appendStringAttr(kvs, "filesentry.file.error", rec.Error)
	}

	for algo, value := range e.Hashes {
		kvs = appendStringAttr(kvs, fmt.Sprintf("filesentry.file.hash.%s", algo), value)
	}
	for algo, value := range e.FuzzyHashes {
		kvs = appendStringAttr(kvs, fmt.Sprintf("filesentry.file.fuzzy_hash.%s", algo), value)
	}
	if policy.includeMetadata && len(e.Metadata) > 0 {
		kvs = append(kvs, otelLog.KeyValue{Key: "filesentry.file.metadata", Value: toLogValue(e.Metadata)})
	}
	return kvs
}

func metricsSemanticAttributes(m Metrics) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, "filesentry.metrics.start_time", m.StartTime)
	kvs = appendStringAttr(kvs, "filesentry.metrics.end_time", m.EndTime)
	return append(kvs,
		otelLog.Int64("filesentry.metrics.total_files", int64(m.TotalFiles)),
		otelLog.Int64("filesentry.metrics.files_inspected", m.FilesInspected),
		otelLog.Int64("filesentry.metrics.files_reported", m.FilesReported),
		otelLog.Int64("filesentry.metrics.files_blocked", m.FilesBlocked),
		otelLog.Int64("filesentry.metrics.files_malicious", m.FilesMalicious),
		otelLog.Int64("filesentry.metrics.files_failed", m.FilesFailed),
	)
}

func payloadToMap(payload any) map[string]any {
	if v, ok := payload.(map[string]any); ok {
		return v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	return decoded
}

func toLogValue(value any) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case map[string]any:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for key, item := range v {
			kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(item)})
		}
		return otelLog.MapValue(kvs...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []any:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.Value{}
	}
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}

func appendStringSliceAttr(kvs []otelLog.KeyValue, key string, values []string) []otelLog.KeyValue {
	if len(values) == 0 {
		return kvs
	}
	return append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(values)})
}
