package telemetry

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// slogExporter writes OpenTelemetry log records to a slog handler, so the
// records of every package end up next to the process log at the same level.
type slogExporter struct {
	handler slog.Handler
}

var _ sdklog.Exporter = (*slogExporter)(nil)

func (e *slogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	var errs []error
	for _, record := range records {
		level := severityLevel(record.Severity())
		if !e.handler.Enabled(ctx, level) {
			continue
		}

		out := slog.NewRecord(record.Timestamp(), level, record.Body().String(), 0)
		if scope := record.InstrumentationScope().Name; scope != "" {
			out.AddAttrs(slog.String("scope", scope))
		}
		record.WalkAttributes(func(kv log.KeyValue) bool {
			out.AddAttrs(convertAttr(kv))
			return true
		})
		errs = append(errs, e.handler.Handle(ctx, out))
	}
	return errors.Join(errs...)
}

func (e *slogExporter) Shutdown(context.Context) error   { return nil }
func (e *slogExporter) ForceFlush(context.Context) error { return nil }

// severityLevel reverses the otelslog bridge, which records a slog level l
// as severity l+9.
func severityLevel(severity log.Severity) slog.Level {
	if severity == log.SeverityUndefined {
		return slog.LevelInfo
	}
	return slog.Level(severity - 9)
}

func convertAttr(kv log.KeyValue) slog.Attr {
	switch kv.Value.Kind() {
	case log.KindBool:
		return slog.Bool(kv.Key, kv.Value.AsBool())
	case log.KindInt64:
		return slog.Int64(kv.Key, kv.Value.AsInt64())
	case log.KindFloat64:
		return slog.Float64(kv.Key, kv.Value.AsFloat64())
	case log.KindString:
		return slog.String(kv.Key, kv.Value.AsString())
	}
	return slog.String(kv.Key, kv.Value.String())
}
