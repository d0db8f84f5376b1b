// Package telemetry installs the global OpenTelemetry providers the core
// packages report to.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-livemusic/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup installs a logger provider, a tracer provider and a meter provider
// and, when a bind address is configured, serves the metrics for Prometheus.
// Log records from the core packages are written through logger. Traces go
// to the OTLP endpoint when one is configured, otherwise to traceOutput when
// traces are enabled. The returned function flushes and stops everything.
func Setup(ctx context.Context, cfg config.TelemetryConfig, traceOutput io.Writer, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	loggerProvider := initLogger(res, logger)
	global.SetLoggerProvider(loggerProvider)

	traceProvider, err := initTracer(ctx, cfg, res, traceOutput, logger)
	if err != nil {
		return nil, errors.Join(err, loggerProvider.Shutdown(ctx))
	}
	if traceProvider != nil {
		otel.SetTracerProvider(traceProvider)
	}

	meterProvider, metricHandler, err := initMetrics(res, logger)
	if err != nil {
		return nil, errors.Join(err, loggerProvider.Shutdown(ctx))
	}
	otel.SetMeterProvider(meterProvider)

	var server *http.Server
	if bind := strings.TrimSpace(cfg.PrometheusBind); bind != "" && metricHandler != nil {
		server, err = serveMetrics(bind, metricHandler, logger)
		if err != nil {
			return nil, errors.Join(err, meterProvider.Shutdown(ctx), loggerProvider.Shutdown(ctx))
		}
	}

	return func(ctx context.Context) error {
		var errs []error
		if server != nil {
			errs = append(errs, server.Shutdown(ctx))
		}
		errs = append(errs, meterProvider.Shutdown(ctx))
		if traceProvider != nil {
			errs = append(errs, traceProvider.Shutdown(ctx))
		}
		errs = append(errs, loggerProvider.Shutdown(ctx))
		return errors.Join(errs...)
	}, nil
}

func initLogger(res *resource.Resource, logger *slog.Logger) *sdklog.LoggerProvider {
	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(&slogExporter{handler: logger.Handler()})),
		sdklog.WithResource(res),
	)
}

func initTracer(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, traceOutput io.Writer, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("telemetry initialized", slog.String("exporter", "otlp"), slog.String("endpoint", endpoint))
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	}

	if !cfg.Traces || traceOutput == nil {
		return nil, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(traceOutput))
	if err != nil {
		return nil, err
	}
	logger.Info("telemetry initialized", slog.String("exporter", "stdout"))
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func initMetrics(res *resource.Resource, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil, nil
	}
	meter := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	return meter, promhttp.Handler(), nil
}

func serveMetrics(bind string, handler http.Handler, logger *slog.Logger) (*http.Server, error) {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(handler, "metrics"))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("address", listener.Addr().String()))
	return server, nil
}
