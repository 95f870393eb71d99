package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var ErrUnknownExporter = errors.New("unknown trace exporter")

type Config struct {
	ServiceName string
	// TraceExporter is "none" or "stdout".
	TraceExporter string
	// Pushgateway is the Prometheus Pushgateway URL; empty disables pushing.
	Pushgateway string
	Job         string
}

// Init installs the global tracer provider and returns a shutdown func that
// flushes spans and pushes the gathered metrics. Spans are written to out.
func Init(ctx context.Context, cfg Config, out io.Writer, gatherer prometheus.Gatherer) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error

	switch cfg.TraceExporter {
	case "", "none":
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resource.NewWithAttributes("", attribute.String("service.name", cfg.ServiceName))),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}

	if cfg.Pushgateway != "" && gatherer != nil {
		pusher := push.New(cfg.Pushgateway, cfg.Job).Gatherer(gatherer)
		shutdownFuncs = append(shutdownFuncs, func(ctx context.Context) error {
			if err := pusher.PushContext(ctx); err != nil {
				return fmt.Errorf("push metrics to %s: %w", cfg.Pushgateway, err)
			}
			slog.Debug("metrics pushed", "gateway", cfg.Pushgateway, "job", cfg.Job)
			return nil
		})
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, nil
}
