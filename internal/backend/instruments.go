package backend

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Options carries the shared collaborators of every provider.
type Options struct {
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Tracer == nil {
		o.Tracer = tracenoop.NewTracerProvider().Tracer("backend")
	}
	if o.Meter == nil {
		o.Meter = metricnoop.NewMeterProvider().Meter("backend")
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return o
}

// instruments wraps provider calls in a span and records request duration
// and token usage.
type instruments struct {
	backend  string
	model    string
	logger   *slog.Logger
	tracer   trace.Tracer
	duration metric.Float64Histogram
	usage    metric.Int64Counter
}

func newInstruments(backend, model string, opts Options) instruments {
	in := instruments{
		backend: backend,
		model:   model,
		logger:  opts.Logger.With("backend", backend, "model", model),
		tracer:  opts.Tracer,
	}

	histogram, err := opts.Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		in.logger.Warn("failed to create histogram", "error", err)
		histogram, _ = metricnoop.Meter{}.Float64Histogram("http.client.request.duration")
	}
	in.duration = histogram

	counter, err := opts.Meter.Int64Counter(
		"llm.usage.tokens",
		metric.WithDescription("LLM token usage by kind"),
	)
	if err != nil {
		in.logger.Warn("failed to create counter", "error", err)
		counter, _ = metricnoop.Meter{}.Int64Counter("llm.usage.tokens")
	}
	in.usage = counter

	return in
}

func (in instruments) attrs(extra ...attribute.KeyValue) metric.MeasurementOption {
	kv := []attribute.KeyValue{
		attribute.String("backend", in.backend),
		attribute.String("model", in.model),
	}
	return metric.WithAttributes(append(kv, extra...)...)
}

// recordUsage adds token counts reported by the provider.
func (in instruments) recordUsage(ctx context.Context, input, output int64) {
	if input > 0 {
		in.usage.Add(ctx, input, in.attrs(attribute.String("kind", "input")))
	}
	if output > 0 {
		in.usage.Add(ctx, output, in.attrs(attribute.String("kind", "output")))
	}
}

// stream adapts a push-style producer into a fragment sequence. Every failure,
// including a producer that emitted no text, surfaces as a GenerationError.
func (in instruments) stream(ctx context.Context, produce func(ctx context.Context, emit func(string) bool) error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, span := in.tracer.Start(ctx, in.backend+"_api_call")
		defer span.End()

		start := time.Now()
		emitted := 0
		stopped := false
		err := produce(ctx, func(fragment string) bool {
			if fragment == "" {
				return true
			}
			emitted += len(fragment)
			if !yield(fragment, nil) {
				stopped = true
				return false
			}
			return true
		})

		elapsed := time.Since(start)
		in.duration.Record(ctx, float64(elapsed.Milliseconds()), in.attrs())

		if stopped {
			return
		}
		if err == nil && emitted == 0 {
			err = ErrEmptyResponse
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			in.logger.Error("completion failed", "error", err, "duration_ms", elapsed.Milliseconds())
			yield("", &GenerationError{Backend: in.backend, Err: err})
			return
		}
		in.logger.Debug("completion finished", "chars", emitted, "duration_ms", elapsed.Milliseconds())
	}
}

// failed returns a sequence that yields a single GenerationError.
func failed(backend string, err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", &GenerationError{Backend: backend, Err: fmt.Errorf("invalid request: %w", err)})
	}
}
