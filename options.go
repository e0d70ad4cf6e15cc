package docstash

import (
	"log/slog"
	"time"

	"github.com/hupe1980/docstash/codec"
	"github.com/hupe1980/docstash/resource"
)

type options struct {
	arrayCodec       *codec.ArrayCodec
	metricsCollector MetricsCollector
	logger           *Logger
	clock            func() time.Time
	resources        *resource.Controller
	closers          []func() error
}

// Option configures an Adapter.
type Option func(*options)

// WithArrayCodec configures the codec used to encode array payloads.
//
// If nil is passed, an uncompressed codec is used.
func WithArrayCodec(c *codec.ArrayCodec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.NewArrayCodec(codec.CompressionNone)
		}
		o.arrayCodec = c
	}
}

// WithCompression configures the compression applied to array payloads.
// Shorthand for WithArrayCodec(codec.NewArrayCodec(c)).
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		o.arrayCodec = codec.NewArrayCodec(c)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &docstash.BasicMetricsCollector{}
//	a := docstash.New(coll, blobs, docstash.WithMetricsCollector(metrics))
//	// ... use a ...
//	stats := metrics.GetStats()
//	fmt.Printf("Saves: %d, Avg latency: %dns\n", stats.SaveCount, stats.SaveAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := docstash.NewJSONLogger(slog.LevelInfo)
//	a := docstash.New(coll, blobs, docstash.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithClock overrides the source of insertion timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now == nil {
			now = time.Now
		}
		o.clock = now
	}
}

// WithResourceController shares a resource controller with the adapter.
// Its MaxWorkers bounds the concurrent blob deletes of Sweep.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithCloser registers fn to run when the adapter is closed. Closers run in
// reverse registration order.
func WithCloser(fn func() error) Option {
	return func(o *options) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		arrayCodec:       codec.NewArrayCodec(codec.CompressionNone),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		clock:            time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// LoadOption configures a single Load call.
type LoadOption func(*loadOptions)

type loadOptions struct {
	withoutArrays bool
}

// WithoutArrays skips blob resolution. Reference markers stay in place of
// the arrays, which makes metadata-only listings cheap.
func WithoutArrays() LoadOption {
	return func(o *loadOptions) {
		o.withoutArrays = true
	}
}

func applyLoadOptions(optFns []LoadOption) loadOptions {
	var o loadOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
