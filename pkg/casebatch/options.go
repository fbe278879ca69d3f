package casebatch

import (
	"io"

	"golang.org/x/time/rate"
)

// Option configures optional behavior of a Runner.
type Option func(*options)

// options holds the optional configuration for a Runner instance.
type options struct {
	logger         Logger
	factory        ExecutorFactory
	httpClient     HTTPClient
	progressWriter io.Writer
	limiter        *rate.Limiter
	sweeper        *SweeperConfig
	eventHandler   EventHandler
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithExecutorFactory supplies the executors used by the worker slots,
// overriding the executor selected by the configuration.
func WithExecutorFactory(factory ExecutorFactory) Option {
	return func(o *options) {
		o.factory = factory
	}
}

// WithHTTPClient sets the client used by the HTTP executor.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithProgressWriter enables periodic progress lines written to w.
func WithProgressWriter(w io.Writer) Option {
	return func(o *options) {
		o.progressWriter = w
	}
}

// WithRateLimit caps executions across all workers at perSecond, allowing
// bursts of up to burst executions. It overrides Config.RateLimit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithSweeper removes executor leftovers matching cfg while the run is active.
func WithSweeper(cfg SweeperConfig) Option {
	return func(o *options) {
		o.sweeper = &cfg
	}
}

// WithEventHandler sets a handler for lifecycle events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}
