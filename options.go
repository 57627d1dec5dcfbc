package reactor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// DataExecMode controls how a stabilisation probe behaves under skipped
// data nodes.
type DataExecMode int

const (
	// SyncExecMode requires every subscribed node to hold a non-INIT value
	// before Stabilize resolves.
	SyncExecMode DataExecMode = iota
	// AsyncExecMode auto-pauses the engine and resolves Stabilize on the
	// first SKIP_INPUT observed engine-wide.
	AsyncExecMode
)

// EngineOptions is the fully-resolved configuration behind NewEngine,
// built by applying each EngineOption in order over engineDefaults.
type EngineOptions struct {
	EngineID string
	Logger   zerolog.Logger
	Tracer   trace.Tracer

	AutoStart bool

	ExecutionContext ExecutionContext // nil = built by NewEngine: InlineContext, or a HybridExecutionContext when WithWorkerPool is set
	workerPoolOpts   *ParallelOptions // set by WithWorkerPool, resolved in NewEngine

	DataNodesExecutionMode DataExecMode
	DebounceTime           time.Duration
	ThrottleTime           time.Duration
	DistinctValues         bool
	EnableCancelableCompute bool

	CacheEnabled    bool
	CacheProvider   CacheProvider // nil = NewNodeCache default
	DefaultCache    CacheOptions
	GlobalCacheCap  int
	CollectCacheMetrics bool

	Sanitize SanitizeOptions

	StatLoggingInterval time.Duration
	ErrorThreshold      int
	ErrorTimeWindow     time.Duration
	MemoryThresholdBytes uint64
	SilentErrors        bool

	MetricsRegisterer prometheus.Registerer
}

func engineDefaults() EngineOptions {
	return EngineOptions{
		AutoStart:              true,
		DataNodesExecutionMode: SyncExecMode,
		EnableCancelableCompute: true,
		CacheEnabled:            true,
		DefaultCache:            DefaultCacheOptions(),
		GlobalCacheCap:          1000,
		CollectCacheMetrics:     true,
		Sanitize:                DefaultSanitizeOptions(),
		StatLoggingInterval:     0, // disabled unless set
		ErrorThreshold:          0, // disabled unless set
		ErrorTimeWindow:         time.Minute,
		Logger:                  defaultLogger(),
	}
}

// EngineOption mutates EngineOptions during construction — the same
// functional-options shape the teacher uses for its own builders.
type EngineOption func(*EngineOptions)

func WithEngineID(id string) EngineOption {
	return func(o *EngineOptions) { o.EngineID = id }
}

func WithLogger(l zerolog.Logger) EngineOption {
	return func(o *EngineOptions) { o.Logger = l }
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(o *EngineOptions) { o.Tracer = t }
}

func WithAutoStart(auto bool) EngineOption {
	return func(o *EngineOptions) { o.AutoStart = auto }
}

func WithExecutionContext(ec ExecutionContext) EngineOption {
	return func(o *EngineOptions) { o.ExecutionContext = ec }
}

func WithWorkerPool(opts ParallelOptions) EngineOption {
	return func(o *EngineOptions) {
		// resolved lazily in NewEngine once the registry/logger are known;
		// the request is stashed in workerPoolOpts.
		o.workerPoolOpts = &opts
	}
}

func WithDataNodesExecutionMode(mode DataExecMode) EngineOption {
	return func(o *EngineOptions) { o.DataNodesExecutionMode = mode }
}

func WithDebounce(d time.Duration) EngineOption {
	return func(o *EngineOptions) { o.DebounceTime = d }
}

func WithThrottle(d time.Duration) EngineOption {
	return func(o *EngineOptions) { o.ThrottleTime = d }
}

func WithDistinctValues(enabled bool) EngineOption {
	return func(o *EngineOptions) { o.DistinctValues = enabled }
}

func WithCancelableCompute(enabled bool) EngineOption {
	return func(o *EngineOptions) { o.EnableCancelableCompute = enabled }
}

func WithCache(enabled bool, defaults CacheOptions) EngineOption {
	return func(o *EngineOptions) {
		o.CacheEnabled = enabled
		o.DefaultCache = defaults
	}
}

func WithCacheProvider(p CacheProvider) EngineOption {
	return func(o *EngineOptions) { o.CacheProvider = p }
}

func WithGlobalCacheCap(n int) EngineOption {
	return func(o *EngineOptions) { o.GlobalCacheCap = n }
}

func WithSanitize(opts SanitizeOptions) EngineOption {
	return func(o *EngineOptions) { o.Sanitize = opts }
}

func WithStatLogging(interval time.Duration) EngineOption {
	return func(o *EngineOptions) { o.StatLoggingInterval = interval }
}

func WithErrorThreshold(count int, window time.Duration) EngineOption {
	return func(o *EngineOptions) {
		o.ErrorThreshold = count
		o.ErrorTimeWindow = window
	}
}

func WithMemoryThreshold(bytes uint64) EngineOption {
	return func(o *EngineOptions) { o.MemoryThresholdBytes = bytes }
}

func WithSilentErrors(silent bool) EngineOption {
	return func(o *EngineOptions) { o.SilentErrors = silent }
}

func WithMetricsRegisterer(reg prometheus.Registerer) EngineOption {
	return func(o *EngineOptions) { o.MetricsRegisterer = reg }
}
