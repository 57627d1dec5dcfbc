package extensions

import (
	"github.com/rs/zerolog"

	"github.com/legann/dexrx-sub000"
)

// LoggingExtension subscribes to every lifecycle and node hook the engine
// fires and logs it at debug level — the structured-log equivalent of the
// teacher's print-every-operation extension.
type LoggingExtension struct {
	logger   zerolog.Logger
	cleanups []reactor.Cleanup
}

// NewLoggingExtension wires a LoggingExtension onto engine. Call Close to
// unsubscribe.
func NewLoggingExtension(engine *reactor.Engine, logger zerolog.Logger) *LoggingExtension {
	ext := &LoggingExtension{logger: logger}

	events := []reactor.EventName{
		reactor.NodeAdded, reactor.NodeRemoved, reactor.NodeUpdated,
		reactor.NodeComputeError, reactor.NodeSkipComputation,
		reactor.EngineInitialized, reactor.EngineStarted, reactor.EnginePaused,
		reactor.EngineResumed, reactor.EngineStateChanged,
		reactor.BeforeDestroy, reactor.AfterDestroy, reactor.EngineRestored,
		reactor.HealthCheck, reactor.ErrorThresholdExceeded, reactor.MemoryThresholdExceeded,
	}
	for _, event := range events {
		event := event
		ext.cleanups = append(ext.cleanups, engine.OnHook(event, func(args ...any) {
			ext.logger.Debug().Str("event", string(event)).Interface("args", args).Msg("engine event")
		}))
	}
	return ext
}

// Close unsubscribes the extension from every hook it registered.
func (e *LoggingExtension) Close() {
	for _, c := range e.cleanups {
		c()
	}
}
