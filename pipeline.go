package reactor

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"
)

// indexedSignal tags an incoming value with which input slot produced it,
// letting runPipeline fan multiple input subscriptions into one select
// loop without resorting to reflect.Select.
type indexedSignal struct {
	idx int
	sig Signal
}

// rateShaper runs debounce, then throttle, then distinct-value suppression
// in front of a node's compute stage, in its own goroutine so a pending
// debounce timer never blocks the pipeline's input fan-in loop from
// observing further upstream activity.
type rateShaper struct {
	debounce time.Duration
	limiter  *rate.Limiter
	distinct bool

	in   chan []Signal
	out  chan []Signal
	done chan struct{}
}

func newRateShaper(debounce, throttle time.Duration, distinct bool) *rateShaper {
	s := &rateShaper{
		debounce: debounce,
		distinct: distinct,
		in:       make(chan []Signal),
		out:      make(chan []Signal),
		done:     make(chan struct{}),
	}
	if throttle > 0 {
		s.limiter = rate.NewLimiter(rate.Every(throttle), 1)
	}
	go s.run()
	return s
}

func (s *rateShaper) run() {
	defer close(s.out)

	var timer *time.Timer
	var timerCh <-chan time.Time
	var pending []Signal
	var havePending bool
	var lastKey string
	var haveLast bool

	fire := func(sig []Signal) {
		if s.limiter != nil && !s.limiter.Allow() {
			return
		}
		if s.distinct {
			key := canonicalKey(sig)
			if haveLast && key == lastKey {
				return
			}
			lastKey, haveLast = key, true
		}
		select {
		case s.out <- sig:
		case <-s.done:
		}
	}

	for {
		select {
		case sig, ok := <-s.in:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				return
			}
			if s.debounce > 0 {
				pending, havePending = sig, true
				if timer == nil {
					timer = time.NewTimer(s.debounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(s.debounce)
				}
				timerCh = timer.C
			} else {
				fire(sig)
			}
		case <-timerCh:
			if havePending {
				fire(pending)
				havePending = false
			}
			timerCh = nil
		case <-s.done:
			return
		}
	}
}

// schedule feeds a freshly-gated input tuple into the shaper. Blocks only
// until the shaper's run loop picks it up.
func (s *rateShaper) schedule(sig []Signal) {
	select {
	case s.in <- sig:
	case <-s.done:
	}
}

func (s *rateShaper) stop() {
	close(s.done)
}

// canonicalKey renders a tuple of signals as a stable string for distinct-
// value suppression; values that fail to encode (e.g. channels, funcs) are
// treated as always-distinct, matching the cache key's own fallback.
func canonicalKey(sig []Signal) string {
	values := signalValues(sig)
	encoded, err := json.Marshal(values)
	if err != nil {
		return randomKey()
	}
	return string(encoded)
}

func signalValues(sig []Signal) []any {
	out := make([]any, len(sig))
	for i, s := range sig {
		out[i] = s.Value()
	}
	return out
}

// startPipeline wires a node's pipeline goroutine (combine → gate →
// rate-shape → compute → terminate) and wires it to the node's current
// inputs. Zero-input nodes run their single compute on a goroutine started
// by this call — a source runs exactly once on activation.
func (e *Engine) startPipeline(rt *nodeRuntime) {
	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	rt.done = make(chan struct{})
	rt.hasPipeline = true

	if len(rt.def.Inputs) == 0 {
		go func() {
			defer close(rt.done)
			e.runCompute(ctx, rt, nil)
		}()
		return
	}

	go e.runPipeline(ctx, rt)
}

func (e *Engine) runPipeline(ctx context.Context, rt *nodeRuntime) {
	defer close(rt.done)

	inputIDs := rt.def.Inputs
	latest := make([]Signal, len(inputIDs))
	for i := range latest {
		latest[i] = Init()
	}

	triggerCh := make(chan indexedSignal, len(inputIDs)*4+1)
	var cancels []func()
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	for i, inputID := range inputIDs {
		input := e.lookupNode(inputID)
		if input == nil {
			// Missing input: the node stays gated forever, consistent with
			// validateStructure/addNode refusing to register it in the
			// first place; this only protects against a racing removeNode.
			continue
		}
		ch, cancelSub := input.output.subscribe()
		cancels = append(cancels, cancelSub)
		go forwardSignals(ctx, i, ch, triggerCh)
	}

	shaper := newRateShaper(e.opts.DebounceTime, e.opts.ThrottleTime, e.opts.DistinctValues)
	defer shaper.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-triggerCh:
			latest[ev.idx] = ev.sig
			if !allResolved(latest) {
				continue
			}
			shaper.schedule(append([]Signal(nil), latest...))
		case sig, ok := <-shaper.out:
			if !ok {
				continue
			}
			go e.runCompute(ctx, rt, sig)
		}
	}
}

func forwardSignals(ctx context.Context, idx int, ch <-chan Signal, out chan<- indexedSignal) {
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return
			}
			select {
			case out <- indexedSignal{idx: idx, sig: sig}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func allResolved(signals []Signal) bool {
	for _, s := range signals {
		if s.IsInit() {
			return false
		}
	}
	return true
}

// runCompute is the compute+terminate half of the pipeline: cache lookup,
// cancelable-compute bookkeeping, plugin invocation, and — for a
// streaming Sequence — publishing every emission as it arrives. It also
// owns the node's membership in the engine's stabilisation set.
func (e *Engine) runCompute(ctx context.Context, rt *nodeRuntime, inputs []Signal) {
	id := rt.def.ID
	e.setActive(id, true)
	defer e.setActive(id, false)

	cacheOpts := e.resolveCacheOptions(rt.def)
	var cacheKey string
	if cacheOpts.Enabled && e.cache != nil {
		cacheKey = deriveCacheKey(signalValues(inputs), rt.def.Config, cacheOpts.Invalidation)
		if v, ok := e.cache.Get(id, cacheKey); ok {
			rt.output.publish(Of(v))
			return
		}
	}

	computeCtx := ctx
	if e.opts.EnableCancelableCompute {
		var cancel context.CancelFunc
		computeCtx, cancel = context.WithCancel(ctx)

		rt.computeMu.Lock()
		if rt.activeCancel != nil {
			rt.activeCancel()
		}
		rt.activeCancel = cancel
		rt.computeMu.Unlock()
	}

	e.computeCount.Add(1)
	e.metrics.computeTotal.WithLabelValues(e.id, id).Inc()

	seq, err := rt.wrapper.invoke(computeCtx, inputs)
	if err != nil {
		if skip, ok := err.(*SkipInputError); ok {
			e.handleSkip(skip.NodeID)
			return
		}
		e.handleComputeError(id, err)
		return
	}

	for {
		select {
		case <-computeCtx.Done():
			seq.Stop()
			return
		case em, ok := <-seq.C:
			if !ok {
				return
			}
			if em.Err != nil {
				e.handleComputeError(id, em.Err)
				return
			}
			if sig, ok := em.Value.(Signal); ok && sig.IsSkip() {
				// A data node opted out of this round: it publishes SKIP
				// directly; NODE_SKIP_COMPUTATION fires downstream, on the
				// operational node(s) that observe it among their inputs.
				rt.output.publish(Skip())
				continue
			}
			rt.output.publish(Of(em.Value))
			if cacheOpts.Enabled && e.cache != nil {
				e.cache.Set(id, cacheKey, em.Value, cacheOpts.TTL)
				if nc, ok := e.cache.(*NodeCache); ok {
					nc.EnforceCaps(id, cacheOpts.MaxEntries)
				}
			}
		}
	}
}

// stopPipeline cancels a node's pipeline and waits for its goroutine(s) to
// observe the cancellation, used by updateNode/removeNode/Pause.
func (e *Engine) stopPipeline(rt *nodeRuntime) {
	if !rt.hasPipeline {
		return
	}
	rt.cancel()
	<-rt.done
	rt.hasPipeline = false
}
