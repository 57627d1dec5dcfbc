package reactor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ParallelOptions tunes the worker pool. Workers are goroutines standing
// in for OS threads; there is no message-port concept to model here.
type ParallelOptions struct {
	MaxWorkers    int
	MinComplexity int // reserved for future heuristics; heavy list + shouldParallelize cover dispatch sizing today
	WorkerTimeout time.Duration
	HeavyTypes    []string
}

// DefaultParallelOptions returns max(2, cores-1) workers and a 30s
// per-task timeout.
func DefaultParallelOptions() ParallelOptions {
	workers := runtime.NumCPU() - 1
	if workers < 2 {
		workers = 2
	}
	return ParallelOptions{MaxWorkers: workers, WorkerTimeout: 30 * time.Second}
}

type workerTask struct {
	taskID     string
	pluginType string
	config     map[string]any
	inputs     []any
	resultCh   chan workerResult
}

type workerResult struct {
	value any
	err   error
}

type worker struct {
	id      int
	taskCh  chan workerTask
	pending atomic.Int64
	done    chan struct{}
}

// WorkerPoolContext is the worker-pool-backed ExecutionContext:
// least-loaded dispatch with round-robin fallback on ties, per-task
// timeout, and worker replacement on crash.
type WorkerPoolContext struct {
	registry *Registry
	opts     ParallelOptions
	heavy    map[string]bool
	logger   zerolog.Logger

	mu      sync.Mutex
	workers []*worker
	rr      atomic.Uint64
}

// NewWorkerPoolContext starts a pool of opts.MaxWorkers goroutine
// workers, each running the registry's plugins on dispatch.
func NewWorkerPoolContext(registry *Registry, opts ParallelOptions, logger zerolog.Logger) *WorkerPoolContext {
	if opts.MaxWorkers <= 0 {
		opts = DefaultParallelOptions()
	}
	if opts.WorkerTimeout <= 0 {
		opts.WorkerTimeout = 30 * time.Second
	}

	heavy := make(map[string]bool, len(opts.HeavyTypes))
	for _, t := range opts.HeavyTypes {
		heavy[t] = true
	}

	p := &WorkerPoolContext{registry: registry, opts: opts, heavy: heavy, logger: logger}
	for i := 0; i < opts.MaxWorkers; i++ {
		p.workers = append(p.workers, p.spawnWorker(i))
	}
	return p
}

func (p *WorkerPoolContext) spawnWorker(id int) *worker {
	w := &worker{id: id, taskCh: make(chan workerTask, 8), done: make(chan struct{})}
	go p.run(w)
	return w
}

func (p *WorkerPoolContext) run(w *worker) {
	defer close(w.done)
	for task := range w.taskCh {
		if crashed := p.execute(w, task); crashed {
			return
		}
	}
}

func (p *WorkerPoolContext) execute(w *worker, task workerTask) (crashed bool) {
	defer w.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("worker", w.id).Interface("panic", r).Msg("worker crashed; replacing")
			task.resultCh <- workerResult{err: fmt.Errorf("worker panic: %v", r)}
			p.replace(w)
			crashed = true
		}
	}()

	plugin, err := p.registry.Get(task.pluginType)
	if err != nil {
		task.resultCh <- workerResult{err: err}
		return
	}
	value, err := plugin.Compute(context.Background(), task.config, task.inputs)
	task.resultCh <- workerResult{value: value, err: err}
}

// replace swaps a crashed worker's slot for a fresh one; any tasks still
// queued behind it in its channel are lost with it, so callers waiting
// on those tasks observe their own timeout rather than a crash report.
func (p *WorkerPoolContext) replace(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.workers {
		if existing == w {
			p.workers[i] = p.spawnWorker(w.id)
			return
		}
	}
}

// pickWorker implements least-loaded dispatch with round-robin fallback
// on ties.
func (p *WorkerPoolContext) pickWorker() *worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.workers) == 0 {
		return nil
	}

	minPending := p.workers[0].pending.Load()
	var tied []*worker
	for _, w := range p.workers {
		load := w.pending.Load()
		if load < minPending {
			minPending = load
			tied = []*worker{w}
		} else if load == minPending {
			tied = append(tied, w)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	idx := p.rr.Add(1) % uint64(len(tied))
	return tied[idx]
}

// shouldDispatch reports whether a compute with this shape is worth
// handing off to the pool rather than running inline — see
// shouldParallelize for the actual heuristic.
func (p *WorkerPoolContext) shouldDispatch(pluginType string, config map[string]any, inputs []any) bool {
	return shouldParallelize(pluginType, config, inputs, p.heavy)
}

// Execute dispatches a task to the least-loaded worker and waits up to
// WorkerTimeout for a result, rejecting with a timeout ComputeError
// otherwise. A timed-out task keeps its worker busy, and counted in that
// worker's pending load, until the plugin's compute returns.
func (p *WorkerPoolContext) Execute(ctx context.Context, pluginType string, config map[string]any, inputs []any) (*Sequence, error) {
	w := p.pickWorker()
	if w == nil {
		return nil, fmt.Errorf("reactor: worker pool has no workers")
	}

	task := workerTask{
		taskID:     uuid.NewString(),
		pluginType: pluginType,
		config:     config,
		inputs:     inputs,
		resultCh:   make(chan workerResult, 1),
	}
	w.pending.Add(1)

	select {
	case w.taskCh <- task:
	case <-ctx.Done():
		w.pending.Add(-1)
		return nil, ctx.Err()
	}

	timer := time.NewTimer(p.opts.WorkerTimeout)
	defer timer.Stop()

	select {
	case res := <-task.resultCh:
		if res.err != nil {
			return nil, res.err
		}
		if seq, ok := res.value.(*Sequence); ok {
			return seq, nil
		}
		return once(res.value, nil), nil
	case <-timer.C:
		return nil, newComputeError("", fmt.Errorf("worker task %s timed out after %s", task.taskID, p.opts.WorkerTimeout), true)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate signals every worker to stop accepting new tasks. Callers
// that want to wait use WaitForTermination with a bound so engine
// shutdown never blocks indefinitely on a stuck worker.
func (p *WorkerPoolContext) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		close(w.taskCh)
	}
}

// WaitForTermination blocks until every worker has drained or timeoutMs
// elapses, whichever comes first — invoked from engine destruction.
func (p *WorkerPoolContext) WaitForTermination(timeoutMs int) {
	p.mu.Lock()
	workers := make([]*worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.Unlock()

	deadline := time.After(time.Duration(timeoutMs) * time.Millisecond)
	for _, w := range workers {
		select {
		case <-w.done:
		case <-deadline:
			return
		}
	}
}

// HybridExecutionContext picks, per compute, between running inline and
// handing off to a worker pool. Small or cheap computes stay inline so
// they never pay goroutine-handoff and channel-round-trip overhead;
// computes that look heavy by shouldDispatch's estimate go to the pool so
// they don't block the node's pipeline goroutine for long stretches.
type HybridExecutionContext struct {
	inline *InlineContext
	pool   *WorkerPoolContext
}

// NewHybridExecutionContext pairs an inline context with a worker pool
// context, routing each compute to whichever the pool's dispatch
// heuristic picks.
func NewHybridExecutionContext(inline *InlineContext, pool *WorkerPoolContext) *HybridExecutionContext {
	return &HybridExecutionContext{inline: inline, pool: pool}
}

// Execute implements ExecutionContext by delegating to the inline or
// pooled context based on the pool's shouldDispatch verdict.
func (h *HybridExecutionContext) Execute(ctx context.Context, pluginType string, config map[string]any, inputs []any) (*Sequence, error) {
	if h.pool.shouldDispatch(pluginType, config, inputs) {
		return h.pool.Execute(ctx, pluginType, config, inputs)
	}
	return h.inline.Execute(ctx, pluginType, config, inputs)
}

// Terminate tears down both the inline and pooled halves.
func (h *HybridExecutionContext) Terminate() {
	h.inline.Terminate()
	h.pool.Terminate()
}
