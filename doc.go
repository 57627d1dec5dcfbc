// Package reactor provides a dynamic, dependency-graph dataflow engine
// for Go: register plugins, wire them into a live node graph, and let
// the engine propagate values and re-computation through it.
//
// # Overview
//
// Reactor organizes an application around three concepts:
//
//  1. Plugins: registered compute functions, tagged data or operational
//  2. Nodes: instances of a plugin wired to named inputs at runtime
//  3. Engine: the running graph — lifecycle, caching, hooks, stabilisation
//
// # Basic Usage
//
// Register plugins, build an engine, and wire nodes:
//
//	registry := reactor.NewRegistry()
//	registry.Register(&reactor.PluginFunc{
//	    TypeName: "constant",
//	    Kind:     reactor.CategoryData,
//	    Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
//	        return config["value"], nil
//	    },
//	})
//
//	engine, err := reactor.NewEngine(registry, reactor.WithAutoStart(true))
//	defer engine.Destroy()
//
//	engine.AddNode(reactor.NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 1}})
//
// # Node Categories
//
// Data nodes are sources: they compute without inputs. Operational
// nodes depend on other nodes' outputs and observe skip-propagation —
// if any input signal is SKIP, the operational node's compute is never
// invoked; the engine emits NODE_SKIP_COMPUTATION for it and nothing is
// published on its output:
//
//	registry.Register(&reactor.PluginFunc{
//	    TypeName: "sum",
//	    Kind:     reactor.CategoryOperational,
//	    Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
//	        total := 0.0
//	        for _, in := range inputs {
//	            n, _ := in.(float64)
//	            total += n
//	        }
//	        return total, nil
//	    },
//	})
//
// # Subscribing and Stabilizing
//
// Subscribe to a node's output channel, then wait for the graph to
// settle:
//
//	cleanup, _ := engine.Subscribe("sum", func(sig reactor.Signal) {
//	    if sig.IsValue() {
//	        fmt.Println(sig.Value())
//	    }
//	})
//	defer cleanup()
//
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//	engine.Stabilize(ctx)
//
// # Rate Shaping
//
// An engine can be configured to debounce, throttle, and/or suppress
// duplicate values before they reach downstream computes:
//
//	engine, _ := reactor.NewEngine(registry,
//	    reactor.WithDebounce(50*time.Millisecond),
//	    reactor.WithThrottle(10*time.Millisecond),
//	    reactor.WithDistinctValues(true),
//	)
//
// # Caching
//
// Per-node memoisation is enabled by default, keyed on a node's inputs
// (and, optionally, its config). Override per node via
// NodeDefinition.CacheOptions, or swap the storage backend entirely:
//
//	engine, _ := reactor.NewEngine(registry,
//	    reactor.WithCacheProvider(sqliteProvider),
//	)
//
// # Snapshot and Restore
//
// A prior engine's exported state can be imported into another engine —
// the target is paused first if running, and its existing nodes are
// cleared before the snapshot's nodes are restored:
//
//	snapshot, _ := sourceEngine.ExportState(true)
//	data, _ := reactor.EncodeSnapshot(snapshot)
//
//	restored, _ := reactor.DecodeSnapshot(data)
//	targetEngine.ImportState(restored, reactor.ImportOptions{})
//
// # Hooks
//
// OnHook subscribes to lifecycle and per-node events (node added,
// removed, updated, compute error, skip, engine state transitions,
// health checks, threshold breaches):
//
//	cleanup := engine.OnHook(reactor.NodeComputeError, func(args ...any) {
//	    nodeID, _ := args[0].(string)
//	    log.Printf("node %s failed", nodeID)
//	})
//
// # Execution Contexts
//
// By default every node's compute runs inline on its own pipeline
// goroutine. WithWorkerPool dispatches heavier computes to a bounded,
// least-loaded worker pool instead, selected by a size heuristic over
// the node's config and inputs:
//
//	engine, _ := reactor.NewEngine(registry,
//	    reactor.WithWorkerPool(reactor.ParallelOptions{MaxWorkers: 8}),
//	)
//
// # Thread Safety
//
// Engine, Registry, NodeCache and HookManager are safe for concurrent
// use. Subscriptions, hook handlers and plugin computes may run
// concurrently with one another; a plugin's own compute function must
// be safe to invoke from more than one goroutine unless its node is
// known to be single-writer.
package reactor
