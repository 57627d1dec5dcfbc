// Package extensions holds optional Engine observers that sit outside the
// core package: debugging aids and logging wired through OnHook rather
// than engine internals.
package extensions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/m1gwings/treedrawer/tree"
	"github.com/rs/zerolog"

	"github.com/legann/dexrx-sub000"
)

// GraphDebugExtension renders the node dependency graph as a tree whenever
// a node's compute fails, so a NODE_COMPUTE_ERROR log line carries enough
// context to see what fed the failing node and what it would have fed in
// turn. It tracks which nodes have been added (NodeAdded) and which are
// currently erroring so the rendered tree can mark both.
type GraphDebugExtension struct {
	logger zerolog.Logger

	mu       sync.Mutex
	resolved map[string]bool
	failed   map[string]error
	cleanups []reactor.Cleanup
}

// NewGraphDebugExtension builds the extension and subscribes it to engine.
// Call Close to unsubscribe.
func NewGraphDebugExtension(engine *reactor.Engine, logger zerolog.Logger) *GraphDebugExtension {
	ext := &GraphDebugExtension{
		logger:   logger,
		resolved: make(map[string]bool),
		failed:   make(map[string]error),
	}

	ext.cleanups = append(ext.cleanups,
		engine.OnHook(reactor.NodeComputeError, func(args ...any) {
			if len(args) < 2 {
				return
			}
			nodeID, _ := args[0].(string)
			err, _ := args[1].(error)
			ext.onError(engine, nodeID, err)
		}),
		engine.OnHook(reactor.NodeAdded, func(args ...any) {
			if len(args) == 0 {
				return
			}
			if id, ok := args[0].(string); ok {
				ext.markResolved(id)
			}
		}),
	)
	return ext
}

// Close unsubscribes the extension from every hook it registered.
func (e *GraphDebugExtension) Close() {
	for _, c := range e.cleanups {
		c()
	}
}

func (e *GraphDebugExtension) markResolved(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolved[nodeID] = true
	delete(e.failed, nodeID)
}

func (e *GraphDebugExtension) onError(engine *reactor.Engine, nodeID string, cause error) {
	e.mu.Lock()
	e.failed[nodeID] = cause
	e.mu.Unlock()

	graphOutput := e.formatDependencyGraph(engine, nodeID, cause)
	e.logger.Error().
		Str("node", nodeID).
		Err(cause).
		Str("dependency_graph", graphOutput).
		Msg("node compute failed")
}

func (e *GraphDebugExtension) formatDependencyGraph(engine *reactor.Engine, failedID string, failedErr error) string {
	graph := engine.ExportDependencyGraph()

	var sb strings.Builder
	if len(graph) == 0 {
		sb.WriteString("\n(empty - no reactive dependencies tracked)")
		return sb.String()
	}

	if horizontal := e.tryFormatHorizontalTree(graph, failedID); horizontal != "" {
		sb.WriteString("\n")
		sb.WriteString(horizontal)
		sb.WriteString("\n")
	}

	sb.WriteString("\nDetailed view:\n")

	parents := make([]string, 0, len(graph))
	for id := range graph {
		parents = append(parents, id)
	}
	sort.Strings(parents)

	for _, id := range parents {
		children := append([]string(nil), graph[id]...)
		sort.Strings(children)

		status := e.statusSuffix(id)
		if len(children) == 0 {
			fmt.Fprintf(&sb, "  %s%s (no dependents)\n", id, status)
			continue
		}
		fmt.Fprintf(&sb, "  %s%s\n", id, status)
		for i, child := range children {
			marker := "├─>"
			if i == len(children)-1 {
				marker = "└─>"
			}
			fmt.Fprintf(&sb, "    %s %s%s\n", marker, child, e.statusSuffix(child))
		}
	}

	if failedErr != nil {
		fmt.Fprintf(&sb, "\nError details:\n  Node: %s\n  Error: %v\n", failedID, failedErr)
	}
	return sb.String()
}

func (e *GraphDebugExtension) statusSuffix(nodeID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, failed := e.failed[nodeID]; failed {
		return " ❌"
	}
	if e.resolved[nodeID] {
		return " ✓"
	}
	return " (pending)"
}

// tryFormatHorizontalTree renders the dependency graph rooted at its
// parentless nodes using treedrawer, falling back to "" (letting the
// caller use the detailed vertical listing alone) when no parentless node
// exists.
func (e *GraphDebugExtension) tryFormatHorizontalTree(graph map[string][]string, failedID string) string {
	parentsOf := make(map[string][]string)
	allNodes := make(map[string]bool)
	for parent, children := range graph {
		allNodes[parent] = true
		for _, child := range children {
			allNodes[child] = true
			parentsOf[child] = append(parentsOf[child], parent)
		}
	}

	var roots []string
	for id := range allNodes {
		if len(parentsOf[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	if len(roots) == 0 {
		return ""
	}

	var root *tree.Tree
	if len(roots) == 1 {
		root = e.buildTree(roots[0], graph, failedID, make(map[string]bool))
	} else {
		root = tree.NewTree(tree.NodeString("dependencies"))
		for _, r := range roots {
			if child := e.buildTree(r, graph, failedID, make(map[string]bool)); child != nil {
				attachChild(root, child)
			}
		}
	}
	if root == nil {
		return ""
	}
	return root.String()
}

func (e *GraphDebugExtension) buildTree(nodeID string, graph map[string][]string, failedID string, visited map[string]bool) *tree.Tree {
	if visited[nodeID] {
		return nil
	}
	visited[nodeID] = true

	label := nodeID + e.statusSuffix(nodeID)
	if nodeID == failedID {
		label = nodeID + " ❌ FAILED"
	}
	node := tree.NewTree(tree.NodeString(label))

	children := append([]string(nil), graph[nodeID]...)
	sort.Strings(children)
	for _, child := range children {
		if childTree := e.buildTree(child, graph, failedID, visited); childTree != nil {
			attachChild(node, childTree)
		}
	}
	return node
}

func attachChild(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		attachChild(newChild, grandchild)
	}
}
