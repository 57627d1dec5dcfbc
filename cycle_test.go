package reactor

import "testing"

func TestNodeGraph_WouldCycleDirect(t *testing.T) {
	g := newNodeGraph()
	g.set("a", nil)
	g.set("b", []string{"a"})

	if g.wouldCycle("a", []string{"b"}) != true {
		t.Fatal("expected a->b->a to be detected as a cycle")
	}
}

func TestNodeGraph_WouldCycleTransitive(t *testing.T) {
	g := newNodeGraph()
	g.set("a", nil)
	g.set("b", []string{"a"})
	g.set("c", []string{"b"})

	if !g.wouldCycle("a", []string{"c"}) {
		t.Fatal("expected a->c->b->a to be detected as a cycle")
	}
}

func TestNodeGraph_NoCycleForValidDAG(t *testing.T) {
	g := newNodeGraph()
	g.set("a", nil)
	g.set("b", []string{"a"})

	if g.wouldCycle("c", []string{"a", "b"}) {
		t.Fatal("did not expect a cycle for a valid diamond dependency")
	}
}

func TestNodeGraph_DirectDependents(t *testing.T) {
	g := newNodeGraph()
	g.set("a", nil)
	g.set("b", []string{"a"})
	g.set("c", []string{"a"})

	deps := g.directDependents("a")
	if len(deps) != 2 {
		t.Fatalf("expected 2 dependents of a, got %d", len(deps))
	}
}

func TestNodeGraph_RemoveClearsEdges(t *testing.T) {
	g := newNodeGraph()
	g.set("a", nil)
	g.set("b", []string{"a"})
	g.remove("b")

	if len(g.directDependents("a")) != 0 {
		t.Fatal("expected no dependents of a after removing b")
	}
}

func TestNodeGraph_ExportDependentsIsACopy(t *testing.T) {
	g := newNodeGraph()
	g.set("a", nil)
	g.set("b", []string{"a"})

	exported := g.exportDependents()
	exported["a"] = append(exported["a"], "tampered")

	if len(g.directDependents("a")) != 1 {
		t.Fatal("mutating the exported map must not affect the live graph")
	}
}
