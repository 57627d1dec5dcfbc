package reactor

// Sentinel is a process-wide marker tag distinct from any plugin value
// domain. Rather than smuggling a sentinel object through the value
// channel (which a plugin could collide with by accident), every value
// flowing through the graph is wrapped in a Signal that carries an
// explicit tag alongside the payload.
type Sentinel int

const (
	// sentinelNone marks an ordinary, non-sentinel value.
	sentinelNone Sentinel = iota
	// sentinelInit is the placeholder every node output starts as.
	sentinelInit
	// sentinelSkip is emitted by data nodes not selected for the current round.
	sentinelSkip
)

// on-wire sentinel names, preserved for snapshot compatibility.
const (
	wireInit = "INIT_NODE_EXEC"
	wireSkip = "SKIP_NODE_EXEC"
)

// Signal is the tagged value that travels through output channels and
// pipelines. A zero Signal is sentinelNone with a nil Value, which never
// occurs on a live channel (every channel is seeded with Init()).
type Signal struct {
	tag   Sentinel
	value any
}

// Init returns the INIT sentinel signal.
func Init() Signal { return Signal{tag: sentinelInit} }

// Skip returns the SKIP sentinel signal.
func Skip() Signal { return Signal{tag: sentinelSkip} }

// Of wraps an ordinary plugin value.
func Of(v any) Signal { return Signal{tag: sentinelNone, value: v} }

// IsInit reports whether the signal is the INIT sentinel.
func (s Signal) IsInit() bool { return s.tag == sentinelInit }

// IsSkip reports whether the signal is the SKIP sentinel.
func (s Signal) IsSkip() bool { return s.tag == sentinelSkip }

// IsValue reports whether the signal carries a concrete plugin value.
func (s Signal) IsValue() bool { return s.tag == sentinelNone }

// Value returns the wrapped payload. Callers must check IsValue first;
// INIT is never delivered to a plugin, and callers that look anyway get
// the zero value back.
func (s Signal) Value() any { return s.value }

// wireEncode renders a signal's JSON-safe counterpart for snapshotting.
func wireEncode(s Signal) any {
	switch s.tag {
	case sentinelInit:
		return wireInit
	case sentinelSkip:
		return wireSkip
	default:
		return s.value
	}
}

// wireDecode inverts wireEncode when importing a snapshot.
func wireDecode(v any) Signal {
	switch v {
	case wireInit:
		return Init()
	case wireSkip:
		return Skip()
	default:
		return Of(v)
	}
}
