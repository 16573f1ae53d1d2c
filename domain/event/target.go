package event

import "slices"

type TargetKind int

const (
	// TargetNone reaches permanent sinks only.
	TargetNone TargetKind = iota
	TargetRoom
	TargetConnections
	TargetAll
)

// Target says who receives an envelope. Room membership is resolved at fanout time.
type Target struct {
	Kind        TargetKind
	Room        string
	Connections []string
	Except      []string
}

func ToRoom(room string, except ...string) Target {
	return Target{Kind: TargetRoom, Room: room, Except: except}
}

func ToConnections(ids ...string) Target {
	return Target{Kind: TargetConnections, Connections: ids}
}

func ToAll() Target {
	return Target{Kind: TargetAll}
}

func ToNone() Target {
	return Target{Kind: TargetNone}
}

// Excludes reports whether the connection is explicitly left out.
func (t Target) Excludes(connectionID string) bool {
	return slices.Contains(t.Except, connectionID)
}
