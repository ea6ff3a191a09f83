package engine

// State is an engine state.
type State int

// States.
const (
	StateUninitialized State = iota
	StateConfigured
	StateRunning
	StateFlushing
	StateStopped
	StateReleased
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateFlushing:
		return "flushing"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	}
	return "unknown"
}
