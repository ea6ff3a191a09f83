package codecpump

// ReconfigureMode is a reconfiguration mode.
type ReconfigureMode int

// reconfiguration modes.
const (
	// ReconfigureNone disables reconfiguration.
	ReconfigureNone ReconfigureMode = iota

	// ReconfigureFlush flushes every engine.
	ReconfigureFlush

	// ReconfigureRestart stops every engine, configures it again with the same format and starts it.
	ReconfigureRestart
)

// String implements fmt.Stringer.
func (m ReconfigureMode) String() string {
	switch m {
	case ReconfigureNone:
		return "none"
	case ReconfigureFlush:
		return "flush"
	case ReconfigureRestart:
		return "restart"
	}
	return "unknown"
}

// Trigger is the moment a reconfiguration is performed.
type Trigger int

// triggers.
const (
	// TriggerAfterFirstOutput performs the reconfiguration when the
	// terminal engine returns its first non-empty output buffer.
	TriggerAfterFirstOutput Trigger = iota

	// TriggerImmediately performs the reconfiguration before any data is submitted.
	TriggerImmediately
)

// String implements fmt.Stringer.
func (t Trigger) String() string {
	switch t {
	case TriggerAfterFirstOutput:
		return "after first output"
	case TriggerImmediately:
		return "immediately"
	}
	return "unknown"
}

// Policy is a reconfiguration request. It is consumed at most once per run.
type Policy struct {
	Mode    ReconfigureMode
	Trigger Trigger

	// timestamp the source is moved to after the reconfiguration, in microseconds.
	// The source is moved to the nearest sync point.
	SeekTarget int64
}

// Reconfiguration describes a reconfiguration that has been performed.
type Reconfiguration struct {
	Policy

	// non-empty output units recorded before the reconfiguration.
	DiscardedUnits int

	// timestamp of the source after the seek.
	SourceTimestamp int64
}
