package sendspin

// GroupState represents the playback state of a group
type GroupState int

const (
	// GroupStateIdle indicates no stream is playing in the group
	GroupStateIdle GroupState = iota
	// GroupStateBuffering indicates a stream was announced and members are preparing
	GroupStateBuffering
	// GroupStatePlaying indicates the group is playing its current stream
	GroupStatePlaying
)

// String returns a human-readable string representation of the group state
func (gs GroupState) String() string {
	switch gs {
	case GroupStateIdle:
		return "idle"
	case GroupStateBuffering:
		return "buffering"
	case GroupStatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// IsActive returns true if the group currently has a stream underway
func (gs GroupState) IsActive() bool {
	return gs == GroupStateBuffering || gs == GroupStatePlaying
}

// CanTransitionTo checks if a state transition is valid
func (gs GroupState) CanTransitionTo(newState GroupState) bool {
	switch gs {
	case GroupStateIdle:
		return newState == GroupStateBuffering
	case GroupStateBuffering:
		return newState == GroupStatePlaying || newState == GroupStateIdle
	case GroupStatePlaying:
		return newState == GroupStateIdle
	default:
		return false
	}
}
