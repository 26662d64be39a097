package workflow

import "github.com/garyjia/gst-compliance/internal/domain/entity"

// State represents a stage in the e-Waybill lifecycle
type State string

const (
	StateNonExistent State = entity.EwaybillStatusNonExistent
	StateGenerated   State = entity.EwaybillStatusGenerated
	StateCancelled   State = entity.EwaybillStatusCancelled
	StateExpired     State = entity.EwaybillStatusExpired
)

var validStates = map[State]bool{
	StateNonExistent: true,
	StateGenerated:   true,
	StateCancelled:   true,
	StateExpired:     true,
}

var terminalStates = map[State]bool{
	StateCancelled: true,
	StateExpired:   true,
}

// IsTerminal returns true if no further transitions are possible from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// StateOf maps a persisted record onto its lifecycle state
func StateOf(rec *entity.EwaybillRecord) State {
	if rec == nil || rec.Status == "" {
		return StateNonExistent
	}
	s := State(rec.Status)
	if !s.IsValid() {
		return StateNonExistent
	}
	return s
}
