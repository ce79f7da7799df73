// Package pipeline drives gazette pages through segmentation, continuation,
// extraction, validation and storage.
package pipeline

// State is a phase of a pipeline run.
type State int

// Run states. DONE and ABORTED are terminal.
const (
	StateIdle State = iota
	StateFetching
	StateSegmenting
	StateStitching
	StateExtracting
	StateValidating
	StateEmitting
	StateDone
	StateAborted
)

var stateNames = map[State]string{
	StateIdle:       "IDLE",
	StateFetching:   "FETCHING",
	StateSegmenting: "SEGMENTING",
	StateStitching:  "STITCHING",
	StateExtracting: "EXTRACTING",
	StateValidating: "VALIDATING",
	StateEmitting:   "EMITTING",
	StateDone:       "DONE",
	StateAborted:    "ABORTED",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "UNKNOWN"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
