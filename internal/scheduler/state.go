package scheduler

import "fmt"

// State is the position of one artifact in the pipeline.
type State int

const (
	StateNew State = iota
	StateTranscribing
	StateTranscribed
	StateClassifying
	StateClassified
	StatePublishing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateTranscribing:
		return "transcribing"
	case StateTranscribed:
		return "transcribed"
	case StateClassifying:
		return "classifying"
	case StateClassified:
		return "classified"
	case StatePublishing:
		return "publishing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions is the legal successor set per state. Failed is reachable from
// every non-terminal working state; Done only from Publishing.
var transitions = map[State][]State{
	StateNew:          {StateTranscribing, StateFailed},
	StateTranscribing: {StateTranscribed, StateFailed},
	StateTranscribed:  {StateClassifying, StateFailed},
	StateClassifying:  {StateClassified, StateFailed},
	StateClassified:   {StatePublishing, StateFailed},
	StatePublishing:   {StateDone, StateFailed},
	StateDone:         {},
	StateFailed:       {},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
