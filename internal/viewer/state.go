package viewer

import "math"

// Phase is a named stage of the engine load pipeline.
type Phase string

const (
	PhaseNone    Phase = ""
	PhaseFont    Phase = "font"
	PhaseFetch   Phase = "fetch"
	PhaseParse   Phase = "parse"
	PhasePrepare Phase = "prepare"
)

// IndeterminateProgress is the progress value reported when the total size
// of the current phase is unknown.
const IndeterminateProgress = -1.0

// LoadState is the observable state of the load controller.
//
// Empty strings and a nil Progress stand for "unset".
type LoadState struct {
	IsLoading     bool     `json:"isLoading"`
	Error         string   `json:"error,omitempty"`
	Progress      *float64 `json:"progress,omitempty"`
	ProgressPhase Phase    `json:"progressPhase,omitempty"`
	ProgressLabel string   `json:"progressLabel,omitempty"`
}

// Failed reports whether the last load settled with an error.
func (s LoadState) Failed() bool { return s.Error != "" }

// Indeterminate reports whether progress is known to be running but its
// ratio cannot be computed.
func (s LoadState) Indeterminate() bool {
	return s.Progress != nil && *s.Progress == IndeterminateProgress
}

// Equal reports whether two states are indistinguishable to an observer.
func (s LoadState) Equal(o LoadState) bool {
	if s.IsLoading != o.IsLoading || s.Error != o.Error ||
		s.ProgressPhase != o.ProgressPhase || s.ProgressLabel != o.ProgressLabel {
		return false
	}
	switch {
	case s.Progress == nil || o.Progress == nil:
		return s.Progress == nil && o.Progress == nil
	case math.IsNaN(*s.Progress) && math.IsNaN(*o.Progress):
		return true
	default:
		return *s.Progress == *o.Progress
	}
}

// settled returns s with every per-load field cleared except Error.
func (s LoadState) settled() LoadState {
	return LoadState{Error: s.Error}
}

// WorldPoint is a position in engine world coordinates.
type WorldPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Presentation is the snapshot an embedding application reads to draw the
// component.
type Presentation struct {
	Load       LoadState   `json:"load"`
	Coordinate *WorldPoint `json:"coordinate,omitempty"`
	URL        string      `json:"url,omitempty"`
}
