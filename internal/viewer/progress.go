package viewer

// ProgressEvent is a single progress callback from the engine. A nil
// TotalSize means the engine cannot tell how much work the phase has.
type ProgressEvent struct {
	Phase     Phase
	Size      int64
	TotalSize *int64
}

var phaseLabels = map[Phase]string{
	PhaseFont:    "Fetching fonts...",
	PhaseFetch:   "Fetching file...",
	PhaseParse:   "Parsing file...",
	PhasePrepare: "Preparing rendering data...",
}

// PhaseLabel returns the user-facing label for a phase.
func PhaseLabel(p Phase) (string, bool) {
	label, ok := phaseLabels[p]
	return label, ok
}

// Aggregate folds one progress event into s and returns the result.
//
// The label only changes when the phase does, and an unknown phase keeps
// the previous label. The ratio is not clamped: size > total yields a value
// above 1 and a zero total yields +Inf or NaN.
func Aggregate(s LoadState, ev ProgressEvent) LoadState {
	if ev.Phase != s.ProgressPhase {
		if label, ok := phaseLabels[ev.Phase]; ok {
			s.ProgressLabel = label
		}
		s.ProgressPhase = ev.Phase
	}

	progress := IndeterminateProgress
	if ev.TotalSize != nil {
		progress = float64(ev.Size) / float64(*ev.TotalSize)
	}
	s.Progress = &progress
	return s
}
