package agenda

// Tick advances a running state by elapsed whole seconds. At zero it moves
// to the next phase and pauses there, or pauses on the last phase. changed
// is false when there is nothing to broadcast.
func Tick(s State, elapsed int) (next State, effect Effect, changed bool) {
	if !s.Running() {
		return s, EffectStopDriver, false
	}
	if elapsed <= 0 {
		return s, EffectNone, false
	}

	next = s.Clone()
	next.TimeLeft = max(0, s.TimeLeft-elapsed)
	if next.TimeLeft > 0 {
		return next, EffectNone, true
	}

	if !advance(&next) {
		next.IsPaused = true
	}
	return next, EffectStopDriver, true
}
