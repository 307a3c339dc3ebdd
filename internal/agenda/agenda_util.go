package agenda

import (
	"fmt"
	"slices"
)

// WarningThreshold is the remaining time at which clients raise the audible
// "wrap it up" alert.
const WarningThreshold = 30

func NewEmptyState() State {
	return State{
		Phases:            []Phase{},
		CurrentPhaseIndex: 0,
		TimeLeft:          0,
		IsPaused:          true,
	}
}

// Clone returns a copy that shares no backing array with s.
func (s State) Clone() State {
	c := s
	c.Phases = slices.Clone(s.Phases)
	if c.Phases == nil {
		c.Phases = []Phase{}
	}
	return c
}

func (s State) Equal(o State) bool {
	return s.CurrentPhaseIndex == o.CurrentPhaseIndex &&
		s.TimeLeft == o.TimeLeft &&
		s.IsPaused == o.IsPaused &&
		slices.Equal(s.Phases, o.Phases)
}

func (s State) IsEmpty() bool { return len(s.Phases) == 0 }

// Running reports whether a driver should be ticking this state.
func (s State) Running() bool { return !s.IsPaused && len(s.Phases) > 0 }

func (s State) CurrentPhase() (Phase, bool) {
	if !s.hasPhase(s.CurrentPhaseIndex) {
		return Phase{}, false
	}
	return s.Phases[s.CurrentPhaseIndex], true
}

// FormatClock renders seconds as MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ValidatePhases applies the same checks setPhases does.
func ValidatePhases(ps []Phase, rules Rules) error {
	return validatePhases(ps, rules)
}
