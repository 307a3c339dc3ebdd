package agenda

import (
	"errors"
	"slices"
)

var ErrEmptyAgenda = errors.New("agenda has no phases")
var ErrInvalidTarget = errors.New("phase index out of range")
var ErrInvalidPhase = errors.New("invalid phase")
var ErrTooManyPhases = errors.New("too many phases")
var ErrNoChange = errors.New("no state change")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"` // whole seconds
}

// State is the canonical record of one room's agenda. Field names match the
// browser client's wire format.
type State struct {
	Phases            []Phase `json:"phases"`
	CurrentPhaseIndex int     `json:"currentPhaseIndex"`
	TimeLeft          int     `json:"timeLeft"`
	IsPaused          bool    `json:"isPaused"`
}

type Rules struct {
	MaxPhases int // 0 means unlimited
}

type CommandType string

const (
	CmdSetPhases      CommandType = "setPhases"
	CmdAddTask        CommandType = "addTask"
	CmdRemoveTask     CommandType = "removeTask"
	CmdUpdateTask     CommandType = "updateTask"
	CmdStartTimer     CommandType = "startTimer"
	CmdPauseTimer     CommandType = "pauseTimer"
	CmdResumeTimer    CommandType = "resumeTimer"
	CmdStopTimer      CommandType = "stopTimer"
	CmdResetTimer     CommandType = "resetTimer"
	CmdSkipTask       CommandType = "skipTask"
	CmdUpdateTimeLeft CommandType = "updateTimeLeft"
)

type Command struct {
	Type    CommandType
	Index   int
	Phase   Phase
	Phases  []Phase
	Seconds int
}

// Effect tells the owner of a State what to do with the room's timer driver
// after a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectStartDriver
	EffectStopDriver
)

func (e Effect) String() string {
	switch e {
	case EffectStartDriver:
		return "start"
	case EffectStopDriver:
		return "stop"
	default:
		return "none"
	}
}

// Apply runs one mutation against s and returns the resulting state. Any
// error means the command must be dropped: s is returned untouched and
// nothing should be broadcast.
func Apply(s State, cmd Command, rules Rules) (State, Effect, error) {
	next := s.Clone()

	switch cmd.Type {
	case CmdSetPhases:
		if err := validatePhases(cmd.Phases, rules); err != nil {
			return s, EffectNone, err
		}
		next.Phases = slices.Clone(cmd.Phases)
		if next.Phases == nil {
			next.Phases = []Phase{}
		}
		next.CurrentPhaseIndex = 0
		next.TimeLeft = 0
		if len(next.Phases) > 0 {
			next.TimeLeft = next.Phases[0].Duration
		}
		next.IsPaused = true
		return next, EffectStopDriver, nil

	case CmdAddTask:
		if err := validatePhase(cmd.Phase); err != nil {
			return s, EffectNone, err
		}
		if rules.MaxPhases > 0 && len(s.Phases) >= rules.MaxPhases {
			return s, EffectNone, ErrTooManyPhases
		}
		next.Phases = append(next.Phases, cmd.Phase)
		return next, EffectNone, nil

	case CmdRemoveTask:
		if !s.hasPhase(cmd.Index) {
			return s, EffectNone, ErrInvalidTarget
		}
		next.Phases = slices.Delete(next.Phases, cmd.Index, cmd.Index+1)
		if len(next.Phases) == 0 {
			return emptied(next), EffectStopDriver, nil
		}

		removedCurrent := cmd.Index == s.CurrentPhaseIndex
		if cmd.Index <= next.CurrentPhaseIndex && next.CurrentPhaseIndex > 0 {
			next.CurrentPhaseIndex--
		}
		if next.CurrentPhaseIndex >= len(next.Phases) {
			next.CurrentPhaseIndex = len(next.Phases) - 1
		}
		if removedCurrent {
			// The running phase is gone; land paused on whatever is current now.
			next.TimeLeft = next.Phases[next.CurrentPhaseIndex].Duration
			next.IsPaused = true
			return next, EffectStopDriver, nil
		}
		return next, EffectNone, nil

	case CmdUpdateTask:
		if !s.hasPhase(cmd.Index) {
			return s, EffectNone, ErrInvalidTarget
		}
		if err := validatePhase(cmd.Phase); err != nil {
			return s, EffectNone, err
		}
		// timeLeft is deliberately left alone even for the current phase; a
		// new duration takes effect on the next startTimer.
		next.Phases[cmd.Index] = cmd.Phase
		return next, EffectNone, nil

	case CmdStartTimer:
		if len(s.Phases) == 0 {
			return s, EffectNone, ErrEmptyAgenda
		}
		if !s.hasPhase(cmd.Index) {
			return s, EffectNone, ErrInvalidTarget
		}
		next.CurrentPhaseIndex = cmd.Index
		next.TimeLeft = s.Phases[cmd.Index].Duration
		next.IsPaused = false
		return next, EffectStartDriver, nil

	case CmdPauseTimer:
		if len(s.Phases) == 0 {
			return s, EffectNone, ErrEmptyAgenda
		}
		next.IsPaused = true
		return next, EffectStopDriver, nil

	case CmdResumeTimer:
		if len(s.Phases) == 0 {
			return s, EffectNone, ErrEmptyAgenda
		}
		if !s.IsPaused || s.TimeLeft <= 0 {
			return s, EffectNone, ErrNoChange
		}
		next.IsPaused = false
		return next, EffectStartDriver, nil

	case CmdStopTimer:
		if len(s.Phases) == 0 {
			return s, EffectNone, ErrEmptyAgenda
		}
		next.IsPaused = true
		next.TimeLeft = s.Phases[s.CurrentPhaseIndex].Duration
		return next, EffectStopDriver, nil

	case CmdResetTimer:
		if len(s.Phases) == 0 {
			return s, EffectNone, ErrEmptyAgenda
		}
		next.CurrentPhaseIndex = 0
		next.TimeLeft = s.Phases[0].Duration
		next.IsPaused = true
		return next, EffectStopDriver, nil

	case CmdSkipTask:
		if len(s.Phases) == 0 {
			return s, EffectNone, ErrEmptyAgenda
		}
		if !advance(&next) {
			return s, EffectNone, ErrNoChange
		}
		return next, EffectStopDriver, nil

	case CmdUpdateTimeLeft:
		if len(s.Phases) == 0 {
			return s, EffectNone, ErrEmptyAgenda
		}
		v := min(max(cmd.Seconds, 0), s.Phases[s.CurrentPhaseIndex].Duration)
		if v == s.TimeLeft {
			return s, EffectNone, ErrNoChange
		}
		// A hint may correct a live countdown downwards but never rewind it.
		if !s.IsPaused && v > s.TimeLeft {
			return s, EffectNone, ErrNoChange
		}
		next.TimeLeft = v
		return next, EffectNone, nil

	default:
		return s, EffectNone, ErrUnsupportedCommand
	}
}

// advance moves to the next phase at its full duration, paused. It reports
// false when s is already on the last phase.
func advance(s *State) bool {
	if s.CurrentPhaseIndex >= len(s.Phases)-1 {
		return false
	}
	s.CurrentPhaseIndex++
	s.TimeLeft = s.Phases[s.CurrentPhaseIndex].Duration
	s.IsPaused = true
	return true
}

func emptied(s State) State {
	s.Phases = []Phase{}
	s.CurrentPhaseIndex = 0
	s.TimeLeft = 0
	s.IsPaused = true
	return s
}

func (s State) hasPhase(i int) bool {
	return i >= 0 && i < len(s.Phases)
}

func validatePhase(p Phase) error {
	if p.Duration < 0 {
		return ErrInvalidPhase
	}
	return nil
}

func validatePhases(ps []Phase, rules Rules) error {
	if rules.MaxPhases > 0 && len(ps) > rules.MaxPhases {
		return ErrTooManyPhases
	}
	for _, p := range ps {
		if err := validatePhase(p); err != nil {
			return err
		}
	}
	return nil
}
