// Package client mirrors a room's authoritative state on the participant
// side and predicts the live countdown between snapshots.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/presence"
)

// Reconciler holds the last snapshot received from the server. Snapshots
// always win over local prediction, and applying the same snapshot twice is a
// no-op.
type Reconciler struct {
	clock clockwork.Clock

	mu       sync.Mutex
	state    agenda.State
	lastRaw  []byte
	anchorAt time.Time // when state.TimeLeft was observed

	name    string
	members presence.Snapshot

	lastPredicted int
	lastSent      int
}

func NewReconciler(clock clockwork.Clock) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{
		clock:         clock,
		state:         agenda.NewEmptyState(),
		anchorAt:      clock.Now(),
		lastPredicted: -1,
		lastSent:      -1,
	}
}

// ApplyState takes a timerState payload. It reports whether the local view
// changed.
func (r *Reconciler) ApplyState(raw []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastRaw != nil && bytes.Equal(raw, r.lastRaw) {
		return false, nil
	}
	var s agenda.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("decode timerState: %w", err)
	}
	if s.Phases == nil {
		s.Phases = []agenda.Phase{}
	}
	r.lastRaw = bytes.Clone(raw)
	// Accepted: a same-phase restart inside one tick keeps the old anchor, so
	// the prediction can run up to one interval ahead until the next tick.
	if s.Equal(r.state) {
		return false, nil
	}

	r.state = s
	r.anchorAt = r.clock.Now()
	r.lastPredicted = s.TimeLeft
	return true, nil
}

// SetName records the label the server assigned to this connection.
func (r *Reconciler) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

func (r *Reconciler) ApplyMembers(s presence.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = s
}

func (r *Reconciler) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

func (r *Reconciler) Members() presence.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members
}

// IsMaster reports whether this connection currently holds mastership.
func (r *Reconciler) IsMaster() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isMasterLocked()
}

func (r *Reconciler) isMasterLocked() bool {
	if r.name == "" || r.members.MasterID == "" {
		return false
	}
	for _, m := range r.members.Members {
		if m.Name == r.name {
			return m.ID == r.members.MasterID
		}
	}
	return false
}

// Predict returns the last snapshot with TimeLeft advanced by the time
// elapsed since it arrived. Paused and empty rooms are returned as is.
func (r *Reconciler) Predict() agenda.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.predictLocked()
}

func (r *Reconciler) predictLocked() agenda.State {
	s := r.state.Clone()
	if !s.Running() {
		return s
	}
	elapsed := int(r.clock.Since(r.anchorAt) / time.Second)
	s.TimeLeft = max(0, s.TimeLeft-elapsed)
	return s
}

// Hint returns a value for an updateTimeLeft message, at most once per change
// of the predicted second and never repeating the last value sent. Only the
// master sends hints.
func (r *Reconciler) Hint() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isMasterLocked() {
		return 0, false
	}
	s := r.predictLocked()
	if !s.Running() || s.TimeLeft == r.lastPredicted {
		return 0, false
	}
	r.lastPredicted = s.TimeLeft
	if s.TimeLeft == r.lastSent {
		return 0, false
	}
	r.lastSent = s.TimeLeft
	return s.TimeLeft, true
}

// Warning reports whether the running phase is inside its final stretch.
func (r *Reconciler) Warning() bool {
	s := r.Predict()
	return s.Running() && s.TimeLeft > 0 && s.TimeLeft <= agenda.WarningThreshold
}
