package driver

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Tick is one firing of a room's driver. Gen identifies the driver instance
// that produced it so a room can discard ticks from a superseded driver that
// were already queued.
type Tick struct {
	RoomID string
	Gen    uint64
	At     time.Time
}

// Sink receives ticks. It must return promptly once ctx is done.
type Sink func(ctx context.Context, t Tick)

type handle struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns at most one running driver per room id.
type Registry struct {
	clock    clockwork.Clock
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	handles map[string]*handle
	nextGen uint64
}

func NewRegistry(clock clockwork.Clock, interval time.Duration, log *zap.Logger) *Registry {
	if interval <= 0 {
		interval = time.Second
	}
	return &Registry{
		clock:    clock,
		interval: interval,
		log:      log.Named("driver"),
		handles:  make(map[string]*handle),
	}
}

// Start launches a driver for roomID, first stopping any driver already
// running for it. It returns the new generation and the instant the driver
// was anchored at.
func (r *Registry) Start(roomID string, sink Sink) (uint64, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.handles[roomID]; ok {
		stopHandle(old)
		r.log.Debug("superseded driver", zap.String("room_id", roomID), zap.Uint64("gen", old.gen))
	}

	r.nextGen++
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{gen: r.nextGen, cancel: cancel, done: make(chan struct{})}
	r.handles[roomID] = h

	// Create the ticker before returning so the anchor instant and the
	// ticker's schedule agree.
	ticker := r.clock.NewTicker(r.interval)
	startedAt := r.clock.Now()
	go r.run(ctx, h, roomID, ticker, sink)

	r.log.Debug("started driver", zap.String("room_id", roomID), zap.Uint64("gen", h.gen))
	return h.gen, startedAt
}

// Stop cancels the driver for roomID and waits for it to exit. It is safe to
// call for rooms with no driver.
func (r *Registry) Stop(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[roomID]
	if !ok {
		return false
	}
	stopHandle(h)
	delete(r.handles, roomID)
	r.log.Debug("stopped driver", zap.String("room_id", roomID), zap.Uint64("gen", h.gen))
	return true
}

func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, h := range r.handles {
		stopHandle(h)
		delete(r.handles, id)
	}
}

func (r *Registry) Active(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[roomID]
	return ok
}

// Gen returns the generation of the running driver for roomID, or 0.
func (r *Registry) Gen(roomID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[roomID]; ok {
		return h.gen
	}
	return 0
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) run(ctx context.Context, h *handle, roomID string, ticker clockwork.Ticker, sink Sink) {
	defer close(h.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.Chan():
			sink(ctx, Tick{RoomID: roomID, Gen: h.gen, At: at})
		}
	}
}

func stopHandle(h *handle) {
	h.cancel()
	<-h.done
}
