package hub

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/driver"
	"github.com/DoyleJ11/meeting-timer-backend/internal/room"
)

var ErrShutdown = errors.New("hub shut down")

type HubMsg interface{ isHubMsg() }

// CreateRoom creates the room if absent. Created reports whether this call
// made it.
type CreateRoom struct {
	ID    string
	Reply chan CreateResult
}

type CreateResult struct {
	Room    *room.Room
	Created bool
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// EnsureRoom returns the live room for ID, creating it if needed.
type EnsureRoom struct {
	ID    string
	Reply chan *room.Room
}

// RemoveRoom forgets ID only if it still maps to Room.
type RemoveRoom struct {
	ID   string
	Room *room.Room
}

type ListRooms struct {
	Reply chan []*room.Room
}

type GetStats struct {
	Reply chan Stats
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (GetStats) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

type Stats struct {
	Rooms         int `json:"rooms"`
	ActiveDrivers int `json:"activeDrivers"`
}

type Options struct {
	Clock        clockwork.Clock
	TickInterval time.Duration
	Rules        agenda.Rules
	// IdleTTL is how long an empty room survives. Zero disables reaping.
	IdleTTL      time.Duration
	ReapInterval time.Duration
	Logger       *zap.Logger
}

type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	drivers *driver.Registry
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		drivers: driver.NewRegistry(opts.Clock, opts.TickInterval, opts.Logger),
		opts:    opts,
		log:     opts.Logger.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	if opts.IdleTTL > 0 {
		go h.janitor()
	}
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Drivers() *driver.Registry { return h.drivers }

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case <-h.done:
		return ErrShutdown
	default:
	}
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func request[T any](ctx context.Context, h *Hub, msg HubMsg, reply chan T) (T, error) {
	var zero T
	if err := h.send(ctx, msg); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, ErrShutdown
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) Ensure(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	return request(ctx, h, EnsureRoom{ID: id, Reply: reply}, reply)
}

// Get returns nil when no live room has the id.
func (h *Hub) Get(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	return request(ctx, h, GetRoom{ID: id, Reply: reply}, reply)
}

func (h *Hub) Create(ctx context.Context, id string) (*room.Room, bool, error) {
	reply := make(chan CreateResult, 1)
	res, err := request(ctx, h, CreateRoom{ID: id, Reply: reply}, reply)
	return res.Room, res.Created, err
}

func (h *Hub) List(ctx context.Context) ([]*room.Room, error) {
	reply := make(chan []*room.Room, 1)
	return request(ctx, h, ListRooms{Reply: reply}, reply)
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	return request(ctx, h, GetStats{Reply: reply}, reply)
}

// Shutdown closes every room and stops the hub. It returns once the hub loop
// has exited.
func (h *Hub) Shutdown() {
	if err := h.send(context.Background(), ShutdownHub{}); err == nil {
		<-h.done
	}
}

func (h *Hub) loop() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.live(msg.ID); rm != nil {
					msg.Reply <- CreateResult{Room: rm}
					break
				}
				msg.Reply <- CreateResult{Room: h.newRoom(msg.ID), Created: true}

			case GetRoom:
				msg.Reply <- h.live(msg.ID) // May be nil

			case EnsureRoom:
				if rm := h.live(msg.ID); rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.newRoom(msg.ID)

			case RemoveRoom:
				if h.rooms[msg.ID] == msg.Room {
					delete(h.rooms, msg.ID)
					h.log.Info("room removed", zap.String("room_id", msg.ID), zap.Int("rooms", len(h.rooms)))
				}

			case ListRooms:
				list := make([]*room.Room, 0, len(h.rooms))
				for _, rm := range h.rooms {
					list = append(list, rm)
				}
				msg.Reply <- list

			case GetStats:
				msg.Reply <- Stats{Rooms: len(h.rooms), ActiveDrivers: h.drivers.Len()}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the room for id unless it is missing or has already exited.
// An exited room is forgotten so the next lookup can replace it.
func (h *Hub) live(id string) *room.Room {
	rm := h.rooms[id]
	if rm == nil {
		return nil
	}
	select {
	case <-rm.Done():
		delete(h.rooms, id)
		return nil
	default:
		return rm
	}
}

func (h *Hub) newRoom(id string) *room.Room {
	rm := room.New(h.ctx, id, room.Options{
		Drivers: h.drivers,
		Clock:   h.opts.Clock,
		Rules:   h.opts.Rules,
		Logger:  h.opts.Logger,
	})
	h.rooms[id] = rm
	h.log.Info("room created", zap.String("room_id", id), zap.Int("rooms", len(h.rooms)))
	return rm
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		select {
		case rm.Inbox() <- room.Shutdown{}:
		case <-rm.Done():
		}
	}
	for _, rm := range h.rooms {
		<-rm.Done()
	}
	clear(h.rooms)
	h.drivers.StopAll()
	h.cancel()
	h.log.Info("hub stopped")
}

func (h *Hub) janitor() {
	ticker := h.opts.Clock.NewTicker(h.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.Chan():
			h.reap()
		}
	}
}

// reap closes rooms that have had no members for IdleTTL. The room itself
// decides, so a client joining concurrently keeps it alive.
func (h *Hub) reap() {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	rooms, err := h.List(ctx)
	if err != nil {
		return
	}
	for _, rm := range rooms {
		closed, err := rm.CloseIfIdle(ctx, h.opts.IdleTTL)
		if err != nil {
			if !errors.Is(err, room.ErrClosed) {
				h.log.Warn("idle check failed", zap.String("room_id", rm.ID()), zap.Error(err))
				continue
			}
			closed = true
		}
		if closed {
			_ = h.send(ctx, RemoveRoom{ID: rm.ID(), Room: rm})
		}
	}
}
