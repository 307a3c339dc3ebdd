package room

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/driver"
	"github.com/DoyleJ11/meeting-timer-backend/internal/presence"
	"github.com/DoyleJ11/meeting-timer-backend/internal/types"
)

var ErrClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Outbox   chan types.ServerMessage // the room closes it when the client leaves or is dropped
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

// FromClient is a mutation request; it goes through the authority gate.
type FromClient struct {
	ClientID string
	Cmd      agenda.Command
}

func (FromClient) isRoomMsg() {}

type PassMaster struct {
	ClientID string
	ToID     string
}

func (PassMaster) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

// CloseIfIdle shuts the room down when nobody has been connected for at
// least TTL. Reply reports whether it did.
type CloseIfIdle struct {
	TTL   time.Duration
	Reply chan bool
}

func (CloseIfIdle) isRoomMsg() {}

type tickMsg struct{ tick driver.Tick }

func (tickMsg) isRoomMsg() {}

type View struct {
	ID         string
	Version    int
	NumClients int
	State      agenda.State
	Members    presence.Snapshot
	Running    bool
	IdleSince  time.Time // zero while anyone is connected
}

type Options struct {
	Drivers   *driver.Registry
	Clock     clockwork.Clock
	Rules     agenda.Rules
	Logger    *zap.Logger
	InboxSize int
}

type Room struct {
	id      string
	inbox   chan Msg
	state   agenda.State
	version int
	members *presence.Membership
	clients map[string]chan types.ServerMessage

	drivers  *driver.Registry
	clock    clockwork.Clock
	rules    agenda.Rules
	log      *zap.Logger
	tickGen  uint64
	lastTick time.Time

	// Slow clients found during a broadcast, disconnected once the
	// current message has been handled.
	pendingDrops []string

	idleSince time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(parent context.Context, id string, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}

	r := &Room{
		id:        id,
		inbox:     make(chan Msg, opts.InboxSize),
		state:     agenda.NewEmptyState(),
		members:   presence.New(),
		clients:   make(map[string]chan types.ServerMessage),
		drivers:   opts.Drivers,
		clock:     opts.Clock,
		rules:     opts.Rules,
		log:       opts.Logger.Named("room").With(zap.String("room_id", id)),
		idleSince: opts.Clock.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room's loop has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Send queues msg for the room, giving up if ctx ends or the room has shut
// down.
func (r *Room) Send(ctx context.Context, msg Msg) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case r.inbox <- msg:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbox exposes the raw inbox for tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// CloseIfIdle asks the room to shut itself down if it has been empty for
// ttl or longer.
func (r *Room) CloseIfIdle(ctx context.Context, ttl time.Duration) (bool, error) {
	reply := make(chan bool, 1)
	if err := r.Send(ctx, CloseIfIdle{TTL: ttl, Reply: reply}); err != nil {
		return false, err
	}
	select {
	case closed := <-reply:
		return closed, nil
	case <-r.done:
		select {
		case closed := <-reply:
			return closed, nil
		default:
			return false, ErrClosed
		}
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (r *Room) loop() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.join(msg)

			case Leave:
				r.leave(msg.ClientID)

			case FromClient:
				r.handleCommand(msg)

			case PassMaster:
				r.passMaster(msg)

			case tickMsg:
				r.handleTick(msg.tick)

			case GetState:
				msg.Reply <- View{
					ID:         r.id,
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state.Clone(),
					Members:    r.members.Snapshot(),
					Running:    r.state.Running(),
					IdleSince:  r.idleSince,
				}

			case CloseIfIdle:
				if r.idleFor(msg.TTL) {
					r.log.Info("closing idle room", zap.Duration("idle", r.clock.Since(r.idleSince)))
					msg.Reply <- true
					r.shutdown()
					return
				}
				msg.Reply <- false

			case Shutdown:
				r.shutdown()
				return
			}
			r.flushDrops()
		}
	}
}

func (r *Room) idleFor(ttl time.Duration) bool {
	if len(r.clients) > 0 || r.idleSince.IsZero() {
		return false
	}
	return r.clock.Since(r.idleSince) >= ttl
}

func (r *Room) join(msg Join) {
	if _, ok := r.clients[msg.ClientID]; ok {
		return
	}
	mem, err := r.members.Join(msg.ClientID)
	if err != nil {
		r.log.Debug("join rejected", zap.String("client_id", msg.ClientID), zap.Error(err))
		return
	}
	r.clients[msg.ClientID] = msg.Outbox
	r.idleSince = time.Time{}

	r.log.Info("client joined",
		zap.String("client_id", msg.ClientID),
		zap.String("name", mem.Name),
		zap.Bool("master", r.members.IsMaster(msg.ClientID)),
	)

	// Current snapshot and assigned name go to the joiner only.
	if !r.sendTo(msg.ClientID, r.timerState()) || !r.sendTo(msg.ClientID, yourName(mem.Name)) {
		r.drop(msg.ClientID)
		return
	}
	r.broadcast(r.roomClients())
}

func (r *Room) leave(clientID string) {
	if !r.members.Has(clientID) {
		return
	}

	paused := false
	if r.members.IsMaster(clientID) {
		// A departed master's driver must not keep mutating the room.
		r.stopDriver()
		if r.state.Running() {
			r.state.IsPaused = true
			r.version++
			paused = true
		}
	}

	// The departing client is gone from membership before anything is sent.
	if ch, ok := r.clients[clientID]; ok {
		close(ch)
		delete(r.clients, clientID)
	}
	if _, err := r.members.Leave(clientID); err != nil {
		r.log.Warn("membership out of sync", zap.String("client_id", clientID), zap.Error(err))
	}
	if r.members.Len() == 0 {
		r.idleSince = r.clock.Now()
	}

	r.log.Info("client left",
		zap.String("client_id", clientID),
		zap.String("master_id", r.members.MasterID()),
	)
	if paused {
		r.broadcast(r.timerState())
	}
	r.broadcast(r.roomClients())
}

func (r *Room) handleCommand(msg FromClient) {
	if !authorize(r.members, msg.ClientID) {
		r.log.Debug("dropped unauthorized command",
			zap.String("client_id", msg.ClientID),
			zap.String("cmd", string(msg.Cmd.Type)),
		)
		return
	}

	next, effect, err := agenda.Apply(r.state, msg.Cmd, r.rules)
	if err != nil {
		r.log.Debug("dropped command",
			zap.String("client_id", msg.ClientID),
			zap.String("cmd", string(msg.Cmd.Type)),
			zap.Error(err),
		)
		return
	}

	r.state = next
	r.applyEffect(effect)
	r.version++
	r.broadcast(r.timerState())
}

func (r *Room) passMaster(msg PassMaster) {
	if !authorize(r.members, msg.ClientID) {
		r.log.Debug("dropped unauthorized master handoff", zap.String("client_id", msg.ClientID))
		return
	}
	if err := r.members.PassMaster(msg.ClientID, msg.ToID); err != nil {
		r.log.Debug("dropped master handoff",
			zap.String("client_id", msg.ClientID),
			zap.String("to_id", msg.ToID),
			zap.Error(err),
		)
		return
	}
	r.log.Info("master handed off", zap.String("from", msg.ClientID), zap.String("to", msg.ToID))
	r.broadcast(r.roomClients())
}

func (r *Room) handleTick(t driver.Tick) {
	if t.Gen != r.tickGen {
		// Queued before the driver that sent it was superseded or stopped.
		return
	}

	secs := int(t.At.Sub(r.lastTick) / time.Second)
	if secs <= 0 {
		return
	}
	r.lastTick = r.lastTick.Add(time.Duration(secs) * time.Second)

	next, effect, changed := agenda.Tick(r.state, secs)
	r.state = next
	r.applyEffect(effect)
	if changed {
		r.version++
		r.broadcast(r.timerState())
	}
}

func (r *Room) applyEffect(e agenda.Effect) {
	switch e {
	case agenda.EffectStartDriver:
		r.startDriver()
	case agenda.EffectStopDriver:
		r.stopDriver()
	}
}

func (r *Room) startDriver() {
	if r.drivers == nil {
		return
	}
	gen, at := r.drivers.Start(r.id, r.tickSink)
	r.tickGen = gen
	r.lastTick = at
}

func (r *Room) stopDriver() {
	if r.drivers != nil && r.tickGen != 0 {
		r.drivers.Stop(r.id)
	}
	r.tickGen = 0
}

func (r *Room) tickSink(ctx context.Context, t driver.Tick) {
	select {
	case r.inbox <- tickMsg{tick: t}:
	case <-ctx.Done():
	case <-r.ctx.Done():
	}
}

func (r *Room) shutdown() {
	r.stopDriver()
	for id, ch := range r.clients {
		close(ch) // Tell client no more messages
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) timerState() types.ServerMessage {
	return types.ServerMessage{Event: types.EvtTimerState, Version: r.version, Data: r.state.Clone()}
}

func (r *Room) roomClients() types.ServerMessage {
	return types.ServerMessage{Event: types.EvtRoomClients, Data: r.members.Snapshot()}
}

func yourName(name string) types.ServerMessage {
	return types.ServerMessage{Event: types.EvtYourName, Data: name}
}

func (r *Room) sendTo(clientID string, msg types.ServerMessage) bool {
	ch, ok := r.clients[clientID]
	if !ok {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (r *Room) broadcast(msg types.ServerMessage) {
	for id, ch := range r.clients {
		select {
		case ch <- msg:
			//ok
		default:
			// Client is slow/full - drop them.
			r.drop(id)
		}
	}
}

// drop queues a client whose outbox is full. Queued clients are disconnected
// by flushDrops after the current broadcast, never from inside it.
func (r *Room) drop(id string) {
	r.pendingDrops = append(r.pendingDrops, id)
}

// flushDrops sends every queued client through the normal leave path so
// mastership is reassigned. Leaves can queue further drops; those are handled
// in the same pass.
func (r *Room) flushDrops() {
	for len(r.pendingDrops) > 0 {
		id := r.pendingDrops[0]
		r.pendingDrops = r.pendingDrops[1:]
		if !r.members.Has(id) {
			continue
		}
		r.log.Warn("dropping slow client", zap.String("client_id", id))
		r.leave(id)
	}
	r.pendingDrops = nil
}
