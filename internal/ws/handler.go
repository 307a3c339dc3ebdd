package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/hub"
	"github.com/DoyleJ11/meeting-timer-backend/internal/room"
	"github.com/DoyleJ11/meeting-timer-backend/internal/templates"
	"github.com/DoyleJ11/meeting-timer-backend/internal/types"
)

const (
	maxMessageSize = 64 << 10
	writeWait      = 3 * time.Second
	opTimeout      = 5 * time.Second
)

type Options struct {
	Hub            *hub.Hub
	Templates      templates.Store // nil disables applyTemplate
	OutboxSize     int
	PingInterval   time.Duration
	OriginPatterns []string // nil accepts any origin
	Logger         *zap.Logger
}

func Handler(opts Options) http.HandlerFunc {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 16
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		accept := &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns}
		if opts.OriginPatterns == nil {
			accept.InsecureSkipVerify = true
		}
		conn, err := websocket.Accept(w, r, accept)
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(maxMessageSize)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s := &session{
			id:     uuid.NewString(),
			conn:   conn,
			opts:   opts,
			ctx:    ctx,
			cancel: cancel,
		}
		s.log = log.With(zap.String("client_id", s.id))
		s.log.Debug("connected", zap.String("remote", r.RemoteAddr))
		defer s.leaveRoom()

		go s.keepAlive()
		s.readLoop()
	}
}

// session is one websocket connection. Only the read loop touches room and
// roomID.
type session struct {
	id     string
	conn   *websocket.Conn
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	room   *room.Room
	roomID string
	left   chan struct{} // closed when we leave room on purpose
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.log.Debug("closed by client")
			default:
				if s.ctx.Err() == nil {
					s.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}
		s.handle(data)
	}
}

// handle processes one client frame. A bad frame is logged and dropped; it
// never takes down the connection.
func (s *session) handle(data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic handling message", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()

	var cm types.ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		s.log.Debug("bad json", zap.Error(err))
		return
	}

	if cm.Event == types.EvtJoinRoom {
		roomID, ok := parseRoomID(cm.Data)
		if !ok {
			s.log.Debug("joinRoom without room id")
			return
		}
		s.joinRoom(roomID)
		return
	}

	var p types.ClientPayload
	if len(cm.Data) > 0 {
		if err := json.Unmarshal(cm.Data, &p); err != nil {
			s.log.Debug("bad payload", zap.String("event", cm.Event), zap.Error(err))
			return
		}
	}
	if s.room == nil || (p.RoomID != "" && p.RoomID != s.roomID) {
		// Not a member of the addressed room, so it cannot be its master.
		s.log.Debug("dropped event for foreign room", zap.String("event", cm.Event), zap.String("room_id", p.RoomID))
		return
	}

	var msg room.Msg
	switch cm.Event {
	case types.EvtPassMaster:
		if p.ToID == "" {
			return
		}
		msg = room.PassMaster{ClientID: s.id, ToID: p.ToID}

	case types.EvtApplyTemplate:
		cmd, ok := s.templateCommand(p.Name)
		if !ok {
			return
		}
		msg = room.FromClient{ClientID: s.id, Cmd: cmd}

	default:
		cmd, ok := toCommand(cm.Event, p)
		if !ok {
			s.log.Debug("dropped malformed event", zap.String("event", cm.Event))
			return
		}
		msg = room.FromClient{ClientID: s.id, Cmd: cmd}
	}

	ctx, cancel := context.WithTimeout(s.ctx, opTimeout)
	defer cancel()
	if err := s.room.Send(ctx, msg); err != nil {
		s.log.Debug("room unavailable", zap.String("room_id", s.roomID), zap.Error(err))
	}
}

func (s *session) templateCommand(name string) (agenda.Command, bool) {
	if s.opts.Templates == nil || name == "" {
		return agenda.Command{}, false
	}
	ctx, cancel := context.WithTimeout(s.ctx, opTimeout)
	defer cancel()
	t, err := s.opts.Templates.Get(ctx, name)
	if err != nil {
		s.log.Debug("template lookup failed", zap.String("name", name), zap.Error(err))
		return agenda.Command{}, false
	}
	return agenda.Command{Type: agenda.CmdSetPhases, Phases: t.Phases}, true
}

// joinRoom moves the session into roomID, leaving any room it was in.
func (s *session) joinRoom(roomID string) {
	if roomID == s.roomID && s.room != nil {
		return
	}
	s.leaveRoom()

	ctx, cancel := context.WithTimeout(s.ctx, opTimeout)
	defer cancel()

	out := make(chan types.ServerMessage, s.opts.OutboxSize)
	for attempt := 0; attempt < 2; attempt++ {
		rm, err := s.opts.Hub.Ensure(ctx, roomID)
		if err != nil {
			s.log.Warn("ensure room failed", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		err = rm.Send(ctx, room.Join{ClientID: s.id, Outbox: out})
		if errors.Is(err, room.ErrClosed) {
			// Reaped between lookup and join; the hub replaces it on retry.
			continue
		}
		if err != nil {
			s.log.Warn("join failed", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		s.room, s.roomID, s.left = rm, roomID, make(chan struct{})
		go s.writeLoop(out, s.left)
		s.log.Info("joined room", zap.String("room_id", roomID))
		return
	}
}

func (s *session) leaveRoom() {
	if s.room == nil {
		return
	}
	close(s.left)
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.room.Send(ctx, room.Leave{ClientID: s.id}); err != nil && !errors.Is(err, room.ErrClosed) {
		s.log.Warn("leave failed", zap.String("room_id", s.roomID), zap.Error(err))
	}
	s.room, s.roomID, s.left = nil, "", nil
}

// writeLoop drains one room's outbox. The room closes it on leave. If it
// was closed without us leaving, the room dropped us (too slow or shut down)
// and the connection is closed so the client reconnects.
func (s *session) writeLoop(out <-chan types.ServerMessage, left <-chan struct{}) {
	defer func() {
		select {
		case <-left:
		default:
			s.cancel()
		}
	}()

	for msg := range out {
		payload, err := json.Marshal(msg)
		if err != nil {
			s.log.Error("marshal failed", zap.String("event", msg.Event), zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(s.ctx, writeWait)
		err = s.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			s.log.Debug("write failed", zap.Error(err))
			s.cancel()
			for range out {
			}
			return
		}
	}
}

func (s *session) keepAlive() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, writeWait)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				s.cancel()
				return
			}
		}
	}
}
