package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meeting-timer-backend/internal/presence"
	"github.com/DoyleJ11/meeting-timer-backend/internal/types"
)

const writeWait = 3 * time.Second

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Conn is a participant connection to one room.
type Conn struct {
	ws     *websocket.Conn
	rec    *Reconciler
	roomID string
	log    *zap.Logger

	// OnUpdate, if set, runs after every server event that changed the
	// local view.
	OnUpdate func(event string)
}

// Dial connects to the websocket endpoint at url and joins roomID.
func Dial(ctx context.Context, url, roomID string, rec *Reconciler, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Conn{ws: ws, rec: rec, roomID: roomID, log: log.Named("client")}
	if err := c.Send(ctx, types.EvtJoinRoom, map[string]string{"roomId": roomID}); err != nil {
		ws.Close(websocket.StatusInternalError, "join failed")
		return nil, err
	}
	return c, nil
}

func (c *Conn) Reconciler() *Reconciler { return c.rec }

// Send writes one event envelope.
func (c *Conn) Send(ctx context.Context, event string, data any) error {
	payload, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{event, data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// SendHint forwards the reconciler's countdown hint, if it has one.
func (c *Conn) SendHint(ctx context.Context) error {
	v, ok := c.rec.Hint()
	if !ok {
		return nil
	}
	return c.Send(ctx, types.EvtUpdateTimeLeft, map[string]any{"roomId": c.roomID, "timeLeft": v})
}

// Run reads server events into the reconciler until ctx ends or the
// connection closes.
func (c *Conn) Run(ctx context.Context) error {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("bad frame", zap.Error(err))
			continue
		}
		if c.apply(env) && c.OnUpdate != nil {
			c.OnUpdate(env.Event)
		}
	}
}

func (c *Conn) apply(env envelope) bool {
	switch env.Event {
	case types.EvtTimerState:
		changed, err := c.rec.ApplyState(env.Data)
		if err != nil {
			c.log.Debug("bad timerState", zap.Error(err))
		}
		return changed

	case types.EvtYourName:
		var name string
		if err := json.Unmarshal(env.Data, &name); err != nil {
			c.log.Debug("bad yourName", zap.Error(err))
			return false
		}
		c.rec.SetName(name)
		return true

	case types.EvtRoomClients:
		var s presence.Snapshot
		if err := json.Unmarshal(env.Data, &s); err != nil {
			c.log.Debug("bad roomClients", zap.Error(err))
			return false
		}
		c.rec.ApplyMembers(s)
		return true

	default:
		return false
	}
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}
