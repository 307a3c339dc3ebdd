package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/hub"
	"github.com/DoyleJ11/meeting-timer-backend/internal/types"
	"github.com/DoyleJ11/meeting-timer-backend/internal/ws"
)

func startServer(t *testing.T) string {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Options{})
	srv := httptest.NewServer(ws.Handler(ws.Options{Hub: h}))
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, url, roomID string) *Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c, err := Dial(ctx, url, roomID, NewReconciler(nil), nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		c.Close()
		<-done
	})
	return c
}

func TestConn_MirrorsRoom(t *testing.T) {
	url := startServer(t)
	a := connect(t, url, "r1")

	require.Eventually(t, func() bool { return a.Reconciler().IsMaster() }, 2*time.Second, 10*time.Millisecond)

	b := connect(t, url, "r1")
	require.Eventually(t, func() bool { return len(b.Reconciler().Members().Members) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, b.Reconciler().IsMaster())
	assert.NotEqual(t, a.Reconciler().Name(), b.Reconciler().Name())

	ctx := context.Background()
	require.NoError(t, a.Send(ctx, types.EvtSetPhases, map[string]any{
		"roomId": "r1",
		"phases": []agenda.Phase{{Name: "Intro", Duration: 90}},
	}))
	require.Eventually(t, func() bool { return len(b.Reconciler().Predict().Phases) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 90, b.Reconciler().Predict().TimeLeft)

	// b is not master; its request is ignored by the server.
	require.NoError(t, b.Send(ctx, types.EvtResetTimer, map[string]any{"roomId": "r1"}))
	require.NoError(t, b.Send(ctx, types.EvtSetPhases, map[string]any{"roomId": "r1", "phases": []agenda.Phase{}}))
	require.NoError(t, a.Send(ctx, types.EvtAddTask, map[string]any{"roomId": "r1", "task": agenda.Phase{Name: "Demo", Duration: 30}}))
	require.Eventually(t, func() bool { return len(b.Reconciler().Predict().Phases) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestConn_OnUpdate(t *testing.T) {
	url := startServer(t)

	events := make(chan string, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := Dial(ctx, url, "r2", NewReconciler(nil), nil)
	require.NoError(t, err)
	defer c.Close()
	c.OnUpdate = func(event string) { events <- event }
	go func() { _ = c.Run(ctx) }()

	got := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !got[types.EvtYourName] || !got[types.EvtRoomClients] {
		select {
		case ev := <-events:
			got[ev] = true
		case <-deadline:
			t.Fatalf("missing join events, got %v", got)
		}
	}
	// An empty room's initial timerState matches the reconciler's starting
	// view, so it is not reported as an update.
	assert.False(t, got[types.EvtTimerState])
}
