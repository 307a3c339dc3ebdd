package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/hub"
	"github.com/DoyleJ11/meeting-timer-backend/internal/templates"
)

func newTestRouter(t *testing.T, staticDir string) (http.Handler, *hub.Hub) {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Options{})
	t.Cleanup(h.Shutdown)
	return SetupRoutes(Deps{
		Hub:       h,
		Templates: templates.NewMemoryStore(),
		Rules:     agenda.Rules{MaxPhases: 3},
		StaticDir: staticDir,
	}), h
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, "")

	rec := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGenerateRoomID(t *testing.T) {
	re := regexp.MustCompile(`^[a-z0-9]{6}$`)
	for i := 0; i < 50; i++ {
		id, err := GenerateRoomID()
		require.NoError(t, err)
		assert.Regexp(t, re, id)
	}
}

func TestCreateAndGetRoom(t *testing.T) {
	r, h := newTestRouter(t, "")

	rec := do(t, r, http.MethodPost, "/api/rooms", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.RoomID, 6)

	rm, err := h.Get(context.Background(), created.RoomID)
	require.NoError(t, err)
	require.NotNil(t, rm)

	rec = do(t, r, http.MethodGet, "/api/rooms/"+created.RoomID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view roomView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, created.RoomID, view.RoomID)
	assert.Equal(t, 0, view.NumClients)
	assert.True(t, view.State.IsPaused)
	assert.NotNil(t, view.State.Phases)

	rec = do(t, r, http.MethodGet, "/api/rooms/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rooms":1,"activeDrivers":0}`, rec.Body.String())
}

func TestTemplates(t *testing.T) {
	r, _ := newTestRouter(t, "")

	rec := do(t, r, http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []templates.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = do(t, r, http.MethodGet, "/api/templates/critique", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/templates/retro", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPut, "/api/templates/Retro", `{"phases":[{"name":"Went well","duration":300}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodGet, "/api/templates/retro", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got templates.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []agenda.Phase{{Name: "Went well", Duration: 300}}, got.Phases)
}

func TestPutTemplate_Rejects(t *testing.T) {
	r, _ := newTestRouter(t, "")

	tests := []struct{ name, body string }{
		{"bad json", `{`},
		{"negative duration", `{"phases":[{"name":"a","duration":-5}]}`},
		{"too many phases", `{"phases":[{"name":"a","duration":1},{"name":"b","duration":1},{"name":"c","duration":1},{"name":"d","duration":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPut, "/api/templates/x", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStaticSPAFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	r, _ := newTestRouter(t, dir)

	rec := do(t, r, http.MethodGet, "/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = do(t, r, http.MethodGet, "/room/abc123", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app")

	rec = do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
