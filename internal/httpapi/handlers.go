package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/hub"
	"github.com/DoyleJ11/meeting-timer-backend/internal/presence"
	"github.com/DoyleJ11/meeting-timer-backend/internal/room"
	"github.com/DoyleJ11/meeting-timer-backend/internal/templates"
)

const (
	roomIDLen     = 6
	maxIDAttempts = 10
	maxBodySize   = 64 << 10
)

// GenerateRoomID returns a random lowercase base36 id.
func GenerateRoomID() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	id := make([]byte, roomIDLen)
	for i := range id {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		id[i] = charset[num.Int64()]
	}
	return string(id), nil
}

type roomView struct {
	RoomID     string            `json:"roomId"`
	Version    int               `json:"version"`
	NumClients int               `json:"numClients"`
	Running    bool              `json:"running"`
	State      agenda.State      `json:"state"`
	Members    presence.Snapshot `json:"members"`
}

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for attempt := 0; attempt < maxIDAttempts; attempt++ {
			id, err := GenerateRoomID()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to generate room id")
				return
			}
			_, created, err := h.Create(r.Context(), id)
			if err != nil {
				log.Error("create room failed", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "failed to create room")
				return
			}
			if !created {
				log.Debug("room id collision, regenerating", zap.String("room_id", id))
				continue
			}
			writeJSON(w, http.StatusCreated, map[string]string{"roomId": id})
			return
		}
		writeError(w, http.StatusServiceUnavailable, "failed to allocate room id")
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "roomId")
		rm, err := h.Get(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "hub unavailable")
			return
		}
		if rm == nil {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		v, err := rm.View(r.Context())
		if errors.Is(err, room.ErrClosed) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "room unavailable")
			return
		}
		writeJSON(w, http.StatusOK, roomView{
			RoomID:     v.ID,
			Version:    v.Version,
			NumClients: v.NumClients,
			Running:    v.Running,
			State:      v.State,
			Members:    v.Members,
		})
	}
}

func Stats(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "hub unavailable")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func ListTemplates(store templates.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context())
		if err != nil {
			log.Error("list templates failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list templates")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetTemplate(store templates.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.Get(r.Context(), chi.URLParam(r, "name"))
		if errors.Is(err, templates.ErrNotFound) {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		if err != nil {
			log.Error("get template failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load template")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func PutTemplate(store templates.Store, rules agenda.Rules, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Phases []agenda.Phase `json:"phases"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}

		t := templates.Template{Name: chi.URLParam(r, "name"), Phases: body.Phases}
		if err := templates.Validate(&t, rules); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := store.Put(r.Context(), t); err != nil {
			log.Error("put template failed", zap.String("name", t.Name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save template")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// Health is the plain-text liveness probe.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
