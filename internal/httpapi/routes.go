package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/hub"
	"github.com/DoyleJ11/meeting-timer-backend/internal/templates"
	"github.com/DoyleJ11/meeting-timer-backend/internal/ws"
)

type Deps struct {
	Hub       *hub.Hub
	Templates templates.Store
	Rules     agenda.Rules
	WS        ws.Options
	StaticDir string // empty disables static serving
	Logger    *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	log := d.Logger.Named("http")
	if d.WS.Hub == nil {
		d.WS.Hub = d.Hub
	}
	if d.WS.Templates == nil {
		d.WS.Templates = d.Templates
	}
	if d.WS.Logger == nil {
		d.WS.Logger = d.Logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	// Public routes
	r.Get("/health", Health)
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.WS))

	r.Route("/api", func(r chi.Router) {
		r.Post("/rooms", CreateRoom(d.Hub, log))
		r.Get("/rooms/{roomId}", GetRoom(d.Hub))
		r.Get("/stats", Stats(d.Hub))

		if d.Templates != nil {
			r.Get("/templates", ListTemplates(d.Templates, log))
			r.Get("/templates/{name}", GetTemplate(d.Templates, log))
			r.Put("/templates/{name}", PutTemplate(d.Templates, d.Rules, log))
		}
	})

	if d.StaticDir != "" {
		r.Handle("/*", spaHandler(d.StaticDir))
	}
	return r
}

// spaHandler serves files from dir and falls back to index.html for paths
// that don't name a file, so client-side routes like /room/abc123 load the
// app.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(p); err != nil || info.IsDir() && !strings.HasSuffix(r.URL.Path, "/") {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
