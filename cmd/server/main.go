package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/config"
	"github.com/DoyleJ11/meeting-timer-backend/internal/httpapi"
	"github.com/DoyleJ11/meeting-timer-backend/internal/hub"
	"github.com/DoyleJ11/meeting-timer-backend/internal/logging"
	"github.com/DoyleJ11/meeting-timer-backend/internal/templates"
	"github.com/DoyleJ11/meeting-timer-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openTemplates(ctx, cfg, log)
	if err != nil {
		log.Fatal("templates", zap.Error(err))
	}

	rules := agenda.Rules{MaxPhases: cfg.MaxPhases}
	h := hub.NewHub(context.Background(), hub.Options{
		TickInterval: cfg.TickInterval,
		Rules:        rules,
		IdleTTL:      cfg.RoomIdleTTL,
		Logger:       log,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:       h,
		Templates: store,
		Rules:     rules,
		WS:        ws.Options{OutboxSize: cfg.OutboxSize},
		StaticDir: cfg.StaticDir,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr()), zap.String("env", cfg.Env))
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
		}
	}

	// Shutdown does not track hijacked connections; closing the hub closes
	// every room outbox, which ends the websocket handlers.
	h.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}

func openTemplates(ctx context.Context, cfg config.Config, log *zap.Logger) (templates.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("templates in memory")
		return templates.NewMemoryStore(), nil
	}
	db, err := templates.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info("templates in postgres")
	return templates.NewGormStore(ctx, db)
}
