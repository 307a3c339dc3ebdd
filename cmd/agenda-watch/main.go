// Command agenda-watch follows a room from the terminal, printing the live
// countdown. With -hint it also sends countdown hints while it holds
// mastership.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/client"
	"github.com/DoyleJ11/meeting-timer-backend/internal/logging"
)

func main() {
	url := flag.String("url", "ws://localhost:3000/ws", "websocket endpoint")
	roomID := flag.String("room", "", "room id to join (required)")
	hint := flag.Bool("hint", false, "send countdown hints while master")
	refresh := flag.Duration("refresh", 200*time.Millisecond, "display refresh interval")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *roomID == "" {
		flag.Usage()
		os.Exit(2)
	}
	log, err := logging.New(*level, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := client.NewReconciler(nil)
	conn, err := client.Dial(ctx, *url, *roomID, rec, log)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer conn.Close()

	errc := make(chan error, 1)
	go func() { errc <- conn.Run(ctx) }()

	ticker := time.NewTicker(*refresh)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errc:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("connection lost", zap.Error(err))
				os.Exit(1)
			}
			return
		case <-ticker.C:
			if *hint {
				if err := conn.SendHint(ctx); err != nil {
					log.Warn("hint", zap.Error(err))
				}
			}
			if line := render(rec); line != last {
				fmt.Println(line)
				last = line
			}
		}
	}
}

func render(rec *client.Reconciler) string {
	s := rec.Predict()
	who := rec.Name()
	if rec.IsMaster() {
		who += " (master)"
	}
	phase, ok := s.CurrentPhase()
	if !ok {
		return fmt.Sprintf("%s | no agenda", who)
	}

	status := "running"
	if s.IsPaused {
		status = "paused"
	}
	warn := ""
	if rec.Warning() {
		warn = " !"
	}
	return fmt.Sprintf("%s | [%d/%d] %s %s %s%s",
		who, s.CurrentPhaseIndex+1, len(s.Phases), phase.Name, agenda.FormatClock(s.TimeLeft), status, warn)
}
