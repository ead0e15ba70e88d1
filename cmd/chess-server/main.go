package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	appcfg "github.com/surajperamanu/the-real-chess-app/internal/config"
	"github.com/surajperamanu/the-real-chess-app/internal/gateway"
	"github.com/surajperamanu/the-real-chess-app/internal/msgcat"
	"github.com/surajperamanu/the-real-chess-app/internal/obslog"
	"github.com/surajperamanu/the-real-chess-app/internal/registry"
	"github.com/surajperamanu/the-real-chess-app/internal/room"
	"github.com/surajperamanu/the-real-chess-app/internal/session"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	messages, err := msgcat.New(cfg.MsgTemplateDir)
	if err != nil {
		logger.Fatal("msgcat init error", zap.Error(err))
	}

	wall := clockwork.NewRealClock()
	hub := gateway.NewHub()

	rooms := registry.New(registry.Config{
		Wall:     wall,
		MaxRooms: cfg.MaxRooms,
		RoomTTL:  cfg.RoomTTL,
		Factory: func(code string, initial, increment float64, onTerminated func(string)) *room.Room {
			return room.New(room.Config{
				Code:            code,
				Initial:         initial,
				Increment:       increment,
				ReconnectWindow: cfg.ReconnectWindow,
				Wall:            wall,
				Sink:            hub,
				Messages:        messages,
				OnTerminated:    onTerminated,
			})
		},
	})

	sessions := session.NewManager(rooms)
	gw := gateway.New(rooms, sessions, hub, cfg.AllowedOrigins)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go rooms.RunSweeper(sweepCtx, cfg.SweepInterval)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server_listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("server_shutdown", zap.String("signal", sig.String()))

	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server_shutdown_error", zap.Error(err))
	}
	_ = logger.Sync()
}
