package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Janekook7/AudioVideoServer/config"
	"github.com/Janekook7/AudioVideoServer/framestore"
	"github.com/Janekook7/AudioVideoServer/httpapi"
	"github.com/Janekook7/AudioVideoServer/peers"
	"github.com/Janekook7/AudioVideoServer/placeholder"
	"github.com/Janekook7/AudioVideoServer/protocol"
	"github.com/Janekook7/AudioVideoServer/relay"
	ws "github.com/Janekook7/AudioVideoServer/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	fallback, err := placeholder.Load(cfg.PlaceholderPath)
	if err != nil {
		slog.Error("placeholder error", "error", err)
		os.Exit(1)
	}

	var policy peers.SetResolver = peers.AllOthers
	if cfg.Relay.Mode == config.RelayModePair {
		policy = peers.Pair(peers.FirstRemaining)
	}

	frames := framestore.New(cfg.Devices, peers.FirstRemaining, fallback)
	audio := relay.New(cfg.Devices, policy)
	handler := protocol.NewHandler(audio)

	api := httpapi.New(frames, audio, handler, httpapi.Options{
		Devices:        cfg.Devices,
		MaxUploadBytes: cfg.MaxUploadBytes,
		WebSocket: ws.Options{
			WriteWait:      time.Duration(cfg.WebSocket.WriteTimeoutSeconds) * time.Second,
			PongWait:       time.Duration(cfg.WebSocket.PongTimeoutSeconds) * time.Second,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		},
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.Router(),
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "devices", cfg.Devices, "relayMode", cfg.Relay.Mode)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// hijacked sockets are not tracked by Shutdown
	audio.Close()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(levelName string) {
	level := slog.LevelInfo
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
