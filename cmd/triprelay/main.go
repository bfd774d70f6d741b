package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/triprelay/server/internal/relay"
)

func main() {
	cfg, err := relay.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "triprelay: %v\n", err)
		os.Exit(1)
	}

	observer := relay.NewObserver(256)
	logger := relay.NewLogger(observer)
	defer func() { _ = logger.Sync() }()

	hub := relay.NewHub(observer, logger)
	validator := relay.NewHTTPValidator(cfg.AuthURL, cfg.AuthTimeout, logger)
	gate := relay.NewGate(validator, cfg.IsProduction(), logger)
	server := relay.NewServer(cfg, hub, gate, logger)

	hub.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := server.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("hub shutdown incomplete", zap.Error(err))
	}
}
