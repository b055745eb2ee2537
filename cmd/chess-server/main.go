package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess-server/internal/chessbuilder"
	appcfg "github.com/park285/cheese-chess-server/internal/config"
	"github.com/park285/cheese-chess-server/internal/obslog"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := chessbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init_error", zap.Error(err))
	}
	defer deps.Close()

	logger.Info("server_start",
		zap.String("addr", cfg.ListenAddr),
		zap.String("store", cfg.Store),
		zap.String("auth_mode", cfg.AuthMode),
		zap.Bool("archive", deps.Archive != nil),
	)
	if err := deps.Server.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		logger.Error("server_error", zap.Error(err))
		return
	}
	logger.Info("server_stopped")
}
