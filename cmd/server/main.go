package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/NarekCodes/global-chat/internal/config"
	"github.com/NarekCodes/global-chat/internal/httpapi"
	"github.com/NarekCodes/global-chat/internal/hub"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	ctx := context.Background()
	h := hub.NewHub(ctx, cfg.Room, logger)

	handler := httpapi.SetupRoutes(h, logger)

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
