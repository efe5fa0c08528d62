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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scholarchat/gateway/internal/config"
	"github.com/scholarchat/gateway/internal/handler"
	"github.com/scholarchat/gateway/internal/handler/events"
	"github.com/scholarchat/gateway/internal/search"
	"github.com/scholarchat/gateway/internal/service/conversation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	client := search.New(cfg.Upstream.BaseURL, cfg.Upstream.UserID, logger)
	hub := events.NewHub(logger)
	ctrl := conversation.New(client, hub, logger, conversation.Options{
		SendTimeout:  cfg.Upstream.SendTimeout,
		FetchTimeout: cfg.Upstream.FetchTimeout,
		SessionLimit: cfg.Upstream.SessionLimit,
	})

	// Populate the sidebar once at startup; failures degrade to an empty
	// list inside the controller.
	go ctrl.RefreshSessions(ctx)

	router := handler.NewRouter(ctrl, client, hub, logger)

	logger.Info("scholarchat gateway listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("upstream", cfg.Upstream.BaseURL))
	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
