package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"lounge/internal/api"
	"lounge/internal/config"
	"lounge/internal/hub"
	"lounge/internal/players"
	"lounge/internal/router"
	"lounge/internal/websocket"
)

// Application wires all server components and owns their lifecycle.
// Initialization order: players → sessions → router → hub → transport →
// API; shutdown runs in reverse.
type Application struct {
	config   *config.Config
	logger   zerolog.Logger
	players  *players.Registry
	sessions *websocket.Registry
	router   *router.Router
	hub      *hub.Hub

	httpServer *http.Server

	cancelLoops context.CancelFunc
}

func New(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	playerReg := players.NewRegistry(logger)
	sessionReg := websocket.NewRegistry(logger)
	msgRouter := router.NewRouter(sessionReg, playerReg, logger)
	msgHub := hub.NewHub(sessionReg, msgRouter, logger)
	wsHandler := websocket.NewHandler(msgHub, logger)
	apiServer := api.NewServer(sessionReg, playerReg, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer.Router(wsHandler),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		players:    playerReg,
		sessions:   sessionReg,
		router:     msgRouter,
		hub:        msgHub,
		httpServer: httpServer,
	}, nil
}

// Start launches the hub, the broadcast tick, the liveness sweeper, and the
// HTTP listener.
func (app *Application) Start(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	app.cancelLoops = cancel

	go app.players.Run(loopCtx, app.config.Tick.Interval, app.router.BroadcastPositions)
	go app.sessions.RunSweeper(loopCtx, app.config.WebSocket.SweepInterval, func(conn *websocket.Conn) {
		if err := app.hub.Unregister(conn); err != nil {
			app.logger.Warn().Err(err).Str("id", conn.ID()).Msg("evict unregister failed")
		}
	})

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info().Str("addr", app.httpServer.Addr).Msg("listening")
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		app.cancelLoops()
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	case <-ctx.Done():
		app.cancelLoops()
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts everything down: listener first so no new sessions arrive,
// then the periodic loops, then the hub.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info().Msg("shutting down")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn().Err(err).Msg("http shutdown")
	}
	if app.cancelLoops != nil {
		app.cancelLoops()
	}
	if err := app.hub.Stop(); err != nil {
		app.logger.Warn().Err(err).Msg("hub shutdown")
	}

	app.logger.Info().Msg("shutdown complete")
	return nil
}
