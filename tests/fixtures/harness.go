// Package fixtures hosts the end-to-end test harness: a fully wired lounge
// server on an ephemeral port plus a raw WebSocket client for driving it.
package fixtures

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lounge/internal/hub"
	"lounge/internal/players"
	"lounge/internal/router"
	"lounge/internal/websocket"
)

// Harness runs the whole server core in-process: transport, hub, router,
// player registry and the broadcast tick.
type Harness struct {
	URL      string
	Sessions *websocket.Registry
	Players  *players.Registry
}

// StartServer boots the core with the given tick interval and returns a
// harness whose URL accepts WebSocket connections. Everything is torn down
// via t.Cleanup.
func StartServer(t *testing.T, tick time.Duration) *Harness {
	t.Helper()

	logger := zerolog.Nop()
	sessions := websocket.NewRegistry(logger)
	reg := players.NewRegistry(logger)
	r := router.NewRouter(sessions, reg, logger)
	h := hub.NewHub(sessions, r, logger)

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.Start(ctx); err != nil {
		cancel()
		t.Fatalf("hub start: %v", err)
	}
	go reg.Run(ctx, tick, r.BroadcastPositions)

	srv := httptest.NewServer(websocket.NewHandler(h, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = h.Stop()
	})

	return &Harness{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Sessions: sessions,
		Players:  reg,
	}
}
