// Package server exposes the HTTP surface: admin match controls, the
// read-only overlay API, the websocket endpoint, the EventSub webhook, and
// health/metrics probes.
package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/hub"
)

// Leaderboards is the read side of the score store served by the API.
type Leaderboards interface {
	TopByPoints(ctx context.Context, limit int) ([]game.UserScore, error)
	TopByBonus(ctx context.Context, limit int) ([]game.UserScore, error)
}

// Handlers bundles the dependencies of the HTTP surface.
type Handlers struct {
	Engine   *game.Engine
	Scores   Leaderboards
	Hub      *hub.Hub
	EventSub http.Handler
	DB       *sql.DB

	AdminToken           string
	DefaultBonusDuration time.Duration
}

// NewMux assembles the route table with per-route middleware.
func NewMux(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	admin := func(route string, fn http.HandlerFunc) {
		mux.Handle(route, withObservability(route,
			withAdminAuth(h.AdminToken, requireMethod(http.MethodPost, fn))))
	}
	admin("/admin/start-match", h.handleStartMatch)
	admin("/admin/start-bonus", h.handleStartBonus)
	admin("/admin/stop-bonus", h.handleStopBonus)
	admin("/admin/close-match", h.handleCloseMatch)

	api := func(route string, fn http.HandlerFunc) {
		mux.Handle(route, withObservability(route, withCORS(requireMethod(http.MethodGet, fn))))
	}
	api("/api/current-match", h.handleCurrentMatch)
	api("/api/leaderboard/points", h.handleLeaderboardPoints)
	api("/api/leaderboard/bonus", h.handleLeaderboardBonus)

	mux.HandleFunc("/ws", h.Hub.ServeWS)
	if h.EventSub != nil {
		mux.Handle("/twitch/events", withObservability("/twitch/events", h.EventSub))
	}

	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/readyz", h.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func requireMethod(method string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	})
}

// Start runs the HTTP server until ctx is canceled, then drains connections.
func Start(ctx context.Context, addr string, mux http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("http server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
