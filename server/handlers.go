package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/telemetry"
)

const leaderboardLimit = 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case game.IsConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case game.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *Handlers) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.StartMatch(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("admin: match started", slog.Int64("match_id", s.MatchID))
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handlers) handleStartBonus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DurationSeconds int `json:"durationSeconds"`
	}
	// An empty body means the default duration; malformed JSON does not.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	d := h.DefaultBonusDuration
	if req.DurationSeconds > 0 {
		d = time.Duration(req.DurationSeconds) * time.Second
	}
	s, err := h.Engine.StartBonus(r.Context(), d)
	if err != nil {
		writeError(w, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("admin: bonus window opened",
		slog.Int64("match_id", s.MatchID), slog.Duration("duration", d))
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) handleStopBonus(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.StopBonus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) handleCloseMatch(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.CloseMatch(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("admin: match closed", slog.Int64("match_id", s.MatchID))
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) handleCurrentMatch(w http.ResponseWriter, r *http.Request) {
	s, _ := h.Engine.CurrentSnapshot()
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) handleLeaderboardPoints(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Scores.TopByPoints(r.Context(), leaderboardLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) handleLeaderboardBonus(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Scores.TopByBonus(r.Context(), leaderboardLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
