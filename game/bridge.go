package game

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// HandlePredictionBegin binds a newly opened prediction to the current match
// and moves it into BETTING. Predictions whose title does not carry the
// configured marker prefix belong to someone else and are ignored, as are
// begins arriving in the wrong phase; neither is an error.
func (e *Engine) HandlePredictionBegin(ctx context.Context, ev PredictionBegin) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.marker != "" && !strings.HasPrefix(ev.Title, e.marker) {
		e.log.Debug("ignoring unrelated prediction", slog.String("title", ev.Title))
		return
	}
	if e.current == nil || e.current.Phase != PhaseAwaitingPrediction {
		e.log.Warn("prediction begin in wrong phase, ignoring",
			slog.String("prediction_id", ev.ID))
		return
	}

	e.current.PredictionID = ev.ID
	e.current.Phase = PhaseBetting
	e.current.UpdatedAt = time.Now().UTC()
	if err := e.matches.Save(ctx, e.current); err != nil {
		e.current.PredictionID = ""
		e.current.Phase = PhaseAwaitingPrediction
		e.log.Error("persist prediction bind failed", slog.Any("err", err))
		return
	}
	e.log.Info("prediction bound, betting open",
		slog.Int64("match_id", e.current.MatchID),
		slog.String("prediction_id", ev.ID))
	e.cast.GameStatus(e.current.Snapshot())
}

// HandlePredictionProgress registers participating viewers on the leaderboard
// (zero-initialized, no point mutation) and pushes the live tally to the
// overlay. Progress events repeat with overlapping user sets; the upsert is
// idempotent so that is harmless.
func (e *Engine) HandlePredictionProgress(ctx context.Context, ev PredictionProgress) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.PredictionID != ev.ID {
		return
	}

	tally := PredictionTally{PredictionID: ev.ID}
	for _, o := range ev.Outcomes {
		tally.Outcomes = append(tally.Outcomes, OutcomeTally{
			Title:         o.Title,
			Users:         o.Users,
			ChannelPoints: o.ChannelPoints,
		})
		for _, p := range o.TopPredictors {
			if err := e.scores.EnsureUser(ctx, p.UserID, p.UserName); err != nil {
				e.log.Warn("participant upsert failed",
					slog.String("user_id", p.UserID), slog.Any("err", err))
			}
		}
	}
	e.cast.PredictionProgress(tally)
}

// HandlePredictionEnd closes out the match when its bound prediction
// resolves: every predictor on the winning side gets one leaderboard point,
// the winning bot number is extracted from the outcome title, and the match
// transitions to CLOSED.
//
// The end event's own predictor list may be partial, so the authoritative
// outcome detail is fetched from the platform first. If that lookup fails the
// match is left open for manual closure; guessing a winner is worse than
// asking the broadcaster to click a button.
func (e *Engine) HandlePredictionEnd(ctx context.Context, ev PredictionEnd) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.PredictionID != ev.ID || e.current.Phase == PhaseClosed {
		return
	}

	if !strings.EqualFold(ev.Status, "resolved") || ev.WinningOutcomeID == "" {
		e.log.Info("prediction ended without resolution",
			slog.String("prediction_id", ev.ID),
			slog.String("status", ev.Status))
		return
	}

	outcomes, err := e.platform.PredictionOutcomes(ctx, ev.ID)
	if err != nil {
		e.log.Error("prediction outcome fetch failed, leaving match open for manual closure",
			slog.String("prediction_id", ev.ID), slog.Any("err", err))
		return
	}
	var winning *Outcome
	for i := range outcomes {
		if outcomes[i].ID == ev.WinningOutcomeID {
			winning = &outcomes[i]
			break
		}
	}
	if winning == nil {
		e.log.Error("winning outcome missing from prediction detail, leaving match open",
			slog.String("prediction_id", ev.ID),
			slog.String("outcome_id", ev.WinningOutcomeID))
		return
	}

	awarded := 0
	for _, p := range winning.Predictors {
		if err := e.scores.AwardPoint(ctx, p.UserID, p.UserName); err != nil {
			e.log.Error("point award failed", slog.String("user_id", p.UserID), slog.Any("err", err))
			continue
		}
		awarded++
	}

	e.current.WinningBot = ExtractBotNumber(winning.Title)
	if e.current.WinningBot == nil {
		e.log.Warn("no bot number in winning outcome title",
			slog.String("title", winning.Title))
	}
	e.log.Info("prediction resolved",
		slog.String("prediction_id", ev.ID),
		slog.String("winning_title", winning.Title),
		slog.Int("points_awarded", awarded))

	if _, err := e.closeMatchLocked(ctx); err != nil {
		e.log.Error("match close after prediction end failed", slog.Any("err", err))
	}
}
