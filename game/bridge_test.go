package game_test

import (
	"context"
	"testing"

	"github.com/kleoz/smashbet/game"
)

func TestPredictionBeginBindsMatch(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}

	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

	s, _ := r.engine.CurrentSnapshot()
	if s.Phase != game.PhaseBetting || s.PredictionID != "pred-1" {
		t.Errorf("snapshot = %+v, want betting bound to pred-1", s)
	}
	saved := r.mem.SavedMatch(1)
	if saved == nil || saved.PredictionID != "pred-1" {
		t.Errorf("binding not persisted: %+v", saved)
	}
}

func TestPredictionBeginMarkerFilter(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}

	// Someone else's prediction on the same channel.
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-x", Title: "Will I beat the boss?"})

	s, _ := r.engine.CurrentSnapshot()
	if s.Phase != game.PhaseAwaitingPrediction || s.PredictionID != "" {
		t.Errorf("unmarked prediction bound: %+v", s)
	}
}

func TestPredictionBeginWrongPhaseIgnored(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

	// A second begin while already BETTING must not rebind.
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-2", Title: "[SMASH BET] Rematch?"})

	s, _ := r.engine.CurrentSnapshot()
	if s.PredictionID != "pred-1" {
		t.Errorf("prediction rebound to %s", s.PredictionID)
	}
}

func TestPredictionProgressRegistersParticipants(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

	progress := game.PredictionProgress{
		ID: "pred-1",
		Outcomes: []game.OutcomeProgress{
			{ID: "o1", Title: "Bot 1", Users: 2, ChannelPoints: 500,
				TopPredictors: []game.Predictor{{UserID: "u1", UserName: "alice"}, {UserID: "u2", UserName: "bob"}}},
			{ID: "o2", Title: "Bot 2", Users: 1, ChannelPoints: 100,
				TopPredictors: []game.Predictor{{UserID: "u3", UserName: "carol"}}},
		},
	}
	r.engine.HandlePredictionProgress(ctx, progress)
	// Repeats arrive with overlapping user sets.
	r.engine.HandlePredictionProgress(ctx, progress)

	for _, id := range []string{"u1", "u2", "u3"} {
		u, ok := r.mem.Score(id)
		if !ok {
			t.Errorf("participant %s not registered", id)
			continue
		}
		if u.TotalPoints != 0 || u.BonusUsedCount != 0 {
			t.Errorf("registration mutated counters for %s: %+v", id, u)
		}
	}

	r.cast.mu.Lock()
	tallies := len(r.cast.tallies)
	last := r.cast.tallies[len(r.cast.tallies)-1]
	r.cast.mu.Unlock()
	if tallies != 2 {
		t.Errorf("tally broadcasts = %d, want 2", tallies)
	}
	if len(last.Outcomes) != 2 || last.Outcomes[0].Users != 2 || last.Outcomes[0].ChannelPoints != 500 {
		t.Errorf("tally = %+v", last)
	}
}

func TestPredictionProgressOtherPredictionIgnored(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

	r.engine.HandlePredictionProgress(ctx, game.PredictionProgress{
		ID:       "pred-other",
		Outcomes: []game.OutcomeProgress{{ID: "o1", TopPredictors: []game.Predictor{{UserID: "u9"}}}},
	})

	if _, ok := r.mem.Score("u9"); ok {
		t.Errorf("foreign prediction registered a participant")
	}
}

func TestPredictionEndAwardsAndCloses(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

	r.platform.outcomes = []game.Outcome{
		{ID: "o1", Title: "Choix 3", Predictors: []game.Predictor{
			{UserID: "u1", UserName: "alice"}, {UserID: "u2", UserName: "bob"},
		}},
		{ID: "o2", Title: "Choix 1", Predictors: []game.Predictor{{UserID: "u3", UserName: "carol"}}},
	}
	r.engine.HandlePredictionEnd(ctx, game.PredictionEnd{
		ID: "pred-1", Status: "resolved", WinningOutcomeID: "o1", WinningOutcomeTitle: "Choix 3",
	})

	s, _ := r.engine.CurrentSnapshot()
	if s.Phase != game.PhaseClosed {
		t.Fatalf("phase = %s, want %s", s.Phase, game.PhaseClosed)
	}
	if s.Winner == nil || *s.Winner != 3 {
		t.Errorf("winner = %v, want 3", s.Winner)
	}
	for _, id := range []string{"u1", "u2"} {
		if u, _ := r.mem.Score(id); u.TotalPoints != 1 {
			t.Errorf("winner %s points = %d, want 1", id, u.TotalPoints)
		}
	}
	if u, ok := r.mem.Score("u3"); ok && u.TotalPoints != 0 {
		t.Errorf("loser got points: %+v", u)
	}
}

func TestPredictionEndUnresolvedLeavesOpen(t *testing.T) {
	tests := []struct {
		name string
		end  game.PredictionEnd
	}{
		{name: "canceled", end: game.PredictionEnd{ID: "pred-1", Status: "canceled"}},
		{name: "locked", end: game.PredictionEnd{ID: "pred-1", Status: "locked"}},
		{name: "resolved without outcome id", end: game.PredictionEnd{ID: "pred-1", Status: "resolved"}},
		{name: "other prediction", end: game.PredictionEnd{ID: "pred-x", Status: "resolved", WinningOutcomeID: "o1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t)
			ctx := context.Background()
			if _, err := r.engine.StartMatch(ctx); err != nil {
				t.Fatalf("StartMatch: %v", err)
			}
			r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

			r.engine.HandlePredictionEnd(ctx, tt.end)

			s, _ := r.engine.CurrentSnapshot()
			if s.Phase == game.PhaseClosed {
				t.Errorf("match closed by %s", tt.name)
			}
		})
	}
}

func TestPredictionEndFetchFailureLeavesOpen(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

	r.platform.outcomesErr = errBoom
	r.engine.HandlePredictionEnd(ctx, game.PredictionEnd{
		ID: "pred-1", Status: "resolved", WinningOutcomeID: "o1",
	})

	s, _ := r.engine.CurrentSnapshot()
	if s.Phase == game.PhaseClosed {
		t.Errorf("match closed despite failed outcome fetch")
	}
	// The broadcaster can still close it by hand.
	if _, err := r.engine.CloseMatch(ctx); err != nil {
		t.Errorf("manual close failed: %v", err)
	}
}

func TestPredictionEndNoDigitTitle(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

	r.platform.outcomes = []game.Outcome{
		{ID: "o1", Title: "the red one", Predictors: []game.Predictor{{UserID: "u1", UserName: "alice"}}},
	}
	r.engine.HandlePredictionEnd(ctx, game.PredictionEnd{
		ID: "pred-1", Status: "resolved", WinningOutcomeID: "o1",
	})

	// Match still closes and points are still paid; only the winner display
	// number is unknown.
	s, _ := r.engine.CurrentSnapshot()
	if s.Phase != game.PhaseClosed {
		t.Errorf("phase = %s, want %s", s.Phase, game.PhaseClosed)
	}
	if s.Winner != nil {
		t.Errorf("winner = %v, want nil for digit-free title", s.Winner)
	}
	if u, _ := r.mem.Score("u1"); u.TotalPoints != 1 {
		t.Errorf("points = %d, want 1", u.TotalPoints)
	}
}
