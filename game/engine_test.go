package game_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/store"
)

type testRig struct {
	engine   *game.Engine
	mem      *store.Memory
	platform *fakePlatform
	cast     *fakeCast
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	mem := store.NewMemory()
	platform := &fakePlatform{}
	cast := &fakeCast{}
	engine := game.NewEngine(game.EngineConfig{
		Matches:  mem,
		Scores:   mem,
		BonusLog: mem,
		Registry: &fakeRegistry{byID: map[string]game.Category{
			"rw-up":   game.CategoryLevelUp,
			"rw-down": game.CategoryLevelDown,
			"rw-char": game.CategoryCharSelect,
		}},
		Platform:  platform,
		Broadcast: cast,
		Marker:    "[SMASH BET]",
	})
	return &testRig{engine: engine, mem: mem, platform: platform, cast: cast}
}

// advanceToBonus walks a fresh rig to BONUS_ACTIVE.
func (r *testRig) advanceToBonus(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})
	if _, err := r.engine.StartBonus(ctx, time.Minute); err != nil {
		t.Fatalf("StartBonus: %v", err)
	}
}

func TestStartMatch(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	s, err := r.engine.StartMatch(ctx)
	if err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if s.MatchID != 1 {
		t.Errorf("match id = %d, want 1", s.MatchID)
	}
	if s.Phase != game.PhaseAwaitingPrediction {
		t.Errorf("phase = %s, want %s", s.Phase, game.PhaseAwaitingPrediction)
	}
	if r.mem.SavedMatch(1) == nil {
		t.Errorf("match 1 not persisted")
	}
	if _, ok := r.cast.lastStatus(); !ok {
		t.Errorf("no game-status broadcast after start")
	}
}

func TestStartMatchRejectedWhileOpen(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	_, err := r.engine.StartMatch(ctx)
	if !game.IsConflict(err) {
		t.Fatalf("second StartMatch error = %v, want conflict", err)
	}

	// Closing the match frees the slot and the id keeps counting up.
	if _, err := r.engine.CloseMatch(ctx); err != nil {
		t.Fatalf("CloseMatch: %v", err)
	}
	s, err := r.engine.StartMatch(ctx)
	if err != nil {
		t.Fatalf("StartMatch after close: %v", err)
	}
	if s.MatchID != 2 {
		t.Errorf("match id = %d, want 2", s.MatchID)
	}
}

func TestStartBonusPhaseGuards(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if _, err := r.engine.StartBonus(ctx, time.Minute); !errors.Is(err, game.ErrNoMatch) {
		t.Errorf("StartBonus with no match error = %v, want ErrNoMatch", err)
	}

	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	// Still AWAITING_PREDICTION: no bets placed yet, window must not open.
	if _, err := r.engine.StartBonus(ctx, time.Minute); !game.IsConflict(err) {
		t.Errorf("StartBonus before betting error = %v, want conflict", err)
	}

	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})
	if _, err := r.engine.StartBonus(ctx, 0); !game.IsValidation(err) {
		t.Errorf("StartBonus with zero duration error = %v, want validation", err)
	}
	s, err := r.engine.StartBonus(ctx, time.Minute)
	if err != nil {
		t.Fatalf("StartBonus: %v", err)
	}
	if s.Phase != game.PhaseBonusActive {
		t.Errorf("phase = %s, want %s", s.Phase, game.PhaseBonusActive)
	}
	// Rewards were switched on for the window.
	r.platform.mu.Lock()
	calls := len(r.platform.enabledCalls)
	r.platform.mu.Unlock()
	if calls != 3 {
		t.Errorf("reward toggle calls = %d, want 3", calls)
	}
}

func TestBonusTimerClosesWindow(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})
	if _, err := r.engine.StartBonus(ctx, 20*time.Millisecond); err != nil {
		t.Fatalf("StartBonus: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		s, _ := r.engine.CurrentSnapshot()
		if s.Phase == game.PhaseInProgress {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("bonus window never closed, phase still %s", s.Phase)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopBonusIdempotent(t *testing.T) {
	r := newTestRig(t)
	r.advanceToBonus(t)
	ctx := context.Background()

	s, err := r.engine.StopBonus(ctx)
	if err != nil {
		t.Fatalf("StopBonus: %v", err)
	}
	if s.Phase != game.PhaseInProgress {
		t.Errorf("phase = %s, want %s", s.Phase, game.PhaseInProgress)
	}

	// A second stop (and the stale timer, if it fires) must be a no-op.
	s, err = r.engine.StopBonus(ctx)
	if err != nil {
		t.Fatalf("second StopBonus: %v", err)
	}
	if s.Phase != game.PhaseInProgress {
		t.Errorf("phase after repeat stop = %s, want %s", s.Phase, game.PhaseInProgress)
	}
}

func TestCloseMatchDuringBonus(t *testing.T) {
	r := newTestRig(t)
	r.advanceToBonus(t)
	ctx := context.Background()

	s, err := r.engine.CloseMatch(ctx)
	if err != nil {
		t.Fatalf("CloseMatch: %v", err)
	}
	if s.Phase != game.PhaseClosed {
		t.Errorf("phase = %s, want %s", s.Phase, game.PhaseClosed)
	}
	// Rewards were disabled on the way down: 3 enables + 3 disables.
	r.platform.mu.Lock()
	calls := r.platform.enabledCalls
	r.platform.mu.Unlock()
	if len(calls) != 6 {
		t.Fatalf("reward toggle calls = %d, want 6", len(calls))
	}
	for _, enabled := range calls[3:] {
		if enabled {
			t.Errorf("expected disable toggles after close, got enable")
		}
	}

	if _, err := r.engine.CloseMatch(ctx); !game.IsConflict(err) {
		t.Errorf("CloseMatch on closed match error = %v, want conflict", err)
	}
}

func TestStartMatchPersistFailure(t *testing.T) {
	r := newTestRig(t)
	r.mem.FailSaves = true
	if _, err := r.engine.StartMatch(context.Background()); err == nil {
		t.Fatalf("StartMatch succeeded with failing store")
	}
	// Engine state must not advance past a failed persist.
	if s, ok := r.engine.CurrentSnapshot(); ok {
		t.Errorf("engine holds a match after failed persist: %+v", s)
	}
}

func TestResume(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	if _, err := r.engine.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	r.engine.HandlePredictionBegin(ctx, game.PredictionBegin{ID: "pred-1", Title: "[SMASH BET] Who wins?"})

	// A second engine over the same store picks up the open match.
	engine2 := game.NewEngine(game.EngineConfig{
		Matches:   r.mem,
		Scores:    r.mem,
		BonusLog:  r.mem,
		Registry:  &fakeRegistry{byID: map[string]game.Category{}},
		Platform:  &fakePlatform{},
		Broadcast: &fakeCast{},
		Marker:    "[SMASH BET]",
	})
	if err := engine2.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	s, ok := engine2.CurrentSnapshot()
	if !ok {
		t.Fatalf("no current match after resume")
	}
	if s.MatchID != 1 || s.Phase != game.PhaseBetting || s.PredictionID != "pred-1" {
		t.Errorf("resumed snapshot = %+v", s)
	}

	// And refuses to start a duplicate while the resumed match is open.
	if _, err := engine2.StartMatch(ctx); !game.IsConflict(err) {
		t.Errorf("StartMatch after resume error = %v, want conflict", err)
	}
}

func TestCurrentSnapshotWithoutMatch(t *testing.T) {
	r := newTestRig(t)
	s, ok := r.engine.CurrentSnapshot()
	if ok {
		t.Fatalf("expected no current match")
	}
	if s.Phase != game.PhaseClosed {
		t.Errorf("placeholder phase = %s, want %s", s.Phase, game.PhaseClosed)
	}
}
