package store_test

import (
	"context"
	"testing"

	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/store"
)

func TestMemoryLatestReturnsHighestID(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	got, err := mem.Latest(ctx)
	if err != nil || got != nil {
		t.Fatalf("Latest on empty store = %v, %v", got, err)
	}

	for _, id := range []int64{3, 1, 2} {
		if err := mem.Save(ctx, game.NewMatch(id)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	got, err = mem.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.MatchID != 3 {
		t.Errorf("Latest id = %d, want 3", got.MatchID)
	}
}

func TestMemorySaveStoresCopy(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	m := game.NewMatch(1)
	if err := mem.Save(ctx, m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Mutations after Save must not leak into the stored copy.
	m.Phase = game.PhaseClosed
	if saved := mem.SavedMatch(1); saved.Phase != game.PhaseAwaitingPrediction {
		t.Errorf("stored phase = %s, want %s", saved.Phase, game.PhaseAwaitingPrediction)
	}
}

func TestMemoryFailSaves(t *testing.T) {
	mem := store.NewMemory()
	mem.FailSaves = true
	if err := mem.Save(context.Background(), game.NewMatch(1)); err == nil {
		t.Fatalf("Save succeeded with FailSaves set")
	}
	if mem.SavedMatch(1) != nil {
		t.Errorf("failed save stored the match anyway")
	}
}

func TestMemoryLeaderboards(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := mem.AwardPoint(ctx, "u1", "alice"); err != nil {
			t.Fatalf("AwardPoint: %v", err)
		}
	}
	if err := mem.AwardPoint(ctx, "u2", "bob"); err != nil {
		t.Fatalf("AwardPoint: %v", err)
	}
	if err := mem.RecordBonus(ctx, "u2", "bob", game.CategoryLevelDown); err != nil {
		t.Fatalf("RecordBonus: %v", err)
	}

	points, err := mem.TopByPoints(ctx, 10)
	if err != nil {
		t.Fatalf("TopByPoints: %v", err)
	}
	if len(points) != 2 || points[0].UserID != "u1" {
		t.Errorf("points = %+v", points)
	}

	bonus, err := mem.TopByBonus(ctx, 10)
	if err != nil {
		t.Fatalf("TopByBonus: %v", err)
	}
	if bonus[0].UserID != "u2" || bonus[0].LevelDownCount != 1 {
		t.Errorf("bonus = %+v", bonus)
	}
}
