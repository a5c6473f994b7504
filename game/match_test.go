package game_test

import (
	"testing"

	"github.com/kleoz/smashbet/game"
)

func TestLevelForAdjust(t *testing.T) {
	tests := []struct {
		adjust int
		want   int
	}{
		{-10, 1},
		{-8, 1},
		{-7, 1},
		{-6, 5},
		{-1, 5},
		{0, 5},
		{1, 5},
		{6, 5},
		{7, 9},
		{8, 9},
		{10, 9},
	}
	for _, tt := range tests {
		if got := game.LevelForAdjust(tt.adjust); got != tt.want {
			t.Errorf("LevelForAdjust(%d) = %d, want %d", tt.adjust, got, tt.want)
		}
	}
}

func TestNewBonusStateStartsAtMid(t *testing.T) {
	b := game.NewBonusState()
	for i, lvl := range b.BotLevels {
		if lvl != game.LevelMid {
			t.Errorf("bot %d starts at level %d, want %d", i+1, lvl, game.LevelMid)
		}
	}
}

func TestRecomputeLevels(t *testing.T) {
	b := game.NewBonusState()
	b.LevelAdjust = [game.NumBots]int{-10, 7, 0, -7}
	b.RecomputeLevels()
	want := [game.NumBots]int{1, 9, 5, 1}
	if b.BotLevels != want {
		t.Errorf("BotLevels = %v, want %v", b.BotLevels, want)
	}
}

func TestExhausted(t *testing.T) {
	tests := []struct {
		name string
		mod  func(b *game.BonusState)
		want bool
	}{
		{
			name: "fresh state",
			mod:  func(b *game.BonusState) {},
			want: false,
		},
		{
			name: "all chars selected but counters movable",
			mod: func(b *game.BonusState) {
				for i := range b.CharSelectUsed {
					b.CharSelectUsed[i] = true
				}
			},
			want: false,
		},
		{
			name: "all counters saturated but a char free",
			mod: func(b *game.BonusState) {
				for i := range b.LevelAdjust {
					b.LevelAdjust[i] = game.AdjustMax
					b.CharSelectUsed[i] = true
				}
				b.CharSelectUsed[2] = false
			},
			want: false,
		},
		{
			name: "everything spent",
			mod: func(b *game.BonusState) {
				for i := range b.LevelAdjust {
					b.CharSelectUsed[i] = true
				}
				b.LevelAdjust = [game.NumBots]int{game.AdjustMax, game.AdjustMin, game.AdjustMax, game.AdjustMin}
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := game.NewBonusState()
			tt.mod(&b)
			if got := b.Exhausted(); got != tt.want {
				t.Errorf("Exhausted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := game.NewMatch(1)
	m.Bonus.Log = append(m.Bonus.Log, game.AppliedBonus{User: "alice"})
	w := 2
	m.WinningBot = &w

	s := m.Snapshot()
	s.Bonus.Log[0].User = "mallory"
	*s.Winner = 4

	if m.Bonus.Log[0].User != "alice" {
		t.Errorf("snapshot shares the bonus log with the match")
	}
	if *m.WinningBot != 2 {
		t.Errorf("snapshot shares the winner pointer with the match")
	}
}

func TestClosedPlaceholder(t *testing.T) {
	s := game.ClosedPlaceholder()
	if s.Phase != game.PhaseClosed {
		t.Errorf("placeholder phase = %s, want %s", s.Phase, game.PhaseClosed)
	}
	if s.MatchID != 0 {
		t.Errorf("placeholder match id = %d, want 0", s.MatchID)
	}
}
