// Package game implements the match lifecycle state machine, the redemption
// reconciler, and the prediction bridge for the bot show segment. All mutation
// of the single current match goes through the Engine, which serializes admin
// commands, EventSub deliveries, and the bonus window timer.
package game

import "time"

// NumBots is the fixed number of competing bots in the show.
const NumBots = 4

// Phase is the lifecycle state of a match.
type Phase string

const (
	PhaseAwaitingPrediction Phase = "AWAITING_PREDICTION"
	PhaseBetting            Phase = "BETTING"
	PhaseBonusActive        Phase = "BONUS_ACTIVE"
	PhaseInProgress         Phase = "IN_PROGRESS"
	PhaseClosed             Phase = "CLOSED"
)

// Category identifies a redeemable bonus effect on a target bot.
type Category string

const (
	CategoryLevelUp    Category = "LEVEL_UP"
	CategoryLevelDown  Category = "LEVEL_DOWN"
	CategoryCharSelect Category = "CHOIX_PERSO"
)

// Level adjustment counters saturate at these bounds; a redemption that would
// push past a bound is rejected and leaves the counter unchanged.
const (
	AdjustMin = -10
	AdjustMax = 10
)

// Bucket thresholds and the levels they map to.
const (
	bucketLowAt  = -7
	bucketHighAt = 7

	LevelLow  = 1
	LevelMid  = 5
	LevelHigh = 9
)

// LevelForAdjust maps a bounded adjustment counter to a bot level.
// The mapping is total and exclusive: <= -7 low, >= 7 high, else mid.
func LevelForAdjust(n int) int {
	switch {
	case n <= bucketLowAt:
		return LevelLow
	case n >= bucketHighAt:
		return LevelHigh
	default:
		return LevelMid
	}
}

// AppliedBonus is one accepted redemption recorded in the match log.
type AppliedBonus struct {
	User      string    `json:"user"`
	UserID    string    `json:"userId"`
	Category  Category  `json:"reward"`
	Input     string    `json:"input"`
	Timestamp time.Time `json:"timestamp"`
}

// BonusState holds the per-bot bonus bookkeeping for one match.
type BonusState struct {
	// BotLevels is derived from LevelAdjust via LevelForAdjust; it is
	// refreshed on every accepted adjustment and again at bonus close.
	BotLevels      [NumBots]int    `json:"botLevels"`
	LevelAdjust    [NumBots]int    `json:"levelAdjust"`
	CharSelectUsed [NumBots]bool   `json:"charSelectUsedForBot"`
	CharSelections [NumBots]string `json:"charSelections"`
	Log            []AppliedBonus  `json:"log"`
}

// NewBonusState returns the zero-adjustment state with all bots at mid level.
func NewBonusState() BonusState {
	var b BonusState
	for i := range b.BotLevels {
		b.BotLevels[i] = LevelMid
	}
	return b
}

// RecomputeLevels refreshes BotLevels from the adjustment counters.
func (b *BonusState) RecomputeLevels() {
	for i, n := range b.LevelAdjust {
		b.BotLevels[i] = LevelForAdjust(n)
	}
}

// Exhausted reports whether no meaningful bonus move remains: every bot has a
// character selected and every adjustment counter sits at a saturation bound.
func (b *BonusState) Exhausted() bool {
	for i := 0; i < NumBots; i++ {
		if !b.CharSelectUsed[i] {
			return false
		}
		if b.LevelAdjust[i] != AdjustMin && b.LevelAdjust[i] != AdjustMax {
			return false
		}
	}
	return true
}

// Match is the aggregate root for one game round. Exactly one match is
// current at any time; closed matches are kept forever.
type Match struct {
	MatchID      int64      `json:"matchId"`
	PredictionID string     `json:"predictionId,omitempty"`
	Phase        Phase      `json:"phase"`
	WinningBot   *int       `json:"winner,omitempty"` // 1-indexed display number
	Bonus        BonusState `json:"bonusResults"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NewMatch creates a match in AWAITING_PREDICTION with a fresh bonus state.
func NewMatch(id int64) *Match {
	now := time.Now().UTC()
	return &Match{
		MatchID:   id,
		Phase:     PhaseAwaitingPrediction,
		Bonus:     NewBonusState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot is the overlay-facing view of a match, pushed on every transition.
type Snapshot struct {
	MatchID      int64      `json:"matchId"`
	Phase        Phase      `json:"phase"`
	PredictionID string     `json:"predictionId,omitempty"`
	Winner       *int       `json:"winner,omitempty"`
	Bonus        BonusState `json:"bonusResults"`
}

// Snapshot returns a copy safe to hand to the broadcast hub.
func (m *Match) Snapshot() Snapshot {
	s := Snapshot{
		MatchID:      m.MatchID,
		Phase:        m.Phase,
		PredictionID: m.PredictionID,
		Bonus:        m.Bonus,
	}
	s.Bonus.Log = append([]AppliedBonus(nil), m.Bonus.Log...)
	if m.WinningBot != nil {
		w := *m.WinningBot
		s.Winner = &w
	}
	return s
}

// ClosedPlaceholder is what clients see when no match has ever been played.
func ClosedPlaceholder() Snapshot {
	return Snapshot{Phase: PhaseClosed, Bonus: NewBonusState()}
}

// UserScore is the cumulative per-viewer leaderboard record.
type UserScore struct {
	UserID          string `json:"userId"`
	DisplayName     string `json:"displayName"`
	TotalPoints     int    `json:"totalPoints"`
	BonusUsedCount  int    `json:"bonusUsedCount"`
	LevelUpCount    int    `json:"levelUpCount"`
	LevelDownCount  int    `json:"levelDownCount"`
	CharSelectCount int    `json:"charSelectCount"`
}

// BonusLogEntry is the immutable historical record of one accepted redemption.
type BonusLogEntry struct {
	MatchID   int64     `json:"matchId"`
	UserID    string    `json:"userId"`
	Category  Category  `json:"bonusType"`
	TargetBot *int      `json:"targetBot,omitempty"` // 1-indexed
	Input     string    `json:"input"`
	CreatedAt time.Time `json:"createdAt"`
}
