package game

import (
	"context"
	"time"
)

// MatchStore persists match aggregates. Latest returns (nil, nil) when no
// match has ever been created.
type MatchStore interface {
	Latest(ctx context.Context) (*Match, error)
	Save(ctx context.Context, m *Match) error
}

// ScoreStore mutates UserScore records via atomic upsert-increments only;
// callers never read-modify-write a score row.
type ScoreStore interface {
	// EnsureUser upserts a zero-initialized score row (pure registration).
	EnsureUser(ctx context.Context, userID, displayName string) error
	// RecordBonus increments the per-category counter and bonusUsedCount.
	RecordBonus(ctx context.Context, userID, displayName string, cat Category) error
	// AwardPoint increments totalPoints by one.
	AwardPoint(ctx context.Context, userID, displayName string) error
}

// BonusLogStore appends immutable historical records of accepted redemptions.
type BonusLogStore interface {
	Append(ctx context.Context, e BonusLogEntry) error
}

// RewardRegistry resolves opaque platform reward ids to bonus categories.
type RewardRegistry interface {
	Lookup(rewardID string) (Category, bool)
	IDs() []string
}

// Predictor is one viewer on a prediction outcome.
type Predictor struct {
	UserID   string
	UserName string
}

// Outcome is one side of a prediction with its authoritative predictor list.
type Outcome struct {
	ID         string
	Title      string
	Predictors []Predictor
}

// PlatformClient is the outbound boundary to the streaming platform.
type PlatformClient interface {
	// SetRewardEnabled toggles a custom reward's availability; disabled
	// rewards are also paused so viewers cannot queue redemptions.
	SetRewardEnabled(ctx context.Context, rewardID string, enabled bool) error
	// RefundRedemption cancels a redemption, returning the points spent.
	RefundRedemption(ctx context.Context, rewardID, redemptionID string) error
	// PredictionOutcomes fetches the full outcome detail for a prediction.
	PredictionOutcomes(ctx context.Context, predictionID string) ([]Outcome, error)
}

// BonusUpdate is the narrow per-redemption event pushed to the overlay.
type BonusUpdate struct {
	Type      Category `json:"type"`
	User      string   `json:"user"`
	Input     string   `json:"input"`
	IsSuccess bool     `json:"isSuccess"`
	Message   string   `json:"message,omitempty"`
}

// OutcomeTally is a live vote count for one prediction outcome.
type OutcomeTally struct {
	Title         string `json:"title"`
	Users         int    `json:"users"`
	ChannelPoints int64  `json:"channelPoints"`
}

// PredictionTally is the live vote state pushed to the overlay.
type PredictionTally struct {
	PredictionID string         `json:"predictionId"`
	Outcomes     []OutcomeTally `json:"outcomes"`
}

// Broadcaster fans state out to connected overlay clients, fire-and-forget.
type Broadcaster interface {
	GameStatus(s Snapshot)
	BonusUpdate(u BonusUpdate)
	PredictionProgress(t PredictionTally)
}

// Announcer posts show moments to channel chat. Optional; notify-and-forget.
type Announcer interface {
	BonusApplied(user string, cat Category, targetBot int, payload string)
	MatchClosed(matchID int64, winner *int)
}

// RedemptionEvent is an inbound channel-point redemption as delivered by the
// platform's event transport.
type RedemptionEvent struct {
	ID              string
	RewardID        string
	UserID          string
	UserDisplayName string
	Input           string
	OccurredAt      time.Time
}

// PredictionBegin announces a new prediction opening on the channel.
type PredictionBegin struct {
	ID    string
	Title string
}

// OutcomeProgress carries the running tally plus the (possibly partial)
// top-predictor list for one outcome.
type OutcomeProgress struct {
	ID            string
	Title         string
	Users         int
	ChannelPoints int64
	TopPredictors []Predictor
}

// PredictionProgress is a periodic tally update while betting is open.
type PredictionProgress struct {
	ID       string
	Outcomes []OutcomeProgress
}

// PredictionEnd announces a prediction resolving, locking, or being canceled.
type PredictionEnd struct {
	ID                  string
	Status              string // "resolved", "canceled", "locked"
	WinningOutcomeID    string
	WinningOutcomeTitle string
}
