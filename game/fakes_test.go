package game_test

import (
	"context"
	"errors"
	"sync"

	"github.com/kleoz/smashbet/game"
)

// fakeRegistry maps fixed reward ids to categories.
type fakeRegistry struct {
	byID map[string]game.Category
}

func (f *fakeRegistry) Lookup(rewardID string) (game.Category, bool) {
	c, ok := f.byID[rewardID]
	return c, ok
}

func (f *fakeRegistry) IDs() []string {
	out := make([]string, 0, len(f.byID))
	for id := range f.byID {
		out = append(out, id)
	}
	return out
}

// fakePlatform records outbound platform calls.
type fakePlatform struct {
	mu            sync.Mutex
	enabledCalls  []bool
	refunds       []string
	refundErr     error
	outcomes      []game.Outcome
	outcomesErr   error
	outcomesCalls int
}

func (f *fakePlatform) SetRewardEnabled(ctx context.Context, rewardID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabledCalls = append(f.enabledCalls, enabled)
	return nil
}

func (f *fakePlatform) RefundRedemption(ctx context.Context, rewardID, redemptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunds = append(f.refunds, redemptionID)
	return nil
}

func (f *fakePlatform) PredictionOutcomes(ctx context.Context, predictionID string) ([]game.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomesCalls++
	if f.outcomesErr != nil {
		return nil, f.outcomesErr
	}
	return f.outcomes, nil
}

func (f *fakePlatform) refundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refunds)
}

// fakeCast records every broadcast.
type fakeCast struct {
	mu       sync.Mutex
	statuses []game.Snapshot
	updates  []game.BonusUpdate
	tallies  []game.PredictionTally
}

func (f *fakeCast) GameStatus(s game.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, s)
}

func (f *fakeCast) BonusUpdate(u game.BonusUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

func (f *fakeCast) PredictionProgress(t game.PredictionTally) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tallies = append(f.tallies, t)
}

func (f *fakeCast) lastStatus() (game.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return game.Snapshot{}, false
	}
	return f.statuses[len(f.statuses)-1], true
}

func (f *fakeCast) lastUpdate() (game.BonusUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return game.BonusUpdate{}, false
	}
	return f.updates[len(f.updates)-1], true
}

var errBoom = errors.New("boom")
