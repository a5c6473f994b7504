package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/kleoz/smashbet/game"
)

// Memory is an in-memory implementation of the game persistence ports, used
// by engine and server tests in place of Postgres.
type Memory struct {
	mu      sync.Mutex
	matches map[int64]*game.Match
	scores  map[string]*game.UserScore
	log     []game.BonusLogEntry

	// FailSaves makes Save return an error, for persistence-failure tests.
	FailSaves bool
}

func NewMemory() *Memory {
	return &Memory{
		matches: map[int64]*game.Match{},
		scores:  map[string]*game.UserScore{},
	}
}

type memSaveError struct{}

func (memSaveError) Error() string { return "memory store: save disabled" }

func (m *Memory) Latest(ctx context.Context) (*game.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *game.Match
	for _, mm := range m.matches {
		if latest == nil || mm.MatchID > latest.MatchID {
			latest = mm
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneMatch(latest), nil
}

func (m *Memory) Save(ctx context.Context, match *game.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return memSaveError{}
	}
	m.matches[match.MatchID] = cloneMatch(match)
	return nil
}

// SavedMatch returns the stored copy of a match, or nil.
func (m *Memory) SavedMatch(id int64) *game.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm, ok := m.matches[id]
	if !ok {
		return nil
	}
	return cloneMatch(mm)
}

func (m *Memory) EnsureUser(ctx context.Context, userID, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(userID, displayName)
	return nil
}

func (m *Memory) RecordBonus(ctx context.Context, userID, displayName string, cat game.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.upsertLocked(userID, displayName)
	u.BonusUsedCount++
	switch cat {
	case game.CategoryLevelUp:
		u.LevelUpCount++
	case game.CategoryLevelDown:
		u.LevelDownCount++
	case game.CategoryCharSelect:
		u.CharSelectCount++
	}
	return nil
}

func (m *Memory) AwardPoint(ctx context.Context, userID, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(userID, displayName).TotalPoints++
	return nil
}

func (m *Memory) upsertLocked(userID, displayName string) *game.UserScore {
	u, ok := m.scores[userID]
	if !ok {
		u = &game.UserScore{UserID: userID}
		m.scores[userID] = u
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	return u
}

// Score returns a copy of a user's score row and whether it exists.
func (m *Memory) Score(userID string) (game.UserScore, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.scores[userID]
	if !ok {
		return game.UserScore{}, false
	}
	return *u, true
}

func (m *Memory) TopByPoints(ctx context.Context, limit int) ([]game.UserScore, error) {
	return m.top(limit, func(a, b game.UserScore) bool { return a.TotalPoints > b.TotalPoints }), nil
}

func (m *Memory) TopByBonus(ctx context.Context, limit int) ([]game.UserScore, error) {
	return m.top(limit, func(a, b game.UserScore) bool { return a.BonusUsedCount > b.BonusUsedCount }), nil
}

func (m *Memory) top(limit int, less func(a, b game.UserScore) bool) []game.UserScore {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := make([]game.UserScore, 0, len(m.scores))
	for _, u := range m.scores {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) != less(out[j], out[i]) {
			return less(out[i], out[j])
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Memory) Append(ctx context.Context, e game.BonusLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, e)
	return nil
}

// LogEntries returns a copy of the appended bonus history.
func (m *Memory) LogEntries() []game.BonusLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]game.BonusLogEntry(nil), m.log...)
}

func cloneMatch(m *game.Match) *game.Match {
	// Round-trip through JSON: cheap, and exercises the same encoding the
	// Postgres store uses for the bonus state.
	b, _ := json.Marshal(m)
	var out game.Match
	_ = json.Unmarshal(b, &out)
	return &out
}
