// Package store implements the persistence ports of the game package:
// Postgres-backed stores for matches, user scores, and the bonus history,
// plus an in-memory variant used by tests.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kleoz/smashbet/game"
)

// MatchStore persists match aggregates in the matches table. The composite
// bonus state travels as a JSONB document; the phase and winner are lifted
// into columns for querying.
type MatchStore struct {
	DB *sql.DB
}

func (s *MatchStore) Latest(ctx context.Context) (*game.Match, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT match_id, COALESCE(prediction_id,''), phase, winning_bot, bonus_state, created_at, updated_at
		FROM matches ORDER BY match_id DESC LIMIT 1`)
	var m game.Match
	var winning sql.NullInt64
	var bonus []byte
	err := row.Scan(&m.MatchID, &m.PredictionID, &m.Phase, &winning, &bonus, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan latest match: %w", err)
	}
	if winning.Valid {
		w := int(winning.Int64)
		m.WinningBot = &w
	}
	if err := json.Unmarshal(bonus, &m.Bonus); err != nil {
		return nil, fmt.Errorf("decode bonus state for match %d: %w", m.MatchID, err)
	}
	return &m, nil
}

func (s *MatchStore) Save(ctx context.Context, m *game.Match) error {
	bonus, err := json.Marshal(m.Bonus)
	if err != nil {
		return fmt.Errorf("encode bonus state: %w", err)
	}
	var winning sql.NullInt64
	if m.WinningBot != nil {
		winning = sql.NullInt64{Int64: int64(*m.WinningBot), Valid: true}
	}
	var predictionID sql.NullString
	if m.PredictionID != "" {
		predictionID = sql.NullString{String: m.PredictionID, Valid: true}
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO matches(match_id, prediction_id, phase, winning_bot, bonus_state, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT(match_id) DO UPDATE SET
		  prediction_id=EXCLUDED.prediction_id,
		  phase=EXCLUDED.phase,
		  winning_bot=EXCLUDED.winning_bot,
		  bonus_state=EXCLUDED.bonus_state,
		  updated_at=NOW()`,
		m.MatchID, predictionID, string(m.Phase), winning, bonus, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("save match %d: %w", m.MatchID, err)
	}
	return nil
}

// ScoreStore mutates user_scores exclusively through single-statement
// upsert-increments, so concurrent redemption bursts for the same viewer
// never race a read-modify-write.
type ScoreStore struct {
	DB *sql.DB
}

func (s *ScoreStore) EnsureUser(ctx context.Context, userID, displayName string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO user_scores(twitch_user_id, display_name)
		VALUES($1,$2)
		ON CONFLICT(twitch_user_id) DO UPDATE SET
		  display_name=EXCLUDED.display_name, updated_at=NOW()`,
		userID, displayName)
	return err
}

func (s *ScoreStore) RecordBonus(ctx context.Context, userID, displayName string, cat game.Category) error {
	col, ok := categoryColumn(cat)
	if !ok {
		return fmt.Errorf("unknown bonus category %q", cat)
	}
	q := fmt.Sprintf(`
		INSERT INTO user_scores(twitch_user_id, display_name, bonus_used_count, %[1]s)
		VALUES($1,$2,1,1)
		ON CONFLICT(twitch_user_id) DO UPDATE SET
		  display_name=EXCLUDED.display_name,
		  bonus_used_count=user_scores.bonus_used_count+1,
		  %[1]s=user_scores.%[1]s+1,
		  updated_at=NOW()`, col)
	_, err := s.DB.ExecContext(ctx, q, userID, displayName)
	return err
}

func (s *ScoreStore) AwardPoint(ctx context.Context, userID, displayName string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO user_scores(twitch_user_id, display_name, total_points)
		VALUES($1,$2,1)
		ON CONFLICT(twitch_user_id) DO UPDATE SET
		  display_name=EXCLUDED.display_name,
		  total_points=user_scores.total_points+1,
		  updated_at=NOW()`,
		userID, displayName)
	return err
}

// TopByPoints returns the prediction-win leaderboard.
func (s *ScoreStore) TopByPoints(ctx context.Context, limit int) ([]game.UserScore, error) {
	return s.top(ctx, "total_points", limit)
}

// TopByBonus returns the bonus-spender leaderboard.
func (s *ScoreStore) TopByBonus(ctx context.Context, limit int) ([]game.UserScore, error) {
	return s.top(ctx, "bonus_used_count", limit)
}

func (s *ScoreStore) top(ctx context.Context, orderCol string, limit int) ([]game.UserScore, error) {
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`
		SELECT twitch_user_id, display_name, total_points, bonus_used_count,
		       level_up_count, level_down_count, char_select_count
		FROM user_scores ORDER BY %s DESC, twitch_user_id ASC LIMIT $1`, orderCol)
	rows, err := s.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]game.UserScore, 0, limit)
	for rows.Next() {
		var u game.UserScore
		if err := rows.Scan(&u.UserID, &u.DisplayName, &u.TotalPoints, &u.BonusUsedCount,
			&u.LevelUpCount, &u.LevelDownCount, &u.CharSelectCount); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func categoryColumn(cat game.Category) (string, bool) {
	switch cat {
	case game.CategoryLevelUp:
		return "level_up_count", true
	case game.CategoryLevelDown:
		return "level_down_count", true
	case game.CategoryCharSelect:
		return "char_select_count", true
	default:
		return "", false
	}
}

// BonusLogStore appends to the immutable bonus_log history table.
type BonusLogStore struct {
	DB *sql.DB
}

func (s *BonusLogStore) Append(ctx context.Context, e game.BonusLogEntry) error {
	var target sql.NullInt64
	if e.TargetBot != nil {
		target = sql.NullInt64{Int64: int64(*e.TargetBot), Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO bonus_log(match_id, twitch_user_id, category, target_bot, input, created_at)
		VALUES($1,$2,$3,$4,$5,$6)`,
		e.MatchID, e.UserID, string(e.Category), target, e.Input, e.CreatedAt)
	return err
}
