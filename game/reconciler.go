package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kleoz/smashbet/telemetry"
)

// HandleRedemption reconciles one inbound channel-point redemption against
// the current match. Accepted redemptions mutate the bonus state, persist,
// and broadcast; rejected ones are refunded on the platform. Redemptions for
// rewards this controller does not manage are ignored silently.
//
// There is no caller to report errors to (the event arrives via webhook), so
// failures are logged and degrade per policy: refund failures leave the
// viewer's points spent, persistence failures abort before any broadcast.
func (e *Engine) HandleRedemption(ctx context.Context, ev RedemptionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cat, ok := e.registry.Lookup(ev.RewardID)
	if !ok {
		// Not one of ours; another system's reward on the same channel.
		return
	}

	if e.current == nil || e.current.Phase != PhaseBonusActive {
		e.rejectLocked(ctx, ev, cat, "bonus window is not open")
		return
	}

	parsed, err := ParseInput(cat, ev.Input)
	if err != nil {
		e.rejectLocked(ctx, ev, cat, err.Error())
		return
	}

	msg, err := e.applyBonusLocked(cat, parsed, ev)
	if err != nil {
		e.rejectLocked(ctx, ev, cat, err.Error())
		return
	}

	if err := e.matches.Save(ctx, e.current); err != nil {
		// In-memory and durable state must not diverge silently; drop the
		// mutation and treat the redemption as rejected.
		e.revertBonusLocked(cat, parsed)
		e.log.Error("persist accepted bonus failed",
			slog.Int64("match_id", e.current.MatchID), slog.Any("err", err))
		e.rejectLocked(ctx, ev, cat, "internal error, try again")
		return
	}

	if err := e.scores.RecordBonus(ctx, ev.UserID, ev.UserDisplayName, cat); err != nil {
		e.log.Error("score upsert failed", slog.String("user_id", ev.UserID), slog.Any("err", err))
	}
	target := parsed.BotIndex + 1
	if err := e.bonusLog.Append(ctx, BonusLogEntry{
		MatchID:   e.current.MatchID,
		UserID:    ev.UserID,
		Category:  cat,
		TargetBot: &target,
		Input:     ev.Input,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		e.log.Error("bonus log append failed", slog.Any("err", err))
	}

	telemetry.IncRedemptionAccepted()
	e.log.Info("bonus accepted",
		slog.String("user", ev.UserDisplayName),
		slog.String("category", string(cat)),
		slog.String("input", ev.Input),
		slog.String("detail", msg))

	e.cast.BonusUpdate(BonusUpdate{Type: cat, User: ev.UserDisplayName, Input: ev.Input, IsSuccess: true, Message: msg})
	e.cast.GameStatus(e.current.Snapshot())
	if e.announcer != nil {
		e.announcer.BonusApplied(ev.UserDisplayName, cat, target, parsed.Payload)
	}

	// Fast path: when nothing redeemable remains there is no reason to let
	// the window run out its timer.
	if e.current.Bonus.Exhausted() {
		if _, err := e.closeBonusLocked(ctx); err != nil {
			e.log.Error("exhaustion-driven bonus close failed", slog.Any("err", err))
		}
	}
}

// applyBonusLocked enforces the per-bot usage rules and mutates the bonus
// state. It returns a human-readable success message, or an error that
// describes the rejection without having touched any state.
func (e *Engine) applyBonusLocked(cat Category, in ParsedInput, ev RedemptionEvent) (string, error) {
	b := &e.current.Bonus
	botNo := in.BotIndex + 1
	var msg string

	switch cat {
	case CategoryLevelUp:
		if b.LevelAdjust[in.BotIndex] >= AdjustMax {
			return "", validationf("max reached for bot %d", botNo)
		}
		b.LevelAdjust[in.BotIndex]++
		msg = fmt.Sprintf("bot %d level up (%+d)", botNo, b.LevelAdjust[in.BotIndex])
	case CategoryLevelDown:
		if b.LevelAdjust[in.BotIndex] <= AdjustMin {
			return "", validationf("min reached for bot %d", botNo)
		}
		b.LevelAdjust[in.BotIndex]--
		msg = fmt.Sprintf("bot %d level down (%+d)", botNo, b.LevelAdjust[in.BotIndex])
	case CategoryCharSelect:
		if b.CharSelectUsed[in.BotIndex] {
			return "", validationf("character for bot %d already selected", botNo)
		}
		b.CharSelectUsed[in.BotIndex] = true
		b.CharSelections[in.BotIndex] = in.Payload
		msg = fmt.Sprintf("bot %d plays %s", botNo, in.Payload)
	default:
		return "", validationf("unknown bonus category %q", cat)
	}

	b.RecomputeLevels()
	b.Log = append(b.Log, AppliedBonus{
		User:      ev.UserDisplayName,
		UserID:    ev.UserID,
		Category:  cat,
		Input:     ev.Input,
		Timestamp: time.Now().UTC(),
	})
	return msg, nil
}

// revertBonusLocked undoes applyBonusLocked after a failed persist.
func (e *Engine) revertBonusLocked(cat Category, in ParsedInput) {
	b := &e.current.Bonus
	switch cat {
	case CategoryLevelUp:
		b.LevelAdjust[in.BotIndex]--
	case CategoryLevelDown:
		b.LevelAdjust[in.BotIndex]++
	case CategoryCharSelect:
		b.CharSelectUsed[in.BotIndex] = false
		b.CharSelections[in.BotIndex] = ""
	}
	b.RecomputeLevels()
	if n := len(b.Log); n > 0 {
		b.Log = b.Log[:n-1]
	}
}

// rejectLocked runs the rejection path: refund the redemption on the
// platform, then tell the overlay why. The overlay is notified regardless of
// whether the refund itself succeeded.
func (e *Engine) rejectLocked(ctx context.Context, ev RedemptionEvent, cat Category, reason string) {
	telemetry.IncRedemptionRejected()
	msg := reason
	if err := e.platform.RefundRedemption(ctx, ev.RewardID, ev.ID); err != nil {
		// Known limitation: the viewer keeps a failed, unrefunded
		// redemption when the platform call fails.
		telemetry.IncRefundFailed()
		e.log.Error("refund failed",
			slog.String("redemption_id", ev.ID),
			slog.String("user", ev.UserDisplayName),
			slog.Any("err", err))
	} else {
		msg += " (refunded)"
	}
	e.log.Warn("bonus rejected",
		slog.String("user", ev.UserDisplayName),
		slog.String("category", string(cat)),
		slog.String("input", ev.Input),
		slog.String("reason", reason))
	e.cast.BonusUpdate(BonusUpdate{Type: cat, User: ev.UserDisplayName, Input: ev.Input, IsSuccess: false, Message: msg})
}
