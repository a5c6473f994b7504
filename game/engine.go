package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kleoz/smashbet/telemetry"
)

// sideEffectTimeout bounds platform/DB calls made from the timer callback,
// which has no inbound request context to inherit.
const sideEffectTimeout = 15 * time.Second

// EngineConfig wires the engine's collaborators. Announcer may be nil.
type EngineConfig struct {
	Matches   MatchStore
	Scores    ScoreStore
	BonusLog  BonusLogStore
	Registry  RewardRegistry
	Platform  PlatformClient
	Broadcast Broadcaster
	Announcer Announcer
	// Marker is the prefix a prediction title must carry to be treated as
	// this show's prediction (filters unrelated predictions on the channel).
	Marker string
}

// Engine owns the single current match and is the only writer of its phase.
// One mutex serializes every mutation path: admin commands, EventSub
// dispatches, and the bonus window timer. Broadcasts are emitted only after
// the triggering handler's persist step succeeded.
type Engine struct {
	mu      sync.Mutex
	current *Match
	lastID  int64

	matches   MatchStore
	scores    ScoreStore
	bonusLog  BonusLogStore
	registry  RewardRegistry
	platform  PlatformClient
	cast      Broadcaster
	announcer Announcer
	marker    string

	// Cancellable bonus timer handle. timerGen invalidates callbacks that
	// were already in flight when the timer was re-armed or cancelled.
	bonusTimer *time.Timer
	timerGen   uint64

	log *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		matches:   cfg.Matches,
		scores:    cfg.Scores,
		bonusLog:  cfg.BonusLog,
		registry:  cfg.Registry,
		platform:  cfg.Platform,
		cast:      cfg.Broadcast,
		announcer: cfg.Announcer,
		marker:    cfg.Marker,
		log:       slog.Default().With(slog.String("component", "game")),
	}
}

// Resume loads the most recent match from storage so the controller picks up
// where it left off after a restart.
func (e *Engine) Resume(ctx context.Context) error {
	m, err := e.matches.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load latest match: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if m == nil {
		e.log.Info("no stored match, starting fresh")
		return nil
	}
	e.current = m
	e.lastID = m.MatchID
	e.log.Info("resumed match",
		slog.Int64("match_id", m.MatchID),
		slog.String("phase", string(m.Phase)),
		slog.String("prediction_id", m.PredictionID))
	return nil
}

// StartMatch creates a new match in AWAITING_PREDICTION. It fails with
// ErrMatchOpen while any match is in a non-CLOSED phase.
func (e *Engine) StartMatch(ctx context.Context) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.Phase != PhaseClosed {
		return Snapshot{}, fmt.Errorf("%w (match %d is %s)", ErrMatchOpen, e.current.MatchID, e.current.Phase)
	}
	m := NewMatch(e.lastID + 1)
	if err := e.matches.Save(ctx, m); err != nil {
		return Snapshot{}, fmt.Errorf("persist match %d: %w", m.MatchID, err)
	}
	e.cancelBonusTimerLocked()
	e.current = m
	e.lastID = m.MatchID
	telemetry.IncMatchStarted()
	e.log.Info("match started", slog.Int64("match_id", m.MatchID))
	s := m.Snapshot()
	e.cast.GameStatus(s)
	return s, nil
}

// StartBonus opens the bonus window for the given duration and arms the
// closure timer. Valid only while the phase is exactly BETTING.
func (e *Engine) StartBonus(ctx context.Context, d time.Duration) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Snapshot{}, ErrNoMatch
	}
	if e.current.Phase != PhaseBetting {
		return Snapshot{}, fmt.Errorf("%w: start-bonus requires %s, match %d is %s",
			ErrWrongPhase, PhaseBetting, e.current.MatchID, e.current.Phase)
	}
	if d <= 0 {
		return Snapshot{}, validationf("invalid bonus duration %s", d)
	}
	e.current.Phase = PhaseBonusActive
	e.current.UpdatedAt = time.Now().UTC()
	if err := e.matches.Save(ctx, e.current); err != nil {
		e.current.Phase = PhaseBetting
		return Snapshot{}, fmt.Errorf("persist match %d: %w", e.current.MatchID, err)
	}
	e.setRewardsEnabledLocked(ctx, true)
	e.armBonusTimerLocked(d)
	telemetry.IncBonusWindowOpened()
	e.log.Info("bonus window opened",
		slog.Int64("match_id", e.current.MatchID),
		slog.Duration("duration", d))
	s := e.current.Snapshot()
	e.cast.GameStatus(s)
	return s, nil
}

// StopBonus forces the bonus-closure transition early. Calling it when the
// window is not open is a no-op, not an error.
func (e *Engine) StopBonus(ctx context.Context) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Snapshot{}, ErrNoMatch
	}
	if _, err := e.closeBonusLocked(ctx); err != nil {
		return Snapshot{}, err
	}
	return e.current.Snapshot(), nil
}

// CloseMatch force-closes the current match from any non-CLOSED phase,
// running the bonus-closure transition first when the window is still open.
func (e *Engine) CloseMatch(ctx context.Context) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Snapshot{}, ErrNoMatch
	}
	if e.current.Phase == PhaseClosed {
		return Snapshot{}, fmt.Errorf("%w: match %d already closed", ErrWrongPhase, e.current.MatchID)
	}
	return e.closeMatchLocked(ctx)
}

func (e *Engine) closeMatchLocked(ctx context.Context) (Snapshot, error) {
	if e.current.Phase == PhaseBonusActive {
		if _, err := e.closeBonusLocked(ctx); err != nil {
			return Snapshot{}, err
		}
	}
	e.cancelBonusTimerLocked()
	e.current.Phase = PhaseClosed
	e.current.UpdatedAt = time.Now().UTC()
	if err := e.matches.Save(ctx, e.current); err != nil {
		return Snapshot{}, fmt.Errorf("persist match %d: %w", e.current.MatchID, err)
	}
	telemetry.IncMatchClosed()
	e.log.Info("match closed",
		slog.Int64("match_id", e.current.MatchID),
		slog.Any("winner", e.current.WinningBot))
	s := e.current.Snapshot()
	e.cast.GameStatus(s)
	if e.announcer != nil {
		e.announcer.MatchClosed(e.current.MatchID, e.current.WinningBot)
	}
	return s, nil
}

// closeBonusLocked runs the BONUS_ACTIVE -> IN_PROGRESS transition. It is
// idempotent: the timer, a manual stop-bonus, and the all-exhausted fast path
// may all race to call it, and every caller re-checks the phase here.
func (e *Engine) closeBonusLocked(ctx context.Context) (bool, error) {
	if e.current == nil || e.current.Phase != PhaseBonusActive {
		return false, nil
	}
	e.cancelBonusTimerLocked()
	e.current.Bonus.RecomputeLevels()
	e.current.Phase = PhaseInProgress
	e.current.UpdatedAt = time.Now().UTC()
	if err := e.matches.Save(ctx, e.current); err != nil {
		e.current.Phase = PhaseBonusActive
		return false, fmt.Errorf("persist match %d: %w", e.current.MatchID, err)
	}
	// Best-effort reward hide: a platform outage must not wedge the phase
	// transition, so failures are logged and never retried here.
	e.setRewardsEnabledLocked(ctx, false)
	e.log.Info("bonus window closed",
		slog.Int64("match_id", e.current.MatchID),
		slog.Any("bot_levels", e.current.Bonus.BotLevels))
	e.cast.GameStatus(e.current.Snapshot())
	return true, nil
}

func (e *Engine) setRewardsEnabledLocked(ctx context.Context, enabled bool) {
	for _, id := range e.registry.IDs() {
		if err := e.platform.SetRewardEnabled(ctx, id, enabled); err != nil {
			e.log.Warn("reward toggle failed",
				slog.String("reward_id", id),
				slog.Bool("enabled", enabled),
				slog.Any("err", err))
		}
	}
}

func (e *Engine) armBonusTimerLocked(d time.Duration) {
	if e.bonusTimer != nil {
		e.bonusTimer.Stop()
	}
	e.timerGen++
	gen := e.timerGen
	e.bonusTimer = time.AfterFunc(d, func() { e.bonusTimerFired(gen) })
}

func (e *Engine) cancelBonusTimerLocked() {
	if e.bonusTimer != nil {
		e.bonusTimer.Stop()
		e.bonusTimer = nil
	}
	e.timerGen++
}

func (e *Engine) bonusTimerFired(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.timerGen {
		// Re-armed or cancelled while this callback was pending.
		return
	}
	changed, err := e.closeBonusLocked(ctx)
	if err != nil {
		e.log.Error("timer-driven bonus close failed", slog.Any("err", err))
		return
	}
	if changed {
		e.log.Info("bonus window closed by timer")
	}
}

// CurrentSnapshot returns the current match view, or a closed placeholder
// (and false) when no match has ever been played.
func (e *Engine) CurrentSnapshot() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ClosedPlaceholder(), false
	}
	return e.current.Snapshot(), true
}
