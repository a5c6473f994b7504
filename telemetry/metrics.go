// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MatchesStarted      prometheus.Counter
	MatchesClosed       prometheus.Counter
	BonusWindowsOpened  prometheus.Counter
	RedemptionsAccepted prometheus.Counter
	RedemptionsRejected prometheus.Counter
	RefundsFailed       prometheus.Counter
	EventSubDuplicates  prometheus.Counter

	EventSubNotifications *prometheus.CounterVec

	// Histograms (seconds)
	HelixRequestDuration prometheus.Observer

	// Gauges
	OverlayClientsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MatchesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "smashbet_matches_started_total", Help: "Number of matches started"})
		MatchesClosed = promauto.NewCounter(prometheus.CounterOpts{Name: "smashbet_matches_closed_total", Help: "Number of matches closed"})
		BonusWindowsOpened = promauto.NewCounter(prometheus.CounterOpts{Name: "smashbet_bonus_windows_opened_total", Help: "Number of bonus windows opened"})
		RedemptionsAccepted = promauto.NewCounter(prometheus.CounterOpts{Name: "smashbet_redemptions_accepted_total", Help: "Number of accepted bonus redemptions"})
		RedemptionsRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "smashbet_redemptions_rejected_total", Help: "Number of rejected bonus redemptions"})
		RefundsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "smashbet_refunds_failed_total", Help: "Number of refund attempts that failed (viewer keeps an unrefunded redemption)"})
		EventSubDuplicates = promauto.NewCounter(prometheus.CounterOpts{Name: "smashbet_eventsub_duplicates_total", Help: "Number of duplicate EventSub deliveries suppressed"})
		EventSubNotifications = promauto.NewCounterVec(prometheus.CounterOpts{Name: "smashbet_eventsub_notifications_total", Help: "EventSub notifications received by subscription type"}, []string{"type"})
		HelixRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "smashbet_helix_request_duration_seconds", Help: "Twitch Helix request duration seconds", Buckets: prometheus.DefBuckets})
		OverlayClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "smashbet_overlay_clients", Help: "Currently connected overlay websocket clients"})
	})
}

// Nil-safe increment helpers so packages can record metrics without caring
// whether Init ran (it doesn't in unit tests).

func IncMatchStarted() {
	if MatchesStarted != nil {
		MatchesStarted.Inc()
	}
}

func IncMatchClosed() {
	if MatchesClosed != nil {
		MatchesClosed.Inc()
	}
}

func IncBonusWindowOpened() {
	if BonusWindowsOpened != nil {
		BonusWindowsOpened.Inc()
	}
}

func IncRedemptionAccepted() {
	if RedemptionsAccepted != nil {
		RedemptionsAccepted.Inc()
	}
}

func IncRedemptionRejected() {
	if RedemptionsRejected != nil {
		RedemptionsRejected.Inc()
	}
}

func IncRefundFailed() {
	if RefundsFailed != nil {
		RefundsFailed.Inc()
	}
}

func IncEventSubDuplicate() {
	if EventSubDuplicates != nil {
		EventSubDuplicates.Inc()
	}
}

func IncEventSubNotification(subType string) {
	if EventSubNotifications != nil {
		EventSubNotifications.WithLabelValues(subType).Inc()
	}
}

// SetOverlayClients records the current overlay client count.
func SetOverlayClients(n int) {
	if OverlayClientsGauge != nil {
		OverlayClientsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// ObserveHelix records one Helix request duration.
func ObserveHelix(d time.Duration) {
	if HelixRequestDuration != nil {
		HelixRequestDuration.Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger carrying the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
