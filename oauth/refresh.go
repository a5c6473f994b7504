// Package oauth runs the background token refresher that keeps the
// broadcaster's Twitch credentials alive across long idle stretches.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// RefreshFunc rotates the stored token pair.
type RefreshFunc func(ctx context.Context) error

// StartRefresher refreshes on a jittered interval until ctx is canceled.
// Twitch user tokens live ~4 hours; refreshing well inside that keeps the
// refund path from ever hitting an expired token mid-show. Jitter avoids
// thundering-herd refreshes when several instances restart together.
func StartRefresher(ctx context.Context, interval time.Duration, refresh RefreshFunc) {
	if interval <= 0 {
		interval = time.Hour
	}
	log := slog.Default().With(slog.String("component", "oauth"))
	go func() {
		for {
			jitter := time.Duration(rand.Int63n(int64(interval / 10)))
			select {
			case <-ctx.Done():
				log.Info("token refresher stopped")
				return
			case <-time.After(interval + jitter):
			}
			rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := refresh(rctx)
			cancel()
			if err != nil {
				log.Error("scheduled token refresh failed", slog.Any("err", err))
				continue
			}
			log.Debug("token refreshed")
		}
	}()
}
