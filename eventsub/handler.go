// Package eventsub implements the Twitch EventSub webhook endpoint: HMAC
// signature verification, challenge handshakes, duplicate suppression, and
// dispatch of notifications to the game engine.
package eventsub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/telemetry"
)

const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"

	typeNotification = "notification"
	typeVerification = "webhook_callback_verification"
	typeRevocation   = "revocation"

	maxBodySize = 1 << 20
)

// GameHandler is the engine surface the webhook dispatches into.
type GameHandler interface {
	HandleRedemption(ctx context.Context, ev game.RedemptionEvent)
	HandlePredictionBegin(ctx context.Context, ev game.PredictionBegin)
	HandlePredictionProgress(ctx context.Context, ev game.PredictionProgress)
	HandlePredictionEnd(ctx context.Context, ev game.PredictionEnd)
}

// Handler is the EventSub webhook http.Handler.
type Handler struct {
	Secret string
	Game   GameHandler

	seen *dedupeCache
	log  *slog.Logger
}

func NewHandler(secret string, g GameHandler) *Handler {
	return &Handler{
		Secret: secret,
		Game:   g,
		seen:   newDedupeCache(10 * time.Minute),
		log:    slog.Default().With(slog.String("component", "eventsub")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	msgID := r.Header.Get(headerMessageID)
	if !h.verifySignature(r.Header, body) {
		h.log.Warn("eventsub signature mismatch", slog.String("message_id", msgID))
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	switch r.Header.Get(headerMessageType) {
	case typeVerification:
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(env.Challenge)); err != nil {
			h.log.Warn("challenge write failed", slog.Any("err", err))
		}
		h.log.Info("eventsub subscription verified", slog.String("type", env.Subscription.Type))
	case typeRevocation:
		h.log.Warn("eventsub subscription revoked",
			slog.String("type", env.Subscription.Type),
			slog.String("status", env.Subscription.Status))
		w.WriteHeader(http.StatusNoContent)
	case typeNotification:
		// Acknowledge before dedupe so Twitch stops retrying either way.
		if msgID != "" && !h.seen.add(msgID) {
			telemetry.IncEventSubDuplicate()
			h.log.Debug("duplicate eventsub delivery", slog.String("message_id", msgID))
			w.WriteHeader(http.StatusNoContent)
			return
		}
		telemetry.IncEventSubNotification(env.Subscription.Type)
		h.dispatch(r.Context(), env.Subscription.Type, env.Event)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// verifySignature checks the HMAC-SHA256 over id + timestamp + raw body.
func (h *Handler) verifySignature(hdr http.Header, body []byte) bool {
	if h.Secret == "" {
		return false
	}
	sig := hdr.Get(headerMessageSignature)
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(hdr.Get(headerMessageID)))
	mac.Write([]byte(hdr.Get(headerMessageTimestamp)))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(sig))
}

func (h *Handler) dispatch(ctx context.Context, subType string, raw json.RawMessage) {
	switch subType {
	case "channel.channel_points_custom_reward_redemption.add":
		var ev redemptionEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.log.Error("decode redemption event failed", slog.Any("err", err))
			return
		}
		h.Game.HandleRedemption(ctx, game.RedemptionEvent{
			ID:              ev.ID,
			RewardID:        ev.Reward.ID,
			UserID:          ev.UserID,
			UserDisplayName: ev.UserName,
			Input:           ev.UserInput,
			OccurredAt:      ev.RedeemedAt,
		})
	case "channel.prediction.begin":
		var ev predictionBeginEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.log.Error("decode prediction begin failed", slog.Any("err", err))
			return
		}
		h.Game.HandlePredictionBegin(ctx, game.PredictionBegin{ID: ev.ID, Title: ev.Title})
	case "channel.prediction.progress":
		var ev predictionProgressEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.log.Error("decode prediction progress failed", slog.Any("err", err))
			return
		}
		p := game.PredictionProgress{ID: ev.ID}
		for _, o := range ev.Outcomes {
			op := game.OutcomeProgress{
				ID:            o.ID,
				Title:         o.Title,
				Users:         o.Users,
				ChannelPoints: o.ChannelPoints,
			}
			for _, tp := range o.TopPredictors {
				op.TopPredictors = append(op.TopPredictors, game.Predictor{UserID: tp.UserID, UserName: tp.UserName})
			}
			p.Outcomes = append(p.Outcomes, op)
		}
		h.Game.HandlePredictionProgress(ctx, p)
	case "channel.prediction.end":
		var ev predictionEndEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.log.Error("decode prediction end failed", slog.Any("err", err))
			return
		}
		end := game.PredictionEnd{ID: ev.ID, Status: ev.Status, WinningOutcomeID: ev.WinningOutcomeID}
		for _, o := range ev.Outcomes {
			if o.ID == ev.WinningOutcomeID {
				end.WinningOutcomeTitle = o.Title
				break
			}
		}
		h.Game.HandlePredictionEnd(ctx, end)
	default:
		h.log.Debug("unhandled eventsub type", slog.String("type", subType))
	}
}

// envelope is the common EventSub delivery wrapper.
type envelope struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

type redemptionEvent struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserInput string `json:"user_input"`
	Reward    struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reward"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

type predictionBeginEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type outcomePayload struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Users         int    `json:"users"`
	ChannelPoints int64  `json:"channel_points"`
	TopPredictors []struct {
		UserID   string `json:"user_id"`
		UserName string `json:"user_name"`
	} `json:"top_predictors"`
}

type predictionProgressEvent struct {
	ID       string           `json:"id"`
	Outcomes []outcomePayload `json:"outcomes"`
}

type predictionEndEvent struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	WinningOutcomeID string           `json:"winning_outcome_id"`
	Outcomes         []outcomePayload `json:"outcomes"`
}
