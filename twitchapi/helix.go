// Package twitchapi wraps the Twitch Helix endpoints the controller needs:
// custom reward listing and toggling, redemption refunds, prediction lookup,
// and EventSub subscription management.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/kleoz/smashbet/telemetry"
)

const helixBase = "https://api.twitch.tv/helix"

// Client talks to the Helix API. UserTokens authorizes channel-point and
// prediction calls; AppTokens authorizes EventSub subscription management.
type Client struct {
	ClientID      string
	BroadcasterID string
	UserTokens    *UserTokenSource
	AppTokens     *TokenSource
	HTTPClient    *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// CustomReward is a channel-point reward as configured on the channel.
type CustomReward struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Cost      int    `json:"cost"`
	IsEnabled bool   `json:"is_enabled"`
	IsPaused  bool   `json:"is_paused"`
}

// ListCustomRewards returns the channel's custom rewards.
func (c *Client) ListCustomRewards(ctx context.Context) ([]CustomReward, error) {
	q := url.Values{}
	q.Set("broadcaster_id", c.BroadcasterID)
	var out struct {
		Data []CustomReward `json:"data"`
	}
	if err := c.doUser(ctx, http.MethodGet, "/channel_points/custom_rewards?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UpdateCustomReward enables or pauses a reward. Disabling hides the reward
// entirely; pausing keeps it visible but unredeemable.
func (c *Client) UpdateCustomReward(ctx context.Context, rewardID string, enabled bool) error {
	q := url.Values{}
	q.Set("broadcaster_id", c.BroadcasterID)
	q.Set("id", rewardID)
	body := map[string]any{"is_enabled": enabled, "is_paused": !enabled}
	return c.doUser(ctx, http.MethodPatch, "/channel_points/custom_rewards?"+q.Encode(), body, nil)
}

// UpdateRedemptionStatus sets a redemption's status. Status CANCELED returns
// the channel points to the viewer.
func (c *Client) UpdateRedemptionStatus(ctx context.Context, rewardID, redemptionID, status string) error {
	q := url.Values{}
	q.Set("broadcaster_id", c.BroadcasterID)
	q.Set("reward_id", rewardID)
	q.Set("id", redemptionID)
	body := map[string]string{"status": status}
	return c.doUser(ctx, http.MethodPatch, "/channel_points/custom_rewards/redemptions?"+q.Encode(), body, nil)
}

// Prediction mirrors the Helix prediction resource, including per-outcome
// top predictors which EventSub progress events truncate.
type Prediction struct {
	ID       string              `json:"id"`
	Title    string              `json:"title"`
	Status   string              `json:"status"`
	Outcomes []PredictionOutcome `json:"outcomes"`
}

type PredictionOutcome struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Users         int            `json:"users"`
	TopPredictors []TopPredictor `json:"top_predictors"`
}

type TopPredictor struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// GetPrediction fetches one prediction by id.
func (c *Client) GetPrediction(ctx context.Context, predictionID string) (*Prediction, error) {
	q := url.Values{}
	q.Set("broadcaster_id", c.BroadcasterID)
	q.Set("id", predictionID)
	var out struct {
		Data []Prediction `json:"data"`
	}
	if err := c.doUser(ctx, http.MethodGet, "/predictions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("prediction %s not found", predictionID)
	}
	return &out.Data[0], nil
}

// EnsureSubscriptions creates the EventSub webhook subscriptions the
// controller listens for. A 409 means the subscription already exists and is
// not an error.
func (c *Client) EnsureSubscriptions(ctx context.Context, callbackURL, secret string) error {
	types := []struct {
		name    string
		version string
	}{
		{"channel.channel_points_custom_reward_redemption.add", "1"},
		{"channel.prediction.begin", "1"},
		{"channel.prediction.progress", "1"},
		{"channel.prediction.end", "1"},
	}
	for _, t := range types {
		body := map[string]any{
			"type":      t.name,
			"version":   t.version,
			"condition": map[string]string{"broadcaster_user_id": c.BroadcasterID},
			"transport": map[string]string{
				"method":   "webhook",
				"callback": callbackURL,
				"secret":   secret,
			},
		}
		status, err := c.doApp(ctx, http.MethodPost, "/eventsub/subscriptions", body)
		if err != nil && status != http.StatusConflict {
			return fmt.Errorf("subscribe %s: %w", t.name, err)
		}
		if status == http.StatusConflict {
			slog.Debug("eventsub subscription already exists", slog.String("type", t.name))
		}
	}
	return nil
}

// doUser performs a Helix request authorized by the broadcaster's user token.
func (c *Client) doUser(ctx context.Context, method, path string, body, out any) error {
	tok, err := c.UserTokens.Get(ctx)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, method, path, tok, body, out)
	return err
}

// doApp performs a Helix request authorized by the app token, returning the
// HTTP status so callers can treat 409 specially.
func (c *Client) doApp(ctx context.Context, method, path string, body any) (int, error) {
	tok, err := c.AppTokens.Get(ctx)
	if err != nil {
		return 0, err
	}
	return c.do(ctx, method, path, tok, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, helixBase+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := c.httpClient().Do(req)
	telemetry.ObserveHelix(time.Since(start))
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("helix %s %s: %s: %s", method, path, resp.Status, string(b))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode helix response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
