package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// TokenStore persists the broadcaster's OAuth token pair across restarts.
type TokenStore interface {
	GetToken(ctx context.Context) (access, refresh string, expiry time.Time, err error)
	PutToken(ctx context.Context, access, refresh string, expiry time.Time) error
}

// UserTokenSource serves the broadcaster's user access token, refreshing it
// against id.twitch.tv when it nears expiry and writing the rotated pair back
// to the store. Twitch rotates the refresh token on every use, so losing a
// write means re-authorizing by hand; the store is read fresh on every call
// rather than trusting an in-process cache.
type UserTokenSource struct {
	ClientID     string
	ClientSecret string
	Store        TokenStore

	// Endpoint overrides the token URL in tests.
	Endpoint oauth2.Endpoint

	mu sync.Mutex
}

// Get returns a currently valid access token for Helix calls that need
// broadcaster scopes (channel points, predictions).
func (u *UserTokenSource) Get(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	access, refresh, expiry, err := u.Store.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("load twitch user token: %w", err)
	}
	if access == "" && refresh == "" {
		return "", errors.New("no twitch user token stored: seed oauth_tokens first")
	}
	if access != "" && time.Until(expiry) > 60*time.Second {
		return access, nil
	}
	tok, err := u.refreshLocked(ctx, refresh)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// ForceRefresh rotates the token pair regardless of expiry. The background
// refresher uses it so the refresh token never goes stale.
func (u *UserTokenSource) ForceRefresh(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, refresh, _, err := u.Store.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("load twitch user token: %w", err)
	}
	if refresh == "" {
		return errors.New("no refresh token stored")
	}
	_, err = u.refreshLocked(ctx, refresh)
	return err
}

func (u *UserTokenSource) refreshLocked(ctx context.Context, refresh string) (*oauth2.Token, error) {
	if refresh == "" {
		return nil, errors.New("twitch user token expired and no refresh token stored")
	}
	ep := u.Endpoint
	if ep.TokenURL == "" {
		ep = twitch.Endpoint
	}
	conf := &oauth2.Config{
		ClientID:     u.ClientID,
		ClientSecret: u.ClientSecret,
		Endpoint:     ep,
	}
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh twitch user token: %w", err)
	}
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}
	if err := u.Store.PutToken(ctx, tok.AccessToken, newRefresh, tok.Expiry); err != nil {
		return nil, fmt.Errorf("persist rotated twitch token: %w", err)
	}
	return tok, nil
}
