package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockTwitchServer) respondJSON(path string, v any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	}
}

// MockCustomRewards adds a handler for the custom rewards list endpoint.
func (m *MockTwitchServer) MockCustomRewards(rewards []map[string]any) {
	m.respondJSON("/helix/channel_points/custom_rewards", map[string]any{"data": rewards})
}

// MockRedemptionPatch records redemption status updates and answers 200.
func (m *MockTwitchServer) MockRedemptionPatch(record func(r *http.Request)) {
	m.Handlers["/helix/channel_points/custom_rewards/redemptions"] = func(w http.ResponseWriter, r *http.Request) {
		if record != nil {
			record(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}}) //nolint:errcheck // test mock response
	}
}

// MockPrediction adds a handler for the predictions endpoint.
func (m *MockTwitchServer) MockPrediction(pred map[string]any) {
	m.respondJSON("/helix/predictions", map[string]any{"data": []any{pred}})
}

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.respondJSON("/oauth2/token", map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    expiresIn,
		"token_type":    "bearer",
	})
}

// MockEventSubSubscriptions adds a handler for subscription creation that
// answers with the given status code.
func (m *MockTwitchServer) MockEventSubSubscriptions(status int) {
	m.Handlers["/helix/eventsub/subscriptions"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}}) //nolint:errcheck // test mock response
	}
}
