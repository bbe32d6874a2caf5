package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/auth"
	"github.com/vendalink/salechat-server/internal/chat"
	"github.com/vendalink/salechat-server/internal/config"
	"github.com/vendalink/salechat-server/internal/feed/bus"
	"github.com/vendalink/salechat-server/internal/service/messaging"
	"github.com/vendalink/salechat-server/internal/service/notify"
	"github.com/vendalink/salechat-server/internal/store/sqlite"
)

type testServer struct {
	ts        *httptest.Server
	handler   http.Handler
	auth      *auth.Service
	messaging *messaging.Service
	notify    *notify.Service
	store     *sqlite.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	b := bus.New(nil)
	t.Cleanup(func() { _ = b.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	tracker := chat.NewTracker(st, b, 5*time.Millisecond, nil)
	notifService := notify.New(st, b, nil)
	msgService := messaging.New(st, b, notifService, tracker, nil)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"

	disabledLogger := zerolog.New(nil)
	server := NewServer(msgService, notifService, authService, st, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{
		ts:        ts,
		handler:   server.Handler,
		auth:      authService,
		messaging: msgService,
		notify:    notifService,
		store:     st,
	}
}

// registerUser creates a user through the API and returns its token and id.
func (s *testServer) registerUser(t *testing.T, username, displayName string) (string, int64) {
	t.Helper()

	body := fmt.Sprintf(`{"username":%q,"display_name":%q,"password":"password123"}`, username, displayName)
	resp := s.do(t, http.MethodPost, "/api/register", "", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, resp.Code, resp.Body.String())
	}

	var authResp AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &authResp); err != nil {
		t.Fatalf("failed to unmarshal auth response: %v", err)
	}

	claims, err := s.auth.ValidateToken(authResp.Token)
	if err != nil {
		t.Fatalf("failed to validate issued token: %v", err)
	}
	return authResp.Token, claims.UserID
}

// do performs a request against the in-process handler.
func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}
