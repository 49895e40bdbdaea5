package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"civicBadgesAPI/handlers"
	"civicBadgesAPI/internal/badge"
	"civicBadgesAPI/internal/config"
	"civicBadgesAPI/internal/store"
	"civicBadgesAPI/middleware"
	"civicBadgesAPI/services"
)

var signingKey = []byte("router-test-key")

type testServer struct {
	handler    http.Handler
	mem        *store.MemoryStore
	svc        *services.BadgeService
	dispatcher *services.BadgeDispatcher
	userID     uuid.UUID
}

func newTestServer(t *testing.T, health healthFunc) *testServer {
	t.Helper()
	logger := zap.NewNop()
	mem := store.NewMemoryStore()
	svc := services.NewBadgeService(mem, nil, logger)

	defs, err := badge.DefaultDefinitions()
	require.NoError(t, err)
	require.NoError(t, svc.SyncCatalog(context.Background(), defs))

	userID := uuid.New()
	mem.AddUser("user_router", userID)

	dispatcher := services.NewBadgeDispatcher(svc, services.DispatcherConfig{Workers: 1}, logger)
	t.Cleanup(dispatcher.Stop)

	verifyUser := func(_ context.Context, token string) (string, error) {
		if token == "session-token" {
			return "user_router", nil
		}
		return "", errors.New("invalid session")
	}

	handler := newRouter(routerDeps{
		cfg:           config.Config{MetricsUser: "prom", MetricsPass: "pw"},
		logger:        logger,
		badgeHandler:  handlers.NewBadgeHandler(svc, logger),
		eventHandler:  handlers.NewEventHandler(dispatcher, logger),
		userVerifier:  verifyUser,
		eventVerifier: middleware.ServiceTokenVerifier(signingKey),
		limiter:       middleware.NewRateLimiter(rate.Inf, 1),
		health:        health,
	})
	return &testServer{handler: handler, mem: mem, svc: svc, dispatcher: dispatcher, userID: userID}
}

func (s *testServer) do(method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	up := newTestServer(t, func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, up.do(http.MethodGet, "/health", "", "").Code)

	down := newTestServer(t, func(context.Context) error { return errors.New("down") })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/health", "", "").Code)
}

func TestRouter_UserRoutesRequireSession(t *testing.T) {
	s := newTestServer(t, func(context.Context) error { return nil })

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/badges", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/badges", "Bearer forged", "").Code)

	for _, path := range []string{"/api/v1/badges", "/api/v1/badges/my", "/api/v1/badges/stats", "/api/v1/badges/progress", "/api/v1/badges/recent"} {
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, "Bearer session-token", "").Code, path)
	}
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/badges/check", "Bearer session-token", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/v1/badges/acknowledge", "Bearer session-token", "").Code)
}

func TestRouter_EventsFlowToLedger(t *testing.T) {
	s := newTestServer(t, func(context.Context) error { return nil })
	s.mem.SetSnapshot(s.userID, badge.Snapshot{TotalComplaints: 1, ResolvedComplaints: 1})

	body := `{"user_id":"` + s.userID.String() + `","kind":"complaint_resolved"}`

	// A user session token is not a service token.
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/badges/events", "Bearer session-token", body).Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "complaint-service",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(signingKey)
	require.NoError(t, err)

	rr := s.do(http.MethodPost, "/api/v1/badges/events", "Bearer "+token, body)
	require.Equal(t, http.StatusAccepted, rr.Code)

	s.dispatcher.Stop()
	earned, err := s.svc.Earned(context.Background(), s.userID)
	require.NoError(t, err)
	var got []string
	for _, e := range earned {
		got = append(got, e.Slug)
	}
	assert.ElementsMatch(t, []string{"first_step", "problem_identified"}, got)
}

func TestRouter_MetricsBehindBasicAuth(t *testing.T) {
	s := newTestServer(t, func(context.Context) error { return nil })

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/metrics", "", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("prom", "pw")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
