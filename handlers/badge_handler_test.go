package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"civicBadgesAPI/internal/badge"
	"civicBadgesAPI/internal/store"
	"civicBadgesAPI/middleware"
	"civicBadgesAPI/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testClerkID = "user_2test"

func setupBadgeHandler(t *testing.T) (*BadgeHandler, *store.MemoryStore, uuid.UUID) {
	t.Helper()
	mem := store.NewMemoryStore()
	svc := services.NewBadgeService(mem, nil, zap.NewNop())

	defs, err := badge.DefaultDefinitions()
	require.NoError(t, err)
	require.NoError(t, svc.SyncCatalog(context.Background(), defs))

	userID := uuid.New()
	mem.AddUser(testClerkID, userID)
	return NewBadgeHandler(svc, zap.NewNop()), mem, userID
}

func authedRequest(method, target, clerkID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.WithClerkID(req.Context(), clerkID))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v))
}

func TestCheckBadges(t *testing.T) {
	h, mem, userID := setupBadgeHandler(t)
	mem.SetSnapshot(userID, badge.Snapshot{TotalComplaints: 3})

	rr := httptest.NewRecorder()
	h.CheckBadges(rr, authedRequest(http.MethodPost, "/api/v1/badges/check", testClerkID))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		NewBadges []badge.Definition `json:"new_badges"`
		Count     int                `json:"count"`
	}
	decodeBody(t, rr, &body)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "first_step", body.NewBadges[0].Slug)

	rr = httptest.NewRecorder()
	h.CheckBadges(rr, authedRequest(http.MethodPost, "/api/v1/badges/check", testClerkID))
	decodeBody(t, rr, &body)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.NewBadges)
}

func TestGetStats(t *testing.T) {
	h, mem, userID := setupBadgeHandler(t)
	mem.SetSnapshot(userID, badge.Snapshot{TotalComplaints: 1, TotalLikesReceived: 4})
	_, err := mem.TryAward(context.Background(), userID, badge.DefinitionID("first_step"))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.GetStats(rr, authedRequest(http.MethodGet, "/api/v1/badges/stats", testClerkID))

	require.Equal(t, http.StatusOK, rr.Code)
	var stats map[string]any
	decodeBody(t, rr, &stats)
	assert.EqualValues(t, 21, stats["total_badges"])
	assert.EqualValues(t, 1, stats["earned_count"])
	assert.EqualValues(t, 4, stats["percentage"])
	assert.Len(t, stats["rarity_stats"], 5)
	assert.NotContains(t, stats, "Warnings")

	progress := stats["progress"].(map[string]any)
	engagement := progress["engagement"].(map[string]any)
	assert.EqualValues(t, 4, engagement["current"])
	// appreciated is due but not recorded until the next check.
	assert.EqualValues(t, 3, engagement["next"])
	assert.Equal(t, "Appreciated", engagement["next_badge"])
	assert.EqualValues(t, 100, engagement["percentage"])
}

func TestGetAllBadges(t *testing.T) {
	h, _, _ := setupBadgeHandler(t)

	rr := httptest.NewRecorder()
	h.GetAllBadges(rr, authedRequest(http.MethodGet, "/api/v1/badges", testClerkID))

	require.Equal(t, http.StatusOK, rr.Code)
	var ov badge.Overview
	decodeBody(t, rr, &ov)
	assert.Equal(t, 21, ov.TotalBadges)
	assert.Len(t, ov.Grouped[badge.CategoryCategorySpecialist], 5)
}

func TestRecentAndAcknowledge(t *testing.T) {
	h, mem, userID := setupBadgeHandler(t)
	mem.SetSnapshot(userID, badge.Snapshot{TotalComplaints: 3})

	rr := httptest.NewRecorder()
	h.CheckBadges(rr, authedRequest(http.MethodPost, "/api/v1/badges/check", testClerkID))
	require.Equal(t, http.StatusOK, rr.Code)

	var recent struct {
		Badges []badge.Earned `json:"badges"`
		Count  int            `json:"count"`
	}
	rr = httptest.NewRecorder()
	h.GetRecent(rr, authedRequest(http.MethodGet, "/api/v1/badges/recent", testClerkID))
	decodeBody(t, rr, &recent)
	assert.Equal(t, 2, recent.Count)

	req := authedRequest(http.MethodPut, "/api/v1/badges/first_step/acknowledge", testClerkID)
	req = mux.SetURLVars(req, map[string]string{"slug": "first_step"})
	rr = httptest.NewRecorder()
	h.AcknowledgeBadge(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.AcknowledgeAll(rr, authedRequest(http.MethodPut, "/api/v1/badges/acknowledge", testClerkID))
	var ack struct {
		Acknowledged int64 `json:"acknowledged"`
	}
	decodeBody(t, rr, &ack)
	assert.Equal(t, int64(1), ack.Acknowledged)

	rr = httptest.NewRecorder()
	h.GetRecent(rr, authedRequest(http.MethodGet, "/api/v1/badges/recent", testClerkID))
	decodeBody(t, rr, &recent)
	assert.Equal(t, 0, recent.Count)
	assert.NotNil(t, recent.Badges)

	rr = httptest.NewRecorder()
	h.GetMyBadges(rr, authedRequest(http.MethodGet, "/api/v1/badges/my", testClerkID))
	var mine struct {
		Count int `json:"count"`
	}
	decodeBody(t, rr, &mine)
	assert.Equal(t, 2, mine.Count)
}

func TestAcknowledgeBadge_UnknownSlug(t *testing.T) {
	h, _, _ := setupBadgeHandler(t)

	req := authedRequest(http.MethodPut, "/api/v1/badges/nope/acknowledge", testClerkID)
	req = mux.SetURLVars(req, map[string]string{"slug": "nope"})
	rr := httptest.NewRecorder()
	h.AcknowledgeBadge(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBadgeHandler_Errors(t *testing.T) {
	h, mem, _ := setupBadgeHandler(t)

	t.Run("no clerk id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetProgress(rr, httptest.NewRequest(http.MethodGet, "/api/v1/badges/progress", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetProgress(rr, authedRequest(http.MethodGet, "/api/v1/badges/progress", "user_ghost"))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("snapshot unavailable", func(t *testing.T) {
		mem.FailSnapshots(errors.New("db down"))
		defer mem.FailSnapshots(nil)

		rr := httptest.NewRecorder()
		h.CheckBadges(rr, authedRequest(http.MethodPost, "/api/v1/badges/check", testClerkID))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
