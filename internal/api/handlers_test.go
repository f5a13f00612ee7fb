package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/fitcoach/internal/auth"
	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/internal/persistence/memory"
)

type stubUsers struct {
	valid bool
	err   error
}

func (s stubUsers) ValidateUser(context.Context, string) (bool, error) { return s.valid, s.err }

type failingPublisher struct{ calls int }

func (p *failingPublisher) PublishActivity(context.Context, domain.Activity) error {
	p.calls++
	return errors.New("broker unreachable")
}

type fixture struct {
	mux       *http.ServeMux
	recs      *memory.RecommendationRepository
	publisher *failingPublisher
}

func newFixture(t *testing.T, users domain.UserValidator) fixture {
	t.Helper()
	publisher := &failingPublisher{}
	recs := memory.NewRecommendationRepository()
	service := domain.NewService(memory.NewActivityRepository(), users, publisher, domain.WithLogger(zaptest.NewLogger(t)))
	handler := NewHandler(service, domain.NewRecommendationService(recs), zaptest.NewLogger(t))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return fixture{mux: mux, recs: recs, publisher: publisher}
}

func authed(req *http.Request, userID string, scopes ...string) *http.Request {
	granted := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		granted[scope] = struct{}{}
	}
	claims := &auth.Claims{Subject: userID, UserID: userID, Scopes: granted, ExpiresAt: time.Now().Add(time.Hour)}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

const createBody = `{"userId":"u1","activityType":"running","duration":30,"caloriesBurned":300,
  "startTime":"2024-06-01T07:30:00Z","additionalMetrics":{"distanceKm":5.1}}`

func TestCreateActivitySucceedsWhenBrokerIsDown(t *testing.T) {
	fx := newFixture(t, stubUsers{valid: true})

	req := authed(httptest.NewRequest(http.MethodPost, "/activities", strings.NewReader(createBody)), "u1", auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, 1, fx.publisher.calls)

	var view ActivityView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.NotEmpty(t, view.ID)
	require.Equal(t, "RUNNING", view.ActivityType)
	require.Equal(t, 5.1, view.AdditionalMetrics["distanceKm"])

	get := authed(httptest.NewRequest(http.MethodGet, "/activities/"+view.ID, nil), "u1", auth.ScopeActivitiesRead)
	rr = httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, get)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateActivityMapsUserErrors(t *testing.T) {
	cases := []struct {
		name   string
		users  stubUsers
		status int
		code   string
	}{
		{name: "invalid user", users: stubUsers{valid: false}, status: http.StatusBadRequest, code: "invalid_user"},
		{name: "unknown user", users: stubUsers{err: domain.ErrUserNotFound}, status: http.StatusNotFound, code: "user_not_found"},
		{name: "user service down", users: stubUsers{err: domain.ErrUserServiceUnavailable}, status: http.StatusServiceUnavailable, code: "service_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, tc.users)
			req := authed(httptest.NewRequest(http.MethodPost, "/activities", strings.NewReader(createBody)), "u1", auth.ScopeActivitiesWrite)
			rr := httptest.NewRecorder()
			fx.mux.ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, tc.code, body["type"])
			require.Zero(t, fx.publisher.calls)
		})
	}
}

func TestCreateActivityRejectsInvalidPayload(t *testing.T) {
	fx := newFixture(t, stubUsers{valid: true})
	body := `{"userId":"u1","activityType":"juggling","duration":30,"caloriesBurned":10,"startTime":"2024-06-01T07:30:00Z"}`

	req := authed(httptest.NewRequest(http.MethodPost, "/activities", strings.NewReader(body)), "u1", auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "validation_failed")
}

func TestCreateActivityRequiresWriteScope(t *testing.T) {
	fx := newFixture(t, stubUsers{valid: true})

	req := authed(httptest.NewRequest(http.MethodPost, "/activities", strings.NewReader(createBody)), "u1", auth.ScopeActivitiesRead)
	rr := httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/activities", strings.NewReader(createBody)))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListActivitiesPaginatesWithCursorHeader(t *testing.T) {
	fx := newFixture(t, stubUsers{valid: true})
	for i := 0; i < 3; i++ {
		body := strings.Replace(createBody, "07:30", "0"+string(rune('5'+i))+":30", 1)
		req := authed(httptest.NewRequest(http.MethodPost, "/activities", strings.NewReader(body)), "u1", auth.ScopeActivitiesWrite)
		rr := httptest.NewRecorder()
		fx.mux.ServeHTTP(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	req := authed(httptest.NewRequest(http.MethodGet, "/activities?userId=u1&limit=2", nil), "u1", auth.ScopeActivitiesRead)
	rr := httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var page []ActivityView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page, 2)
	require.True(t, page[0].StartTime.After(page[1].StartTime))
	next := rr.Header().Get(HeaderNextCursor)
	require.NotEmpty(t, next)

	req = authed(httptest.NewRequest(http.MethodGet, "/activities?limit=2&cursor="+next, nil), "u1", auth.ScopeActivitiesRead)
	rr = httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page, 1)
	require.Empty(t, rr.Header().Get(HeaderNextCursor))
}

func TestRecommendationForUnknownActivityIsNotFound(t *testing.T) {
	fx := newFixture(t, stubUsers{valid: true})

	req := authed(httptest.NewRequest(http.MethodGet, "/recommendations/activity/does-not-exist", nil), "u1", auth.ScopeRecommendationsRead)
	rr := httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.JSONEq(t, `{"type":"not_found","detail":"recommendation not found"}`, rr.Body.String())
}

func TestListRecommendationsByUser(t *testing.T) {
	fx := newFixture(t, stubUsers{valid: true})
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	_, err := fx.recs.Upsert(context.Background(), domain.Recommendation{
		ActivityID:     "act-1",
		UserID:         "u1",
		ActivityType:   domain.ActivityTypeRunning,
		Recommendation: "Overall: good",
		Improvements:   []string{"No improvements suggested."},
		Suggestions:    []string{"No suggestions provided."},
		Safety:         []string{"Follow general SafetyGuidelines."},
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	require.NoError(t, err)

	req := authed(httptest.NewRequest(http.MethodGet, "/recommendations?userId=u1", nil), "u1", auth.ScopeRecommendationsRead)
	rr := httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var recs []RecommendationView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	require.Equal(t, "act-1", recs[0].ActivityID)
	require.Equal(t, "RUNNING", recs[0].ActivityType)

	req = authed(httptest.NewRequest(http.MethodGet, "/recommendations/activity/act-1", nil), "u1", auth.ScopeRecommendationsRead)
	rr = httptest.NewRecorder()
	fx.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
