// Package api exposes HTTP handlers for activities and recommendations.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/fitcoach/internal/auth"
	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// HeaderNextCursor carries the token for the next page of a listing.
	HeaderNextCursor = "X-Next-Cursor"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	activities      *domain.Service
	recommendations *domain.RecommendationService
	logger          *zap.Logger
}

// NewHandler builds a Handler. A nil logger disables logging.
func NewHandler(activities *domain.Service, recommendations *domain.RecommendationService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{activities: activities, recommendations: recommendations, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /activities", h.createActivity)
	mux.HandleFunc("GET /activities", h.listActivities)
	mux.HandleFunc("GET /activities/{id}", h.getActivity)
	mux.HandleFunc("GET /recommendations", h.listRecommendations)
	mux.HandleFunc("GET /recommendations/activity/{activityId}", h.recommendationForActivity)
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesWrite); !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.activities.TrackActivity(r.Context(), domain.TrackActivityInput{
		UserID:            req.UserID,
		ActivityType:      req.ActivityType,
		Duration:          req.Duration,
		CaloriesBurned:    req.CaloriesBurned,
		StartTime:         req.StartTime,
		AdditionalMetrics: req.AdditionalMetrics,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	activity, err := h.activities.GetActivity(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	userID := userIDParam(r, claims)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing userId parameter")
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.activities.ListActivitiesByUser(r.Context(), userID, cursor, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	if token := persistence.EncodeCursor(next); token != "" {
		w.Header().Set(HeaderNextCursor, token)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) listRecommendations(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeRecommendationsRead)
	if !ok {
		return
	}

	userID := userIDParam(r, claims)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing userId parameter")
		return
	}

	recs, err := h.recommendations.ByUser(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]RecommendationView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toRecommendationView(rec))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) recommendationForActivity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeRecommendationsRead); !ok {
		return
	}

	rec, err := h.recommendations.ByActivity(r.Context(), r.PathValue("activityId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationView(*rec))
}

// userIDParam reads ?userId=, falling back to the caller's own id.
func userIDParam(r *http.Request, claims *auth.Claims) string {
	if userID := strings.TrimSpace(r.URL.Query().Get("userId")); userID != "" {
		return userID
	}
	return claims.UserID
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasAnyScope(scopes...) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrRecommendationNotFound):
		writeError(w, http.StatusNotFound, "not_found", "recommendation not found")
	case errors.Is(err, domain.ErrUserServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "user service unavailable")
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// CreateActivityRequest is the payload for POST /activities.
type CreateActivityRequest struct {
	UserID            string         `json:"userId"`
	ActivityType      string         `json:"activityType"`
	Duration          int            `json:"duration"`
	CaloriesBurned    int            `json:"caloriesBurned"`
	StartTime         time.Time      `json:"startTime"`
	AdditionalMetrics map[string]any `json:"additionalMetrics"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	ActivityType      string         `json:"activityType"`
	Duration          int            `json:"duration"`
	CaloriesBurned    int            `json:"caloriesBurned"`
	StartTime         time.Time      `json:"startTime"`
	AdditionalMetrics map[string]any `json:"additionalMetrics"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// RecommendationView is the JSON shape of a stored recommendation.
type RecommendationView struct {
	ID             string    `json:"id"`
	ActivityID     string    `json:"activityId"`
	UserID         string    `json:"userId"`
	ActivityType   string    `json:"activityType"`
	Recommendation string    `json:"recommendation"`
	Improvements   []string  `json:"improvements"`
	Suggestions    []string  `json:"suggestions"`
	Safety         []string  `json:"safety"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(a domain.Activity) ActivityView {
	metrics := a.AdditionalMetrics
	if metrics == nil {
		metrics = map[string]any{}
	}
	return ActivityView{
		ID:                a.ID,
		UserID:            a.UserID,
		ActivityType:      string(a.ActivityType),
		Duration:          a.Duration,
		CaloriesBurned:    a.CaloriesBurned,
		StartTime:         a.StartTime,
		AdditionalMetrics: metrics,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toRecommendationView(rec domain.Recommendation) RecommendationView {
	return RecommendationView{
		ID:             rec.ID,
		ActivityID:     rec.ActivityID,
		UserID:         rec.UserID,
		ActivityType:   string(rec.ActivityType),
		Recommendation: rec.Recommendation,
		Improvements:   rec.Improvements,
		Suggestions:    rec.Suggestions,
		Safety:         rec.Safety,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}
