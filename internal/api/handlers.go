// Package api exposes HTTP handlers for the therapy matcher.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/therapymatch/internal/assistant"
	"example.com/therapymatch/internal/auth"
	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/persistence"
	"example.com/therapymatch/internal/plan"
)

const (
	maxBodyBytes    = 1 << 20
	defaultPageSize = 20
	maxPageSize     = 100
)

// Recommender ranks catalog activities for a patient.
type Recommender interface {
	Match(ctx context.Context, patientID string) ([]domain.Activity, error)
}

// Handler handles HTTP interactions.
type Handler struct {
	service *domain.Service
	matcher Recommender
	planner *assistant.Planner
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for server errors.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides the time stamped on generated plans.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler constructs Handler.
func NewHandler(service *domain.Service, matcher Recommender, planner *assistant.Planner, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		matcher: matcher,
		planner: planner,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes sets up routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/activities", h.searchActivities)
	mux.HandleFunc("POST /v1/activities", h.upsertActivity)
	mux.HandleFunc("GET /v1/activities/facets", h.activityFacets)
	mux.HandleFunc("GET /v1/activities/{id}", h.activityByID)

	mux.HandleFunc("GET /v1/patients", h.searchPatients)
	mux.HandleFunc("POST /v1/patients", h.upsertPatient)
	mux.HandleFunc("GET /v1/patients/{id}", h.patientByID)
	mux.HandleFunc("GET /v1/patients/{id}/matches", h.patientMatches)
	mux.HandleFunc("POST /v1/patients/{id}/plan", h.selectionPlan)
	mux.HandleFunc("GET /v1/patients/{id}/chats", h.listChats)
	mux.HandleFunc("POST /v1/patients/{id}/chats", h.startChat)

	mux.HandleFunc("POST /v1/chats/{id}/messages", h.postMessage)
	mux.HandleFunc("GET /v1/chats/{id}/plan", h.conversationPlan)

	mux.HandleFunc("GET /healthz", healthz)
}

// healthz returns an OK response for readiness probes.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) searchActivities(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopeCatalogRead, auth.ScopeCatalogWrite) {
		return
	}

	q := r.URL.Query()
	filter := domain.ActivityFilter{
		Query:     strings.TrimSpace(q.Get("query")),
		GoalAreas: q["goal_area"],
		AgeGroups: q["age_group"],
	}
	for _, d := range q["difficulty"] {
		filter.Difficulties = append(filter.Difficulties, domain.Difficulty(d))
	}

	activities, err := h.service.SearchActivities(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": activities})
}

func (h *Handler) activityFacets(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopeCatalogRead, auth.ScopeCatalogWrite) {
		return
	}
	facets, err := h.service.ActivityFacets(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, facets)
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopeCatalogRead, auth.ScopeCatalogWrite) {
		return
	}
	activity, err := h.service.GetActivity(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *Handler) upsertActivity(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopeCatalogWrite) {
		return
	}

	var activity domain.Activity
	if !h.decodeValidated(w, r, activitySchema, &activity) {
		return
	}

	stored, err := h.service.UpsertActivity(r.Context(), activity)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": stored})
}

func (h *Handler) searchPatients(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsRead, auth.ScopePatientsWrite) {
		return
	}
	patients, err := h.service.SearchPatients(r.Context(), strings.TrimSpace(r.URL.Query().Get("query")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": patients})
}

func (h *Handler) patientByID(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsRead, auth.ScopePatientsWrite) {
		return
	}
	patient, err := h.service.GetPatient(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) upsertPatient(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsWrite) {
		return
	}

	var patient domain.Patient
	if !h.decodeValidated(w, r, patientSchema, &patient) {
		return
	}

	stored, err := h.service.UpsertPatient(r.Context(), patient)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patient": stored})
}

// patientMatches returns an empty list for unknown patients rather than 404.
func (h *Handler) patientMatches(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsRead, auth.ScopePatientsWrite) {
		return
	}
	id := r.PathValue("id")
	matches, err := h.matcher.Match(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patient_id": id, "items": matches})
}

type selectionRequest struct {
	ActivityIDs []string `json:"activity_ids"`
}

func (h *Handler) selectionPlan(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsRead, auth.ScopePatientsWrite) {
		return
	}

	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patient, err := h.service.GetPatient(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	matches, err := h.matcher.Match(r.Context(), patient.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	result, err := plan.FromSelection(*patient, matches, req.ActivityIDs, h.now())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writePlan(w, r, result)
}

func (h *Handler) listChats(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsRead, auth.ScopePatientsWrite) {
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

	chats, next, err := h.planner.ListChatsPage(r.Context(), r.PathValue("id"), cursor, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listChatsResponse{Items: chats, NextCursor: persistence.EncodeCursor(next)})
}

type listChatsResponse struct {
	Items      []domain.Chat `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type startChatRequest struct {
	Title string `json:"title"`
}

func (h *Handler) startChat(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsWrite) {
		return
	}
	var req startChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chat, err := h.planner.StartChat(r.Context(), r.PathValue("id"), req.Title)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chat": chat})
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsWrite) {
		return
	}
	var req postMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chat, err := h.planner.PostMessage(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": chat})
}

func (h *Handler) conversationPlan(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.ScopePatientsRead, auth.ScopePatientsWrite) {
		return
	}
	session, err := h.planner.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writePlan(w, r, plan.FromConversation(session.Patient, session.Chat, session.Matches, h.now()))
}

// authorize requires a bearer token carrying at least one of the scopes.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return false
}

func (h *Handler) decodeValidated(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to read body")
		return false
	}
	if err := validatePayload(schema, body); err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			writeError(w, http.StatusBadRequest, "validation_failed", schemaErr.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrActivityNotFound),
		errors.Is(err, domain.ErrPatientNotFound),
		errors.Is(err, domain.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

// writePlan answers with raw markdown when the client asks for it, JSON otherwise.
func writePlan(w http.ResponseWriter, r *http.Request, p plan.Plan) {
	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, p.Markdown)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"type": code, "detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
