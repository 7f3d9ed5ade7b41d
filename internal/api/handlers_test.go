package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"example.com/therapymatch/internal/assistant"
	"example.com/therapymatch/internal/auth"
	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/matcher"
	"example.com/therapymatch/internal/persistence/memory"
	"example.com/therapymatch/internal/plan"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	repo, err := memory.NewSeededRepository()
	if err != nil {
		t.Fatalf("seed repository: %v", err)
	}
	service := domain.NewService(repo, domain.WithClock(func() time.Time { return fixedNow }))
	m := matcher.New(repo, repo)
	planner := assistant.NewPlanner(repo, repo, m, assistant.WithClock(func() time.Time { return fixedNow }))

	mux := http.NewServeMux()
	NewHandler(service, m, planner, WithClock(func() time.Time { return fixedNow })).RegisterRoutes(mux)
	return mux
}

func scopesWith(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func do(t *testing.T, mux http.Handler, method, target string, body any, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if scopes != nil {
		claims := &auth.Claims{Subject: "dr-test", Scopes: scopesWith(scopes...), ExpiresAt: fixedNow.Add(time.Hour)}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return out
}

func TestSearchActivitiesFiltersCatalog(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodGet, "/v1/activities?query=memory&difficulty=Medium", nil, auth.ScopeCatalogRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decode[struct {
		Items []domain.Activity `json:"items"`
	}](t, rr)
	if len(body.Items) != 1 || body.Items[0].ID != "act5" {
		t.Fatalf("expected only act5, got %+v", body.Items)
	}

	rr = do(t, mux, http.MethodGet, "/v1/activities?goal_area=Anxiety+Reduction", nil, auth.ScopeCatalogWrite)
	body = decode[struct {
		Items []domain.Activity `json:"items"`
	}](t, rr)
	if len(body.Items) != 2 {
		t.Fatalf("expected 2 anxiety activities, got %d", len(body.Items))
	}
}

func TestSearchActivitiesRequiresAuth(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodGet, "/v1/activities", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodGet, "/v1/activities", nil, auth.ScopePatientsRead)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	errBody := decode[map[string]string](t, rr)
	if errBody["type"] != "forbidden" {
		t.Fatalf("expected forbidden envelope, got %v", errBody)
	}
}

func TestActivityFacetsAndLookup(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodGet, "/v1/activities/facets", nil, auth.ScopeCatalogRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	facets := decode[domain.Facets](t, rr)
	if len(facets.Difficulties) != 2 || facets.Difficulties[0] != domain.DifficultyEasy {
		t.Fatalf("unexpected difficulties: %v", facets.Difficulties)
	}

	rr = do(t, mux, http.MethodGet, "/v1/activities/act2", nil, auth.ScopeCatalogRead)
	if got := decode[domain.Activity](t, rr); got.Title != "Mindful Nature Walk" {
		t.Fatalf("unexpected activity: %+v", got)
	}

	rr = do(t, mux, http.MethodGet, "/v1/activities/none", nil, auth.ScopeCatalogRead)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestUpsertActivityValidatesSchema(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodPost, "/v1/activities", map[string]any{
		"title":         "Drum Circle",
		"description":   "Group rhythm exercise.",
		"tags":          map[string]any{"goal_areas": []string{"Social Connection"}, "age_groups": []string{"Seniors (65+)"}, "difficulty": "Extreme"},
		"effectiveness": 7,
	}, auth.ScopeCatalogWrite)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	errBody := decode[map[string]string](t, rr)
	if errBody["type"] != "validation_failed" || !strings.Contains(errBody["detail"], "/effectiveness") {
		t.Fatalf("unexpected error body: %v", errBody)
	}

	rr = do(t, mux, http.MethodPost, "/v1/activities", "{not json", auth.ScopeCatalogWrite)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodPost, "/v1/activities", map[string]any{"title": "x"}, auth.ScopeCatalogRead)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestUpsertActivityPersistsAndReturnsBody(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodPost, "/v1/activities", map[string]any{
		"title":         "Drum Circle",
		"description":   "Group rhythm exercise.",
		"tags":          map[string]any{"goal_areas": []string{"Social Connection"}, "age_groups": []string{"Seniors (65+)"}, "difficulty": "Easy"},
		"effectiveness": 4.9,
	}, auth.ScopeCatalogWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[struct {
		Activity domain.Activity `json:"activity"`
	}](t, rr).Activity
	if created.ID == "" || !created.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected generated id and timestamp, got %+v", created)
	}

	rr = do(t, mux, http.MethodGet, "/v1/patients/pat4/matches", nil, auth.ScopePatientsRead)
	matches := decode[struct {
		Items []domain.Activity `json:"items"`
	}](t, rr).Items
	if len(matches) != 2 || matches[0].ID != created.ID {
		t.Fatalf("expected new activity to rank first for pat4, got %+v", matches)
	}
}

func TestPatientEndpoints(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodGet, "/v1/patients?query=social+skills", nil, auth.ScopePatientsRead)
	patients := decode[struct {
		Items []domain.Patient `json:"items"`
	}](t, rr).Items
	if len(patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(patients))
	}

	rr = do(t, mux, http.MethodPost, "/v1/patients", map[string]any{"name": "Rin", "age": -1}, auth.ScopePatientsWrite)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodPost, "/v1/patients", map[string]any{
		"name": "Rin", "age": 16, "treatment_goals": []string{"Self-Expression"},
	}, auth.ScopePatientsWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[struct {
		Patient domain.Patient `json:"patient"`
	}](t, rr).Patient

	rr = do(t, mux, http.MethodGet, "/v1/patients/"+created.ID, nil, auth.ScopePatientsRead)
	if got := decode[domain.Patient](t, rr); got.Name != "Rin" {
		t.Fatalf("unexpected patient: %+v", got)
	}

	rr = do(t, mux, http.MethodGet, "/v1/patients/ghost", nil, auth.ScopePatientsRead)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestMatchesForUnknownPatientAreEmpty(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodGet, "/v1/patients/ghost/matches", nil, auth.ScopePatientsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decode[struct {
		Items []domain.Activity `json:"items"`
	}](t, rr)
	if body.Items == nil || len(body.Items) != 0 {
		t.Fatalf("expected empty list, got %v", body.Items)
	}
}

func TestSelectionPlan(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodPost, "/v1/patients/pat1/plan", map[string]any{"activity_ids": []string{"act3"}}, auth.ScopePatientsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[plan.Plan](t, rr)
	if len(got.Activities) != 1 || got.Activities[0] != "Social Story Construction" {
		t.Fatalf("unexpected plan activities: %v", got.Activities)
	}

	rr = do(t, mux, http.MethodPost, "/v1/patients/pat1/plan", map[string]any{"activity_ids": []string{}}, auth.ScopePatientsRead)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestChatFlow(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodPost, "/v1/patients/pat2/chats", map[string]any{"title": "Intake"}, auth.ScopePatientsWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	chat := decode[struct {
		Chat domain.Chat `json:"chat"`
	}](t, rr).Chat
	if len(chat.Messages) != 2 || !strings.Contains(chat.Messages[1].Content, "**Color Emotion Cards**") {
		t.Fatalf("unexpected opening messages: %+v", chat.Messages)
	}

	rr = do(t, mux, http.MethodPost, "/v1/chats/"+chat.ID+"/messages", map[string]any{"content": "Which activity suits her?"}, auth.ScopePatientsWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodGet, "/v1/patients/pat2/chats", nil, auth.ScopePatientsRead)
	chats := decode[struct {
		Items []domain.Chat `json:"items"`
	}](t, rr).Items
	if len(chats) != 2 || chats[0].ID != chat.ID || len(chats[0].Messages) != 4 {
		t.Fatalf("expected new chat first with 4 messages, got %+v", chats)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/chats/"+chat.ID+"/plan", nil)
	req.Header.Set("Accept", "text/markdown")
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{Subject: "dr", Scopes: scopesWith(auth.ScopePatientsRead)}))
	md := httptest.NewRecorder()
	mux.ServeHTTP(md, req)
	if md.Code != http.StatusOK || !strings.HasPrefix(md.Header().Get("Content-Type"), "text/markdown") {
		t.Fatalf("expected markdown, got %d %s", md.Code, md.Header().Get("Content-Type"))
	}
	if !strings.Contains(md.Body.String(), "1. Color Emotion Cards\n2. Memory Collage\n") {
		t.Fatalf("unexpected plan:\n%s", md.Body.String())
	}

	rr = do(t, mux, http.MethodPost, "/v1/chats/missing/messages", map[string]any{"content": "hi"}, auth.ScopePatientsWrite)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHealthzIsOpen(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response: %d %q", rr.Code, rr.Body.String())
	}
}

func TestListChatsPaginates(t *testing.T) {
	mux := newTestMux(t)

	for _, title := range []string{"First", "Second"} {
		rr := do(t, mux, http.MethodPost, "/v1/patients/pat3/chats", map[string]any{"title": title}, auth.ScopePatientsWrite)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rr.Code)
		}
	}

	type page struct {
		Items      []domain.Chat `json:"items"`
		NextCursor string        `json:"next_cursor"`
	}
	first := decode[page](t, do(t, mux, http.MethodGet, "/v1/patients/pat3/chats?limit=2", nil, auth.ScopePatientsRead))
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %d items cursor=%q", len(first.Items), first.NextCursor)
	}

	second := decode[page](t, do(t, mux, http.MethodGet, "/v1/patients/pat3/chats?limit=2&cursor="+first.NextCursor, nil, auth.ScopePatientsRead))
	if len(second.Items) != 1 || second.Items[0].ID != "chat3" || second.NextCursor != "" {
		t.Fatalf("expected seeded chat on the last page, got %+v", second)
	}

	rr := do(t, mux, http.MethodGet, "/v1/patients/pat3/chats?cursor=%25%25", nil, auth.ScopePatientsRead)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", rr.Code)
	}
}

type brokenRepository struct {
	*memory.Repository
	err error
}

func (b brokenRepository) ListActivities(context.Context) ([]domain.Activity, error) {
	return nil, b.err
}

func TestServerErrorsHideInternalDetail(t *testing.T) {
	repo, err := memory.NewSeededRepository()
	if err != nil {
		t.Fatalf("seed repository: %v", err)
	}
	broken := brokenRepository{Repository: repo, err: errors.New(`pgx: failed to connect to host=db user=therapy password=hunter2`)}
	core, logs := observer.New(zap.ErrorLevel)

	m := matcher.New(broken, broken)
	mux := http.NewServeMux()
	NewHandler(domain.NewService(broken), m, assistant.NewPlanner(broken, broken, m), WithLogger(zap.New(core))).RegisterRoutes(mux)

	for _, target := range []string{"/v1/activities", "/v1/patients/pat1/matches"} {
		rr := do(t, mux, http.MethodGet, target, nil, auth.ScopeCatalogRead, auth.ScopePatientsRead)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", target, rr.Code)
		}
		if strings.Contains(rr.Body.String(), "hunter2") {
			t.Fatalf("%s: response leaked driver error: %s", target, rr.Body.String())
		}
		body := decode[map[string]string](t, rr)
		if body["type"] != "server_error" || body["detail"] != "internal server error" {
			t.Fatalf("%s: unexpected error body: %v", target, body)
		}
	}

	entries := logs.FilterMessage("request failed").All()
	if len(entries) != 2 || !strings.Contains(entries[0].ContextMap()["error"].(string), "hunter2") {
		t.Fatalf("expected full error in logs, got %+v", entries)
	}
}
