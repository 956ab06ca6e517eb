package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/survey-portal/internal/dashboard"
	"github.com/blockedby/survey-portal/internal/portalapi"
	"github.com/blockedby/survey-portal/internal/session"
	"github.com/blockedby/survey-portal/internal/web"
)

// surveyBackend is an in-memory survey API.
type surveyBackend struct {
	mu          sync.Mutex
	views       map[int64][]portalapi.SavedView
	nextID      int64
	failData    bool
	failStudies bool
	lastQuery   string
	lastAuth    string
	deleteCalls int
}

func (b *surveyBackend) handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/studies", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		fail := b.failStudies
		b.mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, []portalapi.Study{{ID: 1, Name: "Q1 Wave"}, {ID: 2, Name: "Q2 Wave"}})
	})
	r.Get("/api/studies/{id}/filters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, portalapi.FilterOptions{Industry: []string{"tech", "retail"}, Region: []string{"north"}})
	})
	r.Get("/api/studies/{id}/timeseries", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.lastQuery = r.URL.RawQuery
		fail := b.failData
		b.mu.Unlock()
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		v := 55.0
		writeJSON(w, []portalapi.TimePoint{{Wave: "W1", WaveDate: "2024-01-01", Value: &v}, {Wave: "W2"}})
	})
	r.Get("/api/studies/{id}/distribution", func(w http.ResponseWriter, r *http.Request) {
		v := 70.0
		writeJSON(w, []portalapi.DistributionPoint{{Group: "tech", Value: &v}, {Group: "retail"}})
	})
	r.Get("/api/studies/{id}/export.csv", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.lastAuth = r.Header.Get("Authorization")
		b.mu.Unlock()
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("wave,value\nW1,55\n"))
	})
	r.Get("/api/saved-views", func(w http.ResponseWriter, r *http.Request) {
		var studyID int64
		fmt.Sscan(r.URL.Query().Get("study_id"), &studyID)
		b.mu.Lock()
		views := append([]portalapi.SavedView{}, b.views[studyID]...)
		b.mu.Unlock()
		writeJSON(w, views)
	})
	r.Post("/api/saved-views", func(w http.ResponseWriter, r *http.Request) {
		var p portalapi.SavedViewPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.nextID++
		view := portalapi.SavedView{ID: b.nextID, Name: p.Name, QuestionCode: p.QuestionCode,
			DistributionDimension: p.DistributionDimension, Filters: p.Filters}
		b.views[p.StudyID] = append(b.views[p.StudyID], view)
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, view)
	})
	r.Delete("/api/saved-views/{id}", func(w http.ResponseWriter, r *http.Request) {
		var id int64
		fmt.Sscan(chi.URLParam(r, "id"), &id)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.deleteCalls++
		for study, views := range b.views {
			for i, v := range views {
				if v.ID == id {
					b.views[study] = append(views[:i], views[i+1:]...)
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
		}
		http.Error(w, "not found", http.StatusNotFound)
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	_ = json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	portal  *httptest.Server
	backend *surveyBackend
	client  *http.Client
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	backend := &surveyBackend{views: map[int64][]portalapi.SavedView{}, nextID: 10}
	api := httptest.NewServer(backend.handler())
	t.Cleanup(api.Close)

	client := portalapi.NewClient(api.URL)
	registry := session.NewRegistry(func(string) *dashboard.Controller {
		return dashboard.NewController(client, dashboard.Options{Tokens: session.ContextTokenProvider})
	}, time.Hour, nil, nil)

	store, err := session.NewCookieStore("0123456789abcdef0123456789abcdef", false)
	require.NoError(t, err)

	tmpl := web.NewTemplateEngine("../templates", false)
	require.NoError(t, tmpl.Load())

	srv := web.NewServer(&web.Config{
		Middlewares: []func(http.Handler) http.Handler{session.Middleware(store, nil)},
	}, nil, nil)
	srv.RegisterDashboardHandler(NewDashboardHandler(tmpl, registry, nil))

	portal := httptest.NewServer(srv.Router())
	t.Cleanup(portal.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		portal:  portal,
		backend: backend,
		client:  &http.Client{Jar: jar},
	}
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values, headers map[string]string) (*http.Response, string) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, e.portal.URL+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("HX-Request", "true")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func (e *testEnv) state(t *testing.T) dashboard.State {
	t.Helper()
	resp, body := e.do(t, http.MethodGet, "/api/state", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s dashboard.State
	require.NoError(t, json.Unmarshal([]byte(body), &s))
	return s
}

func TestDashboardPage_FullLayout(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Get(env.portal.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	html := string(body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, `id="main-content"`)
	assert.Contains(t, html, "Q1 Wave")
	assert.Contains(t, html, "Regulatory Pressure")
	assert.Contains(t, html, `id="line-chart"`)
	assert.Contains(t, html, `id="bar-chart"`)
	// W2 and retail have no value and are listed as gaps
	assert.Contains(t, html, "No data: W2")
	assert.Contains(t, html, "No data: retail")
}

func TestDashboardPage_HTMXPartial(t *testing.T) {
	env := setupTestServer(t)

	resp, html := env.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, `id="dashboard"`)
}

func TestDashboardPage_ReloadRecoversFromBootstrapFailure(t *testing.T) {
	env := setupTestServer(t)
	env.backend.mu.Lock()
	env.backend.failStudies = true
	env.backend.mu.Unlock()

	resp, html := env.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, html, "Failed to load studies")

	env.backend.mu.Lock()
	env.backend.failStudies = false
	env.backend.mu.Unlock()

	_, html = env.do(t, http.MethodGet, "/", nil, nil)
	assert.NotContains(t, html, "Failed to load studies")
	assert.Contains(t, html, "Q1 Wave")

	s := env.state(t)
	assert.Equal(t, int64(1), s.StudyID)
	assert.Empty(t, s.Error)
}

func TestDashboard_SessionKeepsState(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.do(t, http.MethodPost, "/dashboard/filter", url.Values{"key": {"industry"}, "value": {"tech"}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s := env.state(t)
	assert.Equal(t, int64(1), s.StudyID)
	assert.Equal(t, "tech", s.Filters["industry"])

	env.backend.mu.Lock()
	query := env.backend.lastQuery
	env.backend.mu.Unlock()
	assert.Equal(t, "question_code=regulatory_pressure&industry=tech", query)
}

func TestDashboard_AllOptionClearsFilter(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, http.MethodPost, "/dashboard/filter", url.Values{"key": {"region"}, "value": {"north"}}, nil)
	env.do(t, http.MethodPost, "/dashboard/filter", url.Values{"key": {"region"}, "value": {""}}, nil)
	assert.Equal(t, "", env.state(t).Filters["region"])

	env.do(t, http.MethodPost, "/dashboard/filter", url.Values{"key": {"region"}, "value": {"All"}}, nil)
	assert.Equal(t, "All", env.state(t).Filters["region"])
}

func TestDashboard_InvalidInput(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		form   url.Values
		status int
	}{
		{"bad filter key", http.MethodPost, "/dashboard/filter", url.Values{"key": {"age"}, "value": {"30"}}, http.StatusBadRequest},
		{"unknown question", http.MethodPost, "/dashboard/question", url.Values{"question_code": {"nope"}}, http.StatusBadRequest},
		{"unknown dimension", http.MethodPost, "/dashboard/dimension", url.Values{"dimension": {"age"}}, http.StatusBadRequest},
		{"bad study id", http.MethodPost, "/dashboard/study", url.Values{"study_id": {"x"}}, http.StatusBadRequest},
		{"bad view id", http.MethodPost, "/dashboard/views/abc/load", url.Values{}, http.StatusBadRequest},
		{"unknown view", http.MethodPost, "/dashboard/views/999/load", url.Values{}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, tt.method, tt.path, tt.form, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestDashboard_SelectStudyQuestionDimension(t *testing.T) {
	env := setupTestServer(t)

	resp, html := env.do(t, http.MethodPost, "/dashboard/study", url.Values{"study_id": {"2"}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, html, "Q2 Wave")

	env.do(t, http.MethodPost, "/dashboard/question", url.Values{"question_code": {"policy_confidence"}}, nil)
	_, html = env.do(t, http.MethodPost, "/dashboard/dimension", url.Values{"dimension": {"region"}}, nil)
	assert.Contains(t, html, "Policy Confidence")
	assert.Contains(t, html, "By Region")

	s := env.state(t)
	assert.Equal(t, int64(2), s.StudyID)
	assert.Equal(t, "policy_confidence", s.QuestionCode)
	assert.Equal(t, "region", s.Dimension)
}

func TestDashboard_BackendFailureShowsBanner(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodGet, "/", nil, nil)

	env.backend.mu.Lock()
	env.backend.failData = true
	env.backend.mu.Unlock()

	resp, html := env.do(t, http.MethodPost, "/dashboard/filter", url.Values{"key": {"vote"}, "value": {"yes"}}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, html, `id="error-banner"`)
	assert.Contains(t, html, "Failed to load timeseries")

	s := env.state(t)
	assert.Equal(t, "Failed to load timeseries", s.Error)
	// prior chart data is kept
	assert.Len(t, s.Timeseries, 2)
}

func TestDashboard_SaveLoadDeleteView(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, http.MethodPost, "/dashboard/filter", url.Values{"key": {"industry"}, "value": {"tech"}}, nil)
	env.do(t, http.MethodPost, "/dashboard/dimension", url.Values{"dimension": {"gender"}}, nil)

	resp, html := env.do(t, http.MethodPost, "/dashboard/views", url.Values{"name": {"  Tech by gender "}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, html, "Tech by gender")

	s := env.state(t)
	require.Len(t, s.SavedViews, 1)
	view := s.SavedViews[0]
	assert.Equal(t, "Tech by gender", view.Name)
	assert.Empty(t, s.ViewName)

	// move away, then load the view back
	env.do(t, http.MethodPost, "/dashboard/filter", url.Values{"key": {"industry"}, "value": {""}}, nil)
	env.do(t, http.MethodPost, "/dashboard/dimension", url.Values{"dimension": {"vote"}}, nil)
	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/dashboard/views/%d/load", view.ID), url.Values{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s = env.state(t)
	assert.Equal(t, "gender", s.Dimension)
	assert.Equal(t, portalapi.Filters{"industry": "tech", "region": "", "gender": "", "vote": ""}, s.Filters)
	assert.Equal(t, int64(1), s.StudyID)

	resp, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/dashboard/views/%d", view.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, env.state(t).SavedViews)

	// deleting again reports the backend failure and keeps the list
	_, html = env.do(t, http.MethodDelete, fmt.Sprintf("/dashboard/views/%d", view.ID), nil, nil)
	assert.Contains(t, html, "Failed to delete saved view")
	assert.Empty(t, env.state(t).SavedViews)
	assert.Equal(t, 2, env.backend.deleteCalls)
}

func TestDashboard_BlankViewNameIsIgnored(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.do(t, http.MethodPost, "/dashboard/views", url.Values{"name": {"   "}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.backend.mu.Lock()
	defer env.backend.mu.Unlock()
	assert.Empty(t, env.backend.views)
}

func TestDashboard_ExportCSV(t *testing.T) {
	env := setupTestServer(t)

	resp, body := env.do(t, http.MethodGet, "/dashboard/export.csv", nil, map[string]string{"Authorization": "Bearer sub-token"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="study-1-regulatory_pressure-industry.csv"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "wave,value\nW1,55\n", body)

	env.backend.mu.Lock()
	defer env.backend.mu.Unlock()
	assert.Equal(t, "Bearer sub-token", env.backend.lastAuth)
}

func TestDashboard_SessionsAreIsolated(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/dashboard/filter", url.Values{"key": {"industry"}, "value": {"tech"}}, nil)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	other := &testEnv{portal: env.portal, backend: env.backend, client: &http.Client{Jar: jar}}

	assert.Equal(t, "", other.state(t).Filters["industry"])
	assert.Equal(t, "tech", env.state(t).Filters["industry"])
}
