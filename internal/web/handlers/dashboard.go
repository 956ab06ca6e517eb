package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/blockedby/survey-portal/internal/dashboard"
	"github.com/blockedby/survey-portal/internal/panel"
	"github.com/blockedby/survey-portal/internal/portalapi"
	"github.com/blockedby/survey-portal/internal/session"
	"github.com/blockedby/survey-portal/internal/web"
)

// DashboardPage is the data of the dashboard templates.
type DashboardPage struct {
	Title      string
	SessionID  string
	Loading    bool
	Error      string
	HasStudy   bool
	Studies    []panel.Option
	Questions  []panel.Option
	Dimensions []panel.Option
	Filters    panel.FilterPanelView
	Chart      panel.ChartPanelView
	SavedViews []portalapi.SavedView
	ViewName   string
}

// DashboardHandler serves the dashboard page and its HTMX actions. Every
// request works on the controller of its browser session.
type DashboardHandler struct {
	templates *web.TemplateEngine
	sessions  Sessions
	log       zerolog.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(templates *web.TemplateEngine, sessions Sessions, log *zerolog.Logger) *DashboardHandler {
	l := zerolog.Nop()
	if log != nil {
		l = log.With().Str("component", "dashboard_handler").Logger()
	}
	return &DashboardHandler{
		templates: templates,
		sessions:  sessions,
		log:       l,
	}
}

// controller returns the session's controller, bootstrapped. Backend calls
// outlive a disconnecting browser so a committed transition is never cut
// halfway.
func (h *DashboardHandler) controller(r *http.Request) (*dashboard.Controller, context.Context) {
	ctx := context.WithoutCancel(r.Context())
	ctl := h.sessions.Get(session.ID(ctx))
	if err := ctl.Bootstrap(ctx); err != nil {
		h.log.Warn().Err(err).Msg("bootstrap failed")
	}
	return ctl, ctx
}

// Page renders the full dashboard, or only its content for HTMX requests.
func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	ctl, ctx := h.controller(r)
	page := buildPage(ctl, session.ID(ctx))

	if r.Header.Get("HX-Request") == "true" {
		if err := h.templates.RenderContent(w, "dashboard", page); err != nil {
			http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if err := h.templates.Render(w, "dashboard", page); err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
	}
}

// SelectStudy switches the study.
func (h *DashboardHandler) SelectStudy(w http.ResponseWriter, r *http.Request) {
	studyID, err := strconv.ParseInt(r.FormValue("study_id"), 10, 64)
	if err != nil || studyID <= 0 {
		http.Error(w, "Invalid study id", http.StatusBadRequest)
		return
	}
	h.act(w, r, func(ctx context.Context, ctl *dashboard.Controller) error {
		return ctl.SelectStudy(ctx, studyID)
	})
}

// SelectQuestion switches the charted question.
func (h *DashboardHandler) SelectQuestion(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("question_code")
	h.act(w, r, func(ctx context.Context, ctl *dashboard.Controller) error {
		return ctl.SelectQuestion(ctx, code)
	})
}

// SelectDimension switches the distribution dimension.
func (h *DashboardHandler) SelectDimension(w http.ResponseWriter, r *http.Request) {
	dimension := r.FormValue("dimension")
	h.act(w, r, func(ctx context.Context, ctl *dashboard.Controller) error {
		return ctl.SelectDimension(ctx, dimension)
	})
}

// SetFilter changes one filter value.
func (h *DashboardHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	key, value, err := panel.ParseSelection(r.FormValue("key"), r.FormValue("value"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.act(w, r, func(ctx context.Context, ctl *dashboard.Controller) error {
		return ctl.SetFilter(ctx, key, value)
	})
}

// SaveView stores the current selection under the submitted name.
func (h *DashboardHandler) SaveView(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	h.act(w, r, func(ctx context.Context, ctl *dashboard.Controller) error {
		ctl.SetViewName(name)
		return ctl.SaveView(ctx)
	})
}

// LoadView applies a saved view of the current study.
func (h *DashboardHandler) LoadView(w http.ResponseWriter, r *http.Request) {
	id, ok := viewID(w, r)
	if !ok {
		return
	}
	h.act(w, r, func(ctx context.Context, ctl *dashboard.Controller) error {
		return ctl.LoadViewByID(ctx, id)
	})
}

// DeleteView removes a saved view.
func (h *DashboardHandler) DeleteView(w http.ResponseWriter, r *http.Request) {
	id, ok := viewID(w, r)
	if !ok {
		return
	}
	h.act(w, r, func(ctx context.Context, ctl *dashboard.Controller) error {
		return ctl.DeleteView(ctx, id)
	})
}

// Export streams the CSV of the current selection as an attachment.
func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctl, ctx := h.controller(r)

	dl, err := ctl.Export(ctx)
	if err != nil {
		var reqErr *portalapi.RequestError
		switch {
		case errors.Is(err, dashboard.ErrNoStudy):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.As(err, &reqErr):
			http.Error(w, reqErr.Message, http.StatusBadGateway)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(dl.Content); err != nil {
		h.log.Debug().Err(err).Msg("client went away during export")
	}
}

// State returns the session's dashboard state as JSON.
func (h *DashboardHandler) State(w http.ResponseWriter, r *http.Request) {
	ctl, _ := h.controller(r)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(ctl.Snapshot()); err != nil {
		h.log.Debug().Err(err).Msg("failed to write state")
	}
}

// act runs a transition and re-renders the dashboard content. Invalid input
// is a 400; backend failures land in the error banner of a normal response.
func (h *DashboardHandler) act(w http.ResponseWriter, r *http.Request, fn func(context.Context, *dashboard.Controller) error) {
	ctl, ctx := h.controller(r)

	if err := fn(ctx, ctl); err != nil {
		var reqErr *portalapi.RequestError
		if !errors.As(err, &reqErr) {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		h.log.Info().Err(reqErr.Err).Str("operation", reqErr.Op).Int("status", reqErr.StatusCode).Msg("backend request failed")
	}

	if err := h.templates.RenderContent(w, "dashboard", buildPage(ctl, session.ID(ctx))); err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrViewNotFound):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrNoStudy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadRequest
}

func viewID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func buildPage(ctl *dashboard.Controller, sessionID string) DashboardPage {
	s := ctl.Snapshot()
	cat := ctl.Catalog()

	studyLabel := ""
	if study := s.ActiveStudy(); study != nil {
		studyLabel = study.Name
	}

	return DashboardPage{
		Title:      "Dashboard",
		SessionID:  sessionID,
		Loading:    s.Loading,
		Error:      s.Error,
		HasStudy:   s.StudyID != 0,
		Studies:    panel.StudyOptions(s.Studies, s.StudyID),
		Questions:  panel.QuestionOptions(cat, s.QuestionCode),
		Dimensions: panel.DimensionOptions(s.Dimension),
		Filters:    panel.FilterPanel(s.FilterOptions, s.Filters, studyLabel),
		Chart:      panel.ChartPanel(cat, s.Timeseries, s.Distribution, s.QuestionCode, s.Dimension),
		SavedViews: s.SavedViews,
		ViewName:   s.ViewName,
	}
}
