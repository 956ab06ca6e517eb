// Package dashboard holds the single source of truth of a subscriber's
// dashboard: the selected study, question, dimension and filters, and the data
// derived from them. State changes only through named transitions.
package dashboard

import (
	"github.com/blockedby/survey-portal/internal/catalog"
	"github.com/blockedby/survey-portal/internal/portalapi"
)

// Selection is the coherent query tuple every derived fetch is issued for.
type Selection struct {
	StudyID      int64
	QuestionCode string
	Dimension    string
	Filters      portalapi.Filters
}

// State is the full dashboard state. StudyID 0 means no study is selected.
type State struct {
	Studies       []portalapi.Study             `json:"studies"`
	StudyID       int64                         `json:"study_id"`
	FilterOptions portalapi.FilterOptions       `json:"filter_options"`
	Filters       portalapi.Filters             `json:"filters"`
	QuestionCode  string                        `json:"question_code"`
	Dimension     string                        `json:"distribution_dimension"`
	Timeseries    []portalapi.TimePoint         `json:"timeseries"`
	Distribution  []portalapi.DistributionPoint `json:"distribution"`
	SavedViews    []portalapi.SavedView         `json:"saved_views"`
	ViewName      string                        `json:"view_name"`
	Loading       bool                          `json:"loading"`
	Error         string                        `json:"error,omitempty"`
}

// NewState returns the state of a dashboard that has not bootstrapped yet.
func NewState(cat *catalog.Catalog) State {
	return State{
		Filters:      portalapi.Filters(catalog.EmptyFilters()),
		QuestionCode: cat.DefaultQuestion(),
		Dimension:    catalog.DefaultDimension,
		Loading:      true,
	}
}

// Selection snapshots the current query tuple.
func (s State) Selection() Selection {
	return Selection{
		StudyID:      s.StudyID,
		QuestionCode: s.QuestionCode,
		Dimension:    s.Dimension,
		Filters:      s.Filters.Clone(),
	}
}

// ActiveStudy returns the selected study, or nil.
func (s State) ActiveStudy() *portalapi.Study {
	for i := range s.Studies {
		if s.Studies[i].ID == s.StudyID {
			study := s.Studies[i]
			return &study
		}
	}
	return nil
}

// FindView returns the saved view with id, or nil.
func (s State) FindView(id int64) *portalapi.SavedView {
	for i := range s.SavedViews {
		if s.SavedViews[i].ID == id {
			view := s.SavedViews[i]
			view.Filters = view.Filters.Clone()
			return &view
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share slices with the controller.
func (s State) Clone() State {
	out := s
	out.Studies = append([]portalapi.Study(nil), s.Studies...)
	out.Filters = s.Filters.Clone()
	out.FilterOptions = portalapi.FilterOptions{
		Industry: append([]string(nil), s.FilterOptions.Industry...),
		Region:   append([]string(nil), s.FilterOptions.Region...),
		Gender:   append([]string(nil), s.FilterOptions.Gender...),
		Vote:     append([]string(nil), s.FilterOptions.Vote...),
	}
	out.Timeseries = append([]portalapi.TimePoint(nil), s.Timeseries...)
	out.Distribution = append([]portalapi.DistributionPoint(nil), s.Distribution...)
	out.SavedViews = make([]portalapi.SavedView, len(s.SavedViews))
	for i, v := range s.SavedViews {
		v.Filters = v.Filters.Clone()
		out.SavedViews[i] = v
	}
	return out
}
