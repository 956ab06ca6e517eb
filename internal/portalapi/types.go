package portalapi

import (
	"net/url"
	"strings"

	"github.com/blockedby/survey-portal/internal/catalog"
)

// Study is a survey dataset with its own filter vocabulary.
type Study struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FilterOptions are the selectable values of each dimension for one study.
type FilterOptions struct {
	Industry []string `json:"industry"`
	Region   []string `json:"region"`
	Gender   []string `json:"gender"`
	Vote     []string `json:"vote"`
}

// ForDimension returns the option list of a dimension, nil when unknown.
func (o FilterOptions) ForDimension(dimension string) []string {
	switch dimension {
	case catalog.DimensionIndustry:
		return o.Industry
	case catalog.DimensionRegion:
		return o.Region
	case catalog.DimensionGender:
		return o.Gender
	case catalog.DimensionVote:
		return o.Vote
	}
	return nil
}

// Filters maps a dimension name to its selected value. "" means no constraint.
type Filters map[string]string

// Clone returns a four-key copy of f.
func (f Filters) Clone() Filters {
	return Filters(catalog.NormalizeFilters(f))
}

// encode appends every constrained filter to b in dimension order.
// Empty values are never emitted.
func (f Filters) encode(b *strings.Builder) {
	for _, key := range catalog.Dimensions {
		value := f[key]
		if value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}
}

// TimePoint is one survey wave of a time series. A nil Value means no data.
type TimePoint struct {
	Wave     string   `json:"wave"`
	WaveDate string   `json:"wave_date"`
	Value    *float64 `json:"value"`
}

// DistributionPoint is one group of a distribution. A nil Value means no data.
type DistributionPoint struct {
	Group string   `json:"group"`
	Value *float64 `json:"value"`
}

// SavedView is a named snapshot of query parameters, scoped to a study.
type SavedView struct {
	ID                    int64   `json:"id"`
	Name                  string  `json:"name"`
	QuestionCode          string  `json:"question_code"`
	DistributionDimension string  `json:"distribution_dimension"`
	Filters               Filters `json:"filters"`
	CreatedAt             string  `json:"created_at"`
}

// SavedViewPayload is the body of a saved view creation request.
type SavedViewPayload struct {
	StudyID               int64   `json:"study_id"`
	Name                  string  `json:"name"`
	QuestionCode          string  `json:"question_code"`
	DistributionDimension string  `json:"distribution_dimension"`
	Filters               Filters `json:"filters"`
}

// buildQuery renders the query string: the leading fixed parameters in the
// given order followed by the constrained filters.
func buildQuery(filters Filters, pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pairs[i]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pairs[i+1]))
	}
	filters.encode(&b)
	return b.String()
}
