// Package panel builds the view models the dashboard templates render: the
// filter selector and the two charts. Everything here is a pure function of
// its inputs.
package panel

import (
	"fmt"
	"strings"

	"github.com/blockedby/survey-portal/internal/catalog"
	"github.com/blockedby/survey-portal/internal/portalapi"
)

// AllLabel is the sentinel option meaning "no constraint".
const AllLabel = "All"

var dimensionLabels = map[string]string{
	catalog.DimensionIndustry: "Industry",
	catalog.DimensionRegion:   "Region",
	catalog.DimensionGender:   "Gender",
	catalog.DimensionVote:     "Vote",
}

// DimensionLabel returns the display name of a dimension.
func DimensionLabel(dimension string) string {
	if label, ok := dimensionLabels[dimension]; ok {
		return label
	}
	return dimension
}

// Option is one entry of a select box.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// FilterField is the select box of one filter key.
type FilterField struct {
	Key     string
	Label   string
	Options []Option
}

// FilterPanelView is the filter selector of one study.
type FilterPanelView struct {
	StudyLabel string
	Fields     []FilterField
}

// FilterPanel renders the four filter fields in fixed order. Each field starts
// with the All sentinel; a dimension without options offers only that.
func FilterPanel(options portalapi.FilterOptions, filters portalapi.Filters, studyLabel string) FilterPanelView {
	view := FilterPanelView{
		StudyLabel: studyLabel,
		Fields:     make([]FilterField, 0, len(catalog.Dimensions)),
	}

	for _, key := range catalog.Dimensions {
		current := filters[key]
		values := options.ForDimension(key)

		field := FilterField{
			Key:     key,
			Label:   DimensionLabel(key),
			Options: make([]Option, 0, len(values)+1),
		}
		field.Options = append(field.Options, Option{Value: "", Label: AllLabel, Selected: current == ""})
		for _, v := range values {
			field.Options = append(field.Options, Option{Value: v, Label: v, Selected: v == current})
		}
		view.Fields = append(view.Fields, field)
	}

	return view
}

// ParseSelection validates a filter change coming from the selector. The All
// option posts the empty value; any other value, including a literal "All",
// is a real constraint.
func ParseSelection(key, value string) (string, string, error) {
	key = strings.TrimSpace(key)
	if !catalog.IsDimension(key) {
		return "", "", fmt.Errorf("%w: %q", catalog.ErrUnknownFilterKey, key)
	}
	return key, value, nil
}

// QuestionOptions lists the catalog questions with the current one selected.
func QuestionOptions(cat *catalog.Catalog, selected string) []Option {
	questions := cat.Questions()
	out := make([]Option, 0, len(questions))
	for _, q := range questions {
		out = append(out, Option{Value: q.Code, Label: q.Label, Selected: q.Code == selected})
	}
	return out
}

// DimensionOptions lists the distribution dimensions with the current one selected.
func DimensionOptions(selected string) []Option {
	out := make([]Option, 0, len(catalog.Dimensions))
	for _, d := range catalog.Dimensions {
		out = append(out, Option{Value: d, Label: DimensionLabel(d), Selected: d == selected})
	}
	return out
}

// StudyOptions lists the studies with the current one selected.
func StudyOptions(studies []portalapi.Study, selected int64) []Option {
	out := make([]Option, 0, len(studies))
	for _, s := range studies {
		out = append(out, Option{Value: fmt.Sprint(s.ID), Label: s.Name, Selected: s.ID == selected})
	}
	return out
}
