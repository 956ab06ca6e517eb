package dashboard

import (
	"github.com/blockedby/survey-portal/internal/catalog"
	"github.com/blockedby/survey-portal/internal/portalapi"
)

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

type (
	BootstrapStarted struct{}
	StudiesLoaded    struct{ Studies []portalapi.Study }
	BootstrapFailed  struct{ Message string }

	StudySelected     struct{ StudyID int64 }
	QuestionSelected  struct{ QuestionCode string }
	DimensionSelected struct{ Dimension string }
	FilterChanged     struct{ Key, Value string }
	ViewApplied       struct{ View portalapi.SavedView }
	ViewNameChanged   struct{ Name string }

	ScopeLoaded struct {
		Options portalapi.FilterOptions
		Views   []portalapi.SavedView
	}
	ScopeFailed struct{ Message string }

	DataRequested struct{}
	DataLoaded    struct {
		Timeseries   []portalapi.TimePoint
		Distribution []portalapi.DistributionPoint
	}
	DataFailed struct{ Message string }

	ViewCreated    struct{}
	ViewsRefreshed struct {
		StudyID int64
		Views   []portalapi.SavedView
	}
	ExportCompleted struct{}
	OperationFailed struct{ Message string }
)

func (BootstrapStarted) isEvent()  {}
func (StudiesLoaded) isEvent()     {}
func (BootstrapFailed) isEvent()   {}
func (StudySelected) isEvent()     {}
func (QuestionSelected) isEvent()  {}
func (DimensionSelected) isEvent() {}
func (FilterChanged) isEvent()     {}
func (ViewApplied) isEvent()       {}
func (ViewNameChanged) isEvent()   {}
func (ScopeLoaded) isEvent()       {}
func (ScopeFailed) isEvent()       {}
func (DataRequested) isEvent()     {}
func (DataLoaded) isEvent()        {}
func (DataFailed) isEvent()        {}
func (ViewCreated) isEvent()       {}
func (ViewsRefreshed) isEvent()    {}
func (ExportCompleted) isEvent()   {}
func (OperationFailed) isEvent()   {}

// Reduce returns the state that follows s after e. It never mutates s.
// Successful completions clear the error slot; failures replace it.
func Reduce(s State, e Event) State {
	next := s.Clone()

	switch ev := e.(type) {
	case BootstrapStarted:
		next.Loading = true

	case StudiesLoaded:
		next.Studies = append([]portalapi.Study(nil), ev.Studies...)
		if next.StudyID == 0 && len(ev.Studies) > 0 {
			next.StudyID = ev.Studies[0].ID
		}
		next.Error = ""
		next.Loading = false

	case BootstrapFailed:
		next.Error = ev.Message
		next.Loading = false

	case StudySelected:
		next.StudyID = ev.StudyID

	case QuestionSelected:
		next.QuestionCode = ev.QuestionCode

	case DimensionSelected:
		next.Dimension = ev.Dimension

	case FilterChanged:
		next.Filters[ev.Key] = ev.Value

	case ViewApplied:
		next.QuestionCode = ev.View.QuestionCode
		next.Dimension = ev.View.DistributionDimension
		next.Filters = portalapi.Filters(catalog.NormalizeFilters(ev.View.Filters))

	case ViewNameChanged:
		next.ViewName = ev.Name

	case ScopeLoaded:
		next.FilterOptions = ev.Options
		next.SavedViews = append([]portalapi.SavedView(nil), ev.Views...)
		next.Error = ""

	case ScopeFailed:
		next.Error = ev.Message

	case DataRequested:
		next.Loading = true

	case DataLoaded:
		next.Timeseries = append([]portalapi.TimePoint(nil), ev.Timeseries...)
		next.Distribution = append([]portalapi.DistributionPoint(nil), ev.Distribution...)
		next.Error = ""
		next.Loading = false

	case DataFailed:
		next.Error = ev.Message
		next.Loading = false

	case ViewCreated:
		next.ViewName = ""

	case ViewsRefreshed:
		// a refresh issued for a study the user has since left is discarded
		if ev.StudyID == s.StudyID {
			next.SavedViews = append([]portalapi.SavedView(nil), ev.Views...)
			next.Error = ""
		}

	case ExportCompleted:
		next.Error = ""

	case OperationFailed:
		next.Error = ev.Message
	}

	return next
}
