package dashboard

import (
	"context"
	"time"

	"github.com/blockedby/survey-portal/internal/portalapi"
)

// Activity kinds.
const (
	ActivityViewSaved   = "view_saved"
	ActivityViewDeleted = "view_deleted"
	ActivityExported    = "exported"
)

// Activity is emitted after a subscriber action succeeds.
type Activity struct {
	Kind         string            `json:"kind"`
	StudyID      int64             `json:"study_id"`
	ViewID       int64             `json:"view_id,omitempty"`
	Name         string            `json:"name,omitempty"`
	QuestionCode string            `json:"question_code,omitempty"`
	Dimension    string            `json:"dimension,omitempty"`
	Filters      portalapi.Filters `json:"filters,omitempty"`
	At           time.Time         `json:"at"`
}

// Publisher forwards activities to an event bus.
type Publisher interface {
	PublishActivity(ctx context.Context, a Activity) error
}
