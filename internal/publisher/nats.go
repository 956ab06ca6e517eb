package publisher

import (
	"context"
	"fmt"

	"github.com/blockedby/survey-portal/internal/dashboard"
)

// Subjects of the activity events.
const (
	SubjectViewSaved   = "portal.views.saved"
	SubjectViewDeleted = "portal.views.deleted"
	SubjectExported    = "portal.exports.csv"
)

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// NATSPublisher implements dashboard.Publisher
type NATSPublisher struct {
	js NATSClient
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(client NATSClient) *NATSPublisher {
	return &NATSPublisher{js: client}
}

// PublishActivity publishes a subscriber activity event
func (p *NATSPublisher) PublishActivity(ctx context.Context, a dashboard.Activity) error {
	subject, err := subjectFor(a.Kind)
	if err != nil {
		return err
	}

	if err := p.js.Publish(ctx, subject, a); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

func subjectFor(kind string) (string, error) {
	switch kind {
	case dashboard.ActivityViewSaved:
		return SubjectViewSaved, nil
	case dashboard.ActivityViewDeleted:
		return SubjectViewDeleted, nil
	case dashboard.ActivityExported:
		return SubjectExported, nil
	}
	return "", fmt.Errorf("unknown activity kind %q", kind)
}
