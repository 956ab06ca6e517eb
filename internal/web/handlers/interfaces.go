package handlers

import (
	"github.com/blockedby/survey-portal/internal/dashboard"
)

// Sessions resolves a browser session to its dashboard controller
type Sessions interface {
	Get(sessionID string) *dashboard.Controller
}
