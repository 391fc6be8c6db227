package workflow

import "strings"

const (
	StatusPending    = "pending"
	StatusAccepted   = "accepted"
	StatusDispatched = "dispatched"
	StatusCompleted  = "completed"
	StatusWaiting    = "waiting"
	StatusFailed     = "failed"
)

const (
	ActionCreated         = "created"
	ActionAccepted        = "accepted"
	ActionRejected        = "rejected"
	ActionTransferred     = "transferred"
	ActionDispatched      = "dispatched"
	ActionClosed          = "closed"
	ActionSurveySubmitted = "survey_submitted"
)

const (
	ActorSystem  = "system"
	ActorOfficer = "officer"
	ActorCitizen = "citizen"
	ActorAI      = "ai"
)

// complaintTransitions maps from-status -> to-status -> log action.
// A transfer re-enters pending and is handled separately because it is
// legal from any non-terminal status, not just pending.
var complaintTransitions = map[string]map[string]string{
	StatusPending: {
		StatusAccepted: ActionAccepted,
		StatusPending:  ActionTransferred,
	},
	StatusAccepted: {
		StatusDispatched: ActionDispatched,
	},
	StatusDispatched: {
		StatusCompleted: ActionClosed,
		StatusWaiting:   ActionClosed,
		StatusFailed:    ActionClosed,
	},
}

func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func CanTransition(fromStatus string, toStatus string) bool {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	next := complaintTransitions[fromStatus]
	if next == nil {
		return false
	}
	_, ok := next[toStatus]
	return ok
}

func ActionForTransition(fromStatus string, toStatus string) string {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	next := complaintTransitions[fromStatus]
	if next == nil {
		return ""
	}
	return next[toStatus]
}

// IsTerminal reports whether a complaint can no longer move. A waiting
// result is a soft terminal: relaunching dispatch needs a new complaint.
func IsTerminal(status string) bool {
	switch NormalizeStatus(status) {
	case StatusCompleted, StatusWaiting, StatusFailed:
		return true
	}
	return false
}

func CanTransfer(status string) bool {
	return !IsTerminal(status) && NormalizeStatus(status) != ""
}

// IsResultStatus reports whether status is a legal close result.
func IsResultStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusCompleted, StatusWaiting, StatusFailed:
		return true
	}
	return false
}

// IsStatus reports whether status names a known complaint status.
func IsStatus(status string) bool {
	s := NormalizeStatus(status)
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

func AllStatuses() []string {
	return []string{
		StatusPending,
		StatusAccepted,
		StatusDispatched,
		StatusCompleted,
		StatusWaiting,
		StatusFailed,
	}
}
