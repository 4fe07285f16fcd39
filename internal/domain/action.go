package domain

import (
	"fmt"
	"strings"
	"time"
)

type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionClick    ActionType = "click"
	ActionTypeText ActionType = "type"
	ActionLike     ActionType = "like"
	ActionComment  ActionType = "comment"
	ActionReply    ActionType = "reply"
	ActionCollect  ActionType = "collect"
	ActionPublish  ActionType = "publish"
)

// AllActionTypes lists every action type in display order.
var AllActionTypes = []ActionType{
	ActionNavigate,
	ActionClick,
	ActionTypeText,
	ActionLike,
	ActionCollect,
	ActionComment,
	ActionReply,
	ActionPublish,
}

func (a ActionType) Valid() bool {
	switch a {
	case ActionNavigate, ActionClick, ActionTypeText, ActionLike, ActionComment, ActionReply, ActionCollect, ActionPublish:
		return true
	default:
		return false
	}
}

// Class groups action types that share pacing rules.
func (a ActionType) Class() ActionClass {
	switch a {
	case ActionNavigate:
		return ClassNavigation
	case ActionClick, ActionTypeText:
		return ClassInput
	default:
		return ClassInteraction
	}
}

// Engagement reports whether the action counts toward the combined daily engagement budget.
func (a ActionType) Engagement() bool {
	switch a {
	case ActionLike, ActionCollect, ActionComment, ActionReply:
		return true
	default:
		return false
	}
}

// ParseActionType accepts canonical names and the plural forms used in strategy files.
func ParseActionType(raw string) (ActionType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "likes":
		normalized = string(ActionLike)
	case "comments":
		normalized = string(ActionComment)
	case "replies":
		normalized = string(ActionReply)
	case "collects":
		normalized = string(ActionCollect)
	case "publishes":
		normalized = string(ActionPublish)
	}

	action := ActionType(normalized)
	if !action.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownActionType, raw)
	}

	return action, nil
}

type ActionClass string

const (
	ClassNavigation  ActionClass = "navigation"
	ClassInput       ActionClass = "input"
	ClassInteraction ActionClass = "interaction"
)

type ActionOutcome string

const (
	ActionOutcomeSuccess     ActionOutcome = "success"
	ActionOutcomeRateLimited ActionOutcome = "rate_limited"
	ActionOutcomeChallenged  ActionOutcome = "challenged"
	ActionOutcomeFailed      ActionOutcome = "failed"
)

// ActionRecord is one completed attempt against the platform. Records are never mutated.
type ActionRecord struct {
	Action    ActionType
	Timestamp time.Time
	Outcome   ActionOutcome
	Detail    string
}
