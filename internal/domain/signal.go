package domain

import (
	"errors"
	"fmt"
)

// PageSignal is what the browser reports back after an action: where it landed and
// the visible text that matters for classification (title, toasts, banners).
type PageSignal struct {
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	TextMarkers []string `json:"text_markers,omitempty"`
}

type VerdictKind string

const (
	VerdictClear      VerdictKind = "clear"
	VerdictChallenged VerdictKind = "challenged"
)

type Verdict struct {
	Kind   VerdictKind
	Reason string
}

func (v Verdict) Challenged() bool {
	return v.Kind == VerdictChallenged
}

type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeDenied      OutcomeKind = "denied"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeChallenged  OutcomeKind = "challenged"
	OutcomeFailed      OutcomeKind = "failed"
)

// Outcome is the result of one attempt through the scheduler. Cause is set for
// every kind except success. AlreadyApplied marks a success that needed no attempt
// because the note was already engaged.
type Outcome struct {
	Kind           OutcomeKind
	Action         ActionType
	Signal         PageSignal
	Decision       QuotaDecision
	Cause          error
	AlreadyApplied bool
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Retryable covers the kinds a workflow may retry once.
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeRateLimited || o.Kind == OutcomeFailed
}

func (o Outcome) Detail() string {
	switch o.Kind {
	case OutcomeSuccess:
		if o.AlreadyApplied {
			return fmt.Sprintf("%s already applied", o.Action)
		}
		return fmt.Sprintf("%s succeeded", o.Action)
	case OutcomeDenied:
		return fmt.Sprintf("%s denied: %s", o.Action, o.Decision.Reason)
	default:
		if o.Cause != nil {
			return fmt.Sprintf("%s %s: %v", o.Action, o.Kind, o.Cause)
		}
		return fmt.Sprintf("%s %s", o.Action, o.Kind)
	}
}

// RecordOutcome maps an attempted outcome to the persisted record outcome.
// Denied outcomes are never attempted and have no record.
func (o Outcome) RecordOutcome() (ActionOutcome, bool) {
	switch o.Kind {
	case OutcomeSuccess:
		return ActionOutcomeSuccess, true
	case OutcomeRateLimited:
		return ActionOutcomeRateLimited, true
	case OutcomeChallenged:
		return ActionOutcomeChallenged, true
	case OutcomeFailed:
		return ActionOutcomeFailed, true
	default:
		return "", false
	}
}

// CaptchaError reports a verification challenge. The session must be
// re-authenticated by the operator before any further action.
type CaptchaError struct {
	URL      string
	Reason   string
	Attempts int
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("%s at %s (%s) after %d actions this session; %s",
		ErrCaptchaDetected, e.URL, e.Reason, e.Attempts, CaptchaRemediation)
}

func (e *CaptchaError) Unwrap() error {
	return ErrCaptchaDetected
}

const CaptchaRemediation = "stop all automation, wait a few minutes, pass the verification manually in a visible browser, then re-import session cookies"

func IsCaptcha(err error) bool {
	return errors.Is(err, ErrCaptchaDetected)
}
