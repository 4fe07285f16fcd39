package domain

import (
	"fmt"
	"time"
)

type SOPType string

const (
	SOPPublish SOPType = "publish"
	SOPExplore SOPType = "explore"
	SOPComment SOPType = "comment"
)

func ParseSOPType(raw string) (SOPType, error) {
	switch t := SOPType(raw); t {
	case SOPPublish, SOPExplore, SOPComment:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown sop type %q", ErrPrecondition, raw)
	}
}

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunHalted    RunStatus = "halted"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunHalted || s == RunCompleted || s == RunFailed
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepRunning    StepStatus = "running"
	StepSucceeded  StepStatus = "succeeded"
	StepSkipped    StepStatus = "skipped"
	StepFailed     StepStatus = "failed"
	StepChallenged StepStatus = "challenged"
)

func (s StepStatus) Terminal() bool {
	switch s {
	case StepSucceeded, StepSkipped, StepFailed, StepChallenged:
		return true
	default:
		return false
	}
}

type RetryPolicy struct {
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// SingleAttempt is the policy for steps that are never retried.
var SingleAttempt = RetryPolicy{MaxAttempts: 1}

type StepResult struct {
	Status   StepStatus
	Attempts int
	Outcomes []OutcomeKind
	Detail   string
}

type SOPStep struct {
	Name   string
	Action ActionType
	Retry  RetryPolicy
	Result StepResult
}

func NewStep(name string, action ActionType, retry RetryPolicy) SOPStep {
	return SOPStep{
		Name:   name,
		Action: action,
		Retry:  retry,
		Result: StepResult{Status: StepPending},
	}
}

// Observe appends an attempt's outcome to the step result.
func (s *SOPStep) Observe(outcome Outcome) {
	if outcome.Kind != OutcomeDenied && !outcome.AlreadyApplied {
		s.Result.Attempts++
	}
	s.Result.Outcomes = append(s.Result.Outcomes, outcome.Kind)
	s.Result.Detail = outcome.Detail()
}

func (s *SOPStep) Finish(status StepStatus, detail string) {
	s.Result.Status = status
	if detail != "" {
		s.Result.Detail = detail
	}
}

// SOPRun is one invocation of a workflow. It lives only for the duration of the
// invocation; a halted run is re-issued by the caller.
type SOPRun struct {
	ID          string
	Type        SOPType
	Steps       []SOPStep
	CurrentStep int
	Status      RunStatus
	Detail      string
	StartedAt   time.Time
	FinishedAt  time.Time

	// Draft is set by the publish workflow once the content is final.
	Draft *Draft
}

func NewSOPRun(id string, sopType SOPType, steps []SOPStep) *SOPRun {
	return &SOPRun{
		ID:     id,
		Type:   sopType,
		Steps:  steps,
		Status: RunPending,
	}
}

func (r *SOPRun) Start(now time.Time) error {
	if err := r.transition(RunRunning); err != nil {
		return err
	}
	r.StartedAt = now
	return nil
}

func (r *SOPRun) Complete(now time.Time, detail string) error {
	return r.finish(RunCompleted, now, detail)
}

// Halt is reserved for a verification challenge.
func (r *SOPRun) Halt(now time.Time, detail string) error {
	return r.finish(RunHalted, now, detail)
}

// Fail may be called on a pending run when its preconditions are invalid.
func (r *SOPRun) Fail(now time.Time, detail string) error {
	if r.Status == RunPending {
		r.StartedAt = now
		r.Status = RunRunning
	}
	return r.finish(RunFailed, now, detail)
}

func (r *SOPRun) finish(status RunStatus, now time.Time, detail string) error {
	if err := r.transition(status); err != nil {
		return err
	}
	r.FinishedAt = now
	r.Detail = detail
	return nil
}

func (r *SOPRun) transition(next RunStatus) error {
	allowed := false
	switch r.Status {
	case RunPending:
		allowed = next == RunRunning
	case RunRunning:
		allowed = next.Terminal()
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}

	r.Status = next
	return nil
}

// Step returns the step at index i and marks it current.
func (r *SOPRun) Step(i int) *SOPStep {
	r.CurrentStep = i
	r.Steps[i].Result.Status = StepRunning
	return &r.Steps[i]
}

func (r *SOPRun) StepByName(name string) (*SOPStep, bool) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i], true
		}
	}
	return nil, false
}

func (r *SOPRun) CountSteps(status StepStatus) int {
	n := 0
	for _, step := range r.Steps {
		if step.Result.Status == status {
			n++
		}
	}
	return n
}

// Finished counts the steps that reached a terminal status.
func (r *SOPRun) Finished() int {
	n := 0
	for _, step := range r.Steps {
		if step.Result.Status.Terminal() {
			n++
		}
	}
	return n
}

// AllTerminal reports whether every step reached a terminal status.
func (r *SOPRun) AllTerminal() bool {
	for _, step := range r.Steps {
		if !step.Result.Status.Terminal() {
			return false
		}
	}
	return true
}
