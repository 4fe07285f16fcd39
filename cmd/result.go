package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/xhs-pilot/internal/domain"
)

const (
	statusOK         = "ok"
	statusDenied     = "denied"
	statusChallenged = "challenged"
	statusFailed     = "failed"
)

// errResultNotOK makes the process exit non-zero after a failed or challenged
// result has been printed.
var errResultNotOK = errors.New("command did not succeed")

// result is the single JSON document every command prints on stdout.
type result struct {
	Status      string                `json:"status"`
	Detail      string                `json:"detail,omitempty"`
	Remediation string                `json:"remediation,omitempty"`
	Action      domain.ActionType     `json:"action,omitempty"`
	Quota       *domain.QuotaDecision `json:"quota,omitempty"`
	Usage       []domain.QuotaUsage   `json:"usage,omitempty"`
	Engagement  *domain.QuotaUsage    `json:"engagement,omitempty"`
	Signal      *domain.PageSignal    `json:"signal,omitempty"`
	Run         *runView              `json:"run,omitempty"`
	Strategy    *strategyView         `json:"strategy,omitempty"`
	Calendar    []calendarView        `json:"calendar,omitempty"`
	Session     *sessionView          `json:"session,omitempty"`
}

type runView struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Steps      []stepView `json:"steps"`
	Draft      *draftView `json:"draft,omitempty"`
}

type stepView struct {
	Name     string   `json:"name"`
	Action   string   `json:"action,omitempty"`
	Status   string   `json:"status"`
	Attempts int      `json:"attempts"`
	Outcomes []string `json:"outcomes,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

type draftView struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
	NoteType string   `json:"note_type"`
	Images   []string `json:"images,omitempty"`
}

type strategyView struct {
	Persona           string         `json:"persona"`
	Audience          string         `json:"audience,omitempty"`
	ContentDirections []string       `json:"content_directions,omitempty"`
	DailyLimits       map[string]int `json:"daily_limits,omitempty"`
	BestPublishTimes  []string       `json:"best_publish_times,omitempty"`
	RedLines          []string       `json:"red_lines,omitempty"`
	CalendarEntries   int            `json:"calendar_entries"`
}

type calendarView struct {
	Date     string `json:"date"`
	Topic    string `json:"topic"`
	NoteType string `json:"note_type"`
	Note     string `json:"note,omitempty"`
	Status   string `json:"status"`
}

type sessionView struct {
	Path     string `json:"path"`
	Cookies  int    `json:"cookies"`
	LoggedIn bool   `json:"logged_in"`
}

func writeResult(w io.Writer, res result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}

// respond prints res, or the classification of err when res is empty. Only a denied
// result exits cleanly alongside an error; failed and challenged never do.
func respond(cmd *cobra.Command, res result, err error) error {
	if err != nil && res.Status == "" {
		res = errorResult(err)
	}
	if writeErr := writeResult(cmd.OutOrStdout(), res); writeErr != nil {
		return writeErr
	}

	if err != nil && res.Status != statusDenied {
		return err
	}
	if res.Status == statusFailed || res.Status == statusChallenged {
		return fmt.Errorf("%s: %w", res.Status, errResultNotOK)
	}
	return nil
}

// errorResult classifies an error that ended a command before a run or outcome existed.
func errorResult(err error) result {
	res := result{Status: statusFailed, Detail: err.Error()}

	var captcha *domain.CaptchaError
	switch {
	case errors.As(err, &captcha):
		res.Status = statusChallenged
		res.Remediation = domain.CaptchaRemediation
	case errors.Is(err, domain.ErrQuotaExceeded):
		res.Status = statusDenied
	}
	return res
}

func outcomeResult(outcome domain.Outcome) result {
	res := result{
		Status: outcomeStatus(outcome.Kind),
		Detail: outcome.Detail(),
		Action: outcome.Action,
	}
	if outcome.Decision.Action != "" {
		decision := outcome.Decision
		res.Quota = &decision
	}
	if outcome.Signal.URL != "" {
		signal := outcome.Signal
		res.Signal = &signal
	}
	if outcome.Kind == domain.OutcomeChallenged {
		res.Remediation = domain.CaptchaRemediation
	}
	return res
}

func outcomeStatus(kind domain.OutcomeKind) string {
	switch kind {
	case domain.OutcomeSuccess:
		return statusOK
	case domain.OutcomeDenied:
		return statusDenied
	case domain.OutcomeChallenged:
		return statusChallenged
	default:
		return statusFailed
	}
}

func runResult(run *domain.SOPRun) result {
	res := result{Status: runStatus(run.Status), Detail: run.Detail, Run: newRunView(run)}
	if run.Status == domain.RunHalted {
		res.Remediation = domain.CaptchaRemediation
	}
	return res
}

func runStatus(status domain.RunStatus) string {
	switch status {
	case domain.RunCompleted:
		return statusOK
	case domain.RunHalted:
		return statusChallenged
	default:
		return statusFailed
	}
}

func newRunView(run *domain.SOPRun) *runView {
	view := &runView{
		ID:         run.ID,
		Type:       string(run.Type),
		Status:     string(run.Status),
		Detail:     run.Detail,
		StartedAt:  optionalTime(run.StartedAt),
		FinishedAt: optionalTime(run.FinishedAt),
		Steps:      make([]stepView, 0, len(run.Steps)),
	}

	for _, step := range run.Steps {
		outcomes := make([]string, 0, len(step.Result.Outcomes))
		for _, kind := range step.Result.Outcomes {
			outcomes = append(outcomes, string(kind))
		}
		view.Steps = append(view.Steps, stepView{
			Name:     step.Name,
			Action:   string(step.Action),
			Status:   string(step.Result.Status),
			Attempts: step.Result.Attempts,
			Outcomes: outcomes,
			Detail:   step.Result.Detail,
		})
	}

	if run.Draft != nil {
		view.Draft = &draftView{
			Title:    run.Draft.Title,
			Content:  run.Draft.Content,
			Tags:     run.Draft.Tags,
			NoteType: string(run.Draft.NoteType),
			Images:   run.Draft.ImagePaths,
		}
	}

	return view
}

func newStrategyView(profile domain.StrategyProfile) *strategyView {
	view := &strategyView{
		Persona:           profile.Persona,
		Audience:          profile.Audience,
		ContentDirections: profile.ContentDirections,
		BestPublishTimes:  profile.BestPublishTimes,
		RedLines:          profile.RedLines,
		CalendarEntries:   len(profile.ContentCalendar),
	}
	if len(profile.DailyLimits) > 0 {
		view.DailyLimits = make(map[string]int, len(profile.DailyLimits))
		for action, limit := range profile.DailyLimits {
			view.DailyLimits[string(action)] = limit
		}
	}
	return view
}

func newCalendarViews(entries []domain.CalendarEntry) []calendarView {
	views := make([]calendarView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, calendarView{
			Date:     entry.Date,
			Topic:    entry.Topic,
			NoteType: string(entry.NoteType),
			Note:     entry.Note,
			Status:   entry.Status,
		})
	}
	return views
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
