package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/logging"
	"github.com/bnema/xhs-pilot/internal/ports"
)

const (
	stepAnalyzeTopic     = "analyze_topic"
	stepValidateContent  = "validate_content"
	stepGenerateTemplate = "generate_template"
	stepPreparePublish   = "prepare_publish"
	stepOpenExplore      = "open_explore"
)

type SOPOrchestratorOptions struct {
	// BrowseDwell is how long an explore run stays on a note before engaging.
	BrowseDwell Range
	Logger      *slog.Logger
	NewID       func() string
	// OnStep is called after each step reaches a terminal status.
	OnStep      func(run *domain.SOPRun, step *domain.SOPStep)
}

// SOPOrchestrator sequences the multi-step workflows. Side effects go through
// Actions and therefore the scheduler; admission decisions use the ledger.
type SOPOrchestrator struct {
	actions   *Actions
	scheduler *ActionScheduler
	ledger    *QuotaLedger
	feeds     ports.FeedSource
	templates ports.TemplateGenerator
	clock     ports.Clock
	dwell     Range
	logger    *slog.Logger
	newID     func() string
	onStep    func(run *domain.SOPRun, step *domain.SOPStep)
}

func NewSOPOrchestrator(actions *Actions, scheduler *ActionScheduler, ledger *QuotaLedger, feeds ports.FeedSource, templates ports.TemplateGenerator, clock ports.Clock, options SOPOrchestratorOptions) *SOPOrchestrator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	newID := options.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &SOPOrchestrator{
		actions:   actions,
		scheduler: scheduler,
		ledger:    ledger,
		feeds:     feeds,
		templates: templates,
		clock:     clock,
		dwell:     options.BrowseDwell,
		logger:    logger,
		newID:     newID,
		onStep:    options.OnStep,
	}
}

// RunPublish analyzes the topic, validates and finalizes the draft, then fills the
// creator form. Without AutoPublish the draft is left for the operator to confirm.
func (o *SOPOrchestrator) RunPublish(ctx context.Context, params PublishParams) (*domain.SOPRun, error) {
	run := domain.NewSOPRun(o.newID(), domain.SOPPublish, []domain.SOPStep{
		domain.NewStep(stepAnalyzeTopic, "", domain.SingleAttempt),
		domain.NewStep(stepValidateContent, "", domain.SingleAttempt),
		domain.NewStep(stepGenerateTemplate, "", domain.SingleAttempt),
		domain.NewStep(stepPreparePublish, domain.ActionPublish, domain.SingleAttempt),
	})
	if err := params.Validate(); err != nil {
		return o.failRun(run, err.Error())
	}
	if params.NoteType == "" {
		params.NoteType = domain.NoteTypeImage
	}
	if err := o.start(run); err != nil {
		return run, err
	}

	step := run.Step(0)
	decision, err := o.ledger.Check(ctx, domain.ActionPublish)
	if err != nil {
		return o.abort(run, step, err)
	}
	if !decision.Allowed {
		o.finishStep(run, step, domain.StepFailed, decision.Reason)
		return o.failRun(run, "publish not admitted: "+decision.Reason)
	}
	template, err := o.templates.Generate(ctx, params.Topic, params.NoteType)
	if err != nil {
		o.finishStep(run, step, domain.StepFailed, err.Error())
		return o.failRun(run, fmt.Sprintf("generate template for %q: %v", params.Topic, err))
	}
	o.finishStep(run, step, domain.StepSucceeded,
		fmt.Sprintf("%d title suggestions, %d publishes left today", len(template.Titles), decision.Remaining))

	step = run.Step(1)
	draft := draftFrom(params, template)
	validation := domain.ValidateDraft(draft)
	if !validation.Valid {
		detail := strings.Join(validation.Errors, "; ")
		o.finishStep(run, step, domain.StepFailed, detail)
		return o.failRun(run, fmt.Sprintf("%v: %s", domain.ErrPrecondition, detail))
	}
	o.finishStep(run, step, domain.StepSucceeded, strings.Join(validation.Warnings, "; "))

	step = run.Step(2)
	draft.Tags = finalTags(draft.Tags)
	run.Draft = &draft
	o.finishStep(run, step, domain.StepSucceeded, fmt.Sprintf("title %q with %d tags", draft.Title, len(draft.Tags)))

	step = run.Step(3)
	outcome, err := o.actions.FillPublishForm(ctx, draft)
	if err != nil {
		return o.abort(run, step, err)
	}
	step.Observe(outcome)
	if done, run, err := o.settle(run, step, outcome); done {
		return run, err
	}

	if !params.AutoPublish {
		o.finishStep(run, step, domain.StepSucceeded, "draft filled, awaiting operator confirmation")
		return o.completeRun(run, "draft ready for review")
	}

	outcome, err = o.actions.SubmitPublish(ctx)
	if err != nil {
		return o.abort(run, step, err)
	}
	step.Observe(outcome)
	if done, run, err := o.settle(run, step, outcome); done {
		return run, err
	}

	o.finishStep(run, step, domain.StepSucceeded, "published")
	return o.completeRun(run, "note published")
}

// RunExplore browses the recommendation feed and engages with each note by chance.
// A denied engagement is noted and the loop goes on; a challenge halts the run.
func (o *SOPOrchestrator) RunExplore(ctx context.Context, params ExploreParams) (*domain.SOPRun, error) {
	steps := []domain.SOPStep{domain.NewStep(stepOpenExplore, domain.ActionNavigate, domain.SingleAttempt)}
	if err := params.Validate(); err != nil {
		return o.failRun(domain.NewSOPRun(o.newID(), domain.SOPExplore, steps), err.Error())
	}
	for i := 1; i <= params.Count; i++ {
		steps = append(steps, domain.NewStep(fmt.Sprintf("item_%d", i), domain.ActionNavigate, domain.SingleAttempt))
	}
	run := domain.NewSOPRun(o.newID(), domain.SOPExplore, steps)
	if err := o.start(run); err != nil {
		return run, err
	}

	step := run.Step(0)
	outcome, err := o.actions.Navigate(ctx, domain.ExploreURL)
	if err != nil {
		return o.abort(run, step, err)
	}
	step.Observe(outcome)
	if done, run, err := o.settle(run, step, outcome); done {
		return run, err
	}
	feeds, err := o.feeds.Feeds(ctx, params.Count)
	if err != nil {
		if ctx.Err() != nil {
			return o.abort(run, step, err)
		}
		o.finishStep(run, step, domain.StepFailed, err.Error())
		return o.failRun(run, fmt.Sprintf("read explore feed: %v", err))
	}
	o.finishStep(run, step, domain.StepSucceeded, fmt.Sprintf("%d notes found", len(feeds)))

	clock := o.scheduler.Clock()
	for i := 1; i < len(run.Steps); i++ {
		step := run.Step(i)
		if i > len(feeds) {
			o.finishStep(run, step, domain.StepSkipped, "feed source supplied no note")
			continue
		}
		feed := feeds[i-1]

		outcome, err := o.actions.OpenFeed(ctx, feed)
		if err != nil {
			return o.abort(run, step, err)
		}
		step.Observe(outcome)
		if outcome.Kind == domain.OutcomeChallenged {
			return o.haltRun(run, step, outcome)
		}
		if !outcome.Succeeded() {
			o.finishStep(run, step, stepStatusFor(outcome), outcome.Detail())
			continue
		}
		if err := o.scheduler.Wait(ctx, clock.Sample(o.dwell)); err != nil {
			return o.abort(run, step, err)
		}

		engagements := make([]string, 0, 2)
		failed := false
		for _, candidate := range []struct {
			action      domain.ActionType
			probability float64
			perform     func(context.Context, domain.FeedRef) (domain.Outcome, error)
		}{
			{domain.ActionLike, params.LikeProbability, o.actions.Like},
			{domain.ActionCollect, params.CollectProbability, o.actions.Collect},
		} {
			if !clock.Chance(candidate.probability) {
				continue
			}
			outcome, err := candidate.perform(ctx, feed)
			if err != nil {
				return o.abort(run, step, err)
			}
			step.Observe(outcome)
			switch outcome.Kind {
			case domain.OutcomeChallenged:
				return o.haltRun(run, step, outcome)
			case domain.OutcomeSuccess:
				label := string(candidate.action)
				if outcome.AlreadyApplied {
					label += " already applied"
				}
				engagements = append(engagements, label)
			case domain.OutcomeDenied:
				engagements = append(engagements, string(candidate.action)+" denied")
			default:
				failed = true
				engagements = append(engagements, outcome.Detail())
			}
		}

		detail := fmt.Sprintf("viewed %s", feed.ID)
		if len(engagements) > 0 {
			detail += ": " + strings.Join(engagements, ", ")
		}
		status := domain.StepSucceeded
		if failed {
			status = domain.StepFailed
		}
		o.finishStep(run, step, status, detail)
	}

	return o.concludeItems(run, 1)
}

// RunComment posts a comment or reply for each target. A failed submission is
// retried exactly once after a short pause; a target that still fails is recorded
// and the batch continues.
func (o *SOPOrchestrator) RunComment(ctx context.Context, params CommentParams) (*domain.SOPRun, error) {
	clock := o.scheduler.Clock()
	retry := clock.Profile().Retry

	steps := make([]domain.SOPStep, 0, len(params.Targets))
	for i, target := range params.Targets {
		steps = append(steps, domain.NewStep(fmt.Sprintf("target_%d", i+1), target.Action(), domain.RetryPolicy{
			MaxAttempts: 2,
			BackoffMin:  retry.Min,
			BackoffMax:  retry.Max,
		}))
	}
	run := domain.NewSOPRun(o.newID(), domain.SOPComment, steps)
	if err := params.Validate(); err != nil {
		return o.failRun(run, err.Error())
	}
	if err := o.start(run); err != nil {
		return run, err
	}

	for i, target := range params.Targets {
		step := run.Step(i)
		if err := target.Validate(); err != nil {
			o.finishStep(run, step, domain.StepFailed, err.Error())
			continue
		}

		decision, err := o.ledger.Check(ctx, step.Action)
		if err != nil {
			return o.abort(run, step, err)
		}
		if !decision.Allowed {
			o.finishStep(run, step, domain.StepSkipped, decision.Reason)
			continue
		}

		outcome, err := o.prepareComment(ctx, target)
		if err != nil {
			return o.abort(run, step, err)
		}
		step.Observe(outcome)
		if outcome.Kind == domain.OutcomeChallenged {
			return o.haltRun(run, step, outcome)
		}
		if !outcome.Succeeded() {
			o.finishStep(run, step, stepStatusFor(outcome), outcome.Detail())
			continue
		}

		for attempt := 1; attempt <= step.Retry.MaxAttempts; attempt++ {
			if attempt > 1 {
				if err := o.scheduler.Wait(ctx, clock.Sample(Range{Min: step.Retry.BackoffMin, Max: step.Retry.BackoffMax})); err != nil {
					return o.abort(run, step, err)
				}
				o.logger.Info("retrying submission", "run", run.ID, "step", step.Name, "attempt", attempt)
			}
			outcome, err = o.actions.SubmitComment(ctx, step.Action)
			if err != nil {
				return o.abort(run, step, err)
			}
			step.Observe(outcome)
			if !outcome.Retryable() {
				break
			}
		}

		if outcome.Kind == domain.OutcomeChallenged {
			return o.haltRun(run, step, outcome)
		}
		o.finishStep(run, step, stepStatusFor(outcome), outcome.Detail())
	}

	return o.concludeItems(run, 0)
}

func (o *SOPOrchestrator) prepareComment(ctx context.Context, target domain.CommentTarget) (domain.Outcome, error) {
	outcome, err := o.actions.OpenFeed(ctx, target.Feed)
	if err != nil || !outcome.Succeeded() {
		return outcome, err
	}
	return o.actions.FillComment(ctx, target.CommentID, target.Content)
}

// settle ends the run when a single-item step did not succeed.
func (o *SOPOrchestrator) settle(run *domain.SOPRun, step *domain.SOPStep, outcome domain.Outcome) (bool, *domain.SOPRun, error) {
	switch {
	case outcome.Kind == domain.OutcomeChallenged:
		halted, err := o.haltRun(run, step, outcome)
		return true, halted, err
	case !outcome.Succeeded():
		o.finishStep(run, step, stepStatusFor(outcome), outcome.Detail())
		failed, err := o.failRun(run, fmt.Sprintf("%s: %s", step.Name, outcome.Detail()))
		return true, failed, err
	default:
		return false, run, nil
	}
}

// concludeItems completes the run unless every item step from index first failed.
func (o *SOPOrchestrator) concludeItems(run *domain.SOPRun, first int) (*domain.SOPRun, error) {
	items := run.Steps[first:]
	counts := make(map[domain.StepStatus]int, 3)
	for _, step := range items {
		counts[step.Result.Status]++
	}

	summary := fmt.Sprintf("%d succeeded, %d skipped, %d failed",
		counts[domain.StepSucceeded], counts[domain.StepSkipped], counts[domain.StepFailed])
	if len(items) > 0 && counts[domain.StepFailed] == len(items) {
		return o.failRun(run, "every item failed: "+summary)
	}

	return o.completeRun(run, summary)
}

func (o *SOPOrchestrator) start(run *domain.SOPRun) error {
	if err := run.Start(o.clock.Now()); err != nil {
		return err
	}
	o.logger.Info("sop started", "run", run.ID, "sop", run.Type, "steps", len(run.Steps))
	return nil
}

func (o *SOPOrchestrator) finishStep(run *domain.SOPRun, step *domain.SOPStep, status domain.StepStatus, detail string) {
	step.Finish(status, detail)
	o.logger.Info("sop step",
		"run", run.ID,
		"sop", run.Type,
		"step", step.Name,
		"status", status,
		"attempts", step.Result.Attempts,
		"detail", step.Result.Detail,
	)
	if o.onStep != nil {
		o.onStep(run, step)
	}
}

func (o *SOPOrchestrator) completeRun(run *domain.SOPRun, detail string) (*domain.SOPRun, error) {
	if err := run.Complete(o.clock.Now(), detail); err != nil {
		return run, err
	}
	o.logger.Info("sop completed", "run", run.ID, "sop", run.Type, "detail", detail)
	return run, nil
}

func (o *SOPOrchestrator) failRun(run *domain.SOPRun, detail string) (*domain.SOPRun, error) {
	if err := run.Fail(o.clock.Now(), detail); err != nil {
		return run, err
	}
	o.logger.Warn("sop failed", "run", run.ID, "sop", run.Type, "detail", detail)
	return run, nil
}

func (o *SOPOrchestrator) haltRun(run *domain.SOPRun, step *domain.SOPStep, outcome domain.Outcome) (*domain.SOPRun, error) {
	o.finishStep(run, step, domain.StepChallenged, outcome.Detail())
	if err := run.Halt(o.clock.Now(), outcome.Cause.Error()); err != nil {
		return run, err
	}
	o.logger.Error("sop halted", "run", run.ID, "sop", run.Type, "step", step.Name, "remediation", domain.CaptchaRemediation)
	return run, nil
}

// abort ends the run on an infrastructure fault and returns the fault.
func (o *SOPOrchestrator) abort(run *domain.SOPRun, step *domain.SOPStep, cause error) (*domain.SOPRun, error) {
	o.finishStep(run, step, domain.StepFailed, cause.Error())
	if err := run.Fail(o.clock.Now(), cause.Error()); err != nil {
		return run, errors.Join(cause, err)
	}
	return run, cause
}

func stepStatusFor(outcome domain.Outcome) domain.StepStatus {
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		return domain.StepSucceeded
	case domain.OutcomeDenied:
		return domain.StepSkipped
	case domain.OutcomeChallenged:
		return domain.StepChallenged
	default:
		return domain.StepFailed
	}
}

func draftFrom(params PublishParams, template domain.Template) domain.Draft {
	draft := domain.Draft{
		Title:      strings.TrimSpace(params.Title),
		Content:    params.Content,
		Tags:       slices.Clone(params.Tags),
		NoteType:   params.NoteType,
		ImagePaths: slices.Clone(params.ImagePaths),
	}
	if draft.Title == "" && len(template.Titles) > 0 {
		draft.Title = template.Titles[0]
	}
	if strings.TrimSpace(draft.Content) == "" && template.Hook != "" {
		draft.Content = template.Hook + "\n\n" + template.Closing
	}
	if len(draft.Tags) == 0 {
		draft.Tags = slices.Clone(template.Tags)
	}
	return draft
}

// finalTags trims, strips the leading '#', drops duplicates and keeps at most MaxTags.
func finalTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == domain.MaxTags {
			break
		}
	}
	return out
}
