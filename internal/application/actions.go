package application

import (
	"context"
	"fmt"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/ports"
)

// Page selectors of the web and creator clients.
const (
	SelectorLikeButton    = ".interact-container .left .like-wrapper"
	SelectorCollectButton = ".interact-container .left .collect-wrapper"
	SelectorCommentOpen   = "div.input-box div.content-edit span"
	SelectorCommentInput  = "div.input-box div.content-edit p.content-input"
	SelectorCommentSubmit = "div.bottom button.submit"
	SelectorPublishTitle  = "div.d-input input"
	SelectorPublishBody   = "div.ql-editor"
	SelectorPublishButton = ".publish-page-publish-btn button.bg-red"
	SelectorUploadInput   = ".upload-input"
)

func replyButtonSelector(commentID string) string {
	return fmt.Sprintf(`[data-comment-id=%q] .reply-btn`, commentID)
}

// Actions turns browser operations into scheduled actions. It holds no state of
// its own; every call goes through the scheduler.
type Actions struct {
	browser   ports.Browser
	scheduler *ActionScheduler
}

func NewActions(browser ports.Browser, scheduler *ActionScheduler) *Actions {
	return &Actions{browser: browser, scheduler: scheduler}
}

func (a *Actions) Navigate(ctx context.Context, url string) (domain.Outcome, error) {
	return a.scheduler.Perform(ctx, domain.ActionNavigate, func(ctx context.Context) (domain.PageSignal, error) {
		return a.browser.Navigate(ctx, url)
	})
}

func (a *Actions) OpenFeed(ctx context.Context, feed domain.FeedRef) (domain.Outcome, error) {
	return a.Navigate(ctx, feed.URL())
}

func (a *Actions) Click(ctx context.Context, selector string) (domain.Outcome, error) {
	return a.scheduler.Perform(ctx, domain.ActionClick, func(ctx context.Context) (domain.PageSignal, error) {
		return a.browser.Click(ctx, selector)
	})
}

// TypeText enters text rune by rune with a sampled per-keystroke delay.
func (a *Actions) TypeText(ctx context.Context, selector string, text string) (domain.Outcome, error) {
	perRune := a.scheduler.Clock().KeystrokeDelay()
	return a.scheduler.Perform(ctx, domain.ActionTypeText, func(ctx context.Context) (domain.PageSignal, error) {
		return a.browser.TypeText(ctx, selector, text, perRune)
	})
}

// Like likes feed, which must be the open note. A note that is already liked is
// left alone and reported as an already applied success that costs no quota.
func (a *Actions) Like(ctx context.Context, feed domain.FeedRef) (domain.Outcome, error) {
	return a.engage(ctx, domain.ActionLike, feed, SelectorLikeButton)
}

func (a *Actions) Collect(ctx context.Context, feed domain.FeedRef) (domain.Outcome, error) {
	return a.engage(ctx, domain.ActionCollect, feed, SelectorCollectButton)
}

// engage clicks a toggle button only when the note is not yet engaged.
func (a *Actions) engage(ctx context.Context, action domain.ActionType, feed domain.FeedRef, selector string) (domain.Outcome, error) {
	state, err := a.browser.InteractState(ctx, feed.ID)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("read %s state of %s: %w", action, feed.ID, err)
	}
	if state.Has(action) {
		return domain.Outcome{Kind: domain.OutcomeSuccess, Action: action, AlreadyApplied: true}, nil
	}

	return a.scheduler.Perform(ctx, action, func(ctx context.Context) (domain.PageSignal, error) {
		return a.browser.Click(ctx, selector)
	})
}

// FillComment focuses the comment box of the open note and types content. With a
// comment id the reply button of that comment is clicked first; when it cannot be
// found the text goes to the main comment box.
func (a *Actions) FillComment(ctx context.Context, commentID string, content string) (domain.Outcome, error) {
	if commentID != "" {
		outcome, err := a.Click(ctx, replyButtonSelector(commentID))
		if err != nil || stopsSequence(outcome) {
			return outcome, err
		}
	}

	outcome, err := a.Click(ctx, SelectorCommentOpen)
	if err != nil || !outcome.Succeeded() {
		return outcome, err
	}

	return a.TypeText(ctx, SelectorCommentInput, content)
}

// SubmitComment sends the typed comment. action is comment or reply.
func (a *Actions) SubmitComment(ctx context.Context, action domain.ActionType) (domain.Outcome, error) {
	return a.scheduler.Perform(ctx, action, func(ctx context.Context) (domain.PageSignal, error) {
		return a.browser.Submit(ctx, SelectorCommentSubmit)
	})
}

// FillPublishForm opens the creator page, uploads images and types title and body.
func (a *Actions) FillPublishForm(ctx context.Context, draft domain.Draft) (domain.Outcome, error) {
	outcome, err := a.Navigate(ctx, domain.CreatorPublishURL)
	if err != nil || !outcome.Succeeded() {
		return outcome, err
	}

	if len(draft.ImagePaths) > 0 {
		outcome, err = a.scheduler.Perform(ctx, domain.ActionClick, func(ctx context.Context) (domain.PageSignal, error) {
			return a.browser.UploadFiles(ctx, SelectorUploadInput, draft.ImagePaths)
		})
		if err != nil || !outcome.Succeeded() {
			return outcome, err
		}
	}

	outcome, err = a.TypeText(ctx, SelectorPublishTitle, draft.Title)
	if err != nil || !outcome.Succeeded() {
		return outcome, err
	}

	return a.TypeText(ctx, SelectorPublishBody, composeBody(draft))
}

func (a *Actions) SubmitPublish(ctx context.Context) (domain.Outcome, error) {
	return a.scheduler.Perform(ctx, domain.ActionPublish, func(ctx context.Context) (domain.PageSignal, error) {
		return a.browser.Submit(ctx, SelectorPublishButton)
	})
}

// stopsSequence is true for outcomes that must end a multi-action sequence. A failed
// optional click is not one of them.
func stopsSequence(outcome domain.Outcome) bool {
	return outcome.Kind == domain.OutcomeChallenged || outcome.Kind == domain.OutcomeDenied
}

func composeBody(draft domain.Draft) string {
	body := draft.Content
	tags := draft.Tags
	if len(tags) > domain.MaxTags {
		tags = tags[:domain.MaxTags]
	}
	if len(tags) == 0 {
		return body
	}

	body += "\n"
	for _, tag := range tags {
		body += " #" + tag
	}
	return body
}

// Perform runs one ad hoc action. Engagements open the target note first.
func (a *Actions) Perform(ctx context.Context, cmd PerformActionCommand) (domain.Outcome, error) {
	switch cmd.Action {
	case domain.ActionNavigate:
		url := cmd.URL
		if url == "" && cmd.Target.ID != "" {
			url = cmd.Target.URL()
		}
		if url == "" {
			return domain.Outcome{}, fmt.Errorf("%w: navigate needs a url or a target", domain.ErrPrecondition)
		}
		return a.Navigate(ctx, url)
	case domain.ActionClick:
		if cmd.Selector == "" {
			return domain.Outcome{}, fmt.Errorf("%w: click needs a selector", domain.ErrPrecondition)
		}
		return a.Click(ctx, cmd.Selector)
	case domain.ActionTypeText:
		if cmd.Selector == "" || cmd.Content == "" {
			return domain.Outcome{}, fmt.Errorf("%w: type needs a selector and content", domain.ErrPrecondition)
		}
		return a.TypeText(ctx, cmd.Selector, cmd.Content)
	case domain.ActionLike, domain.ActionCollect:
		if cmd.Target.ID == "" {
			return domain.Outcome{}, fmt.Errorf("%w: %s needs a target", domain.ErrPrecondition, cmd.Action)
		}
		outcome, err := a.OpenFeed(ctx, cmd.Target)
		if err != nil || !outcome.Succeeded() {
			return outcome, err
		}
		if cmd.Action == domain.ActionLike {
			return a.Like(ctx, cmd.Target)
		}
		return a.Collect(ctx, cmd.Target)
	case domain.ActionComment, domain.ActionReply:
		target := domain.CommentTarget{Feed: cmd.Target, Content: cmd.Content, CommentID: cmd.CommentID}
		if err := target.Validate(); err != nil {
			return domain.Outcome{}, err
		}
		if cmd.Action == domain.ActionReply && cmd.CommentID == "" {
			return domain.Outcome{}, fmt.Errorf("%w: reply needs a comment id", domain.ErrPrecondition)
		}
		outcome, err := a.OpenFeed(ctx, cmd.Target)
		if err != nil || !outcome.Succeeded() {
			return outcome, err
		}
		outcome, err = a.FillComment(ctx, cmd.CommentID, cmd.Content)
		if err != nil || !outcome.Succeeded() {
			return outcome, err
		}
		return a.SubmitComment(ctx, target.Action())
	case domain.ActionPublish:
		return domain.Outcome{}, fmt.Errorf("%w: publish runs through the publish workflow", domain.ErrPrecondition)
	default:
		return domain.Outcome{}, fmt.Errorf("%w: %q", domain.ErrUnknownActionType, cmd.Action)
	}
}
