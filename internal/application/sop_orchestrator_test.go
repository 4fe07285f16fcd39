package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/xhs-pilot/internal/domain"
)

func feedsN(n int) staticFeeds {
	feeds := make(staticFeeds, 0, n)
	for i := 1; i <= n; i++ {
		feeds = append(feeds, domain.FeedRef{ID: fmt.Sprintf("note%02d", i), XsecToken: "tok"})
	}
	return feeds
}

func TestRunExploreLikesEveryItemWithCertainProbability(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	feeds := feedsN(10)
	notEngaged(h.browser)
	h.browser.On("Navigate", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)
	h.browser.On("Click", mock.Anything, SelectorLikeButton).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)

	run, err := h.orchestrator(feeds, staticTemplates{}).RunExplore(context.Background(), ExploreParams{
		Count:              10,
		LikeProbability:    1.0,
		CollectProbability: 0.0,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Len(t, run.Steps, 11)
	assert.True(t, run.AllTerminal())
	h.browser.AssertNumberOfCalls(t, "Click", 10)
	h.browser.AssertNotCalled(t, "Click", mock.Anything, SelectorCollectButton)

	usage, err := h.ledger.Usage(context.Background())
	require.NoError(t, err)
	for _, u := range usage {
		switch u.Action {
		case domain.ActionLike:
			assert.Equal(t, 10, u.Used)
		case domain.ActionCollect:
			assert.Equal(t, 0, u.Used)
		case domain.ActionNavigate:
			assert.Equal(t, 11, u.Used)
		}
	}
}

func TestRunExploreHaltsOnCaptchaAndLeavesRestPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	feeds := feedsN(10)
	notEngaged(h.browser)
	h.browser.On("Navigate", mock.Anything, feeds[2].URL()).Return(captchaSignal(), nil)
	h.browser.On("Navigate", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)
	h.browser.On("Click", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)

	run, err := h.orchestrator(feeds, staticTemplates{}).RunExplore(context.Background(), ExploreParams{
		Count:           10,
		LikeProbability: 1.0,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RunHalted, run.Status)
	assert.Contains(t, run.Detail, domain.CaptchaRemediation)
	assert.Equal(t, domain.StepChallenged, run.Steps[3].Result.Status)
	for _, step := range run.Steps[4:] {
		assert.Equal(t, domain.StepPending, step.Result.Status, step.Name)
		assert.Zero(t, step.Result.Attempts, step.Name)
	}
	for _, feed := range feeds[3:] {
		h.browser.AssertNotCalled(t, "Navigate", mock.Anything, feed.URL())
	}
	h.browser.AssertNumberOfCalls(t, "Click", 2)
}

func TestRunExploreIsNotHaltedByNoteTitles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	feeds := feedsN(2)
	notEngaged(h.browser)
	h.browser.On("Navigate", mock.Anything, feeds[0].URL()).Return(domain.PageSignal{URL: feeds[0].URL(), Title: "上班族频繁加班怎么办 - 小红书"}, nil)
	h.browser.On("Navigate", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)
	h.browser.On("Click", mock.Anything, SelectorLikeButton).Return(domain.PageSignal{URL: feeds[0].URL(), Title: "上班族频繁加班怎么办 - 小红书"}, nil)

	run, err := h.orchestrator(feeds, staticTemplates{}).RunExplore(context.Background(), ExploreParams{Count: 2, LikeProbability: 1})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, domain.StepSucceeded, run.Steps[1].Result.Status)
	assert.Equal(t, domain.StepSucceeded, run.Steps[2].Result.Status)
	h.browser.AssertNumberOfCalls(t, "Click", 2)
}

func TestRunExploreContinuesWhenEngagementDenied(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.Init(ctx, domain.StrategyProfile{Persona: "p", DailyLimits: map[domain.ActionType]int{domain.ActionLike: 1}})
	require.NoError(t, err)

	notEngaged(h.browser)
	h.browser.On("Navigate", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)
	h.browser.On("Click", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)

	run, err := h.orchestrator(feedsN(3), staticTemplates{}).RunExplore(ctx, ExploreParams{Count: 3, LikeProbability: 1})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 3, run.CountSteps(domain.StepSucceeded)-1)
	assert.Contains(t, run.Steps[2].Result.Detail, "like denied")
	h.browser.AssertNumberOfCalls(t, "Click", 1)
}

func TestRunExploreDoesNotUnlikeLikedNotes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	feeds := feedsN(2)
	h.browser.On("Navigate", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)
	h.browser.On("InteractState", mock.Anything, feeds[0].ID).Return(domain.InteractState{Liked: true}, nil)
	h.browser.On("InteractState", mock.Anything, feeds[1].ID).Return(domain.InteractState{}, nil)
	h.browser.On("Click", mock.Anything, SelectorLikeButton).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)

	run, err := h.orchestrator(feeds, staticTemplates{}).RunExplore(context.Background(), ExploreParams{Count: 2, LikeProbability: 1})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Contains(t, run.Steps[1].Result.Detail, "like already applied")
	assert.Equal(t, domain.StepSucceeded, run.Steps[1].Result.Status)
	h.browser.AssertNumberOfCalls(t, "Click", 1)

	decision, err := h.ledger.Check(context.Background(), domain.ActionLike)
	require.NoError(t, err)
	assert.Equal(t, 1, decision.Used)
}

func TestRunExploreReportsEachFinishedStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.browser.On("Navigate", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)

	var reported []string
	orchestrator := NewSOPOrchestrator(h.actions, h.scheduler, h.ledger, feedsN(1), staticTemplates{}, h.clock, SOPOrchestratorOptions{
		OnStep: func(run *domain.SOPRun, step *domain.SOPStep) {
			reported = append(reported, fmt.Sprintf("%s %s %d/%d", step.Name, step.Result.Status, run.Finished(), len(run.Steps)))
		},
	})

	run, err := orchestrator.RunExplore(context.Background(), ExploreParams{Count: 2})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, []string{
		"open_explore succeeded 1/3",
		"item_1 succeeded 2/3",
		"item_2 skipped 3/3",
	}, reported)
}

func TestRunExploreSkipsItemsTheFeedCannotSupply(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.browser.On("Navigate", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore"), nil)

	run, err := h.orchestrator(feedsN(2), staticTemplates{}).RunExplore(context.Background(), ExploreParams{Count: 4})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 2, run.CountSteps(domain.StepSkipped))
}

func TestRunExploreFailsWhenEveryItemFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	feeds := feedsN(2)
	for _, feed := range feeds {
		h.browser.On("Navigate", mock.Anything, feed.URL()).Return(domain.PageSignal{}, errors.New("net::ERR_TIMED_OUT"))
	}
	h.browser.On("Navigate", mock.Anything, domain.ExploreURL).Return(okSignal(domain.ExploreURL), nil)

	run, err := h.orchestrator(feeds, staticTemplates{}).RunExplore(context.Background(), ExploreParams{Count: 2})
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Detail, "every item failed")
}

func TestRunExploreRejectsBadProbability(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	run, err := h.orchestrator(nil, staticTemplates{}).RunExplore(context.Background(), ExploreParams{Count: 2, LikeProbability: 1.5})
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Detail, "like probability")
	h.browser.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything)
}

func TestRunExploreRejectsOversizedCountBeforeBuildingSteps(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	run, err := h.orchestrator(nil, staticTemplates{}).RunExplore(context.Background(), ExploreParams{Count: math.MaxInt})
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Detail, "count must be at most")
	assert.Len(t, run.Steps, 1)
	assert.Empty(t, h.browser.Calls)
}

func expectCommentForm(b *mockBrowser) {
	b.On("Navigate", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore/x"), nil)
	b.On("Click", mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore/x"), nil)
	b.On("TypeText", mock.Anything, SelectorCommentInput, mock.Anything, mock.Anything).Return(okSignal("https://www.xiaohongshu.com/explore/x"), nil)
}

func commentTargets(n int) []domain.CommentTarget {
	targets := make([]domain.CommentTarget, 0, n)
	for i := 1; i <= n; i++ {
		targets = append(targets, domain.CommentTarget{
			Feed:    domain.FeedRef{ID: fmt.Sprintf("note%d", i), XsecToken: "tok"},
			Content: fmt.Sprintf("第%d条评论，写得真好", i),
		})
	}
	return targets
}

func TestRunCommentRetriesTransientFailureOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	expectCommentForm(h.browser)
	h.browser.On("Submit", mock.Anything, SelectorCommentSubmit).Return(domain.PageSignal{}, errors.New("submit timed out")).Once()
	h.browser.On("Submit", mock.Anything, SelectorCommentSubmit).Return(okSignal("https://www.xiaohongshu.com/explore/x"), nil).Once()

	run, err := h.orchestrator(nil, staticTemplates{}).RunComment(context.Background(), CommentParams{Targets: commentTargets(1)})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	step := run.Steps[0]
	assert.Equal(t, domain.StepSucceeded, step.Result.Status)
	assert.Equal(t, []domain.OutcomeKind{domain.OutcomeSuccess, domain.OutcomeFailed, domain.OutcomeSuccess}, step.Result.Outcomes)
	h.browser.AssertNumberOfCalls(t, "Submit", 2)
	assert.Contains(t, h.sleeper.slept, 3*time.Second, "retry waits within the 2-4s range")
}

func TestRunCommentSecondFailureMarksStepAndContinues(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	expectCommentForm(h.browser)
	limited := domain.PageSignal{URL: "https://www.xiaohongshu.com/explore/x", TextMarkers: []string{"操作太快了"}}
	h.browser.On("Submit", mock.Anything, SelectorCommentSubmit).Return(limited, nil).Twice()
	h.browser.On("Submit", mock.Anything, SelectorCommentSubmit).Return(okSignal("https://www.xiaohongshu.com/explore/x"), nil)

	run, err := h.orchestrator(nil, staticTemplates{}).RunComment(context.Background(), CommentParams{Targets: commentTargets(2)})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, domain.StepFailed, run.Steps[0].Result.Status)
	assert.Equal(t, domain.StepSucceeded, run.Steps[1].Result.Status)
	h.browser.AssertNumberOfCalls(t, "Submit", 3)

	remaining, err := h.ledger.Remaining(context.Background(), domain.ActionComment)
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

func TestRunCommentFailsWhenEveryTargetFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	expectCommentForm(h.browser)
	h.browser.On("Submit", mock.Anything, SelectorCommentSubmit).Return(domain.PageSignal{}, errors.New("submit timed out"))

	run, err := h.orchestrator(nil, staticTemplates{}).RunComment(context.Background(), CommentParams{Targets: commentTargets(2)})
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.Status)
	h.browser.AssertNumberOfCalls(t, "Submit", 4)
}

func TestRunCommentInvalidContentFailsOnlyThatStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	expectCommentForm(h.browser)
	h.browser.On("Submit", mock.Anything, SelectorCommentSubmit).Return(okSignal("https://www.xiaohongshu.com/explore/x"), nil)

	targets := commentTargets(2)
	targets[0].Content = strings.Repeat("长", domain.MaxCommentLength+1)

	run, err := h.orchestrator(nil, staticTemplates{}).RunComment(context.Background(), CommentParams{Targets: targets})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, domain.StepFailed, run.Steps[0].Result.Status)
	assert.Contains(t, run.Steps[0].Result.Detail, "comment too long")
	h.browser.AssertNotCalled(t, "Navigate", mock.Anything, targets[0].Feed.URL())
	h.browser.AssertNumberOfCalls(t, "Submit", 1)
}

func TestRunCommentHaltsOnCaptchaDuringSubmit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	expectCommentForm(h.browser)
	h.browser.On("Submit", mock.Anything, SelectorCommentSubmit).Return(captchaSignal(), nil)

	run, err := h.orchestrator(nil, staticTemplates{}).RunComment(context.Background(), CommentParams{Targets: commentTargets(3)})
	require.NoError(t, err)

	assert.Equal(t, domain.RunHalted, run.Status)
	assert.Equal(t, domain.StepChallenged, run.Steps[0].Result.Status)
	assert.Equal(t, domain.StepPending, run.Steps[1].Result.Status)
	h.browser.AssertNumberOfCalls(t, "Submit", 1)
}

func TestRunCommentSkipsQuotaDeniedTargets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.Init(ctx, domain.StrategyProfile{Persona: "p", DailyLimits: map[domain.ActionType]int{domain.ActionReply: 0}})
	require.NoError(t, err)
	expectCommentForm(h.browser)
	h.browser.On("Submit", mock.Anything, SelectorCommentSubmit).Return(okSignal("https://www.xiaohongshu.com/explore/x"), nil)

	targets := commentTargets(2)
	targets[0].CommentID = "c-1"

	run, err := h.orchestrator(nil, staticTemplates{}).RunComment(ctx, CommentParams{Targets: targets})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, domain.StepSkipped, run.Steps[0].Result.Status)
	assert.Equal(t, domain.ActionReply, run.Steps[0].Action)
	assert.Equal(t, domain.StepSucceeded, run.Steps[1].Result.Status)
}

func TestRunCommentRequiresTargets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	run, err := h.orchestrator(nil, staticTemplates{}).RunComment(context.Background(), CommentParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Detail, "no comment targets")
}

var campingTemplate = staticTemplates{template: domain.Template{
	Titles:  []string{"露营新手必看清单"},
	Hook:    "第一次露营，踩过的坑都在这里了。",
	Closing: "你还想看哪些露营内容？评论区告诉我。",
	Tags:    []string{"露营", "#户外", "露营"},
}}

func expectPublishForm(b *mockBrowser) {
	b.On("Navigate", mock.Anything, domain.CreatorPublishURL).Return(okSignal(domain.CreatorPublishURL), nil)
	b.On("TypeText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(okSignal(domain.CreatorPublishURL), nil)
}

func TestRunPublishPreparesDraftWithoutPublishing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	expectPublishForm(h.browser)

	run, err := h.orchestrator(nil, campingTemplate).RunPublish(context.Background(), PublishParams{Topic: "露营"})
	require.NoError(t, err)

	require.Equal(t, domain.RunCompleted, run.Status, run.Detail)
	require.NotNil(t, run.Draft)
	assert.Equal(t, "露营新手必看清单", run.Draft.Title)
	assert.Equal(t, []string{"露营", "户外"}, run.Draft.Tags)
	for _, name := range []string{stepAnalyzeTopic, stepValidateContent, stepGenerateTemplate, stepPreparePublish} {
		step, ok := run.StepByName(name)
		require.True(t, ok)
		assert.Equal(t, domain.StepSucceeded, step.Result.Status, name)
	}
	h.browser.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	h.browser.AssertCalled(t, "TypeText", mock.Anything, SelectorPublishTitle, "露营新手必看清单", mock.Anything)

	remaining, err := h.ledger.Remaining(context.Background(), domain.ActionPublish)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestRunPublishAutoPublishConsumesQuota(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	expectPublishForm(h.browser)
	h.browser.On("UploadFiles", mock.Anything, SelectorUploadInput, []string{"a.jpg"}).Return(okSignal(domain.CreatorPublishURL), nil)
	h.browser.On("Submit", mock.Anything, SelectorPublishButton).Return(okSignal("https://creator.xiaohongshu.com/publish/success"), nil)

	run, err := h.orchestrator(nil, campingTemplate).RunPublish(context.Background(), PublishParams{
		Topic:       "露营",
		Title:       "我的第一次露营",
		Content:     "周末去了山里，风景很好，装备清单如下。",
		ImagePaths:  []string{"a.jpg"},
		AutoPublish: true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, "我的第一次露营", run.Draft.Title)
	h.browser.AssertNumberOfCalls(t, "UploadFiles", 1)

	remaining, err := h.ledger.Remaining(context.Background(), domain.ActionPublish)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestRunPublishRejectsLongTitleBeforeAnyBrowserCall(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	run, err := h.orchestrator(nil, campingTemplate).RunPublish(context.Background(), PublishParams{
		Topic: "露营",
		Title: strings.Repeat("标", 21),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Detail, domain.ErrPrecondition.Error())
	step, _ := run.StepByName(stepValidateContent)
	assert.Equal(t, domain.StepFailed, step.Result.Status)
	assert.Empty(t, h.browser.Calls)
}

func TestRunPublishFailsWhenPublishQuotaExhausted(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.Init(ctx, domain.StrategyProfile{Persona: "p", DailyLimits: map[domain.ActionType]int{domain.ActionPublish: 0}})
	require.NoError(t, err)

	run, err := h.orchestrator(nil, campingTemplate).RunPublish(ctx, PublishParams{Topic: "露营"})
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Detail, "publish not admitted")
	assert.Empty(t, h.browser.Calls)
}

func TestRunPublishRequiresTopic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	run, err := h.orchestrator(nil, campingTemplate).RunPublish(context.Background(), PublishParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, domain.StepPending, run.Steps[0].Result.Status)
}

func TestRunPublishHaltsOnCaptcha(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.browser.On("Navigate", mock.Anything, domain.CreatorPublishURL).Return(captchaSignal(), nil)

	run, err := h.orchestrator(nil, campingTemplate).RunPublish(context.Background(), PublishParams{Topic: "露营"})
	require.NoError(t, err)

	assert.Equal(t, domain.RunHalted, run.Status)
	assert.Contains(t, run.Detail, domain.ErrCaptchaDetected.Error())
	step, _ := run.StepByName(stepPreparePublish)
	assert.Equal(t, domain.StepChallenged, step.Result.Status)
}

func TestRunSurfacesCancellation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := h.orchestrator(feedsN(1), staticTemplates{}).RunExplore(ctx, ExploreParams{Count: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunFailed, run.Status)
}
