package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/xhs-pilot/internal/domain"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// constRandom returns the same draw every time.
type constRandom float64

func (r constRandom) Float64() float64 {
	return float64(r)
}

// seqRandom replays draws in order and repeats the last one.
type seqRandom struct {
	draws []float64
	i     int
}

func (r *seqRandom) Float64() float64 {
	if r.i >= len(r.draws) {
		return r.draws[len(r.draws)-1]
	}
	f := r.draws[r.i]
	r.i++
	return f
}

type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.slept {
		sum += d
	}
	return sum
}

type memoryLedgerRepo struct {
	state domain.LedgerState
	saves int
	err   error
}

func (r *memoryLedgerRepo) Load(_ context.Context) (domain.LedgerState, error) {
	return r.state, r.err
}

func (r *memoryLedgerRepo) Save(_ context.Context, state domain.LedgerState) error {
	if r.err != nil {
		return r.err
	}
	r.state = state
	r.saves++
	return nil
}

type memoryStrategyRepo struct {
	profile domain.StrategyProfile
	saves   int
}

func (r *memoryStrategyRepo) Load(_ context.Context) (domain.StrategyProfile, error) {
	return r.profile, nil
}

func (r *memoryStrategyRepo) Save(_ context.Context, profile domain.StrategyProfile) error {
	r.profile = profile
	r.saves++
	return nil
}

type mockBrowser struct {
	mock.Mock
}

func (m *mockBrowser) Navigate(ctx context.Context, url string) (domain.PageSignal, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(domain.PageSignal), args.Error(1)
}

func (m *mockBrowser) Click(ctx context.Context, selector string) (domain.PageSignal, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(domain.PageSignal), args.Error(1)
}

func (m *mockBrowser) TypeText(ctx context.Context, selector string, text string, perRune time.Duration) (domain.PageSignal, error) {
	args := m.Called(ctx, selector, text, perRune)
	return args.Get(0).(domain.PageSignal), args.Error(1)
}

func (m *mockBrowser) Submit(ctx context.Context, selector string) (domain.PageSignal, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(domain.PageSignal), args.Error(1)
}

func (m *mockBrowser) UploadFiles(ctx context.Context, selector string, paths []string) (domain.PageSignal, error) {
	args := m.Called(ctx, selector, paths)
	return args.Get(0).(domain.PageSignal), args.Error(1)
}

func (m *mockBrowser) InteractState(ctx context.Context, feedID string) (domain.InteractState, error) {
	args := m.Called(ctx, feedID)
	return args.Get(0).(domain.InteractState), args.Error(1)
}

// notEngaged makes every note read as neither liked nor collected.
func notEngaged(b *mockBrowser) {
	b.On("InteractState", mock.Anything, mock.Anything).Return(domain.InteractState{}, nil)
}

type staticFeeds []domain.FeedRef

func (f staticFeeds) Feeds(_ context.Context, limit int) ([]domain.FeedRef, error) {
	if limit < len(f) {
		return f[:limit], nil
	}
	return f, nil
}

type staticTemplates struct {
	template domain.Template
	err      error
}

func (s staticTemplates) Generate(_ context.Context, _ string, _ domain.NoteType) (domain.Template, error) {
	return s.template, s.err
}

type harness struct {
	clock        *fixedClock
	sleeper      *recordingSleeper
	ledgerRepo   *memoryLedgerRepo
	strategyRepo *memoryStrategyRepo
	store        *StrategyStore
	ledger       *QuotaLedger
	actionClock  *ActionClock
	scheduler    *ActionScheduler
	browser      *mockBrowser
	actions      *Actions
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:        &fixedClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		sleeper:      &recordingSleeper{},
		ledgerRepo:   &memoryLedgerRepo{},
		strategyRepo: &memoryStrategyRepo{},
		browser:      &mockBrowser{},
	}
	h.store = NewStrategyStore(h.strategyRepo, h.clock, nil)
	h.ledger = NewQuotaLedger(h.ledgerRepo, h.store, h.clock, QuotaLedgerOptions{})
	h.actionClock = NewActionClock(DefaultPacingProfile(), constRandom(0.5))

	sentinel, err := NewCaptchaSentinel(CaptchaPatterns{})
	require.NoError(t, err)

	h.scheduler = NewActionScheduler(h.actionClock, sentinel, h.ledger, h.sleeper, h.clock, ActionSchedulerOptions{})
	h.actions = NewActions(h.browser, h.scheduler)
	return h
}

func (h *harness) orchestrator(feeds staticFeeds, templates staticTemplates) *SOPOrchestrator {
	id := 0
	return NewSOPOrchestrator(h.actions, h.scheduler, h.ledger, feeds, templates, h.clock, SOPOrchestratorOptions{
		BrowseDwell: Range{Min: 5 * time.Second, Max: 10 * time.Second},
		NewID: func() string {
			id++
			return "run-" + string(rune('0'+id))
		},
	})
}

func okSignal(url string) domain.PageSignal {
	return domain.PageSignal{URL: url, Title: "小红书"}
}

func captchaSignal() domain.PageSignal {
	return domain.PageSignal{URL: "https://www.xiaohongshu.com/website-login/captcha?redirectPath=explore", Title: "安全验证"}
}
