package application

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/ports"
)

const DefaultRecordRetention = 7 * 24 * time.Hour

// LimitSource resolves the configured daily limit for an action type.
type LimitSource interface {
	DailyLimit(ctx context.Context, action domain.ActionType) (int, error)
}

// StaticLimits is a LimitSource backed by a fixed map, falling back to the defaults.
type StaticLimits map[domain.ActionType]int

func (l StaticLimits) DailyLimit(_ context.Context, action domain.ActionType) (int, error) {
	if limit, ok := l[action]; ok {
		return limit, nil
	}
	if limit, ok := domain.DefaultDailyLimits[action]; ok {
		return limit, nil
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrUnknownActionType, action)
}

type QuotaLedgerOptions struct {
	EngagementLimit int
	Retention       time.Duration
}

// QuotaLedger owns the per-day counters and the action log. State is loaded
// explicitly and written back after every mutation.
type QuotaLedger struct {
	repo    ports.LedgerRepository
	limits  LimitSource
	clock   ports.Clock
	options QuotaLedgerOptions

	mu     sync.Mutex
	loaded bool
	state  domain.LedgerState
}

func NewQuotaLedger(repo ports.LedgerRepository, limits LimitSource, clock ports.Clock, options QuotaLedgerOptions) *QuotaLedger {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if limits == nil {
		limits = StaticLimits{}
	}
	if options.EngagementLimit <= 0 {
		options.EngagementLimit = domain.DefaultEngagementLimit
	}
	if options.Retention <= 0 {
		options.Retention = DefaultRecordRetention
	}

	return &QuotaLedger{repo: repo, limits: limits, clock: clock, options: options}
}

func (l *QuotaLedger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.loadLocked(ctx)
}

func (l *QuotaLedger) Check(ctx context.Context, action domain.ActionType) (domain.QuotaDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return domain.QuotaDecision{}, err
	}

	return l.decide(ctx, action, l.clock.Now())
}

// Record counts one confirmed success. It refuses to push a window past its limit.
func (l *QuotaLedger) Record(ctx context.Context, action domain.ActionType) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return err
	}

	now := l.clock.Now()
	decision, err := l.decide(ctx, action, now)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, decision.Reason)
	}

	window := l.state.Windows[action]
	window.Count++
	l.state.Windows[action] = window

	return l.saveLocked(ctx)
}

func (l *QuotaLedger) Remaining(ctx context.Context, action domain.ActionType) (int, error) {
	decision, err := l.Check(ctx, action)
	if err != nil {
		return 0, err
	}
	return decision.Remaining, nil
}

// Append adds an attempt to the action log and drops records past retention.
func (l *QuotaLedger) Append(ctx context.Context, record domain.ActionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return err
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = l.clock.Now()
	}
	l.state.Records = append(l.state.Records, record)
	l.pruneLocked(l.clock.Now())

	return l.saveLocked(ctx)
}

func (l *QuotaLedger) Records(ctx context.Context) ([]domain.ActionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	return append([]domain.ActionRecord(nil), l.state.Records...), nil
}

// Usage reports today's usage for every action type in display order.
func (l *QuotaLedger) Usage(ctx context.Context) ([]domain.QuotaUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	usage := make([]domain.QuotaUsage, 0, len(domain.AllActionTypes))
	for _, action := range domain.AllActionTypes {
		window, err := l.windowLocked(ctx, action, now)
		if err != nil {
			return nil, err
		}
		usage = append(usage, domain.QuotaUsage{
			Action:   action,
			Used:     window.Count,
			Limit:    window.Limit,
			ResetsAt: window.ResetsAt(),
		})
	}

	return usage, nil
}

// EngagementUsage reports the combined engagement budget for today.
func (l *QuotaLedger) EngagementUsage(ctx context.Context) (domain.QuotaUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return domain.QuotaUsage{}, err
	}

	now := l.clock.Now()
	used, err := l.engagementTotalLocked(ctx, now)
	if err != nil {
		return domain.QuotaUsage{}, err
	}

	return domain.QuotaUsage{
		Action:   "engagement",
		Used:     used,
		Limit:    l.options.EngagementLimit,
		ResetsAt: domain.QuotaWindow{WindowStart: domain.StartOfDay(now)}.ResetsAt(),
	}, nil
}

func (l *QuotaLedger) decide(ctx context.Context, action domain.ActionType, now time.Time) (domain.QuotaDecision, error) {
	if !action.Valid() {
		return domain.QuotaDecision{}, fmt.Errorf("%w: %q", domain.ErrUnknownActionType, action)
	}

	window, err := l.windowLocked(ctx, action, now)
	if err != nil {
		return domain.QuotaDecision{}, err
	}

	decision := domain.QuotaDecision{
		Action:    action,
		Allowed:   true,
		Used:      window.Count,
		Limit:     window.Limit,
		Remaining: window.Remaining(),
	}
	if window.Count >= window.Limit {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("daily %s limit reached (%d/%d)", action, window.Count, window.Limit)
		return decision, nil
	}

	if !action.Engagement() {
		return decision, nil
	}

	total, err := l.engagementTotalLocked(ctx, now)
	if err != nil {
		return domain.QuotaDecision{}, err
	}
	engagementLeft := l.options.EngagementLimit - total
	if engagementLeft <= 0 {
		decision.Allowed = false
		decision.Remaining = 0
		decision.Reason = fmt.Sprintf("daily engagement total reached (%d/%d)", total, l.options.EngagementLimit)
		return decision, nil
	}
	if engagementLeft < decision.Remaining {
		decision.Remaining = engagementLeft
	}

	return decision, nil
}

// windowLocked returns today's window for action, resetting a stale one in place.
func (l *QuotaLedger) windowLocked(ctx context.Context, action domain.ActionType, now time.Time) (domain.QuotaWindow, error) {
	limit, err := l.limits.DailyLimit(ctx, action)
	if err != nil {
		return domain.QuotaWindow{}, fmt.Errorf("resolve %s limit: %w", action, err)
	}

	window, ok := l.state.Windows[action]
	if !ok || window.Expired(now) {
		window = domain.QuotaWindow{Action: action, WindowStart: domain.StartOfDay(now)}
	}
	window.Limit = limit
	l.state.Windows[action] = window

	return window, nil
}

func (l *QuotaLedger) engagementTotalLocked(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for _, action := range domain.AllActionTypes {
		if !action.Engagement() {
			continue
		}
		window, err := l.windowLocked(ctx, action, now)
		if err != nil {
			return 0, err
		}
		total += window.Count
	}
	return total, nil
}

func (l *QuotaLedger) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.options.Retention)
	kept := make([]domain.ActionRecord, 0, len(l.state.Records))
	for _, record := range l.state.Records {
		if record.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, record)
	}
	l.state.Records = kept
}

func (l *QuotaLedger) ensureLoaded(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	return l.loadLocked(ctx)
}

func (l *QuotaLedger) loadLocked(ctx context.Context) error {
	state, err := l.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load quota ledger: %w", err)
	}
	if state.Windows == nil {
		state.Windows = make(map[domain.ActionType]domain.QuotaWindow)
	}

	l.state = state
	l.loaded = true
	return nil
}

func (l *QuotaLedger) saveLocked(ctx context.Context) error {
	snapshot := domain.LedgerState{
		Windows: maps.Clone(l.state.Windows),
		Records: append([]domain.ActionRecord(nil), l.state.Records...),
	}
	if err := l.repo.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save quota ledger: %w", err)
	}
	return nil
}
