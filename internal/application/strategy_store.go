package application

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/ports"
)

const calendarStatusPlanned = "planned"

// StrategyStore owns the single operator profile. It also serves daily limits to
// the quota ledger: profile overrides first, then configured defaults.
type StrategyStore struct {
	repo     ports.StrategyRepository
	clock    ports.Clock
	defaults map[domain.ActionType]int

	mu sync.Mutex
}

var _ LimitSource = (*StrategyStore)(nil)

func NewStrategyStore(repo ports.StrategyRepository, clock ports.Clock, defaults map[domain.ActionType]int) *StrategyStore {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	merged := maps.Clone(domain.DefaultDailyLimits)
	maps.Copy(merged, defaults)

	return &StrategyStore{repo: repo, clock: clock, defaults: merged}
}

// Init writes the persona fields, overwriting any previous ones. The content
// calendar and limit overrides of an existing profile are kept.
func (s *StrategyStore) Init(ctx context.Context, profile domain.StrategyProfile) (domain.StrategyProfile, error) {
	if err := profile.Validate(); err != nil {
		return domain.StrategyProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Load(ctx)
	if err != nil {
		return domain.StrategyProfile{}, fmt.Errorf("load strategy: %w", err)
	}

	now := s.clock.Now()
	next := current
	next.Persona = strings.TrimSpace(profile.Persona)
	next.Audience = strings.TrimSpace(profile.Audience)
	next.ContentDirections = slices.Clone(profile.ContentDirections)
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now

	if next.DailyLimits == nil {
		next.DailyLimits = make(map[domain.ActionType]int)
	}
	maps.Copy(next.DailyLimits, profile.DailyLimits)

	if len(profile.BestPublishTimes) > 0 {
		next.BestPublishTimes = slices.Clone(profile.BestPublishTimes)
	} else if len(next.BestPublishTimes) == 0 {
		next.BestPublishTimes = slices.Clone(domain.DefaultBestPublishTimes)
	}
	if len(profile.RedLines) > 0 {
		next.RedLines = slices.Clone(profile.RedLines)
	} else if len(next.RedLines) == 0 {
		next.RedLines = slices.Clone(domain.DefaultRedLines)
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return domain.StrategyProfile{}, fmt.Errorf("save strategy: %w", err)
	}

	return next, nil
}

func (s *StrategyStore) Get(ctx context.Context) (domain.StrategyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getLocked(ctx)
}

// AddPost appends to the calendar in insertion order. Dates are not checked for
// ordering or duplicates.
func (s *StrategyStore) AddPost(ctx context.Context, entry domain.CalendarEntry) (domain.StrategyProfile, error) {
	if strings.TrimSpace(entry.Date) == "" || strings.TrimSpace(entry.Topic) == "" {
		return domain.StrategyProfile{}, fmt.Errorf("%w: calendar entry needs a date and a topic", domain.ErrPrecondition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.getLocked(ctx)
	if err != nil {
		return domain.StrategyProfile{}, err
	}

	now := s.clock.Now()
	if entry.NoteType == "" {
		entry.NoteType = domain.NoteTypeImage
	}
	if entry.Status == "" {
		entry.Status = calendarStatusPlanned
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	profile.ContentCalendar = append(profile.ContentCalendar, entry)
	profile.UpdatedAt = now

	if err := s.repo.Save(ctx, profile); err != nil {
		return domain.StrategyProfile{}, fmt.Errorf("save strategy: %w", err)
	}

	return profile, nil
}

// SetLimit overrides the daily limit for one action type on the profile.
func (s *StrategyStore) SetLimit(ctx context.Context, action domain.ActionType, limit int) (domain.StrategyProfile, error) {
	if !action.Valid() {
		return domain.StrategyProfile{}, fmt.Errorf("%w: %q", domain.ErrUnknownActionType, action)
	}
	if limit < 0 {
		return domain.StrategyProfile{}, fmt.Errorf("%w: limit must not be negative", domain.ErrPrecondition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.getLocked(ctx)
	if err != nil {
		return domain.StrategyProfile{}, err
	}

	if profile.DailyLimits == nil {
		profile.DailyLimits = make(map[domain.ActionType]int)
	}
	profile.DailyLimits[action] = limit
	profile.UpdatedAt = s.clock.Now()

	if err := s.repo.Save(ctx, profile); err != nil {
		return domain.StrategyProfile{}, fmt.Errorf("save strategy: %w", err)
	}

	return profile, nil
}

// DailyLimit never fails on an uninitialized store; it falls back to defaults.
func (s *StrategyStore) DailyLimit(ctx context.Context, action domain.ActionType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.repo.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load strategy: %w", err)
	}

	if limit, ok := profile.DailyLimits[action]; ok {
		return limit, nil
	}
	if limit, ok := s.defaults[action]; ok {
		return limit, nil
	}

	return 0, fmt.Errorf("%w: %q", domain.ErrUnknownActionType, action)
}

func (s *StrategyStore) Upcoming(ctx context.Context, days int) ([]domain.CalendarEntry, error) {
	profile, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if days < 0 {
		days = 0
	}

	return profile.Upcoming(s.clock.Now(), days), nil
}

func (s *StrategyStore) getLocked(ctx context.Context) (domain.StrategyProfile, error) {
	profile, err := s.repo.Load(ctx)
	if err != nil {
		return domain.StrategyProfile{}, fmt.Errorf("load strategy: %w", err)
	}
	if !profile.Initialized() {
		return domain.StrategyProfile{}, domain.ErrStrategyNotInitialized
	}

	return profile, nil
}
