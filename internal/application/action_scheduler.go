package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/logging"
	"github.com/bnema/xhs-pilot/internal/ports"
)

// DefaultRateLimitPhrases are toast texts the platform shows when actions come too fast.
var DefaultRateLimitPhrases = []string{
	"操作太快",
	"发送过快",
	"请稍后再发",
	"too fast",
	"slow down",
	"rate limit",
}

// ExecuteFunc performs one browser operation and reports the resulting page.
type ExecuteFunc func(ctx context.Context) (domain.PageSignal, error)

type ActionSchedulerOptions struct {
	RateLimitPhrases []string
	Logger           *slog.Logger
}

// ActionScheduler is the only path to the platform. Every side effect passes
// through Perform so quota, pacing and challenge detection always apply.
type ActionScheduler struct {
	clock    *ActionClock
	sentinel *CaptchaSentinel
	ledger   *QuotaLedger
	sleeper  ports.Sleeper
	wall     ports.Clock
	phrases  []string
	logger   *slog.Logger

	mu       sync.Mutex
	pressure map[domain.ActionType]int
	attempts int
}

func NewActionScheduler(clock *ActionClock, sentinel *CaptchaSentinel, ledger *QuotaLedger, sleeper ports.Sleeper, wall ports.Clock, options ActionSchedulerOptions) *ActionScheduler {
	if sleeper == nil {
		sleeper = ports.SystemSleeper{}
	}
	if wall == nil {
		wall = ports.SystemClock{}
	}
	phrases := options.RateLimitPhrases
	if phrases == nil {
		phrases = DefaultRateLimitPhrases
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &ActionScheduler{
		clock:    clock,
		sentinel: sentinel,
		ledger:   ledger,
		sleeper:  sleeper,
		wall:     wall,
		phrases:  normalizePhrases(phrases),
		logger:   logger,
		pressure: make(map[domain.ActionType]int),
	}
}

// Perform gates, paces, executes and classifies a single action. Expected results
// (denied, rate limited, challenged, failed) are reported in the Outcome; the error
// is reserved for cancellation and persistence faults.
func (s *ActionScheduler) Perform(ctx context.Context, action domain.ActionType, execute ExecuteFunc) (domain.Outcome, error) {
	decision, err := s.ledger.Check(ctx, action)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("check quota: %w", err)
	}
	if !decision.Allowed {
		s.logger.Info("action denied", "action", action, "reason", decision.Reason)
		return domain.Outcome{
			Kind:     domain.OutcomeDenied,
			Action:   action,
			Decision: decision,
			Cause:    fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, decision.Reason),
		}, nil
	}

	before := s.clock.DelayBefore(action) * time.Duration(s.pressureFor(action))
	if err := s.sleeper.Sleep(ctx, before); err != nil {
		return domain.Outcome{}, err
	}

	signal, execErr := execute(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Outcome{}, ctxErr
	}
	attempts := s.countAttempt()

	outcome := domain.Outcome{Action: action, Signal: signal, Decision: decision}
	switch verdict := s.sentinel.Inspect(signal); {
	case verdict.Challenged():
		outcome.Kind = domain.OutcomeChallenged
		outcome.Cause = &domain.CaptchaError{URL: signal.URL, Reason: verdict.Reason, Attempts: attempts}
		s.logger.Error("verification challenge detected", "action", action, "url", signal.URL, "reason", verdict.Reason)
	case execErr != nil:
		outcome.Kind = domain.OutcomeFailed
		outcome.Cause = fmt.Errorf("%w: %w", domain.ErrTransientAction, execErr)
		s.logger.Warn("action failed", "action", action, "error", execErr)
	default:
		if phrase, ok := containsAnyMarker(signal, s.phrases); ok {
			outcome.Kind = domain.OutcomeRateLimited
			outcome.Cause = fmt.Errorf("%w: page shows %q", domain.ErrRateLimited, phrase)
			level := s.raisePressure(action)
			s.logger.Warn("action rate limited", "action", action, "phrase", phrase, "pressure", level)
		} else {
			outcome.Kind = domain.OutcomeSuccess
		}
	}

	if err := s.appendRecord(ctx, outcome); err != nil {
		return outcome, err
	}

	if !outcome.Succeeded() {
		return outcome, nil
	}

	if err := s.ledger.Record(ctx, action); err != nil {
		if !errors.Is(err, domain.ErrQuotaExceeded) {
			return outcome, fmt.Errorf("record quota: %w", err)
		}
		// limit was lowered while the action ran
		s.logger.Warn("quota not recorded", "action", action, "error", err)
	}
	s.resetPressure(action)
	s.logger.Debug("action succeeded", "action", action, "url", signal.URL)

	after := s.clock.DelayAfter(action)
	if cooldown, ok := s.clock.NoteAction(action); ok {
		s.logger.Info("burst cooldown", "action", action, "class", action.Class(), "cooldown", cooldown)
		after += cooldown
	}
	if err := s.sleeper.Sleep(ctx, after); err != nil {
		return outcome, err
	}

	return outcome, nil
}

// Wait sleeps through the injected sleeper, for callers that need an extra pause.
func (s *ActionScheduler) Wait(ctx context.Context, d time.Duration) error {
	return s.sleeper.Sleep(ctx, d)
}

func (s *ActionScheduler) Clock() *ActionClock {
	return s.clock
}

// Pressure is the current multiplier applied to the pre-action delay.
func (s *ActionScheduler) Pressure(action domain.ActionType) int {
	return s.pressureFor(action)
}

func (s *ActionScheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *ActionScheduler) appendRecord(ctx context.Context, outcome domain.Outcome) error {
	kind, ok := outcome.RecordOutcome()
	if !ok {
		return nil
	}

	record := domain.ActionRecord{
		Action:    outcome.Action,
		Timestamp: s.wall.Now(),
		Outcome:   kind,
	}
	if outcome.Cause != nil {
		record.Detail = outcome.Cause.Error()
	}
	if err := s.ledger.Append(ctx, record); err != nil {
		return fmt.Errorf("append action record: %w", err)
	}
	return nil
}

func (s *ActionScheduler) countAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *ActionScheduler) pressureFor(action domain.ActionType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level := s.pressure[action]; level > 1 {
		return level
	}
	return 1
}

func (s *ActionScheduler) raisePressure(action domain.ActionType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := s.pressure[action]
	if level < 1 {
		level = 1
	}
	level *= 2
	if maxLevel := s.clock.Profile().MaxPressure; level > maxLevel {
		level = maxLevel
	}
	s.pressure[action] = level
	return level
}

func (s *ActionScheduler) resetPressure(action domain.ActionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pressure, action)
}
