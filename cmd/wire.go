package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/xhs-pilot/internal/adapters/browser"
	quotaview "github.com/bnema/xhs-pilot/internal/adapters/render/quota"
	tomlrepo "github.com/bnema/xhs-pilot/internal/adapters/repo/toml"
	sessionchain "github.com/bnema/xhs-pilot/internal/adapters/session/chain"
	sessionfile "github.com/bnema/xhs-pilot/internal/adapters/session/file"
	sessionpass "github.com/bnema/xhs-pilot/internal/adapters/session/pass"
	"github.com/bnema/xhs-pilot/internal/adapters/templates"
	"github.com/bnema/xhs-pilot/internal/application"
	"github.com/bnema/xhs-pilot/internal/config"
	"github.com/bnema/xhs-pilot/internal/logging"
	"github.com/bnema/xhs-pilot/internal/ports"
)

// browserSession is what a command needs from a live browser.
type browserSession interface {
	ports.Browser
	ports.FeedSource
	Close(ctx context.Context) error
}

type app struct {
	cfg           config.Config
	logger        *slog.Logger
	clock         ports.Clock
	sleeper       ports.Sleeper
	ledger        *application.QuotaLedger
	strategy      *application.StrategyStore
	sessions      sessionchain.Backend
	openBrowser   func(ctx context.Context) (browserSession, error)
	newRandom     func(seed uint64) ports.Random
	quotaRenderer func(quotaview.Report, quotaview.RenderOptions) (string, error)
	now           func() time.Time
}

// engine is the per-command action stack bound to one browser.
type engine struct {
	actions      *application.Actions
	scheduler    *application.ActionScheduler
	orchestrator *application.SOPOrchestrator
}

func wireApp() (*app, error) {
	v := config.New()
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	logger := logging.New(os.Stderr, cfg.Log.Level)
	clock := ports.SystemClock{}

	ledgerRepo, err := tomlrepo.NewLedgerRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire ledger repository: %w", err)
	}
	strategyRepo, err := tomlrepo.NewStrategyRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire strategy repository: %w", err)
	}

	defaults, err := cfg.DailyLimits()
	if err != nil {
		return nil, err
	}
	strategy := application.NewStrategyStore(strategyRepo, clock, defaults)
	ledger := application.NewQuotaLedger(ledgerRepo, strategy, clock, cfg.LedgerOptions())

	sessions, err := newSessionStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire session store: %w", err)
	}

	a := &app{
		cfg:           cfg,
		logger:        logger,
		clock:         clock,
		sleeper:       ports.SystemSleeper{},
		ledger:        ledger,
		strategy:      strategy,
		sessions:      sessions,
		newRandom:     newSeededRandom,
		quotaRenderer: quotaview.Render,
		now:           time.Now,
	}
	a.openBrowser = func(ctx context.Context) (browserSession, error) {
		session, err := browser.Start(ctx, sessions, browser.Options{
			Headless: cfg.Browser.Headless,
			Timeout:  cfg.Browser.Timeout,
			Install:  cfg.Browser.Install,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	return a, nil
}

// newEngine wires pacing, challenge detection and the orchestrator around b. A zero
// seed draws from the wall clock. onStep, when set, sees every finished workflow step.
func (a *app) newEngine(b browserSession, seed uint64, onStep stepReporter) (*engine, error) {
	random := a.newRandom(seed)

	sentinel, err := application.NewCaptchaSentinel(application.CaptchaPatterns{
		Titles:  a.cfg.Captcha.TitlePatterns,
		Markers: a.cfg.Captcha.Markers,
		URLs:    a.cfg.Captcha.URLPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("wire captcha sentinel: %w", err)
	}

	actionClock := application.NewActionClock(a.cfg.PacingProfile(), random)
	scheduler := application.NewActionScheduler(actionClock, sentinel, a.ledger, a.sleeper, a.clock, application.ActionSchedulerOptions{
		RateLimitPhrases: a.cfg.Captcha.RateLimitPhrases,
		Logger:           a.logger,
	})
	actions := application.NewActions(b, scheduler)
	orchestrator := application.NewSOPOrchestrator(actions, scheduler, a.ledger, b, templates.NewStatic(random), a.clock, application.SOPOrchestratorOptions{
		BrowseDwell: a.cfg.BrowseDwell(),
		Logger:      a.logger,
		OnStep:      onStep,
	})

	return &engine{actions: actions, scheduler: scheduler, orchestrator: orchestrator}, nil
}

// withBrowser opens a browser for the duration of fn and always closes it, which
// also writes the session cookies back.
func (a *app) withBrowser(ctx context.Context, fn func(browserSession) error) error {
	b, err := a.openBrowser(ctx)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}

	runErr := fn(b)
	// Close with a fresh context so cookies are saved after a cancellation.
	if closeErr := b.Close(context.WithoutCancel(ctx)); closeErr != nil {
		a.logger.Warn("close browser", "error", closeErr)
	}
	return runErr
}

func newSessionStore(cfg config.Config) (sessionchain.Backend, error) {
	files := sessionfile.NewStore(filepath.Join(cfg.State.Dir, "session"))
	if cfg.Session.Backend != config.SessionBackendPass {
		return files, nil
	}
	store, err := sessionchain.NewStore(sessionpass.NewStore(cfg.Session.PassPrefix), files)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newSeededRandom(seed uint64) ports.Random {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
