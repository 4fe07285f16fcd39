// Package config loads xhs.toml and XHS_* environment overrides into a closed,
// validated Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/xhs-pilot/internal/application"
	"github.com/bnema/xhs-pilot/internal/domain"
)

const (
	configName    = "xhs"
	configType    = "toml"
	configPathEnv = "XHS_CONFIG"
	envPrefix     = "XHS"
)

type Config struct {
	State   StateConfig   `mapstructure:"state"`
	Log     LogConfig     `mapstructure:"log"`
	Browser BrowserConfig `mapstructure:"browser"`
	Session SessionConfig `mapstructure:"session"`
	Pacing  PacingConfig  `mapstructure:"pacing"`
	Quota   QuotaConfig   `mapstructure:"quota"`
	Captcha CaptchaConfig `mapstructure:"captcha"`
	Explore ExploreConfig `mapstructure:"explore"`
}

type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type BrowserConfig struct {
	Headless bool          `mapstructure:"headless"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Install  bool          `mapstructure:"install"`
}

const (
	SessionBackendFile = "file"
	SessionBackendPass = "pass"
)

// SessionConfig selects where login cookies live. The pass backend falls back to
// the state directory when pass is missing or fails.
type SessionConfig struct {
	Backend    string `mapstructure:"backend"`
	PassPrefix string `mapstructure:"pass_prefix"`
}

// RangeConfig is a delay interval written as durations, e.g. min = "3s".
type RangeConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

type BurstConfig struct {
	Every    int         `mapstructure:"every"`
	Cooldown RangeConfig `mapstructure:"cooldown"`
}

type PacingConfig struct {
	NavigationBefore  RangeConfig `mapstructure:"navigation_before"`
	NavigationAfter   RangeConfig `mapstructure:"navigation_after"`
	InputBefore       RangeConfig `mapstructure:"input_before"`
	InputAfter        RangeConfig `mapstructure:"input_after"`
	InteractionBefore RangeConfig `mapstructure:"interaction_before"`
	InteractionAfter  RangeConfig `mapstructure:"interaction_after"`
	Keystroke         RangeConfig `mapstructure:"keystroke"`
	Retry             RangeConfig `mapstructure:"retry"`
	NavigationBurst   BurstConfig `mapstructure:"navigation_burst"`
	InteractionBurst  BurstConfig `mapstructure:"interaction_burst"`
	MaxPressure       int         `mapstructure:"max_pressure"`
}

type QuotaConfig struct {
	EngagementLimit int            `mapstructure:"engagement_limit"`
	RetentionDays   int            `mapstructure:"retention_days"`
	Limits          map[string]int `mapstructure:"limits"`
}

type CaptchaConfig struct {
	TitlePatterns    []string `mapstructure:"title_patterns"`
	Markers          []string `mapstructure:"markers"`
	URLPatterns      []string `mapstructure:"url_patterns"`
	RateLimitPhrases []string `mapstructure:"rate_limit_phrases"`
}

type ExploreConfig struct {
	Dwell RangeConfig `mapstructure:"dwell"`
}

// New returns a viper instance reading xhs.toml from the working directory, or
// the file named by $XHS_CONFIG, with every key defaulted.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	if path := os.Getenv(configPathEnv); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state.dir", ".xhs")
	v.SetDefault("log.level", "info")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", 60*time.Second)
	v.SetDefault("browser.install", false)
	v.SetDefault("session.backend", SessionBackendFile)
	v.SetDefault("session.pass_prefix", "xhs-pilot")

	pacing := application.DefaultPacingProfile()
	setRange(v, "pacing.navigation_before", pacing.NavigationBefore)
	setRange(v, "pacing.navigation_after", pacing.NavigationAfter)
	setRange(v, "pacing.input_before", pacing.InputBefore)
	setRange(v, "pacing.input_after", pacing.InputAfter)
	setRange(v, "pacing.interaction_before", pacing.InteractionBefore)
	setRange(v, "pacing.interaction_after", pacing.InteractionAfter)
	setRange(v, "pacing.keystroke", pacing.Keystroke)
	setRange(v, "pacing.retry", pacing.Retry)
	v.SetDefault("pacing.navigation_burst.every", pacing.NavigationBurst.Every)
	setRange(v, "pacing.navigation_burst.cooldown", pacing.NavigationBurst.Cooldown)
	v.SetDefault("pacing.interaction_burst.every", pacing.InteractionBurst.Every)
	setRange(v, "pacing.interaction_burst.cooldown", pacing.InteractionBurst.Cooldown)
	v.SetDefault("pacing.max_pressure", pacing.MaxPressure)

	v.SetDefault("quota.engagement_limit", domain.DefaultEngagementLimit)
	v.SetDefault("quota.retention_days", int(application.DefaultRecordRetention/(24*time.Hour)))
	v.SetDefault("quota.limits", map[string]int{})

	v.SetDefault("captcha.title_patterns", application.DefaultCaptchaTitlePatterns)
	v.SetDefault("captcha.markers", application.DefaultCaptchaMarkers)
	v.SetDefault("captcha.url_patterns", application.DefaultCaptchaURLPatterns)
	v.SetDefault("captcha.rate_limit_phrases", application.DefaultRateLimitPhrases)

	setRange(v, "explore.dwell", application.Range{Min: 5 * time.Second, Max: 10 * time.Second})
}

func setRange(v *viper.Viper, key string, r application.Range) {
	v.SetDefault(key+".min", r.Min)
	v.SetDefault(key+".max", r.Max)
}

// Load reads the config file if there is one and decodes the result.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = New()
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.State.Dir) == "" {
		return errors.New("config: state.dir is empty")
	}
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("config: browser.timeout must be positive, got %s", c.Browser.Timeout)
	}
	switch c.Session.Backend {
	case SessionBackendFile, SessionBackendPass:
	default:
		return fmt.Errorf("config: session.backend must be %s or %s, got %q", SessionBackendFile, SessionBackendPass, c.Session.Backend)
	}
	if err := c.PacingProfile().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Explore.Dwell.toRange().Validate(); err != nil {
		return fmt.Errorf("config: explore dwell: %w", err)
	}
	if c.Quota.EngagementLimit < 0 {
		return fmt.Errorf("config: quota.engagement_limit must not be negative, got %d", c.Quota.EngagementLimit)
	}
	if c.Quota.RetentionDays < 1 {
		return fmt.Errorf("config: quota.retention_days must be at least 1, got %d", c.Quota.RetentionDays)
	}
	if _, err := c.DailyLimits(); err != nil {
		return err
	}

	return nil
}

func (c Config) PacingProfile() application.PacingProfile {
	p := c.Pacing
	return application.PacingProfile{
		NavigationBefore:  p.NavigationBefore.toRange(),
		NavigationAfter:   p.NavigationAfter.toRange(),
		InputBefore:       p.InputBefore.toRange(),
		InputAfter:        p.InputAfter.toRange(),
		InteractionBefore: p.InteractionBefore.toRange(),
		InteractionAfter:  p.InteractionAfter.toRange(),
		Keystroke:         p.Keystroke.toRange(),
		Retry:             p.Retry.toRange(),
		NavigationBurst:   application.Burst{Every: p.NavigationBurst.Every, Cooldown: p.NavigationBurst.Cooldown.toRange()},
		InteractionBurst:  application.Burst{Every: p.InteractionBurst.Every, Cooldown: p.InteractionBurst.Cooldown.toRange()},
		MaxPressure:       p.MaxPressure,
	}
}

// DailyLimits returns the configured per-type limit overrides.
func (c Config) DailyLimits() (map[domain.ActionType]int, error) {
	limits := make(map[domain.ActionType]int, len(c.Quota.Limits))
	for raw, limit := range c.Quota.Limits {
		action, err := domain.ParseActionType(raw)
		if err != nil {
			return nil, fmt.Errorf("config: quota.limits: %w", err)
		}
		if limit < 0 {
			return nil, fmt.Errorf("config: quota.limits.%s must not be negative, got %d", raw, limit)
		}
		limits[action] = limit
	}
	return limits, nil
}

func (c Config) LedgerOptions() application.QuotaLedgerOptions {
	return application.QuotaLedgerOptions{
		EngagementLimit: c.Quota.EngagementLimit,
		Retention:       time.Duration(c.Quota.RetentionDays) * 24 * time.Hour,
	}
}

func (c Config) BrowseDwell() application.Range {
	return c.Explore.Dwell.toRange()
}

func (r RangeConfig) toRange() application.Range {
	return application.Range{Min: r.Min, Max: r.Max}
}
