package application

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/ports"
)

// Range is an inclusive delay interval. Min == Max yields a fixed delay.
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) Validate() error {
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("invalid delay range %s-%s", r.Min, r.Max)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Min, r.Max)
}

// Burst forces a cooldown after Every actions of the same class. Every == 0 disables it.
type Burst struct {
	Every    int
	Cooldown Range
}

type PacingProfile struct {
	NavigationBefore  Range
	NavigationAfter   Range
	InputBefore       Range
	InputAfter        Range
	InteractionBefore Range
	InteractionAfter  Range
	Keystroke         Range
	Retry             Range
	NavigationBurst   Burst
	InteractionBurst  Burst
	MaxPressure       int
}

func DefaultPacingProfile() PacingProfile {
	return PacingProfile{
		NavigationBefore:  Range{Min: 3 * time.Second, Max: 6 * time.Second},
		NavigationAfter:   Range{Min: 1500 * time.Millisecond, Max: 3 * time.Second},
		InputBefore:       Range{Min: time.Second, Max: 2500 * time.Millisecond},
		InputAfter:        Range{Min: 5 * time.Second, Max: 12 * time.Second},
		InteractionBefore: Range{Min: time.Second, Max: 2500 * time.Millisecond},
		InteractionAfter:  Range{Min: 5 * time.Second, Max: 12 * time.Second},
		Keystroke:         Range{Min: 20 * time.Millisecond, Max: 60 * time.Millisecond},
		Retry:             Range{Min: 2 * time.Second, Max: 4 * time.Second},
		NavigationBurst:   Burst{Every: 5, Cooldown: Range{Min: 10 * time.Second, Max: 10 * time.Second}},
		InteractionBurst:  Burst{Every: 3, Cooldown: Range{Min: 15 * time.Second, Max: 30 * time.Second}},
		MaxPressure:       4,
	}
}

func (p PacingProfile) Validate() error {
	ranges := map[string]Range{
		"navigation before":    p.NavigationBefore,
		"navigation after":     p.NavigationAfter,
		"input before":         p.InputBefore,
		"input after":          p.InputAfter,
		"interaction before":   p.InteractionBefore,
		"interaction after":    p.InteractionAfter,
		"keystroke":            p.Keystroke,
		"retry":                p.Retry,
		"navigation cooldown":  p.NavigationBurst.Cooldown,
		"interaction cooldown": p.InteractionBurst.Cooldown,
	}
	for name, r := range ranges {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("pacing %s: %w", name, err)
		}
	}
	if p.NavigationBurst.Every < 0 || p.InteractionBurst.Every < 0 {
		return fmt.Errorf("pacing burst size must not be negative")
	}
	if p.MaxPressure < 1 {
		return fmt.Errorf("pacing max pressure must be at least 1, got %d", p.MaxPressure)
	}
	return nil
}

// ActionClock samples human-like delays and counts actions per class so bursts
// are followed by a longer pause. It performs no I/O; callers sleep.
type ActionClock struct {
	profile PacingProfile
	random  ports.Random

	mu     sync.Mutex
	counts map[domain.ActionClass]int
}

func NewActionClock(profile PacingProfile, random ports.Random) *ActionClock {
	if random == nil {
		random = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}

	return &ActionClock{
		profile: profile,
		random:  random,
		counts:  make(map[domain.ActionClass]int),
	}
}

func (c *ActionClock) Profile() PacingProfile {
	return c.profile
}

func (c *ActionClock) DelayBefore(action domain.ActionType) time.Duration {
	switch action.Class() {
	case domain.ClassNavigation:
		return c.Sample(c.profile.NavigationBefore)
	case domain.ClassInput:
		return c.Sample(c.profile.InputBefore)
	default:
		return c.Sample(c.profile.InteractionBefore)
	}
}

func (c *ActionClock) DelayAfter(action domain.ActionType) time.Duration {
	switch action.Class() {
	case domain.ClassNavigation:
		return c.Sample(c.profile.NavigationAfter)
	case domain.ClassInput:
		return c.Sample(c.profile.InputAfter)
	default:
		return c.Sample(c.profile.InteractionAfter)
	}
}

// NoteAction counts a completed action. When the class counter reaches its burst
// size the counter resets and the cooldown to add is returned with true.
func (c *ActionClock) NoteAction(action domain.ActionType) (time.Duration, bool) {
	class := action.Class()
	burst := c.burstFor(class)
	if burst.Every == 0 {
		return 0, false
	}

	c.mu.Lock()
	c.counts[class]++
	triggered := c.counts[class] >= burst.Every
	if triggered {
		c.counts[class] = 0
	}
	c.mu.Unlock()

	if !triggered {
		return 0, false
	}
	return c.Sample(burst.Cooldown), true
}

func (c *ActionClock) KeystrokeDelay() time.Duration {
	return c.Sample(c.profile.Keystroke)
}

// TypingDuration is the total time spent entering text one rune at a time.
func (c *ActionClock) TypingDuration(text string) time.Duration {
	return c.KeystrokeDelay() * time.Duration(utf8.RuneCountInString(text))
}

func (c *ActionClock) RetryDelay() time.Duration {
	return c.Sample(c.profile.Retry)
}

// Chance reports true with probability p. p >= 1 always fires, p <= 0 never does.
func (c *ActionClock) Chance(p float64) bool {
	c.mu.Lock()
	f := c.random.Float64()
	c.mu.Unlock()

	return f < p
}

// Sample draws uniformly from r.
func (c *ActionClock) Sample(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}

	c.mu.Lock()
	f := c.random.Float64()
	c.mu.Unlock()

	return r.Min + time.Duration(f*float64(r.Max-r.Min))
}

func (c *ActionClock) burstFor(class domain.ActionClass) Burst {
	switch class {
	case domain.ClassNavigation:
		return c.profile.NavigationBurst
	case domain.ClassInteraction:
		return c.profile.InteractionBurst
	default:
		return Burst{}
	}
}
