package application

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/bnema/xhs-pilot/internal/domain"
)

// DefaultCaptchaTitlePatterns match the document title of a verification page.
// Titles are user content on note pages, so only verification page names belong here.
var DefaultCaptchaTitlePatterns = []string{
	"安全验证",
	"验证码",
	"captcha",
	"security verification",
}

// DefaultCaptchaMarkers match toast, alert and verification widget text.
var DefaultCaptchaMarkers = []string{
	"安全验证",
	"验证码",
	"频繁",
	"稍后再试",
	"security verification",
	"captcha",
	"frequent operation",
	"try again later",
}

var DefaultCaptchaURLPatterns = []string{
	"*captcha*",
	"*security-verification*",
	"*website-login/captcha*",
	"*verifytype=*",
	"*verifybiz=*",
}

// CaptchaPatterns configures a CaptchaSentinel. A nil field uses its default.
type CaptchaPatterns struct {
	Titles  []string
	Markers []string
	URLs    []string
}

// CaptchaSentinel classifies a page as challenged when it landed on a verification
// path, carries a verification page title, or shows a verification phrase in a
// toast or alert. It never attempts recovery.
type CaptchaSentinel struct {
	titles   []string
	markers  []string
	patterns []compiledPattern
}

type compiledPattern struct {
	raw string
	g   glob.Glob
}

func NewCaptchaSentinel(patterns CaptchaPatterns) (*CaptchaSentinel, error) {
	if patterns.Titles == nil {
		patterns.Titles = DefaultCaptchaTitlePatterns
	}
	if patterns.Markers == nil {
		patterns.Markers = DefaultCaptchaMarkers
	}
	if patterns.URLs == nil {
		patterns.URLs = DefaultCaptchaURLPatterns
	}

	s := &CaptchaSentinel{
		titles:  normalizePhrases(patterns.Titles),
		markers: normalizePhrases(patterns.Markers),
	}
	for _, raw := range patterns.URLs {
		g, err := glob.Compile(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("compile captcha url pattern %q: %w", raw, err)
		}
		s.patterns = append(s.patterns, compiledPattern{raw: raw, g: g})
	}

	return s, nil
}

func (s *CaptchaSentinel) Inspect(signal domain.PageSignal) domain.Verdict {
	url := strings.ToLower(signal.URL)
	for _, p := range s.patterns {
		if url != "" && p.g.Match(url) {
			return domain.Verdict{Kind: domain.VerdictChallenged, Reason: fmt.Sprintf("redirected to verification page (%s)", p.raw)}
		}
	}

	if title, ok := containsAny(signal.Title, s.titles); ok {
		return domain.Verdict{Kind: domain.VerdictChallenged, Reason: fmt.Sprintf("verification page title %q", title)}
	}

	if marker, ok := containsAnyMarker(signal, s.markers); ok {
		return domain.Verdict{Kind: domain.VerdictChallenged, Reason: fmt.Sprintf("page shows %q", marker)}
	}

	return domain.Verdict{Kind: domain.VerdictClear}
}

// normalizePhrases lower-cases phrases and drops blanks.
func normalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		out = append(out, phrase)
	}
	return out
}

// containsAnyMarker checks the toast and alert texts only. The title is left out
// because note titles routinely contain words like 频繁.
func containsAnyMarker(signal domain.PageSignal, phrases []string) (string, bool) {
	for _, text := range signal.TextMarkers {
		if phrase, ok := containsAny(text, phrases); ok {
			return phrase, true
		}
	}
	return "", false
}

// containsAny reports the first lower-cased phrase found in text.
func containsAny(text string, phrases []string) (string, bool) {
	lowered := strings.ToLower(text)
	if lowered == "" {
		return "", false
	}
	for _, phrase := range phrases {
		if strings.Contains(lowered, phrase) {
			return phrase, true
		}
	}
	return "", false
}
