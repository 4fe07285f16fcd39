package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bnema/xhs-pilot/internal/domain"
)

// markerSelectors are the page elements whose text is surfaced as markers: toasts,
// inline alerts and verification dialogs.
var markerSelectors = []string{
	".toast",
	".d-toast",
	".reds-toast",
	"[class*='toast']",
	"[role='alert']",
	".captcha-container",
	".verify-container",
	".red-captcha-title",
}

const maxMarkerLength = 200

// signalFromHTML reduces a rendered page to what the sentinel and the scheduler look at.
func signalFromHTML(url string, title string, html string) (domain.PageSignal, error) {
	signal := domain.PageSignal{URL: url, Title: strings.TrimSpace(title)}
	if html == "" {
		return signal, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return signal, fmt.Errorf("parse page html: %w", err)
	}

	if signal.Title == "" {
		signal.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	seen := make(map[string]struct{})
	doc.Find(strings.Join(markerSelectors, ", ")).Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		if len([]rune(text)) > maxMarkerLength {
			text = string([]rune(text)[:maxMarkerLength])
		}
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		signal.TextMarkers = append(signal.TextMarkers, text)
	})

	return signal, nil
}
