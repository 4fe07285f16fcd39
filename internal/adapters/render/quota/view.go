package quota

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/xhs-pilot/internal/domain"
)

const barWidth = 20

type RenderOptions struct {
	Now time.Time
}

func renderView(report Report, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Daily Action Quota"),
		s.header.Render(headerLine(report, opts)),
	}

	if len(report.Usage) == 0 {
		lines = append(lines, s.empty.Render("No quota windows available."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	rows := make([]string, 0, len(report.Usage))
	for _, usage := range report.Usage {
		rows = append(rows, usageLine(usage, opts, s))
	}
	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))

	if report.Engagement.Limit > 0 {
		lines = append(lines, s.section.Render(usageLine(report.Engagement, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func headerLine(report Report, opts RenderOptions) string {
	if opts.Now.IsZero() {
		return fmt.Sprintf("actions: %d", len(report.Usage))
	}
	return fmt.Sprintf("actions: %d  day: %s", len(report.Usage), opts.Now.Format(domain.CalendarDateLayout))
}

func usageLine(usage domain.QuotaUsage, opts RenderOptions, s styles) string {
	remaining := usage.Remaining()

	meta := s.meta.Render(fmt.Sprintf("%d left (%d/%d)", remaining, usage.Used, usage.Limit))
	if remaining == 0 {
		meta = s.exhausted.Render(fmt.Sprintf("exhausted (%d/%d)", usage.Used, usage.Limit))
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.actionKey.Render(string(usage.Action)),
		renderProgressBar(usage.Used, usage.Limit, barWidth, s),
		" ",
		meta,
		" ",
		s.meta.Render(fmt.Sprintf("(%s)", formatResetRelative(usage.ResetsAt, opts.Now))),
	)
}

// renderProgressBar fills the share of the budget that is still available.
func renderProgressBar(used, limit, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := 0
	if limit > 0 {
		left := float64(limit-used) / float64(limit)
		filled = int(math.Round(float64(width) * left))
	}
	filled = max(0, min(filled, width))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func formatResetRelative(resetsAt, now time.Time) string {
	if resetsAt.IsZero() {
		return "resets unknown"
	}
	if now.IsZero() {
		return "resets " + resetsAt.Format("15:04 on 02 Jan")
	}
	if !resetsAt.After(now) {
		return "reset now"
	}

	hours := int(math.Ceil(resetsAt.Sub(now).Hours()))
	suffix := "hours"
	if hours == 1 {
		suffix = "hour"
	}

	return fmt.Sprintf("resets in %d %s (%s)", hours, suffix, resetsAt.Format("15:04"))
}
