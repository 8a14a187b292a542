package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"atracker/internal/activity"
	"atracker/internal/aggregate"
	"atracker/internal/api"
	"atracker/internal/timefmt"
)

const (
	maxApps  = 10
	barWidth = 24
)

func (m Model) View() string {
	if m.showHelp {
		return renderHelp()
	}
	if m.snap == nil {
		if m.err != nil {
			return critStyle.Render("cannot reach tracker: "+m.err.Error()) + "\n" +
				helpStyle.Render("is `atracker start` running? q to quit")
		}
		return "Connecting..."
	}

	width := m.width
	if width <= 0 {
		width = 80
	}
	inner := width - 4
	if inner < 40 {
		inner = 40
	}

	sections := []string{
		panelStyle.Width(inner).Render(renderCurrent(m.snap.Current)),
		panelStyle.Width(inner).Render(renderFocus(m.snap.Focus)),
		panelStyle.Width(inner).Render(renderTotals(m.snap.Totals)),
		panelStyle.Width(inner).Render(renderApps(m.snap.Apps, inner)),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n" + m.renderStatusBar()
}

func renderCurrent(v *api.CurrentView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Now"))
	b.WriteString("\n")
	switch {
	case v == nil || v.Segment == nil:
		b.WriteString(labelStyle.Render("no window"))
	case v.Segment.App == activity.IdleApp:
		b.WriteString(warnStyle.Render("Idle"))
		fmt.Fprintf(&b, "  %s", labelStyle.Render(v.ElapsedFormatted))
	case v.Segment.App == activity.PausedApp:
		b.WriteString(warnStyle.Render("Paused"))
	default:
		fmt.Fprintf(&b, "%s %s  %s  %s\n%s",
			swatch(v.Color),
			valueStyle.Render(v.Segment.App),
			labelStyle.Render(v.Category),
			labelStyle.Render(v.ElapsedFormatted),
			truncate(v.Segment.Title, 120),
		)
	}
	if v != nil && v.Paused && (v.Segment == nil || v.Segment.App != activity.PausedApp) {
		b.WriteString("\n" + warnStyle.Render("tracking paused"))
	}
	return b.String()
}

func renderFocus(f *aggregate.FocusReport) string {
	if f == nil {
		return titleStyle.Render("Focus") + "\n" + labelStyle.Render("no data")
	}
	streak := "-"
	if f.LongestStreakApp != "" {
		streak = fmt.Sprintf("%s on %s", timefmt.FormatDuration(f.LongestStreakSecs), f.LongestStreakApp)
	}
	return fmt.Sprintf("%s\n%s %s   %s %d   %s %s",
		titleStyle.Render("Focus"),
		labelStyle.Render("score"), focusColor(f.Score).Render(fmt.Sprintf("%d", f.Score)),
		labelStyle.Render("switches"), f.Switches,
		labelStyle.Render("longest"), valueStyle.Render(streak),
	)
}

func renderTotals(totals []aggregate.CategoryTotal) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Categories"))

	var peak float64
	for _, t := range totals {
		if t.TotalSecs > peak {
			peak = t.TotalSecs
		}
	}
	for _, t := range totals {
		if t.TotalSecs == 0 && t.DailyGoalSecs == 0 {
			continue
		}
		mark := ""
		switch {
		case t.OverLimit:
			mark = critStyle.Render(" over limit")
		case t.GoalMet:
			mark = okStyle.Render(" goal met")
		case t.DailyGoalSecs > 0:
			mark = labelStyle.Render(" goal " + timefmt.FormatDuration(float64(t.DailyGoalSecs)))
		}
		fmt.Fprintf(&b, "\n%s %s %s %s%s",
			swatch(t.Color),
			padRight(t.Name, 16),
			bar(t.TotalSecs, peak, barWidth),
			padLeft(t.TotalFormatted, 8),
			mark,
		)
	}
	return b.String()
}

func renderApps(apps []aggregate.Group, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Top apps"))
	if len(apps) == 0 {
		b.WriteString("\n" + labelStyle.Render("nothing tracked yet today"))
		return b.String()
	}
	nameW := width - barWidth - 24
	if nameW < 12 {
		nameW = 12
	}

	var peak float64
	for _, g := range apps {
		if g.TotalSecs > peak {
			peak = g.TotalSecs
		}
	}
	for i, g := range apps {
		if i == maxApps {
			fmt.Fprintf(&b, "\n%s", labelStyle.Render(fmt.Sprintf("… %d more", len(apps)-maxApps)))
			break
		}
		live := " "
		if g.Live {
			live = okStyle.Render("●")
		}
		fmt.Fprintf(&b, "\n%s %s %s %s %s",
			live,
			padRight(truncate(g.App, nameW), nameW),
			bar(g.TotalSecs, peak, barWidth),
			padLeft(g.TotalFormatted, 8),
			labelStyle.Render(g.Category),
		)
	}
	return b.String()
}

func (m Model) renderStatusBar() string {
	parts := []string{fmt.Sprintf("updated %s", m.snap.At.Format("15:04:05"))}
	if m.err != nil {
		parts = append(parts, critStyle.Render("stale: "+m.err.Error()))
	}
	if m.status != "" {
		parts = append(parts, warnStyle.Render(m.status))
	}
	parts = append(parts, "p pause/resume  r refresh  ? help  q quit")
	return helpStyle.Render(strings.Join(parts, "  |  "))
}

func renderHelp() string {
	lines := []string{
		titleStyle.Render("atracker top"),
		"",
		"  p      pause or resume tracking",
		"  r      refresh now",
		"  ?, h   toggle this help",
		"  q      quit",
		"",
		helpStyle.Render("esc to close"),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// bar renders v relative to peak as a fixed-width bar.
func bar(v, peak float64, width int) string {
	filled := 0
	if peak > 0 {
		filled = int(v / peak * float64(width))
	}
	if filled > width {
		filled = width
	}
	if v > 0 && filled == 0 {
		filled = 1
	}
	return okStyle.Render(strings.Repeat("█", filled)) + labelStyle.Render(strings.Repeat("░", width-filled))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-1]) + "…"
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func padLeft(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return strings.Repeat(" ", width-w) + s
}
