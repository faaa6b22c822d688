package output

import (
	"fmt"
	"strings"
)

// SeverityBadge renders a severity tier ("info", "warning", "critical",
// and the bias tiers "low" through "critical") in its alert color.
func SeverityBadge(severity string) string {
	switch severity {
	case "critical":
		return StyleError.Render(severity)
	case "warning", "high", "medium":
		return StyleWarning.Render(severity)
	case "info", "low":
		return StyleMuted.Render(severity)
	default:
		return severity
	}
}

// DriftBar renders a visual bar for a drift score in [0,1].
// Example: "██░░░░░░░░ 0.21"
func DriftBar(score float64, width int) string {
	if width <= 0 {
		width = 10
	}
	filled := int(score * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	var style func(string) string
	switch {
	case score >= 0.5:
		style = func(s string) string { return StyleError.Render(s) }
	case score >= 0.2:
		style = func(s string) string { return StyleWarning.Render(s) }
	default:
		style = func(s string) string { return StyleSuccess.Render(s) }
	}

	return fmt.Sprintf("%s %s", style(bar), StyleMuted.Render(fmt.Sprintf("%.2f", score)))
}

// TrendArrow returns a styled trend indicator for a delta value.
// Positive delta shows an up arrow, negative shows down, zero shows a dash.
// The higherIsBetter parameter indicates whether higher values are better.
func TrendArrow(delta float64, higherIsBetter bool) string {
	if delta == 0 {
		return StyleMuted.Render("─")
	}

	isPositive := delta > 0
	isImproved := (isPositive && higherIsBetter) || (!isPositive && !higherIsBetter)

	var arrow string
	if isPositive {
		arrow = fmt.Sprintf("▲ +%.2f", delta)
	} else {
		arrow = fmt.Sprintf("▼ %.2f", delta)
	}

	if isImproved {
		return StyleSuccess.Render(arrow)
	}
	return StyleError.Render(arrow)
}

// Section prints a styled section header with a horizontal rule.
func Section(title string) string {
	header := StyleHeader.Render(title)
	rule := StyleMuted.Render(strings.Repeat("─", 66))
	return fmt.Sprintf("\n %s\n %s", header, rule)
}
