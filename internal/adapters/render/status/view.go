package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/afk-farmer/internal/application"
	"github.com/bnema/afk-farmer/internal/domain"
)

type RenderOptions struct {
	Now time.Time
	// Logs is how many recent log entries to print per session.
	Logs        int
	RunningOnly bool
}

func renderView(f fleet, sessions []application.Snapshot, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("AFK Sessions"),
		s.header.Render(fmt.Sprintf("sessions: %d  running: %d", f.total, f.running)),
	}

	if f.total == 0 {
		lines = append(lines, s.empty.Render("No sessions registered."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	lines = append(lines, fleetLine(f, s))

	if len(sessions) == 0 {
		lines = append(lines, s.empty.Render("No running sessions."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, snap := range sessions {
		lines = append(lines, s.section.Render(renderSession(snap, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func fleetLine(f fleet, s styles) string {
	var counts []string
	for _, status := range fleetOrder {
		if n := f.byStatus[status]; n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, status))
		}
	}

	parts := []string{s.meta.Render(strings.Join(counts, ", "))}
	if f.ok+f.failed > 0 {
		rateStyle := lipgloss.NewStyle().Foreground(interpolateColor(f.successRate(), 0, 100))
		parts = append(parts,
			"  ",
			s.label.Render("cycle success"),
			" ",
			rateStyle.Render(fmt.Sprintf("%.1f%%", f.successRate())),
		)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func renderSession(snap application.Snapshot, opts RenderOptions, s styles) string {
	title := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.session.Render(fmt.Sprintf("[%s] tenant %s", snap.Tail, tenantLabel(snap.TenantID))),
		" ",
		statusStyle(snap.Status).Render(snap.Status.Label()),
	)

	parts := []string{
		title,
		cycleLine(snap, s),
		s.detail.Render(fmt.Sprintf("last heartbeat: %s", formatLastHeartbeat(snap.LastHeartbeat, opts.Now))),
		s.meta.Render(lifetimeLine(snap.Lifetime)),
	}
	if snap.LastError != "" {
		parts = append(parts, s.warning.Render("error: "+snap.LastError))
	}
	parts = append(parts, logLines(snap.Logs, opts.Logs, s)...)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func cycleLine(snap application.Snapshot, s styles) string {
	rateStyle := lipgloss.NewStyle().Foreground(interpolateColor(snap.SuccessRate, 0, 100))
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.label.Render("uptime "+snap.Uptime),
		"  ",
		renderProgressBar(snap.SuccessRate, 20, s),
		" ",
		rateStyle.Render(fmt.Sprintf("%.1f%%", snap.SuccessRate)),
		" ",
		s.meta.Render(fmt.Sprintf("(%d ok / %d failed)", snap.HeartbeatsOK, snap.HeartbeatsFailed)),
	)
}

func lifetimeLine(stats domain.LifetimeStats) string {
	line := fmt.Sprintf(
		"lifetime: %d ok / %d failed, farmed %s",
		stats.HeartbeatsOK,
		stats.HeartbeatsFailed,
		formatDuration(time.Duration(stats.UptimeSeconds)*time.Second),
	)
	if !stats.FirstSeen.IsZero() {
		line += ", since " + stats.FirstSeen.Format("02 Jan 2006")
	}
	return line
}

func logLines(logs []domain.LogEntry, limit int, s styles) []string {
	if limit <= 0 || len(logs) == 0 {
		return nil
	}
	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}

	lines := make([]string, 0, len(logs))
	for _, entry := range logs {
		lines = append(lines, lipgloss.JoinHorizontal(
			lipgloss.Top,
			"  ",
			s.logTime.Render(entry.At.Format("15:04:05")),
			" ",
			severityMark(entry.Severity),
			" ",
			entry.Message,
		))
	}
	return lines
}

func tenantLabel(tenantID string) string {
	if strings.TrimSpace(tenantID) == "" {
		return "?"
	}
	return tenantID
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100.0))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatLastHeartbeat(at, now time.Time) string {
	if at.IsZero() {
		return "never"
	}
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}

	ago := now.Sub(at)
	if ago < 0 {
		ago = 0
	}
	return fmt.Sprintf("%s ago (%s)", formatDuration(ago), at.Format("15:04:05"))
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%02dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

// interpolateColor maps value onto the 240..255 greyscale ramp.
func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	return lipgloss.Color(fmt.Sprintf("%d", int(240+15*normalized)))
}
