package status

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bnema/outreach-pool/internal/application"
	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const (
	barWidth        = 24
	maxDestinations = 3
)

type RenderOptions struct {
	Now time.Time
	// Verbose lists every target of a campaign instead of only the unfinished and failed ones.
	Verbose bool
}

func renderPool(statuses []application.AccountStatus, opts RenderOptions, s styles) string {
	counts := map[domain.AccountStatus]int{}
	for _, status := range statuses {
		counts[status.Account.Status]++
	}

	lines := []string{
		s.title.Render("Account Pool"),
		s.header.Render(fmt.Sprintf(
			"accounts: %d  active: %d  cooling: %d  disabled: %d  unauthenticated: %d",
			len(statuses),
			counts[domain.AccountStatusActive],
			counts[domain.AccountStatusCoolingDown],
			counts[domain.AccountStatusDisabled],
			counts[domain.AccountStatusUnauthenticated],
		)),
	}

	if len(statuses) == 0 {
		lines = append(lines, s.empty.Render("No accounts registered."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, status := range statuses {
		lines = append(lines, s.section.Render(renderAccount(status, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccount(status application.AccountStatus, opts RenderOptions, s styles) string {
	account := status.Account
	parts := []string{
		lipgloss.JoinHorizontal(lipgloss.Top,
			s.account.Render(accountTitle(account.Name, account.ID)),
			" ",
			s.badge(string(account.Status)),
		),
		dailyLine(status, opts, s),
	}

	switch account.Status {
	case domain.AccountStatusCoolingDown:
		parts = append(parts, s.warning.Render(fmt.Sprintf("cooldown ends %s", formatRelative(account.CooldownUntil, opts.Now))))
	case domain.AccountStatusDisabled:
		parts = append(parts, s.warning.Render("disabled: "+account.DisabledReason))
	case domain.AccountStatusUnauthenticated:
		parts = append(parts, s.warning.Render("credential needs to be refreshed"))
	}

	if line := destinationLine(account, s); line != "" {
		parts = append(parts, line)
	}
	if status.Lease != nil {
		parts = append(parts, s.detail.Render(fmt.Sprintf(
			"leased by %s (expires %s)",
			status.Lease.Holder,
			formatRelative(status.Lease.ExpiresAt, opts.Now),
		)))
	}

	meta := []string{}
	if len(account.Capabilities) > 0 {
		capabilities := make([]string, 0, len(account.Capabilities))
		for _, capability := range account.Capabilities {
			capabilities = append(capabilities, string(capability))
		}
		meta = append(meta, "capabilities: "+strings.Join(capabilities, ","))
	}
	if !account.LastUsedAt.IsZero() {
		meta = append(meta, "last used "+formatAgo(account.LastUsedAt, opts.Now))
	}
	if account.ErrorCount > 0 {
		meta = append(meta, fmt.Sprintf("errors: %d", account.ErrorCount))
	}
	if len(meta) > 0 {
		parts = append(parts, s.meta.Render(strings.Join(meta, "  ")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func dailyLine(status application.AccountStatus, opts RenderOptions, s styles) string {
	limit := status.Account.Limits.Daily
	usedPercent := 100.0
	if limit > 0 {
		usedPercent = float64(status.DailyUsed) / float64(limit) * 100
	}
	leftPercent := clampPercent(100 - usedPercent)

	label := s.key.Render("daily:")
	bar := renderProgressBar(leftPercent, barWidth, s)
	meta := lipgloss.NewStyle().Foreground(interpolateColor(leftPercent, 0, 100)).
		Render(fmt.Sprintf("%d/%d used", status.DailyUsed, limit))

	line := lipgloss.JoinHorizontal(lipgloss.Top, label, " ", bar, " ", meta)

	window := status.Account.Usage.WindowStart
	if status.DailyUsed > 0 && !window.IsZero() {
		line += " " + s.meta.Render(fmt.Sprintf("(resets %s)", formatRelative(window.Add(domain.DailyWindow), opts.Now)))
	}

	return line
}

// destinationLine lists the busiest destinations, which are the first to hit their lifetime cap.
func destinationLine(account domain.Account, s styles) string {
	if len(account.Usage.PerDestination) == 0 {
		return ""
	}

	type entry struct {
		destination domain.Destination
		used        int
	}
	entries := make([]entry, 0, len(account.Usage.PerDestination))
	for destination, used := range account.Usage.PerDestination {
		entries = append(entries, entry{destination: destination, used: used})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].used == entries[j].used {
			return entries[i].destination < entries[j].destination
		}
		return entries[i].used > entries[j].used
	})

	shown := make([]string, 0, maxDestinations)
	for i, e := range entries {
		if i == maxDestinations {
			shown = append(shown, fmt.Sprintf("+%d more", len(entries)-maxDestinations))
			break
		}
		text := fmt.Sprintf("%s %d/%d", e.destination, e.used, account.Limits.PerDestination)
		if e.used >= account.Limits.PerDestination {
			text = s.warning.Render(text)
		}
		shown = append(shown, text)
	}

	return s.key.Render("destinations:") + " " + strings.Join(shown, ", ")
}

func renderCampaign(report application.CampaignReport, opts RenderOptions, s styles) string {
	total := len(report.Targets)
	succeeded := report.Counts[domain.TargetStateSucceeded]
	failed := report.Counts[domain.TargetStateFailedPermanent]

	donePercent := 0.0
	if total > 0 {
		donePercent = float64(succeeded+failed) / float64(total) * 100
	}

	lines := []string{
		lipgloss.JoinHorizontal(lipgloss.Top,
			s.title.Render(fmt.Sprintf("Campaign: %s (%s)", report.Name, report.ID)),
			" ",
			s.badge(string(report.Status)),
		),
		s.header.Render(fmt.Sprintf("capability: %s  targets: %d", report.Capability, total)),
		lipgloss.JoinHorizontal(lipgloss.Top,
			s.key.Render("progress:"),
			" ",
			renderProgressBar(donePercent, barWidth, s),
			" ",
			s.detail.Render(fmt.Sprintf("%2.0f%% done", donePercent)),
		),
		s.detail.Render(countsLine(report.Counts)),
	}

	targetLines := make([]string, 0, len(report.Targets))
	for _, target := range report.Targets {
		if !opts.Verbose && target.State == domain.TargetStateSucceeded {
			continue
		}
		targetLines = append(targetLines, targetLine(target, opts, s))
	}
	if len(targetLines) > 0 {
		lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, targetLines...)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func countsLine(counts map[domain.TargetState]int) string {
	return fmt.Sprintf(
		"succeeded: %d  failed: %d  pending: %d  in progress: %d",
		counts[domain.TargetStateSucceeded],
		counts[domain.TargetStateFailedPermanent],
		counts[domain.TargetStatePending],
		counts[domain.TargetStateInProgress],
	)
}

func targetLine(target application.TargetReport, opts RenderOptions, s styles) string {
	subject := target.Subject
	if target.Destination != "" {
		subject += " @" + string(target.Destination)
	}

	line := fmt.Sprintf("%s %s %s", target.ID, subject, s.badge(string(target.State)))
	if target.Attempts > 0 {
		line += s.meta.Render(fmt.Sprintf(" attempts: %d", target.Attempts))
	}

	switch target.State {
	case domain.TargetStateFailedPermanent:
		line += " " + s.warning.Render(target.FailureReason)
	case domain.TargetStatePending:
		if !opts.Now.IsZero() && target.NextAttemptAt.After(opts.Now) {
			line += s.meta.Render(" next attempt " + formatRelative(target.NextAttemptAt, opts.Now))
		}
	case domain.TargetStateInProgress:
		if target.LastAccountID != "" {
			line += s.meta.Render(" on " + string(target.LastAccountID))
		}
	}

	return line
}

func renderCampaignList(reports []application.CampaignReport, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Campaigns"),
		s.header.Render(fmt.Sprintf("campaigns: %d", len(reports))),
	}
	if len(reports) == 0 {
		lines = append(lines, s.empty.Render("No campaigns created."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, report := range reports {
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			s.account.Render(fmt.Sprintf("%s (%s)", report.Name, report.ID)),
			" ",
			s.badge(string(report.Status)),
		)
		summary := fmt.Sprintf("%s  %s", report.Capability, countsLine(report.Counts))
		if !report.UpdatedAt.IsZero() {
			summary += "  updated " + formatAgo(report.UpdatedAt, opts.Now)
		}
		lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, line, s.meta.Render(summary))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderProgressBar(filledPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(filledPercent) / 100))
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

func formatClock(at, now time.Time) string {
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}

	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := at.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return at.Format("15:04")
	}

	return at.Format("15:04 on 02 Jan")
}

// formatRelative renders a future instant as "in 3 hours (15:00)".
func formatRelative(at, now time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	if now.IsZero() {
		return formatClock(at, now)
	}
	if !at.After(now) {
		return "now"
	}

	return fmt.Sprintf("in %s (%s)", humanDuration(at.Sub(now)), formatClock(at, now))
}

func formatAgo(at, now time.Time) string {
	if now.IsZero() {
		return formatClock(at, now)
	}
	if !now.After(at) {
		return "just now"
	}
	return humanDuration(now.Sub(at)) + " ago"
}

func humanDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return plural(int(math.Ceil(d.Seconds())), "second")
	case d < time.Hour:
		return plural(int(math.Ceil(d.Minutes())), "minute")
	case d < 24*time.Hour:
		return plural(int(math.Ceil(d.Hours())), "hour")
	default:
		return plural(int(math.Ceil(d.Hours()/24)), "day")
	}
}

func plural(n int, unit string) string {
	if n < 1 {
		n = 1
	}
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func accountTitle(name string, id domain.AccountID) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == string(id) {
		return string(id)
	}
	return fmt.Sprintf("%s (%s)", trimmed, id)
}

// interpolateColor maps value onto the 240..255 greyscale ramp, brighter toward max.
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
