// Package scenes provides TUI scenes for the honeytrap operator console
package scenes

import (
	"fmt"
	"strings"
	"time"

	"honeytrap/internal/tui/api"
	"honeytrap/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DashboardScene displays the service overview and engagement metrics.
type DashboardScene struct {
	client     *api.Client
	stats      *api.Stats
	err        error
	width      int
	height     int
	lastUpdate time.Time
	loading    bool
}

// statsMsg carries updated stats
type statsMsg struct {
	stats *api.Stats
	err   error
}

// TickMsg is sent on each tick - exported for use by the parent model
type TickMsg struct {
	Scene string
	Time  time.Time
}

// NewDashboardScene creates a new dashboard scene
func NewDashboardScene(client *api.Client) *DashboardScene {
	return &DashboardScene{
		client:  client,
		loading: true,
		stats:   &api.Stats{Healthy: false},
	}
}

// Init fetches the initial stats.
func (d *DashboardScene) Init() tea.Cmd {
	return d.fetchStats()
}

func (d *DashboardScene) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := d.client.GetStats()
		return statsMsg{stats: stats, err: err}
	}
}

// TickCmd returns the refresh tick. The parent model schedules it only
// while this scene is active.
func (d *DashboardScene) TickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "dashboard", Time: t}
	})
}

// Update handles messages for the dashboard
func (d *DashboardScene) Update(msg tea.Msg) (*DashboardScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		return d, nil

	case statsMsg:
		d.loading = false
		d.stats = msg.stats
		d.err = msg.err
		d.lastUpdate = time.Now()
		return d, nil

	case TickMsg:
		if msg.Scene == "dashboard" {
			return d, d.fetchStats()
		}
		return d, nil
	}

	return d, nil
}

// View renders the dashboard
func (d *DashboardScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Honeytrap Dashboard"))
	b.WriteString("\n\n")

	if d.loading {
		b.WriteString(styles.Muted.Render("Loading..."))
		return b.String()
	}

	if d.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("Error: %v", d.err)))
		b.WriteString("\n")
	}

	var statusText string
	if d.stats.Healthy {
		statusText = styles.StatusOK.Render("● HEALTHY")
	} else {
		statusText = styles.StatusError.Render("● UNREACHABLE")
	}
	b.WriteString(fmt.Sprintf("  Status: %s  %s\n\n", statusText, styles.Muted.Render(d.stats.StatusReason)))

	cards := []string{
		d.renderMetricCard("Sessions", fmt.Sprintf("%d", d.stats.ActiveSessions)),
		d.renderMetricCard("Turns", formatNumber(d.stats.TurnsTotal)),
		d.renderMetricCard("Scam Turns", formatNumber(d.stats.ScamTurns)),
		d.renderMetricCard("Reports", formatNumber(d.stats.ReportsDelivered)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n")

	cards = []string{
		d.renderMetricCard("Turns/min", fmt.Sprintf("%.1f", d.stats.TurnsPerMinute)),
		d.renderMetricCard("Degraded", formatNumber(d.stats.TurnsFailed)),
		d.renderMetricCard("Tracked IDs", fmt.Sprintf("%d", d.stats.TrackedIdentifiers)),
		d.renderMetricCard("Uptime", d.stats.Uptime),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	if !d.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  Last updated: %s", d.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (d *DashboardScene) renderMetricCard(label, value string) string {
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.MutedColor).
		Padding(0, 2).
		Width(18).
		Align(lipgloss.Center)

	content := fmt.Sprintf("%s\n%s",
		styles.MetricValue.Render(value),
		styles.MetricLabel.Render(label),
	)
	return card.Render(content)
}

func formatNumber(n uint64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
