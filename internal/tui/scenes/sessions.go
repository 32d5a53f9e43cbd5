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

// SessionsScene displays live honeypot sessions as a scrollable table.
type SessionsScene struct {
	client     *api.Client
	sessions   []api.SessionSummary
	err        string
	width      int
	height     int
	cursor     int
	offset     int
	loading    bool
	maxRows    int
	lastUpdate time.Time
}

// sessionsMsg carries updated sessions
type sessionsMsg struct {
	sessions []api.SessionSummary
	err      string
}

// NewSessionsScene creates a new sessions scene
func NewSessionsScene(client *api.Client) *SessionsScene {
	return &SessionsScene{
		client:  client,
		loading: true,
		maxRows: 10,
	}
}

// Init fetches the initial session list.
func (s *SessionsScene) Init() tea.Cmd {
	return s.fetchSessions()
}

func (s *SessionsScene) fetchSessions() tea.Cmd {
	return func() tea.Msg {
		resp, err := s.client.GetSessions(100)
		if err != nil {
			return sessionsMsg{err: err.Error()}
		}
		return sessionsMsg{sessions: resp.Sessions}
	}
}

// TickCmd returns the refresh tick for this scene.
func (s *SessionsScene) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "sessions", Time: t}
	})
}

// Update handles messages for the sessions scene
func (s *SessionsScene) Update(msg tea.Msg) (*SessionsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.maxRows = max(5, s.height-12)
		return s, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
				if s.cursor < s.offset {
					s.offset = s.cursor
				}
			}
		case "down", "j":
			if s.cursor < len(s.sessions)-1 {
				s.cursor++
				if s.cursor >= s.offset+s.maxRows {
					s.offset = s.cursor - s.maxRows + 1
				}
			}
		case "pgup":
			s.cursor = max(0, s.cursor-s.maxRows)
			s.offset = max(0, s.offset-s.maxRows)
		case "pgdown":
			s.cursor = min(len(s.sessions)-1, s.cursor+s.maxRows)
			s.offset = min(max(0, len(s.sessions)-s.maxRows), s.offset+s.maxRows)
		case "r":
			s.loading = true
			return s, s.fetchSessions()
		}
		return s, nil

	case sessionsMsg:
		s.loading = false
		s.sessions = msg.sessions
		s.err = msg.err
		s.lastUpdate = time.Now()
		if s.cursor >= len(s.sessions) {
			s.cursor = max(0, len(s.sessions)-1)
		}
		return s, nil

	case TickMsg:
		if msg.Scene == "sessions" {
			return s, s.fetchSessions()
		}
		return s, nil
	}

	return s, nil
}

// View renders the session table
func (s *SessionsScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Sessions"))
	b.WriteString("\n\n")

	if s.loading && len(s.sessions) == 0 {
		b.WriteString(styles.Muted.Render("  Loading sessions..."))
		return b.String()
	}

	if s.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", s.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	if len(s.sessions) == 0 {
		b.WriteString(styles.Muted.Render("  No sessions yet."))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Sessions appear here once messages arrive on POST /api/honeypot."))
		return b.String()
	}

	countText := fmt.Sprintf("  Showing %d sessions", len(s.sessions))
	b.WriteString(styles.Subtitle.Render(countText))
	if s.loading {
		b.WriteString(styles.Muted.Render("  (refreshing...)"))
	}
	b.WriteString("\n\n")

	header := fmt.Sprintf("  %-22s %-12s %6s %6s %-20s %-10s",
		"Session", "State", "Msgs", "Conf", "Scam Type", "Last Seen")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	endIdx := min(s.offset+s.maxRows, len(s.sessions))
	for i, sess := range s.sessions[s.offset:endIdx] {
		idx := s.offset + i
		b.WriteString(s.renderSessionRow(sess, idx == s.cursor))
		b.WriteString("\n")
	}

	if len(s.sessions) > s.maxRows {
		scrollInfo := fmt.Sprintf("\n  %d-%d of %d (↑↓ to scroll, [r] refresh)",
			s.offset+1, endIdx, len(s.sessions))
		b.WriteString(styles.Muted.Render(scrollInfo))
	} else {
		b.WriteString(styles.Muted.Render("\n  [r] Refresh"))
	}

	if !s.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", s.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (s *SessionsScene) renderSessionRow(sess api.SessionSummary, selected bool) string {
	conf := "-"
	if sess.ScamDetected {
		conf = fmt.Sprintf("%.2f", sess.ScamConfidence)
	}
	scamType := sess.ScamType
	if scamType == "" {
		scamType = "-"
	}

	row := fmt.Sprintf("  %-22s %s %6d %6s %-20s %-10s",
		truncate(sess.SessionID, 22),
		s.formatState(sess.State),
		sess.MessageCount,
		conf,
		truncate(scamType, 20),
		sess.LastActivity.Local().Format("15:04:05"),
	)

	if selected {
		return lipgloss.NewStyle().
			Background(styles.Primary).
			Foreground(styles.White).
			Render(row)
	}
	return row
}

func (s *SessionsScene) formatState(state string) string {
	width := 12
	var style lipgloss.Style
	switch state {
	case "reported":
		style = styles.StatusOK
	case "extracting":
		style = styles.StatusWarning
	case "active":
		style = styles.StatusError
	default:
		style = styles.Muted
	}
	return style.Render(fmt.Sprintf("%-*s", width, strings.ToUpper(state)))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
