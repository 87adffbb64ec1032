package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/vigil/internal/queue"
)

// recentReportCount is how many reports the dashboard requests per poll.
const recentReportCount = 8

// SnapshotSource supplies queue state for the dashboard.
type SnapshotSource interface {
	Snapshot(recentReports int) (*queue.Snapshot, error)
}

// tickMsg triggers a snapshot refresh.
type tickMsg time.Time

// snapshotMsg carries the result of a snapshot poll.
type snapshotMsg struct {
	snap *queue.Snapshot
	err  error
}

// WatchModel is the bubbletea model for the watch dashboard.
type WatchModel struct {
	source   SnapshotSource
	interval time.Duration

	snap    *queue.Snapshot
	lastErr error
	polled  time.Time
	width   int
	spin    spinner.Model

	titleStyle   lipgloss.Style
	labelStyle   lipgloss.Style
	valueStyle   lipgloss.Style
	passStyle    lipgloss.Style
	failStyle    lipgloss.Style
	warnStyle    lipgloss.Style
	dimStyle     lipgloss.Style
	sectionStyle lipgloss.Style
}

// NewWatchModel creates a watch dashboard polling source every interval.
func NewWatchModel(source SnapshotSource, interval time.Duration) *WatchModel {
	if interval <= 0 {
		interval = time.Second
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &WatchModel{
		source:   source,
		interval: interval,
		width:    80,
		spin:     spin,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(18),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		passStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),

		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		sectionStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
	}
}

// Init starts the spinner and schedules the first poll.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.poll, m.tick())
}

// Update handles input and refresh messages.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(m.poll, m.tick())
	case snapshotMsg:
		if msg.err != nil {
			m.lastErr = msg.err
		} else {
			m.snap = msg.snap
			m.lastErr = nil
			m.polled = time.Now()
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the dashboard.
func (m *WatchModel) View() string {
	var b strings.Builder

	b.WriteString(m.titleStyle.Render("Vigil " + m.spin.View()))
	b.WriteString("\n\n")

	if m.lastErr != nil {
		b.WriteString(m.failStyle.Render("✗ " + m.lastErr.Error()))
		b.WriteString("\n\n")
	}

	if m.snap == nil {
		b.WriteString(m.dimStyle.Render("waiting for first snapshot..."))
		b.WriteString("\n\n")
		b.WriteString(m.dimStyle.Render("q quit"))
		return b.String()
	}

	b.WriteString(m.renderCounts())
	b.WriteString("\n")
	b.WriteString(m.renderReports())
	b.WriteString("\n")

	if !m.polled.IsZero() {
		b.WriteString(m.dimStyle.Render(fmt.Sprintf("updated %s", m.polled.Format("15:04:05"))))
		b.WriteString(m.dimStyle.Render(" │ q quit"))
	}

	return b.String()
}

// renderCounts renders queue, session, and backlog totals.
func (m *WatchModel) renderCounts() string {
	var b strings.Builder

	b.WriteString(m.sectionStyle.Render("Queue"))
	b.WriteString("\n")

	b.WriteString(m.labelStyle.Render("Pending:"))
	b.WriteString(m.valueStyle.Render(fmt.Sprintf("%d", m.snap.PendingJobs)))
	b.WriteString("  ")
	b.WriteString(m.labelStyle.Render("Running:"))
	b.WriteString(m.valueStyle.Render(fmt.Sprintf("%d", m.snap.RunningJobs)))
	b.WriteString("\n")

	b.WriteString(m.labelStyle.Render("Sessions:"))
	b.WriteString(m.valueStyle.Render(fmt.Sprintf("%d", m.snap.ActiveSessions)))
	b.WriteString("  ")
	b.WriteString(m.labelStyle.Render("Failed out:"))
	if m.snap.TerminallyFailed > 0 {
		b.WriteString(m.failStyle.Render(fmt.Sprintf("%d", m.snap.TerminallyFailed)))
	} else {
		b.WriteString(m.valueStyle.Render("0"))
	}
	b.WriteString("\n")

	b.WriteString(m.labelStyle.Render("Backlog ready:"))
	b.WriteString(m.valueStyle.Render(fmt.Sprintf("%d", m.snap.BacklogReady)))
	b.WriteString("  ")
	b.WriteString(m.labelStyle.Render("Needs approval:"))
	if m.snap.BacklogNeedsApproval > 0 {
		b.WriteString(m.warnStyle.Render(fmt.Sprintf("%d", m.snap.BacklogNeedsApproval)))
	} else {
		b.WriteString(m.valueStyle.Render("0"))
	}
	b.WriteString("\n")

	return b.String()
}

// renderReports renders the recent report list.
func (m *WatchModel) renderReports() string {
	var b strings.Builder

	b.WriteString(m.sectionStyle.Render("Recent Reports"))
	b.WriteString("\n")

	if len(m.snap.RecentReports) == 0 {
		b.WriteString(m.dimStyle.Render("  none yet"))
		b.WriteString("\n")
		return b.String()
	}

	for _, r := range m.snap.RecentReports {
		verdict := m.passStyle.Render("✓ pass")
		if !r.Passed {
			verdict = m.failStyle.Render("✗ fail")
		}

		story := r.StoryID
		if len(story) > 24 {
			story = story[:21] + "..."
		}

		line := fmt.Sprintf("  %s  %-24s attempt %d", verdict, story, r.Attempt)
		b.WriteString(line)

		if len(r.Gate.Violations) > 0 {
			var gates []string
			for _, v := range r.Gate.Violations {
				gates = append(gates, v.Gate)
			}
			b.WriteString("  ")
			b.WriteString(m.warnStyle.Render(strings.Join(gates, ", ")))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// tick schedules the next refresh.
func (m *WatchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// poll fetches a snapshot off the update loop.
func (m *WatchModel) poll() tea.Msg {
	snap, err := m.source.Snapshot(recentReportCount)
	return snapshotMsg{snap: snap, err: err}
}
