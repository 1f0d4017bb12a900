// Package ui renders the live session in the terminal: team header, visible
// players, and active powerups with their remaining lifetimes. It is a
// read-only view over the session's reconciled state.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/inertia-live/inertia-go/internal/domain"
	"github.com/inertia-live/inertia-go/internal/realtime"
	"github.com/inertia-live/inertia-go/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	runnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	hunterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#505050"))
)

var stateStyles = map[realtime.State]lipgloss.Style{
	realtime.StateConnecting:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
	realtime.StateOpen:        lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
	realtime.StateEstablished: lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
	realtime.StateClosed:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
}

type tickMsg time.Time

// Model is the bubbletea model for the live view. The session is shared with
// the coordinator goroutines; every read goes through the session's accessors,
// which return copies.
type Model struct {
	session *session.Session
	now     time.Time
	width   int
}

func New(s *session.Session) Model {
	return Model{session: s, now: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n\n")
	b.WriteString(m.playersView())
	b.WriteString("\n")
	b.WriteString(m.powerupsView())
	b.WriteString("\n")
	b.WriteString(m.questsView())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) headerView() string {
	state := m.session.ChannelState()
	badge := stateStyles[state].Render("● " + state.String())

	team, ok := m.session.Snapshots().Team.Cached()
	if !ok {
		return headerStyle.Render("inertia") + "  " + badge
	}

	role := hunterStyle.Render("hunter")
	if team.IsRunner {
		role = runnerStyle.Render("runner")
	}
	line := fmt.Sprintf("%s  %s  %s  %s",
		headerStyle.Render(team.Name),
		role,
		labelStyle.Render(fmt.Sprintf("xp %d  balance %d", team.XP, team.Balance)),
		badge,
	)
	if team.InVetoPeriod(m.now) {
		line += "  " + labelStyle.Render("veto open")
	}
	return line
}

func (m Model) playersView() string {
	players := m.session.Players()
	if len(players) == 0 {
		return dimStyle.Render("no visible players")
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("players (%d)", len(players))))
	b.WriteString("\n")
	for _, p := range players {
		name := p.User.Username
		if name == "" {
			name = p.User.ID
		}
		color := lipgloss.NewStyle()
		if p.Team.Color != "" {
			color = color.Foreground(lipgloss.Color(p.Team.Color))
		}
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			color.Render(fmt.Sprintf("%-18s", name)),
			labelStyle.Render(fmt.Sprintf("%+.5f %+.5f", p.Loc.Lat, p.Loc.Lng)),
		))
	}
	return b.String()
}

func (m Model) powerupsView() string {
	powerups := m.session.ActivePowerups()
	if len(powerups) == 0 {
		return dimStyle.Render("no active powerups")
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("powerups (%d)", len(powerups))))
	b.WriteString("\n")
	for _, p := range powerups {
		b.WriteString(fmt.Sprintf("  %-18s %s\n",
			p.Type,
			labelStyle.Render(formatRemaining(p.Remaining(m.now))),
		))
	}
	return b.String()
}

func (m Model) questsView() string {
	all, ok := m.session.Snapshots().Quests.Cached()
	if !ok {
		return dimStyle.Render("no quest snapshot yet")
	}
	open := domain.FilterQuests(all, domain.QuestFilter{HideCompleted: true})
	if len(open) == 0 {
		return dimStyle.Render("no open quests")
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("open quests (%d)", len(open))))
	b.WriteString("\n")
	for _, q := range open {
		line := fmt.Sprintf("  %-24s %s", q.Title, labelStyle.Render(fmt.Sprintf("%d xp", q.XP)))
		if q.PendingVeto {
			line += "  " + dimStyle.Render("veto pending")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	d = d.Round(time.Second)
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
