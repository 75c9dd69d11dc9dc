// Package board renders a feature's work packages as a live kanban
// board in the terminal.
//
// The board polls the engine on an interval and additionally refreshes
// when a bus event for the feature arrives, so lane moves made by other
// kittyd processes show up without waiting for the next tick.
package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nats-io/nats.go"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	columnWidth     = 16
)

// boardLanes fixes the column order.
var boardLanes = []workunit.Lane{
	workunit.LanePlanned,
	workunit.LaneInProgress,
	workunit.LaneInReview,
	workunit.LaneDone,
	workunit.LaneRejected,
}

// StatusProvider supplies the board's data. The engine implements it.
type StatusProvider interface {
	Status(ctx context.Context, featureSlug string) (*engine.FeatureStatus, error)
}

// Model is the BubbleTea model for the board.
type Model struct {
	feature    string
	provider   StatusProvider
	interval   time.Duration
	events     <-chan *nats.Msg
	status     *engine.FeatureStatus
	history    []float64
	lastUpdate time.Time
	err        error
	quitting   bool

	doneProgress progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	columnTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("51")).
				Bold(true).
				Width(columnWidth)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(lipgloss.Color("238")).
			Width(columnWidth).
			PaddingRight(1)

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231"))

	readyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// Config configures the board.
type Config struct {
	// Feature is the slug of the feature to show. Required.
	Feature string

	// Provider supplies status snapshots. Required.
	Provider StatusProvider

	// Interval between automatic refreshes (default 2s).
	Interval time.Duration

	// Events optionally delivers bus messages for the feature; each
	// one triggers an immediate refresh.
	Events <-chan *nats.Msg
}

// NewModel creates a board model.
func NewModel(cfg Config) Model {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return Model{
		feature:  cfg.Feature,
		provider: cfg.Provider,
		interval: cfg.Interval,
		events:   cfg.Events,
		history:  make([]float64, 0, historySize),
		doneProgress: progress.New(
			progress.WithGradient("#00ff00", "#00ffff"),
			progress.WithWidth(40),
		),
	}
}

// Message types
type tickMsg time.Time
type statusMsg *engine.FeatureStatus
type busMsg struct{}
type errMsg error

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tick(m.interval),
		m.fetchStatus(),
	}
	if m.events != nil {
		cmds = append(cmds, waitForEvent(m.events))
	}
	return tea.Batch(cmds...)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent blocks on the bus channel and turns the next message
// into a refresh trigger.
func waitForEvent(events <-chan *nats.Msg) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-events; !ok {
			return nil
		}
		return busMsg{}
	}
}

func (m Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		st, err := m.provider.Status(ctx, m.feature)
		if err != nil {
			return errMsg(err)
		}
		return statusMsg(st)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetchStatus()
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			m.fetchStatus(),
		)

	case busMsg:
		// Another process moved something; refresh now and keep
		// listening.
		return m, tea.Batch(
			m.fetchStatus(),
			waitForEvent(m.events),
		)

	case statusMsg:
		st := (*engine.FeatureStatus)(msg)
		m.history = appendToHistory(m.history, float64(laneCount(st, workunit.LaneInProgress)))
		m.status = st
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the board.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderBoard()
}

func (m Model) renderError() string {
	header := headerStyle.Render(" kitty board ")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot read feature status") + "\n"
	content += "\n"
	content += dimStyle.Render("Feature: ") + valueStyle.Render(m.feature) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderBoard() string {
	var content string

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	header := headerStyle.Render(" kitty board ")
	headerLine := fmt.Sprintf("%s %s   %s",
		labelStyle.Render("Feature:"),
		valueStyle.Render(m.feature),
		dimStyle.Render(lastUpdateStr))

	content += header + "\n"
	content += headerLine + "\n"

	if m.status == nil {
		content += "\n" + dimStyle.Render("waiting for first snapshot...") + "\n"
		content += "\n" + m.footer()
		return containerStyle.Render(content)
	}

	if m.status.Problem != "" {
		content += "\n" + warningStyle.Render("⚠ "+m.status.Problem) + "\n"
	}
	if !m.status.TargetExists {
		content += "\n" + dimStyle.Render(fmt.Sprintf("target branch %s does not exist yet", m.status.Target)) + "\n"
	}

	// Columns
	ready := map[string]bool{}
	for _, id := range m.status.Ready {
		ready[id] = true
	}
	columns := make([]string, 0, len(boardLanes))
	for _, lane := range boardLanes {
		var col strings.Builder
		col.WriteString(columnTitleStyle.Render(laneTitle(lane)) + "\n")
		for _, u := range m.status.Units {
			if u.Lane != string(lane) {
				continue
			}
			card := u.ID
			if u.Owner != "" {
				card += " " + dimStyle.Render("@"+u.Owner)
			}
			switch {
			case ready[u.ID]:
				col.WriteString(readyStyle.Render("● "+card) + "\n")
			case u.HasWorkspace:
				col.WriteString(cardStyle.Render("◆ "+card) + "\n")
			default:
				col.WriteString(cardStyle.Render("  "+card) + "\n")
			}
		}
		columns = append(columns, columnStyle.Render(col.String()))
	}
	content += "\n" + lipgloss.JoinHorizontal(lipgloss.Top, columns...) + "\n"

	// Done fraction
	total := len(m.status.Units)
	done := laneCount(m.status, workunit.LaneDone)
	fraction := 0.0
	if total > 0 {
		fraction = float64(done) / float64(total)
	}
	content += labelStyle.Render("  Done: ") +
		m.doneProgress.ViewAs(fraction) +
		" " + dimStyle.Render(fmt.Sprintf("%d/%d", done, total)) + "\n"

	// In-flight activity sparkline
	content += labelStyle.Render("  Doing: ") +
		valueStyle.Render(fmt.Sprintf("%d", laneCount(m.status, workunit.LaneInProgress))) +
		"   " + createSparkline(m.history) + "\n"

	content += "\n" + m.footer()
	return containerStyle.Render(content)
}

func (m Model) footer() string {
	return footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
}

func laneTitle(l workunit.Lane) string {
	switch l {
	case workunit.LanePlanned:
		return "Planned"
	case workunit.LaneInProgress:
		return "Doing"
	case workunit.LaneInReview:
		return "For review"
	case workunit.LaneDone:
		return "Done"
	case workunit.LaneRejected:
		return "Rejected"
	default:
		return string(l)
	}
}

func laneCount(st *engine.FeatureStatus, lane workunit.Lane) int {
	n := 0
	for _, u := range st.Units {
		if u.Lane == string(lane) {
			n++
		}
	}
	return n
}

// appendToHistory appends a value to history, maintaining max size.
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline renders the activity history.
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

// Run blocks in the alternate screen until the user quits.
func Run(cfg Config) error {
	p := tea.NewProgram(NewModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
