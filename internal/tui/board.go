package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
	"github.com/balkashynov/wotrack/internal/workorder"
)

// TimerControl is the part of the tracker the board drives
type TimerControl interface {
	Start(ctx context.Context, key tracker.Key) (*models.ProcessTimer, error)
	Pause(ctx context.Context, key tracker.Key) (*models.ProcessTimer, error)
	Stop(ctx context.Context, key tracker.Key) (*models.ProcessTimer, error)
	Timer(ctx context.Context, key tracker.Key) (*models.ProcessTimer, error)
}

// reloadEvery is how many ticks pass between re-reading the stored timers,
// so changes made from another terminal or station show up
const reloadEvery = 10

// BoardModel shows every process timer of one work order and lets the
// operator start, pause and stop them. Elapsed times are re-derived from the
// stored timestamps on every tick; nothing is counted in memory.
type BoardModel struct {
	ctx     context.Context
	control TimerControl
	clock   clockwork.Clock
	order   *models.WorkOrder

	timers []*models.ProcessTimer // aligned with order.Processes
	table  table.Model
	now    time.Time
	ticks  int

	width  int
	height int

	message       string
	messageStatus models.TimerStatus
	err           error
}

type boardTickMsg struct{}

// timerUpdatedMsg carries the result of a transition or reload of one timer
type timerUpdatedMsg struct {
	index int
	timer *models.ProcessTimer
	err   error
}

func NewBoardModel(ctx context.Context, control TimerControl, clock clockwork.Clock, order *models.WorkOrder) BoardModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Process", Width: 30},
			{Title: "Status", Width: 11},
			{Title: "Elapsed", Width: 10},
			{Title: "Per piece", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(len(order.Processes)+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		BorderBottom(true).
		Foreground(lipgloss.Color(ColorAccentBright)).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color(ColorPrimaryText)).
		Background(lipgloss.Color(ColorAccentMain))
	t.SetStyles(styles)

	m := BoardModel{
		ctx:     ctx,
		control: control,
		clock:   clock,
		order:   order,
		timers:  make([]*models.ProcessTimer, len(order.Processes)),
		table:   t,
		now:     clock.Now(),
	}
	m.reloadAll()
	m.refreshRows()
	return m
}

func (m BoardModel) Init() tea.Cmd {
	return m.tick()
}

func (m BoardModel) tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return boardTickMsg{}
	})
}

func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case boardTickMsg:
		m.ticks++
		if m.ticks%reloadEvery == 0 {
			m.reloadAll()
		}
		m.now = m.clock.Now()
		m.refreshRows()
		return m, m.tick()

	case timerUpdatedMsg:
		// a failed save still returns the new state, which is shown with the error
		if msg.timer != nil {
			m.timers[msg.index] = msg.timer
			m.message = fmt.Sprintf("%s: %s", m.order.Processes[msg.index], msg.timer.Status)
			m.messageStatus = msg.timer.Status
		}
		m.err = msg.err
		m.now = m.clock.Now()
		m.refreshRows()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			// timers keep running after the board closes
			return m, tea.Quit
		case "s":
			return m, m.apply(m.control.Start)
		case "p":
			return m, m.apply(m.control.Pause)
		case "x":
			return m, m.apply(m.control.Stop)
		case "r":
			m.reloadAll()
			m.now = m.clock.Now()
			m.refreshRows()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m BoardModel) selected() int {
	return m.table.Cursor()
}

func (m BoardModel) apply(op func(context.Context, tracker.Key) (*models.ProcessTimer, error)) tea.Cmd {
	index := m.selected()
	if index < 0 || index >= len(m.order.Processes) {
		return nil
	}
	key := tracker.Key{WorkOrderID: m.order.OrderNumber, Process: m.order.Processes[index]}
	ctx := m.ctx
	return func() tea.Msg {
		timer, err := op(ctx, key)
		return timerUpdatedMsg{index: index, timer: timer, err: err}
	}
}

func (m *BoardModel) reloadAll() {
	for i, process := range m.order.Processes {
		timer, err := m.control.Timer(m.ctx, tracker.Key{WorkOrderID: m.order.OrderNumber, Process: process})
		if err != nil {
			m.err = err
			continue
		}
		m.timers[i] = timer
	}
}

func (m *BoardModel) refreshRows() {
	rows := make([]table.Row, 0, len(m.order.Processes))
	for i, process := range m.order.Processes {
		status, elapsed := workorder.StatusNotStarted, 0.0
		if t := m.timers[i]; t != nil {
			status = string(t.Status)
			elapsed = tracker.CurrentElapsed(t, m.now)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", i+1),
			process,
			status,
			tracker.FormatDuration(elapsed),
			tracker.FormatDuration(tracker.PerPieceTime(elapsed, m.order.Quantity)),
		})
	}
	m.table.SetRows(rows)
}

func (m BoardModel) total() float64 {
	var timers []models.ProcessTimer
	for _, t := range m.timers {
		if t != nil {
			timers = append(timers, *t)
		}
	}
	return tracker.TotalForWorkOrder(timers, m.now)
}

func (m BoardModel) View() string {
	var b strings.Builder

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorAccentMain)).
		Bold(true)
	productStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorPrimaryText))
	mutedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorSecondaryText))

	b.WriteString(headerStyle.Render(fmt.Sprintf("OS %s", m.order.OrderNumber)))
	b.WriteString("  ")
	b.WriteString(productStyle.Render(m.order.Product))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  ·  %d pcs", m.order.Quantity)))
	b.WriteString("\n\n")

	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	if i := m.selected(); i >= 0 && i < len(m.timers) {
		elapsed := 0.0
		if m.timers[i] != nil {
			elapsed = tracker.CurrentElapsed(m.timers[i], m.now)
		}
		b.WriteString(renderBigClock(elapsed))
		b.WriteString("\n\n")
	}

	total := m.total()
	b.WriteString(productStyle.Render(fmt.Sprintf("Total %s", tracker.FormatDuration(total))))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("   per piece %s", tracker.FormatDuration(tracker.PerPieceTime(total, m.order.Quantity)))))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("Error: " + m.err.Error()))
	case m.message != "":
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(statusColor(m.messageStatus))).Render(m.message))
	}
	b.WriteString("\n")
	b.WriteString(renderHelpBar([][2]string{
		{"↑/↓", "select"}, {"s", "start"}, {"p", "pause"}, {"x", "stop"}, {"r", "reload"}, {"q", "quit"},
	}))

	return b.String()
}

var bigDigits = map[rune][5]string{
	'0': {" ███ ", "█   █", "█   █", "█   █", " ███ "},
	'1': {"  █  ", " ██  ", "  █  ", "  █  ", "█████"},
	'2': {" ███ ", "█   █", "   █ ", "  █  ", "█████"},
	'3': {" ███ ", "█   █", "  ██ ", "█   █", " ███ "},
	'4': {"█   █", "█   █", "█████", "    █", "    █"},
	'5': {"█████", "█    ", "████ ", "    █", "████ "},
	'6': {" ███ ", "█    ", "████ ", "█   █", " ███ "},
	'7': {"█████", "    █", "   █ ", "  █  ", " █   "},
	'8': {" ███ ", "█   █", " ███ ", "█   █", " ███ "},
	'9': {" ███ ", "█   █", " ████", "    █", " ███ "},
	':': {"     ", "  █  ", "     ", "  █  ", "     "},
}

// renderBigClock draws seconds as HH:MM:SS in block digits
func renderBigClock(seconds float64) string {
	var lines [5]strings.Builder
	for _, r := range tracker.FormatDuration(seconds) {
		art, ok := bigDigits[r]
		if !ok {
			continue
		}
		for i := range lines {
			lines[i].WriteString(art[i])
			lines[i].WriteString(" ")
		}
	}

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorAccentBright)).
		Bold(true)
	out := make([]string, len(lines))
	for i := range lines {
		out[i] = style.Render(lines[i].String())
	}
	return strings.Join(out, "\n")
}

func renderHelpBar(keys [][2]string) string {
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright))
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, keyStyle.Render(k[0])+" "+descStyle.Render(k[1]))
	}
	return strings.Join(parts, descStyle.Render("  •  "))
}
