package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/parser"
	"github.com/balkashynov/wotrack/internal/workorder"
)

// Step represents the current step of the order form
type Step int

const (
	StepNumber Step = iota
	StepProduct
	StepQuantity
	StepProcesses
	StepSave
)

var stepLabels = []string{"Order number", "Product", "Quantity", "Processes"}

// OrderCreator registers work orders
type OrderCreator interface {
	Create(ctx context.Context, req workorder.CreateRequest) (*models.WorkOrder, error)
}

// OrderFormModel is a step-by-step form for a new work order
type OrderFormModel struct {
	ctx       context.Context
	creator   OrderCreator
	available []string

	currentStep Step
	inputs      []textinput.Model
	width       int

	// values accepted so far
	number    string
	product   string
	quantity  int
	processes []string

	validationErr string
	err           error
	completed     bool
	cancelled     bool
	created       *models.WorkOrder
}

type orderCreatedMsg struct {
	order *models.WorkOrder
	err   error
}

// NewOrderFormModel creates the form. available is the default process list
// offered by index; prefilled keys are number, product, quantity and processes.
func NewOrderFormModel(ctx context.Context, creator OrderCreator, available []string, prefilled map[string]string) OrderFormModel {
	inputs := make([]textinput.Model, len(stepLabels))
	for i := range inputs {
		inputs[i] = textinput.New()
		inputs[i].Width = 50
		inputs[i].TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))
		inputs[i].PlaceholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPlaceholder))
		inputs[i].Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright))
	}

	inputs[StepNumber].Placeholder = "OS number, e.g. 4410 (required)"
	inputs[StepNumber].CharLimit = 40
	inputs[StepProduct].Placeholder = "Product description (required)"
	inputs[StepProduct].CharLimit = 200
	inputs[StepQuantity].Placeholder = "Pieces, e.g. 500 (required)"
	inputs[StepQuantity].CharLimit = 12
	inputs[StepProcesses].Placeholder = "1,3,6 or names (Enter for all)"
	inputs[StepProcesses].CharLimit = 300

	for key, step := range map[string]Step{
		"number":    StepNumber,
		"product":   StepProduct,
		"quantity":  StepQuantity,
		"processes": StepProcesses,
	} {
		if v, ok := prefilled[key]; ok {
			inputs[step].SetValue(v)
		}
	}
	inputs[StepNumber].Focus()

	return OrderFormModel{
		ctx:       ctx,
		creator:   creator,
		available: available,
		inputs:    inputs,
	}
}

func (m OrderFormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m OrderFormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case orderCreatedMsg:
		if msg.err != nil {
			// stay open so the operator can fix the number and retry
			m.validationErr = msg.err.Error()
			return m, nil
		}
		m.created = msg.order
		m.completed = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "shift+tab", "up":
			return m.prevStep()
		}
	}

	var cmd tea.Cmd
	if m.currentStep < StepSave {
		m.inputs[m.currentStep], cmd = m.inputs[m.currentStep].Update(msg)
	}
	return m, cmd
}

// handleEnter validates the current field and moves on; on the last step it
// creates the work order
func (m OrderFormModel) handleEnter() (tea.Model, tea.Cmd) {
	m.validationErr = ""

	if m.currentStep == StepSave {
		return m, m.create()
	}

	value := strings.TrimSpace(m.inputs[m.currentStep].Value())
	switch m.currentStep {
	case StepNumber:
		number, err := parser.NormalizeOrderNumber(value)
		if err != nil {
			m.validationErr = err.Error()
			return m, nil
		}
		m.number = number
		m.inputs[StepNumber].SetValue(number)
	case StepProduct:
		if value == "" {
			m.validationErr = "Product is required"
			return m, nil
		}
		m.product = value
	case StepQuantity:
		qty, err := parser.ParseQuantity(value)
		if err != nil {
			m.validationErr = err.Error()
			return m, nil
		}
		m.quantity = qty
	case StepProcesses:
		m.processes = nil
		if value != "" {
			refs := strings.Split(value, ",")
			for i := range refs {
				refs[i] = strings.TrimSpace(refs[i])
			}
			resolved, errs := parser.ResolveProcessRefs(refs, m.available)
			if len(errs) > 0 {
				m.validationErr = strings.Join(errs, "; ")
				return m, nil
			}
			m.processes = resolved
		}
	}
	return m.nextStep()
}

func (m OrderFormModel) create() tea.Cmd {
	ctx, creator := m.ctx, m.creator
	req := workorder.CreateRequest{
		OrderNumber: m.number,
		Product:     m.product,
		Quantity:    m.quantity,
		Processes:   m.processes,
	}
	return func() tea.Msg {
		order, err := creator.Create(ctx, req)
		return orderCreatedMsg{order: order, err: err}
	}
}

func (m OrderFormModel) nextStep() (tea.Model, tea.Cmd) {
	if m.currentStep < StepSave {
		m.inputs[m.currentStep].Blur()
		m.currentStep++
	}
	if m.currentStep < StepSave {
		m.inputs[m.currentStep].Focus()
	}
	return m, textinput.Blink
}

func (m OrderFormModel) prevStep() (tea.Model, tea.Cmd) {
	if m.currentStep == StepNumber {
		return m, nil
	}
	if m.currentStep < StepSave {
		m.inputs[m.currentStep].Blur()
	}
	m.currentStep--
	m.inputs[m.currentStep].Focus()
	return m, textinput.Blink
}

func (m OrderFormModel) processesPreview() string {
	if len(m.processes) > 0 {
		return strings.Join(m.processes, ", ")
	}
	return "all defaults (" + strings.Join(m.available, ", ") + ")"
}

func (m OrderFormModel) View() string {
	if m.cancelled || m.completed {
		return ""
	}

	var b strings.Builder
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentMain)).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).Bold(true)
	doneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess))

	b.WriteString(titleStyle.Render("New work order"))
	b.WriteString("\n\n")

	for i, label := range stepLabels {
		step := Step(i)
		switch {
		case step == m.currentStep:
			b.WriteString(activeStyle.Render("› " + label))
			b.WriteString("\n  ")
			b.WriteString(m.inputs[i].View())
		case step < m.currentStep:
			b.WriteString(doneStyle.Render("✓ " + label))
			b.WriteString(labelStyle.Render(": " + m.inputs[i].Value()))
		default:
			b.WriteString(labelStyle.Render("  " + label))
		}
		b.WriteString("\n")
	}

	if m.currentStep == StepProcesses && len(m.available) > 0 {
		b.WriteString("\n")
		for i, name := range m.available {
			b.WriteString(labelStyle.Render(fmt.Sprintf("    %d. %s\n", i+1, name)))
		}
	}

	if m.currentStep == StepSave {
		b.WriteString("\n")
		b.WriteString(activeStyle.Render(fmt.Sprintf("Create OS %s: %s, %d pcs", m.number, m.product, m.quantity)))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Processes: " + m.processesPreview()))
		b.WriteString("\n")
	}

	if m.validationErr != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("⚠ " + m.validationErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderHelpBar([][2]string{{"enter", "next"}, {"shift+tab", "back"}, {"esc", "cancel"}}))
	return b.String()
}
