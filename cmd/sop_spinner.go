package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/xhs-pilot/internal/domain"
)

// stepReporter receives every workflow step once it reaches a terminal status.
type stepReporter func(run *domain.SOPRun, step *domain.SOPStep)

// sopStepMsg carries one finished step from the workflow goroutine to the model.
type sopStepMsg struct {
	name     string
	status   domain.StepStatus
	finished int
	total    int
}

func newSOPStepMsg(run *domain.SOPRun, step *domain.SOPStep) sopStepMsg {
	return sopStepMsg{
		name:     step.Name,
		status:   step.Result.Status,
		finished: run.Finished(),
		total:    len(run.Steps),
	}
}

type sopDoneMsg struct {
	err error
}

var (
	stepCountStyle   = lipgloss.NewStyle().Faint(true)
	stepOKStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stepProblemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// sopSpinnerModel shows the workflow label and the last finished step.
type sopSpinnerModel struct {
	spinner spinner.Model
	label   string
	run     tea.Cmd
	last    *sopStepMsg
	err     error
	done    bool
}

func newSOPSpinnerModel(label string, run tea.Cmd) sopSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("204"))),
	)

	return sopSpinnerModel{
		spinner: s,
		label:   label,
		run:     run,
	}
}

func (m sopSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m sopSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case sopStepMsg:
		m.last = &msg
		return m, nil
	case sopDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m sopSpinnerModel) View() string {
	if m.done {
		return ""
	}

	line := fmt.Sprintf("%s %s", m.spinner.View(), m.label)
	if m.last == nil {
		return line
	}

	status := stepOKStyle
	if m.last.status == domain.StepFailed || m.last.status == domain.StepChallenged {
		status = stepProblemStyle
	}
	return fmt.Sprintf("%s %s %s %s", line,
		stepCountStyle.Render(fmt.Sprintf("[%d/%d]", m.last.finished, m.last.total)),
		m.last.name,
		status.Render(string(m.last.status)),
	)
}

// runSOPSpinner runs fn while a spinner ticks on output and shows each step fn
// reports. The error is fn's.
func runSOPSpinner(ctx context.Context, output io.Writer, label string, fn func(context.Context, stepReporter) error) error {
	var p *tea.Program

	report := func(run *domain.SOPRun, step *domain.SOPStep) {
		p.Send(newSOPStepMsg(run, step))
	}
	runCmd := func() tea.Msg {
		return sopDoneMsg{err: fn(ctx, report)}
	}

	p = tea.NewProgram(
		newSOPSpinnerModel(label, runCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(sopSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.err
}
