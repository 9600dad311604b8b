package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// Step indexes in the post-capture pipeline
const (
	StepStopCapture = iota
	StepMerge
	StepCleanup
)

// ProcessingStep represents a single post-capture step
type ProcessingStep struct {
	Name      string
	Status    StepStatus
	StartTime time.Time
	EndTime   time.Time
}

// StepStatus represents the status of a processing step
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepFailed
	StepSkipped
)

// ProcessingState tracks the steps between Stop and the final outcome
type ProcessingState struct {
	Steps        []ProcessingStep
	CurrentStep  int
	IsProcessing bool
	StartTime    time.Time
	Error        error
}

// NewProcessingState creates the stop, merge and cleanup steps
func NewProcessingState() *ProcessingState {
	return &ProcessingState{
		Steps: []ProcessingStep{
			{Name: "Stopping capture", Status: StepPending},
			{Name: "Merging video & audio", Status: StepPending},
			{Name: "Removing intermediate files", Status: StepPending},
		},
		CurrentStep: -1,
	}
}

func (p *ProcessingState) begin(index int, now time.Time) {
	if !p.IsProcessing {
		p.IsProcessing = true
		p.StartTime = now
	}
	p.CurrentStep = index
	p.Steps[index].Status = StepRunning
	p.Steps[index].StartTime = now
}

func (p *ProcessingState) end(index int, status StepStatus, now time.Time) {
	if p.Steps[index].Status != StepRunning && status != StepSkipped {
		return
	}
	p.Steps[index].Status = status
	p.Steps[index].EndTime = now
}

// Apply moves the steps forward for a session state change
func (p *ProcessingState) Apply(state models.SessionState, now time.Time) {
	switch state {
	case models.StateStopping:
		p.begin(StepStopCapture, now)
	case models.StateMerging:
		p.end(StepStopCapture, StepComplete, now)
		p.begin(StepMerge, now)
	case models.StateCompleted:
		p.end(StepStopCapture, StepComplete, now)
		if p.Steps[StepMerge].Status == StepPending {
			// Video only, nothing to merge
			p.end(StepMerge, StepSkipped, now)
			p.end(StepCleanup, StepSkipped, now)
		} else {
			p.end(StepMerge, StepComplete, now)
			p.begin(StepCleanup, now)
			p.end(StepCleanup, StepComplete, now)
		}
		p.IsProcessing = false
	case models.StateFailed:
		if p.CurrentStep >= 0 {
			p.end(p.CurrentStep, StepFailed, now)
		}
		p.IsProcessing = false
	}
}

// Fail records err against the current step
func (p *ProcessingState) Fail(err error, now time.Time) {
	if p.CurrentStep >= 0 {
		p.end(p.CurrentStep, StepFailed, now)
	}
	p.Error = err
	p.IsProcessing = false
}

type processingTickMsg struct{}

func processingTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return processingTickMsg{}
	})
}

// Donut animation frames for the running step
var donutFrames = []string{"◐", "◓", "◑", "◒"}

// RenderProcessingView renders the step list with an optional merge progress bar
func RenderProcessingView(state *ProcessingState, frame int, progressBar string) string {
	if state == nil {
		return ""
	}

	var steps []string
	for i, step := range state.Steps {
		line := renderStepLine(step, frame)
		if i == StepMerge && step.Status == StepRunning && progressBar != "" {
			line += "\n    " + progressBar
		}
		steps = append(steps, line)
	}

	var status string
	switch {
	case state.Error != nil:
		status = ErrorStyle.Render(fmt.Sprintf("Error: %v", state.Error))
	case state.IsProcessing:
		status = LabelStyle.Render(fmt.Sprintf("Elapsed: %s", time.Since(state.StartTime).Round(time.Second)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, strings.Join(steps, "\n"), "", status)
}

func renderStepLine(step ProcessingStep, frame int) string {
	var indicator string
	var nameStyle lipgloss.Style

	switch step.Status {
	case StepPending:
		indicator = lipgloss.NewStyle().Foreground(ColorGray).Render("○")
		nameStyle = lipgloss.NewStyle().Foreground(ColorGray)
	case StepRunning:
		indicator = lipgloss.NewStyle().Foreground(ColorOrange).Bold(true).Render(donutFrames[frame%len(donutFrames)])
		nameStyle = lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)
	case StepComplete:
		indicator = lipgloss.NewStyle().Foreground(ColorGreen).Render("●")
		nameStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	case StepFailed:
		indicator = lipgloss.NewStyle().Foreground(ColorRed).Render("✗")
		nameStyle = lipgloss.NewStyle().Foreground(ColorRed)
	case StepSkipped:
		indicator = lipgloss.NewStyle().Foreground(ColorGray).Render("○")
		nameStyle = lipgloss.NewStyle().Foreground(ColorGray).Strikethrough(true)
	}

	var duration string
	if step.Status == StepComplete || step.Status == StepFailed {
		d := step.EndTime.Sub(step.StartTime).Round(100 * time.Millisecond)
		duration = lipgloss.NewStyle().Foreground(ColorGray).Italic(true).Render(fmt.Sprintf(" (%s)", d))
	}

	return fmt.Sprintf("  %s %s%s", indicator, nameStyle.Render(step.Name), duration)
}
