// Package tui renders the foreground recording view: capture state, elapsed
// time, merge progress and a poster frame of the result.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/stopwatch"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/notify"
	"github.com/kartoza/kartoza-screenmux/internal/session"
)

type keyMap struct {
	Stop  key.Binding
	Force key.Binding
}

var keys = keyMap{
	Stop: key.NewBinding(
		key.WithKeys("q", "esc"),
		key.WithHelp("q", "stop recording"),
	),
	Force: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "stop / cancel merge"),
	),
}

// StateMsg reports a session state transition
type StateMsg models.SessionState

// PercentMsg reports merge progress in [0, 100]
type PercentMsg float64

// EventMsg carries a user notification
type EventMsg notify.Event

// DoneMsg carries the session outcome
type DoneMsg session.Outcome

type blinkMsg struct{}

// RecordOptions wires the view to a running session
type RecordOptions struct {
	// Stop asks the session to stop capturing; it may block until teardown
	Stop func()
	// Cancel abandons a running merge
	Cancel func()
	// Events delivers notifications, may be nil
	Events <-chan notify.Event
	// Poster enables the inline still of the merged file
	Poster     bool
	FFmpegPath string
}

// RecordModel is the bubbletea model for `record`
type RecordModel struct {
	opts RecordOptions

	state      models.SessionState
	spinner    spinner.Model
	stopwatch  stopwatch.Model
	progress   progress.Model
	percent    float64
	processing *ProcessingState
	frame      int
	blinkOn    bool

	stopRequested bool
	cancelled     bool
	notices       []string
	outcome       *session.Outcome
	poster        string
	width         int
}

// NewRecordModel creates the view in the Starting state
func NewRecordModel(opts RecordOptions) RecordModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorOrange)

	return RecordModel{
		opts:       opts,
		state:      models.StateStarting,
		spinner:    s,
		stopwatch:  stopwatch.NewWithInterval(time.Second),
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		processing: NewProcessingState(),
		blinkOn:    true,
	}
}

func waitForEvent(ch <-chan notify.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg(e)
	}
}

func blinkCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return blinkMsg{}
	})
}

// Init starts the spinner and the notification pump
func (m RecordModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.opts.Events))
}

// Update handles messages
func (m RecordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 12; w > 10 && w < 40 {
			m.progress.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		return m.applyState(models.SessionState(msg))

	case PercentMsg:
		m.percent = float64(msg)
		return m, nil

	case EventMsg:
		m.notices = append(m.notices, noticeText(notify.Event(msg)))
		return m, waitForEvent(m.opts.Events)

	case DoneMsg:
		out := session.Outcome(msg)
		m.outcome = &out
		m.state = out.State
		m.processing.Apply(out.State, time.Now())
		if out.Err != nil && out.State == models.StateFailed {
			m.processing.Fail(out.Err, time.Now())
		}
		if out.State == models.StateCompleted && m.opts.Poster && out.Path != "" {
			return m, posterCmd(m.opts.FFmpegPath, out.Path)
		}
		return m, tea.Quit

	case PosterMsg:
		if msg.Err == nil {
			m.poster = msg.Rendered
		}
		return m, tea.Quit

	case blinkMsg:
		if m.state != models.StateCapturing {
			m.blinkOn = true
			return m, nil
		}
		m.blinkOn = !m.blinkOn
		return m, blinkCmd()

	case processingTickMsg:
		if m.processing.IsProcessing {
			m.frame++
			return m, processingTickCmd()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stopwatch.TickMsg, stopwatch.StartStopMsg, stopwatch.ResetMsg:
		var cmd tea.Cmd
		m.stopwatch, cmd = m.stopwatch.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m RecordModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, keys.Stop) && !key.Matches(msg, keys.Force) {
		return m, nil
	}

	switch m.state {
	case models.StateCapturing:
		if m.stopRequested || m.opts.Stop == nil {
			return m, nil
		}
		m.stopRequested = true
		stop := m.opts.Stop
		return m, func() tea.Msg {
			stop()
			return nil
		}

	case models.StateMerging:
		// Only ctrl+c abandons a merge; q keeps waiting
		if key.Matches(msg, keys.Force) && !m.cancelled && m.opts.Cancel != nil {
			m.cancelled = true
			m.opts.Cancel()
		}
		return m, nil
	}

	return m, nil
}

func (m RecordModel) applyState(state models.SessionState) (tea.Model, tea.Cmd) {
	prev := m.processing.IsProcessing
	m.state = state
	m.processing.Apply(state, time.Now())

	var cmds []tea.Cmd
	switch state {
	case models.StateCapturing:
		cmds = append(cmds, m.stopwatch.Init(), blinkCmd())
	case models.StateStopping:
		cmds = append(cmds, m.stopwatch.Stop())
	}
	if m.processing.IsProcessing && !prev {
		cmds = append(cmds, processingTickCmd())
	}
	return m, tea.Batch(cmds...)
}

func noticeText(e notify.Event) string {
	switch e.Kind {
	case notify.KindStarted:
		return notify.BodyStarted
	case notify.KindCompleted:
		return notify.BodySavedTo + filepath.Base(e.Detail)
	case notify.KindFailed:
		return e.Detail
	}
	return e.Kind
}

// View renders the UI
func (m RecordModel) View() string {
	header := RenderHeader(HeaderState{
		State:    m.state,
		Duration: m.elapsed(),
		BlinkOn:  m.blinkOn,
	})

	var body string
	switch m.state {
	case models.StateIdle, models.StateStarting:
		body = m.spinner.View() + " Requesting capture grant..."

	case models.StateCapturing:
		rec := lipgloss.NewStyle().Foreground(ColorRed).Bold(true).Render("REC")
		body = fmt.Sprintf("%s  %s", rec, ValueStyle.Render(m.stopwatch.View()))

	case models.StateStopping, models.StateMerging:
		bar := ""
		if m.state == models.StateMerging {
			bar = m.progress.ViewAs(m.percent / 100)
		}
		body = RenderProcessingView(m.processing, m.frame, bar)

	case models.StateCompleted:
		lines := []string{RenderProcessingView(m.processing, m.frame, "")}
		if m.outcome != nil {
			lines = append(lines, "", SuccessStyle.Render(notify.BodySavedTo)+ValueStyle.Render(m.outcome.Path))
			if m.outcome.VideoOnly {
				lines = append(lines, LabelStyle.Render("No system audio was captured; the file has video only"))
			}
		}
		if m.poster != "" {
			lines = append(lines, "", m.poster)
		}
		body = strings.Join(lines, "\n")

	case models.StateFailed:
		lines := []string{RenderProcessingView(m.processing, m.frame, "")}
		if m.outcome != nil && m.outcome.Err != nil && m.processing.Error == nil {
			lines = append(lines, ErrorStyle.Render(m.outcome.Err.Error()))
		}
		body = strings.Join(lines, "\n")
	}

	parts := []string{header, "", BoxStyle.Render(body)}
	for _, n := range m.notices {
		parts = append(parts, LabelStyle.Render("• "+n))
	}
	if help := m.help(); help != "" {
		parts = append(parts, "", LabelStyle.Render(help))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

func (m RecordModel) elapsed() string {
	if m.stopwatch.Elapsed() == 0 {
		return ""
	}
	return m.stopwatch.Elapsed().String()
}

func (m RecordModel) help() string {
	switch m.state {
	case models.StateCapturing:
		if m.stopRequested {
			return "stopping..."
		}
		return "q / ctrl+c: stop recording"
	case models.StateMerging:
		if m.cancelled {
			return "cancelling merge..."
		}
		return "ctrl+c: cancel merge (intermediate files are kept)"
	}
	return ""
}

// State returns the last state the view was told about
func (m RecordModel) State() models.SessionState { return m.state }

// Outcome returns the outcome once DoneMsg arrived
func (m RecordModel) Outcome() *session.Outcome { return m.outcome }
