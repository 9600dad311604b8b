// Package notify surfaces recording progress to the user. Notifications are
// fire-and-forget: delivery failures are logged, never returned.
package notify

import (
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Notifier receives the user-visible outcomes of a capture session
type Notifier interface {
	OnStarted()
	OnCompleted(path string)
	OnFailed(reason string)
}

// Urgency levels for notifications
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

// Notification text
const (
	TitleRecording = "Screen Recording"
	TitleComplete  = "Recording Complete"
	TitleFailed    = "Recording Failed"
	BodyStarted    = "Screen recording in progress"
	BodySavedTo    = "Video saved to: "
)

// Send sends a desktop notification using notify-send
func Send(title, body string, urgency Urgency, icon string) error {
	args := []string{title, body}

	if urgency != "" {
		args = append(args, "--urgency="+string(urgency))
	}

	if icon != "" {
		args = append(args, "--icon="+icon)
	}

	args = append(args, "--app-name=kartoza-screenmux")

	cmd := exec.Command("notify-send", args...)
	return cmd.Run()
}

// Info sends an informational notification
func Info(title, body string) error {
	return Send(title, body, UrgencyNormal, "video-x-generic")
}

// Error sends an error notification
func Error(title, body string) error {
	return Send(title, body, UrgencyCritical, "dialog-error")
}

// Desktop shows notify-send notifications
type Desktop struct {
	// SendFunc overrides Send, for tests
	SendFunc func(title, body string, urgency Urgency, icon string) error
}

func (d Desktop) send(title, body string, urgency Urgency, icon string) {
	send := d.SendFunc
	if send == nil {
		send = Send
	}
	if err := send(title, body, urgency, icon); err != nil {
		log.Debug().Err(err).Str("title", title).Msg("Desktop notification not delivered")
	}
}

func (d Desktop) OnStarted() {
	d.send(TitleRecording, BodyStarted, UrgencyLow, "media-record")
}

func (d Desktop) OnCompleted(path string) {
	d.send(TitleComplete, BodySavedTo+filepath.Base(path), UrgencyNormal, "video-x-generic")
}

func (d Desktop) OnFailed(reason string) {
	d.send(TitleFailed, reason, UrgencyCritical, "dialog-error")
}

// Log writes outcomes to the structured log
type Log struct{}

func (Log) OnStarted() {
	log.Info().Msg(BodyStarted)
}

func (Log) OnCompleted(path string) {
	log.Info().Str("path", path).Msg(TitleComplete)
}

func (Log) OnFailed(reason string) {
	log.Error().Str("reason", reason).Msg(TitleFailed)
}

// Multi fans out to several notifiers in order
type Multi []Notifier

func (m Multi) OnStarted() {
	for _, n := range m {
		n.OnStarted()
	}
}

func (m Multi) OnCompleted(path string) {
	for _, n := range m {
		n.OnCompleted(path)
	}
}

func (m Multi) OnFailed(reason string) {
	for _, n := range m {
		n.OnFailed(reason)
	}
}

// Event is one recorded notification
type Event struct {
	Kind   string
	Detail string
}

// Event kinds
const (
	KindStarted   = "started"
	KindCompleted = "completed"
	KindFailed    = "failed"
)

// Recorder keeps every notification and forwards it to an optional channel.
// The TUI and tests observe a session through it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

// NewRecorder returns a Recorder; if buffer > 0 events are also sent on C()
func NewRecorder(buffer int) *Recorder {
	r := &Recorder{}
	if buffer > 0 {
		r.ch = make(chan Event, buffer)
	}
	return r
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.ch != nil {
		select {
		case r.ch <- e:
		default:
			log.Warn().Str("kind", e.Kind).Msg("Notification channel full, dropping event")
		}
	}
}

// C returns the event channel, nil when unbuffered
func (r *Recorder) C() <-chan Event { return r.ch }

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OnStarted()              { r.add(Event{Kind: KindStarted}) }
func (r *Recorder) OnCompleted(path string) { r.add(Event{Kind: KindCompleted, Detail: path}) }
func (r *Recorder) OnFailed(reason string)  { r.add(Event{Kind: KindFailed, Detail: reason}) }
