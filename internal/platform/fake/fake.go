// Package fake provides in-memory capture handles that record every lifecycle
// call in a shared Journal. They stand in for the desktop platform in tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/platform"
)

// Journal events
const (
	EventGrantAcquired  = "grant.acquire"
	EventGrantStop      = "grant.stop"
	EventDisplayCreate  = "display.create"
	EventDisplayRelease = "display.release"
	EventEncoderPrepare = "encoder.prepare"
	EventEncoderStart   = "encoder.start"
	EventEncoderStop    = "encoder.stop"
	EventEncoderRelease = "encoder.release"
	EventAudioStart     = "audio.start"
	EventAudioStop      = "audio.stop"
	EventAudioRelease   = "audio.release"
)

// Header and Trailer are written by the fake encoder around its frames
var (
	Header  = []byte("ftypisom")
	Trailer = []byte("moov")
)

// Journal is an ordered, concurrency-safe log of handle events
type Journal struct {
	mu     sync.Mutex
	events []string
}

// Add appends an event
func (j *Journal) Add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

// Events returns a copy of the recorded events
func (j *Journal) Events() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.events)
}

// Index returns the position of the first occurrence of event, or -1
func (j *Journal) Index(event string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Index(j.events, event)
}

// Has reports whether event was recorded
func (j *Journal) Has(event string) bool {
	return j.Index(event) >= 0
}

// Platform bundles a fake authorizer and encoder factory sharing one journal
type Platform struct {
	Journal *Journal

	// AuthorizeErr makes Authorize fail
	AuthorizeErr error
	// DisplayErr makes CreateVirtualDisplay fail
	DisplayErr error
	// PrepareErr makes Encoder.Prepare fail
	PrepareErr error
	// AudioUninitialized leaves new audio records uninitialized
	AudioUninitialized bool
	// AudioFailAfter makes the audio tap die after this many reads (0 = never)
	AudioFailAfter int
	// AudioSilent makes the tap time out on every read without producing data
	AudioSilent bool

	mu      sync.Mutex
	grant   *Grant
	encoder *Encoder
}

// New returns a Platform with a fresh journal
func New() *Platform {
	return &Platform{Journal: &Journal{}}
}

// Authorize implements platform.Authorizer
func (p *Platform) Authorize(ctx context.Context) (platform.Projection, error) {
	if p.AuthorizeErr != nil {
		return nil, p.AuthorizeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := &Grant{p: p, revoked: make(chan struct{})}
	p.mu.Lock()
	p.grant = g
	p.mu.Unlock()
	p.Journal.Add(EventGrantAcquired)
	return g, nil
}

// NewEncoder implements platform.EncoderFactory
func (p *Platform) NewEncoder(track models.VideoTrack, output string) platform.Encoder {
	e := &Encoder{p: p, track: track, output: output, errCh: make(chan error, 1)}
	p.mu.Lock()
	p.encoder = e
	p.mu.Unlock()
	return e
}

// Grant returns the last issued grant
func (p *Platform) Grant() *Grant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grant
}

// Encoder returns the last created encoder
func (p *Platform) Encoder() *Encoder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder
}

// Grant is a fake capture grant
type Grant struct {
	p          *Platform
	revoked    chan struct{}
	revokeOnce sync.Once
	stopOnce   sync.Once
}

func (g *Grant) ID() string               { return "fake-grant" }
func (g *Grant) Revoked() <-chan struct{} { return g.revoked }

// Revoke simulates the platform's "stop sharing" affordance
func (g *Grant) Revoke() {
	g.revokeOnce.Do(func() { close(g.revoked) })
}

func (g *Grant) CreateVirtualDisplay(ctx context.Context, name string, track models.VideoTrack, surface platform.Surface) (platform.VirtualDisplay, error) {
	if g.p.DisplayErr != nil {
		return nil, g.p.DisplayErr
	}
	if surface == nil {
		return nil, errors.New("no surface")
	}
	g.p.Journal.Add(EventDisplayCreate)
	return &Display{p: g.p, errCh: make(chan error, 1)}, nil
}

func (g *Grant) NewAudioRecord(format models.AudioTrack, bufferSize int) (platform.AudioRecord, error) {
	r := &AudioRecord{
		p:          g.p,
		format:     format,
		bufferSize: bufferSize,
		state:      platform.RecordInitialized,
	}
	if g.p.AudioUninitialized {
		r.state = platform.RecordUninitialized
	}
	return r, nil
}

func (g *Grant) Stop() error {
	g.stopOnce.Do(func() { g.p.Journal.Add(EventGrantStop) })
	return nil
}

// Display is a fake virtual display
type Display struct {
	p     *Platform
	errCh chan error
	once  sync.Once
}

func (d *Display) Err() <-chan error { return d.errCh }

func (d *Display) Release() error {
	d.once.Do(func() { d.p.Journal.Add(EventDisplayRelease) })
	return nil
}

type surface string

func (s surface) Path() string { return string(s) }

// Encoder writes a small fake container: Header on start, Trailer on stop
type Encoder struct {
	p      *Platform
	track  models.VideoTrack
	output string
	errCh  chan error

	mu       sync.Mutex
	prepared bool
	started  bool
	stopped  bool
	released bool
}

func (e *Encoder) Prepare() error {
	if e.p.PrepareErr != nil {
		return e.p.PrepareErr
	}
	e.mu.Lock()
	e.prepared = true
	e.mu.Unlock()
	e.p.Journal.Add(EventEncoderPrepare)
	return nil
}

func (e *Encoder) Surface() platform.Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.prepared {
		return nil
	}
	return surface("fake://surface")
}

func (e *Encoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.prepared {
		return errors.New("encoder not prepared")
	}
	if err := os.WriteFile(e.output, Header, 0644); err != nil {
		return err
	}
	e.started = true
	e.p.Journal.Add(EventEncoderStart)
	return nil
}

func (e *Encoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return platform.ErrReleased
	}
	if !e.started || e.stopped {
		return nil
	}
	e.stopped = true
	f, err := os.OpenFile(e.output, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(Trailer); err != nil {
		return err
	}
	e.p.Journal.Add(EventEncoderStop)
	return nil
}

func (e *Encoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return nil
	}
	e.released = true
	e.p.Journal.Add(EventEncoderRelease)
	return nil
}

func (e *Encoder) Err() <-chan error { return e.errCh }

// Fail simulates a mid-capture encoder error
func (e *Encoder) Fail(err error) {
	select {
	case e.errCh <- err:
	default:
	}
}

// AudioRecord produces silence paced by the wall clock at the format's byte rate
type AudioRecord struct {
	p          *Platform
	format     models.AudioTrack
	bufferSize int

	mu       sync.Mutex
	state    platform.RecordState
	started  time.Time
	produced int64
	reads    int
	released bool
}

func (r *AudioRecord) State() platform.RecordState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *AudioRecord) StartRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != platform.RecordInitialized {
		return errors.New("not initialized")
	}
	r.started = time.Now()
	r.p.Journal.Add(EventAudioStart)
	return nil
}

// Read returns one buffer once enough wall time has elapsed for it to exist
func (r *AudioRecord) Read(ctx context.Context, buf []byte) (int, error) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return 0, platform.ErrRecordEnded
	}
	r.reads++
	if r.p.AudioFailAfter > 0 && r.reads > r.p.AudioFailAfter {
		r.mu.Unlock()
		return 0, fmt.Errorf("%w: device lost", platform.ErrRecordEnded)
	}
	n := min(len(buf), r.bufferSize)
	rate := int64(r.format.ByteRate())
	due := r.started.Add(time.Duration((r.produced + int64(n)) * int64(time.Second) / rate))
	silent := r.p.AudioSilent
	r.mu.Unlock()

	wait := time.Until(due)
	if silent || wait > platform.ReadTimeout {
		wait = platform.ReadTimeout
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, nil
		case <-timer.C:
		}
	}
	if silent || time.Now().Before(due) {
		return 0, nil
	}

	clear(buf[:n])
	r.mu.Lock()
	r.produced += int64(n)
	r.mu.Unlock()
	return n, nil
}

func (r *AudioRecord) Stop() error {
	r.p.Journal.Add(EventAudioStop)
	return nil
}

func (r *AudioRecord) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true
	r.state = platform.RecordUninitialized
	r.p.Journal.Add(EventAudioRelease)
	return nil
}
