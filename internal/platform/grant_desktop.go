package platform

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kartoza/kartoza-screenmux/internal/deps"
	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/monitor"
)

// DesktopAuthorizer grants capture of the local desktop session
type DesktopAuthorizer struct {
	// Backend is "auto", "x11" or "wayland"
	Backend     string
	FFmpegPath  string
	AudioDevice string
	// Output names the Wayland output to mirror; empty follows the cursor
	Output string
}

// Authorize checks that a display server is reachable and returns a grant
// that is revoked when the process receives SIGHUP (desktop session ended).
func (a DesktopAuthorizer) Authorize(ctx context.Context) (Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	backend, err := resolveBackend(a.Backend)
	if err != nil {
		return nil, err
	}

	opts := MirrorOptions{Backend: backend, FFmpegPath: a.FFmpegPath, Output: a.Output}
	if backend == BackendWayland && opts.Output == "" {
		// Best effort: mirror the output holding the cursor on Hyprland
		if name, err := monitor.GetMouseMonitor(); err == nil {
			opts.Output = name
		}
	}

	g := NewDesktopGrant(opts, a.AudioDevice)
	g.watchSignals(syscall.SIGHUP)
	return g, nil
}

func resolveBackend(backend string) (string, error) {
	switch backend {
	case BackendX11, BackendWayland:
		return backend, nil
	case "", "auto":
		switch deps.DetectDisplayServer() {
		case deps.DisplayServerWayland:
			return BackendWayland, nil
		case deps.DisplayServerX11:
			return BackendX11, nil
		}
		return "", ErrNoDisplay
	}
	return "", fmt.Errorf("unknown mirror backend %q", backend)
}

// DesktopGrant is the capture grant for the local desktop
type DesktopGrant struct {
	id          string
	mirror      MirrorOptions
	audioDevice string

	revoked    chan struct{}
	revokeOnce sync.Once

	mu       sync.Mutex
	sigCh    chan os.Signal
	quit     chan struct{}
	released bool
}

// NewDesktopGrant returns an unwatched grant; Authorize is the usual entry point
func NewDesktopGrant(mirror MirrorOptions, audioDevice string) *DesktopGrant {
	return &DesktopGrant{
		id:          uuid.NewString(),
		mirror:      mirror,
		audioDevice: audioDevice,
		revoked:     make(chan struct{}),
	}
}

// watchSignals registers the revocation callback
func (g *DesktopGrant) watchSignals(sigs ...os.Signal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sigCh = make(chan os.Signal, 1)
	g.quit = make(chan struct{})
	signal.Notify(g.sigCh, sigs...)

	go func(sigCh chan os.Signal, quit chan struct{}) {
		select {
		case sig := <-sigCh:
			log.Warn().Str("grant", g.id).Str("signal", sig.String()).Msg("Capture grant revoked")
			g.Revoke()
		case <-quit:
		}
	}(g.sigCh, g.quit)
}

// ID implements Projection
func (g *DesktopGrant) ID() string { return g.id }

// Revoked implements Projection
func (g *DesktopGrant) Revoked() <-chan struct{} { return g.revoked }

// Revoke withdraws the grant; safe to call more than once
func (g *DesktopGrant) Revoke() {
	g.revokeOnce.Do(func() { close(g.revoked) })
}

func (g *DesktopGrant) usable() error {
	if g.released {
		return ErrReleased
	}
	select {
	case <-g.revoked:
		return fmt.Errorf("capture grant revoked")
	default:
		return nil
	}
}

// CreateVirtualDisplay implements Projection by starting the mirror process
func (g *DesktopGrant) CreateVirtualDisplay(ctx context.Context, name string, track models.VideoTrack, surface Surface) (VirtualDisplay, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.usable(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if surface == nil {
		return nil, fmt.Errorf("virtual display %s: no surface", name)
	}

	log.Debug().Str("grant", g.id).Str("display", name).Str("backend", g.mirror.Backend).
		Msg("Creating virtual display")
	return startMirror(g.mirror, track, surface)
}

// NewAudioRecord implements Projection with a parec monitor tap
func (g *DesktopGrant) NewAudioRecord(format models.AudioTrack, bufferSize int) (AudioRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.usable(); err != nil {
		return nil, err
	}
	return NewParecRecord(g.audioDevice, format, bufferSize), nil
}

// Stop implements Projection
func (g *DesktopGrant) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return nil
	}
	g.released = true

	if g.sigCh != nil {
		signal.Stop(g.sigCh)
		close(g.quit)
	}
	return nil
}
