// Package video binds a screen-mirroring display to an encoder surface.
// Frames flow between platform handles; this package only sets up and tears
// down.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kartoza/kartoza-screenmux/internal/logging"
	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/platform"
)

// DisplayName is the name given to the mirroring display
const DisplayName = "ScreenRecorder"

// Source owns the encoder and the virtual display of one recording.
// A Source is single use.
type Source struct {
	encoders platform.EncoderFactory
	sink     string
	track    models.VideoTrack

	mu      sync.Mutex
	encoder platform.Encoder
	display platform.VirtualDisplay
	errCh   chan error
	quit    chan struct{}
	started bool
	stopped bool
}

// NewSource returns a source that will encode into sink
func NewSource(encoders platform.EncoderFactory, sink string) *Source {
	return &Source{
		encoders: encoders,
		sink:     sink,
		track:    models.DefaultVideoTrack(),
		errCh:    make(chan error, 1),
		quit:     make(chan struct{}),
	}
}

// Path returns the sink path
func (s *Source) Path() string { return s.sink }

// Err delivers at most one CaptureInterrupted error if the encoder or the
// display dies while capturing
func (s *Source) Err() <-chan error { return s.errCh }

// Start prepares the encoder, mirrors the screen into its surface and starts
// encoding. On failure everything acquired so far is released in reverse and
// the sink is removed.
func (s *Source) Start(ctx context.Context, grant platform.Projection) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return "", models.NewError(models.ErrCaptureInitFailed, models.SourceVideo, errors.New("source already started"))
	}

	encoder := s.encoders.NewEncoder(s.track, s.sink)
	if err := encoder.Prepare(); err != nil {
		_ = encoder.Release()
		return "", initFailed(fmt.Errorf("encoder not ready: %w", err))
	}

	surface := encoder.Surface()
	if surface == nil {
		_ = encoder.Release()
		return "", initFailed(errors.New("encoder has no input surface"))
	}

	display, err := grant.CreateVirtualDisplay(ctx, DisplayName, s.track, surface)
	if err != nil {
		_ = encoder.Release()
		return "", initFailed(fmt.Errorf("failed to create virtual display: %w", err))
	}

	if err := encoder.Start(); err != nil {
		_ = encoder.Release()
		_ = display.Release()
		_ = os.Remove(s.sink)
		return "", initFailed(fmt.Errorf("failed to start encoder: %w", err))
	}

	s.encoder = encoder
	s.display = display
	s.started = true

	go s.watch(encoder.Err(), display.Err())

	logging.Component("video").Info().
		Str(logging.KeyPath, s.sink).
		Str("resolution", s.track.Resolution()).
		Int("fps", s.track.FrameRate).
		Msg("Video capture started")
	return s.sink, nil
}

func (s *Source) watch(encErr, displayErr <-chan error) {
	var err error
	select {
	case err = <-encErr:
		err = fmt.Errorf("encoder: %w", err)
	case err = <-displayErr:
		err = fmt.Errorf("virtual display: %w", err)
	case <-s.quit:
		return
	}
	select {
	case s.errCh <- models.NewError(models.ErrCaptureInterrupted, models.SourceVideo, err):
	default:
	}
}

// Stop stops the encoder so the container trailer is written, releases it,
// then releases the virtual display. Every step runs even if an earlier one
// fails. Safe to call more than once.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return nil
	}
	s.stopped = true
	close(s.quit)

	var errs []error
	if err := s.encoder.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop encoder: %w", err))
	}
	if err := s.encoder.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release encoder: %w", err))
	}
	if err := s.display.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release virtual display: %w", err))
	}

	logging.Component("video").Info().Str(logging.KeyPath, s.sink).Msg("Video capture stopped")
	return errors.Join(errs...)
}

func initFailed(err error) error {
	return models.NewError(models.ErrCaptureInitFailed, models.SourceVideo, err)
}
