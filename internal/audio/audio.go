// Package audio captures system audio output into a headerless PCM sink.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kartoza/kartoza-screenmux/internal/logging"
	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/permission"
	"github.com/kartoza/kartoza-screenmux/internal/platform"
)

// Source records the system audio tap of a capture grant into one file.
// A Source is single use.
type Source struct {
	grant  platform.Projection
	perms  permission.Checker
	sink   string
	format models.AudioTrack

	mu      sync.Mutex
	record  platform.AudioRecord
	cancel  context.CancelFunc
	done    chan struct{}
	errCh   chan error
	started bool
	stopped bool
	result  string
	ok      bool

	written atomic.Int64
}

// NewSource returns a source that will write to sink
func NewSource(grant platform.Projection, perms permission.Checker, sink string) *Source {
	return &Source{
		grant:  grant,
		perms:  perms,
		sink:   sink,
		format: models.DefaultAudioTrack(),
		errCh:  make(chan error, 1),
	}
}

// Path returns the sink path
func (s *Source) Path() string { return s.sink }

// Written returns the number of PCM bytes appended to the sink so far
func (s *Source) Written() int64 { return s.written.Load() }

// Err delivers at most one CaptureInterrupted error if the read loop dies
func (s *Source) Err() <-chan error { return s.errCh }

// Start opens the audio tap and launches the read loop. ctx only scopes
// setup; the loop runs until Stop or an unrecoverable read error.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return models.NewError(models.ErrCaptureInitFailed, models.SourceAudio, errors.New("source already started"))
	}
	if !s.perms.AudioCapture() {
		return models.NewError(models.ErrPermissionDenied, models.SourceAudio, errors.New("audio capture not permitted"))
	}

	bufSize := platform.MinBufferSize(s.format)
	record, err := s.grant.NewAudioRecord(s.format, bufSize)
	if err != nil {
		return models.NewError(models.ErrCaptureInitFailed, models.SourceAudio, err)
	}
	if record.State() != platform.RecordInitialized {
		_ = record.Release()
		return models.NewError(models.ErrCaptureInitFailed, models.SourceAudio, errors.New("audio record did not initialize"))
	}

	f, err := os.OpenFile(s.sink, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		_ = record.Release()
		return models.NewError(models.ErrCaptureInitFailed, models.SourceAudio, fmt.Errorf("failed to create audio sink: %w", err))
	}

	if err := record.StartRecording(); err != nil {
		_ = f.Close()
		_ = os.Remove(s.sink)
		_ = record.Release()
		return models.NewError(models.ErrCaptureInitFailed, models.SourceAudio, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.record = record
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.loop(loopCtx, f, bufSize)

	logging.Component("audio").Info().
		Str(logging.KeyPath, s.sink).
		Int("buffer", bufSize).
		Msg("Audio capture started")
	return nil
}

func (s *Source) loop(ctx context.Context, f *os.File, bufSize int) {
	defer close(s.done)

	buf := make([]byte, bufSize)
	for ctx.Err() == nil {
		n, err := s.record.Read(ctx, buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				s.interrupted(ctx, fmt.Errorf("failed to write audio sink: %w", werr))
				break
			}
			s.written.Add(int64(n))
		}
		if err != nil {
			s.interrupted(ctx, err)
			break
		}
	}

	if err := f.Sync(); err != nil {
		log.Warn().Err(err).Str(logging.KeyPath, s.sink).Msg("Failed to sync audio sink")
	}
	if err := f.Close(); err != nil {
		log.Warn().Err(err).Str(logging.KeyPath, s.sink).Msg("Failed to close audio sink")
	}
}

// interrupted publishes a loop failure unless the loop was being stopped
func (s *Source) interrupted(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	log.Error().Err(err).Int64("bytes", s.written.Load()).Msg("Audio capture interrupted")
	select {
	case s.errCh <- models.NewError(models.ErrCaptureInterrupted, models.SourceAudio, err):
	default:
	}
}

// Stop ends the read loop, waits for it to exit with the sink closed, then
// stops and releases the tap. It returns the sink path and whether any audio
// was recorded; an empty sink is removed. Safe to call more than once.
func (s *Source) Stop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return s.result, s.ok
	}
	s.stopped = true

	start := time.Now()
	s.cancel()
	<-s.done

	if err := s.record.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop audio record")
	}
	if err := s.record.Release(); err != nil {
		log.Warn().Err(err).Msg("Failed to release audio record")
	}

	written := s.written.Load()
	logging.Component("audio").Info().
		Str(logging.KeyPath, s.sink).
		Int64("bytes", written).
		Dur(logging.KeyDuration, s.format.Duration(written)).
		Dur("join", time.Since(start)).
		Msg("Audio capture stopped")

	if written == 0 {
		_ = os.Remove(s.sink)
		return "", false
	}
	s.result, s.ok = s.sink, true
	return s.result, s.ok
}
