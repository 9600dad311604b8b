// Package session coordinates one screen + system-audio recording: it starts
// both capture sources on a capture grant, tears them down in a fixed order,
// and hands the finished sinks to the merger.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kartoza/kartoza-screenmux/internal/audio"
	"github.com/kartoza/kartoza-screenmux/internal/logging"
	"github.com/kartoza/kartoza-screenmux/internal/merger"
	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/notify"
	"github.com/kartoza/kartoza-screenmux/internal/permission"
	"github.com/kartoza/kartoza-screenmux/internal/platform"
	"github.com/kartoza/kartoza-screenmux/internal/video"
)

// File naming
const (
	VideoPrefix     = "ScreenRecording_"
	AudioPrefix     = "audio_record_"
	TimestampLayout = "20060102_150405"
)

// Failure reasons reported to the notifier
const (
	ReasonMergeFailed    = "Failed to merge video and audio"
	ReasonMergeCancelled = "Merging video and audio was cancelled"
	ReasonNoVideo        = "No video was captured"
)

// Merger runs merge jobs
type Merger interface {
	Merge(ctx context.Context, videoFile, audioFile string) *merger.Job
}

// Options wires a session to its collaborators
type Options struct {
	Authorizer  platform.Authorizer
	Encoders    platform.EncoderFactory
	Permissions permission.Checker
	Merger      Merger
	Notifier    notify.Notifier
	Registry    *Registry

	MoviesDir string
	MusicDir  string

	// OnStateChange is called after every transition
	OnStateChange func(models.SessionState)
	// Now defaults to time.Now
	Now func() time.Time
}

// Outcome is the terminal result of a session
type Outcome struct {
	State     models.SessionState
	Path      string
	VideoOnly bool
	Err       error
}

// Session is one capture session. It is single use: once Completed or
// Failed, create a new one.
type Session struct {
	opts   Options
	id     string
	logger zerolog.Logger

	// mu serializes Start and Stop
	mu sync.Mutex

	stateMu sync.RWMutex
	state   models.SessionState
	snap    models.RecordingSession

	grant     platform.Projection
	video     *video.Source
	audio     *audio.Source
	quit      chan struct{}
	monitorWG sync.WaitGroup

	job     *merger.Job
	done    chan struct{}
	outcome Outcome
}

// New creates an idle session
func New(opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Log{}
	}
	if opts.Registry == nil {
		opts.Registry = processRegistry
	}
	id := uuid.NewString()
	return &Session{
		opts:   opts,
		id:     id,
		logger: logging.Component("session").With().Str(logging.KeySession, id).Logger(),
		state:  models.StateIdle,
		snap:   models.RecordingSession{ID: id, State: models.StateIdle},
		done:   make(chan struct{}),
	}
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// State returns the current state
func (s *Session) State() models.SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Snapshot returns a copy of the session's public fields
func (s *Session) Snapshot() models.RecordingSession {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	snap := s.snap
	if !snap.StartTime.IsZero() {
		end := snap.StopTime
		if end.IsZero() {
			end = s.opts.Now()
		}
		snap.Duration = end.Sub(snap.StartTime)
	}
	return snap
}

// Done is closed when the session reaches Completed or Failed
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome blocks until the session is terminal and returns its result
func (s *Session) Outcome() Outcome {
	<-s.done
	return s.outcome
}

func (s *Session) setState(state models.SessionState) {
	s.stateMu.Lock()
	s.state = state
	s.snap.State = state
	s.stateMu.Unlock()

	s.logger.Debug().Str(logging.KeyState, string(state)).Msg("Session state changed")

	if state.IsActive() || state == models.StateMerging {
		s.publish()
	}
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(state)
	}
}

func (s *Session) status() models.RecordingStatus {
	snap := s.Snapshot()
	return models.RecordingStatus{
		IsRecording: snap.State.IsActive(),
		SessionID:   s.id,
		State:       snap.State,
		PID:         os.Getpid(),
		StartTime:   snap.StartTime,
		VideoFile:   snap.VideoFile,
		AudioFile:   snap.AudioFile,
	}
}

func (s *Session) publish() {
	if err := s.opts.Registry.Update(s.status()); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to publish session status")
	}
}

// Start moves the session from Idle to Capturing. Video failure is fatal and
// returns the session to Idle with no sinks left behind; audio failure is
// logged and capture continues video-only.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.State(); state != models.StateIdle {
		return models.NewError(models.ErrAlreadyCapturing, models.SourceSession, fmt.Errorf("session is %s", state))
	}

	if !s.opts.Permissions.Storage() {
		err := models.NewError(models.ErrPermissionDenied, models.SourceSession, errors.New("storage access not permitted"))
		s.opts.Notifier.OnFailed(err.Error())
		return err
	}

	if err := s.opts.Registry.Acquire(s.status()); err != nil {
		s.opts.Notifier.OnFailed(err.Error())
		return err
	}

	if err := s.start(ctx); err != nil {
		s.opts.Registry.Release(s.id)
		s.setState(models.StateIdle)
		s.opts.Notifier.OnFailed(err.Error())
		return err
	}
	return nil
}

func (s *Session) start(ctx context.Context) error {
	s.setState(models.StateStarting)

	for _, dir := range []string{s.opts.MoviesDir, s.opts.MusicDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return models.NewError(models.ErrCaptureInitFailed, models.SourceSession, fmt.Errorf("failed to create output directory: %w", err))
		}
	}

	grant, err := s.opts.Authorizer.Authorize(ctx)
	if err != nil {
		var capErr *models.CaptureError
		if errors.As(err, &capErr) {
			return err
		}
		return models.NewError(models.ErrPermissionDenied, models.SourceSession, fmt.Errorf("capture grant refused: %w", err))
	}

	videoSink, audioSink := s.sinkPaths()
	s.opts.Notifier.OnStarted()

	vsrc := video.NewSource(s.opts.Encoders, videoSink)
	if _, err := vsrc.Start(ctx, grant); err != nil {
		if serr := grant.Stop(); serr != nil {
			s.logger.Warn().Err(serr).Msg("Failed to release capture grant")
		}
		return err
	}

	asrc := audio.NewSource(grant, s.opts.Permissions, audioSink)
	if err := asrc.Start(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Audio capture unavailable, recording video only")
		asrc = nil
	}

	s.grant = grant
	s.video = vsrc
	s.audio = asrc
	s.quit = make(chan struct{})

	if asrc == nil {
		audioSink = ""
	}
	s.stateMu.Lock()
	s.snap.StartTime = s.opts.Now()
	s.snap.VideoFile = videoSink
	s.snap.AudioFile = audioSink
	s.snap.VideoOnly = asrc == nil
	s.stateMu.Unlock()

	s.monitorWG.Add(1)
	go s.monitor()

	s.setState(models.StateCapturing)
	s.logger.Info().
		Str("video", videoSink).
		Str("audio", audioSink).
		Msg("Capture started")
	return nil
}

// sinkPaths returns fresh sink paths; an existing file is never reused
func (s *Session) sinkPaths() (string, string) {
	stamp := s.opts.Now().Format(TimestampLayout)
	for i := 0; ; i++ {
		suffix := stamp
		if i > 0 {
			suffix = fmt.Sprintf("%s_%d", stamp, i)
		}
		videoSink := filepath.Join(s.opts.MoviesDir, VideoPrefix+suffix+".mp4")
		audioSink := filepath.Join(s.opts.MusicDir, AudioPrefix+suffix+".pcm")
		if !exists(videoSink) && !exists(audioSink) {
			return videoSink, audioSink
		}
	}
}

// monitor turns grant revocation and source failures into a Stop
func (s *Session) monitor() {
	defer s.monitorWG.Done()

	var audioErr <-chan error
	if s.audio != nil {
		audioErr = s.audio.Err()
	}

	var reason string
	select {
	case <-s.quit:
		return
	case <-s.grant.Revoked():
		reason = "capture grant revoked"
	case err := <-s.video.Err():
		reason = err.Error()
	case err := <-audioErr:
		reason = err.Error()
	}

	s.logger.Warn().Str("reason", reason).Msg("Capture interrupted, stopping")
	go s.stop(reason)
}

// Stop ends capture and starts the merge. It is a no-op unless the session is
// Capturing, so calling it twice has the effect of calling it once.
func (s *Session) Stop() {
	s.stop("stop requested")
}

func (s *Session) stop(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != models.StateCapturing {
		return
	}
	s.logger.Info().Str("reason", reason).Msg("Stopping capture")
	s.setState(models.StateStopping)

	close(s.quit)
	s.monitorWG.Wait()

	audioSink, hasAudio, teardownErr := s.teardown()

	s.stateMu.Lock()
	s.snap.StopTime = s.opts.Now()
	if s.audio != nil {
		s.snap.AudioBytes = s.audio.Written()
	}
	if !hasAudio {
		s.snap.AudioFile = ""
		s.snap.VideoOnly = true
	}
	videoSink := s.snap.VideoFile
	s.stateMu.Unlock()

	if teardownErr != nil {
		s.logger.Warn().Err(teardownErr).Msg("Teardown reported errors")
	}

	s.setState(models.StateMerging)

	if !nonEmpty(videoSink) {
		if hasAudio {
			s.logger.Warn().Str("audio", audioSink).Msg("Audio sink kept for manual recovery")
		}
		s.finish(Outcome{
			State: models.StateFailed,
			Err:   models.NewError(models.ErrCaptureInterrupted, models.SourceVideo, errors.Join(errors.New("no video captured"), teardownErr)),
		}, ReasonNoVideo)
		return
	}

	if !hasAudio {
		s.logger.Info().Msg("No audio captured, skipping merge")
		s.finish(Outcome{State: models.StateCompleted, Path: videoSink, VideoOnly: true}, "")
		return
	}

	s.job = s.opts.Merger.Merge(context.Background(), videoSink, audioSink)
	go s.awaitMerge(s.job, videoSink, audioSink)
}

// teardown releases every handle in order: audio (joined), encoder, virtual
// display, grant. Every step runs regardless of earlier failures.
func (s *Session) teardown() (string, bool, error) {
	var (
		errs      []error
		audioSink string
		hasAudio  bool
	)

	if s.audio != nil {
		audioSink, hasAudio = s.audio.Stop()
	}
	if err := s.video.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := s.grant.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("release capture grant: %w", err))
	}

	return audioSink, hasAudio, errors.Join(errs...)
}

func (s *Session) awaitMerge(job *merger.Job, videoSink, audioSink string) {
	res := job.Result()

	switch res.Status {
	case models.MergeSucceeded:
		for _, sink := range []string{videoSink, audioSink} {
			if err := os.Remove(sink); err != nil {
				s.logger.Warn().Err(err).Str(logging.KeyPath, sink).Msg("Failed to remove intermediate file")
			}
		}
		s.finish(Outcome{State: models.StateCompleted, Path: res.Path}, "")

	case models.MergeCancelled:
		s.logger.Warn().Str("video", videoSink).Str("audio", audioSink).Msg("Merge cancelled, intermediate files kept")
		s.finish(Outcome{State: models.StateFailed, Err: res.Err}, ReasonMergeCancelled)

	default:
		s.logger.Error().Err(res.Err).
			Str("video", videoSink).
			Str("audio", audioSink).
			Msg("Merge failed, intermediate files kept")
		s.finish(Outcome{State: models.StateFailed, Err: res.Err}, ReasonMergeFailed)
	}
}

// finish records the terminal outcome and reports it exactly once
func (s *Session) finish(outcome Outcome, reason string) {
	s.stateMu.Lock()
	s.snap.MergedFile = outcome.Path
	if outcome.VideoOnly {
		s.snap.VideoOnly = true
	}
	if outcome.Err != nil {
		s.snap.Error = outcome.Err.Error()
	}
	s.stateMu.Unlock()

	s.outcome = outcome
	s.opts.Registry.Release(s.id)
	s.setState(outcome.State)

	if outcome.State == models.StateCompleted {
		s.logger.Info().Str(logging.KeyPath, outcome.Path).Bool("video_only", outcome.VideoOnly).Msg("Recording complete")
		s.opts.Notifier.OnCompleted(outcome.Path)
	} else {
		s.opts.Notifier.OnFailed(reason)
	}
	close(s.done)
}

// Job returns the merge job, nil before Merging or when the merge was skipped
func (s *Session) Job() *merger.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// Close stops a capturing session and waits for its outcome, or cancels the
// merge when ctx ends first.
func (s *Session) Close(ctx context.Context) Outcome {
	s.Stop()
	if s.State() == models.StateIdle {
		return Outcome{State: models.StateIdle}
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		if job := s.Job(); job != nil {
			job.Cancel()
		}
		<-s.done
	}
	return s.outcome
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
