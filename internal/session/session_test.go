package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-screenmux/internal/merger"
	"github.com/kartoza/kartoza-screenmux/internal/merger/mergertest"
	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/notify"
	"github.com/kartoza/kartoza-screenmux/internal/permission"
	"github.com/kartoza/kartoza-screenmux/internal/platform"
	"github.com/kartoza/kartoza-screenmux/internal/platform/fake"
)

// snapshotEngine records the merge inputs as they were when the engine ran
type snapshotEngine struct {
	mergertest.Engine

	mu     sync.Mutex
	inputs map[string][]byte
}

func (e *snapshotEngine) Run(ctx context.Context, args []string, onProgress func(int64)) (string, error) {
	e.mu.Lock()
	e.inputs = map[string][]byte{}
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			data, _ := os.ReadFile(args[i+1])
			e.inputs[args[i+1]] = data
		}
	}
	e.mu.Unlock()
	return e.Engine.Run(ctx, args, onProgress)
}

func (e *snapshotEngine) Input(path string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inputs[path]
}

type harness struct {
	platform *fake.Platform
	engine   *snapshotEngine
	notes    *notify.Recorder
	registry *Registry
	movies   string
	music    string
	perms    permission.Checker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{
		platform: fake.New(),
		engine:   &snapshotEngine{},
		notes:    notify.NewRecorder(0),
		registry: NewRegistry(filepath.Join(dir, "state", "session.lock")),
		movies:   filepath.Join(dir, "Movies"),
		music:    filepath.Join(dir, "Music"),
		perms:    permission.Granted,
	}
}

func (h *harness) session() *Session {
	return New(Options{
		Authorizer:  h.platform,
		Encoders:    h.platform,
		Permissions: h.perms,
		Merger:      merger.New(h.engine, nil, h.movies),
		Notifier:    h.notes,
		Registry:    h.registry,
		MoviesDir:   h.movies,
		MusicDir:    h.music,
	})
}

func waitDone(t *testing.T, s *Session) Outcome {
	t.Helper()
	select {
	case <-s.Done():
		return s.Outcome()
	case <-time.After(5 * time.Second):
		t.Fatalf("session stuck in %s", s.State())
		return Outcome{}
	}
}

func files(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func kinds(events []notify.Event) []string {
	var out []string
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestSession_CaptureForTwoSeconds(t *testing.T) {
	h := newHarness(t)
	s := h.session()

	before := time.Now()
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, models.StateCapturing, s.State())

	snap := s.Snapshot()
	videoSink, audioSink := snap.VideoFile, snap.AudioFile
	assert.Equal(t, h.movies, filepath.Dir(videoSink))
	assert.Equal(t, h.music, filepath.Dir(audioSink))
	assert.Regexp(t, `^ScreenRecording_\d{8}_\d{6}\.mp4$`, filepath.Base(videoSink))
	assert.Regexp(t, `^audio_record_\d{8}_\d{6}\.pcm$`, filepath.Base(audioSink))

	time.Sleep(2000 * time.Millisecond)
	s.Stop()
	elapsed := time.Since(before)

	out := waitDone(t, s)
	require.NoError(t, out.Err)
	assert.Equal(t, models.StateCompleted, out.State)
	assert.False(t, out.VideoOnly)
	assert.Regexp(t, `^merged_\d+\.mp4$`, filepath.Base(out.Path))
	assert.FileExists(t, out.Path)

	// Intermediates are gone after a successful merge
	assert.NoFileExists(t, videoSink)
	assert.NoFileExists(t, audioSink)

	// The video sink was a finished container when merged
	video := h.engine.Input(videoSink)
	assert.Equal(t, append(slices.Clone(fake.Header), fake.Trailer...), video)

	// 44100 Hz x 2 channels x 2 bytes x 2.0 s, within one buffer
	track := models.DefaultAudioTrack()
	buf := int64(platform.MinBufferSize(track))
	got := int64(len(h.engine.Input(audioSink)))
	assert.Equal(t, s.Snapshot().AudioBytes, got)
	assert.GreaterOrEqual(t, got, int64(track.ByteRate())*2-buf)
	assert.LessOrEqual(t, got, int64(float64(track.ByteRate())*elapsed.Seconds())+buf)
	assert.Zero(t, got%int64(track.FrameSize()))

	assert.Equal(t, []string{notify.KindStarted, notify.KindCompleted}, kinds(h.notes.Events()))
	assert.NoFileExists(t, h.registry.LockPath())
}

func TestSession_TeardownOrder(t *testing.T) {
	h := newHarness(t)
	s := h.session()

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	s.Stop()
	waitDone(t, s)

	j := h.platform.Journal
	order := []string{
		fake.EventAudioStop,
		fake.EventAudioRelease,
		fake.EventEncoderStop,
		fake.EventEncoderRelease,
		fake.EventDisplayRelease,
		fake.EventGrantStop,
	}
	for i := 1; i < len(order); i++ {
		require.True(t, j.Has(order[i]), "missing %s in %v", order[i], j.Events())
		assert.Less(t, j.Index(order[i-1]), j.Index(order[i]), "%s must precede %s: %v", order[i-1], order[i], j.Events())
	}
}

func TestSession_StopBeforeCapturingIsNoop(t *testing.T) {
	h := newHarness(t)
	s := h.session()

	s.Stop()
	s.Stop()

	assert.Equal(t, models.StateIdle, s.State())
	assert.Empty(t, h.platform.Journal.Events())
	assert.Empty(t, h.engine.Calls())
	assert.Empty(t, files(t, h.movies))
	assert.Empty(t, files(t, h.music))
	assert.Empty(t, h.notes.Events())
	assert.Nil(t, s.Job())
}

func TestSession_StopTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.session()

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)

	s.Stop()
	s.Stop()
	out := waitDone(t, s)
	s.Stop()

	assert.Equal(t, models.StateCompleted, out.State)
	assert.Len(t, h.engine.Calls(), 1)

	count := 0
	for _, e := range h.platform.Journal.Events() {
		if e == fake.EventEncoderStop {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{notify.KindStarted, notify.KindCompleted}, kinds(h.notes.Events()))
}

func TestSession_AudioFailureRecordsVideoOnly(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"tap not initialized", func(h *harness) { h.platform.AudioUninitialized = true }},
		{"audio permission denied", func(h *harness) { h.perms = permission.Static{AllowStorage: true} }},
		{"tap produces nothing", func(h *harness) { h.platform.AudioSilent = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)
			s := h.session()

			require.NoError(t, s.Start(context.Background()))
			assert.Equal(t, models.StateCapturing, s.State())
			videoSink := s.Snapshot().VideoFile

			time.Sleep(50 * time.Millisecond)
			s.Stop()
			out := waitDone(t, s)

			require.NoError(t, out.Err)
			assert.Equal(t, models.StateCompleted, out.State)
			assert.True(t, out.VideoOnly)
			assert.Equal(t, videoSink, out.Path)
			assert.FileExists(t, videoSink)
			assert.Empty(t, h.engine.Calls())
			assert.Empty(t, files(t, h.music))
		})
	}
}

func TestSession_VideoFailureAbortsStart(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fake.Platform)
	}{
		{"encoder not ready", func(p *fake.Platform) { p.PrepareErr = errors.New("no codec") }},
		{"display refused", func(p *fake.Platform) { p.DisplayErr = errors.New("no output") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h.platform)
			s := h.session()

			err := s.Start(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrCaptureInitFailed)
			assert.Equal(t, models.StateIdle, s.State())

			assert.Empty(t, files(t, h.movies))
			assert.Empty(t, files(t, h.music))
			assert.True(t, h.platform.Journal.Has(fake.EventGrantStop))
			assert.False(t, h.platform.Journal.Has(fake.EventAudioStart))
			assert.Equal(t, []string{notify.KindStarted, notify.KindFailed}, kinds(h.notes.Events()))

			// The slot is free again
			next := h.session()
			h.platform.PrepareErr, h.platform.DisplayErr = nil, nil
			require.NoError(t, next.Start(context.Background()))
			next.Stop()
			waitDone(t, next)
		})
	}
}

func TestSession_StorageDenied(t *testing.T) {
	h := newHarness(t)
	h.perms = permission.Static{AllowAudio: true}
	s := h.session()

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	assert.Equal(t, models.StateIdle, s.State())
	assert.False(t, h.platform.Journal.Has(fake.EventGrantAcquired))
	assert.Equal(t, []string{notify.KindFailed}, kinds(h.notes.Events()))
}

func TestSession_GrantRefused(t *testing.T) {
	h := newHarness(t)
	h.platform.AuthorizeErr = errors.New("user dismissed the dialog")
	s := h.session()

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	assert.Equal(t, models.StateIdle, s.State())
	assert.Empty(t, files(t, h.movies))
}

func TestSession_MergeFailureKeepsSinks(t *testing.T) {
	h := newHarness(t)
	h.engine.Err = errors.New("exit status 1")
	h.engine.Diagnostics = "moov atom not found"
	h.engine.Partial = true
	s := h.session()

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	snap := s.Snapshot()
	s.Stop()
	out := waitDone(t, s)

	assert.Equal(t, models.StateFailed, out.State)
	assert.ErrorIs(t, out.Err, models.ErrMergeFailed)
	assert.Empty(t, out.Path)

	for _, sink := range []string{snap.VideoFile, snap.AudioFile} {
		data, err := os.ReadFile(sink)
		require.NoError(t, err, sink)
		assert.Equal(t, h.engine.Input(sink), data, "%s changed by the failed merge", sink)
	}

	matches, err := filepath.Glob(filepath.Join(h.movies, merger.MergedPrefix+"*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	events := h.notes.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.Event{Kind: notify.KindFailed, Detail: ReasonMergeFailed}, events[1])
}

func TestSession_MergeCancelledOnClose(t *testing.T) {
	h := newHarness(t)
	h.engine.Block = true
	s := h.session()

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-h.engine.Started()
		cancel()
	}()
	out := s.Close(ctx)

	assert.Equal(t, models.StateFailed, out.State)
	assert.ErrorIs(t, out.Err, models.ErrMergeCancelled)
	assert.FileExists(t, s.Snapshot().VideoFile)
	assert.FileExists(t, s.Snapshot().AudioFile)
}

func TestSession_ExternalStopTriggers(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *fake.Platform)
		trigger func(p *fake.Platform)
	}{
		{
			name:    "grant revoked",
			trigger: func(p *fake.Platform) { p.Grant().Revoke() },
		},
		{
			name:    "encoder error",
			trigger: func(p *fake.Platform) { p.Encoder().Fail(errors.New("encoder died")) },
		},
		{
			name:  "audio tap lost",
			setup: func(p *fake.Platform) { p.AudioFailAfter = 5 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h.platform)
			}
			s := h.session()

			require.NoError(t, s.Start(context.Background()))
			time.Sleep(150 * time.Millisecond)
			if tt.trigger != nil {
				tt.trigger(h.platform)
			}

			out := waitDone(t, s)
			assert.Equal(t, models.StateCompleted, out.State)
			assert.FileExists(t, out.Path)
			assert.True(t, h.platform.Journal.Has(fake.EventGrantStop))
			assert.Len(t, h.engine.Calls(), 1)

			// A later local Stop is a no-op
			s.Stop()
			assert.Len(t, h.engine.Calls(), 1)
		})
	}
}

func TestSession_OneCapturingAtATime(t *testing.T) {
	h := newHarness(t)
	first := h.session()
	second := h.session()

	require.NoError(t, first.Start(context.Background()))

	err := second.Start(context.Background())
	assert.ErrorIs(t, err, models.ErrAlreadyCapturing)
	assert.Equal(t, models.StateIdle, second.State())

	status, err := ReadStatus(h.registry.LockPath())
	require.NoError(t, err)
	assert.True(t, status.IsRecording)
	assert.Equal(t, first.ID(), status.SessionID)
	assert.Equal(t, models.StateCapturing, status.State)
	assert.Equal(t, os.Getpid(), status.PID)

	first.Stop()
	waitDone(t, first)

	require.NoError(t, second.Start(context.Background()))
	second.Stop()
	waitDone(t, second)
}

func TestSession_DefaultRegistryIsShared(t *testing.T) {
	h := newHarness(t)
	build := func() *Session {
		return New(Options{
			Authorizer:  h.platform,
			Encoders:    h.platform,
			Permissions: h.perms,
			Merger:      merger.New(h.engine, nil, h.movies),
			MoviesDir:   h.movies,
			MusicDir:    h.music,
		})
	}
	first, second := build(), build()

	require.NoError(t, first.Start(context.Background()))
	defer func() {
		first.Stop()
		waitDone(t, first)
	}()

	err := second.Start(context.Background())
	assert.ErrorIs(t, err, models.ErrAlreadyCapturing)
	assert.Equal(t, models.StateIdle, second.State())
	assert.Equal(t, models.StateCapturing, first.State())
}

func TestSession_StateChanges(t *testing.T) {
	h := newHarness(t)

	var (
		mu     sync.Mutex
		states []models.SessionState
	)
	s := New(Options{
		Authorizer:  h.platform,
		Encoders:    h.platform,
		Permissions: h.perms,
		Merger:      merger.New(h.engine, nil, h.movies),
		Registry:    h.registry,
		MoviesDir:   h.movies,
		MusicDir:    h.music,
		OnStateChange: func(st models.SessionState) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, st)
		},
	})

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	waitDone(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.SessionState{
		models.StateStarting,
		models.StateCapturing,
		models.StateStopping,
		models.StateMerging,
		models.StateCompleted,
	}, states)
}
