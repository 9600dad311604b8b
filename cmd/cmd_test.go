package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/session"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	rootCmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	return rootCmd.Execute()
}

func TestRecoverCommand(t *testing.T) {
	dir := t.TempDir()
	pcm := filepath.Join(dir, "audio_record_20250101_120000.pcm")
	// 100 stereo frames plus one stray byte
	require.NoError(t, os.WriteFile(pcm, make([]byte, 401), 0644))

	require.NoError(t, execute(t, "recover", pcm))

	out := filepath.Join(dir, "audio_record_20250101_120000.wav")
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(44100), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
}

func TestRecoverCommand_RefusesOverwrite(t *testing.T) {
	pcm := filepath.Join(t.TempDir(), "audio.pcm")
	require.NoError(t, os.WriteFile(pcm, make([]byte, 8), 0644))

	assert.Error(t, execute(t, "recover", pcm, pcm))
}

func TestStopCommand_NothingRunning(t *testing.T) {
	err := execute(t, "stop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recording in progress")
}

func TestStatusCommand_ReadsLock(t *testing.T) {
	runtime := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtime)
	rootCmd.SetArgs([]string{"--config-dir", t.TempDir(), "status", "--json"})

	lock := filepath.Join(runtime, "kartoza-screenmux", "session.lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(lock), 0755))
	data, err := json.Marshal(models.RecordingStatus{SessionID: "s", PID: os.Getpid(), State: models.StateCapturing})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lock, data, 0644))

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, lock, cfg.LockFile())
	jsonOutput = false
}

func TestSessionFinished(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "session.lock")
	write := func(state models.SessionState) {
		data, err := json.Marshal(models.RecordingStatus{SessionID: "s", PID: os.Getpid(), State: state})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(lock, data, 0644))
	}

	write(models.StateCapturing)
	assert.False(t, sessionFinished(lock, "s"))

	write(models.StateMerging)
	assert.False(t, sessionFinished(lock, "s"))

	require.NoError(t, os.Remove(lock))
	assert.True(t, sessionFinished(lock, "s"))
}

func TestOutcomeError(t *testing.T) {
	assert.NoError(t, outcomeError(session.Outcome{State: models.StateCompleted}))
	assert.NoError(t, outcomeError(session.Outcome{State: models.StateIdle}))
	assert.EqualError(t, outcomeError(session.Outcome{State: models.StateFailed}), "recording failed")

	cause := models.NewError(models.ErrMergeFailed, models.SourceMerge, errors.New("exit status 1"))
	err := outcomeError(session.Outcome{State: models.StateFailed, Err: cause})
	assert.ErrorIs(t, err, models.ErrMergeFailed)
}
