package tui

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/notify"
	"github.com/kartoza/kartoza-screenmux/internal/session"
)

func update(t *testing.T, m RecordModel, msg tea.Msg) (RecordModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	rm, ok := next.(RecordModel)
	require.True(t, ok)
	return rm, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestRecordModel_StopKey(t *testing.T) {
	var stops atomic.Int32
	m := NewRecordModel(RecordOptions{Stop: func() { stops.Add(1) }})
	assert.Equal(t, models.StateStarting, m.State())

	// Ignored before capture
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd)

	m, _ = update(t, m, StateMsg(models.StateCapturing))
	assert.Contains(t, m.View(), "REC")

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, int32(1), stops.Load())

	// A second press does not stop twice
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "stopping...")
}

func TestRecordModel_CancelMerge(t *testing.T) {
	var cancels atomic.Int32
	m := NewRecordModel(RecordOptions{Cancel: func() { cancels.Add(1) }})

	m, _ = update(t, m, StateMsg(models.StateCapturing))
	m, _ = update(t, m, StateMsg(models.StateStopping))
	m, _ = update(t, m, StateMsg(models.StateMerging))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Zero(t, cancels.Load())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, int32(1), cancels.Load())
	assert.Contains(t, m.View(), "cancelling merge")
}

func TestRecordModel_MergeProgress(t *testing.T) {
	m := NewRecordModel(RecordOptions{})
	m, _ = update(t, m, StateMsg(models.StateStopping))
	m, _ = update(t, m, StateMsg(models.StateMerging))
	m, _ = update(t, m, PercentMsg(50))

	view := m.View()
	assert.Contains(t, view, "Merging video & audio")
	assert.Contains(t, view, "50%")
}

func TestRecordModel_Notices(t *testing.T) {
	ch := make(chan notify.Event, 1)
	m := NewRecordModel(RecordOptions{Events: ch})

	m, cmd := update(t, m, EventMsg(notify.Event{Kind: notify.KindCompleted, Detail: "/movies/merged_1.mp4"}))
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Video saved to: merged_1.mp4")
}

func TestRecordModel_DoneQuits(t *testing.T) {
	m := NewRecordModel(RecordOptions{})
	m, _ = update(t, m, StateMsg(models.StateStopping))

	m, cmd := update(t, m, DoneMsg(session.Outcome{State: models.StateCompleted, Path: "/movies/out.mp4", VideoOnly: true}))
	assert.True(t, isQuit(cmd))
	require.NotNil(t, m.Outcome())

	view := m.View()
	assert.Contains(t, view, "/movies/out.mp4")
	assert.Contains(t, view, "video only")
}

func TestRecordModel_Failure(t *testing.T) {
	m := NewRecordModel(RecordOptions{})
	m, _ = update(t, m, StateMsg(models.StateStopping))
	m, _ = update(t, m, StateMsg(models.StateMerging))

	m, cmd := update(t, m, DoneMsg(session.Outcome{State: models.StateFailed, Err: errors.New("merge failed: exit 1")}))
	assert.True(t, isQuit(cmd))
	assert.Contains(t, m.View(), "merge failed: exit 1")
	assert.Equal(t, StepFailed, m.processing.Steps[StepMerge].Status)
}

func TestRecordModel_Poster(t *testing.T) {
	orig := extractFrame
	t.Cleanup(func() { extractFrame = orig })

	img := image.NewRGBA(image.Rect(0, 0, 90, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 90; x++ {
			img.Set(x, y, color.RGBA{R: 0xDD, G: 0xA0, B: 0x36, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	var gotPath string
	extractFrame = func(_ context.Context, _, videoPath string) ([]byte, error) {
		gotPath = videoPath
		return buf.Bytes(), nil
	}

	m := NewRecordModel(RecordOptions{Poster: true, FFmpegPath: "ffmpeg"})
	m, cmd := update(t, m, DoneMsg(session.Outcome{State: models.StateCompleted, Path: "/movies/out.mp4"}))
	require.NotNil(t, cmd)
	assert.False(t, isQuit(cmd))

	msg := cmd()
	poster, ok := msg.(PosterMsg)
	require.True(t, ok)
	assert.Equal(t, "/movies/out.mp4", gotPath)
	if poster.Err == nil {
		assert.NotEmpty(t, poster.Rendered)
	}

	m, cmd = update(t, m, poster)
	assert.True(t, isQuit(cmd))
	assert.Contains(t, m.View(), "/movies/out.mp4")
}

func TestRecordModel_PosterErrorStillQuits(t *testing.T) {
	m := NewRecordModel(RecordOptions{Poster: true})
	m, cmd := update(t, m, PosterMsg{Err: errors.New("no ffmpeg")})
	assert.True(t, isQuit(cmd))
	assert.NotContains(t, m.View(), "no ffmpeg")
}

func TestRenderPoster_EmptyImage(t *testing.T) {
	_, err := RenderPoster(image.NewRGBA(image.Rect(0, 0, 0, 0)), PosterWidth)
	assert.Error(t, err)
}
