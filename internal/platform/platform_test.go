package platform

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

func TestMinBufferSize(t *testing.T) {
	tests := []struct {
		name   string
		format models.AudioTrack
		want   int
	}{
		{"default", models.DefaultAudioTrack(), 3528},
		{"mono 8k", models.AudioTrack{SampleRate: 8000, ChannelCount: 1, BitsPerSample: 16}, 320},
		{"unaligned", models.AudioTrack{SampleRate: 11025, ChannelCount: 1, BitsPerSample: 16}, 440},
		{"invalid", models.AudioTrack{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinBufferSize(tt.format)
			assert.Equal(t, tt.want, got)
			if got > 0 {
				assert.Zero(t, got%tt.format.FrameSize())
			}
		})
	}
}

func TestMirrorCommand(t *testing.T) {
	track := models.DefaultVideoTrack()

	t.Run("x11", func(t *testing.T) {
		bin, args, err := MirrorCommand(MirrorOptions{Backend: BackendX11, Display: ":1"}, track, "/tmp/s/frames.yuv")
		require.NoError(t, err)
		assert.Equal(t, "ffmpeg", bin)
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-f x11grab")
		assert.Contains(t, joined, "-i :1")
		assert.Contains(t, joined, "-pix_fmt yuv420p -f rawvideo /tmp/s/frames.yuv")
		assert.Contains(t, joined, "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920")
	})

	t.Run("x11 without display", func(t *testing.T) {
		t.Setenv("DISPLAY", "")
		_, _, err := MirrorCommand(MirrorOptions{Backend: BackendX11}, track, "/tmp/f")
		assert.ErrorIs(t, err, ErrNoDisplay)
	})

	t.Run("wayland", func(t *testing.T) {
		bin, args, err := MirrorCommand(MirrorOptions{Backend: BackendWayland, Output: "DP-1"}, track, "/tmp/f")
		require.NoError(t, err)
		assert.Equal(t, "wf-recorder", bin)
		assert.Equal(t, []string{"-o", "DP-1"}, args[len(args)-2:])
		assert.Contains(t, strings.Join(args, " "), "-f /tmp/f")
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := MirrorCommand(MirrorOptions{Backend: "quartz"}, track, "/tmp/f")
		assert.Error(t, err)
	})
}

func TestEncoderArgs(t *testing.T) {
	enc := FFmpegEncoders{}.NewEncoder(models.DefaultVideoTrack(), "/movies/out.mp4").(*FFmpegEncoder)
	args := strings.Join(enc.Args("/tmp/s/frames.yuv"), " ")

	assert.Contains(t, args, "-f rawvideo -pix_fmt yuv420p -video_size 1080x1920 -framerate 30 -i /tmp/s/frames.yuv")
	assert.Contains(t, args, "-c:v libx264")
	assert.Contains(t, args, "-b:v 8388608")
	assert.True(t, strings.HasSuffix(args, "/movies/out.mp4"))
}

func TestEncoder_UnpreparedHasNoSurface(t *testing.T) {
	enc := FFmpegEncoders{FFmpegPath: "/nonexistent/ffmpeg"}.NewEncoder(models.DefaultVideoTrack(), "out.mp4")
	assert.Nil(t, enc.Surface())
	assert.Error(t, enc.Prepare())
	assert.Error(t, enc.Start())
	require.NoError(t, enc.Release())
	assert.ErrorIs(t, enc.Start(), ErrReleased)
}

func TestParecArgs(t *testing.T) {
	r := &ParecRecord{device: "@DEFAULT_MONITOR@", format: models.DefaultAudioTrack(), bufferSize: 3528}
	assert.Equal(t, []string{
		"--raw",
		"--format=s16le",
		"--rate=44100",
		"--channels=2",
		"--latency-msec=20",
		"--device=@DEFAULT_MONITOR@",
	}, r.Args())
}

func TestParecRecord_ReadBeforeStart(t *testing.T) {
	r := NewParecRecord("", models.DefaultAudioTrack(), 3528)
	n, err := r.Read(context.Background(), make([]byte, 16))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrRecordEnded)
	require.NoError(t, r.Release())
	assert.Equal(t, RecordUninitialized, r.State())
}

func TestParecRecord_RejectsTinyBuffer(t *testing.T) {
	r := NewParecRecord("", models.DefaultAudioTrack(), 2)
	assert.Equal(t, RecordUninitialized, r.State())
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	assert.Equal(t, "456789ab", b.String())
}

func TestResolveBackend(t *testing.T) {
	got, err := resolveBackend(BackendX11)
	require.NoError(t, err)
	assert.Equal(t, BackendX11, got)

	_, err = resolveBackend("mir")
	assert.Error(t, err)
}

func TestDesktopGrant_Revoke(t *testing.T) {
	g := NewDesktopGrant(MirrorOptions{Backend: BackendX11}, "")

	select {
	case <-g.Revoked():
		t.Fatal("fresh grant is revoked")
	default:
	}

	g.Revoke()
	g.Revoke()

	select {
	case <-g.Revoked():
	case <-time.After(time.Second):
		t.Fatal("grant not revoked")
	}

	_, err := g.CreateVirtualDisplay(context.Background(), "d", models.DefaultVideoTrack(), fifoSurface{path: "/tmp/x"})
	assert.Error(t, err)

	require.NoError(t, g.Stop())
	require.NoError(t, g.Stop())
	_, err = g.NewAudioRecord(models.DefaultAudioTrack(), 3528)
	assert.ErrorIs(t, err, ErrReleased)
}
