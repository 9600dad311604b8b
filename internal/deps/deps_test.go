package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDisplayServer(t *testing.T) {
	tests := []struct {
		wayland, display string
		want             DisplayServer
	}{
		{"wayland-1", ":0", DisplayServerWayland},
		{"", ":0", DisplayServerX11},
		{"", "", DisplayServerUnknown},
	}
	for _, tt := range tests {
		t.Setenv("WAYLAND_DISPLAY", tt.wayland)
		t.Setenv("DISPLAY", tt.display)
		assert.Equal(t, tt.want, DetectDisplayServer())
	}
}

func TestGetRequiredDeps(t *testing.T) {
	names := func(deps []Dependency) []string {
		var out []string
		for _, d := range deps {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{"ffmpeg", "ffprobe", "parec"}, names(GetRequiredDeps(DisplayServerX11)))
	assert.Equal(t, []string{"ffmpeg", "ffprobe", "parec", "wf-recorder"}, names(GetRequiredDeps(DisplayServerWayland)))

	// The shared slice is never extended in place
	assert.Len(t, BaseDeps, 3)
}

func TestFormatMissing(t *testing.T) {
	assert.Empty(t, FormatMissing(nil))

	out := FormatMissing([]CheckResult{{Dependency: WaylandDeps[0]}})
	assert.Contains(t, out, "wf-recorder (REQUIRED)")
}

func TestFormatAll(t *testing.T) {
	out := FormatAll(
		[]CheckResult{
			{Dependency: BaseDeps[0], Available: true, Path: "/usr/bin/ffmpeg"},
			{Dependency: BaseDeps[2]},
		},
		[]CheckResult{{Dependency: OptionalDeps[0]}},
	)
	assert.Contains(t, out, "✓ ffmpeg")
	assert.Contains(t, out, "Path: /usr/bin/ffmpeg")
	assert.Contains(t, out, "○ parec")
	assert.Contains(t, out, "○ notify-send")
}
