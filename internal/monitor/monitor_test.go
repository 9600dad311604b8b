package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

const monitorsJSON = `[
	{"name": "DP-1", "width": 2560, "height": 1440, "x": 0, "y": 0, "focused": false, "scale": 1},
	{"name": "HDMI-A-1", "width": 1080, "height": 1920, "x": 2560, "y": 0, "focused": true, "scale": 1}
]`

func fakeHyprctl(t *testing.T, cursor string, cursorErr error) {
	t.Helper()
	orig := hyprctl
	t.Cleanup(func() { hyprctl = orig })
	hyprctl = func(args ...string) ([]byte, error) {
		switch args[0] {
		case "monitors":
			return []byte(monitorsJSON), nil
		case "cursorpos":
			return []byte(cursor), cursorErr
		}
		return nil, errors.New("unexpected command")
	}
}

func TestParseCursor(t *testing.T) {
	pos, err := parseCursor("1200, 640\n")
	require.NoError(t, err)
	assert.Equal(t, models.CursorPosition{X: 1200, Y: 640}, pos)

	for _, bad := range []string{"", "12", "a, 3", "3, b"} {
		_, err := parseCursor(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetMouseMonitor(t *testing.T) {
	tests := []struct {
		name      string
		cursor    string
		cursorErr error
		want      string
	}{
		{"cursor on first", "100, 100", nil, "DP-1"},
		{"cursor on portrait", "3000, 1500", nil, "HDMI-A-1"},
		{"cursor off screen falls back to focused", "-10, -10", nil, "HDMI-A-1"},
		{"no cursor falls back to focused", "", errors.New("not hyprland"), "HDMI-A-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeHyprctl(t, tt.cursor, tt.cursorErr)
			got, err := GetMouseMonitor()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPick_Empty(t *testing.T) {
	_, err := Pick(nil, nil)
	assert.Error(t, err)
}

func TestMonitorPortrait(t *testing.T) {
	monitors, err := parseMonitors([]byte(monitorsJSON))
	require.NoError(t, err)
	assert.False(t, monitors[0].Portrait())
	assert.True(t, monitors[1].Portrait())
}
