// Package monitor picks the Hyprland output the Wayland mirror records.
package monitor

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// hyprctl runs the Hyprland control tool; replaced in tests
var hyprctl = func(args ...string) ([]byte, error) {
	return exec.Command("hyprctl", args...).Output()
}

// ListMonitors returns all outputs known to Hyprland
func ListMonitors() ([]models.Monitor, error) {
	output, err := hyprctl("monitors", "-j")
	if err != nil {
		return nil, fmt.Errorf("failed to run hyprctl monitors: %w", err)
	}
	return parseMonitors(output)
}

func parseMonitors(data []byte) ([]models.Monitor, error) {
	var monitors []models.Monitor
	if err := json.Unmarshal(data, &monitors); err != nil {
		return nil, fmt.Errorf("failed to parse monitors JSON: %w", err)
	}
	return monitors, nil
}

// GetCursorPosition returns the current cursor position
func GetCursorPosition() (models.CursorPosition, error) {
	output, err := hyprctl("cursorpos")
	if err != nil {
		return models.CursorPosition{}, fmt.Errorf("failed to get cursor position: %w", err)
	}
	return parseCursor(string(output))
}

// parseCursor reads hyprctl's "x, y" format
func parseCursor(s string) (models.CursorPosition, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return models.CursorPosition{}, fmt.Errorf("unexpected cursor position format: %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return models.CursorPosition{}, fmt.Errorf("failed to parse cursor X: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return models.CursorPosition{}, fmt.Errorf("failed to parse cursor Y: %w", err)
	}
	return models.CursorPosition{X: x, Y: y}, nil
}

// Pick returns the output under pos, else the focused one, else the first
func Pick(monitors []models.Monitor, pos *models.CursorPosition) (string, error) {
	if pos != nil {
		for _, m := range monitors {
			if m.ContainsCursor(*pos) {
				return m.Name, nil
			}
		}
	}
	for _, m := range monitors {
		if m.Focused {
			return m.Name, nil
		}
	}
	if len(monitors) > 0 {
		return monitors[0].Name, nil
	}
	return "", fmt.Errorf("no monitors found")
}

// GetMouseMonitor returns the name of the output holding the cursor
func GetMouseMonitor() (string, error) {
	monitors, err := ListMonitors()
	if err != nil {
		return "", err
	}
	pos, err := GetCursorPosition()
	if err != nil {
		return Pick(monitors, nil)
	}
	return Pick(monitors, &pos)
}
