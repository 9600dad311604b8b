package deps

import (
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
)

// DisplayServer represents the type of display server in use
type DisplayServer string

const (
	DisplayServerWayland DisplayServer = "wayland"
	DisplayServerX11     DisplayServer = "x11"
	DisplayServerUnknown DisplayServer = "unknown"
)

// Dependency represents a required external dependency
type Dependency struct {
	Name        string // Command name (e.g., "ffmpeg")
	Description string // Human-readable description
	Required    bool   // If true, app cannot run without it
}

// CheckResult contains the result of checking a dependency
type CheckResult struct {
	Dependency Dependency
	Available  bool
	Path       string // Path to the executable if found
	Error      error  // Error if check failed
}

// DetectDisplayServer determines if running on Wayland or X11
func DetectDisplayServer() DisplayServer {
	// Check for Wayland first
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return DisplayServerWayland
	}
	// Check for X11
	if os.Getenv("DISPLAY") != "" {
		return DisplayServerX11
	}
	return DisplayServerUnknown
}

// GetDisplayServerName returns a human-readable name for the display server
func GetDisplayServerName() string {
	switch DetectDisplayServer() {
	case DisplayServerWayland:
		return "Wayland"
	case DisplayServerX11:
		return "X11"
	default:
		return "Unknown"
	}
}

// BaseDeps lists dependencies required regardless of display server
var BaseDeps = []Dependency{
	{
		Name:        "ffmpeg",
		Description: "Screen encoder, X11 screen mirror and audio/video merging",
		Required:    true,
	},
	{
		Name:        "ffprobe",
		Description: "Merge progress and media inspection",
		Required:    true,
	},
	{
		Name:        "parec",
		Description: "System audio capture from the PulseAudio/PipeWire monitor",
		Required:    false,
	},
}

// WaylandDeps lists dependencies specific to Wayland
var WaylandDeps = []Dependency{
	{
		Name:        "wf-recorder",
		Description: "Wayland screen mirror",
		Required:    true,
	},
}

// OptionalDeps lists optional dependencies that enhance functionality
var OptionalDeps = []Dependency{
	{
		Name:        "notify-send",
		Description: "Desktop notifications",
		Required:    false,
	},
	{
		Name:        "hyprctl",
		Description: "Record the Hyprland output under the cursor",
		Required:    false,
	},
}

// GetRequiredDeps returns the dependencies the capture pipeline needs on the
// given display server. parec is listed here even though audio is optional:
// without it recordings are video-only.
func GetRequiredDeps(server DisplayServer) []Dependency {
	deps := slices.Clone(BaseDeps)
	if server == DisplayServerWayland {
		deps = append(deps, WaylandDeps...)
	}
	return deps
}

// Check verifies if a single dependency is available
func Check(dep Dependency) CheckResult {
	result := CheckResult{Dependency: dep}

	path, err := exec.LookPath(dep.Name)
	if err != nil {
		result.Available = false
		result.Error = err
	} else {
		result.Available = true
		result.Path = path
	}

	return result
}

// CheckAll verifies all pipeline and optional dependencies
func CheckAll(server DisplayServer) (required []CheckResult, optional []CheckResult) {
	for _, dep := range GetRequiredDeps(server) {
		required = append(required, Check(dep))
	}
	for _, dep := range OptionalDeps {
		optional = append(optional, Check(dep))
	}
	return required, optional
}

// MissingRequired returns the missing dependencies without which capture
// cannot start
func MissingRequired(server DisplayServer) []CheckResult {
	var missing []CheckResult
	for _, dep := range GetRequiredDeps(server) {
		if !dep.Required {
			continue
		}
		if result := Check(dep); !result.Available {
			missing = append(missing, result)
		}
	}
	return missing
}

// FormatMissing returns a formatted string of missing dependencies
func FormatMissing(results []CheckResult) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Missing dependencies:\n\n")

	for _, r := range results {
		status := "MISSING"
		if r.Dependency.Required {
			status = "REQUIRED"
		}
		fmt.Fprintf(&sb, "  • %s (%s)\n", r.Dependency.Name, status)
		fmt.Fprintf(&sb, "    %s\n\n", r.Dependency.Description)
	}

	return sb.String()
}

// FormatAll returns a formatted string of all dependency check results
func FormatAll(required, optional []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("Capture dependencies:\n")
	for _, r := range required {
		status := "✓"
		if !r.Available {
			status = "✗"
			if !r.Dependency.Required {
				status = "○"
			}
		}
		sb.WriteString(fmt.Sprintf("  %s %s - %s\n", status, r.Dependency.Name, r.Dependency.Description))
		if r.Available {
			sb.WriteString(fmt.Sprintf("      Path: %s\n", r.Path))
		}
	}

	sb.WriteString("\nOptional dependencies:\n")
	for _, r := range optional {
		status := "✓"
		if !r.Available {
			status = "○"
		}
		sb.WriteString(fmt.Sprintf("  %s %s - %s\n", status, r.Dependency.Name, r.Dependency.Description))
		if r.Available {
			sb.WriteString(fmt.Sprintf("      Path: %s\n", r.Path))
		}
	}

	return sb.String()
}
