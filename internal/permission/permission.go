// Package permission answers the capability checks that must hold before a
// capture session may start.
package permission

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Checker reports whether the process may capture system audio and write its
// output files
type Checker interface {
	AudioCapture() bool
	Storage() bool
}

// Desktop checks the local desktop session
type Desktop struct {
	// Dirs must all be writable for Storage to pass
	Dirs []string
}

// AudioCapture requires parec and a reachable PulseAudio or PipeWire socket
func (d Desktop) AudioCapture() bool {
	if _, err := exec.LookPath("parec"); err != nil {
		return false
	}
	for _, sock := range audioSockets() {
		if _, err := os.Stat(sock); err == nil {
			return true
		}
	}
	return false
}

// Storage requires every output directory, or its nearest existing parent, to
// be writable
func (d Desktop) Storage() bool {
	for _, dir := range d.Dirs {
		if !writable(dir) {
			return false
		}
	}
	return true
}

func writable(dir string) bool {
	for dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return unix.Access(dir, unix.W_OK) == nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
	return false
}

func audioSockets() []string {
	var socks []string
	if server := os.Getenv("PULSE_SERVER"); server != "" {
		socks = append(socks, strings.TrimPrefix(server, "unix:"))
	}
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		socks = append(socks,
			filepath.Join(runtime, "pulse", "native"),
			filepath.Join(runtime, "pipewire-0"),
		)
	}
	return socks
}

// Static is a fixed answer
type Static struct {
	AllowAudio   bool
	AllowStorage bool
}

// Granted allows everything
var Granted = Static{AllowAudio: true, AllowStorage: true}

func (s Static) AudioCapture() bool { return s.AllowAudio }
func (s Static) Storage() bool      { return s.AllowStorage }
