package platform

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// Mirror backends
const (
	BackendX11     = "x11"
	BackendWayland = "wayland"
)

// MirrorOptions selects how the screen is mirrored into the encoder surface
type MirrorOptions struct {
	Backend    string
	FFmpegPath string
	// Output is the Wayland output to mirror; empty mirrors the default one
	Output string
	// Display is the X11 display to grab; empty uses $DISPLAY
	Display string
}

// mirrorDisplay is a helper process pushing raw frames into a surface
type mirrorDisplay struct {
	proc     *process
	errCh    chan error
	released bool
	mu       sync.Mutex
}

// MirrorCommand returns the binary and arguments used to mirror the screen
// into surface as raw frames matching track
func MirrorCommand(opts MirrorOptions, track models.VideoTrack, surface string) (string, []string, error) {
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		track.Width, track.Height, track.Width, track.Height)

	switch opts.Backend {
	case BackendX11:
		bin := opts.FFmpegPath
		if bin == "" {
			bin = "ffmpeg"
		}
		display := opts.Display
		if display == "" {
			display = os.Getenv("DISPLAY")
		}
		if display == "" {
			return "", nil, ErrNoDisplay
		}
		return bin, []string{
			"-hide_banner",
			"-loglevel", "warning",
			"-nostdin",
			"-y",
			"-f", "x11grab",
			"-framerate", strconv.Itoa(track.FrameRate),
			"-i", display,
			"-vf", scale,
			"-pix_fmt", track.PixelFormat,
			"-f", "rawvideo",
			surface,
		}, nil

	case BackendWayland:
		args := []string{
			"-y",
			"-c", "rawvideo",
			"-m", "rawvideo",
			"-x", track.PixelFormat,
			"-r", strconv.Itoa(track.FrameRate),
			"-F", scale,
			"-f", surface,
		}
		if opts.Output != "" {
			args = append(args, "-o", opts.Output)
		}
		return "wf-recorder", args, nil
	}

	return "", nil, fmt.Errorf("unknown mirror backend %q", opts.Backend)
}

func startMirror(opts MirrorOptions, track models.VideoTrack, surface Surface) (*mirrorDisplay, error) {
	bin, args, err := MirrorCommand(opts, track, surface.Path())
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("mirror backend not available: %w", err)
	}

	proc := newProcess("mirror", bin, args...)
	if err := proc.start(); err != nil {
		return nil, err
	}

	d := &mirrorDisplay{proc: proc, errCh: make(chan error, 1)}
	go func() {
		// The waiter publishes an unexpected exit before closing done
		<-proc.done
		select {
		case err := <-proc.errCh:
			d.errCh <- err
		default:
		}
	}()
	return d, nil
}

func (d *mirrorDisplay) Err() <-chan error {
	return d.errCh
}

// Release stops mirroring. With the encoder already gone the mirror usually
// exits on a broken pipe, so any exit status is accepted.
func (d *mirrorDisplay) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	_ = d.proc.stop()
	return nil
}
