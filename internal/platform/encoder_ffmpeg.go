package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// fifoSurface is a named pipe the mirror writes raw frames into
type fifoSurface struct {
	path string
}

func (s fifoSurface) Path() string { return s.path }

// FFmpegEncoders creates encoders backed by an ffmpeg process
type FFmpegEncoders struct {
	FFmpegPath string
}

// NewEncoder implements EncoderFactory
func (f FFmpegEncoders) NewEncoder(track models.VideoTrack, output string) Encoder {
	bin := f.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegEncoder{bin: bin, track: track, output: output}
}

// FFmpegEncoder reads raw frames from a FIFO surface and writes H.264 MP4
type FFmpegEncoder struct {
	bin    string
	track  models.VideoTrack
	output string

	mu       sync.Mutex
	dir      string
	surface  *fifoSurface
	proc     *process
	errCh    chan error
	released bool
}

// Prepare validates the encoder binary and creates the FIFO surface
func (e *FFmpegEncoder) Prepare() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrReleased
	}
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("encoder not available: %w", err)
	}

	dir, err := os.MkdirTemp("", "screenmux-surface-")
	if err != nil {
		return fmt.Errorf("failed to create surface dir: %w", err)
	}
	path := filepath.Join(dir, "frames.yuv")
	if err := unix.Mkfifo(path, 0600); err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("failed to create encoder surface: %w", err)
	}

	e.dir = dir
	e.surface = &fifoSurface{path: path}
	e.errCh = make(chan error, 1)
	return nil
}

// Surface returns the FIFO created by Prepare, or nil before Prepare
func (e *FFmpegEncoder) Surface() Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface == nil {
		return nil
	}
	return e.surface
}

// Args returns the ffmpeg command line for the encoder
func (e *FFmpegEncoder) Args(surface string) []string {
	t := e.track
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostdin",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", t.PixelFormat,
		"-video_size", t.Resolution(),
		"-framerate", strconv.Itoa(t.FrameRate),
		"-i", surface,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", strconv.Itoa(t.Bitrate),
		"-maxrate", strconv.Itoa(t.Bitrate),
		"-bufsize", strconv.Itoa(t.Bitrate * 2),
		"-r", strconv.Itoa(t.FrameRate),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		e.output,
	}
}

// Start launches the encoder process
func (e *FFmpegEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrReleased
	}
	if e.surface == nil {
		return fmt.Errorf("encoder not prepared")
	}

	proc := newProcess("encoder", e.bin, e.Args(e.surface.path)...)
	if err := proc.start(); err != nil {
		return err
	}
	e.proc = proc

	go func() {
		<-proc.done
		select {
		case err := <-proc.errCh:
			e.errCh <- err
		default:
		}
	}()

	return nil
}

// Err implements Encoder
func (e *FFmpegEncoder) Err() <-chan error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errCh
}

// Stop interrupts ffmpeg so it writes the MP4 trailer and waits for it
func (e *FFmpegEncoder) Stop() error {
	e.mu.Lock()
	proc := e.proc
	e.mu.Unlock()

	if proc == nil {
		return nil
	}
	return proc.stop()
}

// Release kills a still-running encoder and removes the surface
func (e *FFmpegEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return nil
	}
	e.released = true

	if e.proc != nil {
		e.proc.kill()
	}
	if e.dir != "" {
		return os.RemoveAll(e.dir)
	}
	return nil
}
