package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// ParecRecord taps the PulseAudio/PipeWire monitor of the default sink
type ParecRecord struct {
	device     string
	format     models.AudioTrack
	bufferSize int

	mu       sync.Mutex
	state    RecordState
	proc     *process
	reader   *os.File
	released bool
}

// NewParecRecord builds a tap for device. The record is left uninitialized
// when parec is missing or the format cannot be expressed.
func NewParecRecord(device string, format models.AudioTrack, bufferSize int) *ParecRecord {
	r := &ParecRecord{device: device, format: format, bufferSize: bufferSize}
	if _, err := exec.LookPath("parec"); err != nil {
		return r
	}
	if format.Format != models.AudioSampleFormat || format.SampleRate <= 0 || format.ChannelCount <= 0 {
		return r
	}
	if bufferSize < format.FrameSize() {
		return r
	}
	r.state = RecordInitialized
	return r
}

// State implements AudioRecord
func (r *ParecRecord) State() RecordState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Args returns the parec command line
func (r *ParecRecord) Args() []string {
	latency := r.bufferSize * 1000 / max(r.format.ByteRate(), 1)
	args := []string{
		"--raw",
		"--format=" + r.format.Format,
		"--rate=" + strconv.Itoa(r.format.SampleRate),
		"--channels=" + strconv.Itoa(r.format.ChannelCount),
		"--latency-msec=" + strconv.Itoa(max(latency, 1)),
	}
	if r.device != "" {
		args = append(args, "--device="+r.device)
	}
	return args
}

// StartRecording launches parec with its stdout on a pollable pipe
func (r *ParecRecord) StartRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return ErrReleased
	}
	if r.state != RecordInitialized {
		return fmt.Errorf("audio record not initialized")
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create audio pipe: %w", err)
	}

	proc := newProcess("audio-tap", "parec", r.Args()...)
	proc.cmd.Stdout = pw
	if err := proc.start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return err
	}
	// The child holds its own copy of the write end
	_ = pw.Close()

	r.proc = proc
	r.reader = pr
	return nil
}

// Read implements AudioRecord with a deadline bounded by ReadTimeout and ctx
func (r *ParecRecord) Read(ctx context.Context, buf []byte) (int, error) {
	r.mu.Lock()
	reader := r.reader
	r.mu.Unlock()

	if reader == nil {
		return 0, ErrRecordEnded
	}
	if err := ctx.Err(); err != nil {
		return 0, nil
	}

	deadline := time.Now().Add(ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := reader.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRecordEnded, err)
	}

	n, err := reader.Read(buf)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
		return n, ErrRecordEnded
	default:
		return n, fmt.Errorf("%w: %v", ErrRecordEnded, err)
	}
}

// Stop interrupts parec
func (r *ParecRecord) Stop() error {
	r.mu.Lock()
	proc := r.proc
	r.mu.Unlock()

	if proc == nil {
		return nil
	}
	return proc.stop()
}

// Release closes the pipe and makes the record unusable
func (r *ParecRecord) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return nil
	}
	r.released = true
	r.state = RecordUninitialized

	if r.proc != nil {
		r.proc.kill()
	}
	if r.reader != nil {
		err := r.reader.Close()
		r.reader = nil
		return err
	}
	return nil
}
