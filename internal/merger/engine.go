package merger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrEngineInterrupted is returned when the engine was stopped by a signal
// before it finished
var ErrEngineInterrupted = errors.New("merge engine interrupted")

// Engine runs one multiplexing command, reporting its output position in
// microseconds. It returns the engine's diagnostic output alongside any error.
type Engine interface {
	Run(ctx context.Context, args []string, onProgress func(outTimeUs int64)) (string, error)
}

// FFmpeg runs the ffmpeg binary
type FFmpeg struct {
	// Path to ffmpeg; empty uses $PATH
	Path string
}

// interruptGrace is how long ffmpeg gets to exit after SIGINT on cancel
const interruptGrace = 5 * time.Second

// Run executes ffmpeg with machine-readable progress on stdout
func (f FFmpeg) Run(ctx context.Context, args []string, onProgress func(outTimeUs int64)) (string, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	// -stats_period 0.5 outputs progress every 0.5 seconds
	progressArgs := append([]string{"-hide_banner", "-nostdin", "-progress", "pipe:1", "-stats_period", "0.5", "-nostats"}, args...)

	cmd := exec.CommandContext(ctx, bin, progressArgs...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = interruptGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// key=value lines; out_time_us is "N/A" until the first packet
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if timeStr, ok := strings.CutPrefix(line, "out_time_us="); ok && onProgress != nil {
			if timeUs, err := strconv.ParseInt(timeStr, 10, 64); err == nil && timeUs >= 0 {
				onProgress(timeUs)
			}
		}
	}

	err = cmd.Wait()
	diagnostics := strings.TrimSpace(stderrBuf.String())
	if err == nil {
		return diagnostics, nil
	}
	if ctx.Err() != nil {
		return diagnostics, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && (exitErr.ExitCode() == 255 || exitErr.ExitCode() == -1) {
		return diagnostics, fmt.Errorf("%w: %v", ErrEngineInterrupted, err)
	}
	return diagnostics, fmt.Errorf("ffmpeg failed: %w", err)
}
