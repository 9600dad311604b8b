package platform

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StopTimeout is how long a helper process gets to exit after SIGINT
const StopTimeout = 5 * time.Second

// process supervises one external helper (ffmpeg, parec, wf-recorder).
// Exit is observed by a single waiter goroutine; everyone else reads done.
type process struct {
	name   string
	cmd    *exec.Cmd
	stderr *tailBuffer

	done     chan struct{}
	waitErr  error
	errCh    chan error
	stopping bool
	mu       sync.Mutex
}

func newProcess(name string, bin string, args ...string) *process {
	cmd := exec.Command(bin, args...)
	stderr := &tailBuffer{limit: 8 * 1024}
	cmd.Stderr = stderr
	return &process{
		name:   name,
		cmd:    cmd,
		stderr: stderr,
		done:   make(chan struct{}),
		errCh:  make(chan error, 1),
	}
}

// start launches the process and the waiter goroutine
func (p *process) start() error {
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.name, err)
	}

	log.Debug().Str("process", p.name).Int("pid", p.cmd.Process.Pid).
		Str("args", strings.Join(p.cmd.Args, " ")).Msg("Helper started")

	go func() {
		err := p.cmd.Wait()

		p.mu.Lock()
		p.waitErr = err
		unexpected := !p.stopping
		p.mu.Unlock()

		if unexpected {
			p.errCh <- fmt.Errorf("%s exited unexpectedly: %v: %s", p.name, err, p.stderr.String())
		}
		close(p.done)
	}()

	return nil
}

func (p *process) started() bool {
	return p.cmd.Process != nil
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// stop sends SIGINT for a graceful shutdown and kills after StopTimeout
func (p *process) stop() error {
	if !p.started() {
		return nil
	}

	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	if p.exited() {
		return p.exitError()
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(StopTimeout):
		log.Warn().Str("process", p.name).Msg("Helper did not exit after SIGINT, killing")
		_ = p.cmd.Process.Kill()
		<-p.done
	}

	return p.exitError()
}

// kill terminates the process without waiting for a graceful shutdown
func (p *process) kill() {
	if !p.started() || p.exited() {
		return
	}
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	_ = p.cmd.Process.Kill()
	<-p.done
}

// exitError treats a clean exit and an exit caused by our own SIGINT as success
func (p *process) exitError() error {
	p.mu.Lock()
	err := p.waitErr
	p.mu.Unlock()

	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ffmpeg exits 255 when interrupted; parec and wf-recorder report the signal
		if exitErr.ExitCode() == 255 || exitErr.ExitCode() == -1 || exitErr.ExitCode() == 130 {
			return nil
		}
	}
	return fmt.Errorf("%s: %w: %s", p.name, err, p.stderr.String())
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
