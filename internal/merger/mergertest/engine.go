// Package mergertest provides a scriptable merge engine for tests.
package mergertest

import (
	"context"
	"os"
	"slices"
	"sync"
)

// Engine is a merge engine that never spawns a process. On success it writes
// Output to the last argument.
type Engine struct {
	// Err fails the run after an optional partial write
	Err error
	// Diagnostics is returned as the engine log
	Diagnostics string
	// Block makes the run wait for cancellation
	Block bool
	// Partial writes a truncated output before failing or blocking
	Partial bool
	// Progress positions reported before finishing, in microseconds
	Progress []int64
	// Output is written on success; defaults to "merged"
	Output []byte

	mu      sync.Mutex
	calls   [][]string
	started chan struct{}
	once    sync.Once
}

// Run implements merger.Engine
func (e *Engine) Run(ctx context.Context, args []string, onProgress func(int64)) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, slices.Clone(args))
	e.mu.Unlock()
	e.signalStarted()

	out := args[len(args)-1]
	if e.Partial {
		_ = os.WriteFile(out, []byte("partial"), 0644)
	}
	for _, p := range e.Progress {
		if onProgress != nil {
			onProgress(p)
		}
	}

	if e.Block {
		<-ctx.Done()
		return e.Diagnostics, ctx.Err()
	}
	if e.Err != nil {
		return e.Diagnostics, e.Err
	}

	output := e.Output
	if output == nil {
		output = []byte("merged")
	}
	if err := os.WriteFile(out, output, 0644); err != nil {
		return e.Diagnostics, err
	}
	return e.Diagnostics, nil
}

// Calls returns the argument lists of every run
func (e *Engine) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// Started is closed once the first run begins
func (e *Engine) Started() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started == nil {
		e.started = make(chan struct{})
	}
	return e.started
}

func (e *Engine) signalStarted() {
	e.mu.Lock()
	if e.started == nil {
		e.started = make(chan struct{})
	}
	ch := e.started
	e.mu.Unlock()
	e.once.Do(func() { close(ch) })
}
