// Package platform wraps the OS-owned capture handles: the capture grant, the
// screen encoder with its input surface, the mirroring virtual display and the
// system-audio tap. Every handle is acquired once and released once; callers
// are responsible for release order.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

var (
	// ErrReleased is returned when a handle is used after release
	ErrReleased = errors.New("handle already released")
	// ErrRecordEnded is the unrecoverable read result of a dead audio tap
	ErrRecordEnded = errors.New("audio record ended")
	// ErrNoDisplay is returned when no display server is reachable
	ErrNoDisplay = errors.New("no display server available")
)

// ReadTimeout bounds a single blocking audio read so cancellation is observed
const ReadTimeout = 250 * time.Millisecond

// Authorizer obtains a capture grant through the platform consent flow
type Authorizer interface {
	Authorize(ctx context.Context) (Projection, error)
}

// Projection is the capture grant. It scopes both the virtual display and the
// audio tap, and is revoked asynchronously when the platform withdraws capture.
type Projection interface {
	ID() string
	CreateVirtualDisplay(ctx context.Context, name string, track models.VideoTrack, surface Surface) (VirtualDisplay, error)
	NewAudioRecord(format models.AudioTrack, bufferSize int) (AudioRecord, error)
	// Revoked is closed when the grant is withdrawn externally
	Revoked() <-chan struct{}
	// Stop unregisters the revocation watcher and releases the grant
	Stop() error
}

// Surface is the input end of an encoder that a display pushes frames into
type Surface interface {
	Path() string
}

// EncoderFactory creates screen encoders
type EncoderFactory interface {
	NewEncoder(track models.VideoTrack, output string) Encoder
}

// Encoder turns frames pushed on its surface into a finished container file
type Encoder interface {
	// Prepare brings the encoder to its ready state and creates the surface
	Prepare() error
	Surface() Surface
	Start() error
	// Stop flushes pending frames and writes the container trailer
	Stop() error
	Release() error
	// Err delivers at most one error if the encoder dies while running
	Err() <-chan error
}

// VirtualDisplay mirrors the screen into an encoder surface
type VirtualDisplay interface {
	Release() error
	// Err delivers at most one error if mirroring stops on its own
	Err() <-chan error
}

// RecordState is the initialization state of an audio tap
type RecordState int

const (
	RecordUninitialized RecordState = iota
	RecordInitialized
)

// AudioRecord is a system-audio tap producing raw PCM
type AudioRecord interface {
	State() RecordState
	StartRecording() error
	// Read blocks for at most ReadTimeout or until ctx is done. A timeout
	// returns (0, nil); an unrecoverable failure returns ErrRecordEnded.
	Read(ctx context.Context, buf []byte) (int, error)
	Stop() error
	Release() error
}

// MinBufferSize returns the smallest recommended read buffer for format:
// 20ms of audio, aligned to whole frames.
func MinBufferSize(format models.AudioTrack) int {
	frame := format.FrameSize()
	if frame <= 0 {
		return 0
	}
	size := format.ByteRate() / 50
	size -= size % frame
	if size < frame {
		size = frame
	}
	return size
}
