package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// Registry is the single owner of the capture slot. At most one session holds
// it, within this process through a mutex and across processes through a lock
// file carrying the owner's status.
type Registry struct {
	lockPath string

	mu     sync.Mutex
	holder string
}

// processRegistry is shared by sessions created without a Registry
var processRegistry = NewRegistry("")

// NewRegistry returns a registry backed by lockPath. An empty path limits the
// registry to the current process.
func NewRegistry(lockPath string) *Registry {
	return &Registry{lockPath: lockPath}
}

// LockPath returns the lock file path
func (r *Registry) LockPath() string { return r.lockPath }

// Acquire claims the slot for status.SessionID
func (r *Registry) Acquire(status models.RecordingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holder != "" {
		return models.NewError(models.ErrAlreadyCapturing, models.SourceSession, fmt.Errorf("session %s holds the capture slot", r.holder))
	}
	if r.lockPath != "" {
		if err := r.createLock(status); err != nil {
			return err
		}
	}
	r.holder = status.SessionID
	return nil
}

func (r *Registry) createLock(status models.RecordingStatus) error {
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// One retry after clearing a lock left by a dead process
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(r.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			werr := json.NewEncoder(f).Encode(status)
			cerr := f.Close()
			if werr = errors.Join(werr, cerr); werr != nil {
				_ = os.Remove(r.lockPath)
				return fmt.Errorf("failed to write lock file: %w", werr)
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		owner, rerr := readLock(r.lockPath)
		if rerr == nil && alive(owner.PID) {
			return models.NewError(models.ErrAlreadyCapturing, models.SourceSession,
				fmt.Errorf("process %d is recording (session %s)", owner.PID, owner.SessionID))
		}
		log.Warn().Str("lock", r.lockPath).Int("pid", owner.PID).Msg("Removing stale session lock")
		if err := os.Remove(r.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return models.NewError(models.ErrAlreadyCapturing, models.SourceSession, errors.New("lock file contended"))
}

// Update rewrites the holder's status in the lock file
func (r *Registry) Update(status models.RecordingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holder != status.SessionID {
		return fmt.Errorf("session %s does not hold the capture slot", status.SessionID)
	}
	if r.lockPath == "" {
		return nil
	}

	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	tmp := r.lockPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return os.Rename(tmp, r.lockPath)
}

// Release frees the slot if id holds it
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holder != id {
		return
	}
	r.holder = ""
	if r.lockPath == "" {
		return
	}
	if err := os.Remove(r.lockPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("lock", r.lockPath).Msg("Failed to remove session lock")
	}
}

// ReadStatus reports the session recorded in lockPath. A missing lock or one
// left by a dead process reads as not recording.
func ReadStatus(lockPath string) (models.RecordingStatus, error) {
	status, err := readLock(lockPath)
	if os.IsNotExist(err) {
		return models.RecordingStatus{}, nil
	}
	if err != nil {
		return models.RecordingStatus{}, err
	}
	if !alive(status.PID) {
		return models.RecordingStatus{}, nil
	}
	status.IsRecording = status.State.IsActive()
	return status, nil
}

func readLock(path string) (models.RecordingStatus, error) {
	var status models.RecordingStatus
	data, err := os.ReadFile(path)
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return status, fmt.Errorf("corrupt lock file %s: %w", path, err)
	}
	return status, nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}
