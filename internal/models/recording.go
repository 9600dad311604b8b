package models

import "time"

// SessionState represents the lifecycle state of a capture session
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateStarting  SessionState = "starting"
	StateCapturing SessionState = "capturing"
	StateStopping  SessionState = "stopping"
	StateMerging   SessionState = "merging"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
)

// IsTerminal reports whether no further transition can happen from s
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsActive reports whether capture handles may be held in state s
func (s SessionState) IsActive() bool {
	return s == StateStarting || s == StateCapturing || s == StateStopping
}

// RecordingSession is a snapshot of a capture session
type RecordingSession struct {
	ID         string        `json:"id"`
	State      SessionState  `json:"state"`
	StartTime  time.Time     `json:"start_time,omitempty"`
	StopTime   time.Time     `json:"stop_time,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	VideoFile  string        `json:"video_file,omitempty"`
	AudioFile  string        `json:"audio_file,omitempty"`
	AudioBytes int64         `json:"audio_bytes,omitempty"`
	MergedFile string        `json:"merged_file,omitempty"`
	VideoOnly  bool          `json:"video_only,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// RecordingStatus is used for CLI status responses and persisted in the lock file
type RecordingStatus struct {
	IsRecording bool         `json:"is_recording"`
	SessionID   string       `json:"session_id,omitempty"`
	State       SessionState `json:"state,omitempty"`
	PID         int          `json:"pid,omitempty"`
	StartTime   time.Time    `json:"start_time,omitempty"`
	VideoFile   string       `json:"video_file,omitempty"`
	AudioFile   string       `json:"audio_file,omitempty"`
}
