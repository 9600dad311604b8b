package models

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrCaptureInitFailed  = errors.New("capture init failed")
	ErrCaptureInterrupted = errors.New("capture interrupted")
	ErrMergeFailed        = errors.New("merge failed")
	ErrMergeCancelled     = errors.New("merge cancelled")
	ErrAlreadyCapturing   = errors.New("a capture session is already active")
)

// Source identifies which producer an error came from
type Source string

const (
	SourceAudio   Source = "audio"
	SourceVideo   Source = "video"
	SourceSession Source = "session"
	SourceMerge   Source = "merge"
)

// CaptureError carries an error kind, the failing source and the cause
type CaptureError struct {
	Kind   error
	Source Source
	Err    error
}

// NewError builds a CaptureError
func NewError(kind error, source Source, err error) *CaptureError {
	return &CaptureError{Kind: kind, Source: source, Err: err}
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *CaptureError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
