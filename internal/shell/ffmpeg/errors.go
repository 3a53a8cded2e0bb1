package ffmpeg

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotInstalled is returned when ffmpeg/ffprobe are not on PATH.
	ErrNotInstalled = errors.New("ffmpeg is not installed")

	// ErrProbeFailed is returned when ffprobe exits non-zero or emits garbage.
	ErrProbeFailed = errors.New("probe failed")

	// ErrTranscodeFailed is returned when an ffmpeg run exits non-zero.
	ErrTranscodeFailed = errors.New("transcode failed")

	// ErrNoDuration is returned when a file's duration cannot be determined.
	ErrNoDuration = errors.New("no duration")
)

// ToolError wraps ffmpeg/ffprobe failures with additional context.
type ToolError struct {
	Op      string // Operation that failed
	Path    string // Media file involved, if applicable
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a new ToolError.
func NewToolError(op, path, message string, err error) *ToolError {
	return &ToolError{
		Op:      op,
		Path:    path,
		Message: message,
		Err:     err,
	}
}
