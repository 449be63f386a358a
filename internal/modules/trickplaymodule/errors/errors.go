// Package errors provides structured error handling for the trickplay module.
// Every pipeline failure is surfaced as a *TrickplayError naming the failing
// category, the operation (stage) and, where one is involved, the frame or
// sheet index.
package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies a failure
type ErrorType string

const (
	ErrorTypeInputNotFound     ErrorType = "input_not_found"
	ErrorTypeProbeFailure      ErrorType = "probe_failure"
	ErrorTypeSchedule          ErrorType = "schedule_error"
	ErrorTypeExtractionFailure ErrorType = "extraction_failure"
	ErrorTypeDirectoryMissing  ErrorType = "directory_missing"
	ErrorTypeFilenameParse     ErrorType = "filename_parse_error"
	ErrorTypePacking           ErrorType = "packing_error"
	ErrorTypeCompositeFailure  ErrorType = "composite_failure"
	ErrorTypeWriteFailure      ErrorType = "write_failure"
	ErrorTypeCancelled         ErrorType = "cancelled"
	ErrorTypeInvalidConfig     ErrorType = "invalid_config"
	ErrorTypeJobNotFound       ErrorType = "job_not_found"
	ErrorTypeInvalidTransition ErrorType = "invalid_transition"
	ErrorTypeTimeout           ErrorType = "timeout"
)

// Sentinel errors for common scenarios
var (
	// ErrInputNotFound indicates the source video does not exist
	ErrInputNotFound = errors.New("input not found")

	// ErrNoDuration indicates the prober returned no usable duration
	ErrNoDuration = errors.New("no usable duration")

	// ErrInvalidDuration indicates a negative, NaN or infinite duration
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidInterval indicates a non-positive or non-finite frame interval
	ErrInvalidInterval = errors.New("invalid frame interval")

	// ErrInvalidTimestamp indicates a bad entry in an explicit timestamp list
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrFrameMissing indicates the extractor finished without producing a frame
	ErrFrameMissing = errors.New("frame not produced")

	// ErrFrameCountMismatch indicates the extracted frame set does not match the schedule
	ErrFrameCountMismatch = errors.New("frame count mismatch")

	// ErrDirectoryMissing indicates the frames directory does not exist
	ErrDirectoryMissing = errors.New("directory missing")

	// ErrBadFrameName indicates a frame file whose stem is not a valid index
	ErrBadFrameName = errors.New("frame filename is not an index")

	// ErrDuplicateFrame indicates two frame files resolve to the same index
	ErrDuplicateFrame = errors.New("duplicate frame index")

	// ErrInvalidGrid indicates non-positive grid dimensions
	ErrInvalidGrid = errors.New("invalid grid dimensions")

	// ErrFrameTooWide indicates a frame wider than the configured cell width
	ErrFrameTooWide = errors.New("frame wider than cell")

	// ErrFrameSequenceGap indicates frame indices are not contiguous from zero
	ErrFrameSequenceGap = errors.New("frame indices are not contiguous")

	// ErrUnsupportedFormat indicates an image format the engine cannot encode
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrCancelled indicates the run was cancelled by the caller
	ErrCancelled = errors.New("operation cancelled")

	// ErrJobNotFound indicates a job ID that doesn't exist
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTimeout indicates a job ran longer than the configured limit
	ErrJobTimeout = errors.New("job timed out")
)

// noIndex marks errors that do not concern a particular frame or sheet
const noIndex = -1

// TrickplayError provides structured error information with context
type TrickplayError struct {
	Type    ErrorType              // Error classification
	Op      string                 // Stage or operation that failed
	JobID   string                 // Related job ID if applicable
	Index   int                    // Frame or sheet index, -1 when not applicable
	Path    string                 // File involved, if any
	Err     error                  // Underlying error
	Details map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *TrickplayError) Error() string {
	msg := fmt.Sprintf("%s in %s", e.Type, e.Op)
	if e.JobID != "" {
		msg += fmt.Sprintf(" for job %s", e.JobID)
	}
	if e.Index != noIndex {
		msg += fmt.Sprintf(" at index %d", e.Index)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	return msg + ": " + fmt.Sprint(e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *TrickplayError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *TrickplayError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// HasIndex reports whether the error concerns a specific frame or sheet
func (e *TrickplayError) HasIndex() bool {
	return e.Index != noIndex
}

// New creates a new TrickplayError
func New(errType ErrorType, op string, err error) *TrickplayError {
	return &TrickplayError{
		Type:    errType,
		Op:      op,
		Index:   noIndex,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithIndex records the frame or sheet index involved
func (e *TrickplayError) WithIndex(index int) *TrickplayError {
	e.Index = index
	return e
}

// WithPath records the file involved
func (e *TrickplayError) WithPath(path string) *TrickplayError {
	e.Path = path
	return e
}

// WithJob records the job the failure belongs to
func (e *TrickplayError) WithJob(jobID string) *TrickplayError {
	e.JobID = jobID
	return e
}

// WithDetail adds a key-value detail to the error
func (e *TrickplayError) WithDetail(key string, value interface{}) *TrickplayError {
	e.Details[key] = value
	return e
}

// Error creation helpers

func InputNotFound(op string, err error) *TrickplayError {
	return New(ErrorTypeInputNotFound, op, err)
}

func ProbeFailure(op string, err error) *TrickplayError {
	return New(ErrorTypeProbeFailure, op, err)
}

func ScheduleError(op string, err error) *TrickplayError {
	return New(ErrorTypeSchedule, op, err)
}

func ExtractionFailure(op string, err error) *TrickplayError {
	return New(ErrorTypeExtractionFailure, op, err)
}

func DirectoryMissing(op string, err error) *TrickplayError {
	return New(ErrorTypeDirectoryMissing, op, err)
}

func FilenameParseError(op string, err error) *TrickplayError {
	return New(ErrorTypeFilenameParse, op, err)
}

func PackingError(op string, err error) *TrickplayError {
	return New(ErrorTypePacking, op, err)
}

func CompositeFailure(op string, err error) *TrickplayError {
	return New(ErrorTypeCompositeFailure, op, err)
}

func WriteFailure(op string, err error) *TrickplayError {
	return New(ErrorTypeWriteFailure, op, err)
}

func InvalidConfig(op string, err error) *TrickplayError {
	return New(ErrorTypeInvalidConfig, op, err)
}

func JobNotFound(op, jobID string) *TrickplayError {
	return New(ErrorTypeJobNotFound, op, ErrJobNotFound).WithJob(jobID)
}

func InvalidTransition(op string, err error) *TrickplayError {
	return New(ErrorTypeInvalidTransition, op, err)
}

// Cancelled wraps a context error so that errors.Is matches both
// ErrCancelled and the original context error.
func Cancelled(op string, err error) *TrickplayError {
	return New(ErrorTypeCancelled, op, fmt.Errorf("%w: %w", ErrCancelled, err))
}

// Timeout marks a job that exceeded its time limit
func Timeout(op string, limit time.Duration) *TrickplayError {
	return New(ErrorTypeTimeout, op, fmt.Errorf("%w after %s", ErrJobTimeout, limit))
}

// IsContextError reports whether err stems from context cancellation or deadline
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Wrap wraps an error with operation context if it's not already a TrickplayError.
// Context errors are always classified as cancellations.
func Wrap(err error, errType ErrorType, op string) error {
	if err == nil {
		return nil
	}

	var tErr *TrickplayError
	if errors.As(err, &tErr) {
		return err
	}

	if IsContextError(err) {
		return Cancelled(op, err)
	}

	return New(errType, op, err)
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	var tErr *TrickplayError
	if errors.As(err, &tErr) {
		return tErr.Type
	}
	return ""
}

// GetOperation extracts the operation from an error
func GetOperation(err error) string {
	var tErr *TrickplayError
	if errors.As(err, &tErr) {
		return tErr.Op
	}
	return "unknown"
}

// GetIndex extracts the frame or sheet index, if the error carries one
func GetIndex(err error) (int, bool) {
	var tErr *TrickplayError
	if errors.As(err, &tErr) && tErr.HasIndex() {
		return tErr.Index, true
	}
	return 0, false
}
