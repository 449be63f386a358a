package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestTrickplayError(t *testing.T) {
	err := New(ErrorTypeCompositeFailure, "composite", errors.New("corrupt jpeg"))
	if err.Type != ErrorTypeCompositeFailure {
		t.Errorf("expected type %s, got %s", ErrorTypeCompositeFailure, err.Type)
	}
	if err.HasIndex() {
		t.Error("new error should not carry an index")
	}

	err = err.WithJob("job-1").WithIndex(7).WithPath("/tmp/frames/7.jpg")
	err = err.WithDetail("sheet", 0)
	if err.Details["sheet"] != 0 {
		t.Errorf("expected sheet detail 0, got %v", err.Details["sheet"])
	}

	expected := "composite_failure in composite for job job-1 at index 7 (/tmp/frames/7.jpg): corrupt jpeg"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestIndexZeroIsReported(t *testing.T) {
	err := WriteFailure("persist_sheet", errors.New("disk full")).WithIndex(0)

	index, ok := GetIndex(err)
	if !ok || index != 0 {
		t.Errorf("expected index 0, got %d (ok=%v)", index, ok)
	}

	if _, ok := GetIndex(ScheduleError("schedule", ErrInvalidInterval)); ok {
		t.Error("schedule error should carry no index")
	}
}

func TestErrorWrapping(t *testing.T) {
	err := FilenameParseError("load_frames", ErrBadFrameName)
	if !errors.Is(err, ErrBadFrameName) {
		t.Error("expected error to match ErrBadFrameName")
	}

	wrapped := fmt.Errorf("pipeline: %w", err)
	if GetType(wrapped) != ErrorTypeFilenameParse {
		t.Errorf("expected type %s, got %s", ErrorTypeFilenameParse, GetType(wrapped))
	}
	if GetOperation(wrapped) != "load_frames" {
		t.Errorf("expected operation 'load_frames', got %s", GetOperation(wrapped))
	}
	if GetOperation(errors.New("plain")) != "unknown" {
		t.Error("expected unknown operation for plain errors")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrorTypeProbeFailure, "probe") != nil {
		t.Error("wrapping nil should return nil")
	}

	original := PackingError("pack", ErrInvalidGrid)
	if Wrap(original, ErrorTypeProbeFailure, "probe") != error(original) {
		t.Error("existing TrickplayError should be returned unchanged")
	}

	err := Wrap(errors.New("exit status 1"), ErrorTypeProbeFailure, "probe")
	if GetType(err) != ErrorTypeProbeFailure {
		t.Errorf("expected type %s, got %s", ErrorTypeProbeFailure, GetType(err))
	}
}

func TestCancelled(t *testing.T) {
	err := Wrap(context.Canceled, ErrorTypeExtractionFailure, "extract")
	if GetType(err) != ErrorTypeCancelled {
		t.Errorf("expected type %s, got %s", ErrorTypeCancelled, GetType(err))
	}
	if !errors.Is(err, ErrCancelled) {
		t.Error("expected error to match ErrCancelled")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected error to match context.Canceled")
	}

	deadline := Wrap(context.DeadlineExceeded, ErrorTypeCompositeFailure, "composite")
	if !IsContextError(deadline) {
		t.Error("deadline errors should be context errors")
	}
}

func TestJobNotFound(t *testing.T) {
	err := JobNotFound("get_job", "abc")
	if !errors.Is(err, ErrJobNotFound) {
		t.Error("expected error to match ErrJobNotFound")
	}
	if err.JobID != "abc" {
		t.Errorf("expected job ID 'abc', got %s", err.JobID)
	}
}
