// Package schedule decides at which moments of a video frames are sampled.
package schedule

import (
	"fmt"
	"math"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
)

const op = "schedule"

// Plan selects one of three scheduling rules. In order of precedence:
// a non-empty ExplicitTimestamps list is used as given, a positive
// FrameCount spreads that many frames evenly, and otherwise frames are
// taken every SecondsBetweenFrames.
type Plan struct {
	SecondsBetweenFrames float64
	FrameCount           int
	ExplicitTimestamps   []float64
}

// Schedule returns the ascending list of timestamps, in seconds, at which
// frames are extracted. An empty list is valid.
func Schedule(durationSeconds float64, plan Plan) ([]float64, error) {
	if math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) || durationSeconds < 0 {
		return nil, tperrors.ScheduleError(op, fmt.Errorf("%w: %v", tperrors.ErrInvalidDuration, durationSeconds))
	}

	switch {
	case len(plan.ExplicitTimestamps) > 0:
		return explicit(durationSeconds, plan.ExplicitTimestamps)
	case plan.FrameCount > 0:
		return evenlySpaced(durationSeconds, plan.FrameCount), nil
	case plan.FrameCount < 0:
		return nil, tperrors.ScheduleError(op, fmt.Errorf("frame count must not be negative, got %d", plan.FrameCount))
	default:
		return byInterval(durationSeconds, plan.SecondsBetweenFrames)
	}
}

// FrameCount returns floor(duration/interval), the number of frames the
// interval rule yields.
func FrameCount(durationSeconds, secondsBetweenFrames float64) (int, error) {
	if math.IsNaN(secondsBetweenFrames) || math.IsInf(secondsBetweenFrames, 0) || secondsBetweenFrames <= 0 {
		return 0, tperrors.ScheduleError(op, fmt.Errorf("%w: %v", tperrors.ErrInvalidInterval, secondsBetweenFrames))
	}
	return int(math.Floor(durationSeconds / secondsBetweenFrames)), nil
}

func byInterval(duration, interval float64) ([]float64, error) {
	n, err := FrameCount(duration, interval)
	if err != nil {
		return nil, err
	}

	timestamps := make([]float64, n)
	for i := range timestamps {
		timestamps[i] = float64(i) * interval
	}
	return timestamps, nil
}

// evenlySpaced yields i*D/N for i in [0, N), so the last frame stays
// strictly before the end of the video.
func evenlySpaced(duration float64, n int) []float64 {
	timestamps := make([]float64, n)
	for i := range timestamps {
		timestamps[i] = float64(i) * duration / float64(n)
	}
	return timestamps
}

func explicit(duration float64, list []float64) ([]float64, error) {
	timestamps := make([]float64, len(list))
	for i, ts := range list {
		switch {
		case math.IsNaN(ts) || math.IsInf(ts, 0):
			return nil, invalidTimestamp(i, "%v is not finite", ts)
		case ts < 0:
			return nil, invalidTimestamp(i, "%v is negative", ts)
		case ts > duration || (duration > 0 && ts == duration):
			// a seek to the very end yields no frame
			return nil, invalidTimestamp(i, "%v is not before the end of the video (%v)", ts, duration)
		case i > 0 && ts <= list[i-1]:
			return nil, invalidTimestamp(i, "%v does not follow %v", ts, list[i-1])
		}
		timestamps[i] = ts
	}
	return timestamps, nil
}

func invalidTimestamp(index int, format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", tperrors.ErrInvalidTimestamp, fmt.Sprintf(format, args...))
	return tperrors.ScheduleError(op, err).WithIndex(index)
}
