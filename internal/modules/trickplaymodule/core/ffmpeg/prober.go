// Package ffmpeg adapts the ffprobe and ffmpeg binaries to the trickplay
// collaborator interfaces.
// This file handles media probing using FFprobe.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

// execCommandContext is swapped out in tests
var execCommandContext = exec.CommandContext

// Prober uses FFprobe to extract media information
type Prober struct {
	ffprobePath string
	logger      hclog.Logger
}

// ProbeResult contains media information from FFprobe
type ProbeResult struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// NewProber creates a new media prober
func NewProber(ffprobePath string, logger hclog.Logger) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{
		ffprobePath: ffprobePath,
		logger:      logger.Named("ffprobe"),
	}
}

var _ types.MediaProber = (*Prober)(nil)

// Probe runs ffprobe and returns the asset duration. The container duration
// is preferred; the first video stream's duration is the fallback.
func (p *Prober) Probe(ctx context.Context, path string) (*types.VideoAsset, error) {
	const op = "probe"

	cmd := execCommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, tperrors.Cancelled(op, ctx.Err())
		}
		return nil, tperrors.ProbeFailure(op, fmt.Errorf("ffprobe failed: %w", err)).
			WithPath(path).
			WithDetail("stderr", strings.TrimSpace(stderr.String()))
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, tperrors.ProbeFailure(op, fmt.Errorf("failed to parse ffprobe output: %w", err)).WithPath(path)
	}

	asset := &types.VideoAsset{SourcePath: path}
	streamDuration := ""
	for _, s := range result.Streams {
		if s.CodecType == "video" {
			asset.Width = s.Width
			asset.Height = s.Height
			asset.Codec = s.CodecName
			streamDuration = s.Duration
			break
		}
	}

	duration, err := parseDuration(result.Format.Duration)
	if errors.Is(err, tperrors.ErrNoDuration) {
		duration, err = parseDuration(streamDuration)
	}
	if err != nil {
		return nil, tperrors.ProbeFailure(op, err).WithPath(path)
	}
	asset.DurationSeconds = duration

	p.logger.Debug("probed media", "path", path, "duration", duration, "codec", asset.Codec,
		"width", asset.Width, "height", asset.Height)
	return asset, nil
}

// parseDuration parses an ffprobe duration field in seconds
func parseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, tperrors.ErrNoDuration
	}

	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", tperrors.ErrInvalidDuration, s)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, fmt.Errorf("%w: %v", tperrors.ErrInvalidDuration, d)
	}
	return d, nil
}
