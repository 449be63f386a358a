package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

// Extractor grabs single frames with ffmpeg, one process per timestamp
type Extractor struct {
	ffmpegPath string
	logger     hclog.Logger
}

// NewExtractor creates a new frame extractor
func NewExtractor(ffmpegPath string, logger hclog.Logger) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{
		ffmpegPath: ffmpegPath,
		logger:     logger.Named("ffmpeg"),
	}
}

var _ types.FrameExtractor = (*Extractor)(nil)

// FrameName returns the file name of frame index in the given format
func FrameName(index int, format string) string {
	return fmt.Sprintf("%d.%s", index, types.NormalizeFormat(format))
}

// BuildFrameArgs returns the ffmpeg arguments that write the frame at
// timestamp seconds to outputPath, scaled to width with the aspect kept.
func BuildFrameArgs(input string, timestamp float64, width int, outputPath, format string, quality int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		// Input seeking is fast and accurate for single-frame grabs
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-an", "-sn", "-dn",
		"-vf", fmt.Sprintf("scale=%d:-2", width),
	}

	switch types.NormalizeFormat(format) {
	case "jpg", "jpeg":
		args = append(args, "-q:v", strconv.Itoa(jpegQScale(quality)))
	case "webp":
		args = append(args, "-quality", strconv.Itoa(quality))
	}

	return append(args, "-y", outputPath)
}

// jpegQScale maps a 1-100 quality onto ffmpeg's 2-31 mjpeg qscale
func jpegQScale(quality int) int {
	if quality <= 0 || quality > 100 {
		return 2
	}
	return 2 + (100-quality)*29/99
}

// Extract writes {index}.{format} into req.OutputDir for every timestamp.
// Frames are grabbed concurrently; produced is called once per written
// frame and calls are serialized.
func (e *Extractor) Extract(ctx context.Context, req types.ExtractRequest, produced func(name string)) error {
	const op = "extract_frames"

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return tperrors.ExtractionFailure(op, fmt.Errorf("failed to create frames directory: %w", err)).WithPath(req.OutputDir)
	}

	limit := req.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, ts := range req.Timestamps {
		if gctx.Err() != nil {
			break
		}
		i, ts := i, ts
		g.Go(func() error {
			name := FrameName(i, req.Format)
			out := filepath.Join(req.OutputDir, name)

			if err := e.grab(gctx, req, ts, out); err != nil {
				if ctx.Err() != nil {
					return tperrors.Cancelled(op, ctx.Err())
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return tperrors.ExtractionFailure(op, err).
					WithIndex(i).
					WithPath(out).
					WithDetail("timestamp", ts)
			}

			if produced != nil {
				mu.Lock()
				produced(name)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return tperrors.Wrap(err, tperrors.ErrorTypeExtractionFailure, op)
	}
	if err := ctx.Err(); err != nil {
		return tperrors.Cancelled(op, err)
	}

	e.logger.Debug("frames extracted", "source", req.SourcePath, "count", len(req.Timestamps), "dir", req.OutputDir)
	return nil
}

func (e *Extractor) grab(ctx context.Context, req types.ExtractRequest, ts float64, out string) error {
	args := BuildFrameArgs(req.SourcePath, ts, req.FrameWidth, out, req.Format, req.Quality)
	cmd := execCommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("ffmpeg failed at %.3fs: %w: %s", ts, err, msg)
		}
		return fmt.Errorf("ffmpeg failed at %.3fs: %w", ts, err)
	}

	// ffmpeg exits 0 without output when seeking past the last decodable frame
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w at %.3fs", tperrors.ErrFrameMissing, ts)
	}
	return nil
}

// CheckAvailable verifies that ffmpeg and ffprobe can be executed
func CheckAvailable(ctx context.Context, ffmpegPath, ffprobePath string) error {
	for _, bin := range []string{ffmpegPath, ffprobePath} {
		cmd := execCommandContext(ctx, bin, "-version")
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s is not available: %w", bin, err)
		}
	}
	return nil
}
