// Package types provides types and interfaces for the trickplay module.
package types

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mantonx/trickplay/internal/config"
	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
)

const (
	// FramesDirName is the directory under the output dir holding extracted frames
	FramesDirName = "frames"

	// OutputDirSuffix is appended to the video basename for the default output dir
	OutputDirSuffix = ".trickplay"
)

// TrickplayConfig is the immutable configuration of a single generation run.
// Build it with BuildConfig; the pipeline never mutates it.
type TrickplayConfig struct {
	SourcePath string

	// OutputDir receives frames/ and the tilesheet directory
	OutputDir string

	// SecondsBetweenFrames is the interval used when neither FrameCount nor
	// ExplicitTimestamps is set
	SecondsBetweenFrames float64

	// ExplicitTimestamps, when non-empty, replaces computed scheduling
	ExplicitTimestamps []float64

	// FrameCount, when positive, spreads that many frames evenly over the video
	FrameCount int

	FrameWidth   int
	SheetColumns int
	SheetRows    int

	// SkipFrameExtraction reuses frames already present in the frames dir
	SkipFrameExtraction bool

	FrameFileFormat string
	SheetFileFormat string

	// Quality applies to lossy encoders (jpg, webp), 1-100
	Quality int

	// Background fills cells that hold no frame, as #RRGGBB
	Background string

	// Concurrency bounds decode and extraction fan-out
	Concurrency int

	// KeepFrames keeps frames/ after a successful run
	KeepFrames bool

	// WriteManifest writes thumbnails.vtt and manifest.json next to the sheets
	WriteManifest bool
}

// Options carries per-run overrides. Nil or empty fields fall back to the
// configured defaults.
type Options struct {
	OutputDir            string    `json:"output_dir,omitempty"`
	SecondsBetweenFrames *float64  `json:"seconds_between_frames,omitempty"`
	ExplicitTimestamps   []float64 `json:"timestamps,omitempty"`
	FrameCount           *int      `json:"frame_count,omitempty"`
	FrameWidth           *int      `json:"frame_width,omitempty"`
	SheetColumns         *int      `json:"sheet_columns,omitempty"`
	SheetRows            *int      `json:"sheet_rows,omitempty"`
	SkipFrameExtraction  bool      `json:"skip_frame_extraction,omitempty"`
	FrameFileFormat      string    `json:"frame_file_format,omitempty"`
	SheetFileFormat      string    `json:"sheet_file_format,omitempty"`
	Quality              *int      `json:"quality,omitempty"`
	Background           string    `json:"background,omitempty"`
	Concurrency          *int      `json:"concurrency,omitempty"`
	KeepFrames           *bool     `json:"keep_frames,omitempty"`
	WriteManifest        *bool     `json:"write_manifest,omitempty"`
}

// supportedFormats lists the image formats frames and sheets may use
var supportedFormats = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
	"bmp":  true,
	"tif":  true,
	"tiff": true,
}

// IsSupportedFormat reports whether format can be used for frames or sheets
func IsSupportedFormat(format string) bool {
	return supportedFormats[NormalizeFormat(format)]
}

// NormalizeFormat lower-cases a format and strips a leading dot
func NormalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

// DefaultOutputDir returns {videoDir}/{videoBasenameWithoutExt}.trickplay
func DefaultOutputDir(sourcePath string) string {
	dir := filepath.Dir(sourcePath)
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+OutputDirSuffix)
}

// BuildConfig merges defaults and per-run options into a validated TrickplayConfig.
// The frame interval is validated by the scheduler, since it only matters
// when no explicit timestamps or frame count are given.
func BuildConfig(defaults config.TrickplayConfig, sourcePath string, opts Options) (*TrickplayConfig, error) {
	cfg := &TrickplayConfig{
		SourcePath:           sourcePath,
		OutputDir:            opts.OutputDir,
		SecondsBetweenFrames: defaults.SecondsBetweenFrames,
		FrameWidth:           defaults.FrameWidth,
		SheetColumns:         defaults.SheetColumns,
		SheetRows:            defaults.SheetRows,
		SkipFrameExtraction:  opts.SkipFrameExtraction,
		FrameFileFormat:      defaults.FrameFileFormat,
		SheetFileFormat:      defaults.SheetFileFormat,
		Quality:              defaults.Quality,
		Background:           defaults.Background,
		Concurrency:          defaults.Concurrency,
		KeepFrames:           defaults.KeepFrames,
		WriteManifest:        defaults.WriteManifest,
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir(sourcePath)
	}
	if len(opts.ExplicitTimestamps) > 0 {
		cfg.ExplicitTimestamps = append([]float64(nil), opts.ExplicitTimestamps...)
	}
	if opts.SecondsBetweenFrames != nil {
		cfg.SecondsBetweenFrames = *opts.SecondsBetweenFrames
	}
	if opts.FrameCount != nil {
		cfg.FrameCount = *opts.FrameCount
	}
	if opts.FrameWidth != nil {
		cfg.FrameWidth = *opts.FrameWidth
	}
	if opts.SheetColumns != nil {
		cfg.SheetColumns = *opts.SheetColumns
	}
	if opts.SheetRows != nil {
		cfg.SheetRows = *opts.SheetRows
	}
	if opts.FrameFileFormat != "" {
		cfg.FrameFileFormat = opts.FrameFileFormat
	}
	if opts.SheetFileFormat != "" {
		cfg.SheetFileFormat = opts.SheetFileFormat
	}
	if opts.Quality != nil {
		cfg.Quality = *opts.Quality
	}
	if opts.Background != "" {
		cfg.Background = opts.Background
	}
	if opts.Concurrency != nil {
		cfg.Concurrency = *opts.Concurrency
	}
	if opts.KeepFrames != nil {
		cfg.KeepFrames = *opts.KeepFrames
	}
	if opts.WriteManifest != nil {
		cfg.WriteManifest = *opts.WriteManifest
	}

	cfg.FrameFileFormat = NormalizeFormat(cfg.FrameFileFormat)
	cfg.SheetFileFormat = NormalizeFormat(cfg.SheetFileFormat)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every run depends on
func (c *TrickplayConfig) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return tperrors.InvalidConfig("build_config", fmt.Errorf(format, args...))
	}

	if c.SourcePath == "" {
		return invalid("source path is required")
	}
	if c.FrameWidth <= 0 {
		return invalid("frame width must be positive, got %d", c.FrameWidth)
	}
	if c.SheetColumns <= 0 || c.SheetRows <= 0 {
		return invalid("sheet grid must be positive, got %dx%d", c.SheetColumns, c.SheetRows)
	}
	if c.FrameCount < 0 {
		return invalid("frame count must not be negative, got %d", c.FrameCount)
	}
	if !IsSupportedFormat(c.FrameFileFormat) {
		return invalid("unsupported frame format %q", c.FrameFileFormat)
	}
	if !IsSupportedFormat(c.SheetFileFormat) {
		return invalid("unsupported sheet format %q", c.SheetFileFormat)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return invalid("quality must be between 1 and 100, got %d", c.Quality)
	}
	if _, err := ParseBackground(c.Background); err != nil {
		return invalid("%v", err)
	}
	if math.IsNaN(c.SecondsBetweenFrames) {
		return invalid("seconds between frames is not a number")
	}
	return nil
}

// FramesDir returns {outputDir}/frames
func (c *TrickplayConfig) FramesDir() string {
	return filepath.Join(c.OutputDir, FramesDirName)
}

// TilesheetDirName returns "{frameWidth} - {columns}x{rows}"
func (c *TrickplayConfig) TilesheetDirName() string {
	return fmt.Sprintf("%d - %dx%d", c.FrameWidth, c.SheetColumns, c.SheetRows)
}

// TilesheetDir returns the final directory holding the sheets
func (c *TrickplayConfig) TilesheetDir() string {
	return filepath.Join(c.OutputDir, c.TilesheetDirName())
}

// BackgroundColor returns the parsed background color
func (c *TrickplayConfig) BackgroundColor() color.Color {
	bg, err := ParseBackground(c.Background)
	if err != nil {
		return color.White
	}
	return bg
}

// ParseBackground parses an opaque #RRGGBB color. An empty string is white.
func ParseBackground(s string) (color.NRGBA, error) {
	if s == "" {
		return color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("background %q is not #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("background %q is not #RRGGBB", s)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}
