package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/schollz/progressbar/v3"

	"github.com/mantonx/trickplay/internal/modules/trickplaymodule"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/pipeline"
	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

// generateFlags holds the raw values of the generate command flags
type generateFlags struct {
	configPath     string
	output         string
	interval       float64
	count          int
	timestamps     string
	width          int
	columns        int
	rows           int
	skipExtraction bool
	frameFormat    string
	sheetFormat    string
	quality        int
	background     string
	concurrency    int
	keepFrames     bool
	manifest       bool
	logLevel       string
	quiet          bool
}

func newGenerateFlagSet(f *generateFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: trickplay generate [flags] <video>")
		fs.PrintDefaults()
	}

	fs.StringVar(&f.configPath, "config", "", "configuration file (yaml or json)")
	fs.StringVar(&f.output, "output", "", "output directory (default {video}.trickplay next to the video)")
	fs.Float64Var(&f.interval, "interval", 0, "seconds between frames")
	fs.IntVar(&f.count, "count", 0, "number of frames spread evenly over the video")
	fs.StringVar(&f.timestamps, "timestamps", "", "comma separated frame timestamps in seconds")
	fs.IntVar(&f.width, "width", 0, "frame width in pixels")
	fs.IntVar(&f.columns, "columns", 0, "tilesheet columns")
	fs.IntVar(&f.rows, "rows", 0, "tilesheet rows")
	fs.BoolVar(&f.skipExtraction, "skip-extraction", false, "reuse frames already in the output frames directory")
	fs.StringVar(&f.frameFormat, "frame-format", "", "frame image format")
	fs.StringVar(&f.sheetFormat, "sheet-format", "", "tilesheet image format")
	fs.IntVar(&f.quality, "quality", 0, "jpeg/webp quality (1-100)")
	fs.StringVar(&f.background, "background", "", "tilesheet background as #RRGGBB")
	fs.IntVar(&f.concurrency, "concurrency", 0, "parallel decode and extraction workers")
	fs.BoolVar(&f.keepFrames, "keep-frames", true, "keep extracted frames after a successful run")
	fs.BoolVar(&f.manifest, "manifest", true, "write thumbnails.vtt and manifest.json")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	fs.BoolVar(&f.quiet, "quiet", false, "disable the progress bar")
	return fs
}

// options converts the flags that were set on the command line into per-run
// overrides. Unset flags fall back to the configured defaults.
func (f *generateFlags) options(fs *flag.FlagSet) (types.Options, error) {
	opts := types.Options{
		OutputDir:           f.output,
		SkipFrameExtraction: f.skipExtraction,
		FrameFileFormat:     f.frameFormat,
		SheetFileFormat:     f.sheetFormat,
		Background:          f.background,
	}

	var err error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "interval":
			opts.SecondsBetweenFrames = &f.interval
		case "count":
			opts.FrameCount = &f.count
		case "width":
			opts.FrameWidth = &f.width
		case "columns":
			opts.SheetColumns = &f.columns
		case "rows":
			opts.SheetRows = &f.rows
		case "quality":
			opts.Quality = &f.quality
		case "concurrency":
			opts.Concurrency = &f.concurrency
		case "keep-frames":
			opts.KeepFrames = &f.keepFrames
		case "manifest":
			opts.WriteManifest = &f.manifest
		case "timestamps":
			opts.ExplicitTimestamps, err = parseTimestamps(f.timestamps)
		}
	})
	return opts, err
}

// parseTimestamps parses "0,5,12.5" into seconds
func parseTimestamps(raw string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func runGenerate(args []string) error {
	var f generateFlags
	fs := newGenerateFlagSet(&f)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one video path")
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	log, closeLog, err := setupLogger(cfg.Logging, f.logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	source, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	opts, err := f.options(fs)
	if err != nil {
		return err
	}
	runCfg, err := types.BuildConfig(cfg.Trickplay, source, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := trickplaymodule.NewPipeline(cfg.FFmpeg, log)
	progress := newProgressReporter(f.quiet, log)
	result, err := p.Run(ctx, runCfg, progress.observer())
	progress.finish(err == nil)
	if err != nil {
		if tperrors.GetType(err) == tperrors.ErrorTypeCancelled {
			return fmt.Errorf("interrupted")
		}
		return err
	}

	if result.TilesheetDir == "" {
		fmt.Printf("%s: no frames scheduled, nothing written\n", source)
		return nil
	}
	fmt.Printf("%s: %d frames on %d sheets in %s (%s)\n",
		source, len(result.Timestamps), len(result.SheetPaths), result.TilesheetDir, result.Duration.Round(time.Millisecond))
	return nil
}

// progressReporter renders one progress bar per pipeline stage that reports
// frame progress
type progressReporter struct {
	quiet  bool
	logger hclog.Logger
	stage  types.Stage
	bar    *progressbar.ProgressBar
}

func newProgressReporter(quiet bool, logger hclog.Logger) *progressReporter {
	return &progressReporter{quiet: quiet, logger: logger}
}

func (r *progressReporter) observer() pipeline.Observer {
	return pipeline.Observer{
		OnStage: func(stage types.Stage) {
			r.logger.Debug("stage", "stage", stage)
		},
		OnProgress: r.onProgress,
	}
}

func (r *progressReporter) onProgress(stage types.Stage, done, total int) {
	if r.quiet || total <= 0 {
		return
	}
	if r.bar == nil || stage != r.stage {
		r.finish(true)
		r.stage = stage
		r.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(string(stage)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
	}
	if err := r.bar.Set(done); err != nil {
		r.logger.Debug("progress bar update failed", "error", err)
	}
}

// finish completes the current bar, or abandons it in place when the run failed
func (r *progressReporter) finish(ok bool) {
	if r.bar == nil {
		return
	}
	if ok && !r.bar.IsFinished() {
		_ = r.bar.Finish()
	} else if !ok {
		_ = r.bar.Exit()
	}
	r.bar = nil
}
