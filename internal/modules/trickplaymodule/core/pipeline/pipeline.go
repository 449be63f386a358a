// Package pipeline runs one trickplay generation from source video to
// persisted tilesheets.
//
// Stages run strictly in order:
//
//	pending → probing → scheduling → (extracting) → loading → packing → compositing → persisted
//
// Any error moves the run to failed, or cancelled when the context ended.
// Nothing is retried and a failed run is never resumed. Tilesheets are
// composited into a staging directory and promoted as a whole, so a failed
// run leaves any previous tilesheet set untouched.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/compositor"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/frameset"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/manifest"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/packer"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/schedule"
	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
	"github.com/mantonx/trickplay/internal/utils"
)

const (
	stagingPrefix  = ".staging-"
	previousPrefix = ".previous-"
)

// Deps are the collaborators a pipeline runs against
type Deps struct {
	Prober    types.MediaProber
	Extractor types.FrameExtractor
	Engine    types.ImageEngine
	Logger    hclog.Logger
}

// Observer receives stage transitions and progress. Either field may be nil.
// Callbacks are invoked from the goroutine running the pipeline or, for
// progress, from a single worker goroutine at a time.
type Observer struct {
	OnStage    func(stage types.Stage)
	OnProgress func(stage types.Stage, done, total int)
}

// Pipeline generates trickplay assets
type Pipeline struct {
	prober    types.MediaProber
	extractor types.FrameExtractor
	engine    types.ImageEngine
	logger    hclog.Logger
}

// New creates a pipeline from its collaborators
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Pipeline{
		prober:    deps.Prober,
		extractor: deps.Extractor,
		engine:    deps.Engine,
		logger:    logger.Named("pipeline"),
	}
}

// run carries the state of a single Run call
type run struct {
	*Pipeline
	id     string
	cfg    *types.TrickplayConfig
	obs    Observer
	logger hclog.Logger
	stage  types.Stage
}

// Run executes every stage for cfg. On success the tilesheets are in
// cfg.TilesheetDir(); with zero scheduled frames no sheets are written and
// no error is returned.
func (p *Pipeline) Run(ctx context.Context, cfg *types.TrickplayConfig, obs Observer) (*types.Result, error) {
	id := utils.GenerateShortUUID()
	r := &run{
		Pipeline: p,
		id:       id,
		cfg:      cfg,
		obs:      obs,
		logger:   p.logger.With("run", id, "source", cfg.SourcePath),
		stage:    types.StagePending,
	}

	result, err := r.execute(ctx)
	if err != nil {
		final := types.StageFailed
		if tperrors.GetType(err) == tperrors.ErrorTypeCancelled {
			final = types.StageCancelled
		}
		r.logger.Error("trickplay generation failed", "stage", r.stage, "error", err)
		r.transition(final)
		return nil, err
	}

	r.transition(types.StagePersisted)
	return result, nil
}

func (r *run) transition(stage types.Stage) {
	r.logger.Debug("stage transition", "from", r.stage, "to", stage)
	r.stage = stage
	if r.obs.OnStage != nil {
		r.obs.OnStage(stage)
	}
}

func (r *run) progress(done, total int) {
	if r.obs.OnProgress != nil {
		r.obs.OnProgress(r.stage, done, total)
	}
}

// enter moves to the next stage unless the context has ended
func (r *run) enter(ctx context.Context, stage types.Stage) error {
	if err := ctx.Err(); err != nil {
		return tperrors.Cancelled(string(stage), err)
	}
	r.transition(stage)
	return nil
}

func (r *run) execute(ctx context.Context) (*types.Result, error) {
	start := time.Now()
	cfg := r.cfg

	if err := r.enter(ctx, types.StageProbing); err != nil {
		return nil, err
	}
	asset, err := r.probe(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.enter(ctx, types.StageScheduling); err != nil {
		return nil, err
	}
	timestamps, err := schedule.Schedule(asset.DurationSeconds, schedule.Plan{
		SecondsBetweenFrames: cfg.SecondsBetweenFrames,
		FrameCount:           cfg.FrameCount,
		ExplicitTimestamps:   cfg.ExplicitTimestamps,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("frames scheduled", "count", len(timestamps), "duration", asset.DurationSeconds)

	if !cfg.SkipFrameExtraction {
		if err := r.enter(ctx, types.StageExtracting); err != nil {
			return nil, err
		}
		if err := r.extract(ctx, asset, timestamps); err != nil {
			return nil, err
		}
	}

	if err := r.enter(ctx, types.StageLoading); err != nil {
		return nil, err
	}
	frames, err := r.load(ctx, timestamps)
	if err != nil {
		return nil, err
	}

	if err := r.enter(ctx, types.StagePacking); err != nil {
		return nil, err
	}
	result := &types.Result{
		Asset:      *asset,
		Timestamps: timestamps,
		OutputDir:  cfg.OutputDir,
		SheetPaths: []string{},
	}

	if len(frames) == 0 {
		result.Layout = &types.Layout{
			Grid:   types.Grid{Columns: cfg.SheetColumns, Rows: cfg.SheetRows, CellWidth: cfg.FrameWidth},
			Sheets: []types.Tilesheet{},
		}
		// An existing tilesheet set is left as it is
		r.discardFrames()
		result.Duration = time.Since(start)
		r.logger.Info("no frames scheduled, nothing to composite", "duration", asset.DurationSeconds)
		return result, nil
	}

	layout, err := r.pack(frames)
	if err != nil {
		return nil, err
	}
	result.Layout = layout

	if err := r.enter(ctx, types.StageCompositing); err != nil {
		return nil, err
	}
	paths, manifests, err := r.composite(ctx, asset, timestamps, layout, frames)
	if err != nil {
		return nil, err
	}
	result.TilesheetDir = cfg.TilesheetDir()
	result.SheetPaths = paths
	result.Manifests = manifests

	r.discardFrames()

	result.Duration = time.Since(start)
	r.logger.Info("trickplay generated",
		"frames", layout.FrameCount,
		"sheets", layout.SheetCount,
		"dir", result.TilesheetDir,
		"elapsed", result.Duration)
	return result, nil
}

// discardFrames removes frames/ after a successful run unless KeepFrames is set
func (r *run) discardFrames() {
	if r.cfg.KeepFrames {
		return
	}
	if err := os.RemoveAll(r.cfg.FramesDir()); err != nil {
		r.logger.Warn("failed to remove frames", "dir", r.cfg.FramesDir(), "error", err)
	}
}

func (r *run) probe(ctx context.Context) (*types.VideoAsset, error) {
	const op = "probe"

	info, err := os.Stat(r.cfg.SourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tperrors.InputNotFound(op, tperrors.ErrInputNotFound).WithPath(r.cfg.SourcePath)
		}
		return nil, tperrors.InputNotFound(op, err).WithPath(r.cfg.SourcePath)
	}
	if info.IsDir() {
		return nil, tperrors.InputNotFound(op, fmt.Errorf("%w: path is a directory", tperrors.ErrInputNotFound)).
			WithPath(r.cfg.SourcePath)
	}

	asset, err := r.prober.Probe(ctx, r.cfg.SourcePath)
	if err != nil {
		return nil, tperrors.Wrap(err, tperrors.ErrorTypeProbeFailure, op)
	}
	if asset == nil {
		return nil, tperrors.ProbeFailure(op, tperrors.ErrNoDuration).WithPath(r.cfg.SourcePath)
	}
	return asset, nil
}

// extract recreates the frames directory and fills it with one frame per timestamp
func (r *run) extract(ctx context.Context, asset *types.VideoAsset, timestamps []float64) error {
	const op = "extract"
	dir := r.cfg.FramesDir()

	if err := os.RemoveAll(dir); err != nil {
		return tperrors.ExtractionFailure(op, fmt.Errorf("failed to clear frames directory: %w", err)).WithPath(dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return tperrors.ExtractionFailure(op, fmt.Errorf("failed to create frames directory: %w", err)).WithPath(dir)
	}

	var produced atomic.Int64
	total := len(timestamps)
	err := r.extractor.Extract(ctx, types.ExtractRequest{
		SourcePath:  asset.SourcePath,
		Timestamps:  timestamps,
		OutputDir:   dir,
		FrameWidth:  r.cfg.FrameWidth,
		Format:      r.cfg.FrameFileFormat,
		Quality:     r.cfg.Quality,
		Concurrency: r.cfg.Concurrency,
	}, func(name string) {
		n := produced.Add(1)
		r.logger.Trace("frame extracted", "file", name)
		r.progress(int(n), total)
	})
	if err != nil {
		return tperrors.Wrap(err, tperrors.ErrorTypeExtractionFailure, op)
	}

	r.logger.Debug("extraction finished", "produced", produced.Load(), "scheduled", total)
	return nil
}

// load discovers and measures the frame set
func (r *run) load(ctx context.Context, timestamps []float64) ([]types.FrameRecord, error) {
	frames, err := frameset.Load(r.cfg.FramesDir(), r.cfg.FrameFileFormat)
	if err != nil {
		return nil, err
	}

	if !r.cfg.SkipFrameExtraction && len(frames) != len(timestamps) {
		return nil, tperrors.ExtractionFailure("load_frames",
			fmt.Errorf("%w: scheduled %d, found %d", tperrors.ErrFrameCountMismatch, len(timestamps), len(frames))).
			WithPath(r.cfg.FramesDir())
	}
	if r.cfg.SkipFrameExtraction && len(frames) != len(timestamps) {
		r.logger.Warn("reused frame set does not match the schedule",
			"frames", len(frames), "scheduled", len(timestamps))
	}

	if err := frameset.VerifyContiguous(frames); err != nil {
		return nil, err
	}
	if err := r.measure(ctx, frames); err != nil {
		return nil, err
	}
	return frames, nil
}

// measure fills in Width and Height of every frame. Each goroutine writes
// only its own element.
func (r *run) measure(ctx context.Context, frames []types.FrameRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i := range frames {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			w, h, err := r.engine.Measure(frames[i].Path)
			if err != nil {
				return tperrors.CompositeFailure("measure_frame", err).
					WithIndex(frames[i].Index).
					WithPath(frames[i].Path)
			}
			frames[i].Width = w
			frames[i].Height = h
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return tperrors.Wrap(err, tperrors.ErrorTypeCompositeFailure, "measure_frame")
	}
	if err := ctx.Err(); err != nil {
		return tperrors.Cancelled("measure_frame", err)
	}
	return nil
}

func (r *run) pack(frames []types.FrameRecord) (*types.Layout, error) {
	cell, err := packer.ResolveCell(frames, r.cfg.FrameWidth)
	if err != nil {
		return nil, err
	}
	if !cell.Uniform {
		r.logger.Warn("frame heights differ, using the tallest as cell height", "cell_height", cell.Height)
	}

	return packer.Pack(len(frames), types.Grid{
		Columns:    r.cfg.SheetColumns,
		Rows:       r.cfg.SheetRows,
		CellWidth:  cell.Width,
		CellHeight: cell.Height,
	})
}

// composite renders into a staging directory and promotes it on success.
// The staging directory never survives a failed run.
func (r *run) composite(ctx context.Context, asset *types.VideoAsset, timestamps []float64, layout *types.Layout, frames []types.FrameRecord) ([]string, []string, error) {
	const op = "composite"
	cfg := r.cfg

	staging := filepath.Join(cfg.OutputDir, stagingPrefix+r.id)
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, nil, tperrors.WriteFailure(op, fmt.Errorf("failed to create staging directory: %w", err)).WithPath(staging)
	}
	promoted := false
	defer func() {
		if !promoted {
			if err := os.RemoveAll(staging); err != nil {
				r.logger.Warn("failed to remove staging directory", "dir", staging, "error", err)
			}
		}
	}()

	comp := compositor.New(r.engine, r.logger, compositor.Options{
		Concurrency: cfg.Concurrency,
		Background:  cfg.BackgroundColor(),
		Format:      cfg.SheetFileFormat,
		Quality:     cfg.Quality,
		Progress:    r.progress,
	})
	if _, err := comp.Composite(ctx, layout, frames, staging); err != nil {
		return nil, nil, err
	}

	var manifests []string
	if cfg.WriteManifest {
		names, err := r.writeManifests(staging, asset, timestamps, layout)
		if err != nil {
			return nil, nil, err
		}
		manifests = names
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, tperrors.Cancelled(op, err)
	}

	final := cfg.TilesheetDir()
	if err := promote(staging, final, filepath.Join(cfg.OutputDir, previousPrefix+r.id)); err != nil {
		return nil, nil, tperrors.WriteFailure("promote_tilesheets", err).WithPath(final)
	}
	promoted = true

	paths := make([]string, len(layout.Sheets))
	for i, sheet := range layout.Sheets {
		paths[i] = compositor.SheetPath(final, sheet.Index, cfg.SheetFileFormat)
	}
	for i, name := range manifests {
		manifests[i] = filepath.Join(final, name)
	}
	return paths, manifests, nil
}

// writeManifests writes the thumbnail track and JSON manifest next to the
// staged sheets and returns their file names.
func (r *run) writeManifests(dir string, asset *types.VideoAsset, timestamps []float64, layout *types.Layout) ([]string, error) {
	var names []string

	if len(timestamps) == layout.FrameCount {
		path, err := manifest.WriteVTT(dir, layout, timestamps, asset.DurationSeconds, r.cfg.SheetFileFormat)
		if err != nil {
			return nil, tperrors.WriteFailure("write_manifest", err).WithPath(dir)
		}
		names = append(names, filepath.Base(path))
	} else {
		r.logger.Warn("skipping thumbnail track, frame times are unknown for reused frames")
	}

	path, err := manifest.WriteJSON(dir, manifest.Build(r.cfg, *asset, timestamps, layout))
	if err != nil {
		return nil, tperrors.WriteFailure("write_manifest", err).WithPath(dir)
	}
	return append(names, filepath.Base(path)), nil
}

// promote replaces final with staging. A previous set is moved aside first
// and restored if the swap fails.
func promote(staging, final, aside string) error {
	hadPrevious := false
	if _, err := os.Stat(final); err == nil {
		if err := os.Rename(final, aside); err != nil {
			return fmt.Errorf("failed to move previous tilesheets aside: %w", err)
		}
		hadPrevious = true
	}

	if err := os.Rename(staging, final); err != nil {
		if hadPrevious {
			_ = os.Rename(aside, final)
		}
		return fmt.Errorf("failed to promote tilesheets: %w", err)
	}

	if hadPrevious {
		_ = os.RemoveAll(aside)
	}
	return nil
}
