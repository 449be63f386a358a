// Package compositor renders packed layouts into tilesheet images.
//
// Sheets are rendered one after another. Within a sheet, frames are decoded
// concurrently (bounded by Concurrency) and handed to a single writer
// goroutine that owns the canvas, so the canvas is never mutated from two
// goroutines. A finished canvas is persisted in the background while the
// next sheet renders; Composite returns only after every persist completed.
package compositor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

// maxPendingSheets bounds finished canvases waiting to be encoded. Rendering
// blocks once this many are in flight.
const maxPendingSheets = 2

// Options configures a Compositor
type Options struct {
	// Concurrency bounds concurrent frame decodes per sheet
	Concurrency int

	Background color.Color
	Format     string
	Quality    int

	// Progress, if set, is called after each frame is drawn. Calls are
	// serialized.
	Progress func(done, total int)
}

// Compositor draws frames onto tilesheets and writes them to disk
type Compositor struct {
	engine types.ImageEngine
	logger hclog.Logger
	opts   Options
}

// New creates a compositor backed by engine
func New(engine types.ImageEngine, logger hclog.Logger, opts Options) *Compositor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Background == nil {
		opts.Background = color.White
	}
	opts.Format = types.NormalizeFormat(opts.Format)

	return &Compositor{
		engine: engine,
		logger: logger.Named("compositor"),
		opts:   opts,
	}
}

type decodedFrame struct {
	placement types.Placement
	img       image.Image
}

// SheetPath returns {dir}/{sheetIndex}.{format}
func SheetPath(dir string, sheetIndex int, format string) string {
	return filepath.Join(dir, fmt.Sprintf("%d.%s", sheetIndex, types.NormalizeFormat(format)))
}

// Composite renders every sheet of layout into dir. frames must be ordered
// so that frames[i].Index == i. The returned paths are in sheet order.
func (c *Compositor) Composite(ctx context.Context, layout *types.Layout, frames []types.FrameRecord, dir string) ([]string, error) {
	if len(frames) != layout.FrameCount {
		return nil, tperrors.PackingError("composite",
			fmt.Errorf("%w: layout has %d frames, frame set has %d", tperrors.ErrFrameCountMismatch, layout.FrameCount, len(frames)))
	}

	paths := make([]string, len(layout.Sheets))
	var done atomic.Int64

	persist, pctx := errgroup.WithContext(ctx)
	persist.SetLimit(maxPendingSheets)

	var renderErr error
	for _, sheet := range layout.Sheets {
		canvas, err := c.renderSheet(pctx, layout, sheet, frames, &done)
		if err != nil {
			renderErr = err
			break
		}

		sheet := sheet
		path := SheetPath(dir, sheet.Index, c.opts.Format)
		paths[sheet.Index] = path

		persist.Go(func() error {
			if err := c.engine.Encode(canvas, path, c.opts.Format, c.opts.Quality); err != nil {
				return tperrors.WriteFailure("persist_sheet", err).WithIndex(sheet.Index).WithPath(path)
			}
			c.logger.Debug("tilesheet written", "sheet", sheet.Index, "path", path, "frames", len(sheet.Placements))
			return nil
		})
	}

	// A persist failure cancels pctx, so it is the root cause of any
	// render error observed after it.
	if err := persist.Wait(); err != nil {
		return nil, err
	}
	if renderErr != nil {
		if ctx.Err() != nil {
			return nil, tperrors.Cancelled("composite", ctx.Err())
		}
		return nil, renderErr
	}
	if err := ctx.Err(); err != nil {
		return nil, tperrors.Cancelled("composite", err)
	}

	return paths, nil
}

func (c *Compositor) renderSheet(ctx context.Context, layout *types.Layout, sheet types.Tilesheet, frames []types.FrameRecord, done *atomic.Int64) (draw.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, tperrors.Cancelled("composite", err)
	}

	canvas := c.engine.NewCanvas(sheet.Width, sheet.Height, c.opts.Background)
	cell := image.Pt(layout.Grid.CellWidth, layout.Grid.CellHeight)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	decoded := make(chan decodedFrame)
	writerErr := make(chan error, 1)

	go func() {
		var firstErr error
		for df := range decoded {
			if firstErr != nil {
				continue
			}
			if err := c.draw(canvas, df, cell); err != nil {
				firstErr = err
				cancel()
				continue
			}
			n := int(done.Add(1))
			if c.opts.Progress != nil {
				c.opts.Progress(n, layout.FrameCount)
			}
		}
		writerErr <- firstErr
	}()

	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(c.opts.Concurrency)

	for _, p := range sheet.Placements {
		if gctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			if p.FrameIndex < 0 || p.FrameIndex >= len(frames) {
				return tperrors.CompositeFailure("decode_frame", fmt.Errorf("no frame for placement")).WithIndex(p.FrameIndex)
			}
			frame := frames[p.FrameIndex]

			img, err := c.engine.Decode(frame.Path)
			if err != nil {
				return tperrors.CompositeFailure("decode_frame", err).WithIndex(frame.Index).WithPath(frame.Path)
			}

			select {
			case decoded <- decodedFrame{placement: p, img: img}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	decodeErr := g.Wait()
	close(decoded)
	drawErr := <-writerErr

	switch {
	case ctx.Err() != nil:
		return nil, tperrors.Cancelled("composite", ctx.Err())
	case drawErr != nil:
		return nil, drawErr
	case decodeErr != nil:
		return nil, tperrors.Wrap(decodeErr, tperrors.ErrorTypeCompositeFailure, "composite")
	}

	c.logger.Debug("tilesheet rendered", "sheet", sheet.Index, "frames", len(sheet.Placements))
	return canvas, nil
}

// draw runs only on the writer goroutine
func (c *Compositor) draw(canvas draw.Image, df decodedFrame, cell image.Point) error {
	size := df.img.Bounds().Size()
	if size.X > cell.X || size.Y > cell.Y {
		return tperrors.CompositeFailure("draw_frame",
			fmt.Errorf("%w: %v does not fit cell %v", tperrors.ErrFrameTooWide, size, cell)).
			WithIndex(df.placement.FrameIndex)
	}

	if err := c.engine.Blit(canvas, df.img, df.placement.X, df.placement.Y); err != nil {
		return tperrors.CompositeFailure("draw_frame", err).WithIndex(df.placement.FrameIndex)
	}
	return nil
}
