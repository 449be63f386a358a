// Package packer computes where each frame lands on which tilesheet.
//
// Frames fill each sheet row-major: left to right, then top to bottom. For
// frame i on a grid of C columns and R rows with W x H cells:
//
//	row            = i / C
//	column         = i % C
//	sheet          = row / R
//	rowWithinSheet = row - sheet*R
//	x, y           = column*W, rowWithinSheet*H
//
// Every sheet is W*C by H*R pixels; the last sheet may be partially filled.
package packer

import (
	"fmt"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

// Pack lays out frameCount frames on as many sheets as needed.
// Zero frames produce a layout with no sheets.
func Pack(frameCount int, grid types.Grid) (*types.Layout, error) {
	if err := validateGrid(grid); err != nil {
		return nil, err
	}
	if frameCount < 0 {
		return nil, tperrors.PackingError("pack", fmt.Errorf("frame count must not be negative, got %d", frameCount))
	}

	totalRows := ceilDiv(frameCount, grid.Columns)
	sheetCount := ceilDiv(totalRows, grid.Rows)

	layout := &types.Layout{
		Grid:       grid,
		FrameCount: frameCount,
		TotalRows:  totalRows,
		SheetCount: sheetCount,
		Sheets:     make([]types.Tilesheet, sheetCount),
	}

	perSheet := grid.CellsPerSheet()
	for s := range layout.Sheets {
		first := s * perSheet
		n := min(perSheet, frameCount-first)
		layout.Sheets[s] = types.Tilesheet{
			Index:      s,
			Width:      grid.SheetWidth(),
			Height:     grid.SheetHeight(),
			Placements: make([]types.Placement, 0, n),
		}
	}

	for i := 0; i < frameCount; i++ {
		p := Place(i, grid)
		layout.Sheets[p.SheetIndex].Placements = append(layout.Sheets[p.SheetIndex].Placements, p)
	}

	return layout, nil
}

// Place computes the placement of a single frame. The grid must be valid.
func Place(frameIndex int, grid types.Grid) types.Placement {
	row := frameIndex / grid.Columns
	column := frameIndex % grid.Columns
	sheet := row / grid.Rows
	rowWithinSheet := row - sheet*grid.Rows

	return types.Placement{
		FrameIndex: frameIndex,
		SheetIndex: sheet,
		Row:        rowWithinSheet,
		Column:     column,
		X:          column * grid.CellWidth,
		Y:          rowWithinSheet * grid.CellHeight,
	}
}

// CellSize is the cell geometry derived from measured frames
type CellSize struct {
	Width  int
	Height int

	// Uniform is false when frame heights differ; Height is then the tallest
	// frame and shorter frames sit at the top of their cell.
	Uniform bool
}

// ResolveCell derives the cell size from measured frames. The cell is
// frameWidth wide; frames narrower than that are left-aligned, frames wider
// than it are rejected.
func ResolveCell(frames []types.FrameRecord, frameWidth int) (CellSize, error) {
	const op = "resolve_cell"

	if frameWidth <= 0 {
		return CellSize{}, tperrors.PackingError(op, fmt.Errorf("%w: frame width %d", tperrors.ErrInvalidGrid, frameWidth))
	}

	cell := CellSize{Width: frameWidth, Uniform: true}
	for i, f := range frames {
		if f.Width <= 0 || f.Height <= 0 {
			return CellSize{}, tperrors.PackingError(op, fmt.Errorf("frame has no dimensions (%dx%d)", f.Width, f.Height)).
				WithIndex(f.Index).
				WithPath(f.Path)
		}
		if f.Width > frameWidth {
			return CellSize{}, tperrors.PackingError(op,
				fmt.Errorf("%w: %dpx > %dpx", tperrors.ErrFrameTooWide, f.Width, frameWidth)).
				WithIndex(f.Index).
				WithPath(f.Path)
		}
		if i > 0 && f.Height != cell.Height {
			cell.Uniform = false
		}
		cell.Height = max(cell.Height, f.Height)
	}

	return cell, nil
}

func validateGrid(grid types.Grid) error {
	if grid.Columns <= 0 || grid.Rows <= 0 || grid.CellWidth <= 0 || grid.CellHeight <= 0 {
		return tperrors.PackingError("pack", fmt.Errorf("%w: %dx%d cells of %dx%d",
			tperrors.ErrInvalidGrid, grid.Columns, grid.Rows, grid.CellWidth, grid.CellHeight))
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
