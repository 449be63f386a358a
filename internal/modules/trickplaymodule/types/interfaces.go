// Package types provides types and interfaces for the trickplay module.
package types

import (
	"context"
	"image"
	"image/color"
	"image/draw"
)

// MediaProber reads video metadata
type MediaProber interface {
	// Probe returns the asset with its duration; an unreadable or
	// duration-less file is an error.
	Probe(ctx context.Context, path string) (*VideoAsset, error)
}

// FrameExtractor grabs one frame per timestamp into req.OutputDir as
// {index}.{format}. produced is called with each written file name, in any order.
type FrameExtractor interface {
	Extract(ctx context.Context, req ExtractRequest, produced func(name string)) error
}

// ImageEngine decodes, composes and encodes images
type ImageEngine interface {
	Decode(path string) (image.Image, error)

	// Measure returns the pixel dimensions without decoding the full image
	Measure(path string) (width, height int, err error)

	NewCanvas(width, height int, background color.Color) draw.Image

	// Blit copies img onto canvas with its top-left corner at (x, y)
	Blit(canvas draw.Image, img image.Image, x, y int) error

	Encode(img image.Image, path, format string, quality int) error
}
