// Package images implements the image engine used to measure frames and
// build tilesheets. Raster formats go through disintegration/imaging; webp
// is handled by chai2010/webp.
package images

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

// Engine is a stateless, concurrency-safe image engine
type Engine struct{}

// NewEngine creates a new image engine
func NewEngine() *Engine {
	return &Engine{}
}

var _ types.ImageEngine = (*Engine)(nil)

// Decode reads an image file as stored. EXIF orientation is ignored so that
// decoded bounds always match Measure.
func (e *Engine) Decode(path string) (image.Image, error) {
	if isWebP(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		img, err := webp.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp %s: %w", path, err)
		}
		return img, nil
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Measure reads only the image header
func (e *Engine) Measure(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var cfg image.Config
	if isWebP(path) {
		cfg, err = webp.DecodeConfig(f)
	} else {
		cfg, _, err = image.DecodeConfig(f)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read dimensions of %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// NewCanvas returns an NRGBA canvas filled with background
func (e *Engine) NewCanvas(width, height int, background color.Color) draw.Image {
	return imaging.New(width, height, background)
}

// Blit draws img onto canvas in place. The image must fit entirely inside
// the canvas.
func (e *Engine) Blit(canvas draw.Image, img image.Image, x, y int) error {
	src := img.Bounds()
	dst := image.Rect(x, y, x+src.Dx(), y+src.Dy())
	if !dst.In(canvas.Bounds()) {
		return fmt.Errorf("image %v at (%d,%d) exceeds canvas %v", src.Size(), x, y, canvas.Bounds())
	}

	draw.Draw(canvas, dst, img, src.Min, draw.Src)
	return nil
}

// Encode writes img to path in the given format. The file is written under
// a temporary name and renamed into place so readers never see a partial image.
func (e *Engine) Encode(img image.Image, path, format string, quality int) error {
	format = types.NormalizeFormat(format)

	var imgFormat imaging.Format
	if format != "webp" {
		f, err := imaging.FormatFromExtension(format)
		if err != nil {
			return fmt.Errorf("%w: %s", tperrors.ErrUnsupportedFormat, format)
		}
		imgFormat = f
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if format == "webp" {
		err = webp.Encode(tmp, img, &webp.Options{Quality: float32(quality)})
	} else {
		err = imaging.Encode(tmp, img, imgFormat, imaging.JPEGQuality(quality))
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

func isWebP(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".webp")
}
