package images

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
)

var red = color.NRGBA{R: 0xff, A: 0xff}

func TestEncodeMeasureDecode(t *testing.T) {
	engine := NewEngine()
	dir := t.TempDir()

	for _, format := range []string{"png", "jpg", "webp", "bmp", "gif", "tiff"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(dir, "0."+format)
			require.NoError(t, engine.Encode(imaging.New(32, 18, red), path, format, 90))

			w, h, err := engine.Measure(path)
			require.NoError(t, err)
			assert.Equal(t, 32, w)
			assert.Equal(t, 18, h)

			img, err := engine.Decode(path)
			require.NoError(t, err)
			assert.Equal(t, image.Pt(32, 18), img.Bounds().Size())
		})
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

// exifRotated returns a JPEG of img carrying an EXIF "rotate 90 CW" tag
func exifRotated(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))

	payload := []byte("Exif\x00\x00" +
		"MM\x00\x2a\x00\x00\x00\x08" + // big-endian TIFF header, IFD at 8
		"\x00\x01" + // one entry
		"\x01\x12\x00\x03\x00\x00\x00\x01\x00\x06\x00\x00" + // Orientation = 6
		"\x00\x00\x00\x00")
	size := len(payload) + 2
	app1 := append([]byte{0xff, 0xe1, byte(size >> 8), byte(size)}, payload...)

	data := buf.Bytes()
	out := append([]byte{}, data[:2]...)
	out = append(out, app1...)
	return append(out, data[2:]...)
}

func TestMeasureMatchesDecodeWithOrientationTag(t *testing.T) {
	engine := NewEngine()
	path := filepath.Join(t.TempDir(), "0.jpg")
	require.NoError(t, os.WriteFile(path, exifRotated(t, imaging.New(32, 18, red)), 0644))

	w, h, err := engine.Measure(path)
	require.NoError(t, err)

	img, err := engine.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(w, h), img.Bounds().Size())
	assert.Equal(t, image.Pt(32, 18), img.Bounds().Size())
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	engine := NewEngine()
	path := filepath.Join(t.TempDir(), "0.exr")

	err := engine.Encode(imaging.New(1, 1, red), path, "exr", 90)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tperrors.ErrUnsupportedFormat))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEncodeMissingDirectory(t *testing.T) {
	engine := NewEngine()
	err := engine.Encode(imaging.New(1, 1, red), filepath.Join(t.TempDir(), "nope", "0.png"), "png", 90)
	assert.Error(t, err)
}

func TestMeasureAndDecodeFailures(t *testing.T) {
	engine := NewEngine()
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "1.jpg")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0644))

	_, _, err := engine.Measure(corrupt)
	assert.Error(t, err)
	_, err = engine.Decode(corrupt)
	assert.Error(t, err)

	_, _, err = engine.Measure(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestCanvasAndBlit(t *testing.T) {
	engine := NewEngine()
	white := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	canvas := engine.NewCanvas(20, 10, white)
	assert.Equal(t, image.Rect(0, 0, 20, 10), canvas.Bounds())
	assert.Equal(t, white, color.NRGBAModel.Convert(canvas.At(19, 9)))

	require.NoError(t, engine.Blit(canvas, imaging.New(10, 5, red), 10, 5))
	assert.Equal(t, red, color.NRGBAModel.Convert(canvas.At(10, 5)))
	assert.Equal(t, red, color.NRGBAModel.Convert(canvas.At(19, 9)))
	assert.Equal(t, white, color.NRGBAModel.Convert(canvas.At(9, 4)))
	assert.Equal(t, white, color.NRGBAModel.Convert(canvas.At(0, 9)))
}

func TestBlitRejectsOverflow(t *testing.T) {
	engine := NewEngine()
	canvas := engine.NewCanvas(20, 10, color.White)

	assert.Error(t, engine.Blit(canvas, imaging.New(10, 5, red), 11, 0))
	assert.Error(t, engine.Blit(canvas, imaging.New(10, 5, red), 0, 6))
	assert.Error(t, engine.Blit(canvas, imaging.New(10, 5, red), -1, 0))
}

func TestBlitSubImageOrigin(t *testing.T) {
	engine := NewEngine()
	canvas := engine.NewCanvas(4, 4, color.White)

	src := imaging.New(8, 8, color.Black)
	sub := src.SubImage(image.Rect(4, 4, 8, 8))
	require.NoError(t, engine.Blit(canvas, sub, 0, 0))

	assert.Equal(t, color.NRGBA{A: 0xff}, color.NRGBAModel.Convert(canvas.At(3, 3)))
}
