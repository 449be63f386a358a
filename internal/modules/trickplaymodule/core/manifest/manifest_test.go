package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/packer"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

func TestVTTTime(t *testing.T) {
	assert.Equal(t, "00:00:00.000", vttTime(0))
	assert.Equal(t, "00:00:10.500", vttTime(10.5))
	assert.Equal(t, "00:02:05.000", vttTime(125))
	assert.Equal(t, "01:01:01.001", vttTime(3661.001))
}

func TestBuildVTT(t *testing.T) {
	grid := types.Grid{Columns: 2, Rows: 1, CellWidth: 320, CellHeight: 180}
	layout, err := packer.Pack(3, grid)
	require.NoError(t, err)

	vtt, err := BuildVTT(layout, []float64{0, 10, 20}, 25, "jpg")
	require.NoError(t, err)

	expected := strings.Join([]string{
		"WEBVTT",
		"",
		"00:00:00.000 --> 00:00:10.000",
		"0.jpg#xywh=0,0,320,180",
		"",
		"00:00:10.000 --> 00:00:20.000",
		"0.jpg#xywh=320,0,320,180",
		"",
		"00:00:20.000 --> 00:00:25.000",
		"1.jpg#xywh=0,0,320,180",
		"",
	}, "\n")
	assert.Equal(t, expected, vtt)
}

func TestBuildVTTLastFrameAtEnd(t *testing.T) {
	layout, err := packer.Pack(1, types.Grid{Columns: 1, Rows: 1, CellWidth: 10, CellHeight: 10})
	require.NoError(t, err)

	vtt, err := BuildVTT(layout, []float64{30}, 30, "png")
	require.NoError(t, err)
	assert.Contains(t, vtt, "00:00:30.000 --> 00:00:31.000")
}

func TestBuildVTTMismatch(t *testing.T) {
	layout, err := packer.Pack(2, types.Grid{Columns: 1, Rows: 1, CellWidth: 10, CellHeight: 10})
	require.NoError(t, err)

	_, err = BuildVTT(layout, []float64{0}, 10, "jpg")
	assert.Error(t, err)
}

func TestWriteAndReadJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := &types.TrickplayConfig{FrameWidth: 320, SheetFileFormat: "webp"}
	layout, err := packer.Pack(12, types.Grid{Columns: 10, Rows: 10, CellWidth: 320, CellHeight: 180})
	require.NoError(t, err)

	asset := types.VideoAsset{SourcePath: "/media/movies/clip.mp4", DurationSeconds: 125}
	ts := []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110}

	path, err := WriteJSON(dir, Build(cfg, asset, ts, layout))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, JSONFileName), path)

	m, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, Version, m.Version)
	assert.Equal(t, "clip.mp4", m.Source)
	assert.Equal(t, 12, m.FrameCount)
	assert.Equal(t, ts, m.Timestamps)
	require.Len(t, m.Sheets, 1)
	assert.Equal(t, SheetEntry{Index: 0, File: "0.webp", Width: 3200, Height: 1800, FrameCount: 12}, m.Sheets[0])
}

func TestWriteVTT(t *testing.T) {
	dir := t.TempDir()
	layout, err := packer.Pack(1, types.Grid{Columns: 1, Rows: 1, CellWidth: 10, CellHeight: 10})
	require.NoError(t, err)

	path, err := WriteVTT(dir, layout, []float64{0}, 5, "jpg")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "WEBVTT\n"))
}
