// Package manifest describes a finished tilesheet set for players: a WebVTT
// thumbnail track using media fragment (#xywh) cues, and a JSON manifest.
package manifest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/compositor"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

const (
	VTTFileName  = "thumbnails.vtt"
	JSONFileName = "manifest.json"

	// Version is bumped when the JSON layout changes incompatibly
	Version = 1
)

// Manifest is the JSON description of a tilesheet set
type Manifest struct {
	Version         int          `json:"version"`
	Source          string       `json:"source"`
	DurationSeconds float64      `json:"duration_seconds"`
	FrameWidth      int          `json:"frame_width"`
	CellWidth       int          `json:"cell_width"`
	CellHeight      int          `json:"cell_height"`
	Columns         int          `json:"columns"`
	Rows            int          `json:"rows"`
	FrameCount      int          `json:"frame_count"`
	Format          string       `json:"format"`
	Timestamps      []float64    `json:"timestamps"`
	Sheets          []SheetEntry `json:"sheets"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// SheetEntry names one sheet file relative to the manifest
type SheetEntry struct {
	Index      int    `json:"index"`
	File       string `json:"file"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameCount int    `json:"frame_count"`
}

// Build assembles the manifest of a run
func Build(cfg *types.TrickplayConfig, asset types.VideoAsset, timestamps []float64, layout *types.Layout) Manifest {
	m := Manifest{
		Version:         Version,
		Source:          filepath.Base(asset.SourcePath),
		DurationSeconds: asset.DurationSeconds,
		FrameWidth:      cfg.FrameWidth,
		CellWidth:       layout.Grid.CellWidth,
		CellHeight:      layout.Grid.CellHeight,
		Columns:         layout.Grid.Columns,
		Rows:            layout.Grid.Rows,
		FrameCount:      layout.FrameCount,
		Format:          cfg.SheetFileFormat,
		Timestamps:      timestamps,
		Sheets:          make([]SheetEntry, 0, len(layout.Sheets)),
		GeneratedAt:     time.Now().UTC(),
	}
	for _, s := range layout.Sheets {
		m.Sheets = append(m.Sheets, SheetEntry{
			Index:      s.Index,
			File:       filepath.Base(compositor.SheetPath("", s.Index, cfg.SheetFileFormat)),
			Width:      s.Width,
			Height:     s.Height,
			FrameCount: len(s.Placements),
		})
	}
	return m
}

// BuildVTT renders a WebVTT track with one cue per frame. A cue lasts until
// the next frame's timestamp; the last one lasts until the end of the video.
func BuildVTT(layout *types.Layout, timestamps []float64, durationSeconds float64, sheetFormat string) (string, error) {
	if len(timestamps) != layout.FrameCount {
		return "", fmt.Errorf("have %d timestamps for %d frames", len(timestamps), layout.FrameCount)
	}

	var b strings.Builder
	b.WriteString("WEBVTT\n")

	for _, sheet := range layout.Sheets {
		file := filepath.Base(compositor.SheetPath("", sheet.Index, sheetFormat))
		for _, p := range sheet.Placements {
			start := timestamps[p.FrameIndex]
			end := durationSeconds
			if p.FrameIndex+1 < len(timestamps) {
				end = timestamps[p.FrameIndex+1]
			}
			if end <= start {
				end = start + 1
			}

			fmt.Fprintf(&b, "\n%s --> %s\n%s#xywh=%d,%d,%d,%d\n",
				vttTime(start), vttTime(end), file,
				p.X, p.Y, layout.Grid.CellWidth, layout.Grid.CellHeight)
		}
	}
	return b.String(), nil
}

// WriteVTT writes thumbnails.vtt into dir
func WriteVTT(dir string, layout *types.Layout, timestamps []float64, durationSeconds float64, sheetFormat string) (string, error) {
	vtt, err := BuildVTT(layout, timestamps, durationSeconds, sheetFormat)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, VTTFileName)
	if err := os.WriteFile(path, []byte(vtt), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WriteJSON writes manifest.json into dir
func WriteJSON(dir string, m Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	path := filepath.Join(dir, JSONFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// ReadJSON loads a manifest written by WriteJSON
func ReadJSON(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// vttTime formats seconds as HH:MM:SS.mmm
func vttTime(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
