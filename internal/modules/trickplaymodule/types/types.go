// Package types provides types and interfaces for the trickplay module.
package types

import "time"

// VideoAsset is the source video as reported by the metadata probe
type VideoAsset struct {
	SourcePath      string  `json:"source_path"`
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	Codec           string  `json:"codec,omitempty"`
}

// FrameRecord is one extracted frame on disk. Width and Height are zero
// until the frame has been measured.
type FrameRecord struct {
	Index  int    `json:"index"`
	Path   string `json:"path"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Grid is the single source of truth for sheet geometry
type Grid struct {
	Columns    int `json:"columns"`
	Rows       int `json:"rows"`
	CellWidth  int `json:"cell_width"`
	CellHeight int `json:"cell_height"`
}

// CellsPerSheet returns Columns*Rows
func (g Grid) CellsPerSheet() int {
	return g.Columns * g.Rows
}

// SheetWidth returns the pixel width of every sheet
func (g Grid) SheetWidth() int {
	return g.CellWidth * g.Columns
}

// SheetHeight returns the pixel height of every sheet
func (g Grid) SheetHeight() int {
	return g.CellHeight * g.Rows
}

// Placement locates one frame on one sheet
type Placement struct {
	FrameIndex int `json:"frame_index"`
	SheetIndex int `json:"sheet_index"`
	Row        int `json:"row"`
	Column     int `json:"column"`
	X          int `json:"x"`
	Y          int `json:"y"`
}

// Tilesheet is one output image and the frames placed on it
type Tilesheet struct {
	Index      int         `json:"index"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Placements []Placement `json:"placements"`
}

// Layout is the full packing of a frame set
type Layout struct {
	Grid       Grid        `json:"grid"`
	FrameCount int         `json:"frame_count"`
	TotalRows  int         `json:"total_rows"`
	SheetCount int         `json:"sheet_count"`
	Sheets     []Tilesheet `json:"sheets"`
}

// ExtractRequest describes one extraction run
type ExtractRequest struct {
	SourcePath  string
	Timestamps  []float64
	OutputDir   string
	FrameWidth  int
	Format      string
	Quality     int
	Concurrency int
}

// Result describes a completed run
type Result struct {
	Asset        VideoAsset    `json:"asset"`
	Timestamps   []float64     `json:"timestamps"`
	Layout       *Layout       `json:"layout"`
	OutputDir    string        `json:"output_dir"`
	TilesheetDir string        `json:"tilesheet_dir,omitempty"`
	SheetPaths   []string      `json:"sheet_paths"`
	Manifests    []string      `json:"manifests,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Stage is a pipeline state
type Stage string

const (
	StagePending     Stage = "pending"
	StageProbing     Stage = "probing"
	StageScheduling  Stage = "scheduling"
	StageExtracting  Stage = "extracting"
	StageLoading     Stage = "loading"
	StagePacking     Stage = "packing"
	StageCompositing Stage = "compositing"
	StagePersisted   Stage = "persisted"
	StageFailed      Stage = "failed"
	StageCancelled   Stage = "cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s Stage) IsTerminal() bool {
	return s == StagePersisted || s == StageFailed || s == StageCancelled
}

// Job triggers
const (
	TriggerAPI     = "api"
	TriggerCLI     = "cli"
	TriggerWatcher = "watcher"
)

// JobRequest asks the manager to generate trickplay assets for a video
type JobRequest struct {
	SourcePath string  `json:"source_path" binding:"required"`
	Options    Options `json:"options"`
	Trigger    string  `json:"-"`
}
