package types

import "time"

// Coordinate is a WGS84 longitude/latitude pair.
type Coordinate struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Longitude >= -180 && c.Longitude <= 180 &&
		c.Latitude >= -90 && c.Latitude <= 90
}

// AcquisitionRequest describes a single panorama fetch, derived from a
// coordinate plus session-wide imagery parameters.
type AcquisitionRequest struct {
	Coordinate Coordinate
	Width      int
	Height     int
	FOV        int
	Pitch      int
}

// Status is the lifecycle state of a per-coordinate result.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusAnalyzing   Status = "analyzing"
	StatusAnalyzed    Status = "analyzed"
	StatusExported    Status = "exported"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status is a terminal lifecycle state.
func (s Status) Terminal() bool {
	return s == StatusExported || s == StatusFailed
}

// Stage identifies the pipeline stage a progress event refers to.
type Stage string

const (
	StageDownload Stage = "download"
	StageAnalyze  Stage = "analyze"
	StageExport   Stage = "export"
)

// ClassShare records the pixel footprint of one semantic class in an image.
type ClassShare struct {
	Pixels     int     `json:"pixels"`
	Percentage float64 `json:"percentage"`
}

// AnalysisResult is the per-coordinate record accumulated across the
// pipeline. One instance exists per accepted coordinate; it is mutated in
// place by the session as stages complete and committed to the report only
// once terminal.
type AnalysisResult struct {
	Index             int                   `json:"index"`
	Coordinate        Coordinate            `json:"coordinate"`
	OriginalImagePath string                `json:"original_image_path"`
	AnalysisImagePath string                `json:"analysis_image_path"`
	GreenViewIndex    float64               `json:"green_view_index"`
	VegetationPixels  int                   `json:"vegetation_pixels"`
	TotalPixels       int                   `json:"total_pixels"`
	ClassDistribution map[string]ClassShare `json:"class_distribution,omitempty"`
	AcquiredAt        time.Time             `json:"acquired_at"`
	AnalyzedAt        time.Time             `json:"analyzed_at"`
	Status            Status                `json:"status"`
	Cause             string                `json:"cause,omitempty"`
}

// ProgressEvent is emitted by the session as items move through stages.
// Consumers may be absent; emission never blocks the pipeline.
type ProgressEvent struct {
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	Stage  Stage  `json:"stage"`
	Status Status `json:"status"`
}
