// Package greenview measures the green view index (GVI) of street-level
// panoramas: the percentage of an image's pixels a semantic-segmentation
// model classifies as vegetation.
//
// The pipeline ingests WGS84 coordinates, fetches one panorama per
// coordinate from the Baidu panorama static API, segments each image via an
// external inference server, computes the vegetation pixel ratio, renders a
// highlight overlay, and exports a tabular report.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		greenview "github.com/greenview-analytics/greenview"
//		"github.com/greenview-analytics/greenview/pkg/coordinates"
//	)
//
//	func main() {
//		cfg := greenview.DefaultConfig()
//		cfg.Imagery.AccessKey = "your-baidu-ak"
//
//		pipeline, err := greenview.New(cfg, nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		set := coordinates.ParseText("116.404,39.915\n121.473,31.230")
//		summary, err := pipeline.Analyze(context.Background(), set.Coordinates)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("analyzed %d coordinates, mean GVI %.2f%%\n",
//			summary.Succeeded, summary.MeanGVI)
//	}
//
// The package consists of six components:
//
//  1. coordinates (pkg/coordinates): input parsing and validation
//  2. streetview (pkg/streetview): panorama acquisition with retry/backoff
//  3. segmentation (pkg/segmentation): inference server client, device probe
//  4. vegetation (pkg/vegetation): GVI computation and overlay rendering
//  5. session (pkg/session): pipeline orchestration and progress events
//  6. report (pkg/report): xlsx/csv report export
package greenview

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/greenview-analytics/greenview/internal/config"
	"github.com/greenview-analytics/greenview/pkg/report"
	"github.com/greenview-analytics/greenview/pkg/segmentation"
	"github.com/greenview-analytics/greenview/pkg/session"
	"github.com/greenview-analytics/greenview/pkg/streetview"
	"github.com/greenview-analytics/greenview/pkg/types"
	"github.com/greenview-analytics/greenview/pkg/vegetation"
)

// Version of the greenview library.
const Version = "1.0.0"

// Config is the application configuration.
type Config = config.Config

// DefaultConfig returns a configuration with default values. The imagery
// access key must be supplied by the caller.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Pipeline wires the acquisition and analysis components together.
type Pipeline struct {
	cfg     *Config
	logger  *zap.Logger
	imagery *streetview.Client
	engine  *segmentation.Engine
	loaded  bool
}

// New builds a pipeline from the configuration. The configuration is
// validated and the imagery access key is a session-wide precondition: a
// missing key fails here, before any work starts.
func New(cfg *Config, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	imagery, err := streetview.NewClient(streetview.Options{
		Endpoint:   cfg.Imagery.Endpoint,
		AccessKey:  cfg.Imagery.AccessKey,
		Timeout:    cfg.Imagery.Timeout,
		MaxRetries: cfg.Imagery.MaxRetries,
		Backoff:    cfg.Imagery.RetryBackoff,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create imagery client: %w", err)
	}

	backend := segmentation.NewHTTPBackend(cfg.Segmentation.ServerURL, cfg.Segmentation.Timeout)
	engine := segmentation.NewEngine(backend, segmentation.Config{
		Model:           cfg.Segmentation.Model,
		Device:          cfg.Segmentation.Device,
		VegetationClass: cfg.Segmentation.VegetationClass,
	}, logger)

	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		imagery: imagery,
		engine:  engine,
	}, nil
}

// LoadModel probes the inference device and validates the label manifest.
// Called once per pipeline; NewSession and Analyze load lazily if needed.
func (p *Pipeline) LoadModel(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	if err := p.engine.Load(ctx); err != nil {
		return err
	}
	p.loaded = true
	return nil
}

// NewSession creates an analysis session over the given coordinates.
func (p *Pipeline) NewSession(ctx context.Context, coords []types.Coordinate) (*session.Session, error) {
	if err := p.LoadModel(ctx); err != nil {
		return nil, err
	}

	renderOpts := vegetation.DefaultRenderOptions()
	renderOpts.HighlightColor.R = p.cfg.Vegetation.HighlightColor[0]
	renderOpts.HighlightColor.G = p.cfg.Vegetation.HighlightColor[1]
	renderOpts.HighlightColor.B = p.cfg.Vegetation.HighlightColor[2]
	renderOpts.DimFactor = p.cfg.Vegetation.DimFactor
	renderOpts.OverlayAlpha = p.cfg.Vegetation.OverlayAlpha

	return session.New(coords, p.imagery, p.engine, report.NewStore(), session.Config{
		ImageDir:       p.cfg.Session.ImageDir,
		AnalysisDir:    p.cfg.Session.AnalysisDir,
		ImageWidth:     p.cfg.Imagery.Width,
		ImageHeight:    p.cfg.Imagery.Height,
		FOV:            p.cfg.Imagery.FOV,
		Pitch:          p.cfg.Imagery.Pitch,
		Concurrency:    p.cfg.Imagery.Concurrency,
		RequestDelay:   p.cfg.Imagery.RequestDelay,
		RenderOptions:  renderOpts,
		ProgressBuffer: p.cfg.Session.ProgressBuffer,
	}, p.logger)
}

// Analyze runs a full session over the coordinates and exports the report to
// the configured path, returning the report summary.
func (p *Pipeline) Analyze(ctx context.Context, coords []types.Coordinate) (report.Summary, error) {
	sess, err := p.NewSession(ctx, coords)
	if err != nil {
		return report.Summary{}, err
	}

	if err := sess.Run(ctx); err != nil {
		return report.Summary{}, err
	}

	if err := p.ExportReport(sess.Store()); err != nil {
		return report.Summary{}, err
	}
	return sess.Store().Summarize(), nil
}

// ExportReport serializes a report store to the configured path and format.
func (p *Pipeline) ExportReport(store *report.Store) error {
	switch p.cfg.Output.Format {
	case "csv":
		return store.ExportCSV(p.cfg.Output.ReportPath)
	default:
		return store.ExportXLSX(p.cfg.Output.ReportPath)
	}
}
