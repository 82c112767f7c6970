// Package session orchestrates the acquisition-and-analysis pipeline: it
// drives every coordinate through download, segmentation, and vegetation
// analysis, tracks per-item state, and commits terminal results to the
// report store.
//
// Downloads run concurrently in a bounded pool; analysis runs in a single
// serialized lane because the inference device is a mutually exclusive
// resource. A coordinate enters analysis only once its download has
// succeeded. All state mutation happens on the orchestration goroutine;
// workers report back over channels.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/greenview-analytics/greenview/internal/metrics"
	"github.com/greenview-analytics/greenview/internal/utils"
	"github.com/greenview-analytics/greenview/pkg/report"
	"github.com/greenview-analytics/greenview/pkg/segmentation"
	"github.com/greenview-analytics/greenview/pkg/streetview"
	"github.com/greenview-analytics/greenview/pkg/types"
	"github.com/greenview-analytics/greenview/pkg/vegetation"
)

// Config holds session-wide pipeline parameters.
type Config struct {
	ImageDir       string
	AnalysisDir    string
	ImageWidth     int
	ImageHeight    int
	FOV            int
	Pitch          int
	Concurrency    int
	RequestDelay   time.Duration
	RenderOptions  vegetation.RenderOptions
	ProgressBuffer int
}

// Session is one end-to-end run over a coordinate set, from acquisition
// through report export.
type Session struct {
	coords   []types.Coordinate
	imagery  *streetview.Client
	engine   *segmentation.Engine
	analyzer *vegetation.Analyzer
	store    *report.Store
	config   Config
	logger   *zap.Logger

	state    *State
	progress chan types.ProgressEvent
}

// New creates a session over the given coordinates. The segmentation engine
// must already be loaded.
func New(coords []types.Coordinate, imagery *streetview.Client, engine *segmentation.Engine, store *report.Store, config Config, logger *zap.Logger) (*Session, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("coordinate set is empty")
	}
	if imagery == nil {
		return nil, fmt.Errorf("imagery client is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("segmentation engine is required")
	}
	if store == nil {
		store = report.NewStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.ProgressBuffer < 1 {
		config.ProgressBuffer = 64
	}

	return &Session{
		coords:   coords,
		imagery:  imagery,
		engine:   engine,
		analyzer: vegetation.NewAnalyzer(engine.VegetationClass(), engine.Labels()),
		store:    store,
		config:   config,
		logger:   logger,
		state:    newState(coords),
		progress: make(chan types.ProgressEvent, config.ProgressBuffer),
	}, nil
}

// Progress returns the event stream. Events are dropped when the buffer is
// full, so an absent or slow consumer never stalls the pipeline. The channel
// is closed when Run returns.
func (s *Session) Progress() <-chan types.ProgressEvent {
	return s.progress
}

// State exposes the session state for inspection after (or during, from the
// orchestration goroutine's perspective) a run.
func (s *Session) State() *State {
	return s.state
}

// Store returns the report store holding committed results.
func (s *Session) Store() *report.Store {
	return s.store
}

// emit publishes a progress event without blocking.
func (s *Session) emit(index int, stage types.Stage, status types.Status) {
	ev := types.ProgressEvent{
		Index:  index,
		Total:  s.state.Len(),
		Stage:  stage,
		Status: status,
	}
	select {
	case s.progress <- ev:
	default:
		// Consumer absent or slow; correctness does not depend on delivery.
	}
}

// analysisOutcome is handed back by the analysis lane.
type analysisOutcome struct {
	index int
	err   error

	analysisPath     string
	gvi              float64
	vegetationPixels int
	totalPixels      int
	distribution     map[string]types.ClassShare
	analyzedAt       time.Time
}

// Run executes the pipeline. Per-item failures are recorded on that item and
// the session continues; a quota failure halts further downloads while
// already-downloaded items still get analyzed. Cancellation is cooperative:
// it is honored between coordinates, in-flight work settles, and untouched
// items stay pending. The report is exported for all terminal items before
// Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.progress)

	total := s.state.Len()
	s.logger.Info("session starting",
		zap.Int("coordinates", total),
		zap.Int("concurrency", s.config.Concurrency),
		zap.String("device", s.engine.Device().Device),
	)

	// Stage 1 feed: every pending coordinate becomes a download request.
	// Items stay pending until an outcome arrives, so anything the pool
	// never reaches (cancellation) is left untouched.
	requests := make([]streetview.IndexedRequest, 0, total)
	for _, r := range s.state.Results() {
		requests = append(requests, streetview.IndexedRequest{
			Index: r.Index,
			Request: types.AcquisitionRequest{
				Coordinate: r.Coordinate,
				Width:      s.config.ImageWidth,
				Height:     s.config.ImageHeight,
				FOV:        s.config.FOV,
				Pitch:      s.config.Pitch,
			},
		})
	}

	downloads := s.imagery.DownloadBatch(ctx, requests, s.config.ImageDir,
		s.config.Concurrency, s.config.RequestDelay)

	// Stage 2 lane: serialized analysis. The buffer holds every index so the
	// orchestrator never blocks enqueueing.
	analysisQueue := make(chan int, total)
	analysisDone := make(chan analysisOutcome, total)
	go s.analysisLane(ctx, analysisQueue, analysisDone)

	inFlight := 0
	downloadsOpen := true
	for downloadsOpen || inFlight > 0 {
		select {
		case res, ok := <-downloads:
			if !ok {
				downloadsOpen = false
				downloads = nil
				close(analysisQueue)
				continue
			}
			if s.applyDownload(res) {
				analysisQueue <- res.Index
				inFlight++
			}

		case out := <-analysisDone:
			inFlight--
			s.applyAnalysis(out)
		}
	}

	return s.export(ctx)
}

// applyDownload folds a download outcome into the state. Returns true when
// the item should proceed to analysis.
func (s *Session) applyDownload(res streetview.BatchResult) bool {
	r := s.state.Result(res.Index)

	if res.Err != nil {
		if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
			// Abandoned in-flight download on cancellation: the item stays
			// pending and no partial image was kept.
			return false
		}
		r.Status = types.StatusFailed
		r.Cause = res.Err.Error()
		metrics.IncItemFailure(string(types.StageDownload))
		if err := s.store.Commit(*r); err != nil {
			s.logger.Error("failed to commit result", zap.Int("index", r.Index), zap.Error(err))
		}
		s.emit(r.Index, types.StageDownload, types.StatusFailed)

		if errors.Is(res.Err, streetview.ErrQuotaExceeded) {
			s.logger.Warn("imagery quota exhausted, no further downloads",
				zap.Int("index", r.Index))
		} else {
			s.logger.Warn("download failed",
				zap.Int("index", r.Index),
				zap.Float64("lng", r.Coordinate.Longitude),
				zap.Float64("lat", r.Coordinate.Latitude),
				zap.String("cause", r.Cause))
		}
		return false
	}

	r.Status = types.StatusDownloaded
	r.OriginalImagePath = res.Path
	if !res.Skipped {
		r.AcquiredAt = time.Now()
	} else if info, err := fileModTime(res.Path); err == nil {
		// Resumed item: keep the original download moment.
		r.AcquiredAt = info
	}
	s.emit(r.Index, types.StageDownload, types.StatusDownloaded)
	return true
}

// analysisLane processes downloaded items one at a time in arrival order.
// Cancellation is honored between coordinates at the download stage only:
// every item that made it to disk is carried through analysis so it reaches
// a terminal state, which is why the lane runs on an uncancellable context.
func (s *Session) analysisLane(ctx context.Context, queue <-chan int, done chan<- analysisOutcome) {
	laneCtx := context.WithoutCancel(ctx)
	for index := range queue {
		done <- s.analyzeItem(laneCtx, index)
	}
}

// analyzeItem segments one downloaded panorama, computes the vegetation
// ratio, and renders the overlay. It reads the shared state's immutable
// fields only (path, coordinate) and reports every mutation via the outcome.
func (s *Session) analyzeItem(ctx context.Context, index int) analysisOutcome {
	r := s.state.Result(index)
	out := analysisOutcome{index: index}

	classMap, img, err := s.engine.SegmentFile(ctx, r.OriginalImagePath)
	if err != nil {
		out.err = err
		return out
	}

	gvi, vegPixels, dist := s.analyzer.Measure(classMap)

	if err := utils.EnsureDir(s.config.AnalysisDir); err != nil {
		out.err = fmt.Errorf("failed to create analysis directory: %w", err)
		return out
	}
	overlay, err := s.analyzer.RenderMask(classMap, img, s.config.RenderOptions)
	if err != nil {
		out.err = err
		return out
	}
	overlayPath := utils.AnalysisImagePath(s.config.AnalysisDir, index,
		r.Coordinate.Longitude, r.Coordinate.Latitude)
	if err := vegetation.SaveOverlay(overlay, overlayPath); err != nil {
		out.err = fmt.Errorf("failed to save overlay: %w", err)
		return out
	}

	out.analysisPath = overlayPath
	out.gvi = gvi
	out.vegetationPixels = vegPixels
	out.totalPixels = classMap.TotalPixels()
	out.distribution = dist
	out.analyzedAt = time.Now()
	return out
}

// applyAnalysis folds an analysis outcome into the state.
func (s *Session) applyAnalysis(out analysisOutcome) {
	r := s.state.Result(out.index)

	if out.err != nil {
		r.Status = types.StatusFailed
		r.Cause = out.err.Error()
		metrics.IncItemFailure(string(types.StageAnalyze))
		if err := s.store.Commit(*r); err != nil {
			s.logger.Error("failed to commit result", zap.Int("index", r.Index), zap.Error(err))
		}
		s.emit(r.Index, types.StageAnalyze, types.StatusFailed)
		s.logger.Warn("analysis failed",
			zap.Int("index", r.Index),
			zap.String("cause", r.Cause))
		return
	}

	r.Status = types.StatusAnalyzed
	r.AnalysisImagePath = out.analysisPath
	r.GreenViewIndex = out.gvi
	r.VegetationPixels = out.vegetationPixels
	r.TotalPixels = out.totalPixels
	r.ClassDistribution = out.distribution
	r.AnalyzedAt = out.analyzedAt
	s.emit(r.Index, types.StageAnalyze, types.StatusAnalyzed)
	s.logger.Info("coordinate analyzed",
		zap.Int("index", r.Index),
		zap.Float64("green_view_index", out.gvi))
}

// export commits every analyzed item as exported. Failed items were already
// committed when they failed; pending items (cancellation) stay out of the
// report untouched.
func (s *Session) export(ctx context.Context) error {
	for _, r := range s.state.Results() {
		if r.Status != types.StatusAnalyzed {
			continue
		}
		r.Status = types.StatusExported
		if err := s.store.Commit(*r); err != nil {
			return fmt.Errorf("failed to commit result %d: %w", r.Index, err)
		}
		s.emit(r.Index, types.StageExport, types.StatusExported)
	}

	counts := s.state.Counts()
	s.logger.Info("session finished",
		zap.Int("total", s.state.Len()),
		zap.Int("analyzed", counts.Analyzed),
		zap.Int("failed", counts.Failed),
		zap.Int("pending", counts.Pending),
	)

	if err := ctx.Err(); err != nil && counts.Analyzed == 0 && counts.Failed == 0 {
		return err
	}
	return nil
}

func fileModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
