package segmentation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/greenview-analytics/greenview/internal/metrics"
	"github.com/greenview-analytics/greenview/pkg/types"
)

// CityscapesLabels is the 19-class label ordering used by
// Cityscapes-finetuned segmentation models. Vegetation is index 8 in this
// ordering; the deployed model's manifest is still authoritative and is
// checked at load time.
var CityscapesLabels = []string{
	"road", "sidewalk", "building", "wall", "fence",
	"pole", "traffic_light", "traffic_sign", "vegetation",
	"terrain", "sky", "person", "rider", "car",
	"truck", "bus", "train", "motorcycle", "bicycle",
}

// InferenceError is a per-item segmentation failure (undecodable image,
// degenerate dimensions, backend failure). It never aborts the session.
type InferenceError struct {
	Path string
	Err  error
}

func (e *InferenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("inference failed for %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Config holds segmentation engine parameters.
type Config struct {
	Model           string
	Device          string // "auto", "cpu", or "cuda"
	VegetationClass int
}

// Engine drives the segmentation backend. Load probes the device and
// validates the label manifest once; Segment serializes inference calls on
// the single compute device.
type Engine struct {
	backend Backend
	config  Config
	logger  *zap.Logger

	mu     sync.Mutex // serializes inference on the device
	device DeviceInfo
	labels []string
	loaded bool
}

// NewEngine creates an engine over the given backend.
func NewEngine(backend Backend, config Config, logger *zap.Logger) *Engine {
	if config.Model == "" {
		config.Model = "segformer-b5-cityscapes-1024"
	}
	if config.Device == "" {
		config.Device = "auto"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		backend: backend,
		config:  config,
		logger:  logger,
	}
}

// Load probes the compute device and fetches the label manifest, validating
// the configured vegetation class index against it. The device probe never
// fails the load: an unreachable or accelerator-less probe falls back to CPU.
// A manifest that contradicts the configured vegetation index does fail the
// load, because every ratio computed afterwards would be wrong.
func (e *Engine) Load(ctx context.Context) error {
	info, err := e.backend.Device(ctx)
	switch {
	case err != nil:
		e.logger.Warn("device probe failed, assuming cpu", zap.Error(err))
		info = DeviceInfo{Device: "cpu"}
	case e.config.Device == "cuda" && !info.Available:
		e.logger.Warn("accelerator requested but unavailable, falling back to cpu")
		info = DeviceInfo{Device: "cpu"}
	case e.config.Device == "cpu":
		info = DeviceInfo{Device: "cpu", Available: info.Available}
	case !info.Available:
		info.Device = "cpu"
	}
	e.device = info

	labels, err := e.backend.Labels(ctx, e.config.Model)
	if err != nil {
		return fmt.Errorf("failed to fetch label manifest: %w", err)
	}
	if len(labels) != len(CityscapesLabels) {
		return fmt.Errorf("model exposes %d classes, expected %d", len(labels), len(CityscapesLabels))
	}
	if e.config.VegetationClass < 0 || e.config.VegetationClass >= len(labels) {
		return fmt.Errorf("vegetation class index %d out of range for %d classes",
			e.config.VegetationClass, len(labels))
	}
	if got := strings.ToLower(labels[e.config.VegetationClass]); got != "vegetation" {
		return fmt.Errorf("configured vegetation class %d maps to label %q in the model manifest",
			e.config.VegetationClass, labels[e.config.VegetationClass])
	}

	e.labels = labels
	e.loaded = true
	e.logger.Info("segmentation engine ready",
		zap.String("model", e.config.Model),
		zap.String("device", e.device.Device),
		zap.Int("vegetation_class", e.config.VegetationClass),
	)
	return nil
}

// Device returns the compute device selected at load time.
func (e *Engine) Device() DeviceInfo {
	return e.device
}

// Labels returns the validated label manifest.
func (e *Engine) Labels() []string {
	return e.labels
}

// VegetationClass returns the validated vegetation class index.
func (e *Engine) VegetationClass() uint8 {
	return uint8(e.config.VegetationClass)
}

// Segment runs inference on a decoded image and returns a class map with the
// image's spatial dimensions. Calls are serialized on the inference device;
// downloads may proceed in parallel with an in-progress call.
func (e *Engine) Segment(ctx context.Context, img image.Image) (*types.ClassMap, error) {
	if !e.loaded {
		return nil, fmt.Errorf("engine not loaded, call Load first")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, &InferenceError{Err: fmt.Errorf("degenerate image dimensions %dx%d", bounds.Dx(), bounds.Dy())}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	classMap, err := e.backend.Segment(ctx, e.config.Model, img)
	metrics.ObserveInferenceDuration(time.Since(start).Seconds())
	if err != nil {
		metrics.IncInference("error")
		return nil, &InferenceError{Err: err}
	}
	if classMap.Width != bounds.Dx() || classMap.Height != bounds.Dy() {
		metrics.IncInference("error")
		return nil, &InferenceError{Err: fmt.Errorf("class map %dx%d does not match image %dx%d",
			classMap.Width, classMap.Height, bounds.Dx(), bounds.Dy())}
	}

	metrics.IncInference("ok")
	return classMap, nil
}

// SegmentFile loads an image from disk and segments it. Load failures are
// reported as InferenceErrors carrying the path.
func (e *Engine) SegmentFile(ctx context.Context, path string) (*types.ClassMap, image.Image, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, nil, &InferenceError{Path: path, Err: err}
	}

	classMap, err := e.Segment(ctx, img)
	if err != nil {
		if ie, ok := err.(*InferenceError); ok {
			ie.Path = path
		}
		return nil, nil, err
	}
	return classMap, img, nil
}

// loadImage opens an image file with WebP fallback.
func loadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}
