package vegetation

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/greenview-analytics/greenview/pkg/types"
)

// cityscapesPalette is the conventional Cityscapes visualization color per
// class index.
var cityscapesPalette = [][3]uint8{
	{128, 64, 128},  // road
	{244, 35, 232},  // sidewalk
	{70, 70, 70},    // building
	{102, 102, 156}, // wall
	{190, 153, 153}, // fence
	{153, 153, 153}, // pole
	{250, 170, 30},  // traffic light
	{220, 220, 0},   // traffic sign
	{107, 142, 35},  // vegetation
	{152, 251, 152}, // terrain
	{70, 130, 180},  // sky
	{220, 20, 60},   // person
	{255, 0, 0},     // rider
	{0, 0, 142},     // car
	{0, 0, 70},      // truck
	{0, 60, 100},    // bus
	{0, 80, 100},    // train
	{0, 0, 230},     // motorcycle
	{119, 11, 32},   // bicycle
}

// RenderOptions configures overlay rendering.
type RenderOptions struct {
	// HighlightColor is painted over vegetation pixels in the mask overlay.
	HighlightColor color.NRGBA
	// DimFactor scales non-vegetation pixels in the mask overlay, 0..1.
	DimFactor float64
	// OverlayAlpha blends the class palette over the original in the full
	// overlay, 0..1.
	OverlayAlpha float64
}

// DefaultRenderOptions matches the conventional green-highlight rendering.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		HighlightColor: color.NRGBA{R: 0, G: 255, B: 0, A: 255},
		DimFactor:      0.6,
		OverlayAlpha:   0.6,
	}
}

// RenderMask produces the vegetation highlight overlay: vegetation pixels
// take the highlight color, all other pixels pass through from the original
// dimmed by DimFactor. The output dimensions equal the class map dimensions;
// the original must match.
func (a *Analyzer) RenderMask(m *types.ClassMap, original image.Image, opts RenderOptions) (*image.NRGBA, error) {
	if err := checkDimensions(m, original); err != nil {
		return nil, err
	}

	out := imaging.Clone(original)
	dim := clamp01(opts.DimFactor)

	for y := 0; y < m.Height; y++ {
		row := y * out.Stride
		for x := 0; x < m.Width; x++ {
			i := row + x*4
			if m.At(x, y) == a.vegetationClass {
				out.Pix[i+0] = opts.HighlightColor.R
				out.Pix[i+1] = opts.HighlightColor.G
				out.Pix[i+2] = opts.HighlightColor.B
			} else {
				out.Pix[i+0] = uint8(float64(out.Pix[i+0]) * dim)
				out.Pix[i+1] = uint8(float64(out.Pix[i+1]) * dim)
				out.Pix[i+2] = uint8(float64(out.Pix[i+2]) * dim)
			}
		}
	}

	return out, nil
}

// RenderClassOverlay blends the full class palette over the original image
// with OverlayAlpha. Class indices beyond the palette render gray.
func (a *Analyzer) RenderClassOverlay(m *types.ClassMap, original image.Image, opts RenderOptions) (*image.NRGBA, error) {
	if err := checkDimensions(m, original); err != nil {
		return nil, err
	}

	out := imaging.Clone(original)
	alpha := clamp01(opts.OverlayAlpha)

	for y := 0; y < m.Height; y++ {
		row := y * out.Stride
		for x := 0; x < m.Width; x++ {
			c := paletteColor(m.At(x, y))
			i := row + x*4
			out.Pix[i+0] = blend(out.Pix[i+0], c[0], alpha)
			out.Pix[i+1] = blend(out.Pix[i+1], c[1], alpha)
			out.Pix[i+2] = blend(out.Pix[i+2], c[2], alpha)
		}
	}

	return out, nil
}

func paletteColor(class uint8) [3]uint8 {
	if int(class) < len(cityscapesPalette) {
		return cityscapesPalette[class]
	}
	return [3]uint8{128, 128, 128}
}

func checkDimensions(m *types.ClassMap, original image.Image) error {
	bounds := original.Bounds()
	if bounds.Dx() != m.Width || bounds.Dy() != m.Height {
		return fmt.Errorf("image %dx%d does not match class map %dx%d",
			bounds.Dx(), bounds.Dy(), m.Width, m.Height)
	}
	return nil
}

func blend(base, over uint8, alpha float64) uint8 {
	return uint8(float64(base)*(1-alpha) + float64(over)*alpha + 0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SaveOverlay writes an overlay image to disk as PNG.
func SaveOverlay(img image.Image, path string) error {
	return imaging.Save(img, path)
}
