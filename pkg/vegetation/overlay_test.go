package vegetation

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

// createTestImage builds a w x h NRGBA gradient image.
func createTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 17),
				G: uint8(y * 29),
				B: uint8((x + y) * 7),
				A: 255,
			})
		}
	}
	return img
}

func TestRenderMaskHighlightsVegetation(t *testing.T) {
	a := NewAnalyzer(8, testLabels)
	m := createClassMap(t, 10, 10, 25)
	img := createTestImage(10, 10)

	out, err := a.RenderMask(m, img, DefaultRenderOptions())
	if err != nil {
		t.Fatalf("RenderMask failed: %v", err)
	}

	// First 25 pixels are vegetation and take the highlight color.
	c := out.NRGBAAt(0, 0)
	if c.R != 0 || c.G != 255 || c.B != 0 {
		t.Errorf("vegetation pixel = %v, want green highlight", c)
	}

	// Pixel (5,5) is index 55, not vegetation: dimmed original.
	orig := img.NRGBAAt(5, 5)
	dimmed := out.NRGBAAt(5, 5)
	wantR := uint8(float64(orig.R) * 0.6)
	if dimmed.R != wantR {
		t.Errorf("non-vegetation pixel R = %d, want %d", dimmed.R, wantR)
	}
	if dimmed.A != 255 {
		t.Errorf("alpha should be preserved, got %d", dimmed.A)
	}
}

func TestRenderMaskDoesNotMutateOriginal(t *testing.T) {
	a := NewAnalyzer(8, testLabels)
	m := createClassMap(t, 10, 10, 25)
	img := createTestImage(10, 10)
	before := make([]uint8, len(img.Pix))
	copy(before, img.Pix)

	if _, err := a.RenderMask(m, img, DefaultRenderOptions()); err != nil {
		t.Fatalf("RenderMask failed: %v", err)
	}

	if !bytes.Equal(before, img.Pix) {
		t.Error("RenderMask mutated the original image")
	}
}

func TestRenderMaskIsDeterministic(t *testing.T) {
	a := NewAnalyzer(8, testLabels)
	m := createClassMap(t, 12, 6, 30)
	img := createTestImage(12, 6)

	first, err := a.RenderMask(m, img, DefaultRenderOptions())
	if err != nil {
		t.Fatalf("RenderMask failed: %v", err)
	}
	second, err := a.RenderMask(m, img, DefaultRenderOptions())
	if err != nil {
		t.Fatalf("RenderMask failed: %v", err)
	}

	if !bytes.Equal(first.Pix, second.Pix) {
		t.Error("identical inputs produced different overlays")
	}
}

func TestRenderMaskDimensionMismatch(t *testing.T) {
	a := NewAnalyzer(8, testLabels)
	m := createClassMap(t, 10, 10, 25)
	img := createTestImage(8, 10)

	if _, err := a.RenderMask(m, img, DefaultRenderOptions()); err == nil {
		t.Error("expected error for mismatched dimensions")
	}
}

func TestRenderClassOverlay(t *testing.T) {
	a := NewAnalyzer(8, testLabels)
	m := createClassMap(t, 10, 10, 25)
	img := createTestImage(10, 10)

	out, err := a.RenderClassOverlay(m, img, DefaultRenderOptions())
	if err != nil {
		t.Fatalf("RenderClassOverlay failed: %v", err)
	}

	// Vegetation pixel blends toward the vegetation palette color.
	orig := img.NRGBAAt(0, 0)
	got := out.NRGBAAt(0, 0)
	wantR := blend(orig.R, 107, 0.6)
	if got.R != wantR {
		t.Errorf("blended R = %d, want %d", got.R, wantR)
	}
}

func TestPaletteColorFallsBackToGray(t *testing.T) {
	c := paletteColor(200)
	if c != [3]uint8{128, 128, 128} {
		t.Errorf("out-of-palette class = %v, want gray", c)
	}
}
