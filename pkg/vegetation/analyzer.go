// Package vegetation turns per-pixel class maps into a scalar green view
// index and visualization overlays. All functions are pure with respect to
// their inputs: identical class maps and render options always produce
// identical numbers and pixels.
package vegetation

import (
	"fmt"

	"github.com/greenview-analytics/greenview/pkg/types"
)

// Analyzer computes vegetation ratios and class distributions from class
// maps produced by the segmentation engine.
type Analyzer struct {
	vegetationClass uint8
	labels          []string
}

// NewAnalyzer creates an analyzer for the given vegetation class index and
// label manifest.
func NewAnalyzer(vegetationClass uint8, labels []string) *Analyzer {
	return &Analyzer{
		vegetationClass: vegetationClass,
		labels:          labels,
	}
}

// VegetationClass returns the class index treated as vegetation.
func (a *Analyzer) VegetationClass() uint8 {
	return a.vegetationClass
}

// GreenViewIndex returns 100 * vegetation pixels / total pixels, in [0,100].
// A zero-pixel class map violates the segmentation engine's dimension
// guarantee and is a programming error, not a recoverable condition.
func (a *Analyzer) GreenViewIndex(m *types.ClassMap) float64 {
	total := m.TotalPixels()
	if total == 0 {
		panic("vegetation: class map has zero pixels")
	}
	return 100 * float64(m.Count(a.vegetationClass)) / float64(total)
}

// Measure computes the green view index together with the per-class pixel
// distribution. Classes with no pixels are omitted from the distribution.
func (a *Analyzer) Measure(m *types.ClassMap) (gvi float64, vegetationPixels int, distribution map[string]types.ClassShare) {
	total := m.TotalPixels()
	if total == 0 {
		panic("vegetation: class map has zero pixels")
	}

	counts := make([]int, len(a.labels))
	for _, c := range m.Classes {
		if int(c) < len(counts) {
			counts[c]++
		}
	}

	distribution = make(map[string]types.ClassShare)
	for class, count := range counts {
		if count == 0 {
			continue
		}
		name := a.labels[class]
		if name == "" {
			name = fmt.Sprintf("class_%d", class)
		}
		distribution[name] = types.ClassShare{
			Pixels:     count,
			Percentage: 100 * float64(count) / float64(total),
		}
	}

	vegetationPixels = counts[int(a.vegetationClass)]
	gvi = 100 * float64(vegetationPixels) / float64(total)
	return gvi, vegetationPixels, distribution
}
