package types

// ClassMap is a per-pixel array of semantic class indices with the same
// spatial dimensions as the source image. Row-major; immutable after
// creation.
type ClassMap struct {
	Width   int
	Height  int
	Classes []uint8
}

// NewClassMap allocates a zeroed class map with the given dimensions.
func NewClassMap(width, height int) *ClassMap {
	return &ClassMap{
		Width:   width,
		Height:  height,
		Classes: make([]uint8, width*height),
	}
}

// At returns the class index at pixel (x, y).
func (m *ClassMap) At(x, y int) uint8 {
	return m.Classes[y*m.Width+x]
}

// Set assigns the class index at pixel (x, y).
func (m *ClassMap) Set(x, y int, class uint8) {
	m.Classes[y*m.Width+x] = class
}

// Count returns the number of pixels assigned to the given class.
func (m *ClassMap) Count(class uint8) int {
	n := 0
	for _, c := range m.Classes {
		if c == class {
			n++
		}
	}
	return n
}

// TotalPixels returns the pixel count of the map.
func (m *ClassMap) TotalPixels() int {
	return len(m.Classes)
}
