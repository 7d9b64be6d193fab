package renderer

import (
	"math"

	"github.com/ivlev/motion2video/internal/animation"
)

// Transform maps canvas coordinates into output pixels.
type Transform struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// Fit letterboxes a canvas into a target frame: uniform scale, centered.
func Fit(canvasW, canvasH, targetW, targetH float64) Transform {
	if canvasW <= 0 || canvasH <= 0 {
		return Transform{Scale: 1}
	}
	s := math.Min(targetW/canvasW, targetH/canvasH)
	return Transform{
		Scale:   s,
		OffsetX: (targetW - canvasW*s) / 2,
		OffsetY: (targetH - canvasH*s) / 2,
	}
}

// Rect is an axis-aligned box in output pixels.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Apply maps an element box from canvas units to output pixels.
func (t Transform) Apply(pos animation.Point, size animation.Size) Rect {
	return Rect{
		X: pos.X*t.Scale + t.OffsetX,
		Y: pos.Y*t.Scale + t.OffsetY,
		W: size.W * t.Scale,
		H: size.H * t.Scale,
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
