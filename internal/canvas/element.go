package canvas

import (
	"fmt"

	"github.com/ivlev/motion2video/internal/animation"
)

type ElementType string

const (
	Rectangle ElementType = "rectangle"
	Ellipse   ElementType = "ellipse"
	Text      ElementType = "text"
	Image     ElementType = "image"
	Video     ElementType = "video"
)

// ParseElementType validates an element type name.
func ParseElementType(s string) (ElementType, error) {
	switch t := ElementType(s); t {
	case Rectangle, Ellipse, Text, Image, Video:
		return t, nil
	}
	return "", fmt.Errorf("unknown element type %q", s)
}

type Alignment string

const (
	AlignLeading  Alignment = "leading"
	AlignCenter   Alignment = "center"
	AlignTrailing Alignment = "trailing"
)

// Element is one drawable item on the canvas. Position is the top-left
// corner of its box in canvas units; rotation is in degrees, clockwise,
// around the box center.
type Element struct {
	ID             string
	Type           ElementType
	Position       animation.Point
	Size           animation.Size
	Rotation       float64
	Opacity        float64
	Color          animation.Color
	Text           string
	TextAlignment  Alignment
	FontSize       float64
	AssetURL       string
	VideoStartTime float64
}

// Center returns the center of the element box.
func (e Element) Center() animation.Point {
	return animation.Point{
		X: e.Position.X + e.Size.W/2,
		Y: e.Position.Y + e.Size.H/2,
	}
}

// NewElement returns an element with the editor defaults: opaque, black,
// centered text at 24pt.
func NewElement(id string, typ ElementType) Element {
	return Element{
		ID:            id,
		Type:          typ,
		Size:          animation.Size{W: 100, H: 100},
		Opacity:       1,
		Color:         animation.LinearRGBA(0, 0, 0, 1),
		TextAlignment: AlignCenter,
		FontSize:      24,
	}
}

// Placeholder builds the text element drawn when an export starts with an
// empty canvas.
func Placeholder(text string, canvasWidth, canvasHeight float64) Element {
	e := NewElement("placeholder", Text)
	e.Text = text
	e.Position = animation.Point{X: canvasWidth * 0.1, Y: canvasHeight * 0.4}
	e.Size = animation.Size{W: canvasWidth * 0.8, H: canvasHeight * 0.2}
	e.FontSize = canvasHeight * 0.08
	return e
}
