package canvas

import (
	"sort"

	"github.com/ivlev/motion2video/internal/animation"
)

// Animatable property names. None of them contains an underscore, which
// keeps "<elementID>_<property>" track ids unambiguous.
const (
	PropPosition = "position"
	PropSize     = "size"
	PropRotation = "rotation"
	PropOpacity  = "opacity"
	PropColor    = "color"
	PropText     = "text"
	PropFontSize = "fontSize"
)

// Property describes one animatable element property.
type Property struct {
	Name string
	Kind animation.Kind
	set  func(e *Element, v animation.Value)
}

var properties = map[string]Property{
	PropPosition: {PropPosition, animation.KindPoint, func(e *Element, v animation.Value) { e.Position = v.Point }},
	PropSize:     {PropSize, animation.KindSize, func(e *Element, v animation.Value) { e.Size = v.Size }},
	PropRotation: {PropRotation, animation.KindDouble, func(e *Element, v animation.Value) { e.Rotation = v.Num }},
	PropOpacity: {PropOpacity, animation.KindDouble, func(e *Element, v animation.Value) {
		e.Opacity = clamp01(v.Num)
	}},
	PropColor:    {PropColor, animation.KindColor, func(e *Element, v animation.Value) { e.Color = v.Color }},
	PropText:     {PropText, animation.KindString, func(e *Element, v animation.Value) { e.Text = v.Str }},
	PropFontSize: {PropFontSize, animation.KindDouble, func(e *Element, v animation.Value) { e.FontSize = v.Num }},
}

// LookupProperty returns the property registered under name.
func LookupProperty(name string) (Property, bool) {
	p, ok := properties[name]
	return p, ok
}

// Properties lists the animatable property names, sorted.
func Properties() []string {
	names := make([]string, 0, len(properties))
	for n := range properties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get reads the current value of the property from e.
func (p Property) Get(e Element) animation.Value {
	switch p.Name {
	case PropPosition:
		return animation.PointValue(e.Position)
	case PropSize:
		return animation.SizeValue(e.Size)
	case PropRotation:
		return animation.Double(e.Rotation)
	case PropOpacity:
		return animation.Double(e.Opacity)
	case PropColor:
		return animation.ColorValue(e.Color)
	case PropText:
		return animation.StringValue(e.Text)
	case PropFontSize:
		return animation.Double(e.FontSize)
	}
	return animation.Value{}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
