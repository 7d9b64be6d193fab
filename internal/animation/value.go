package animation

import (
	"fmt"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindInvalid Kind = iota
	KindDouble
	KindPoint
	KindSize
	KindColor
	KindString
	KindPointList
)

var kindTags = map[Kind]string{
	KindDouble:    "Double",
	KindPoint:     "Point",
	KindSize:      "Size",
	KindColor:     "Color",
	KindString:    "String",
	KindPointList: "PointList",
}

// String returns the serialization tag of the kind.
func (k Kind) String() string {
	if tag, ok := kindTags[k]; ok {
		return tag
	}
	return "Invalid"
}

// ParseKind maps a value-type tag from a project file back to a Kind.
// Older project files used the platform type names, those are accepted too.
func ParseKind(tag string) (Kind, error) {
	switch strings.TrimSpace(tag) {
	case "Double", "CGFloat", "Float":
		return KindDouble, nil
	case "Point", "CGPoint":
		return KindPoint, nil
	case "Size", "CGSize":
		return KindSize, nil
	case "Color":
		return KindColor, nil
	case "String":
		return KindString, nil
	case "PointList", "[CGPoint]":
		return KindPointList, nil
	}
	return KindInvalid, fmt.Errorf("unknown value type %q", tag)
}

// Point is a 2D position in canvas units.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Size is a 2D extent in canvas units.
type Size struct {
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// Value is a closed tagged union over the animatable value kinds.
// Only the field matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Num    float64
	Point  Point
	Size   Size
	Color  Color
	Str    string
	Points []Point
}

func Double(v float64) Value          { return Value{Kind: KindDouble, Num: v} }
func PointValue(p Point) Value        { return Value{Kind: KindPoint, Point: p} }
func SizeValue(s Size) Value          { return Value{Kind: KindSize, Size: s} }
func ColorValue(c Color) Value        { return Value{Kind: KindColor, Color: c} }
func StringValue(s string) Value      { return Value{Kind: KindString, Str: s} }
func PointListValue(ps []Point) Value { return Value{Kind: KindPointList, Points: append([]Point(nil), ps...)} }

// Equal reports whether two values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindDouble:
		return v.Num == o.Num
	case KindPoint:
		return v.Point == o.Point
	case KindSize:
		return v.Size == o.Size
	case KindColor:
		return v.Color == o.Color
	case KindString:
		return v.Str == o.Str
	case KindPointList:
		if len(v.Points) != len(o.Points) {
			return false
		}
		for i := range v.Points {
			if v.Points[i] != o.Points[i] {
				return false
			}
		}
		return true
	}
	return true
}

func (v Value) String() string {
	switch v.Kind {
	case KindDouble:
		return fmt.Sprintf("%g", v.Num)
	case KindPoint:
		return fmt.Sprintf("(%g, %g)", v.Point.X, v.Point.Y)
	case KindSize:
		return fmt.Sprintf("%gx%g", v.Size.W, v.Size.H)
	case KindColor:
		return v.Color.String()
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindPointList:
		return fmt.Sprintf("%d points", len(v.Points))
	}
	return "<invalid>"
}

// Interpolate blends a toward b by the eased phase p.
// Numeric variants are interpolated component-wise. Strings, point lists
// and mismatched kinds do not interpolate: a is held until p reaches 1.
func Interpolate(a, b Value, p float64) Value {
	p = clamp01(p)
	if a.Kind != b.Kind {
		return step(a, b, p)
	}
	switch a.Kind {
	case KindDouble:
		return Double(lerp(a.Num, b.Num, p))
	case KindPoint:
		return PointValue(Point{X: lerp(a.Point.X, b.Point.X, p), Y: lerp(a.Point.Y, b.Point.Y, p)})
	case KindSize:
		return SizeValue(Size{W: lerp(a.Size.W, b.Size.W, p), H: lerp(a.Size.H, b.Size.H, p)})
	case KindColor:
		return ColorValue(a.Color.Blend(b.Color, p))
	}
	return step(a, b, p)
}

func step(a, b Value, p float64) Value {
	if p >= 1 {
		return b
	}
	return a
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
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
