package animation

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Named color spaces a Color may carry. The space only changes how two
// colors blend; storage is always linear RGB.
const (
	SpaceSRGB   = "srgb"
	SpaceLinear = "linear"
	SpaceLab    = "lab"
	SpaceHCL    = "hcl"
)

// Color holds linear-light RGB components and straight alpha, all in [0,1].
type Color struct {
	R, G, B, A float64
	Space      string
}

// RGBA builds a color from gamma-encoded sRGB components, the form colors
// are usually authored in.
func RGBA(r, g, b, a float64) Color {
	lr, lg, lb := colorful.Color{R: r, G: g, B: b}.LinearRgb()
	return Color{R: lr, G: lg, B: lb, A: a}
}

// LinearRGBA builds a color from components that are already linear.
func LinearRGBA(r, g, b, a float64) Color {
	return Color{R: r, G: g, B: b, A: a}
}

// ParseHexColor parses "#rgb", "#rrggbb" or "#rrggbbaa".
func ParseHexColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	alpha := 1.0
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("parse alpha of %q: %w", s, err)
		}
		alpha = float64(a) / 255
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, err
	}
	return RGBA(c.R, c.G, c.B, alpha), nil
}

// InSpace returns a copy of c tagged with the named blend space.
func (c Color) InSpace(space string) Color {
	c.Space = strings.ToLower(space)
	return c
}

func (c Color) colorful() colorful.Color {
	return colorful.LinearRgb(c.R, c.G, c.B)
}

// Blend interpolates toward o. Channels are blended in linear RGB unless
// both colors name the same perceptual space.
func (c Color) Blend(o Color, p float64) Color {
	switch {
	case p <= 0:
		return c
	case p >= 1:
		return o
	}

	out := Color{A: lerp(c.A, o.A, p), Space: c.Space}
	space := c.Space
	if o.Space != space {
		space = ""
	}

	switch space {
	case SpaceLab:
		out.R, out.G, out.B = c.colorful().BlendLab(o.colorful(), p).Clamped().LinearRgb()
	case SpaceHCL:
		out.R, out.G, out.B = c.colorful().BlendHcl(o.colorful(), p).Clamped().LinearRgb()
	default:
		out.R = lerp(c.R, o.R, p)
		out.G = lerp(c.G, o.G, p)
		out.B = lerp(c.B, o.B, p)
	}
	return out
}

// SRGB returns gamma-encoded components suitable for painting.
func (c Color) SRGB() (r, g, b, a float64) {
	s := c.colorful().Clamped()
	return s.R, s.G, s.B, clamp01(c.A)
}

// NRGBA converts to the standard library's non-premultiplied color.
func (c Color) NRGBA() color.NRGBA {
	r, g, b, a := c.SRGB()
	return color.NRGBA{
		R: uint8(r*255 + 0.5),
		G: uint8(g*255 + 0.5),
		B: uint8(b*255 + 0.5),
		A: uint8(a*255 + 0.5),
	}
}

// Hex formats the color as "#rrggbb" or "#rrggbbaa" when not opaque.
func (c Color) Hex() string {
	n := c.NRGBA()
	if n.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", n.R, n.G, n.B, n.A)
}

func (c Color) String() string {
	if c.Space != "" {
		return c.Hex() + "@" + c.Space
	}
	return c.Hex()
}
