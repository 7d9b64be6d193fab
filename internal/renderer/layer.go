package renderer

import (
	"image"
	"math"

	"github.com/gogpu/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// placeLayer scales layer into r, rotates it about the center of r and
// composites it with the given opacity. Image blits in gg ignore rotation,
// so rotated layers are resampled into their bounding box first. Layers
// that stay alive across frames (decoded assets) set reuse.
func (c *Compositor) placeLayer(layer image.Image, r Rect, rotation, opacity float64, reuse bool) {
	if layer == nil {
		return
	}
	// queued shapes must land before the blit
	_ = c.dc.FlushGPU()

	if math.Mod(rotation, 360) == 0 {
		buf := c.imageBuf(layer, reuse)
		c.dc.DrawImageEx(buf, gg.DrawImageOptions{
			X:             r.X,
			Y:             r.Y,
			DstWidth:      r.W,
			DstHeight:     r.H,
			Interpolation: gg.InterpBilinear,
			Opacity:       opacity,
		})
		return
	}

	rotated, ox, oy := rotateLayer(layer, r, radians(rotation))
	c.dc.DrawImageEx(gg.ImageBufFromImage(rotated), gg.DrawImageOptions{
		X:             ox,
		Y:             oy,
		Interpolation: gg.InterpNearest,
		Opacity:       opacity,
	})
}

// rotateLayer renders layer, stretched to r.W x r.H and rotated clockwise
// by theta, into a new image covering the rotated bounds. It returns the
// image and its top-left corner in frame pixels.
func rotateLayer(layer image.Image, r Rect, theta float64) (*image.RGBA, float64, float64) {
	sin, cos := math.Sincos(theta)
	bw := math.Abs(r.W*cos) + math.Abs(r.H*sin)
	bh := math.Abs(r.W*sin) + math.Abs(r.H*cos)
	dw, dh := int(math.Ceil(bw))+2, int(math.Ceil(bh))+2
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	sb := layer.Bounds()
	sx := r.W / float64(sb.Dx())
	sy := r.H / float64(sb.Dy())
	// source center, in source coordinates
	scx := float64(sb.Min.X) + float64(sb.Dx())/2
	scy := float64(sb.Min.Y) + float64(sb.Dy())/2

	a, b := cos*sx, -sin*sy
	d, e := sin*sx, cos*sy
	m := f64.Aff3{
		a, b, float64(dw)/2 - a*scx - b*scy,
		d, e, float64(dh)/2 - d*scx - e*scy,
	}
	draw.BiLinear.Transform(dst, m, layer, sb, draw.Over, nil)

	cx, cy := r.Center()
	return dst, cx - float64(dw)/2, cy - float64(dh)/2
}
