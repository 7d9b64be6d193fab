package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/gogpu/gg"

	"github.com/ivlev/motion2video/internal/animation"
	"github.com/ivlev/motion2video/internal/canvas"
	"github.com/ivlev/motion2video/internal/source"
)

var ErrFrameSize = errors.New("renderer: destination buffer has wrong size")

// bound for the converted-image cache; video frames churn through it
const maxImageBufs = 64

type Option func(*Compositor)

// WithBackground sets the color every frame is cleared to.
func WithBackground(col animation.Color) Option {
	return func(c *Compositor) {
		r, g, b, a := col.SRGB()
		c.background = gg.RGBA2(r, g, b, a)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) {
		c.logger = logger
	}
}

// Compositor rasterizes canvas snapshots into fixed-size RGBA frames. It
// keeps one drawing surface and must not be used from several goroutines
// at once.
type Compositor struct {
	width, height int
	assets        source.Assets
	background    gg.RGBA
	logger        *slog.Logger

	pm *gg.Pixmap
	dc *gg.Context

	fonts fontCache
	bufs  map[image.Image]*gg.ImageBuf
}

// NewCompositor creates a compositor producing width x height frames.
// assets may be nil, in which case image and video elements render as
// placeholders.
func NewCompositor(width, height int, assets source.Assets, opts ...Option) *Compositor {
	c := &Compositor{
		width:      width,
		height:     height,
		assets:     assets,
		background: gg.White,
		logger:     slog.New(slog.DiscardHandler),
		bufs:       make(map[image.Image]*gg.ImageBuf),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "compositor")
	c.pm = gg.NewPixmap(width, height)
	c.dc = gg.NewContext(width, height, gg.WithPixmap(c.pm))
	return c
}

func (c *Compositor) Width() int  { return c.width }
func (c *Compositor) Height() int { return c.height }

// FrameSize is the byte length of one tightly packed RGBA frame.
func (c *Compositor) FrameSize() int {
	return c.width * c.height * 4
}

// Render draws snap and returns a copy of the resulting frame.
func (c *Compositor) Render(ctx context.Context, snap canvas.Snapshot) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	if err := c.RenderInto(ctx, img.Pix, snap); err != nil {
		return nil, err
	}
	return img, nil
}

// RenderInto draws snap into dst, which must hold exactly FrameSize bytes
// laid out row by row with a stride of 4*width.
func (c *Compositor) RenderInto(ctx context.Context, dst []byte, snap canvas.Snapshot) error {
	if len(dst) != c.FrameSize() {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(dst), c.FrameSize())
	}

	c.dc.ResetClip()
	c.dc.ClearWithColor(c.background)

	tf := Fit(snap.CanvasWidth, snap.CanvasHeight, float64(c.width), float64(c.height))
	for _, el := range snap.Elements {
		if err := c.drawElement(ctx, el, tf, snap.Time); err != nil {
			return fmt.Errorf("draw %s %q: %w", el.Type, el.ID, err)
		}
	}

	if err := c.dc.FlushGPU(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	copy(dst, c.pm.Data())
	return nil
}

func (c *Compositor) drawElement(ctx context.Context, el canvas.Element, tf Transform, t float64) error {
	opacity := math.Min(el.Opacity, 1)
	if opacity <= 0 {
		return nil
	}
	r := tf.Apply(el.Position, el.Size)
	if r.Empty() {
		return nil
	}

	switch el.Type {
	case canvas.Rectangle, canvas.Ellipse:
		return c.drawShape(el, r, opacity)
	case canvas.Text:
		if el.Text == "" {
			return nil
		}
		w, h := layerSize(r)
		layer, err := c.textLayer(el, w, h, fontSize(el, tf.Scale, r.H), toRGBA(el.Color))
		if err != nil {
			return err
		}
		c.placeLayer(layer, r, el.Rotation, opacity, false)
	case canvas.Image, canvas.Video:
		layer, ok := c.asset(ctx, el, t-el.VideoStartTime, r)
		c.placeLayer(layer, r, el.Rotation, opacity, ok)
	default:
		c.logger.Debug("skipping element of unknown type", "id", el.ID, "type", el.Type)
	}
	return nil
}

func (c *Compositor) drawShape(el canvas.Element, r Rect, opacity float64) error {
	dc := c.dc
	dc.Push()
	defer dc.Pop()

	cx, cy := r.Center()
	if el.Rotation != 0 {
		dc.RotateAbout(radians(el.Rotation), cx, cy)
	}
	if el.Type == canvas.Ellipse {
		dc.DrawEllipse(cx, cy, r.W/2, r.H/2)
	} else {
		dc.DrawRectangle(r.X, r.Y, r.W, r.H)
	}
	col := toRGBA(el.Color)
	dc.SetRGBA(col.R, col.G, col.B, col.A*opacity)
	return dc.Fill()
}

// asset resolves the still or video frame for el, falling back to a
// placeholder when it cannot be loaded. ok reports whether the asset
// itself was returned.
func (c *Compositor) asset(ctx context.Context, el canvas.Element, at float64, r Rect) (image.Image, bool) {
	if c.assets == nil {
		return c.placeholder(r), false
	}
	var img image.Image
	var err error
	if el.Type == canvas.Video {
		img, err = c.assets.VideoFrame(ctx, el.AssetURL, math.Max(at, 0))
	} else {
		img, err = c.assets.Image(ctx, el.AssetURL)
	}
	if err != nil || img == nil || img.Bounds().Empty() {
		c.logger.Debug("asset unavailable, drawing placeholder", "id", el.ID, "url", el.AssetURL, "err", err)
		return c.placeholder(r), false
	}
	return img, true
}

var (
	placeholderFill  = gg.RGB(0.85, 0.85, 0.85)
	placeholderLabel = gg.RGB(0.45, 0.45, 0.45)
)

func (c *Compositor) placeholder(r Rect) image.Image {
	w, h := layerSize(r)
	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.ClearWithColor(placeholderFill)

	size := math.Max(math.Min(float64(h)*0.25, 32), minFontSize)
	if face, err := c.fonts.face(size); err == nil {
		dc.SetFont(face)
		dc.SetColor(placeholderLabel.Color())
		dc.DrawStringAnchored("error", float64(w)/2, float64(h)/2, 0.5, 0.5)
	}
	_ = dc.FlushGPU()
	return dc.Image()
}

// imageBuf converts img for drawing. With reuse the conversion is kept
// and shared while img stays cached upstream.
func (c *Compositor) imageBuf(img image.Image, reuse bool) *gg.ImageBuf {
	if !reuse {
		return gg.ImageBufFromImage(img)
	}
	if buf, ok := c.bufs[img]; ok {
		return buf
	}
	if len(c.bufs) >= maxImageBufs {
		clear(c.bufs)
	}
	buf := gg.ImageBufFromImage(img)
	c.bufs[img] = buf
	return buf
}

// Close releases the drawing surface.
func (c *Compositor) Close() error {
	clear(c.bufs)
	return c.dc.Close()
}

func toRGBA(col animation.Color) gg.RGBA {
	r, g, b, a := col.SRGB()
	return gg.RGBA2(r, g, b, a)
}

func layerSize(r Rect) (int, int) {
	return max(1, int(math.Ceil(r.W))), max(1, int(math.Ceil(r.H)))
}
