package renderer

import (
	"fmt"
	"image"
	"math"
	"strings"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ivlev/motion2video/internal/canvas"
)

const (
	// text never grows taller than this share of its box
	maxFontRatio = 0.8
	minFontSize  = 1.0
)

// fontCache hands out faces of one font source keyed by pixel size.
type fontCache struct {
	once   sync.Once
	source *text.FontSource
	err    error

	mu    sync.Mutex
	faces map[float64]text.Face
}

func (fc *fontCache) face(size float64) (text.Face, error) {
	fc.once.Do(func() {
		fc.source, fc.err = text.NewFontSource(goregular.TTF)
		if fc.err != nil {
			fc.err = fmt.Errorf("load font: %w", fc.err)
		}
	})
	if fc.err != nil {
		return nil, fc.err
	}

	// half-pixel steps keep the cache small during font size animations
	size = math.Round(size*2) / 2

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.faces == nil {
		fc.faces = make(map[float64]text.Face)
	}
	f, ok := fc.faces[size]
	if !ok {
		f = fc.source.Face(size)
		fc.faces[size] = f
	}
	return f, nil
}

// fontSize scales the element font with the letterbox and caps it to the
// box height.
func fontSize(el canvas.Element, scale, boxH float64) float64 {
	size := el.FontSize * scale
	if limit := boxH * maxFontRatio; size > limit {
		size = limit
	}
	return math.Max(size, minFontSize)
}

// textLayer lays out el.Text inside a w x h box. Lines are stacked and
// centered vertically; the horizontal anchor follows the alignment.
func (c *Compositor) textLayer(el canvas.Element, w, h int, size float64, col gg.RGBA) (image.Image, error) {
	face, err := c.fonts.face(size)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.SetFont(face)
	dc.SetColor(col.Color())

	x, ax := 0.0, 0.0
	switch el.TextAlignment {
	case canvas.AlignCenter:
		x, ax = float64(w)/2, 0.5
	case canvas.AlignTrailing:
		x, ax = float64(w), 1
	}

	lines := strings.Split(el.Text, "\n")
	_, lineH := dc.MeasureString("Mg")
	top := (float64(h) - lineH*float64(len(lines))) / 2
	for i, line := range lines {
		if line == "" {
			continue
		}
		// ay=0 anchors the line by its top edge
		dc.DrawStringAnchored(line, x, top+lineH*float64(i), ax, 0)
	}
	if err := dc.FlushGPU(); err != nil {
		return nil, err
	}
	return dc.Image(), nil
}
