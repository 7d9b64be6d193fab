package director

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/motion2video/internal/animation"
	"github.com/ivlev/motion2video/internal/canvas"
)

// Build creates the document described by p and registers its tracks on
// ctrl. The controller is set up with the project duration.
func (p *Project) Build(ctrl *animation.Controller) (*canvas.Document, error) {
	if p.Canvas.Width <= 0 || p.Canvas.Height <= 0 {
		return nil, fmt.Errorf("%w: canvas %gx%g", ErrInvalidProject, p.Canvas.Width, p.Canvas.Height)
	}
	doc := canvas.NewDocument(p.Canvas.Width, p.Canvas.Height)

	for i, item := range p.Elements {
		el, err := item.element()
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrInvalidProject, i, err)
		}
		if err := doc.Add(el); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidProject, err)
		}
	}

	// a project replaces the whole timeline
	ctrl.Reset()
	ctrl.Setup(p.Duration)
	for _, tr := range p.Tracks {
		if err := tr.bind(doc, ctrl); err != nil {
			return nil, fmt.Errorf("%w: track %q: %w", ErrInvalidProject, tr.ID, err)
		}
	}
	return doc, nil
}

func (e Element) element() (canvas.Element, error) {
	if e.ID == "" {
		return canvas.Element{}, fmt.Errorf("missing id")
	}
	typ, err := canvas.ParseElementType(e.Type)
	if err != nil {
		return canvas.Element{}, err
	}

	el := canvas.NewElement(e.ID, typ)
	el.Position = e.Position
	if e.Size != (animation.Size{}) {
		el.Size = e.Size
	}
	el.Rotation = e.Rotation
	if e.Opacity != nil {
		el.Opacity = *e.Opacity
	}
	if e.Color != "" {
		if el.Color, err = parseColor(e.Color); err != nil {
			return canvas.Element{}, err
		}
	}
	el.Text = e.Text
	if e.Alignment != "" {
		switch a := canvas.Alignment(e.Alignment); a {
		case canvas.AlignLeading, canvas.AlignCenter, canvas.AlignTrailing:
			el.TextAlignment = a
		default:
			return canvas.Element{}, fmt.Errorf("unknown alignment %q", e.Alignment)
		}
	}
	if e.FontSize > 0 {
		el.FontSize = e.FontSize
	}
	el.AssetURL = e.Asset
	el.VideoStartTime = e.VideoStart
	return el, nil
}

func (t Track) bind(doc *canvas.Document, ctrl *animation.Controller) error {
	elementID, property, ok := animation.ParseTrackID(t.ID)
	if !ok {
		return fmt.Errorf("malformed track id")
	}
	kind, err := animation.ParseKind(t.Type)
	if err != nil {
		return err
	}
	prop, ok := canvas.LookupProperty(property)
	if !ok {
		return fmt.Errorf("%w: %s", canvas.ErrUnknownProperty, property)
	}
	if prop.Kind != kind {
		return fmt.Errorf("property %s holds %s values, not %s", property, prop.Kind, kind)
	}

	track, err := doc.Animate(ctrl, elementID, property)
	if err != nil {
		return err
	}
	for i := range t.Keyframes {
		kf := &t.Keyframes[i]
		v, err := decodeValue(kind, &kf.Value)
		if err != nil {
			return fmt.Errorf("keyframe %d: %w", i, err)
		}
		easing, err := animation.ParseEasing(kf.Easing)
		if err != nil {
			return fmt.Errorf("keyframe %d: %w", i, err)
		}
		track.Add(animation.Keyframe{Time: kf.Time, Value: v, Easing: easing})
	}
	return nil
}

// Capture is the reverse of Build: it records the elements of doc and every
// track registered on ctrl.
func Capture(doc *canvas.Document, ctrl *animation.Controller) (*Project, error) {
	p := &Project{
		Version:  Version,
		Canvas:   Canvas{Width: doc.Width, Height: doc.Height},
		Duration: ctrl.Duration(),
	}
	for _, el := range doc.Elements() {
		opacity := el.Opacity
		p.Elements = append(p.Elements, Element{
			ID:         el.ID,
			Type:       string(el.Type),
			Position:   el.Position,
			Size:       el.Size,
			Rotation:   el.Rotation,
			Opacity:    &opacity,
			Color:      el.Color.String(),
			Text:       el.Text,
			Alignment:  string(el.TextAlignment),
			FontSize:   el.FontSize,
			Asset:      el.AssetURL,
			VideoStart: el.VideoStartTime,
		})
	}

	for _, id := range ctrl.Tracks() {
		tr, _ := ctrl.Track(id)
		if tr == nil || tr.Len() == 0 {
			continue
		}
		keyframes := tr.Keyframes()
		out := Track{ID: id, Type: keyframes[0].Value.Kind.String()}
		for _, kf := range keyframes {
			node, err := encodeValue(kf.Value)
			if err != nil {
				return nil, fmt.Errorf("track %q: %w", id, err)
			}
			out.Keyframes = append(out.Keyframes, Keyframe{
				Time:   kf.Time,
				Value:  *node,
				Easing: kf.Easing.String(),
			})
		}
		p.Tracks = append(p.Tracks, out)
	}
	return p, nil
}

// parseColor reads "#rrggbb", "#rrggbbaa", optionally suffixed with
// "@<space>" to pick the blend space.
func parseColor(s string) (animation.Color, error) {
	hex, space, _ := strings.Cut(s, "@")
	c, err := animation.ParseHexColor(hex)
	if err != nil {
		return animation.Color{}, err
	}
	if space != "" {
		c = c.InSpace(space)
	}
	return c, nil
}

func decodeValue(kind animation.Kind, n *yaml.Node) (animation.Value, error) {
	if n.Kind == 0 {
		return animation.Value{}, fmt.Errorf("missing value")
	}
	switch kind {
	case animation.KindDouble:
		var f float64
		if err := n.Decode(&f); err != nil {
			return animation.Value{}, err
		}
		return animation.Double(f), nil
	case animation.KindPoint:
		var p animation.Point
		if err := n.Decode(&p); err != nil {
			return animation.Value{}, err
		}
		return animation.PointValue(p), nil
	case animation.KindSize:
		var s animation.Size
		if err := n.Decode(&s); err != nil {
			return animation.Value{}, err
		}
		return animation.SizeValue(s), nil
	case animation.KindColor:
		var s string
		if err := n.Decode(&s); err != nil {
			return animation.Value{}, err
		}
		c, err := parseColor(s)
		if err != nil {
			return animation.Value{}, err
		}
		return animation.ColorValue(c), nil
	case animation.KindString:
		var s string
		if err := n.Decode(&s); err != nil {
			return animation.Value{}, err
		}
		return animation.StringValue(s), nil
	case animation.KindPointList:
		var ps []animation.Point
		if err := n.Decode(&ps); err != nil {
			return animation.Value{}, err
		}
		return animation.PointListValue(ps), nil
	}
	return animation.Value{}, fmt.Errorf("cannot decode %s values", kind)
}

func encodeValue(v animation.Value) (*yaml.Node, error) {
	var payload any
	switch v.Kind {
	case animation.KindDouble:
		payload = v.Num
	case animation.KindPoint:
		payload = v.Point
	case animation.KindSize:
		payload = v.Size
	case animation.KindColor:
		payload = v.Color.String()
	case animation.KindString:
		payload = v.Str
	case animation.KindPointList:
		payload = v.Points
	default:
		return nil, fmt.Errorf("cannot encode %s values", v.Kind)
	}
	var n yaml.Node
	if err := n.Encode(payload); err != nil {
		return nil, err
	}
	return &n, nil
}
