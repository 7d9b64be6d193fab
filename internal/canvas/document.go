package canvas

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ivlev/motion2video/internal/animation"
)

var (
	ErrDuplicateElement = errors.New("canvas: duplicate element id")
	ErrUnknownElement   = errors.New("canvas: unknown element")
	ErrUnknownProperty  = errors.New("canvas: unknown property")
)

// Document is the ordered element collection of one canvas. Slice order is
// z-order: later elements draw on top.
type Document struct {
	Width, Height float64

	mu       sync.RWMutex
	elements []Element
	logger   *slog.Logger
}

func NewDocument(width, height float64) *Document {
	return &Document{
		Width:  width,
		Height: height,
		logger: slog.New(slog.DiscardHandler),
	}
}

// SetLogger sets where dropped property updates are reported.
func (d *Document) SetLogger(l *slog.Logger) {
	if l != nil {
		d.logger = l.With("component", "canvas")
	}
}

// Add appends e on top of the existing elements.
func (d *Document) Add(e Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index(e.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateElement, e.ID)
	}
	d.elements = append(d.elements, e)
	return nil
}

// Remove deletes the element and, when ctrl is given, every track driving it.
func (d *Document) Remove(id string, ctrl *animation.Controller) bool {
	d.mu.Lock()
	i := d.index(id)
	if i >= 0 {
		d.elements = append(d.elements[:i], d.elements[i+1:]...)
	}
	d.mu.Unlock()

	if ctrl != nil {
		ctrl.RemoveTracksForElement(id)
	}
	return i >= 0
}

// Elements returns a copy of the elements in z-order.
func (d *Document) Elements() []Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Element(nil), d.elements...)
}

// Len returns the number of elements.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.elements)
}

func (d *Document) Element(id string) (Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.index(id); i >= 0 {
		return d.elements[i], true
	}
	return Element{}, false
}

// Update replaces the stored element with the same id.
func (d *Document) Update(e Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.index(e.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownElement, e.ID)
	}
	d.elements[i] = e
	return nil
}

func (d *Document) index(id string) int {
	for i := range d.elements {
		if d.elements[i].ID == id {
			return i
		}
	}
	return -1
}

// Setter returns the update func for one property of one element. The
// element is looked up by id on every call, so reordering or deleting
// elements never leaves a setter pointing at the wrong slot.
func (d *Document) Setter(elementID, property string) (animation.UpdateFunc, error) {
	prop, ok := LookupProperty(property)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, property)
	}
	return func(v animation.Value) {
		if v.Kind != prop.Kind {
			d.logger.Debug("value kind mismatch", "element", elementID, "property", property, "kind", v.Kind)
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		i := d.index(elementID)
		if i < 0 {
			d.logger.Debug("update for missing element", "element", elementID, "property", property)
			return
		}
		prop.set(&d.elements[i], v)
	}, nil
}

// Animate makes a property animatable, registering its track on first use.
func (d *Document) Animate(ctrl *animation.Controller, elementID, property string) (*animation.Track, error) {
	if _, ok := d.Element(elementID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownElement, elementID)
	}
	setter, err := d.Setter(elementID, property)
	if err != nil {
		return nil, err
	}
	return ctrl.AddTrack(animation.TrackID(elementID, property), setter), nil
}
