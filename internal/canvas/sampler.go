package canvas

import (
	"context"

	"github.com/ivlev/motion2video/internal/animation"
)

// TimeSetter moves a timeline and synchronously applies every track.
// Both *animation.Controller and *animation.Lease satisfy it.
type TimeSetter interface {
	SetCurrentTime(t float64)
}

// Snapshot is the element set with every animated property resolved at one
// instant. It is rendered once and then dropped.
type Snapshot struct {
	Time         float64
	CanvasWidth  float64
	CanvasHeight float64
	Elements     []Element
}

// Sample resolves doc at time t. The time set and the element copy both run
// on the owner context, in that order, and Sample returns only after both
// completed; the copy therefore always reflects t. Values are not computed
// here: the same track dispatch used for live scrubbing writes them into doc.
func Sample(ctx context.Context, owner animation.Owner, doc *Document, timeline TimeSetter, t float64) (Snapshot, error) {
	snap := Snapshot{Time: t, CanvasWidth: doc.Width, CanvasHeight: doc.Height}
	err := owner.Do(ctx, func() {
		timeline.SetCurrentTime(t)
		snap.Elements = doc.Elements()
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
