package animation

import (
	"sort"
	"strings"
	"sync"
)

// Keyframe pins a value at an instant. The easing shapes the segment that
// starts at this keyframe.
type Keyframe struct {
	Time   float64
	Value  Value
	Easing Easing
}

// UpdateFunc applies a resolved value back onto external element state.
type UpdateFunc func(v Value)

// Track is the ordered keyframe sequence of one animatable property.
// Keyframe times are unique and kept ascending.
type Track struct {
	id     string
	update UpdateFunc

	mu        sync.RWMutex
	keyframes []Keyframe
}

func newTrack(id string, update UpdateFunc) *Track {
	return &Track{id: id, update: update}
}

func (tr *Track) ID() string { return tr.id }

// Len returns the number of keyframes.
func (tr *Track) Len() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.keyframes)
}

// Keyframes returns a copy of the keyframes in time order.
func (tr *Track) Keyframes() []Keyframe {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return append([]Keyframe(nil), tr.keyframes...)
}

// Add inserts kf, replacing any keyframe at the same time.
func (tr *Track) Add(kf Keyframe) {
	if kf.Time < 0 {
		kf.Time = 0
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()

	i := sort.Search(len(tr.keyframes), func(i int) bool { return tr.keyframes[i].Time >= kf.Time })
	if i < len(tr.keyframes) && tr.keyframes[i].Time == kf.Time {
		tr.keyframes[i] = kf
		return
	}
	tr.keyframes = append(tr.keyframes, Keyframe{})
	copy(tr.keyframes[i+1:], tr.keyframes[i:])
	tr.keyframes[i] = kf
}

// RemoveKeyframe deletes the keyframe at exactly time t, if any.
func (tr *Track) RemoveKeyframe(t float64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	i := sort.Search(len(tr.keyframes), func(i int) bool { return tr.keyframes[i].Time >= t })
	if i < len(tr.keyframes) && tr.keyframes[i].Time == t {
		tr.keyframes = append(tr.keyframes[:i], tr.keyframes[i+1:]...)
	}
}

// ValueAt resolves the track at time t. The boolean is false for an empty
// track, in which case no value must be applied.
func (tr *Track) ValueAt(t float64) (Value, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return valueAt(tr.keyframes, t)
}

func valueAt(keyframes []Keyframe, t float64) (Value, bool) {
	if len(keyframes) == 0 {
		return Value{}, false
	}

	// If before first keyframe, use first keyframe
	if t <= keyframes[0].Time {
		return keyframes[0].Value, true
	}

	// If after last keyframe, use last keyframe
	last := keyframes[len(keyframes)-1]
	if t >= last.Time {
		return last.Value, true
	}

	// First keyframe strictly after t; its predecessor brackets t.
	i := sort.Search(len(keyframes), func(i int) bool { return keyframes[i].Time > t })
	a, b := keyframes[i-1], keyframes[i]
	if t == a.Time {
		return a.Value, true
	}

	p := clamp01((t - a.Time) / (b.Time - a.Time))
	return Interpolate(a.Value, b.Value, a.Easing.Apply(p)), true
}

func (tr *Track) apply(t float64) {
	if tr.update == nil {
		return
	}
	if v, ok := tr.ValueAt(t); ok {
		tr.update(v)
	}
}

// TrackID builds the conventional "<elementID>_<propertyName>" track id.
func TrackID(elementID, property string) string {
	return elementID + "_" + property
}

// ParseTrackID splits a track id into element id and property name.
// Property names never contain an underscore, element ids may.
func ParseTrackID(id string) (elementID, property string, ok bool) {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}
