package animation

import (
	"math"
	"testing"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func opacityTrack() *Track {
	tr := newTrack("rect1_opacity", nil)
	tr.Add(Keyframe{Time: 0.0, Value: Double(1.0)})
	tr.Add(Keyframe{Time: 1.5, Value: Double(0.3)})
	tr.Add(Keyframe{Time: 3.0, Value: Double(1.0)})
	return tr
}

func TestValueAtOpacityScenario(t *testing.T) {
	tr := opacityTrack()

	tests := []struct {
		time     float64
		expected float64
	}{
		{-1.0, 1.0},  // Before first keyframe
		{0.0, 1.0},   // First keyframe
		{0.75, 0.65}, // Midpoint of first segment
		{1.5, 0.3},   // Second keyframe
		{2.25, 0.65}, // Midpoint of second segment
		{3.0, 1.0},   // Last keyframe
		{4.0, 1.0},   // After last keyframe
	}

	for _, tt := range tests {
		v, ok := tr.ValueAt(tt.time)
		if !ok {
			t.Fatalf("At time %.2f: expected a value", tt.time)
		}
		if abs(v.Num-tt.expected) > 1e-9 {
			t.Errorf("At time %.2f: expected opacity %.3f, got %.6f", tt.time, tt.expected, v.Num)
		}
	}
}

func TestValueAtEmptyTrack(t *testing.T) {
	called := false
	tr := newTrack("e_opacity", func(Value) { called = true })

	if _, ok := tr.ValueAt(1.0); ok {
		t.Error("Expected no value for empty track")
	}
	tr.apply(1.0)
	if called {
		t.Error("Update must not be invoked for empty track")
	}
}

func TestValueAtExactHitIgnoresEasing(t *testing.T) {
	for _, easing := range []Easing{Linear, EaseIn, EaseOut, EaseInOut} {
		t.Run(easing.String(), func(t *testing.T) {
			tr := newTrack("e_x", nil)
			values := []float64{3, -7.25, 12.5, 0.1}
			for i, v := range values {
				tr.Add(Keyframe{Time: float64(i) * 0.4, Value: Double(v), Easing: easing})
			}
			for i, v := range values {
				got, _ := tr.ValueAt(float64(i) * 0.4)
				if got.Num != v {
					t.Errorf("keyframe %d: expected exactly %v, got %v", i, v, got.Num)
				}
			}
		})
	}
}

func TestValueAtLinearMonotonic(t *testing.T) {
	tr := newTrack("e_x", nil)
	tr.Add(Keyframe{Time: 1, Value: Double(10)})
	tr.Add(Keyframe{Time: 3, Value: Double(-4)})

	prev := math.Inf(1)
	for i := 0; i <= 100; i++ {
		v, _ := tr.ValueAt(1 + 2*float64(i)/100)
		if v.Num > prev {
			t.Fatalf("not monotonic at step %d: %v > %v", i, v.Num, prev)
		}
		prev = v.Num
	}

	mid, _ := tr.ValueAt(2)
	if abs(mid.Num-3) > 1e-12 {
		t.Errorf("Expected midpoint 3, got %v", mid.Num)
	}
}

func TestTrackAddReplacesSameTime(t *testing.T) {
	tr := newTrack("e_x", nil)
	tr.Add(Keyframe{Time: 2, Value: Double(2)})
	tr.Add(Keyframe{Time: 0, Value: Double(0)})
	tr.Add(Keyframe{Time: 1, Value: Double(1)})
	tr.Add(Keyframe{Time: 1, Value: Double(5)})

	kfs := tr.Keyframes()
	if len(kfs) != 3 {
		t.Fatalf("Expected 3 keyframes, got %d", len(kfs))
	}
	for i, kf := range kfs {
		if kf.Time != float64(i) {
			t.Errorf("keyframe %d has time %v", i, kf.Time)
		}
	}
	if kfs[1].Value.Num != 5 {
		t.Errorf("Expected last write to win, got %v", kfs[1].Value.Num)
	}

	tr.RemoveKeyframe(1.5)
	if tr.Len() != 3 {
		t.Errorf("RemoveKeyframe at missing time changed the track")
	}
	tr.RemoveKeyframe(1)
	if tr.Len() != 2 {
		t.Errorf("Expected 2 keyframes after removal, got %d", tr.Len())
	}
}

func TestValueAtStepsNonNumeric(t *testing.T) {
	tr := newTrack("e_text", nil)
	tr.Add(Keyframe{Time: 0, Value: StringValue("Hello")})
	tr.Add(Keyframe{Time: 1, Value: StringValue("World")})

	tests := []struct {
		time     float64
		expected string
	}{
		{0, "Hello"},
		{0.5, "Hello"},
		{0.999, "Hello"},
		{1, "World"},
		{2, "World"},
	}
	for _, tt := range tests {
		v, _ := tr.ValueAt(tt.time)
		if v.Str != tt.expected {
			t.Errorf("At %.3f: expected %q, got %q", tt.time, tt.expected, v.Str)
		}
	}
}

func TestValueAtPointAndSize(t *testing.T) {
	tr := newTrack("e_position", nil)
	tr.Add(Keyframe{Time: 0, Value: PointValue(Point{X: 0, Y: 100})})
	tr.Add(Keyframe{Time: 2, Value: PointValue(Point{X: 50, Y: 0})})

	v, _ := tr.ValueAt(1)
	if v.Kind != KindPoint || abs(v.Point.X-25) > 1e-9 || abs(v.Point.Y-50) > 1e-9 {
		t.Errorf("unexpected point %v", v)
	}

	sz := newTrack("e_size", nil)
	sz.Add(Keyframe{Time: 0, Value: SizeValue(Size{W: 10, H: 10}), Easing: EaseIn})
	sz.Add(Keyframe{Time: 1, Value: SizeValue(Size{W: 20, H: 30})})
	v, _ = sz.ValueAt(0.5)
	// easeIn(0.5) = 0.125
	if abs(v.Size.W-11.25) > 1e-9 || abs(v.Size.H-12.5) > 1e-9 {
		t.Errorf("unexpected size %v", v)
	}
}

func TestTrackID(t *testing.T) {
	id := TrackID("shape_7", "opacity")
	if id != "shape_7_opacity" {
		t.Fatalf("unexpected id %q", id)
	}
	el, prop, ok := ParseTrackID(id)
	if !ok || el != "shape_7" || prop != "opacity" {
		t.Errorf("ParseTrackID(%q) = %q, %q, %v", id, el, prop, ok)
	}

	for _, bad := range []string{"", "noseparator", "_opacity", "elem_"} {
		if _, _, ok := ParseTrackID(bad); ok {
			t.Errorf("ParseTrackID(%q) should fail", bad)
		}
	}
}
