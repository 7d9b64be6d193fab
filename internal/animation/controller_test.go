package animation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAddTrackIdempotent(t *testing.T) {
	c := NewController()
	first := c.AddTrack("a_opacity", func(Value) {})
	first.Add(Keyframe{Time: 0, Value: Double(1)})

	second := c.AddTrack("a_opacity", nil)
	if first != second {
		t.Fatal("Expected the same track for the same id")
	}
	if second.Len() != 1 {
		t.Errorf("Expected 1 keyframe, got %d", second.Len())
	}
	if len(c.Tracks()) != 1 {
		t.Errorf("Expected 1 track, got %d", len(c.Tracks()))
	}
}

func TestRemoveTracksForElement(t *testing.T) {
	c := NewController()
	for _, id := range []string{"a_opacity", "a_position", "ab_opacity", "b_opacity"} {
		c.AddTrack(id, nil)
	}

	if n := c.RemoveTracksForElement("a"); n != 2 {
		t.Errorf("Expected 2 tracks removed, got %d", n)
	}

	ids := c.Tracks()
	want := []string{"ab_opacity", "b_opacity"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, ids)
		}
	}
}

func TestSetCurrentTimeDispatchesAndClamps(t *testing.T) {
	c := NewController()
	c.Setup(3)

	var got []float64
	tr := c.AddTrack("e_opacity", func(v Value) { got = append(got, v.Num) })
	tr.Add(Keyframe{Time: 0, Value: Double(1)})
	tr.Add(Keyframe{Time: 3, Value: Double(0)})

	empty := 0
	c.AddTrack("e_rotation", func(Value) { empty++ })

	c.SetCurrentTime(1.5)
	c.SetCurrentTime(10)
	c.SetCurrentTime(-2)

	if c.CurrentTime() != 0 {
		t.Errorf("Expected time clamped to 0, got %v", c.CurrentTime())
	}
	want := []float64{0.5, 0, 1}
	if len(got) != len(want) {
		t.Fatalf("Expected %d dispatches, got %v", len(want), got)
	}
	for i := range want {
		if abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("dispatch %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if empty != 0 {
		t.Errorf("Empty track dispatched %d times", empty)
	}
}

func TestSetupAndReset(t *testing.T) {
	c := NewController()
	c.AddTrack("e_opacity", nil)
	c.Setup(8)
	c.SetCurrentTime(4)

	c.Setup(2)
	if c.Duration() != 2 || c.CurrentTime() != 0 {
		t.Errorf("Setup: duration=%v time=%v", c.Duration(), c.CurrentTime())
	}
	if len(c.Tracks()) != 1 {
		t.Error("Setup must keep tracks")
	}

	c.Setup(-1)
	if c.Duration() != DefaultDuration {
		t.Errorf("Expected default duration for invalid input, got %v", c.Duration())
	}

	c.Reset()
	if len(c.Tracks()) != 0 || c.Duration() != DefaultDuration || c.CurrentTime() != 0 {
		t.Errorf("Reset left state behind: tracks=%v duration=%v", c.Tracks(), c.Duration())
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(100 * time.Millisecond)
	return f.now
}

func TestPlayAdvancesAndStopsAtEnd(t *testing.T) {
	c := NewController(WithClock(&fakeClock{}), WithTickInterval(time.Millisecond))
	c.Setup(1)

	if err := c.Play(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.IsPlaying() {
		t.Fatal("Playback did not stop at the end")
	}
	if c.CurrentTime() != 1 {
		t.Errorf("Expected time clamped to duration, got %v", c.CurrentTime())
	}
}

func TestPauseFreezesTime(t *testing.T) {
	c := NewController(WithClock(&fakeClock{}), WithTickInterval(time.Millisecond))
	c.Setup(1000)

	if err := c.Play(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	c.Pause()

	frozen := c.CurrentTime()
	if frozen <= 0 {
		t.Errorf("Expected time to advance while playing, got %v", frozen)
	}
	time.Sleep(10 * time.Millisecond)
	if c.CurrentTime() != frozen {
		t.Errorf("Time moved after pause: %v -> %v", frozen, c.CurrentTime())
	}
}

func TestLeaseBlocksScrubAndPlay(t *testing.T) {
	c := NewController(WithTickInterval(time.Hour))
	c.Setup(3)
	c.SetCurrentTime(1.2)
	if err := c.Play(); err != nil {
		t.Fatal(err)
	}

	lease, err := c.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Acquire(); !errors.Is(err, ErrExportInProgress) {
		t.Errorf("Expected ErrExportInProgress for second lease, got %v", err)
	}

	saved := lease.State()
	if !saved.Playing || saved.Time != 1.2 {
		t.Fatalf("unexpected captured state %+v", saved)
	}
	lease.Pause()

	c.SetCurrentTime(2.5)
	if c.CurrentTime() != 1.2 {
		t.Errorf("Scrub during export should be ignored, time is %v", c.CurrentTime())
	}
	if err := c.Play(); !errors.Is(err, ErrExportInProgress) {
		t.Errorf("Expected Play to be rejected, got %v", err)
	}

	lease.SetCurrentTime(2.0)
	if c.CurrentTime() != 2.0 {
		t.Errorf("Lease time set failed, time is %v", c.CurrentTime())
	}

	lease.Restore(saved)
	lease.Release()
	lease.Release()

	if !c.IsPlaying() || c.CurrentTime() != 1.2 {
		t.Errorf("Expected playing at 1.2 after restore, got playing=%v time=%v", c.IsPlaying(), c.CurrentTime())
	}
	c.Pause()

	if _, err := c.Acquire(); err != nil {
		t.Errorf("Expected lease to be available again: %v", err)
	}
}

func TestLoopRunsRequestsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop()
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	var seen []int
	for i := 0; i < 5; i++ {
		i := i
		if err := loop.Do(ctx, func() { seen = append(seen, i) }); err != nil {
			t.Fatal(err)
		}
		if len(seen) != i+1 {
			t.Fatalf("request %d not completed before Do returned", i)
		}
	}

	if err := loop.Do(ctx, func() { panic("boom") }); err == nil {
		t.Error("Expected panic to surface as error")
	}

	cancel()
	<-done
	if err := loop.Do(context.Background(), func() {}); !errors.Is(err, ErrOwnerStopped) {
		t.Errorf("Expected ErrOwnerStopped, got %v", err)
	}
}

func TestInlineOwner(t *testing.T) {
	ran := false
	if err := (Inline{}).Do(context.Background(), func() { ran = true }); err != nil || !ran {
		t.Errorf("Inline.Do: ran=%v err=%v", ran, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Inline{}).Do(ctx, func() { t.Error("must not run") }); err == nil {
		t.Error("Expected context error")
	}
}
