package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/ivlev/motion2video/internal/animation"
	"github.com/ivlev/motion2video/internal/canvas"
	"github.com/ivlev/motion2video/internal/events"
	"github.com/ivlev/motion2video/internal/video"
)

// fakeMuxer records every appended frame.
type fakeMuxer struct {
	mu       sync.Mutex
	frames   []video.Frame
	finished bool
	aborted  bool
	abortErr error

	onAppend func(f video.Frame) error
}

func (m *fakeMuxer) WaitReady(ctx context.Context) error { return ctx.Err() }

func (m *fakeMuxer) Append(ctx context.Context, f video.Frame) error {
	if m.onAppend != nil {
		if err := m.onAppend(f); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Pix = append([]byte(nil), f.Pix...)
	m.frames = append(m.frames, f)
	return nil
}

func (m *fakeMuxer) Finish(ctx context.Context) (video.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
	return video.Asset{Path: "fake", Frames: len(m.frames)}, nil
}

func (m *fakeMuxer) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
	return m.abortErr
}

func opener(m video.Muxer) video.Opener {
	return func(ctx context.Context, dest string, p video.Params) (video.Muxer, error) {
		return m, nil
	}
}

// scene is a 3 second document with one rectangle fading out and back in.
// The clock track records every time the export samples.
func scene(t *testing.T) (*canvas.Document, *animation.Controller, *[]float64) {
	t.Helper()
	doc := canvas.NewDocument(320, 180)
	ctrl := animation.NewController(animation.WithTickInterval(time.Hour))
	ctrl.Setup(3)

	el := canvas.NewElement("E", canvas.Rectangle)
	el.Position = animation.Point{X: 40, Y: 40}
	el.Color = animation.RGBA(1, 0, 0, 1)
	if err := doc.Add(el); err != nil {
		t.Fatal(err)
	}
	tr, err := doc.Animate(ctrl, "E", canvas.PropOpacity)
	if err != nil {
		t.Fatal(err)
	}
	tr.Add(animation.Keyframe{Time: 0, Value: animation.Double(1.0)})
	tr.Add(animation.Keyframe{Time: 1.5, Value: animation.Double(0.3)})
	tr.Add(animation.Keyframe{Time: 3.0, Value: animation.Double(1.0)})

	var sampled []float64
	clock := ctrl.AddTrack("clock_time", func(v animation.Value) { sampled = append(sampled, v.Num) })
	clock.Add(animation.Keyframe{Time: 0, Value: animation.Double(0)})
	clock.Add(animation.Keyframe{Time: 3, Value: animation.Double(3)})
	return doc, ctrl, &sampled
}

func request(doc *canvas.Document, ctrl *animation.Controller) Request {
	return Request{
		Width:       64,
		Height:      36,
		FrameRate:   30,
		Document:    doc,
		Controller:  ctrl,
		Destination: "out.mp4",
	}
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		duration, rate float64
		want           int
	}{
		{3.0, 30, 90},
		{3.03, 30, 90},
		{2.3, 10, 23},
		{1.0, 29.97, 29},
		{0.01, 30, 0},
		{0, 30, 0},
		{1, 0, 0},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.duration, tt.rate); got != tt.want {
			t.Errorf("FrameCount(%v, %v) = %d, want %d", tt.duration, tt.rate, got, tt.want)
		}
	}
}

func TestExportFramesAndTimestamps(t *testing.T) {
	defer leaktest.Check(t)()

	doc, ctrl, sampled := scene(t)
	m := &fakeMuxer{}
	e := NewExporter(opener(m), nil)

	res, err := e.Export(context.Background(), request(doc, ctrl), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusFinished || e.Status() != StatusFinished {
		t.Errorf("Expected finished, got %v / %v", res.Status, e.Status())
	}
	if res.Frames != 90 || len(m.frames) != 90 || !m.finished || m.aborted {
		t.Fatalf("Expected 90 finished frames, got result %d, muxer %d (finished %v, aborted %v)", res.Frames, len(m.frames), m.finished, m.aborted)
	}
	if res.Job == "" {
		t.Error("Expected a job id")
	}

	for i, f := range m.frames {
		if f.Index != i {
			t.Errorf("Frame %d has index %d", i, f.Index)
		}
		if i > 0 && f.PTS <= m.frames[i-1].PTS {
			t.Errorf("PTS not increasing at %d: %v <= %v", i, f.PTS, m.frames[i-1].PTS)
		}
		if want := time.Duration(i) * time.Second / 30; absDur(f.PTS-want) > time.Microsecond {
			t.Errorf("Frame %d PTS %v, want %v", i, f.PTS, want)
		}
		if len(f.Pix) != 64*36*4 {
			t.Fatalf("Frame %d has %d bytes", i, len(f.Pix))
		}
	}

	// every frame sampled at index/rate, in order
	if len(*sampled) < 90 {
		t.Fatalf("Expected at least 90 samples, got %d", len(*sampled))
	}
	for i := 0; i < 90; i++ {
		if want := float64(i) / 30; math.Abs((*sampled)[i]-want) > 1e-9 {
			t.Errorf("Sample %d at %v, want %v", i, (*sampled)[i], want)
		}
	}
}

func TestExportDeterministic(t *testing.T) {
	doc, ctrl, _ := scene(t)

	run := func() []video.Frame {
		m := &fakeMuxer{}
		if _, err := NewExporter(opener(m), nil).Export(context.Background(), request(doc, ctrl), nil); err != nil {
			t.Fatal(err)
		}
		return m.frames
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("Frame counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].PTS != b[i].PTS || string(a[i].Pix) != string(b[i].Pix) {
			t.Fatalf("Frame %d differs between runs", i)
		}
	}
	// the fade is visible: the first frame and the middle frame differ
	if string(a[0].Pix) == string(a[45].Pix) {
		t.Error("Expected opacity animation to change the picture")
	}
}

func TestExportRestoresOnFailure(t *testing.T) {
	defer leaktest.Check(t)()

	doc, ctrl, _ := scene(t)
	ctrl.SetCurrentTime(1.2)
	if err := ctrl.Play(); err != nil {
		t.Fatal(err)
	}
	defer ctrl.Pause()

	boom := errors.New("disk full")
	m := &fakeMuxer{onAppend: func(f video.Frame) error {
		if f.Index == 10 {
			return boom
		}
		return nil
	}}
	e := NewExporter(opener(m), nil)

	res, err := e.Export(context.Background(), request(doc, ctrl), nil)
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Frame != 10 || !errors.Is(err, boom) {
		t.Fatalf("Expected FrameError at frame 10 wrapping the cause, got %v", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("A failure must not look like a cancellation")
	}
	if res.Status != StatusFailed || res.Frames != 10 {
		t.Errorf("Expected failed after 10 frames, got %v after %d", res.Status, res.Frames)
	}
	if !m.aborted || m.finished {
		t.Errorf("Expected abort without finalize, aborted=%v finished=%v", m.aborted, m.finished)
	}
	if !ctrl.IsPlaying() || math.Abs(ctrl.CurrentTime()-1.2) > 1e-9 {
		t.Errorf("Expected controller playing at 1.2, got playing=%v t=%v", ctrl.IsPlaying(), ctrl.CurrentTime())
	}
	// the lease is gone
	ctrl.SetCurrentTime(2)
	if ctrl.CurrentTime() != 2 {
		t.Error("Expected scrubbing to work after the export")
	}
}

func TestExportLogsAbortError(t *testing.T) {
	defer leaktest.Check(t)()

	doc, ctrl, _ := scene(t)
	boom := errors.New("disk full")
	m := &fakeMuxer{
		abortErr: errors.New("remove partial output: permission denied"),
		onAppend: func(f video.Frame) error {
			if f.Index == 2 {
				return boom
			}
			return nil
		},
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := NewExporter(opener(m), nil, WithLogger(logger))

	_, err := e.Export(context.Background(), request(doc, ctrl), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the frame error to win over the abort error, got %v", err)
	}
	if !m.aborted {
		t.Fatal("Expected the output to be aborted")
	}
	if out := buf.String(); !strings.Contains(out, "abort output") || !strings.Contains(out, "permission denied") {
		t.Errorf("Expected the abort error in the log, got:\n%s", out)
	}
}

func TestExportCancel(t *testing.T) {
	defer leaktest.Check(t)()

	doc, ctrl, _ := scene(t)
	ctrl.SetCurrentTime(0.5)

	var e *Exporter
	m := &fakeMuxer{onAppend: func(f video.Frame) error {
		if f.Index == 5 {
			e.Cancel()
		}
		return nil
	}}
	e = NewExporter(opener(m), nil)

	res, err := e.Export(context.Background(), request(doc, ctrl), nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	if res.Status != StatusCancelled || e.Status() != StatusCancelled {
		t.Errorf("Expected cancelled, got %v", res.Status)
	}
	// the frame in flight completes; the next one never starts
	if res.Frames != 6 || len(m.frames) != 6 {
		t.Errorf("Expected 6 frames, got %d", res.Frames)
	}
	if !m.aborted || m.finished {
		t.Error("Expected the muxer to be aborted")
	}
	if ctrl.IsPlaying() || ctrl.CurrentTime() != 0.5 {
		t.Errorf("Expected controller restored to 0.5, got %v", ctrl.CurrentTime())
	}

	// idle exporters ignore Cancel
	e.Cancel()
}

func TestExportContextCancel(t *testing.T) {
	doc, ctrl, _ := scene(t)
	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeMuxer{onAppend: func(f video.Frame) error {
		if f.Index == 2 {
			cancel()
		}
		return nil
	}}

	res, err := NewExporter(opener(m), nil).Export(ctx, request(doc, ctrl), nil)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected cancellation, got %v", err)
	}
	if res.Status != StatusCancelled || res.Frames != 3 {
		t.Errorf("Expected cancelled after 3 frames, got %v after %d", res.Status, res.Frames)
	}
}

func TestExportSetupErrors(t *testing.T) {
	doc, ctrl, _ := scene(t)
	ctrl.SetCurrentTime(1)
	opened := false
	open := func(ctx context.Context, dest string, p video.Params) (video.Muxer, error) {
		opened = true
		return nil, video.ErrDestination
	}
	e := NewExporter(open, nil)

	tests := []struct {
		name   string
		modify func(r *Request)
		want   error
	}{
		{"zero width", func(r *Request) { r.Width = 0 }, ErrInvalidDimensions},
		{"negative height", func(r *Request) { r.Height = -1 }, ErrInvalidDimensions},
		{"zero rate", func(r *Request) { r.FrameRate = 0 }, ErrInvalidFrameRate},
		{"NaN rate", func(r *Request) { r.FrameRate = math.NaN() }, ErrInvalidFrameRate},
		{"no document", func(r *Request) { r.Document = nil }, ErrInvalidRequest},
		{"too short", func(r *Request) { r.Duration = 0.001 }, ErrNoFrames},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(doc, ctrl)
			tt.modify(&req)
			if _, err := e.Export(context.Background(), req, nil); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
	if opened {
		t.Error("Validation errors must fail before opening the output")
	}

	res, err := e.Export(context.Background(), request(doc, ctrl), nil)
	if !errors.Is(err, video.ErrDestination) || res.Status != StatusFailed {
		t.Errorf("Expected destination error, got %v (%v)", err, res.Status)
	}
	if ctrl.CurrentTime() != 1 {
		t.Errorf("Setup errors must not move the timeline, got %v", ctrl.CurrentTime())
	}
	lease, err := ctrl.Acquire()
	if err != nil {
		t.Fatalf("Expected the controller to be released, got %v", err)
	}
	lease.Release()
}

func TestExportRejectsConcurrentExports(t *testing.T) {
	defer leaktest.Check(t)()

	doc, ctrl, _ := scene(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	m := &fakeMuxer{onAppend: func(f video.Frame) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return nil
	}}
	e := NewExporter(opener(m), nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Export(context.Background(), request(doc, ctrl), nil)
		done <- err
	}()
	<-entered

	if e.Status() != StatusWriting {
		t.Errorf("Expected writing, got %v", e.Status())
	}
	if _, err := e.Export(context.Background(), request(doc, ctrl), nil); !errors.Is(err, ErrExportInProgress) {
		t.Errorf("Same exporter: expected ErrExportInProgress, got %v", err)
	}
	other := NewExporter(opener(&fakeMuxer{}), nil)
	if _, err := other.Export(context.Background(), request(doc, ctrl), nil); !errors.Is(err, ErrExportInProgress) {
		t.Errorf("Same controller: expected ErrExportInProgress, got %v", err)
	}
	if err := ctrl.Play(); !errors.Is(err, animation.ErrExportInProgress) {
		t.Errorf("Play during export: expected ErrExportInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestExportProgress(t *testing.T) {
	doc, ctrl, _ := scene(t)
	bus := events.NewBus(nil)
	progressC, cancelP := bus.Subscribe(events.TopicProgress, 256)
	statusC, cancelS := bus.Subscribe(events.TopicStatus, 8)

	e := NewExporter(opener(&fakeMuxer{}), nil, WithBus(bus), WithProgressThrottle(DefaultProgressStep, time.Hour))
	req := request(doc, ctrl)
	req.Duration = 10 // 300 frames

	var got []float64
	if _, err := e.Export(context.Background(), req, func(p float64) { got = append(got, p) }); err != nil {
		t.Fatal(err)
	}
	cancelP()
	cancelS()

	if len(got) == 0 || got[len(got)-1] != 1 {
		t.Fatalf("Expected final progress 1.0, got %v", got)
	}
	if len(got) > 101 {
		t.Errorf("Expected throttled progress, got %d reports", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Errorf("Progress went backwards: %v -> %v", got[i-1], got[i])
		}
	}

	n := 0
	for ev := range progressC {
		n++
		if ev.Progress != got[n-1] {
			t.Errorf("Event %d carries %v, callback saw %v", n, ev.Progress, got[n-1])
		}
	}
	if n != len(got) {
		t.Errorf("Expected %d progress events, got %d", len(got), n)
	}

	var statuses []string
	for ev := range statusC {
		statuses = append(statuses, ev.Status)
	}
	if len(statuses) != 2 || statuses[0] != "writing" || statuses[1] != "finished" {
		t.Errorf("Unexpected status events %v", statuses)
	}
}

func TestExportPlaceholder(t *testing.T) {
	ctrl := animation.NewController()
	ctrl.Setup(1)
	empty := canvas.NewDocument(320, 180)

	render := func(opts ...Option) []byte {
		m := &fakeMuxer{}
		req := request(empty, ctrl)
		req.Width, req.Height = 640, 360
		if _, err := NewExporter(opener(m), nil, opts...).Export(context.Background(), req, nil); err != nil {
			t.Fatal(err)
		}
		return m.frames[0].Pix
	}

	blank := render(WithPlaceholder(""))
	for _, b := range blank {
		if b != 255 {
			t.Fatal("Expected a blank white frame without placeholder")
		}
	}
	if string(render()) == string(blank) {
		t.Error("Expected the placeholder text to be drawn")
	}
}

func TestExportOnOwnerLoop(t *testing.T) {
	defer leaktest.Check(t)()

	doc, ctrl, _ := scene(t)
	loop := animation.NewLoop()
	ctx, stop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()
	defer func() {
		stop()
		<-loopDone
	}()

	req := request(doc, ctrl)
	req.Owner = loop
	m := &fakeMuxer{}
	if _, err := NewExporter(opener(m), nil).Export(context.Background(), req, nil); err != nil {
		t.Fatal(err)
	}
	if len(m.frames) != 90 {
		t.Errorf("Expected 90 frames, got %d", len(m.frames))
	}
}

// flagOwner runs tasks inline and records whether one is in progress.
type flagOwner struct {
	inside atomic.Bool
}

func (o *flagOwner) Do(ctx context.Context, fn func()) error {
	o.inside.Store(true)
	defer o.inside.Store(false)
	fn()
	return nil
}

func TestExportDispatchesOnlyOnOwner(t *testing.T) {
	for _, failAt := range []int{3, -1} {
		doc, ctrl, _ := scene(t)
		ctrl.SetCurrentTime(1.2)

		owner := &flagOwner{}
		var outside atomic.Int32
		tr := ctrl.AddTrack("E_rotation", func(v animation.Value) {
			if !owner.inside.Load() {
				outside.Add(1)
			}
		})
		tr.Add(animation.Keyframe{Time: 0, Value: animation.Double(0)})

		m := &fakeMuxer{onAppend: func(f video.Frame) error {
			if f.Index == failAt {
				return errors.New("encoder died")
			}
			return nil
		}}
		req := request(doc, ctrl)
		req.Owner = owner
		_, err := NewExporter(opener(m), nil).Export(context.Background(), req, nil)
		if failAt >= 0 && err == nil {
			t.Fatal("Expected the export to fail")
		}
		if failAt < 0 && err != nil {
			t.Fatal(err)
		}

		if n := outside.Load(); n != 0 {
			t.Errorf("failAt=%d: %d track updates ran outside the owner", failAt, n)
		}
		if math.Abs(ctrl.CurrentTime()-1.2) > 1e-9 {
			t.Errorf("failAt=%d: expected time restored to 1.2, got %v", failAt, ctrl.CurrentTime())
		}
	}
}

// slowMuxer withholds readiness for a while before every frame and rejects
// frames appended without it.
type slowMuxer struct {
	fakeMuxer
	delay time.Duration
	ready bool
	waits int
}

func (m *slowMuxer) WaitReady(ctx context.Context) error {
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	m.waits++
	m.ready = true
	return nil
}

func (m *slowMuxer) Append(ctx context.Context, f video.Frame) error {
	if !m.ready {
		return errors.New("append without readiness")
	}
	m.ready = false
	return m.fakeMuxer.Append(ctx, f)
}

func TestExportWaitsForBackpressure(t *testing.T) {
	defer leaktest.Check(t)()

	doc, ctrl, _ := scene(t)
	m := &slowMuxer{delay: 5 * time.Millisecond}
	req := request(doc, ctrl)
	req.Duration = 0.5

	res, err := NewExporter(opener(m), nil).Export(context.Background(), req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Frames != 15 || len(m.frames) != 15 || m.waits != 15 {
		t.Fatalf("Expected 15 frames after 15 waits, got %d frames, %d appended, %d waits", res.Frames, len(m.frames), m.waits)
	}
	for i, f := range m.frames {
		if f.Index != i {
			t.Errorf("Frame %d arrived at position %d", f.Index, i)
		}
	}
}

func TestThrottle(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	th := newThrottle(0.1, time.Second, clock)

	if th.ready(0.05) {
		t.Error("Small step should be suppressed")
	}
	if !th.ready(0.1) {
		t.Error("Full step should be reported")
	}
	now = now.Add(2 * time.Second)
	if !th.ready(0.11) {
		t.Error("Elapsed interval should force a report")
	}
	if !th.ready(1) || th.ready(1) {
		t.Error("Completion must be reported exactly once")
	}
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		StatusIdle: "idle", StatusWriting: "writing", StatusFinished: "finished",
		StatusFailed: "failed", StatusCancelled: "cancelled",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
	if StatusWriting.Terminal() || !StatusCancelled.Terminal() {
		t.Error("Unexpected Terminal()")
	}
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
