package animation

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultDuration is the timeline length of a fresh or reset controller.
const DefaultDuration = 5.0

// ErrExportInProgress is returned when the controller is leased to an export.
var ErrExportInProgress = errors.New("animation: export in progress")

// Clock supplies wall-clock time to the playback ticker.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// PlaybackState is the part of the controller an export captures and restores.
type PlaybackState struct {
	Time    float64
	Playing bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock used while playing.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithTickInterval sets how often playback advances the current time.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithLoop makes playback wrap to zero instead of stopping at the end.
func WithLoop(loop bool) Option {
	return func(c *Controller) { c.loop = loop }
}

// WithLogger sets the controller logger. Nil keeps the silent default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l.With("component", "animation")
		}
	}
}

// Controller owns every track of a document together with the timeline
// position and play state. Setting the time resolves all tracks and pushes
// the values through their update funcs; nothing else writes animated state.
type Controller struct {
	clock  Clock
	tick   time.Duration
	loop   bool
	logger *slog.Logger

	mu       sync.Mutex
	tracks   map[string]*Track
	duration float64
	current  float64
	playing  bool
	stopTick chan struct{}
	tickDone chan struct{}
	lease    *Lease

	// serializes update dispatch between the ticker and explicit time sets
	dispatchMu sync.Mutex
}

func NewController(opts ...Option) *Controller {
	c := &Controller{
		clock:    systemClock{},
		tick:     time.Second / 60,
		logger:   slog.New(slog.DiscardHandler),
		tracks:   make(map[string]*Track),
		duration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Setup sets a new duration and rewinds to zero, keeping the tracks.
// Non-positive durations fall back to DefaultDuration.
func (c *Controller) Setup(duration float64) {
	if duration <= 0 {
		c.logger.Warn("non-positive duration, using default", "duration", duration)
		duration = DefaultDuration
	}
	c.mu.Lock()
	c.duration = duration
	c.mu.Unlock()
	c.setTime(0)
}

// Reset drops every track and restores the default duration and time.
func (c *Controller) Reset() {
	c.Pause()
	c.mu.Lock()
	c.tracks = make(map[string]*Track)
	c.duration = DefaultDuration
	c.current = 0
	c.mu.Unlock()
}

func (c *Controller) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

func (c *Controller) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// AddTrack registers a track. Registering an existing id returns the
// existing track untouched, update included.
func (c *Controller) AddTrack(id string, update UpdateFunc) *Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tr, ok := c.tracks[id]; ok {
		return tr
	}
	tr := newTrack(id, update)
	c.tracks[id] = tr
	return tr
}

// Track looks up a track by id.
func (c *Controller) Track(id string) (*Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tr, ok := c.tracks[id]
	return tr, ok
}

// Tracks returns all track ids, sorted.
func (c *Controller) Tracks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.tracks))
	for id := range c.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Controller) RemoveTrack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, id)
}

// RemoveTracksForElement drops every track whose id carries the
// "<elementID>_" prefix. Call it whenever an element is deleted.
func (c *Controller) RemoveTracksForElement(elementID string) int {
	prefix := elementID + "_"
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id := range c.tracks {
		if strings.HasPrefix(id, prefix) {
			delete(c.tracks, id)
			n++
		}
	}
	return n
}

// SetCurrentTime scrubs to t. It is ignored while an export holds the
// controller.
func (c *Controller) SetCurrentTime(t float64) {
	c.mu.Lock()
	leased := c.lease != nil
	c.mu.Unlock()
	if leased {
		c.logger.Debug("time change ignored during export", "time", t)
		return
	}
	c.setTime(t)
}

func (c *Controller) setTime(t float64) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	if c.duration <= 0 {
		c.mu.Unlock()
		return
	}
	t = clamp(t, 0, c.duration)
	c.current = t
	tracks := make([]*Track, 0, len(c.tracks))
	for _, tr := range c.tracks {
		tracks = append(tracks, tr)
	}
	c.mu.Unlock()

	for _, tr := range tracks {
		tr.apply(t)
	}
}

// Play starts advancing time at wall-clock rate.
func (c *Controller) Play() error {
	c.mu.Lock()
	if c.lease != nil {
		c.mu.Unlock()
		return ErrExportInProgress
	}
	c.mu.Unlock()
	c.startPlayback()
	return nil
}

func (c *Controller) startPlayback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	if c.current >= c.duration && !c.loop {
		c.current = 0
	}
	c.playing = true
	c.stopTick = make(chan struct{})
	c.tickDone = make(chan struct{})
	go c.run(c.stopTick, c.tickDone)
}

// Pause freezes the current time.
func (c *Controller) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	stop, done := c.stopTick, c.tickDone
	c.playing = false
	c.stopTick, c.tickDone = nil, nil
	c.mu.Unlock()

	close(stop)
	<-done
}

func (c *Controller) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	last := c.clock.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := c.clock.Now()
			dt := now.Sub(last).Seconds()
			last = now
			if !c.advance(stop, dt) {
				return
			}
		}
	}
}

// advance moves playback forward by dt seconds. It returns false once
// playback has ended or was stopped.
func (c *Controller) advance(stop <-chan struct{}, dt float64) bool {
	c.mu.Lock()
	if c.stopTick != stop {
		c.mu.Unlock()
		return false
	}
	next := c.current + dt
	more := true
	if next >= c.duration {
		if c.loop && c.duration > 0 {
			for next >= c.duration {
				next -= c.duration
			}
		} else {
			next = c.duration
			c.playing = false
			c.stopTick, c.tickDone = nil, nil
			more = false
		}
	}
	c.mu.Unlock()

	c.setTime(next)
	return more
}

// Acquire hands the controller to a single exporter. While the lease is
// held, scrubbing is ignored and Play fails.
func (c *Controller) Acquire() (*Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lease != nil {
		return nil, ErrExportInProgress
	}
	c.lease = &Lease{c: c}
	return c.lease, nil
}

// Lease is the exclusive right to drive the controller's time.
type Lease struct {
	c *Controller
}

// State captures the current time and play state.
func (l *Lease) State() PlaybackState {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return PlaybackState{Time: l.c.current, Playing: l.c.playing}
}

// Pause stops playback so the timeline is driven only by the lease holder.
func (l *Lease) Pause() { l.c.Pause() }

// SetCurrentTime sets the time and synchronously dispatches all tracks.
func (l *Lease) SetCurrentTime(t float64) { l.c.setTime(t) }

// Restore returns the controller to a captured state.
func (l *Lease) Restore(s PlaybackState) {
	l.c.Pause()
	l.c.setTime(s.Time)
	if s.Playing {
		l.c.startPlayback()
	}
}

// Release gives the controller back. Releasing twice is harmless.
func (l *Lease) Release() {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	if l.c.lease == l {
		l.c.lease = nil
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
