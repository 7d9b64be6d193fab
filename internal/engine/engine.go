package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ivlev/motion2video/internal/animation"
	"github.com/ivlev/motion2video/internal/canvas"
	"github.com/ivlev/motion2video/internal/events"
	"github.com/ivlev/motion2video/internal/source"
	"github.com/ivlev/motion2video/internal/video"
)

var (
	ErrInvalidDimensions = errors.New("engine: width and height must be positive")
	ErrInvalidFrameRate  = errors.New("engine: frame rate must be positive")
	ErrNoFrames          = errors.New("engine: duration too short for a single frame")
	ErrInvalidRequest    = errors.New("engine: request needs a document and a controller")
	ErrCancelled         = errors.New("engine: export cancelled")
	ErrFinalize          = errors.New("engine: finalizing output failed")

	// ErrExportInProgress is returned when the exporter or the controller
	// is already busy with another export.
	ErrExportInProgress = animation.ErrExportInProgress
)

// FrameError is a pipeline-fatal failure while producing one frame.
type FrameError struct {
	Frame int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

type Status int

const (
	StatusIdle Status = iota
	StatusWriting
	StatusFinished
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWriting:
		return "writing"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusCancelled
}

// FrameCount is the number of frames covering duration at rate. Partial
// trailing frames are dropped; the epsilon absorbs float noise such as
// 2.3*10 = 22.999999999999996.
func FrameCount(duration, rate float64) int {
	if duration <= 0 || rate <= 0 {
		return 0
	}
	return int(math.Floor(duration*rate + 1e-9))
}

// Request describes one export.
type Request struct {
	Width     int
	Height    int
	FrameRate float64
	// Duration overrides the controller duration when positive.
	Duration    float64
	Document    *canvas.Document
	Controller  *animation.Controller
	Owner       animation.Owner
	Destination string
}

func (r Request) validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, r.Width, r.Height)
	}
	if r.FrameRate <= 0 || math.IsNaN(r.FrameRate) || math.IsInf(r.FrameRate, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidFrameRate, r.FrameRate)
	}
	if r.Document == nil || r.Controller == nil {
		return ErrInvalidRequest
	}
	return nil
}

// Result is the terminal outcome of an export.
type Result struct {
	Job    string
	Status Status
	Asset  video.Asset
	// Frames is the number of frames handed to the muxer.
	Frames int
	Stats  Stats
}

// ProgressFunc receives the completed fraction in [0, 1].
type ProgressFunc func(fraction float64)

const (
	DefaultPlaceholderText  = "Project Export"
	DefaultProgressStep     = 0.01
	DefaultProgressInterval = 100 * time.Millisecond
)

type Option func(*Exporter)

func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithBus broadcasts progress and status events.
func WithBus(b *events.Bus) Option {
	return func(e *Exporter) { e.bus = b }
}

// WithPlaceholder sets the text drawn when the document is empty. An
// empty string disables the placeholder.
func WithPlaceholder(text string) Option {
	return func(e *Exporter) { e.placeholder = text }
}

// WithProgressThrottle limits progress reports to changes of at least step
// or one per interval, whichever comes first.
func WithProgressThrottle(step float64, interval time.Duration) Option {
	return func(e *Exporter) {
		e.progressStep = step
		e.progressInterval = interval
	}
}

// WithFinalizeTimeout bounds the muxer flush. Zero waits indefinitely.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(e *Exporter) { e.finalizeTimeout = d }
}

// WithEncoding forwards encoder settings to the muxer.
func WithEncoding(encoder string, quality int, preset string, queueDepth int) Option {
	return func(e *Exporter) {
		e.encoder = encoder
		e.quality = quality
		e.preset = preset
		e.queueDepth = queueDepth
	}
}

// WithBackground sets the frame background color.
func WithBackground(c animation.Color) Option {
	return func(e *Exporter) { e.background = &c }
}

// WithStats samples process resource usage at the end of each export.
func WithStats(enabled bool) Option {
	return func(e *Exporter) { e.showStats = enabled }
}

// Exporter renders a document's timeline frame by frame into a muxer. One
// export runs at a time.
type Exporter struct {
	open   video.Opener
	assets source.Assets
	bus    *events.Bus
	logger *slog.Logger

	placeholder      string
	progressStep     float64
	progressInterval time.Duration
	finalizeTimeout  time.Duration
	encoder          string
	quality          int
	preset           string
	queueDepth       int
	background       *animation.Color
	showStats        bool

	now func() time.Time

	mu      sync.Mutex
	running bool
	status  Status
	cancel  chan struct{}
}

// NewExporter creates an exporter. open defaults to video.Open.
func NewExporter(open video.Opener, assets source.Assets, opts ...Option) *Exporter {
	if open == nil {
		open = video.Open
	}
	e := &Exporter{
		open:             open,
		assets:           assets,
		logger:           slog.New(slog.DiscardHandler),
		placeholder:      DefaultPlaceholderText,
		progressStep:     DefaultProgressStep,
		progressInterval: DefaultProgressInterval,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "exporter")
	return e
}

// Status returns the state of the current or last export.
func (e *Exporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Cancel asks the running export to stop before its next frame. It has no
// effect when nothing is running.
func (e *Exporter) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.cancel != nil {
		select {
		case <-e.cancel:
		default:
			close(e.cancel)
		}
	}
}

func (e *Exporter) begin() (chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil, ErrExportInProgress
	}
	e.running = true
	e.cancel = make(chan struct{})
	return e.cancel, nil
}

func (e *Exporter) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.cancel = nil
}

func (e *Exporter) setStatus(job string, s Status, err error) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
	e.bus.Publish(events.Event{Topic: events.TopicStatus, Job: job, Status: s.String(), Err: err})
}
