package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrDestination     = errors.New("video: destination not writable")
	ErrNonMonotonicPTS = errors.New("video: presentation timestamps must increase")
	ErrFrameSize       = errors.New("video: frame does not match output size")
	ErrClosed          = errors.New("video: muxer already finished")
)

// Frame is one tightly packed RGBA picture. The muxer owns Pix once the
// frame is appended.
type Frame struct {
	Index  int
	PTS    time.Duration
	Width  int
	Height int
	Pix    []byte
}

// Asset describes a finished output.
type Asset struct {
	Path      string
	Frames    int
	Duration  time.Duration
	Width     int
	Height    int
	FrameRate float64
}

// Muxer accepts frames in presentation order and produces an encoded
// output.
type Muxer interface {
	// WaitReady blocks until the muxer can take another frame.
	WaitReady(ctx context.Context) error
	Append(ctx context.Context, f Frame) error
	// Finish flushes pending frames and finalizes the output.
	Finish(ctx context.Context) (Asset, error)
	// Abort stops encoding and removes partial output. Safe to call more
	// than once and after Finish.
	Abort() error
}

// Params describe the stream handed to a muxer.
type Params struct {
	Width      int
	Height     int
	FrameRate  float64
	Encoder    string
	Quality    int
	Preset     string
	QueueDepth int
	Logger     *slog.Logger
}

const DefaultQueueDepth = 4

func (p Params) queueDepth() int {
	if p.QueueDepth <= 0 {
		return DefaultQueueDepth
	}
	return p.QueueDepth
}

func (p Params) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

// Opener creates a muxer for a destination.
type Opener func(ctx context.Context, dest string, p Params) (Muxer, error)

// Open picks a muxer for dest: an existing directory or a path ending in a
// separator becomes a PNG sequence, anything else is encoded with ffmpeg.
func Open(ctx context.Context, dest string, p Params) (Muxer, error) {
	if dest == "" {
		return nil, fmt.Errorf("%w: empty path", ErrDestination)
	}
	if strings.HasSuffix(dest, "/") || strings.HasSuffix(dest, string(filepath.Separator)) {
		return NewSequenceMuxer(dest, p)
	}
	if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
		return NewSequenceMuxer(dest, p)
	}
	return NewFFmpegMuxer(ctx, dest, p)
}

// checkFrame validates f against the stream and the previous timestamp.
func checkFrame(f Frame, p Params, last time.Duration, first bool) error {
	if f.Width != p.Width || f.Height != p.Height || len(f.Pix) != p.Width*p.Height*4 {
		return fmt.Errorf("%w: %dx%d (%d bytes), want %dx%d", ErrFrameSize, f.Width, f.Height, len(f.Pix), p.Width, p.Height)
	}
	if !first && f.PTS <= last {
		return fmt.Errorf("%w: frame %d at %v after %v", ErrNonMonotonicPTS, f.Index, f.PTS, last)
	}
	return nil
}
