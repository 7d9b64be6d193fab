package source

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultDPI          = 150
	DefaultMaxDimension = 4096

	// video frames are cached at this granularity
	frameQuantum = 1.0 / 240
)

type cached struct {
	img image.Image
	err error
}

// Loader resolves assets from the local filesystem. It is safe for
// concurrent use; every asset is decoded at most once.
type Loader struct {
	BaseDir      string
	DPI          int
	MaxDimension int

	logger *slog.Logger

	mu        sync.RWMutex
	images    map[string]cached
	frames    map[frameKey]cached
	durations map[string]float64

	group singleflight.Group
}

type frameKey struct {
	path string
	slot int64
}

// NewLoader creates a loader resolving relative paths against baseDir.
func NewLoader(baseDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		BaseDir:      baseDir,
		DPI:          DefaultDPI,
		MaxDimension: DefaultMaxDimension,
		logger:       logger.With("component", "source"),
		images:       make(map[string]cached),
		frames:       make(map[frameKey]cached),
		durations:    make(map[string]float64),
	}
}

// Image returns the decoded still image at assetURL.
func (l *Loader) Image(ctx context.Context, assetURL string) (image.Image, error) {
	path, err := resolvePath(l.BaseDir, assetURL)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	c, ok := l.images[path]
	l.mu.RUnlock()
	if ok {
		return c.img, c.err
	}

	v, _, _ := l.group.Do("img:"+path, func() (interface{}, error) {
		img, err := l.loadImage(path)
		if err != nil {
			l.logger.Warn("asset failed", "path", path, "err", err)
		}
		c := cached{img: img, err: err}
		l.mu.Lock()
		l.images[path] = c
		l.mu.Unlock()
		return c, nil
	})
	c = v.(cached)
	return c.img, c.err
}

func (l *Loader) loadImage(path string) (image.Image, error) {
	var img image.Image
	var err error
	if isPDF(path) {
		dpi := l.DPI
		if dpi <= 0 {
			dpi = DefaultDPI
		}
		img, err = renderPDFPage(path, dpi)
	} else {
		img, err = decodeFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	l.logger.Debug("asset loaded", "path", path, "size", img.Bounds().Size())
	return fitWithin(img, l.MaxDimension), nil
}

// VideoFrame returns the frame of the video at assetURL shown at time at
// (seconds). Times past the end of the clip return the last frame.
func (l *Loader) VideoFrame(ctx context.Context, assetURL string, at float64) (image.Image, error) {
	path, err := resolvePath(l.BaseDir, assetURL)
	if err != nil {
		return nil, err
	}

	duration, err := l.duration(ctx, path)
	if err != nil {
		return nil, err
	}
	at = clampTime(at, duration)
	key := frameKey{path: path, slot: int64(math.Round(at / frameQuantum))}

	l.mu.RLock()
	c, ok := l.frames[key]
	l.mu.RUnlock()
	if ok {
		return c.img, c.err
	}

	v, _, _ := l.group.Do(fmt.Sprintf("frame:%s@%d", path, key.slot), func() (interface{}, error) {
		img, err := extractFrame(ctx, path, float64(key.slot)*frameQuantum)
		if err == nil {
			img = fitWithin(img, l.MaxDimension)
		} else if ctx.Err() != nil {
			// do not cache cancellations
			return cached{err: err}, nil
		}
		c := cached{img: img, err: err}
		l.mu.Lock()
		l.frames[key] = c
		l.mu.Unlock()
		return c, nil
	})
	c = v.(cached)
	return c.img, c.err
}

func (l *Loader) duration(ctx context.Context, path string) (float64, error) {
	l.mu.RLock()
	d, ok := l.durations[path]
	l.mu.RUnlock()
	if ok {
		return d, nil
	}

	v, err, _ := l.group.Do("dur:"+path, func() (interface{}, error) {
		d, err := probeDuration(ctx, path)
		if err != nil {
			return 0.0, err
		}
		l.mu.Lock()
		l.durations[path] = d
		l.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Release drops every cached asset.
func (l *Loader) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.images = make(map[string]cached)
	l.frames = make(map[frameKey]cached)
	l.durations = make(map[string]float64)
}

func clampTime(at, duration float64) float64 {
	if at < 0 || math.IsNaN(at) {
		return 0
	}
	// stay just inside the stream so ffmpeg still yields a frame
	if last := duration - frameQuantum; duration > 0 && at > last {
		return math.Max(0, last)
	}
	return at
}
