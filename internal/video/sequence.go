package video

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/motion2video/internal/system"
)

// SequenceMuxer writes every frame as frame_00000.png, frame_00001.png, ...
// into a directory. Encoding runs on up to QueueDepth goroutines.
type SequenceMuxer struct {
	dir    string
	params Params
	logger *slog.Logger
	enc    png.Encoder

	g errgroup.Group

	mu      sync.Mutex
	closed  bool
	frames  int
	lastPTS time.Duration
	written []string
	err     error
}

func NewSequenceMuxer(dir string, p Params) (*SequenceMuxer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDestination, err)
	}
	check, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDestination, err)
	}
	check.Close()
	os.Remove(check.Name())

	m := &SequenceMuxer{
		dir:    dir,
		params: p,
		logger: p.logger().With("component", "sequence", "dir", dir),
		enc:    png.Encoder{CompressionLevel: png.BestSpeed},
	}
	m.g.SetLimit(p.queueDepth())
	return m, nil
}

// FramePath is the file a frame index is written to.
func (m *SequenceMuxer) FramePath(index int) string {
	return filepath.Join(m.dir, fmt.Sprintf("frame_%05d.png", index))
}

func (m *SequenceMuxer) firstErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.err
}

func (m *SequenceMuxer) WaitReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.firstErr()
}

func (m *SequenceMuxer) Append(ctx context.Context, f Frame) error {
	if err := m.WaitReady(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if err := checkFrame(f, m.params, m.lastPTS, m.frames == 0); err != nil {
		m.mu.Unlock()
		return err
	}
	m.frames++
	m.lastPTS = f.PTS
	path := m.FramePath(f.Index)
	m.written = append(m.written, path)
	m.mu.Unlock()

	// blocks while QueueDepth frames are being encoded
	m.g.Go(func() error {
		err := m.writeFrame(path, f)
		system.PutBuffer(f.Pix)
		if err != nil {
			m.mu.Lock()
			if m.err == nil {
				m.err = err
			}
			m.mu.Unlock()
		}
		return err
	})
	return nil
}

func (m *SequenceMuxer) writeFrame(path string, f Frame) error {
	img := &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write frame %d: %w", f.Index, err)
	}
	w := bufio.NewWriter(out)
	if err := m.enc.Encode(w, img); err != nil {
		out.Close()
		return fmt.Errorf("encode frame %d: %w", f.Index, err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("write frame %d: %w", f.Index, err)
	}
	return out.Close()
}

func (m *SequenceMuxer) Finish(ctx context.Context) (Asset, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Asset{}, ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- m.g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			m.removeWritten()
			return Asset{}, err
		}
	case <-ctx.Done():
		<-done
		m.removeWritten()
		return Asset{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	asset := Asset{
		Path:      m.dir,
		Frames:    m.frames,
		Width:     m.params.Width,
		Height:    m.params.Height,
		FrameRate: m.params.FrameRate,
	}
	if m.frames > 0 {
		asset.Duration = m.lastPTS + time.Duration(float64(time.Second)/m.params.FrameRate)
	}
	m.logger.Debug("sequence finished", "frames", m.frames)
	return asset, nil
}

// Abort waits for in-flight frames and removes everything written.
func (m *SequenceMuxer) Abort() error {
	m.mu.Lock()
	wasClosed := m.closed
	m.closed = true
	m.mu.Unlock()

	m.g.Wait()
	if !wasClosed {
		m.removeWritten()
	}
	return nil
}

func (m *SequenceMuxer) removeWritten() {
	m.mu.Lock()
	written := m.written
	m.written = nil
	m.mu.Unlock()
	for _, p := range written {
		os.Remove(p)
	}
}
