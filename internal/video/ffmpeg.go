package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/motion2video/internal/system"
)

// FFmpegMuxer pipes raw RGBA frames into an ffmpeg process. Output goes to
// a hidden sibling file that is renamed into place by Finish.
type FFmpegMuxer struct {
	dest   string
	tmp    string
	params Params
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *lastLines
	kill   context.CancelFunc

	queue chan Frame
	slots chan struct{}
	done  chan struct{}
	g     errgroup.Group

	mu       sync.Mutex
	reserved bool
	closed   bool
	frames   int
	lastPTS  time.Duration
	werr     error

	abortOnce sync.Once
}

// NewFFmpegMuxer validates dest and starts the encoder.
func NewFFmpegMuxer(ctx context.Context, dest string, p Params) (*FFmpegMuxer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmp, err := prepareDestination(dest)
	if err != nil {
		return nil, err
	}

	procCtx, kill := context.WithCancel(context.Background())
	m := &FFmpegMuxer{
		dest:   dest,
		tmp:    tmp,
		params: p,
		logger: p.logger().With("component", "ffmpeg", "dest", filepath.Base(dest)),
		stderr: newLastLines(20),
		kill:   kill,
		queue:  make(chan Frame, p.queueDepth()),
		slots:  make(chan struct{}, p.queueDepth()),
		done:   make(chan struct{}),
	}

	args := m.buildArgs()
	m.logger.Debug("starting encoder", "args", strings.Join(args, " "))
	m.cmd = exec.CommandContext(procCtx, system.FFmpegPath, args...)
	m.cmd.Stderr = m.stderr
	m.stdin, err = m.cmd.StdinPipe()
	if err != nil {
		kill()
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := m.cmd.Start(); err != nil {
		kill()
		os.Remove(tmp)
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	m.g.Go(m.writeLoop)
	return m, nil
}

// prepareDestination makes sure dest can be written: the parent directory
// exists and a stale temp file is gone. An existing dest is left alone
// until Finish replaces it. It returns the temp path to encode into.
func prepareDestination(dest string) (string, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDestination, err)
	}
	base := filepath.Base(dest)
	ext := filepath.Ext(base)
	tmp := filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".partial"+ext)

	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: remove %s: %v", ErrDestination, tmp, err)
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDestination, err)
	}
	f.Close()
	return tmp, nil
}

func (m *FFmpegMuxer) buildArgs() []string {
	p := m.params
	args := []string{
		"-y",
		"-v", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", strconv.FormatFloat(p.FrameRate, 'f', -1, 64),
		"-i", "-",
	}
	// yuv420p needs even dimensions
	if p.Width%2 != 0 || p.Height%2 != 0 {
		args = append(args, "-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2")
	}
	encoder := p.Encoder
	if encoder == "" {
		encoder = "libx264"
	}
	args = append(args, "-c:v", encoder, "-pix_fmt", "yuv420p")
	args = append(args, qualityArgs(encoder, p.Quality, p.Preset)...)
	if ext := strings.ToLower(filepath.Ext(m.dest)); ext == ".mp4" || ext == ".mov" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, m.tmp)
}

// qualityArgs maps a single quality knob onto each encoder's own scale.
func qualityArgs(encoder string, quality int, preset string) []string {
	if quality <= 0 {
		quality = system.DefaultQuality(encoder)
	}
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox does not take -q:v everywhere; use bitrate
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", strconv.Itoa(quality)}
	default: // libx264
		if preset == "" {
			preset = "medium"
		}
		return []string{"-crf", strconv.Itoa(quality), "-preset", preset}
	}
}

func (m *FFmpegMuxer) writeLoop() error {
	defer close(m.done)
	for f := range m.queue {
		_, err := m.stdin.Write(f.Pix)
		system.PutBuffer(f.Pix)
		<-m.slots
		if err != nil {
			err = fmt.Errorf("write frame %d: %w", f.Index, m.withStderr(err))
			m.mu.Lock()
			m.werr = err
			m.mu.Unlock()
			// keep draining so producers never block on a dead encoder
			for f := range m.queue {
				system.PutBuffer(f.Pix)
				<-m.slots
			}
			return err
		}
	}
	return nil
}

func (m *FFmpegMuxer) writeErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.werr
}

// WaitReady reserves room for one more frame in the encoder queue.
func (m *FFmpegMuxer) WaitReady(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.reserved {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	select {
	case m.slots <- struct{}{}:
	case <-m.done:
		if err := m.writeErr(); err != nil {
			return err
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	m.reserved = true
	m.mu.Unlock()
	return m.writeErr()
}

func (m *FFmpegMuxer) Append(ctx context.Context, f Frame) error {
	if err := m.WaitReady(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkFrame(f, m.params, m.lastPTS, m.frames == 0); err != nil {
		return err
	}
	if m.werr != nil {
		return m.werr
	}
	m.reserved = false
	m.frames++
	m.lastPTS = f.PTS
	m.queue <- f
	return nil
}

// Finish waits for queued frames, closes the encoder input and moves the
// encoded file to its destination.
func (m *FFmpegMuxer) Finish(ctx context.Context) (Asset, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Asset{}, ErrClosed
	}
	m.closed = true
	frames, lastPTS := m.frames, m.lastPTS
	m.mu.Unlock()

	close(m.queue)
	drained := make(chan error, 1)
	go func() { drained <- m.g.Wait() }()

	var werr error
	select {
	case werr = <-drained:
	case <-ctx.Done():
		// an encoder that stopped reading keeps the writer blocked
		m.kill()
		<-drained
		m.stdin.Close()
		m.cmd.Wait()
		os.Remove(m.tmp)
		return Asset{}, ctx.Err()
	}
	m.stdin.Close()

	waitErr := make(chan error, 1)
	go func() { waitErr <- m.cmd.Wait() }()

	var err error
	select {
	case err = <-waitErr:
		if err != nil {
			err = fmt.Errorf("ffmpeg wait error: %w", m.withStderr(err))
		}
	case <-ctx.Done():
		m.kill()
		<-waitErr
		err = ctx.Err()
	}
	m.kill()

	if werr != nil {
		err = werr
	}
	if err != nil {
		os.Remove(m.tmp)
		return Asset{}, err
	}

	if err := os.Rename(m.tmp, m.dest); err != nil {
		os.Remove(m.tmp)
		return Asset{}, fmt.Errorf("%w: %v", ErrDestination, err)
	}

	asset := Asset{
		Path:      m.dest,
		Frames:    frames,
		Width:     m.params.Width,
		Height:    m.params.Height,
		FrameRate: m.params.FrameRate,
	}
	if frames > 0 {
		asset.Duration = lastPTS + time.Duration(float64(time.Second)/m.params.FrameRate)
	}
	m.logger.Debug("encoder finished", "frames", frames)
	return asset, nil
}

// Abort kills the encoder and deletes the partial output.
func (m *FFmpegMuxer) Abort() error {
	m.abortOnce.Do(func() {
		m.mu.Lock()
		wasClosed := m.closed
		m.closed = true
		m.mu.Unlock()

		m.kill()
		if !wasClosed {
			close(m.queue)
			m.g.Wait()
			m.stdin.Close()
			m.cmd.Wait()
		}
		os.Remove(m.tmp)
		m.logger.Debug("encoder aborted")
	})
	return nil
}

func (m *FFmpegMuxer) withStderr(err error) error {
	if tail := m.stderr.String(); tail != "" {
		return fmt.Errorf("%w: %s", err, tail)
	}
	return err
}
