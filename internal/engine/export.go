package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/motion2video/internal/animation"
	"github.com/ivlev/motion2video/internal/canvas"
	"github.com/ivlev/motion2video/internal/renderer"
	"github.com/ivlev/motion2video/internal/system"
	"github.com/ivlev/motion2video/internal/video"
)

// Export renders every frame of the request's timeline into a muxer and
// returns the finished asset.
//
// Setup errors are returned before any frame is produced and leave the
// controller untouched. Once frames are being written, the controller is
// paused and driven only by the export; whatever happens afterwards it is
// returned to its previous time and play state. Cancellation (Cancel or
// ctx) is honored between frames and reported as ErrCancelled with
// StatusCancelled; any other failure is StatusFailed.
func (e *Exporter) Export(ctx context.Context, req Request, onProgress ProgressFunc) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{Status: StatusFailed}, err
	}
	duration := req.Duration
	if duration <= 0 {
		duration = req.Controller.Duration()
	}
	frameCount := FrameCount(duration, req.FrameRate)
	if frameCount == 0 {
		return Result{Status: StatusFailed}, fmt.Errorf("%w: %.3fs at %v fps", ErrNoFrames, duration, req.FrameRate)
	}

	cancel, err := e.begin()
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	defer e.end()

	lease, err := req.Controller.Acquire()
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	defer lease.Release()

	job := uuid.NewString()
	res := Result{Job: job}
	logger := e.logger.With("job", job)
	start := e.now()

	muxer, err := e.open(ctx, req.Destination, video.Params{
		Width:      req.Width,
		Height:     req.Height,
		FrameRate:  req.FrameRate,
		Encoder:    e.encoder,
		Quality:    e.quality,
		Preset:     e.preset,
		QueueDepth: e.queueDepth,
		Logger:     logger,
	})
	if err != nil {
		res.Status = StatusFailed
		e.setStatus(job, res.Status, err)
		return res, fmt.Errorf("open output: %w", err)
	}

	owner := req.Owner
	if owner == nil {
		owner = animation.Inline{}
	}

	saved := lease.State()
	if saved.Playing {
		lease.Pause()
	}
	// restoring dispatches every track, so it runs on the owner like the
	// per-frame time sets
	restored := false
	restore := func() {
		if restored {
			return
		}
		restored = true
		err := owner.Do(context.WithoutCancel(ctx), func() { lease.Restore(saved) })
		if err != nil {
			logger.Warn("owner unavailable, restoring in place", "err", err)
			lease.Restore(saved)
		}
	}
	defer restore()

	var ph []canvas.Element
	if req.Document.Len() == 0 && e.placeholder != "" {
		ph = []canvas.Element{canvas.Placeholder(e.placeholder, req.Document.Width, req.Document.Height)}
	}

	copts := []renderer.Option{renderer.WithLogger(logger)}
	if e.background != nil {
		copts = append(copts, renderer.WithBackground(*e.background))
	}
	comp := renderer.NewCompositor(req.Width, req.Height, e.assets, copts...)
	defer comp.Close()

	e.setStatus(job, StatusWriting, nil)
	logger.Info("export started", "frames", frameCount, "size", fmt.Sprintf("%dx%d", req.Width, req.Height), "fps", req.FrameRate, "dest", req.Destination)

	// frames are not preemptible; ctx is only consulted between them
	frameCtx := context.WithoutCancel(ctx)
	progress := newThrottle(e.progressStep, e.progressInterval, e.now)

	fail := func(err error) (Result, error) {
		if aerr := muxer.Abort(); aerr != nil {
			logger.Debug("abort output", "err", aerr)
		}
		restore()
		res.Stats.Total = e.now().Sub(start)
		res.Status = StatusFailed
		if errors.Is(err, ErrCancelled) {
			res.Status = StatusCancelled
			logger.Info("export cancelled", "frames", res.Frames)
		} else {
			logger.Error("export failed", "frames", res.Frames, "err", err)
		}
		e.setStatus(job, res.Status, err)
		return res, err
	}

	for i := 0; i < frameCount; i++ {
		select {
		case <-cancel:
			return fail(ErrCancelled)
		case <-ctx.Done():
			return fail(fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
		default:
		}

		t := float64(i) / req.FrameRate
		renderStart := e.now()
		snap, err := canvas.Sample(frameCtx, owner, req.Document, lease, t)
		if err != nil {
			return fail(&FrameError{Frame: i, Err: fmt.Errorf("sample: %w", err)})
		}
		if ph != nil {
			snap.Elements = ph
		}
		buf := system.GetBuffer(comp.FrameSize())
		if err := comp.RenderInto(frameCtx, buf, snap); err != nil {
			system.PutBuffer(buf)
			return fail(&FrameError{Frame: i, Err: fmt.Errorf("composite: %w", err)})
		}

		encodeStart := e.now()
		res.Stats.Render += encodeStart.Sub(renderStart)
		if err := muxer.WaitReady(frameCtx); err != nil {
			system.PutBuffer(buf)
			return fail(&FrameError{Frame: i, Err: err})
		}
		err = muxer.Append(frameCtx, video.Frame{
			Index:  i,
			PTS:    pts(i, req.FrameRate),
			Width:  req.Width,
			Height: req.Height,
			Pix:    buf,
		})
		res.Stats.Encode += e.now().Sub(encodeStart)
		if err != nil {
			return fail(&FrameError{Frame: i, Err: err})
		}
		res.Frames++

		if p := float64(i+1) / float64(frameCount); progress.ready(p) {
			e.report(job, p, onProgress)
		}
	}

	finCtx := frameCtx
	if e.finalizeTimeout > 0 {
		var stop context.CancelFunc
		finCtx, stop = context.WithTimeout(frameCtx, e.finalizeTimeout)
		defer stop()
	}
	finishStart := e.now()
	asset, err := muxer.Finish(finCtx)
	res.Stats.Encode += e.now().Sub(finishStart)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrFinalize, err))
	}

	restore()
	res.Asset = asset
	res.Status = StatusFinished
	res.Stats.finish(res.Frames, e.now().Sub(start), e.showStats)
	e.setStatus(job, res.Status, nil)
	logger.Info("export finished", "frames", res.Frames, "path", asset.Path, "elapsed", res.Stats.Total.Round(time.Millisecond))
	return res, nil
}

// pts is the presentation time of frame i.
func pts(i int, rate float64) time.Duration {
	return time.Duration(math.Round(float64(i) * float64(time.Second) / rate))
}
