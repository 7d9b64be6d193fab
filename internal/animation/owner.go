package animation

import (
	"context"
	"errors"
	"fmt"
)

// ErrOwnerStopped is returned by Loop.Do once the loop has exited.
var ErrOwnerStopped = errors.New("animation: owner loop stopped")

// Owner runs work on the context that owns the controller and the element
// state it writes to. Do returns only after fn has completed there, so
// callers get a happens-before edge between fn and their next step.
type Owner interface {
	Do(ctx context.Context, fn func()) error
}

// Inline is an Owner for callers that already are the owning context.
type Inline struct{}

func (Inline) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

type request struct {
	fn   func()
	done chan error
}

// Loop serializes work onto one goroutine, the way a UI thread would.
// Requests are acknowledged after they ran.
type Loop struct {
	requests chan request
	stopped  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
}

// Run processes requests until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-l.requests:
			req.done <- l.call(req.fn)
		}
	}
}

func (l *Loop) call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("animation: owner task panicked: %v", r)
		}
	}()
	fn()
	return nil
}

func (l *Loop) Do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case l.requests <- req:
	case <-l.stopped:
		return ErrOwnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the request runs to completion; waiting for the
	// acknowledgement keeps the ordering even if ctx is cancelled meanwhile.
	return <-req.done
}
