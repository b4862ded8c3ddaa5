// services/dispatcher.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

const dispatcherBacklog = 256

// Dispatcher runs closures one at a time on a single goroutine. Everything that mutates
// queue, directory, session or gateway state goes through it.
type Dispatcher struct {
	work    chan func()
	stopped chan struct{}
	log     zerolog.Logger
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		work:    make(chan func(), dispatcherBacklog),
		stopped: make(chan struct{}),
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
}

// Run executes queued closures until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.stopped)
	d.log.Info().Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopped")
			return
		case fn := <-d.work:
			d.exec(fn)
		}
	}
}

func (d *Dispatcher) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("panic", fmt.Sprint(r)).Msg("recovered panic in dispatched closure")
		}
	}()
	fn()
}

// Do runs fn on the loop and waits for it to return.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case d.work <- wrapped:
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post enqueues fn without waiting. It is meant for timer callbacks, which must never block
// on the loop. Work posted after the loop stopped is dropped.
func (d *Dispatcher) Post(fn func()) {
	go func() {
		select {
		case d.work <- fn:
		case <-d.stopped:
		}
	}()
}
