// Package control runs the periodic loops that read sensors, evaluate the
// fan curve and drive the PWM actuator.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"pifanctrl/log"
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

const DefaultStopTimeout = 5 * time.Second

var ErrAlreadyRunning = errors.New("worker already running")

// Worker calls Work once right away and then on every tick of Interval.
// Ticks missed while Work overruns are dropped, never queued.
//
// Cancelling the context passed to Run stops the worker at the next tick
// boundary. Work receives a context that is not cancelled with it, so an
// in-flight write completes. OnStop then runs with a fresh context bounded
// by StopTimeout.
type Worker struct {
	Name        string
	Interval    time.Duration
	Work        func(ctx context.Context) error
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
	StopTimeout time.Duration

	state atomic.Int32
	ticks atomic.Uint64
	fails atomic.Uint64
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// Ticks returns how many units of work have run and how many of them failed.
func (w *Worker) Ticks() (total, failed uint64) {
	return w.ticks.Load(), w.fails.Load()
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Interval <= 0 {
		return fmt.Errorf("worker %s: interval %v must be positive", w.Name, w.Interval)
	}
	if !w.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return fmt.Errorf("worker %s: %w", w.Name, ErrAlreadyRunning)
	}
	log.Infof("worker %s starting, interval %v", w.Name, w.Interval)

	workCtx := context.WithoutCancel(ctx)
	if w.OnStart != nil {
		if err := w.call(workCtx, "start", w.OnStart); err != nil {
			log.Errorf("worker %s: start: %s", w.Name, err)
		}
	}

	w.state.Store(int32(Running))
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.tick(workCtx)
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-ticker.C:
			if ctx.Err() == nil {
				w.tick(workCtx)
			}
		}
	}

	w.state.Store(int32(Stopping))
	log.Infof("worker %s stopping", w.Name)
	if w.OnStop != nil {
		timeout := w.StopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := w.call(stopCtx, "stop", w.OnStop); err != nil {
			log.Errorf("worker %s: stop: %s", w.Name, err)
		}
		cancel()
	}
	w.state.Store(int32(Stopped))
	log.Infof("worker %s stopped", w.Name)
	return nil
}

func (w *Worker) tick(ctx context.Context) {
	w.ticks.Add(1)
	if err := w.call(ctx, "tick", w.Work); err != nil {
		w.fails.Add(1)
		log.Errorf("worker %s: %s", w.Name, err)
	}
}

// call runs fn and turns a panic into an error.
func (w *Worker) call(ctx context.Context, what string, fn func(context.Context) error) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", what, p)
		}
	}()
	return fn(ctx)
}
