// Package temperature reads the supported temperature chips. Every sensor
// applies its own read timeout and reports nothing on a failed read.
package temperature

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pifanctrl/log"
	"pifanctrl/reading"
	"pifanctrl/sensor"
)

const DefaultTimeout = 2 * time.Second

var (
	ErrTimeout = errors.New("sensor read timed out")
	ErrBusy    = errors.New("previous sensor read still running")
)

var spam sensor.Spam

// Sensor adapts a single-value read function to sensor.TemperatureSensor.
// At most one read runs at a time; while an abandoned read is still stuck
// in the device, later calls report ErrBusy instead of starting another.
type Sensor struct {
	name    string
	device  string
	timeout time.Duration
	read    func() (float64, error)
	close   func() error

	mu      sync.Mutex
	pending chan result
}

type result struct {
	v   float64
	err error
}

func newSensor(name, device string, timeout time.Duration, read func() (float64, error)) *Sensor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sensor{name: name, device: device, timeout: timeout, read: read}
}

func (s *Sensor) Name() string {
	return s.name
}

func (s *Sensor) ReadNextValues(ctx context.Context) []reading.Reading {
	v, err := s.readWithTimeout(ctx)
	if err != nil {
		if n, report := spam.Failed(s.name); report {
			log.Errorf("reading %s (failure %d): %s", s.name, n, err)
		}
		return nil
	}
	if n := spam.Recovered(s.name); n > 0 {
		log.Infof("%s is back after %d failed reads", s.name, n)
	}
	return []reading.Reading{reading.NewTemperature(s.name, v, false).WithMeta("device", s.device)}
}

func (s *Sensor) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// start launches a read unless the previous one is still running. The
// result of an abandoned read that has since finished is discarded.
func (s *Sensor) start() (chan result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		select {
		case <-s.pending:
		default:
			return nil, ErrBusy
		}
	}
	ch := make(chan result, 1)
	s.pending = ch
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("read panicked: %v", p)}
			}
		}()
		v, err := s.read()
		ch <- result{v, err}
	}()
	return ch, nil
}

func (s *Sensor) finish(ch chan result) {
	s.mu.Lock()
	if s.pending == ch {
		s.pending = nil
	}
	s.mu.Unlock()
}

// readWithTimeout waits for the read started by start. A read that hangs
// past the timeout stays pending and blocks new reads until it returns.
func (s *Sensor) readWithTimeout(ctx context.Context) (float64, error) {
	ch, err := s.start()
	if err != nil {
		return 0, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		s.finish(ch)
		return r.v, r.err
	case <-timer.C:
		return 0, fmt.Errorf("%w after %v", ErrTimeout, s.timeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
