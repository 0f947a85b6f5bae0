package control

import (
	"context"
	"errors"
	"sync"
)

type fakeActuator struct {
	mu    sync.Mutex
	calls []float64
	fail  bool
}

func (f *fakeActuator) SetDutyCycle(_ context.Context, pct float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("pwm write failed")
	}
	f.calls = append(f.calls, pct)
	return nil
}

func (f *fakeActuator) Calls() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeActuator) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}
