package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"pifanctrl/log"
)

// Epsilon is the smallest duty cycle change worth sending to the hardware.
const Epsilon = 1e-5

const SafeDutyCycle = 100.0

var ErrOutOfRange = errors.New("duty cycle out of range")

// Actuator drives the fan. SetDutyCycle fails for values outside [0, 100].
type Actuator interface {
	SetDutyCycle(ctx context.Context, pct float64) error
}

func ValidateDutyCycle(pct float64) error {
	if !(pct >= 0 && pct <= 100) {
		return fmt.Errorf("%w: %v not in [0, 100]", ErrOutOfRange, pct)
	}
	return nil
}

// DutyCycle debounces writes to an Actuator and handles manual overrides.
//
// While an override is active, Set only remembers the computed value.
// Reset drops the override and sends the remembered value once. Writes are
// serialized under the mutex.
type DutyCycle struct {
	mu  sync.Mutex
	act Actuator

	last, sent       float64
	hasLast, hasSent bool
	override         bool
}

func NewDutyCycle(act Actuator) *DutyCycle {
	return &DutyCycle{act: act}
}

// Set forwards a computed duty cycle unless an override is active or it
// differs from the last forwarded value by no more than Epsilon.
func (d *DutyCycle) Set(ctx context.Context, pct float64) error {
	if err := ValidateDutyCycle(pct); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last, d.hasLast = pct, true
	if d.override {
		return nil
	}
	if d.hasSent && math.Abs(pct-d.sent) <= Epsilon {
		return nil
	}
	return d.forward(ctx, pct)
}

// Override forwards pct and holds it until Reset.
func (d *DutyCycle) Override(ctx context.Context, pct float64) error {
	if err := ValidateDutyCycle(pct); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.override = true
	log.Infof("duty cycle overridden to %.1f%%", pct)
	return d.forward(ctx, pct)
}

// Reset clears the override and forwards the last computed value, if any.
func (d *DutyCycle) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.override = false
	if !d.hasLast {
		return nil
	}
	log.Infof("duty cycle override released, back to %.1f%%", d.last)
	return d.forward(ctx, d.last)
}

// Force forwards pct regardless of debouncing and overrides.
func (d *DutyCycle) Force(ctx context.Context, pct float64) error {
	if err := ValidateDutyCycle(pct); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.forward(ctx, pct)
}

// forward must be called with d.mu held. A failed write is not remembered,
// so the next Set tries again.
func (d *DutyCycle) forward(ctx context.Context, pct float64) error {
	if err := d.act.SetDutyCycle(ctx, pct); err != nil {
		return fmt.Errorf("set duty cycle %.2f%%: %w", pct, err)
	}
	d.sent, d.hasSent = pct, true
	return nil
}

// Last returns the most recent computed value passed to Set.
func (d *DutyCycle) Last() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

// Sent returns the value the actuator currently runs at.
func (d *DutyCycle) Sent() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent, d.hasSent
}

func (d *DutyCycle) Overridden() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.override
}
