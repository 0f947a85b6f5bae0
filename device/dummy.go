package device

import (
	"context"
	"fmt"
	"sync"

	"pifanctrl/control"
	"pifanctrl/log"
	"pifanctrl/reading"
)

// DummyActuator stands in for the PWM fan on machines without one.
type DummyActuator struct {
	mu   sync.Mutex
	last float64
	n    int
}

func (d *DummyActuator) SetDutyCycle(_ context.Context, pct float64) error {
	if err := control.ValidateDutyCycle(pct); err != nil {
		return err
	}
	d.mu.Lock()
	d.last = pct
	d.n++
	d.mu.Unlock()
	log.Infof("changing duty cycle to %.2f%%", pct)
	return nil
}

// Last returns the last duty cycle and how many writes there were.
func (d *DummyActuator) Last() (float64, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.n
}

const DummyRpmSource = "DummyRpmSensor"

// DummyRpm always reports a stopped fan.
type DummyRpm struct{}

func (DummyRpm) Name() string {
	return DummyRpmSource
}

func (DummyRpm) ReadNextValue(context.Context) (reading.Reading, bool) {
	return reading.NewFanRpm(DummyRpmSource, 0), true
}

// FixedSensor reports a constant temperature.
type FixedSensor struct {
	name  string
	value float64
}

func NewFixedSensor(index int, value float64) *FixedSensor {
	return &FixedSensor{name: fmt.Sprintf("Dummy-%d", index), value: value}
}

func (f *FixedSensor) Name() string {
	return f.name
}

func (f *FixedSensor) ReadNextValues(context.Context) []reading.Reading {
	return []reading.Reading{reading.NewTemperature(f.name, f.value, false)}
}
