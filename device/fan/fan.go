// Package fan drives a 4-pin PWM fan and counts its tachometer pulses.
package fan

import (
	"context"
	"fmt"

	"pifanctrl/control"
	"pifanctrl/device/pwm"
	"pifanctrl/log"
)

// DefaultPeriodNs gives the 25kHz control frequency 4-pin fans expect.
const DefaultPeriodNs = 40000

type dutyPin interface {
	Export() error
	SetPeriod(period uint32) error
	SetDutyCyclePercent(percent float64) error
	Enable(enable bool) error
}

// PWMFan implements control.Actuator on a PWM channel.
type PWMFan struct {
	pin dutyPin
}

// NewPWMFan exports and enables the channel with the fan at full speed.
func NewPWMFan(chip, channel, periodNs int) (*PWMFan, error) {
	return newPWMFan(pwm.NewPin(chip, channel), periodNs)
}

func newPWMFan(pin dutyPin, periodNs int) (*PWMFan, error) {
	if periodNs <= 0 {
		periodNs = DefaultPeriodNs
	}
	if err := pin.Export(); err != nil {
		return nil, fmt.Errorf("export pwm: %w", err)
	}
	if err := pin.SetPeriod(uint32(periodNs)); err != nil {
		return nil, fmt.Errorf("set pwm period: %w", err)
	}
	if err := pin.SetDutyCyclePercent(control.SafeDutyCycle); err != nil {
		return nil, fmt.Errorf("set pwm duty cycle: %w", err)
	}
	if err := pin.Enable(true); err != nil {
		return nil, fmt.Errorf("enable pwm: %w", err)
	}
	log.Infof("PWM fan ready on %v, period %d ns", pin, periodNs)
	return &PWMFan{pin: pin}, nil
}

func (f *PWMFan) SetDutyCycle(_ context.Context, pct float64) error {
	if err := control.ValidateDutyCycle(pct); err != nil {
		return err
	}
	log.Debugf("fan duty cycle %.2f%%", pct)
	return f.pin.SetDutyCyclePercent(pct)
}

// Close leaves the fan running at full speed.
func (f *PWMFan) Close() error {
	return f.pin.SetDutyCyclePercent(control.SafeDutyCycle)
}
