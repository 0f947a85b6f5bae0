// Package powerstate switches the fan supply through a GPIO enable pin.
package powerstate

import (
	"fmt"
	"sync"

	"gobot.io/x/gobot/sysfs"

	"pifanctrl/log"
)

type digitalPin interface {
	Export() error
	Unexport() error
	Direction(string) error
	Write(int) error
	Read() (int, error)
}

// PowerPin drives the fan's power-enable line. The fan is powered whenever
// the daemon runs and stays powered after it exits.
type PowerPin struct {
	mu  sync.Mutex
	pin digitalPin
	num int
	on  bool
}

// Open exports the sysfs GPIO num as an output and powers the fan.
func Open(num int) (*PowerPin, error) {
	return open(sysfs.NewDigitalPin(num), num)
}

func open(pin digitalPin, num int) (*PowerPin, error) {
	if err := pin.Export(); err != nil {
		return nil, fmt.Errorf("export gpio %d: %w", num, err)
	}
	if err := pin.Direction(sysfs.OUT); err != nil {
		_ = pin.Unexport()
		return nil, fmt.Errorf("gpio %d direction: %w", num, err)
	}
	p := &PowerPin{pin: pin, num: num}
	if err := p.PowerOn(); err != nil {
		_ = pin.Unexport()
		return nil, err
	}
	return p, nil
}

func (p *PowerPin) PowerOn() error {
	return p.set(true)
}

func (p *PowerPin) PowerOff() error {
	return p.set(false)
}

func (p *PowerPin) set(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := sysfs.LOW
	if on {
		v = sysfs.HIGH
	}
	if err := p.pin.Write(v); err != nil {
		return fmt.Errorf("gpio %d write %d: %w", p.num, v, err)
	}
	if p.on != on {
		log.Infof("fan power %s (gpio %d)", map[bool]string{true: "on", false: "off"}[on], p.num)
	}
	p.on = on
	return nil
}

// IsOn reads the line back.
func (p *PowerPin) IsOn() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.pin.Read()
	if err != nil {
		return true, err // assume powered to be safe
	}
	return v == sysfs.HIGH, nil
}

// Close drives the line high one last time and leaves it exported.
func (p *PowerPin) Close() error {
	return p.PowerOn()
}
