package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pifanctrl/reading"
)

const (
	MinTemperature = -273.15
	MaxTemperature = 200.0
)

var ErrInvalidTemperature = errors.New("temperature out of range")

// Simulated is a manual override source. While a value is set it reports a
// single override reading, which takes precedence over every real sensor.
type Simulated struct {
	mu    sync.Mutex
	value float64
	set   bool
}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Name() string {
	return reading.SimulatedSource
}

func (s *Simulated) Simulate(celsius float64) error {
	if !(celsius >= MinTemperature && celsius <= MaxTemperature) {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidTemperature, celsius, MinTemperature, MaxTemperature)
	}
	s.mu.Lock()
	s.value = celsius
	s.set = true
	s.mu.Unlock()
	return nil
}

func (s *Simulated) Reset() {
	s.mu.Lock()
	s.set = false
	s.value = 0
	s.mu.Unlock()
}

func (s *Simulated) Value() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.set
}

func (s *Simulated) ReadNextValues(context.Context) []reading.Reading {
	v, ok := s.Value()
	if !ok {
		return nil
	}
	return []reading.Reading{reading.NewTemperature(reading.SimulatedSource, v, true)}
}
