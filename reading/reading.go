// Package reading defines the measurement values that flow between sensors,
// the reading store and the push/telemetry layers.
package reading

import (
	"math"
	"time"
)

// Well-known logical sources. Consumers key lookups by these names.
const (
	AggregateSource = "Aggregate"
	SimulatedSource = "Simulated"
	DutyCycleSource = "Calculated"
)

type Kind int

const (
	KindTemperature Kind = iota
	KindFanRpm
	KindDutyCycle
)

func (k Kind) Measurement() string {
	switch k {
	case KindTemperature:
		return "Temperature"
	case KindFanRpm:
		return "FanRpm"
	case KindDutyCycle:
		return "DutyCycle"
	}
	return "Unknown"
}

func (k Kind) String() string {
	return k.Measurement()
}

// Reading is an immutable measurement. Values are copied on every
// modification; the metadata map is never shared between two readings.
type Reading struct {
	Kind     Kind
	Source   string
	Value    float64
	AsOf     time.Time
	Override bool // temperature only: value was forced, not measured

	meta map[string]string
}

func NewTemperature(source string, value float64, override bool) Reading {
	return Reading{
		Kind:     KindTemperature,
		Source:   source,
		Value:    value,
		AsOf:     time.Now().UTC(),
		Override: override,
	}
}

func NewFanRpm(source string, value float64) Reading {
	return Reading{Kind: KindFanRpm, Source: source, Value: value, AsOf: time.Now().UTC()}
}

func NewDutyCycle(source string, value float64) Reading {
	return Reading{Kind: KindDutyCycle, Source: source, Value: value, AsOf: time.Now().UTC()}
}

func (r Reading) Measurement() string {
	return r.Kind.Measurement()
}

// Active reports whether the reading may take part in averaging.
func (r Reading) Active() bool {
	return !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0)
}

// At returns a copy observed at t.
func (r Reading) At(t time.Time) Reading {
	r.meta = r.Metadata()
	r.AsOf = t
	return r
}

// WithMeta returns a copy carrying the additional metadata entry.
func (r Reading) WithMeta(key, value string) Reading {
	m := make(map[string]string, len(r.meta)+1)
	for k, v := range r.meta {
		m[k] = v
	}
	m[key] = value
	r.meta = m
	return r
}

func (r Reading) Meta(key string) (string, bool) {
	v, ok := r.meta[key]
	return v, ok
}

// Metadata returns a copy of the metadata, nil when there is none.
func (r Reading) Metadata() map[string]string {
	if len(r.meta) == 0 {
		return nil
	}
	m := make(map[string]string, len(r.meta))
	for k, v := range r.meta {
		m[k] = v
	}
	return m
}
