// Package sensor defines the capabilities the control loops consume from
// temperature and fan RPM producers and fuses many temperature sources into
// one value per cycle.
package sensor

import (
	"context"

	"pifanctrl/reading"
)

// TemperatureSensor returns zero or more readings per call. An empty result
// means a transient failure; the implementation owns its read timeout.
type TemperatureSensor interface {
	Name() string
	ReadNextValues(ctx context.Context) []reading.Reading
}

type FanRpmSensor interface {
	Name() string
	ReadNextValue(ctx context.Context) (reading.Reading, bool)
}

// Recorder is the write side of the reading store.
type Recorder interface {
	Add(r reading.Reading)
	AddRange(rs ...reading.Reading)
}
