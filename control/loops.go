package control

import (
	"context"
	"strconv"
	"time"

	"pifanctrl/curve"
	"pifanctrl/log"
	"pifanctrl/reading"
	"pifanctrl/sensor"
)

type Fuser interface {
	ReadAndFuse(ctx context.Context) (reading.Reading, bool)
}

// Store is the part of the reading store the duty cycle loop needs.
type Store interface {
	sensor.Recorder
	GetLatest(source string) (float64, bool)
}

func NewTemperatureLoop(agg Fuser, interval time.Duration) *Worker {
	return &Worker{
		Name:     "temperature",
		Interval: interval,
		Work: func(ctx context.Context) error {
			if r, ok := agg.ReadAndFuse(ctx); ok {
				log.Debugf("aggregate temperature %.2f override=%v", r.Value, r.Override)
			}
			return nil
		},
	}
}

func NewRpmLoop(s sensor.FanRpmSensor, rec sensor.Recorder, interval time.Duration) *Worker {
	return &Worker{
		Name:     "rpm",
		Interval: interval,
		Work: func(ctx context.Context) error {
			r, ok := s.ReadNextValue(ctx)
			if !ok {
				return nil
			}
			rec.Add(r)
			return nil
		},
	}
}

// NewDutyCycleLoop evaluates the curve against the latest aggregate
// temperature, or the fallback temperature when there is none yet. The fan
// runs at full speed while the loop starts and after it stops.
func NewDutyCycleLoop(st Store, calc *curve.Calculator, duty *DutyCycle, interval time.Duration) *Worker {
	return &Worker{
		Name:     "duty-cycle",
		Interval: interval,
		OnStart: func(ctx context.Context) error {
			return duty.Force(ctx, SafeDutyCycle)
		},
		Work: func(ctx context.Context) error {
			temp, ok := st.GetLatest(reading.AggregateSource)
			if !ok {
				temp = calc.Settings().FallbackTemperature
				log.Debugf("no aggregate temperature yet, using fallback %.1f", temp)
			}
			pct := calc.Calculate(temp)
			st.Add(reading.NewDutyCycle(reading.DutyCycleSource, pct).
				WithMeta("temperature", strconv.FormatFloat(temp, 'f', 2, 64)))
			return duty.Set(ctx, pct)
		},
		OnStop: func(ctx context.Context) error {
			return duty.Force(ctx, SafeDutyCycle)
		},
	}
}
