package sensor

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"pifanctrl/log"
	"pifanctrl/reading"
)

// Aggregator reads every configured temperature sensor concurrently and
// fuses the results into one Aggregate reading per call.
type Aggregator struct {
	rec     Recorder
	sensors []TemperatureSensor
}

func NewAggregator(rec Recorder, sensors ...TemperatureSensor) *Aggregator {
	return &Aggregator{rec: rec, sensors: sensors}
}

func (a *Aggregator) Name() string {
	return reading.AggregateSource
}

func (a *Aggregator) Sensors() []TemperatureSensor {
	out := make([]TemperatureSensor, len(a.sensors))
	copy(out, a.sensors)
	return out
}

// ReadAndFuse queries all sensors, stores the raw readings followed by the
// fused one and returns the fused reading. When the sensors yield nothing
// usable the store is left untouched and ok is false.
func (a *Aggregator) ReadAndFuse(ctx context.Context) (fused reading.Reading, ok bool) {
	raw := a.collect(ctx)
	if len(raw) == 0 {
		log.Debugf("aggregator: no readings from %d sensors", len(a.sensors))
		return reading.Reading{}, false
	}

	fused, ok = Fuse(raw)
	if !ok {
		log.Debugf("aggregator: %d readings, none usable", len(raw))
		return reading.Reading{}, false
	}

	if a.rec != nil {
		a.rec.AddRange(raw...)
		a.rec.Add(fused)
	}
	return fused, true
}

func (a *Aggregator) ReadNextValues(ctx context.Context) []reading.Reading {
	if r, ok := a.ReadAndFuse(ctx); ok {
		return []reading.Reading{r}
	}
	return nil
}

func (a *Aggregator) collect(ctx context.Context) []reading.Reading {
	results := make([][]reading.Reading, len(a.sensors))

	var g errgroup.Group
	for i, s := range a.sensors {
		i, s := i, s
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					log.Errorf("sensor %s panicked: %v", s.Name(), p)
				}
			}()
			results[i] = s.ReadNextValues(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var raw []reading.Reading
	for _, rs := range results {
		for _, r := range rs {
			if r.Kind == reading.KindTemperature {
				raw = append(raw, r)
			}
		}
	}
	return raw
}

// Fuse combines raw temperature readings. Override readings win: when any
// are present only they are averaged and the result is flagged as override.
// Otherwise all active readings are averaged.
func Fuse(raw []reading.Reading) (reading.Reading, bool) {
	var overrides, measured []float64
	for _, r := range raw {
		if !r.Active() {
			continue
		}
		if r.Override {
			overrides = append(overrides, r.Value)
		} else {
			measured = append(measured, r.Value)
		}
	}

	values, override := measured, false
	if len(overrides) > 0 {
		values, override = overrides, true
	}
	if len(values) == 0 {
		return reading.Reading{}, false
	}

	return reading.NewTemperature(reading.AggregateSource, mean(values), override).
		WithMeta("inputs", strconv.Itoa(len(values))), true
}

func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
