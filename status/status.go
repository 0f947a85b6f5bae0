// Package status assembles the system summary served by the HTTP and
// command APIs.
package status

import (
	"time"

	"pifanctrl/reading"
	"pifanctrl/util"
	"pifanctrl/version"
)

// Missing is reported for values that have no reading yet.
const Missing = -1.0

type SystemInfo struct {
	AggregatedTemperature float64   `json:"aggregatedTemperature"`
	MeasuredTemperature   float64   `json:"measuredTemperature"`
	PwmPercentage         float64   `json:"pwmPercentage"`
	AppliedPercentage     float64   `json:"appliedPercentage"`
	MeasuredFanRpm        float64   `json:"measuredFanRpm"`
	Simulated             bool      `json:"simulated"`
	Overridden            bool      `json:"overridden"`
	AsOf                  time.Time `json:"asOf"`
	Uptime                string    `json:"uptime"`
	Version               string    `json:"version"`
}

type LatestReader interface {
	Latest(source string) (reading.Reading, bool)
}

type DutyState interface {
	Sent() (float64, bool)
	Overridden() bool
}

type Provider struct {
	store          LatestReader
	duty           DutyState
	measuredSource string
	rpmSource      string
}

// NewProvider reports measuredSource as the measured temperature and
// rpmSource as the fan speed. duty may be nil.
func NewProvider(store LatestReader, duty DutyState, measuredSource, rpmSource string) *Provider {
	return &Provider{store: store, duty: duty, measuredSource: measuredSource, rpmSource: rpmSource}
}

func (p *Provider) value(source string) float64 {
	if source == "" {
		return Missing
	}
	if r, ok := p.store.Latest(source); ok && r.Active() {
		return r.Value
	}
	return Missing
}

func (p *Provider) Latest() SystemInfo {
	info := SystemInfo{
		AggregatedTemperature: p.value(reading.AggregateSource),
		MeasuredTemperature:   p.value(p.measuredSource),
		PwmPercentage:         p.value(reading.DutyCycleSource),
		AppliedPercentage:     Missing,
		MeasuredFanRpm:        p.value(p.rpmSource),
		AsOf:                  time.Now().UTC(),
		Uptime:                util.UptimeInString(),
		Version:               version.Version,
	}
	if r, ok := p.store.Latest(reading.AggregateSource); ok {
		info.Simulated = r.Override
	}
	if p.duty != nil {
		if v, ok := p.duty.Sent(); ok {
			info.AppliedPercentage = v
		}
		info.Overridden = p.duty.Overridden()
	}
	return info
}
