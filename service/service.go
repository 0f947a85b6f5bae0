// Package service holds the operator commands shared by the command API and
// the HTTP API: inspecting readings and settings, simulating temperatures,
// and pinning or overriding the fan.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pifanctrl/control"
	"pifanctrl/curve"
	"pifanctrl/log"
	"pifanctrl/reading"
	"pifanctrl/sensor"
	"pifanctrl/status"
	"pifanctrl/system"
	"pifanctrl/version"
)

// Events passed to the Notifier after a command changed something.
const (
	EventTemperatureSimulated = "temperatureSimulated"
	EventFanSpeedSet          = "fanSpeedSet"
	EventFanSettingsReset     = "fanSettingsReset"
	EventSettingsChanged      = "settingsChanged"
	EventOverride             = "dutyCycleOverride"
)

var ErrInvalidInput = errors.New("invalid input")

// Invalid reports whether err was caused by a bad argument rather than a
// failure of the daemon.
func Invalid(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, sensor.ErrInvalidTemperature) ||
		errors.Is(err, control.ErrOutOfRange) ||
		errors.Is(err, curve.ErrInvalidSettings) ||
		errors.Is(err, curve.ErrDegenerateCurve)
}

type Notifier interface {
	Notify(event string, payload any)
}

type Readings interface {
	GetAll() []reading.Reading
	Latest(source string) (reading.Reading, bool)
	Sources() []string
}

type Service struct {
	store  Readings
	calc   *curve.Calculator
	sim    *sensor.Simulated
	duty   *control.DutyCycle
	status *status.Provider

	notifiers []Notifier
}

func New(store Readings, calc *curve.Calculator, sim *sensor.Simulated, duty *control.DutyCycle, st *status.Provider) *Service {
	return &Service{store: store, calc: calc, sim: sim, duty: duty, status: st}
}

// AddNotifier must be called before the service is shared.
func (s *Service) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

func (s *Service) notify(event string, payload any) {
	for _, n := range s.notifiers {
		n.Notify(event, payload)
	}
}

func (s *Service) Summary() status.SystemInfo {
	return s.status.Latest()
}

type VersionInfo struct {
	version.VersionConfig
	Board system.BoardInfo `json:"board"`
}

func (s *Service) Version() VersionInfo {
	return VersionInfo{VersionConfig: version.GetVersionConfig(), Board: system.GetSystemInfo()}
}

// Filter selects readings; empty fields match everything.
type Filter struct {
	Source      string `json:"source,omitempty"`
	Measurement string `json:"measurement,omitempty"`
	Latest      bool   `json:"latest,omitempty"`
}

// Readings returns the buffered readings matching f, oldest first. With
// f.Latest only the newest reading of each source is returned.
func (s *Service) Readings(f Filter) ([]reading.Reading, error) {
	var kind *reading.Kind
	if f.Measurement != "" {
		k, err := reading.ParseKind(f.Measurement)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		kind = &k
	}
	match := func(r reading.Reading) bool {
		return (f.Source == "" || r.Source == f.Source) && (kind == nil || r.Kind == *kind)
	}

	out := []reading.Reading{}
	if f.Latest {
		for _, src := range s.store.Sources() {
			if r, ok := s.store.Latest(src); ok && match(r) {
				out = append(out, r)
			}
		}
		return out, nil
	}
	for _, r := range s.store.GetAll() {
		if match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) Settings() curve.Settings {
	return s.calc.Settings()
}

// UpdateSettings validates and installs new settings. Settings whose curve
// cannot be built are refused and the current ones stay in place.
func (s *Service) UpdateSettings(next curve.Settings) (curve.Settings, error) {
	if err := next.Validate(); err != nil {
		return curve.Settings{}, err
	}
	if _, err := curve.Build(next); err != nil {
		return curve.Settings{}, err
	}
	out, err := s.calc.Modify(func(curve.Settings) (curve.Settings, error) { return next, nil })
	if err != nil {
		return curve.Settings{}, err
	}
	s.notify(EventSettingsChanged, out)
	return out, nil
}

// apply installs fn's result only when it validates and its curve builds.
func (s *Service) apply(fn func(curve.Settings) (curve.Settings, error)) (curve.Settings, error) {
	return s.calc.Modify(func(cur curve.Settings) (curve.Settings, error) {
		next, err := fn(cur)
		if err != nil {
			return curve.Settings{}, err
		}
		if err := next.Validate(); err != nil {
			return curve.Settings{}, err
		}
		if _, err := curve.Build(next); err != nil {
			return curve.Settings{}, err
		}
		return next, nil
	})
}

func (s *Service) modify(fn func(curve.Settings) (curve.Settings, error)) (curve.Settings, error) {
	out, err := s.apply(fn)
	if err != nil {
		return curve.Settings{}, err
	}
	s.notify(EventSettingsChanged, out)
	return out, nil
}

func (s *Service) AddPoint(temperature, fanPercentage float64) (curve.Settings, error) {
	return s.modify(func(cur curve.Settings) (curve.Settings, error) {
		return cur.AddPoint(curve.NewPoint(temperature, fanPercentage)), nil
	})
}

func (s *Service) RemovePoint(id uuid.UUID) (curve.Settings, error) {
	return s.modify(func(cur curve.Settings) (curve.Settings, error) {
		return cur.RemovePoint(id)
	})
}

func (s *Service) SetPointActive(id uuid.UUID, active bool) (curve.Settings, error) {
	return s.modify(func(cur curve.Settings) (curve.Settings, error) {
		return cur.SetPointActive(id, active)
	})
}

// SetFanSpeed pins the curve to pct by moving both the minimum and the
// panic speed. Like the other edits it is refused when the resulting curve
// cannot be built.
func (s *Service) SetFanSpeed(pct float64) (curve.Settings, error) {
	if err := control.ValidateDutyCycle(pct); err != nil {
		return curve.Settings{}, err
	}
	out, err := s.apply(func(cur curve.Settings) (curve.Settings, error) {
		return cur.WithSpeed(pct), nil
	})
	if err != nil {
		return curve.Settings{}, fmt.Errorf("fan speed %.1f%%: %w", pct, err)
	}
	log.Infof("fan speed set to %.1f%%", pct)
	s.notify(EventFanSpeedSet, map[string]float64{"speedPercentage": pct})
	return out, nil
}

func (s *Service) Simulate(celsius float64) error {
	if err := s.sim.Simulate(celsius); err != nil {
		return err
	}
	log.Infof("simulating temperature %.2f", celsius)
	s.notify(EventTemperatureSimulated, map[string]float64{"temperature": celsius})
	return nil
}

// Reset restores the configured settings and stops the simulation.
func (s *Service) Reset() curve.Settings {
	s.calc.ResetSettings()
	s.sim.Reset()
	log.Infof("fan settings reset")
	s.notify(EventFanSettingsReset, struct{}{})
	return s.calc.Settings()
}

func (s *Service) Override(ctx context.Context, pct float64) error {
	if err := s.duty.Override(ctx, pct); err != nil {
		return err
	}
	s.notify(EventOverride, map[string]any{"active": true, "percentage": pct})
	return nil
}

func (s *Service) Release(ctx context.Context) error {
	if err := s.duty.Reset(ctx); err != nil {
		return err
	}
	s.notify(EventOverride, map[string]any{"active": false})
	return nil
}
