// Package curve turns a temperature into a fan duty cycle using a
// logarithmic curve fitted through user-defined control points.
package curve

import (
	"math"
	"sync"
	"sync/atomic"

	"pifanctrl/log"
)

const FailSafeSpeed = 100.0

type compiled struct {
	settings Settings
	fit      Fit
	err      error
}

// Calculator is safe for concurrent use. Settings changes rebuild the curve
// under a mutex and publish it with an atomic swap; Calculate never blocks.
type Calculator struct {
	mu      sync.Mutex
	initial Settings
	current atomic.Pointer[compiled]
}

func NewCalculator(s Settings) *Calculator {
	c := &Calculator{initial: s.Clone()}
	c.install(s)
	return c
}

func (c *Calculator) install(s Settings) {
	s = s.Clone()
	fit, err := Build(s)
	if err != nil {
		log.Errorf("fan curve rejected, running at %.0f%%: %s", FailSafeSpeed, err)
	} else {
		log.Debugf("fan curve y = %.4f + %.4f*ln(t) over %d active points", fit.A, fit.B, len(s.ActivePoints()))
	}
	c.current.Store(&compiled{settings: s, fit: fit, err: err})
}

// Settings returns a copy of the current settings.
func (c *Calculator) Settings() Settings {
	return c.current.Load().settings.Clone()
}

// UpdateSettings replaces the current settings. It returns the curve build
// error, if any; the settings are installed either way and evaluation then
// fails safe.
func (c *Calculator) UpdateSettings(s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.install(s)
	return c.current.Load().err
}

// Modify applies fn to the current settings atomically with respect to
// other updates.
func (c *Calculator) Modify(fn func(Settings) (Settings, error)) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(c.current.Load().settings.Clone())
	if err != nil {
		return Settings{}, err
	}
	c.install(next)
	return next.Clone(), c.current.Load().err
}

func (c *Calculator) ResetSettings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.install(c.initial)
}

// Err reports why the current curve cannot be evaluated, nil when it can.
func (c *Calculator) Err() error {
	return c.current.Load().err
}

// Calculate returns the duty cycle for temperature t in percent, always
// within [MinimumSpeed, 100]. Any failure yields 100.
func (c *Calculator) Calculate(t float64) float64 {
	cur := c.current.Load()
	if cur.err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return FailSafeSpeed
	}
	s := cur.settings

	var pct float64
	switch {
	case t <= s.MinimumSpeedTemperature:
		pct = s.MinimumSpeed
	case t >= s.PanicFromTemperature:
		pct = math.Max(cur.fit.At(t), s.PanicSpeed)
	default:
		pct = cur.fit.At(t)
	}
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return FailSafeSpeed
	}

	lo := math.Max(0, math.Min(s.MinimumSpeed, FailSafeSpeed))
	return math.Max(lo, math.Min(pct, FailSafeSpeed))
}
