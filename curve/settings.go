package curve

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrInvalidSettings = errors.New("invalid fan settings")
	ErrPointNotFound   = errors.New("curve point not found")
)

// Point is a user-editable control point. Inactive points stay in the
// settings but are left out of the fit.
type Point struct {
	ID            uuid.UUID `json:"id" yaml:"id"`
	Active        bool      `json:"active" yaml:"active"`
	Temperature   float64   `json:"temperature" yaml:"temperature"`
	FanPercentage float64   `json:"fanPercentage" yaml:"fan_percentage"`
}

func NewPoint(temperature, fanPercentage float64) Point {
	return Point{ID: uuid.New(), Active: true, Temperature: temperature, FanPercentage: fanPercentage}
}

// Settings is an immutable value: every modifier returns a new copy and
// leaves the receiver untouched.
type Settings struct {
	MinimumSpeedTemperature float64 `json:"minimumSpeedTemperature" yaml:"minimum_speed_temperature"`
	MinimumSpeed            float64 `json:"minimumSpeed" yaml:"minimum_speed"`
	PanicFromTemperature    float64 `json:"panicFromTemperature" yaml:"panic_from_temperature"`
	PanicSpeed              float64 `json:"panicSpeed" yaml:"panic_speed"`
	FallbackTemperature     float64 `json:"fallbackTemperature" yaml:"fallback_temperature"`
	Points                  []Point `json:"points" yaml:"points"`
}

func DefaultSettings() Settings {
	return Settings{
		MinimumSpeedTemperature: 30,
		MinimumSpeed:            20,
		PanicFromTemperature:    70,
		PanicSpeed:              100,
		FallbackTemperature:     60,
	}
}

func (s Settings) Clone() Settings {
	c := s
	if s.Points != nil {
		c.Points = make([]Point, len(s.Points))
		copy(c.Points, s.Points)
	}
	return c
}

// AddPoint inserts p keeping the points ordered by temperature.
func (s Settings) AddPoint(p Point) Settings {
	c := s.Clone()
	i := sort.Search(len(c.Points), func(i int) bool {
		return c.Points[i].Temperature > p.Temperature
	})
	c.Points = append(c.Points, Point{})
	copy(c.Points[i+1:], c.Points[i:])
	c.Points[i] = p
	return c
}

func (s Settings) RemovePoint(id uuid.UUID) (Settings, error) {
	c := s.Clone()
	for i, p := range c.Points {
		if p.ID == id {
			c.Points = append(c.Points[:i], c.Points[i+1:]...)
			return c, nil
		}
	}
	return s, fmt.Errorf("%w: %s", ErrPointNotFound, id)
}

func (s Settings) SetPointActive(id uuid.UUID, active bool) (Settings, error) {
	c := s.Clone()
	for i := range c.Points {
		if c.Points[i].ID == id {
			c.Points[i].Active = active
			return c, nil
		}
	}
	return s, fmt.Errorf("%w: %s", ErrPointNotFound, id)
}

// WithSpeed pins the fan to pct by setting both the minimum and the panic
// speed to it.
func (s Settings) WithSpeed(pct float64) Settings {
	c := s.Clone()
	c.MinimumSpeed = pct
	c.PanicSpeed = pct
	return c
}

// ActivePoints returns the active points sorted by temperature.
func (s Settings) ActivePoints() []Point {
	var out []Point
	for _, p := range s.Points {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Temperature < out[j].Temperature })
	return out
}

const (
	minTemperature = -273.15
	maxTemperature = 200.0
)

// Validate checks the numeric domain of every field. The calculator accepts
// any settings; request handlers call this before UpdateSettings.
func (s Settings) Validate() error {
	temps := map[string]float64{
		"minimum speed temperature": s.MinimumSpeedTemperature,
		"panic temperature":         s.PanicFromTemperature,
		"fallback temperature":      s.FallbackTemperature,
	}
	speeds := map[string]float64{
		"minimum speed": s.MinimumSpeed,
		"panic speed":   s.PanicSpeed,
	}
	for _, p := range s.Points {
		temps["point "+p.ID.String()+" temperature"] = p.Temperature
		speeds["point "+p.ID.String()+" speed"] = p.FanPercentage
	}

	for name, v := range temps {
		if !(v >= minTemperature && v <= maxTemperature) {
			return fmt.Errorf("%w: %s %v not in [%v, %v]", ErrInvalidSettings, name, v, minTemperature, maxTemperature)
		}
	}
	for name, v := range speeds {
		if !(v >= 0 && v <= 100) {
			return fmt.Errorf("%w: %s %v not in [0, 100]", ErrInvalidSettings, name, v)
		}
	}
	return nil
}
