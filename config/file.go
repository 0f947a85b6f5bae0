package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"pifanctrl/curve"
)

// Sensor types accepted in the YAML file.
const (
	SensorLM75   = "lm75"
	SensorBMP280 = "bmp280"
	SensorDHT22  = "dht22"
	SensorCPU    = "cpu"
	SensorMQTT   = "mqtt"
	SensorDummy  = "dummy"
)

type SensorConfig struct {
	Type    string        `yaml:"type"`
	Bus     int           `yaml:"bus"`
	Address int           `yaml:"address"`
	Chip    string        `yaml:"chip"`
	Pin     int           `yaml:"pin"`
	Path    string        `yaml:"path"`
	Value   float64       `yaml:"value"`
	Timeout time.Duration `yaml:"timeout"`
}

func (s SensorConfig) Validate() error {
	switch s.Type {
	case SensorLM75, SensorBMP280:
		if s.Address <= 0 || s.Address > 0x7f {
			return fmt.Errorf("%w: %s address %#x", ErrInvalidConfig, s.Type, s.Address)
		}
	case SensorDHT22:
		if s.Pin < 0 {
			return fmt.Errorf("%w: dht22 pin %d", ErrInvalidConfig, s.Pin)
		}
	case SensorCPU, SensorMQTT, SensorDummy:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSensorType, s.Type)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: %s timeout %v", ErrInvalidConfig, s.Type, s.Timeout)
	}
	return nil
}

type CurveFile struct {
	MinimumSpeedTemperature float64     `yaml:"minimum_speed_temperature"`
	MinimumSpeed            float64     `yaml:"minimum_speed"`
	PanicFromTemperature    float64     `yaml:"panic_from_temperature"`
	PanicSpeed              float64     `yaml:"panic_speed"`
	FallbackTemperature     *float64    `yaml:"fallback_temperature"`
	Points                  []PointFile `yaml:"points"`
}

// PointFile is a curve point as written by hand: the id is optional and
// points are active unless stated otherwise.
type PointFile struct {
	ID            uuid.UUID `yaml:"id"`
	Active        *bool     `yaml:"active"`
	Temperature   float64   `yaml:"temperature"`
	FanPercentage float64   `yaml:"fan_percentage"`
}

// Settings converts the file section, giving points without an id a fresh
// one.
func (f *CurveFile) Settings() curve.Settings {
	s := curve.Settings{
		MinimumSpeedTemperature: f.MinimumSpeedTemperature,
		MinimumSpeed:            f.MinimumSpeed,
		PanicFromTemperature:    f.PanicFromTemperature,
		PanicSpeed:              f.PanicSpeed,
		FallbackTemperature:     curve.DefaultSettings().FallbackTemperature,
	}
	if f.FallbackTemperature != nil {
		s.FallbackTemperature = *f.FallbackTemperature
	}
	for _, pf := range f.Points {
		p := curve.NewPoint(pf.Temperature, pf.FanPercentage)
		if pf.ID != uuid.Nil {
			p.ID = pf.ID
		}
		if pf.Active != nil {
			p.Active = *pf.Active
		}
		s = s.AddPoint(p)
	}
	return s
}

type File struct {
	Sensors []SensorConfig `yaml:"sensors"`
	Curve   *CurveFile     `yaml:"curve"`
}

func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &f, nil
}
