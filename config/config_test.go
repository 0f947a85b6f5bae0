package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
sensors:
  - type: bmp280
    bus: 1
    address: 118
    timeout: 2s
  - type: dht22
    chip: gpiochip0
    pin: 4
  - type: cpu
curve:
  minimum_speed_temperature: 35
  minimum_speed: 25
  panic_from_temperature: 65
  panic_speed: 100
  points:
    - temperature: 55
      fan_percentage: 70
    - id: 6f1d3c2a-9b7e-4d1f-8a2b-3c4d5e6f7a8b
      temperature: 45
      fan_percentage: 40
      active: false
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Sensors) != 3 {
		t.Fatalf("got %d sensors", len(f.Sensors))
	}
	if s := f.Sensors[0]; s.Type != SensorBMP280 || s.Bus != 1 || s.Address != 118 || s.Timeout != 2*time.Second {
		t.Errorf("bmp280: %+v", s)
	}

	c := f.Curve.Settings()
	if c.MinimumSpeedTemperature != 35 || c.PanicSpeed != 100 || c.FallbackTemperature != 60 {
		t.Errorf("curve: %+v", c)
	}
	if len(c.Points) != 2 || c.Points[0].Temperature != 45 || c.Points[1].Temperature != 55 {
		t.Fatalf("points not sorted: %+v", c.Points)
	}
	if c.Points[0].Active || !c.Points[1].Active {
		t.Errorf("active flags: %+v", c.Points)
	}
	if c.Points[0].ID.String() != "6f1d3c2a-9b7e-4d1f-8a2b-3c4d5e6f7a8b" {
		t.Errorf("explicit id lost: %s", c.Points[0].ID)
	}
	if c.Points[1].ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("missing id was not generated")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("sensors: [")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("got %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PIFAN_HARDWARE", "dummy")
	t.Setenv("PIFAN_STORE_CAPACITY", "250")
	t.Setenv("PIFAN_READ_INTERVAL", "750ms")
	t.Setenv("PIFAN_DEBUG", "true")
	t.Setenv("PIFAN_TACHO_PIN", "not-a-number")
	t.Setenv("PIFAN_SIMULATE", "45.5")

	cfg := FromEnv()
	if cfg.Hardware != HardwareDummy || cfg.StoreCapacity != 250 || cfg.ReadInterval != 750*time.Millisecond || !cfg.Debug {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.SimulateTemperature != 45.5 {
		t.Errorf("simulated temperature = %v", cfg.SimulateTemperature)
	}
	if cfg.TachoPin != 26 {
		t.Errorf("bad int should fall back to default, got %d", cfg.TachoPin)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   error
	}{
		"capacity":      {func(c *Config) { c.StoreCapacity = 0 }, ErrInvalidConfig},
		"interval":      {func(c *Config) { c.DutyInterval = 0 }, ErrInvalidConfig},
		"pwm period":    {func(c *Config) { c.PwmPeriodNs = 0 }, ErrInvalidConfig},
		"retries":       {func(c *Config) { c.StartupRetries = 0 }, ErrInvalidConfig},
		"hardware":      {func(c *Config) { c.Hardware = "fpga" }, ErrUnknownHardwareMode},
		"sensor type":   {func(c *Config) { c.Sensors = []SensorConfig{{Type: "unifi"}} }, ErrUnknownSensorType},
		"i2c address":   {func(c *Config) { c.Sensors = []SensorConfig{{Type: SensorLM75, Address: 0x200}} }, ErrInvalidConfig},
		"curve speed":   {func(c *Config) { c.Curve = c.Curve.WithSpeed(120) }, ErrInvalidConfig},
		"simulation":    {func(c *Config) { c.SimulateTemperature = 250 }, ErrInvalidConfig},
		"negative wait": {func(c *Config) { c.Sensors = []SensorConfig{{Type: SensorCPU, Timeout: -time.Second}} }, ErrInvalidConfig},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := FromEnv()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pifanctrl.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIFAN_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sensors) != 3 || cfg.Curve.MinimumSpeed != 25 {
		t.Errorf("file not applied: %+v", cfg)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("PIFAN_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sensors) != 0 || cfg.Curve.MinimumSpeed != 20 {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}
