// Package device picks the fan hardware once at startup: the real PWM fan,
// tachometer and sensors, or stand-ins that let the daemon run anywhere.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"pifanctrl/config"
	"pifanctrl/control"
	"pifanctrl/device/fan"
	"pifanctrl/device/powerstate"
	"pifanctrl/device/pwm"
	"pifanctrl/device/temperature"
	"pifanctrl/log"
	"pifanctrl/sensor"
)

var ErrNoHardware = errors.New("fan hardware not found")

// Hardware is what the control loops need from the machine.
type Hardware struct {
	Mode     string
	Actuator control.Actuator
	Rpm      sensor.FanRpmSensor
	Sensors  []sensor.TemperatureSensor

	closers []io.Closer
}

func (h *Hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Probe reports whether the machine has a PWM controller and GPIO chip.
var Probe = func(tachoChip string) bool {
	return exists(pwm.SysfsRoot) && exists("/dev/"+tachoChip)
}

// Resolve maps the configured mode to gpio or dummy.
func Resolve(mode, tachoChip string) (string, error) {
	switch mode {
	case config.HardwareDummy:
		return config.HardwareDummy, nil
	case config.HardwareGPIO:
		if !Probe(tachoChip) {
			return "", fmt.Errorf("%w: no %s or /dev/%s", ErrNoHardware, pwm.SysfsRoot, tachoChip)
		}
		return config.HardwareGPIO, nil
	case config.HardwareAuto, "":
		if Probe(tachoChip) {
			return config.HardwareGPIO, nil
		}
		log.Infof("no PWM hardware found, running with dummy fan")
		return config.HardwareDummy, nil
	}
	return "", fmt.Errorf("%w: %q", config.ErrUnknownHardwareMode, mode)
}

// New opens the hardware selected by cfg. Handles that fail to open are
// retried cfg.StartupRetries times; after that the error is returned and
// everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config) (*Hardware, error) {
	mode, err := Resolve(cfg.Hardware, cfg.TachoChip)
	if err != nil {
		return nil, err
	}
	h := &Hardware{Mode: mode}

	if err := h.openFan(ctx, cfg); err != nil {
		h.Close()
		return nil, err
	}
	if err := h.openSensors(ctx, cfg); err != nil {
		h.Close()
		return nil, err
	}
	log.Infof("hardware mode %s: %d temperature sensors, rpm from %s", h.Mode, len(h.Sensors), h.Rpm.Name())
	return h, nil
}

func (h *Hardware) openFan(ctx context.Context, cfg *config.Config) error {
	if h.Mode == config.HardwareDummy {
		h.Actuator = &DummyActuator{}
		h.Rpm = DummyRpm{}
		return nil
	}

	if cfg.PowerPin >= 0 {
		power, err := control.Retry(ctx, cfg.StartupRetries, cfg.StartupDelay, "fan power pin", func() (*powerstate.PowerPin, error) {
			return powerstate.Open(cfg.PowerPin)
		})
		if err != nil {
			return err
		}
		h.closers = append(h.closers, power)
	}

	pwmFan, err := control.Retry(ctx, cfg.StartupRetries, cfg.StartupDelay, "pwm fan", func() (*fan.PWMFan, error) {
		return fan.NewPWMFan(cfg.PwmChip, cfg.PwmChannel, cfg.PwmPeriodNs)
	})
	if err != nil {
		return err
	}
	h.Actuator = pwmFan
	h.closers = append(h.closers, pwmFan)

	tacho, err := control.Retry(ctx, cfg.StartupRetries, cfg.StartupDelay, "tachometer", func() (*fan.Tachometer, error) {
		return fan.StartTachometer(cfg.TachoChip, cfg.TachoPin)
	})
	if err != nil {
		return err
	}
	h.Rpm = tacho
	h.closers = append(h.closers, tacho)
	return nil
}

// DefaultSensors is used on real hardware when no sensor is configured.
func DefaultSensors() []config.SensorConfig {
	return []config.SensorConfig{{Type: config.SensorBMP280, Bus: 1, Address: temperature.AddrBMP280}}
}

func (h *Hardware) openSensors(ctx context.Context, cfg *config.Config) error {
	list := cfg.Sensors
	if len(list) == 0 && h.Mode == config.HardwareGPIO {
		list = DefaultSensors()
	}

	for i, sc := range list {
		if h.Mode == config.HardwareDummy {
			switch sc.Type {
			case config.SensorLM75, config.SensorBMP280, config.SensorDHT22:
				log.Infof("dummy hardware: skipping %s sensor", sc.Type)
				continue
			}
		}

		switch sc.Type {
		case config.SensorLM75:
			h.Sensors = append(h.Sensors, temperature.NewLM75(sc.Bus, sc.Address, sc.Timeout))
		case config.SensorBMP280:
			s, err := control.Retry(ctx, cfg.StartupRetries, cfg.StartupDelay, "bmp280", func() (*temperature.Sensor, error) {
				return temperature.NewBMP280(sc.Bus, sc.Address, sc.Timeout)
			})
			if err != nil {
				return err
			}
			h.Sensors = append(h.Sensors, s)
			h.closers = append(h.closers, s)
		case config.SensorDHT22:
			h.Sensors = append(h.Sensors, temperature.NewDHT22(sc.Chip, sc.Pin, sc.Timeout))
		case config.SensorCPU:
			h.Sensors = append(h.Sensors, temperature.NewThermalZone(sc.Path, sc.Timeout))
		case config.SensorDummy:
			h.Sensors = append(h.Sensors, NewFixedSensor(i, sc.Value))
		case config.SensorMQTT:
			// needs the broker connection; wired by the caller
		default:
			return fmt.Errorf("%w: %q", config.ErrUnknownSensorType, sc.Type)
		}
	}
	return nil
}
