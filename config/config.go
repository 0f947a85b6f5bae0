// Package config loads the daemon settings from the environment (with an
// optional .env file) and the sensor list and fan curve from a YAML file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"pifanctrl/curve"
	"pifanctrl/log"
)

var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrUnknownSensorType   = errors.New("unknown sensor type")
	ErrUnknownHardwareMode = errors.New("unknown hardware mode")
)

const (
	HardwareAuto  = "auto"
	HardwareGPIO  = "gpio"
	HardwareDummy = "dummy"
)

type Config struct {
	// Servers
	ListenAddr string
	APIAddr    string

	// Hardware
	Hardware    string
	PwmChip     int
	PwmChannel  int
	PwmPeriodNs int
	TachoChip   string
	TachoPin    int
	PowerPin    int // < 0 disables the fan power-enable pin

	// Loops
	ReadInterval   time.Duration
	RpmInterval    time.Duration
	DutyInterval   time.Duration
	StoreCapacity  int
	StartupRetries int
	StartupDelay   time.Duration

	// Status
	MeasuredSource string

	// SimulateTemperature starts the simulated sensor at this value; NaN
	// leaves it off.
	SimulateTemperature float64

	// MQTT, disabled when MQTTBroker is empty
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTSensorTopic string
	MQTTMaxAge      time.Duration

	Debug      bool
	ConfigFile string

	Sensors []SensorConfig
	Curve   curve.Settings
}

// Load reads .env if present, then PIFAN_* variables, then the YAML file
// named by PIFAN_CONFIG. A missing YAML file leaves the defaults in place.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func FromEnv() *Config {
	return &Config{
		ListenAddr: getEnv("PIFAN_LISTEN", ":8080"),
		APIAddr:    getEnv("PIFAN_API", "127.0.0.1:4028"),

		Hardware:    getEnv("PIFAN_HARDWARE", HardwareAuto),
		PwmChip:     getEnvInt("PIFAN_PWM_CHIP", 0),
		PwmChannel:  getEnvInt("PIFAN_PWM_CHANNEL", 0),
		PwmPeriodNs: getEnvInt("PIFAN_PWM_PERIOD_NS", 40000),
		TachoChip:   getEnv("PIFAN_TACHO_CHIP", "gpiochip0"),
		TachoPin:    getEnvInt("PIFAN_TACHO_PIN", 26),
		PowerPin:    getEnvInt("PIFAN_POWER_PIN", -1),

		ReadInterval:   getEnvDuration("PIFAN_READ_INTERVAL", 5*time.Second),
		RpmInterval:    getEnvDuration("PIFAN_RPM_INTERVAL", 5*time.Second),
		DutyInterval:   getEnvDuration("PIFAN_DUTY_INTERVAL", 5*time.Second),
		StoreCapacity:  getEnvInt("PIFAN_STORE_CAPACITY", 1000),
		StartupRetries: getEnvInt("PIFAN_STARTUP_RETRIES", 5),
		StartupDelay:   getEnvDuration("PIFAN_STARTUP_DELAY", 2*time.Second),

		MeasuredSource:      getEnv("PIFAN_MEASURED_SOURCE", "BMP280-Bus-1-Addr-118"),
		SimulateTemperature: getEnvFloat("PIFAN_SIMULATE", math.NaN()),

		MQTTBroker:      getEnv("PIFAN_MQTT_BROKER", ""),
		MQTTClientID:    getEnv("PIFAN_MQTT_CLIENT_ID", "pifanctrl"),
		MQTTUsername:    getEnv("PIFAN_MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("PIFAN_MQTT_PASSWORD", ""),
		MQTTTopicPrefix: getEnv("PIFAN_MQTT_TOPIC_PREFIX", "pifan"),
		MQTTSensorTopic: getEnv("PIFAN_MQTT_SENSOR_TOPIC", "sensor/+/temperature"),
		MQTTMaxAge:      getEnvDuration("PIFAN_MQTT_MAX_AGE", 2*time.Minute),

		Debug:      getEnvBool("PIFAN_DEBUG", false),
		ConfigFile: getEnv("PIFAN_CONFIG", "pifanctrl.yaml"),

		Curve: curve.DefaultSettings(),
	}
}

func (c *Config) loadFile() error {
	if c.ConfigFile == "" {
		return nil
	}
	f, err := ReadFile(c.ConfigFile)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("config file %s not found, using defaults", c.ConfigFile)
		return nil
	}
	if err != nil {
		return err
	}
	c.Apply(f)
	return nil
}

// Apply merges a parsed YAML file into c.
func (c *Config) Apply(f *File) {
	if len(f.Sensors) > 0 {
		c.Sensors = f.Sensors
	}
	if f.Curve != nil {
		c.Curve = f.Curve.Settings()
	}
}

func (c *Config) Validate() error {
	switch c.Hardware {
	case HardwareAuto, HardwareGPIO, HardwareDummy:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownHardwareMode, c.Hardware)
	}
	if c.StoreCapacity <= 0 {
		return fmt.Errorf("%w: store capacity %d", ErrInvalidConfig, c.StoreCapacity)
	}
	for name, d := range map[string]time.Duration{
		"read interval": c.ReadInterval,
		"rpm interval":  c.RpmInterval,
		"duty interval": c.DutyInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s %v", ErrInvalidConfig, name, d)
		}
	}
	if c.PwmPeriodNs <= 0 {
		return fmt.Errorf("%w: pwm period %d ns", ErrInvalidConfig, c.PwmPeriodNs)
	}
	if c.StartupRetries < 1 {
		return fmt.Errorf("%w: startup retries %d", ErrInvalidConfig, c.StartupRetries)
	}
	for i, s := range c.Sensors {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sensor %d: %w", i, err)
		}
	}
	if t := c.SimulateTemperature; !math.IsNaN(t) && (t < -273.15 || t > 200) {
		return fmt.Errorf("%w: simulated temperature %v", ErrInvalidConfig, t)
	}
	if err := c.Curve.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("failed to parse %s as int, using default %d: %v", key, defaultValue, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warnf("failed to parse %s as float, using default %v: %v", key, defaultValue, err)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Warnf("failed to parse %s as bool, using default %v: %v", key, defaultValue, err)
		return defaultValue
	}
	return boolValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warnf("failed to parse %s as duration, using default %v: %v", key, defaultValue, err)
		return defaultValue
	}
	return d
}
