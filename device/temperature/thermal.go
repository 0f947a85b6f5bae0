package temperature

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	CPUZone   = "/sys/class/thermal/thermal_zone0/temp"
	CPUSource = "CPU"
)

// NewThermalZone reads a sysfs thermal zone reporting millidegrees.
func NewThermalZone(path string, timeout time.Duration) *Sensor {
	if path == "" {
		path = CPUZone
	}
	return newSensor(CPUSource, "thermal_zone", timeout, func() (float64, error) {
		return readThermalZone(path)
	})
}

func readThermalZone(path string) (float64, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(milli) / 1000, nil
}
