package temperature

import (
	"fmt"
	"time"

	"pifanctrl/device/i2c"
)

const AddrLM75 = 0x48

// NewLM75 reads an LM75 compatible sensor. The bus is opened for every read
// so a sensor that drops off the bus recovers on its own.
func NewLM75(bus, addr int, timeout time.Duration) *Sensor {
	name := fmt.Sprintf("LM75-Bus-%d-Addr-%d", bus, addr)
	return newSensor(name, "lm75", timeout, func() (float64, error) {
		return readLM75(bus, addr)
	})
}

func readLM75(bus int, addr int) (float64, error) {
	dev, err := i2c.Open(bus, addr)
	if err != nil {
		return 0, err
	}
	defer dev.Close()

	var temp [2]byte
	if err := dev.ReadReg(0, temp[:]); err != nil {
		return 0, err
	}
	return lm75Celsius(temp), nil
}

func lm75Celsius(b [2]byte) float64 {
	return float64(int8(b[0])) + float64(b[1])/256
}
