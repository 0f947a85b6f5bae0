package temperature

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"pifanctrl/device/smbus"
)

const (
	AddrBMP280 = 0x76

	bmpRegChipID   = 0xD0
	bmpRegCalib    = 0x88
	bmpRegCtrlMeas = 0xF4
	bmpRegTemp     = 0xFA

	bmpChipID280       = 0x58
	bmpChipID280Sample = 0x56
	bmpChipIDBME280    = 0x60

	// temperature x1, pressure x1, forced mode
	bmpForcedMeasurement = 0x25
	bmpMeasureTime       = 10 * time.Millisecond
)

type bmpCalibration struct {
	T1 uint16
	T2 int16
	T3 int16
}

func parseCalibration(b []byte) bmpCalibration {
	return bmpCalibration{
		T1: binary.LittleEndian.Uint16(b[0:2]),
		T2: int16(binary.LittleEndian.Uint16(b[2:4])),
		T3: int16(binary.LittleEndian.Uint16(b[4:6])),
	}
}

// celsius applies the datasheet's floating point compensation formula to
// a raw 20 bit temperature sample.
func (c bmpCalibration) celsius(adc int32) float64 {
	v1 := (float64(adc)/16384 - float64(c.T1)/1024) * float64(c.T2)
	d := float64(adc)/131072 - float64(c.T1)/8192
	v2 := d * d * float64(c.T3)
	return (v1 + v2) / 5120
}

type bmpRegisters interface {
	ReadReg(cmd uint8) (uint8, error)
	WriteReg(cmd, data uint8) error
	ReadN(cmd uint8, n int) ([]byte, error)
	Close() error
}

type bmp280 struct {
	mu    sync.Mutex
	dev   bmpRegisters
	calib bmpCalibration
}

// NewBMP280 opens the chip and reads its calibration. Temperature is
// sampled in forced mode on every read.
func NewBMP280(bus, addr int, timeout time.Duration) (*Sensor, error) {
	dev, err := smbus.Open(bus, uint8(addr))
	if err != nil {
		return nil, err
	}
	b, err := newBMP280(dev)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("bmp280 on bus %d addr %#x: %w", bus, addr, err)
	}
	s := newSensor(fmt.Sprintf("BMP280-Bus-%d-Addr-%d", bus, addr), "bmp280", timeout, b.read)
	s.close = dev.Close
	return s, nil
}

func newBMP280(dev bmpRegisters) (*bmp280, error) {
	id, err := dev.ReadReg(bmpRegChipID)
	if err != nil {
		return nil, err
	}
	switch id {
	case bmpChipID280, bmpChipID280Sample, bmpChipIDBME280:
	default:
		return nil, fmt.Errorf("unexpected chip id %#x", id)
	}
	cal, err := dev.ReadN(bmpRegCalib, 6)
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	return &bmp280{dev: dev, calib: parseCalibration(cal)}, nil
}

func (b *bmp280) read() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.dev.WriteReg(bmpRegCtrlMeas, bmpForcedMeasurement); err != nil {
		return 0, err
	}
	time.Sleep(bmpMeasureTime)

	raw, err := b.dev.ReadN(bmpRegTemp, 3)
	if err != nil {
		return 0, err
	}
	adc := int32(raw[0])<<12 | int32(raw[1])<<4 | int32(raw[2])>>4
	return b.calib.celsius(adc), nil
}
