package smbus

import "fmt"

// Device binds a bus to one address so drivers can use plain register calls.
type Device struct {
	bus  *SysIF
	addr uint16
}

// Open opens /dev/i2c-<bus> for the device at addr. Closing the device
// closes the bus.
func Open(bus int, addr uint8) (*Device, error) {
	sysIF, err := New(fmt.Sprintf("/dev/i2c-%d", bus))
	if err != nil {
		return nil, err
	}
	return &Device{bus: sysIF, addr: uint16(addr)}, nil
}

func (d *Device) ReadReg(cmd uint8) (uint8, error) {
	return d.bus.ReadByte(d.addr, cmd)
}

func (d *Device) WriteReg(cmd, data uint8) error {
	return d.bus.WriteByte(d.addr, cmd, data)
}

func (d *Device) ReadN(cmd uint8, n int) ([]byte, error) {
	return d.bus.ReadN(d.addr, cmd, n)
}

func (d *Device) Close() error {
	return d.bus.Close()
}
