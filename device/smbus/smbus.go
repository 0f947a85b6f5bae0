// Package smbus is a wrapper around the periph.io library for SMBus style
// register access. It avoids using cgo, unsafe and syscalls.
package smbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// SysIF is one I2C bus. All transactions on it are serialized.
type SysIF struct {
	BusName string
	Bus     i2c.BusCloser
	i2cmu   sync.Mutex
}

// New opens a bus by periph name, e.g. "1" or "/dev/i2c-1".
func New(busName string) (*SysIF, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %s: %w", busName, err)
	}
	return NewWithBus(busName, bus), nil
}

func NewWithBus(busName string, bus i2c.BusCloser) *SysIF {
	return &SysIF{BusName: busName, Bus: bus}
}

func (s *SysIF) Close() error {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()
	return s.Bus.Close()
}

// periph.io takes the 7 bit address without the read/write bit, as uint16.

// ReadN reads nbytes starting at register cmd.
func (s *SysIF) ReadN(addr uint16, cmd uint8, nbytes int) ([]byte, error) {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()

	d := &i2c.Dev{Addr: addr, Bus: s.Bus}

	read := make([]byte, nbytes)
	if err := d.Tx([]byte{cmd}, read); err != nil {
		return nil, err
	}
	return read, nil
}

// WriteN writes data starting at register cmd.
func (s *SysIF) WriteN(addr uint16, cmd uint8, data []byte) error {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()

	d := &i2c.Dev{Addr: addr, Bus: s.Bus}
	_, err := d.Write(append([]byte{cmd}, data...))
	return err
}

func (s *SysIF) ReadByte(addr uint16, cmd uint8) (byte, error) {
	ret, err := s.ReadN(addr, cmd, 1)
	if err != nil {
		return 0, err
	}
	return ret[0], nil
}

func (s *SysIF) WriteByte(addr uint16, cmd uint8, data byte) error {
	return s.WriteN(addr, cmd, []byte{data})
}
