// Package i2c talks to devices on /dev/i2c-N through the kernel's character
// device interface.
package i2c

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave selects the target address for subsequent reads and writes.
const i2cSlave = 0x0703

// DevPath returns the character device of an I2C bus.
func DevPath(bus int) string {
	return fmt.Sprintf("/dev/i2c-%d", bus)
}

type conn interface {
	// Tx writes w (if not nil) and then reads len(r) bytes into r (if not nil).
	Tx(w, r []byte) error
	Close() error
}

type devfsConn struct {
	f *os.File
}

func open(dev string, addr int) (conn, error) {
	f, err := os.OpenFile(dev, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, addr); err != nil {
		f.Close()
		return nil, fmt.Errorf("select address %#x on %s: %w", addr, dev, err)
	}
	return &devfsConn{f: f}, nil
}

func (c *devfsConn) Tx(w, r []byte) error {
	if w != nil {
		if _, err := c.f.Write(w); err != nil {
			return err
		}
	}
	if r != nil {
		if _, err := io.ReadFull(c.f, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *devfsConn) Close() error {
	return c.f.Close()
}

// Dev is one device on a bus. Transactions are serialized.
type Dev struct {
	mu   sync.Mutex
	conn conn
	Bus  int
	Addr int
}

func Open(bus int, addr int) (*Dev, error) {
	c, err := open(DevPath(bus), addr)
	if err != nil {
		return nil, err
	}
	return &Dev{conn: c, Bus: bus, Addr: addr}, nil
}

func (d *Dev) ReadReg(reg byte, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Tx([]byte{reg}, buf)
}

func (d *Dev) WriteReg(reg byte, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Tx(append([]byte{reg}, buf...), nil)
}

func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Close()
}
