package temperature

import (
	"errors"
	"fmt"
	"time"
)

const (
	dhtBits = 40
	// A bit is 50us low followed by 26-28us (0) or 70us (1) high, so the
	// distance between two falling edges is about 78us or 120us.
	dhtOneThreshold = 100 * time.Microsecond
	dhtMaxBitPeriod = 250 * time.Microsecond
	// The sensor needs a rest between two conversions.
	dhtMinInterval = 2 * time.Second
)

var (
	ErrDHTShortFrame = errors.New("dht22: incomplete frame")
	ErrDHTChecksum   = errors.New("dht22: checksum mismatch")
)

// decodeDHT22 turns the timestamps of the falling edges of one transmission
// into the 5 byte frame. The last 41 edges delimit the 40 data bits.
func decodeDHT22(falling []time.Duration) ([5]byte, error) {
	var frame [5]byte
	if len(falling) < dhtBits+1 {
		return frame, fmt.Errorf("%w: %d edges", ErrDHTShortFrame, len(falling))
	}
	edges := falling[len(falling)-dhtBits-1:]
	for i := 0; i < dhtBits; i++ {
		period := edges[i+1] - edges[i]
		if period <= 0 || period > dhtMaxBitPeriod {
			return frame, fmt.Errorf("%w: bit %d lasted %v", ErrDHTShortFrame, i, period)
		}
		frame[i/8] <<= 1
		if period > dhtOneThreshold {
			frame[i/8] |= 1
		}
	}
	return frame, nil
}

// parseDHT22 returns temperature and relative humidity of a frame.
func parseDHT22(f [5]byte) (celsius, humidity float64, err error) {
	if f[0]+f[1]+f[2]+f[3] != f[4] {
		return 0, 0, fmt.Errorf("%w: %x", ErrDHTChecksum, f)
	}
	humidity = float64(uint16(f[0])<<8|uint16(f[1])) / 10
	celsius = float64(uint16(f[2]&0x7f)<<8|uint16(f[3])) / 10
	if f[2]&0x80 != 0 {
		celsius = -celsius
	}
	return celsius, humidity, nil
}
