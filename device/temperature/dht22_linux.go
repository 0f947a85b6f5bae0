//go:build linux
// +build linux

package temperature

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/gpiod"
)

type dht22 struct {
	mu       sync.Mutex
	chip     string
	pin      int
	last     time.Time
	lastTemp float64
}

// NewDHT22 reads a DHT22 (AM2302) on a GPIO line by timing the edges of its
// one-wire response.
func NewDHT22(chip string, pin int, timeout time.Duration) *Sensor {
	if chip == "" {
		chip = "gpiochip0"
	}
	d := &dht22{chip: chip, pin: pin}
	return newSensor(fmt.Sprintf("DHT22-Pin-%d", pin), "dht22", timeout, d.read)
}

func (d *dht22) read() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.last.IsZero() && time.Since(d.last) < dhtMinInterval {
		return d.lastTemp, nil
	}

	// start signal: hold the line low for at least 1ms
	out, err := gpiod.RequestLine(d.chip, d.pin, gpiod.AsOutput(0))
	if err != nil {
		return 0, fmt.Errorf("request dht22 line: %w", err)
	}
	time.Sleep(2 * time.Millisecond)
	out.Close()

	var (
		emu     sync.Mutex
		falling []time.Duration
	)
	in, err := gpiod.RequestLine(d.chip, d.pin,
		gpiod.WithPullUp,
		gpiod.WithBothEdges,
		gpiod.WithEventHandler(func(evt gpiod.LineEvent) {
			if evt.Type == gpiod.LineEventFallingEdge {
				emu.Lock()
				falling = append(falling, evt.Timestamp)
				emu.Unlock()
			}
		}))
	if err != nil {
		return 0, fmt.Errorf("request dht22 line: %w", err)
	}
	// the whole response takes about 5ms
	time.Sleep(20 * time.Millisecond)
	in.Close()

	emu.Lock()
	edges := append([]time.Duration(nil), falling...)
	emu.Unlock()

	frame, err := decodeDHT22(edges)
	if err != nil {
		return 0, err
	}
	celsius, _, err := parseDHT22(frame)
	if err != nil {
		return 0, err
	}
	d.last, d.lastTemp = time.Now(), celsius
	return celsius, nil
}
