//go:build linux
// +build linux

package fan

import (
	"context"
	"fmt"

	"github.com/warthog618/gpiod"

	"pifanctrl/log"
)

// StartTachometer counts rising edges of pin on the given gpio chip until
// Close is called.
func StartTachometer(chip string, pin int) (*Tachometer, error) {
	t := newTachometer(pin)

	line, err := gpiod.RequestLine(chip, pin,
		gpiod.WithPullUp,
		gpiod.WithRisingEdge,
		gpiod.WithEventHandler(func(gpiod.LineEvent) { t.pulse() }))
	if err != nil {
		return nil, fmt.Errorf("request tacho line %s/%d: %w", chip, pin, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go t.run(ctx)

	t.stop = func() error {
		cancel()
		return line.Close()
	}
	log.Infof("tachometer on %s pin %d", chip, pin)
	return t, nil
}
