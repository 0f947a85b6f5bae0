package fan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asecurityteam/rolling"

	"pifanctrl/reading"
)

const (
	slots        = 8                      // 4 seconds of history
	SlotDuration = 500 * time.Millisecond // one counter slot
	pulsesPerRev = 2
	smoothing    = 4 // RPM samples averaged by RPM()
)

// Tachometer counts rising edges in 0.5s slots and derives the RPM from the
// last three complete slots.
type Tachometer struct {
	pin int

	mu      sync.Mutex
	counter [slots]int
	cursor  int
	samples int

	smooth *rolling.PointPolicy
	stop   func() error
}

func newTachometer(pin int) *Tachometer {
	return &Tachometer{
		pin:    pin,
		smooth: rolling.NewPointPolicy(rolling.NewWindow(smoothing)),
	}
}

func (t *Tachometer) Name() string {
	return fmt.Sprintf("RPM-Pin-%d", t.pin)
}

func (t *Tachometer) pulse() {
	t.mu.Lock()
	t.counter[t.cursor]++
	t.mu.Unlock()
}

// advance closes the current slot and records the RPM of the last 1.5s.
func (t *Tachometer) advance() float64 {
	t.mu.Lock()
	next := (t.cursor + 1) % slots
	t.counter[next] = 0
	t.cursor = next

	prev1 := (t.cursor + slots - 1) % slots
	prev2 := (prev1 + slots - 1) % slots
	prev3 := (prev2 + slots - 1) % slots
	// pulses in 1.5s * 40 = pulses per minute
	rpm := float64((t.counter[prev3]+t.counter[prev2]+t.counter[prev1])*40) / pulsesPerRev
	t.samples++
	t.mu.Unlock()

	t.smooth.Append(rpm)
	return rpm
}

// RPM is the average of the most recent samples.
func (t *Tachometer) RPM() (float64, bool) {
	t.mu.Lock()
	n := t.samples
	t.mu.Unlock()
	if n < 3 { // first three slots are not complete yet
		return 0, false
	}
	return t.smooth.Reduce(rolling.Avg), true
}

func (t *Tachometer) ReadNextValue(context.Context) (reading.Reading, bool) {
	rpm, ok := t.RPM()
	if !ok {
		return reading.Reading{}, false
	}
	return reading.NewFanRpm(t.Name(), rpm), true
}

// run advances the slots until ctx is done.
func (t *Tachometer) run(ctx context.Context) {
	tick := time.NewTicker(SlotDuration)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.advance()
		}
	}
}

func (t *Tachometer) Close() error {
	if t.stop == nil {
		return nil
	}
	return t.stop()
}
