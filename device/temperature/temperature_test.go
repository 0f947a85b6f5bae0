package temperature

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLM75Conversion(t *testing.T) {
	cases := []struct {
		raw  [2]byte
		want float64
	}{
		{[2]byte{0x19, 0x80}, 25.5},
		{[2]byte{0x00, 0x00}, 0},
		{[2]byte{0xE7, 0x00}, -25},
		{[2]byte{0xFF, 0x80}, -0.5},
	}
	for _, c := range cases {
		if got := lm75Celsius(c.raw); got != c.want {
			t.Errorf("%x: got %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestThermalZone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(path, []byte("48312\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewThermalZone(path, time.Second)
	rs := s.ReadNextValues(context.Background())
	if len(rs) != 1 {
		t.Fatalf("got %d readings", len(rs))
	}
	if rs[0].Value != 48.312 || rs[0].Source != CPUSource || rs[0].Override {
		t.Errorf("reading %+v", rs[0])
	}
	if dev, _ := rs[0].Meta("device"); dev != "thermal_zone" {
		t.Errorf("device metadata %q", dev)
	}
}

func TestFailedReadReturnsNothing(t *testing.T) {
	s := NewThermalZone(filepath.Join(t.TempDir(), "missing"), time.Second)
	if rs := s.ReadNextValues(context.Background()); len(rs) != 0 {
		t.Errorf("got %v", rs)
	}
}

func TestReadTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newSensor("stuck", "test", 20*time.Millisecond, func() (float64, error) {
		<-release
		return 1, nil
	})

	start := time.Now()
	_, err := s.readWithTimeout(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not applied")
	}
}

func TestHungReadIsNotRestarted(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})
	s := newSensor("hung", "test", 10*time.Millisecond, func() (float64, error) {
		started.Add(1)
		<-release
		return 21.5, nil
	})

	for i := 0; i < 50; i++ {
		if rs := s.ReadNextValues(context.Background()); len(rs) != 0 {
			t.Fatalf("tick %d: got %v", i, rs)
		}
	}
	if n := started.Load(); n != 1 {
		t.Fatalf("%d reads started while the first one hung", n)
	}
	if _, err := s.readWithTimeout(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("got %v, want ErrBusy", err)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		rs := s.ReadNextValues(context.Background())
		if len(rs) == 1 {
			if rs[0].Value != 21.5 {
				t.Errorf("reading %+v", rs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sensor did not recover after the device returned")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeBMP struct {
	id     byte
	writes map[uint8]uint8
}

func (f *fakeBMP) ReadReg(cmd uint8) (uint8, error) { return f.id, nil }

func (f *fakeBMP) WriteReg(cmd, data uint8) error {
	f.writes[cmd] = data
	return nil
}

func (f *fakeBMP) ReadN(cmd uint8, n int) ([]byte, error) {
	switch cmd {
	case bmpRegCalib:
		// dig_T1 = 27504, dig_T2 = 26435, dig_T3 = -1000
		return []byte{0x70, 0x6B, 0x43, 0x67, 0x18, 0xFC}[:n], nil
	case bmpRegTemp:
		// adc_T = 519888
		return []byte{0x7E, 0xED, 0x00}, nil
	}
	return nil, errors.New("unexpected register")
}

func (f *fakeBMP) Close() error { return nil }

func TestBMP280Compensation(t *testing.T) {
	dev := &fakeBMP{id: bmpChipID280, writes: map[uint8]uint8{}}
	b, err := newBMP280(dev)
	if err != nil {
		t.Fatal(err)
	}
	if b.calib != (bmpCalibration{T1: 27504, T2: 26435, T3: -1000}) {
		t.Fatalf("calibration %+v", b.calib)
	}

	got, err := b.read()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-25.08) > 0.01 {
		t.Errorf("temperature %v, want about 25.08", got)
	}
	if dev.writes[bmpRegCtrlMeas] != bmpForcedMeasurement {
		t.Error("forced measurement not triggered")
	}
}

func TestBMP280RejectsUnknownChip(t *testing.T) {
	if _, err := newBMP280(&fakeBMP{id: 0x42}); err == nil {
		t.Error("expected error for wrong chip id")
	}
}

// edgesFor builds falling edge timestamps transmitting frame.
func edgesFor(frame [5]byte) []time.Duration {
	ts := 100 * time.Microsecond
	edges := []time.Duration{0, ts} // response start, first bit
	for i := 0; i < dhtBits; i++ {
		bit := frame[i/8] >> (7 - uint(i%8)) & 1
		period := 77 * time.Microsecond
		if bit == 1 {
			period = 120 * time.Microsecond
		}
		ts += period
		edges = append(edges, ts)
	}
	return edges
}

func TestDHT22Frame(t *testing.T) {
	// 65.2 %RH, -10.1 C
	frame := [5]byte{0x02, 0x8C, 0x80, 0x65, 0}
	frame[4] = frame[0] + frame[1] + frame[2] + frame[3]

	decoded, err := decodeDHT22(edgesFor(frame))
	if err != nil {
		t.Fatal(err)
	}
	if decoded != frame {
		t.Fatalf("decoded %x, want %x", decoded, frame)
	}
	c, h, err := parseDHT22(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(c+10.1) > 1e-9 || math.Abs(h-65.2) > 1e-9 {
		t.Errorf("got %v C %v %%", c, h)
	}
}

func TestDHT22Errors(t *testing.T) {
	if _, err := decodeDHT22(make([]time.Duration, 10)); !errors.Is(err, ErrDHTShortFrame) {
		t.Errorf("short: %v", err)
	}
	if _, _, err := parseDHT22([5]byte{1, 2, 3, 4, 0}); !errors.Is(err, ErrDHTChecksum) {
		t.Errorf("checksum: %v", err)
	}
}
