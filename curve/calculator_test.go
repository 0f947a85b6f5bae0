package curve

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateDefaultCurve(t *testing.T) {
	c := NewCalculator(DefaultSettings())

	want := 20 + 80*math.Log(50.0/30)/math.Log(70.0/30)
	if got := c.Calculate(50); !almost(got, want) {
		t.Errorf("Calculate(50): got %v, want %v", got, want)
	}
	if got := c.Calculate(30); got != 20 {
		t.Errorf("Calculate(30): got %v, want 20", got)
	}
	if got := c.Calculate(70); !almost(got, 100) {
		t.Errorf("Calculate(70): got %v, want 100", got)
	}
}

func TestCalculateClampsExtremes(t *testing.T) {
	s := DefaultSettings().
		AddPoint(NewPoint(45, 35)).
		AddPoint(NewPoint(60, 80))
	c := NewCalculator(s)

	for _, temp := range []float64{-200, -40, 0, 1e-9, 29.9, 500, 1e6} {
		got := c.Calculate(temp)
		if got < s.MinimumSpeed || got > 100 {
			t.Errorf("Calculate(%v) = %v, outside [%v, 100]", temp, got, s.MinimumSpeed)
		}
	}
	if got := c.Calculate(-200); got != s.MinimumSpeed {
		t.Errorf("Calculate(-200): got %v, want minimum speed", got)
	}
	if got := c.Calculate(500); got != 100 {
		t.Errorf("Calculate(500): got %v, want 100", got)
	}
}

func TestPanicSpeedIsAFloor(t *testing.T) {
	s := DefaultSettings()
	s.PanicSpeed = 60
	s = s.AddPoint(NewPoint(50, 90)) // pulls the fit above panic speed
	c := NewCalculator(s)

	if got := c.Calculate(80); got < 60 {
		t.Errorf("Calculate(80): got %v, below panic speed", got)
	}
}

func TestDegenerateCurvesFailOpen(t *testing.T) {
	cases := map[string]Settings{
		"equal anchors":    {MinimumSpeedTemperature: 50, MinimumSpeed: 20, PanicFromTemperature: 50, PanicSpeed: 100},
		"inverted anchors": {MinimumSpeedTemperature: 70, MinimumSpeed: 20, PanicFromTemperature: 30, PanicSpeed: 100},
		"non-positive min": {MinimumSpeedTemperature: -10, MinimumSpeed: 20, PanicFromTemperature: 70, PanicSpeed: 100},
		"zero min":         {MinimumSpeedTemperature: 0, MinimumSpeed: 20, PanicFromTemperature: 70, PanicSpeed: 100},
		"nan speed":        {MinimumSpeedTemperature: 30, MinimumSpeed: math.NaN(), PanicFromTemperature: 70, PanicSpeed: 100},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewCalculator(s)
			if !errors.Is(c.Err(), ErrDegenerateCurve) {
				t.Errorf("Err: got %v, want ErrDegenerateCurve", c.Err())
			}
			for _, temp := range []float64{-200, 20, 50, 500} {
				if got := c.Calculate(temp); got != 100 {
					t.Errorf("Calculate(%v): got %v, want 100", temp, got)
				}
			}
		})
	}
}

func TestNonFiniteTemperatureFailsOpen(t *testing.T) {
	c := NewCalculator(DefaultSettings())
	for _, temp := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := c.Calculate(temp); got != 100 {
			t.Errorf("Calculate(%v): got %v, want 100", temp, got)
		}
	}
}

// Consistent point sets must give a curve that never lowers the fan speed
// as the temperature rises.
func TestCurveIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		minT := 1 + rng.Float64()*40
		panicT := minT + 5 + rng.Float64()*60
		minS := rng.Float64() * 50
		panicS := minS + rng.Float64()*(100-minS)

		s := Settings{
			MinimumSpeedTemperature: minT,
			MinimumSpeed:            minS,
			PanicFromTemperature:    panicT,
			PanicSpeed:              panicS,
		}

		n := rng.Intn(6)
		temps := make([]float64, n)
		speeds := make([]float64, n)
		for i := range temps {
			temps[i] = minT + rng.Float64()*(panicT-minT)
			speeds[i] = minS + rng.Float64()*(panicS-minS)
		}
		sortFloats(temps)
		sortFloats(speeds)
		for i := range temps {
			p := NewPoint(temps[i], speeds[i])
			p.Active = rng.Intn(4) != 0
			s = s.AddPoint(p)
		}

		c := NewCalculator(s)
		if err := c.Err(); err != nil {
			t.Fatalf("iteration %d: %v", iter, err)
		}

		prev := -1.0
		for temp := minT - 10; temp <= panicT+10; temp += 0.25 {
			got := c.Calculate(temp)
			if got < prev-1e-9 {
				t.Fatalf("iteration %d: Calculate(%v) = %v dropped below %v (settings %+v)", iter, temp, got, prev, s)
			}
			if got < minS-1e-9 || got > 100 {
				t.Fatalf("iteration %d: Calculate(%v) = %v outside [%v, 100]", iter, temp, got, minS)
			}
			prev = got
		}
	}
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

func TestInactivePointsAreIgnored(t *testing.T) {
	base := NewCalculator(DefaultSettings())

	p := NewPoint(40, 95)
	p.Active = false
	c := NewCalculator(DefaultSettings().AddPoint(p))

	if got, want := c.Calculate(50), base.Calculate(50); got != want {
		t.Errorf("inactive point changed the curve: %v != %v", got, want)
	}
	if len(c.Settings().Points) != 1 {
		t.Error("inactive point was dropped from the settings")
	}
}

func TestUpdateAndResetSettings(t *testing.T) {
	initial := DefaultSettings().AddPoint(NewPoint(50, 50))
	c := NewCalculator(initial)
	initial.Points[0].FanPercentage = 0 // caller keeps mutating its copy

	if got := c.Settings().Points[0].FanPercentage; got != 50 {
		t.Fatalf("calculator shares the caller's points: %v", got)
	}

	if err := c.UpdateSettings(DefaultSettings().WithSpeed(40)); err != nil {
		t.Fatal(err)
	}
	for _, temp := range []float64{10, 45, 90} {
		if got := c.Calculate(temp); !almost(got, 40) {
			t.Errorf("fixed speed: Calculate(%v) = %v, want 40", temp, got)
		}
	}

	c.ResetSettings()
	s := c.Settings()
	if s.MinimumSpeed != 20 || len(s.Points) != 1 || s.Points[0].FanPercentage != 50 {
		t.Errorf("reset restored %+v", s)
	}
}

func TestModify(t *testing.T) {
	c := NewCalculator(DefaultSettings())
	p := NewPoint(40, 30)

	s, err := c.Modify(func(s Settings) (Settings, error) { return s.AddPoint(p), nil })
	if err != nil || len(s.Points) != 1 {
		t.Fatalf("add: %v %+v", err, s)
	}

	_, err = c.Modify(func(s Settings) (Settings, error) { return s.RemovePoint(NewPoint(0, 0).ID) })
	if !errors.Is(err, ErrPointNotFound) {
		t.Errorf("remove unknown: got %v", err)
	}
	if len(c.Settings().Points) != 1 {
		t.Error("failed modification changed the settings")
	}
}

func TestConcurrentCalculateAndUpdate(t *testing.T) {
	c := NewCalculator(DefaultSettings())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = c.UpdateSettings(DefaultSettings().WithSpeed(float64((i*7 + j) % 100)))
				c.ResetSettings()
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				if v := c.Calculate(float64(j % 120)); v < 0 || v > 100 {
					t.Errorf("Calculate returned %v", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}
