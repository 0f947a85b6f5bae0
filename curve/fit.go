package curve

import (
	"errors"
	"fmt"
	"math"
)

var ErrDegenerateCurve = errors.New("degenerate fan curve")

// Fit is the least-squares solution of y = A + B*ln(x).
type Fit struct {
	A, B float64
}

func (f Fit) At(x float64) float64 {
	return f.A + f.B*math.Log(x)
}

func FitLog(xs, ys []float64) (Fit, error) {
	if len(xs) != len(ys) {
		return Fit{}, fmt.Errorf("%w: %d x values, %d y values", ErrDegenerateCurve, len(xs), len(ys))
	}

	distinct := make(map[float64]struct{}, len(xs))
	var sumL, sumY, sumLL, sumLY float64
	for i, x := range xs {
		if !(x > 0) || math.IsInf(x, 0) {
			return Fit{}, fmt.Errorf("%w: temperature %v has no logarithm", ErrDegenerateCurve, x)
		}
		y := ys[i]
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return Fit{}, fmt.Errorf("%w: speed %v", ErrDegenerateCurve, y)
		}
		distinct[x] = struct{}{}
		l := math.Log(x)
		sumL += l
		sumY += y
		sumLL += l * l
		sumLY += l * y
	}
	if len(distinct) < 2 {
		return Fit{}, fmt.Errorf("%w: need 2 distinct temperatures, have %d", ErrDegenerateCurve, len(distinct))
	}

	n := float64(len(xs))
	den := n*sumLL - sumL*sumL
	if den == 0 {
		return Fit{}, fmt.Errorf("%w: singular system", ErrDegenerateCurve)
	}
	b := (n*sumLY - sumL*sumY) / den
	a := (sumY - b*sumL) / n
	if math.IsNaN(a) || math.IsInf(a, 0) || math.IsNaN(b) || math.IsInf(b, 0) {
		return Fit{}, fmt.Errorf("%w: non-finite coefficients", ErrDegenerateCurve)
	}
	return Fit{A: a, B: b}, nil
}

// Build fits the curve through the minimum anchor, the active points and
// the panic anchor.
func Build(s Settings) (Fit, error) {
	if !(s.MinimumSpeedTemperature < s.PanicFromTemperature) {
		return Fit{}, fmt.Errorf("%w: minimum speed temperature %v is not below panic temperature %v",
			ErrDegenerateCurve, s.MinimumSpeedTemperature, s.PanicFromTemperature)
	}

	points := s.ActivePoints()
	xs := make([]float64, 0, len(points)+2)
	ys := make([]float64, 0, len(points)+2)

	xs = append(xs, s.MinimumSpeedTemperature)
	ys = append(ys, s.MinimumSpeed)
	for _, p := range points {
		xs = append(xs, p.Temperature)
		ys = append(ys, p.FanPercentage)
	}
	xs = append(xs, s.PanicFromTemperature)
	ys = append(ys, s.PanicSpeed)

	return FitLog(xs, ys)
}
