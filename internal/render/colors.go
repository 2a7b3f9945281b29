package render

import (
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// DefaultClampPercent is the symmetric bound difference values are
// clamped to before color interpolation.
const DefaultClampPercent = 50.0

// Gradient endpoints: strong decrease, no change, strong increase.
var (
	ColorDecrease = drawing.Color{R: 0, G: 150, B: 64, A: 255}
	ColorNeutral  = drawing.Color{R: 128, G: 128, B: 128, A: 255}
	ColorIncrease = drawing.Color{R: 200, G: 30, B: 30, A: 255}
)

// DifferenceColor maps a percentage difference to its gradient color.
// diff is clamped to ±clamp, then interpolated through the three-point
// green/gray/red gradient.
func DifferenceColor(diff, clamp float64) drawing.Color {
	if clamp <= 0 {
		clamp = DefaultClampPercent
	}
	if diff < -clamp {
		diff = -clamp
	}
	if diff > clamp {
		diff = clamp
	}

	if diff < 0 {
		return lerpColor(ColorNeutral, ColorDecrease, -diff/clamp)
	}
	return lerpColor(ColorNeutral, ColorIncrease, diff/clamp)
}

// lerpColor interpolates each channel linearly from a to b by t in [0,1].
func lerpColor(a, b drawing.Color, t float64) drawing.Color {
	return drawing.Color{
		R: lerpChannel(a.R, b.R, t),
		G: lerpChannel(a.G, b.G, t),
		B: lerpChannel(a.B, b.B, t),
		A: lerpChannel(a.A, b.A, t),
	}
}

func lerpChannel(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
