package climate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sarida/backend/pkg/utils"
)

// MaxIndex bounds standardized index values.
const MaxIndex = 3.09

// Distribution is a fitted cumulative distribution.
type Distribution interface {
	CDF(x float64) float64
}

// gammaMixture is a gamma distribution for positive values mixed with a point
// mass q at zero.
type gammaMixture struct {
	q float64
	g distuv.Gamma
}

func (d gammaMixture) CDF(x float64) float64 {
	if x <= 0 {
		return d.q
	}
	return d.q + (1-d.q)*d.g.CDF(x)
}

// FitGamma fits the zero-inflated gamma distribution used for SPI. Shape is
// estimated with Thom's approximation to the maximum likelihood solution.
// ok is false when the sample is degenerate.
func FitGamma(sample []float64) (Distribution, bool) {
	if len(sample) == 0 || constant(sample) {
		return nil, false
	}
	positive := make([]float64, 0, len(sample))
	logs := make([]float64, 0, len(sample))
	for _, v := range sample {
		if v > 0 {
			positive = append(positive, v)
			logs = append(logs, math.Log(v))
		}
	}
	if len(positive) < 2 || constant(positive) {
		return nil, false
	}

	mean := stat.Mean(positive, nil)
	a := math.Log(mean) - stat.Mean(logs, nil)
	if !(a > 0) {
		return nil, false
	}
	alpha := (1 + math.Sqrt(1+4*a/3)) / (4 * a)
	rate := alpha / mean
	if !finitePositive(alpha) || !finitePositive(rate) {
		return nil, false
	}

	q := float64(len(sample)-len(positive)) / float64(len(sample))
	return gammaMixture{q: q, g: distuv.Gamma{Alpha: alpha, Beta: rate}}, true
}

// LogLogistic is the three-parameter log-logistic distribution.
type LogLogistic struct {
	Alpha float64 // scale
	Beta  float64 // shape
	Gamma float64 // location
}

func (d LogLogistic) CDF(x float64) float64 {
	if x <= d.Gamma {
		return 0
	}
	return 1 / (1 + math.Pow(d.Alpha/(x-d.Gamma), d.Beta))
}

// FitLogLogistic fits the SPEI log-logistic distribution by probability
// weighted moments with plotting position (i-0.35)/n. The shape must exceed 1
// for the location estimate to exist.
func FitLogLogistic(sample []float64) (Distribution, bool) {
	n := len(sample)
	if n < 3 || constant(sample) {
		return nil, false
	}
	x := make([]float64, n)
	copy(x, sample)
	sort.Float64s(x)

	var w [3]float64
	for i, v := range x {
		f := (float64(i+1) - 0.35) / float64(n)
		w[0] += v
		w[1] += (1 - f) * v
		w[2] += (1 - f) * (1 - f) * v
	}
	for s := range w {
		w[s] /= float64(n)
	}

	beta := (2*w[1] - w[0]) / (6*w[1] - w[0] - 6*w[2])
	if math.IsNaN(beta) || math.IsInf(beta, 0) || beta <= 1 {
		return nil, false
	}
	g1 := math.Gamma(1 + 1/beta)
	g2 := math.Gamma(1 - 1/beta)
	alpha := (w[0] - 2*w[1]) * beta / (g1 * g2)
	gamma := w[0] - alpha*g1*g2
	if !finitePositive(alpha) || math.IsNaN(gamma) || math.IsInf(gamma, 0) {
		return nil, false
	}
	return LogLogistic{Alpha: alpha, Beta: beta, Gamma: gamma}, true
}

// shifted evaluates d at x + offset.
type shifted struct {
	d      Distribution
	offset float64
}

func (s shifted) CDF(x float64) float64 { return s.d.CDF(x + s.offset) }

// FitWaterBalance fits the SPEI distribution. It uses the log-logistic fit and,
// when that has no valid shape, a gamma fit of the balance shifted so that its
// minimum sits at 1 mm.
func FitWaterBalance(sample []float64) (Distribution, bool) {
	if d, ok := FitLogLogistic(sample); ok {
		return d, true
	}
	if len(sample) == 0 || constant(sample) {
		return nil, false
	}
	offset := 1 - floats.Min(sample)
	moved := make([]float64, len(sample))
	for i, v := range sample {
		moved[i] = v + offset
	}
	g, ok := FitGamma(moved)
	if !ok {
		return nil, false
	}
	return shifted{d: g, offset: offset}, true
}

// Standardize maps a cumulative probability to a standard normal deviate,
// clipped to ±MaxIndex.
func Standardize(p float64) float64 {
	if math.IsNaN(p) {
		return math.NaN()
	}
	const eps = 1e-12
	p = utils.Clamp(p, eps, 1-eps)
	z := distuv.UnitNormal.Quantile(p)
	return utils.Clamp(z, -MaxIndex, MaxIndex)
}

func constant(x []float64) bool {
	return len(x) > 0 && floats.Max(x) == floats.Min(x)
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
