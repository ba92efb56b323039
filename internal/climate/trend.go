package climate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/pkg/utils"
)

// Alpha is the significance level of the trend test.
const Alpha = 0.05

// MannKendall runs the original Mann-Kendall test with Sen's slope on values,
// ignoring NaNs. Positions are the step indices of the remaining values.
func MannKendall(values []float64, alpha float64) domain.TrendResult {
	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			x = append(x, v)
		}
	}
	n := len(x)
	res := domain.TrendResult{N: n, PValue: 1, Trend: domain.TrendNone}
	if n < 2 {
		if n == 1 {
			res.Intercept = x[0]
		}
		return res
	}

	s := 0.0
	for k := 0; k < n-1; k++ {
		for j := k + 1; j < n; j++ {
			s += sign(x[j] - x[k])
		}
	}

	nf := float64(n)
	variance := (nf*(nf-1)*(2*nf+5) - tieCorrection(x)) / 18

	var z float64
	switch {
	case variance <= 0:
		z = 0
	case s > 0:
		z = (s - 1) / math.Sqrt(variance)
	case s < 0:
		z = (s + 1) / math.Sqrt(variance)
	}

	p := 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))
	h := math.Abs(z) > distuv.UnitNormal.Quantile(1-alpha/2)

	res.Z = z
	res.PValue = p
	res.Tau = s / (0.5 * nf * (nf - 1))
	res.Slope = SenSlope(x)
	res.Intercept = utils.Median(x) - (nf-1)/2*res.Slope
	res.Significant = p < Alpha
	switch {
	case h && z > 0:
		res.Trend = domain.TrendIncreasing
	case h && z < 0:
		res.Trend = domain.TrendDecreasing
	}
	return res
}

// SenSlope is the median of all pairwise slopes (x[j]-x[i])/(j-i).
func SenSlope(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			slopes = append(slopes, (x[j]-x[i])/float64(j-i))
		}
	}
	return utils.Median(slopes)
}

func tieCorrection(x []float64) float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	total := 0.0
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if t := float64(j - i); t > 1 {
			total += t * (t - 1) * (2*t + 5)
		}
		i = j
	}
	return total
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Spacing selects the x axis used to draw a trend line.
type Spacing string

const (
	// SpacingSteps uses the integer position of each point.
	SpacingSteps Spacing = "steps"
	// SpacingCalendar uses whole months elapsed since the first point.
	SpacingCalendar Spacing = "calendar"
)

// ParseSpacing validates a spacing name.
func ParseSpacing(s string) (Spacing, error) {
	switch Spacing(s) {
	case SpacingSteps, SpacingCalendar:
		return Spacing(s), nil
	default:
		return "", fmt.Errorf("climate: unknown trend spacing %q", s)
	}
}

// TrendLine returns first + slope*(i - i0) for each point of series, so the
// line starts exactly at the first value.
func TrendLine(series []domain.MonthlyPoint, slope float64, spacing Spacing) []domain.MonthlyPoint {
	if len(series) == 0 {
		return nil
	}
	first := series[0]
	out := make([]domain.MonthlyPoint, len(series))
	for i, p := range series {
		step := float64(i)
		if spacing == SpacingCalendar {
			step = float64(monthsBetween(first.Date, p.Date))
		}
		out[i] = domain.MonthlyPoint{Date: p.Date, Value: first.Value + slope*step}
	}
	return out
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
