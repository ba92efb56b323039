package climate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sarida/backend/internal/domain"
)

// UnitsMMPerMonth is the only unit accepted by the index engine.
const UnitsMMPerMonth = "mm/month"

// minMonthSamples is the smallest per-calendar-month sample that is fitted on
// its own; smaller months use the pooled fit.
const minMonthSamples = 3

var (
	ErrUnitMismatch   = errors.New("unit mismatch")
	ErrLengthMismatch = errors.New("length mismatch")
)

// Series is a monthly series with explicit units.
type Series struct {
	Values []float64
	Units  string
}

// Calibration restricts the years that enter distribution fitting.
// A zero bound is open.
type Calibration struct {
	StartYear int
	EndYear   int
}

func (c Calibration) contains(t time.Time) bool {
	y := t.Year()
	return (c.StartYear == 0 || y >= c.StartYear) && (c.EndYear == 0 || y <= c.EndYear)
}

// IndexEngine computes SPI and SPEI at each accumulation window.
type IndexEngine struct {
	Windows     []int
	Calibration Calibration
}

// NewIndexEngine returns an engine for the given windows, or the default
// 1, 3, 6 and 12 month windows when none are given.
func NewIndexEngine(windows []int, cal Calibration) *IndexEngine {
	if len(windows) == 0 {
		windows = domain.DefaultWindows
	}
	return &IndexEngine{Windows: windows, Calibration: cal}
}

// IndexResult holds every derived series aligned to Times. Undefined values are NaN.
type IndexResult struct {
	Times  []time.Time
	Keys   []domain.IndexKey
	Series map[string][]float64
}

// Compute derives SPI from precipitation and SPEI from the water balance
// precip - pet. Degenerate samples yield NaN, never an error.
func (e *IndexEngine) Compute(times []time.Time, precip, pet Series) (*IndexResult, error) {
	if len(precip.Values) != len(times) || len(pet.Values) != len(times) {
		return nil, fmt.Errorf("climate: index inputs: %w (times=%d precip=%d pet=%d)",
			ErrLengthMismatch, len(times), len(precip.Values), len(pet.Values))
	}
	if precip.Units != UnitsMMPerMonth || pet.Units != UnitsMMPerMonth {
		return nil, fmt.Errorf("climate: index inputs: %w (precip=%q pet=%q)",
			ErrUnitMismatch, precip.Units, pet.Units)
	}

	balance := make([]float64, len(times))
	for i := range balance {
		balance[i] = precip.Values[i] - pet.Values[i]
	}

	res := &IndexResult{
		Times:  times,
		Keys:   domain.IndexKeys(e.Windows),
		Series: make(map[string][]float64, 2*len(e.Windows)),
	}
	for _, key := range res.Keys {
		switch key.Kind {
		case domain.SPI:
			acc := RollingSum(precip.Values, key.Window)
			res.Series[key.String()] = e.standardize(times, acc, FitGamma)
		case domain.SPEI:
			acc := RollingSum(balance, key.Window)
			res.Series[key.String()] = e.standardize(times, acc, FitWaterBalance)
		}
	}
	return res, nil
}

// RollingSum is the trailing k-month sum. Positions with fewer than k months of
// history, or with a missing value inside the window, are NaN.
func RollingSum(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if k <= 0 || i < k-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[i-k+1 : i+1] {
			sum += v
		}
		out[i] = sum
	}
	return out
}

// standardize fits dist per calendar month and maps each accumulated value to
// a standard normal deviate.
func (e *IndexEngine) standardize(times []time.Time, acc []float64, fit func([]float64) (Distribution, bool)) []float64 {
	out := make([]float64, len(acc))
	for i := range out {
		out[i] = math.NaN()
	}

	byMonth := make(map[time.Month][]float64, 12)
	var pooled []float64
	for i, v := range acc {
		if math.IsNaN(v) || math.IsInf(v, 0) || !e.Calibration.contains(times[i]) {
			continue
		}
		m := times[i].Month()
		byMonth[m] = append(byMonth[m], v)
		pooled = append(pooled, v)
	}

	pooledFit, pooledOK := fit(pooled)
	fits := make(map[time.Month]Distribution, 12)
	for m := time.January; m <= time.December; m++ {
		sample := byMonth[m]
		if len(sample) < minMonthSamples {
			if pooledOK {
				fits[m] = pooledFit
			}
			continue
		}
		if d, ok := fit(sample); ok {
			fits[m] = d
		}
	}

	for i, v := range acc {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		d, ok := fits[times[i].Month()]
		if !ok {
			continue
		}
		out[i] = Standardize(d.CDF(v))
	}
	return out
}

// JoinIndices builds the complete-case table: one row per timestamp where the
// observation and every derived series are defined.
func JoinIndices(obs []domain.Observation, res *IndexResult) []domain.AnalysisRow {
	byTime := make(map[time.Time]domain.Observation, len(obs))
	for _, o := range obs {
		byTime[o.Time] = o
	}

	rows := make([]domain.AnalysisRow, 0, len(res.Times))
	for i, t := range res.Times {
		o, ok := byTime[t]
		if !ok {
			continue
		}
		indices := make(map[string]float64, len(res.Keys))
		complete := true
		for _, key := range res.Keys {
			v := res.Series[key.String()][i]
			if math.IsNaN(v) {
				complete = false
				break
			}
			indices[key.String()] = v
		}
		if complete {
			rows = append(rows, domain.AnalysisRow{Observation: o, Indices: indices})
		}
	}
	return rows
}
