package climate

import (
	"fmt"
	"math"
	"time"

	"github.com/sarida/backend/internal/domain"
)

// TrendLineIndex is the series drawn with its Mann-Kendall trend line.
const TrendLineIndex = "SPEI_12"

// PipelineConfig parameterises RunPipeline.
type PipelineConfig struct {
	Windows     []int
	Calibration Calibration
	Spacing     Spacing
}

// RunPipeline converts raw observations, derives SPI/SPEI, joins them into the
// complete-case table and runs the trend test on every derived series.
func RunPipeline(raw []domain.Observation, cfg PipelineConfig) (domain.Analysis, error) {
	obs := Convert(raw)

	times, precip, pet := monthGrid(obs)

	engine := NewIndexEngine(cfg.Windows, cfg.Calibration)
	res, err := engine.Compute(times, precip, pet)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("climate: pipeline: %w", err)
	}

	analysis := domain.Analysis{
		Rows:    JoinIndices(obs, res),
		TrendOf: TrendLineIndex,
	}

	analysis.Trends = make([]domain.TrendResult, 0, len(res.Keys))
	var trendLineSlope float64
	for _, key := range res.Keys {
		column := analysis.Column(key.String())
		values := make([]float64, len(column))
		for i, p := range column {
			values[i] = p.Value
		}
		tr := MannKendall(values, Alpha)
		tr.Index = key.String()
		analysis.Trends = append(analysis.Trends, tr)
		if tr.Index == TrendLineIndex {
			trendLineSlope = tr.Slope
		}
	}

	spacing := cfg.Spacing
	if spacing == "" {
		spacing = SpacingSteps
	}
	analysis.TrendLine = TrendLine(analysis.Column(TrendLineIndex), trendLineSlope, spacing)
	return analysis, nil
}

// monthGrid lays obs on a contiguous monthly grid from the first to the last
// month so accumulation windows never span a gap. Missing months are NaN and
// have no observation, so JoinIndices drops them.
func monthGrid(obs []domain.Observation) ([]time.Time, Series, Series) {
	precip := Series{Units: UnitsMMPerMonth}
	pet := Series{Units: UnitsMMPerMonth}
	if len(obs) == 0 {
		return nil, precip, pet
	}

	byMonth := make(map[time.Time]domain.Observation, len(obs))
	for _, o := range obs {
		byMonth[MonthStart(o.Time)] = o
	}

	var times []time.Time
	last := MonthStart(obs[len(obs)-1].Time)
	for m := MonthStart(obs[0].Time); !m.After(last); m = m.AddDate(0, 1, 0) {
		o, ok := byMonth[m]
		if !ok {
			times = append(times, m)
			precip.Values = append(precip.Values, math.NaN())
			pet.Values = append(pet.Values, math.NaN())
			continue
		}
		times = append(times, o.Time)
		precip.Values = append(precip.Values, o.Tp)
		pet.Values = append(pet.Values, o.Pev)
	}
	return times, precip, pet
}
