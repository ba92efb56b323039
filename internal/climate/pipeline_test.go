package climate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarida/backend/internal/domain"
)

// stepObservations builds n raw monthly observations whose precipitation
// triples at month step.
func stepObservations(n, step int) []domain.Observation {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]domain.Observation, n)
	for i := range obs {
		tp := 0.001
		if i >= step {
			tp = 0.003
		}
		obs[i] = domain.Observation{
			Time:  start.AddDate(0, i, 0),
			T2m:   300,
			Swvl1: 0.2, Swvl2: 0.2, Swvl3: 0.2, Swvl4: 0.2,
			Ssrd: 2e7,
			Pev:  -0.002,
			E:    -0.001,
			Tp:   tp,
		}
	}
	return obs
}

func TestRunPipeline_StepSeries(t *testing.T) {
	analysis, err := RunPipeline(stepObservations(24, 12), PipelineConfig{})
	require.NoError(t, err)

	require.Len(t, analysis.Trends, 8)
	names := make([]string, len(analysis.Trends))
	for i, tr := range analysis.Trends {
		names[i] = tr.Index
	}
	assert.Equal(t, []string{"SPI_1", "SPI_3", "SPI_6", "SPI_12", "SPEI_1", "SPEI_3", "SPEI_6", "SPEI_12"}, names)

	// SPEI_12 needs 12 months of history: months 11..23 survive the join.
	require.Len(t, analysis.Rows, 13)
	assert.Equal(t, time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC), analysis.Rows[0].Time)

	spei12 := analysis.Column(TrendLineIndex)
	require.NotEmpty(t, spei12)
	require.Len(t, analysis.TrendLine, len(spei12))
	assert.Equal(t, spei12[0].Value, analysis.TrendLine[0].Value)
	assert.Equal(t, TrendLineIndex, analysis.TrendOf)

	latest, ok := analysis.Latest()
	require.True(t, ok)
	assert.InDelta(t, 90.0, latest.Tp, 1e-9)
	assert.InDelta(t, 26.85, latest.T2m, 1e-9)
}

func TestRunPipeline_GapBreaksWindows(t *testing.T) {
	obs := stepObservations(24, 12)
	gap := obs[5].Time
	obs = append(obs[:5:5], obs[6:]...)

	analysis, err := RunPipeline(obs, PipelineConfig{})
	require.NoError(t, err)

	// Every SPEI_12 window ending June 2022..May 2023 spans the missing month.
	require.Len(t, analysis.Rows, 7)
	assert.Equal(t, gap.AddDate(1, 0, 0), analysis.Rows[0].Time)
	for _, row := range analysis.Rows {
		assert.False(t, row.Time.Before(gap.AddDate(0, 12, 0)), row.Time)
	}
}

func TestMonthGrid_FillsMissingMonths(t *testing.T) {
	obs := Convert(stepObservations(4, 2))
	obs = append(obs[:1:1], obs[2:]...)

	times, precip, pet := monthGrid(obs)
	require.Len(t, times, 4)
	assert.Equal(t, time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC), times[1])
	assert.True(t, math.IsNaN(precip.Values[1]))
	assert.True(t, math.IsNaN(pet.Values[1]))
	assert.InDelta(t, 90.0, precip.Values[3], 1e-9)

	joined := JoinIndices(obs, &IndexResult{Times: times})
	require.Len(t, joined, 3)
	assert.NotEqual(t, times[1], joined[1].Time)
}

func TestRunPipeline_CalendarSpacing(t *testing.T) {
	analysis, err := RunPipeline(stepObservations(24, 12), PipelineConfig{Spacing: SpacingCalendar})
	require.NoError(t, err)
	require.NotEmpty(t, analysis.TrendLine)
	assert.Equal(t, analysis.Column(TrendLineIndex)[0].Value, analysis.TrendLine[0].Value)
}

func TestRunPipeline_ShortSeries(t *testing.T) {
	analysis, err := RunPipeline(stepObservations(6, 3), PipelineConfig{})
	require.NoError(t, err)
	assert.Empty(t, analysis.Rows)
	require.Len(t, analysis.Trends, 8)
	for _, tr := range analysis.Trends {
		assert.Equal(t, domain.TrendNone, tr.Trend)
	}
	assert.Empty(t, analysis.TrendLine)
}
