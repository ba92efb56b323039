package climate

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const datasetCSV = `valid_time,date,year,tp,t2m,station
2020-02-15,2020-02-15,2020,0.004,300.1,RIO
2020-01-01,2020-01-01,2020,0.002,299.5,RIO
2020-01-20 12:00:00,2020-01-20,2020,0.004,299.9,RIO
2021-03-01T00:00:00Z,2021-03-01,2021,,301.0,RIO
2021-04-01,2021-04-01,2021,nan,301.2,RIO
`

func TestLoadDataset_MonthlyStrictlyAscending(t *testing.T) {
	ds, err := LoadDataset(strings.NewReader(datasetCSV))
	require.NoError(t, err)

	require.Len(t, ds.Monthly, 2)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), ds.Monthly[0].Date)
	assert.InDelta(t, 0.003, ds.Monthly[0].Value, 1e-12)
	assert.Equal(t, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), ds.Monthly[1].Date)

	for i := 1; i < len(ds.Monthly); i++ {
		assert.True(t, ds.Monthly[i].Date.After(ds.Monthly[i-1].Date))
	}
}

func TestLoadDataset_Columns(t *testing.T) {
	ds, err := LoadDataset(strings.NewReader(datasetCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"tp", "t2m"}, ds.Columns)
	lo, hi := ds.YearRange()
	assert.Equal(t, 2020, lo)
	assert.Equal(t, 2021, hi)
	assert.Equal(t, 2020, ds.Rows[0].Year)
	assert.NotContains(t, ds.Rows[0].Values, "station")
}

func TestLoadDataset_DateColumnFallback(t *testing.T) {
	csv := "date,tp\n2019-05-01,0.001\n2019-06-01,0.002\n"
	ds, err := LoadDataset(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, ds.Monthly, 2)
	assert.Equal(t, 2019, ds.Monthly[0].Date.Year())
}

func TestLoadDataset_MissingColumns(t *testing.T) {
	tests := []struct {
		name   string
		csv    string
		column string
		want   error
	}{
		{"no tp", "valid_time,t2m\n2020-01-01,300\n", "tp", ErrMissingColumn},
		{"no time", "tp,t2m\n0.001,300\n", "valid_time", ErrMissingTimeColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDataset(strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var colErr *ColumnError
			require.True(t, errors.As(err, &colErr))
			assert.Equal(t, tt.column, colErr.Column)
			assert.NotEmpty(t, colErr.Message())
		})
	}
}

func TestLoadDataset_MalformedCellIsMissing(t *testing.T) {
	csv := "valid_time,tp,t2m\n2020-01-01,0.001,300\n2020-02-01,--,301\n2020-03-01,0.003,302\n"
	ds, err := LoadDataset(strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, []string{"tp", "t2m"}, ds.Columns)
	require.Len(t, ds.Monthly, 2)
	assert.Equal(t, time.January, ds.Monthly[0].Date.Month())
	assert.InDelta(t, 0.001, ds.Monthly[0].Value, 1e-12)
	assert.Equal(t, time.March, ds.Monthly[1].Date.Month())
	assert.InDelta(t, 0.003, ds.Monthly[1].Value, 1e-12)

	s, err := ds.Series("t2m", 0, 0)
	require.NoError(t, err)
	assert.Len(t, s, 3)
}

func TestLoadDataset_TextColumnsAreNotSeries(t *testing.T) {
	csv := "valid_time,tp,station,comment\n2020-01-01,0.001,RIO,\n2020-02-01,0.002,RIO,seco\n"
	ds, err := LoadDataset(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []string{"tp"}, ds.Columns)

	_, err = ds.Series("comment", 0, 0)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestLoadDataset_NoMonthlyData(t *testing.T) {
	_, err := LoadDataset(strings.NewReader("valid_time,tp\n2020-01-01,\n"))
	assert.ErrorIs(t, err, ErrNoMonthlyData)
}

func TestDatasetSeries(t *testing.T) {
	ds, err := LoadDataset(strings.NewReader(datasetCSV))
	require.NoError(t, err)

	t.Run("year filter", func(t *testing.T) {
		s, err := ds.Series("t2m", 2021, 2021)
		require.NoError(t, err)
		require.Len(t, s, 2)
		assert.Equal(t, time.March, s[0].Date.Month())
		assert.InDelta(t, 301.0, s[0].Value, 1e-9)
	})

	t.Run("open bounds", func(t *testing.T) {
		s, err := ds.Series("t2m", 0, 0)
		require.NoError(t, err)
		assert.Len(t, s, 4)
	})

	t.Run("unknown variable", func(t *testing.T) {
		_, err := ds.Series("station", 0, 0)
		assert.ErrorIs(t, err, ErrUnknownVariable)
	})
}

const reanalysisCSV = `valid_time,latitude,longitude,t2m,swvl1,swvl2,swvl3,swvl4,ssrd,pev,e,tp
2020-02-01,11.5,-72.9,300,0.2,0.2,0.2,0.2,2e7,-0.004,-0.002,0.002
2020-01-01,11.5,-72.9,298,0.1,0.1,0.1,0.1,1e7,-0.004,-0.002,0.001
2020-01-01,11.75,-73.0,300,0.3,0.3,0.3,0.3,3e7,-0.006,-0.004,0.003
2020-01-01,11.75,-73.0,,0.3,0.3,0.3,0.3,3e7,-0.006,-0.004,0.003
2020-01-01,4.6,-74.1,280,0.9,0.9,0.9,0.9,9e7,-0.009,-0.009,0.009
`

func TestLoadReanalysis_AveragesCells(t *testing.T) {
	obs, err := LoadReanalysis(strings.NewReader(reanalysisCSV), ReanalysisOptions{})
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, time.January, obs[0].Time.Month())
	assert.InDelta(t, (298.0+300+280)/3, obs[0].T2m, 1e-9)
	assert.Equal(t, time.February, obs[1].Time.Month())
}

func TestLoadReanalysis_SiteRadius(t *testing.T) {
	obs, err := LoadReanalysis(strings.NewReader(reanalysisCSV), ReanalysisOptions{SiteRadiusKm: 50})
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.InDelta(t, 299.0, obs[0].T2m, 1e-9)
	assert.InDelta(t, 0.002, obs[0].Tp, 1e-12)
}

func TestLoadReanalysis_MissingVariable(t *testing.T) {
	_, err := LoadReanalysis(strings.NewReader("valid_time,t2m\n2020-01-01,300\n"), ReanalysisOptions{})
	var colErr *ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "swvl1", colErr.Column)
}

func TestLoadProbabilities(t *testing.T) {
	csv := "valid_time,proba\n2024-01-01,0.2\n2024-01-15,0.4\n2024-02-01,0.95\n"
	probs, err := LoadProbabilities(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, probs, 2)

	assert.InDelta(t, 0.3, probs[0].Probability, 1e-12)
	assert.InDelta(t, 30.0, probs[0].Percent, 1e-9)
	assert.Equal(t, "bajo", probs[0].Band)
	assert.Equal(t, "extremo", probs[1].Band)
}

func TestLoadProbabilities_MissingProba(t *testing.T) {
	_, err := LoadProbabilities(strings.NewReader("valid_time,p\n2024-01-01,0.2\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestFloatUnmarshalCSV(t *testing.T) {
	var f Float
	require.NoError(t, f.UnmarshalCSV([]byte(" 1.5 ")))
	assert.InDelta(t, 1.5, float64(f), 0)

	require.NoError(t, f.UnmarshalCSV([]byte("NaN")))
	assert.True(t, math.IsNaN(float64(f)))

	assert.Error(t, f.UnmarshalCSV([]byte("abc")))
}
