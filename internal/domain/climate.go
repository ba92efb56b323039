package domain

import (
	"fmt"
	"time"
)

// Riohacha coordinates, used to select reanalysis grid cells around the city
const (
	RiohachaLat = 11.5444
	RiohachaLon = -72.9072
)

// Observation is one monthly reanalysis record after spatial aggregation.
// Values are raw ERA5 units until passed through the unit converter.
type Observation struct {
	Time  time.Time `json:"time"`
	T2m   float64   `json:"t2m"`
	Swvl1 float64   `json:"swvl1"`
	Swvl2 float64   `json:"swvl2"`
	Swvl3 float64   `json:"swvl3"`
	Swvl4 float64   `json:"swvl4"`
	Ssrd  float64   `json:"ssrd"`
	Pev   float64   `json:"pev"`
	E     float64   `json:"e"`
	Tp    float64   `json:"tp"`
}

// Features returns the observation in classifier feature order.
func (o Observation) Features() FeatureVector {
	return FeatureVector{o.T2m, o.Swvl1, o.Swvl2, o.Swvl3, o.Swvl4, o.Ssrd, o.Pev, o.E, o.Tp}
}

// DatasetRow is one row of the pre-computed climate dataset.
type DatasetRow struct {
	Date      time.Time          `json:"date"`
	Year      int                `json:"year"`
	Latitude  *float64           `json:"latitude,omitempty"`
	Longitude *float64           `json:"longitude,omitempty"`
	Values    map[string]float64 `json:"values"`
}

// MonthlyPoint is a single value of a monthly series.
type MonthlyPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// IndexKind distinguishes the two standardized drought indices.
type IndexKind string

const (
	SPI  IndexKind = "SPI"
	SPEI IndexKind = "SPEI"
)

// IndexKey identifies one derived series, e.g. SPEI_12.
type IndexKey struct {
	Kind   IndexKind
	Window int
}

func (k IndexKey) String() string {
	return fmt.Sprintf("%s_%d", k.Kind, k.Window)
}

// DefaultWindows are the accumulation windows in months.
var DefaultWindows = []int{1, 3, 6, 12}

// IndexKeys returns the SPI keys followed by the SPEI keys for the given windows.
func IndexKeys(windows []int) []IndexKey {
	keys := make([]IndexKey, 0, 2*len(windows))
	for _, w := range windows {
		keys = append(keys, IndexKey{Kind: SPI, Window: w})
	}
	for _, w := range windows {
		keys = append(keys, IndexKey{Kind: SPEI, Window: w})
	}
	return keys
}

// AnalysisRow is one month of the joined table: converted observation plus
// every derived index value. Rows only exist where all indices are defined.
type AnalysisRow struct {
	Observation
	Indices map[string]float64 `json:"indices"`
}

// TrendResult is the Mann-Kendall outcome for one derived series.
type TrendResult struct {
	Index       string  `json:"index"`
	N           int     `json:"n"`
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	Tau         float64 `json:"tau"`
	Z           float64 `json:"z"`
	PValue      float64 `json:"p_value"`
	Trend       string  `json:"trend"`
	Significant bool    `json:"significant"`
}

// Trend labels
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendNone       = "no trend"
)

// Analysis is the full output of the index pipeline.
type Analysis struct {
	Rows      []AnalysisRow  `json:"rows"`
	Trends    []TrendResult  `json:"trends"`
	TrendLine []MonthlyPoint `json:"trend_line"`
	TrendOf   string         `json:"trend_of"`
}

// Latest returns the most recent joined row, if any.
func (a Analysis) Latest() (AnalysisRow, bool) {
	if len(a.Rows) == 0 {
		return AnalysisRow{}, false
	}
	return a.Rows[len(a.Rows)-1], true
}

// Column returns the named index column of the joined table.
func (a Analysis) Column(name string) []MonthlyPoint {
	out := make([]MonthlyPoint, 0, len(a.Rows))
	for _, r := range a.Rows {
		if v, ok := r.Indices[name]; ok {
			out = append(out, MonthlyPoint{Date: r.Time, Value: v})
		}
	}
	return out
}

// DroughtProbability is the model's monthly drought probability.
type DroughtProbability struct {
	Date        time.Time `json:"date"`
	Probability float64   `json:"probability"`
	Percent     float64   `json:"percent"`
	Band        string    `json:"band"`
}

// RiskBand maps a probability percentage to its display band.
func RiskBand(percent float64) string {
	switch {
	case percent < 33:
		return "bajo"
	case percent < 50:
		return "moderado"
	case percent < 70:
		return "alto"
	case percent < 90:
		return "muy alto"
	default:
		return "extremo"
	}
}

// HistoricalEvent is a reported drought impact in La Guajira.
type HistoricalEvent struct {
	Start       time.Time `json:"start" yaml:"start"`
	End         time.Time `json:"end" yaml:"end"`
	Label       string    `json:"label" yaml:"label"`
	Description string    `json:"description" yaml:"description"`
	Source      string    `json:"source" yaml:"source"`
}
