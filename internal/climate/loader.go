package climate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/pkg/utils"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("missing required column")
	// ErrMissingTimeColumn is returned when neither valid_time nor date is present.
	ErrMissingTimeColumn = errors.New("missing time column")
	// ErrNoMonthlyData is returned when no month carries a finite value.
	ErrNoMonthlyData = errors.New("no monthly data")
	// ErrUnknownVariable is returned when a series is requested for a column that is not numeric.
	ErrUnknownVariable = errors.New("unknown variable")
)

// ColumnError reports a schema problem in an input file. The dashboard halts the
// affected section and shows Message to the user.
type ColumnError struct {
	Column string
	Err    error
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("climate: column %q: %v", e.Column, e.Err)
}

func (e *ColumnError) Unwrap() error { return e.Err }

// Message is the user-facing explanation shown in place of the section.
func (e *ColumnError) Message() string {
	if errors.Is(e.Err, ErrMissingTimeColumn) {
		return "El archivo no contiene una columna de fecha ('valid_time' o 'date')."
	}
	return fmt.Sprintf("El archivo no contiene la columna '%s'. Revisa el archivo de datos.", e.Column)
}

// Float is a CSV cell that decodes empty and "nan" cells to NaN.
type Float float64

func (f *Float) UnmarshalCSV(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse float %q: %w", s, err)
	}
	*f = Float(v)
	return nil
}

// Timestamp is a CSV cell holding a date or datetime.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
}

func (t *Timestamp) UnmarshalCSV(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}

// MonthStart truncates t to the first instant of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Dataset is the loaded pre-computed climate dataset.
type Dataset struct {
	Rows []domain.DatasetRow
	// Columns are the numeric columns in header order, excluding year.
	Columns []string
	// Monthly is the monthly mean precipitation, strictly ascending.
	Monthly []domain.MonthlyPoint
}

type datasetTimes struct {
	ValidTime Timestamp `csv:"valid_time"`
	Date      Timestamp `csv:"date"`
}

// LoadDatasetFile opens path and loads it with LoadDataset.
func LoadDatasetFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("climate: open dataset: %w", err)
	}
	defer f.Close()
	return LoadDataset(f)
}

// LoadDataset reads the climate dataset CSV. The time column is valid_time or
// date (valid_time wins) and tp is required.
func LoadDataset(r io.Reader) (*Dataset, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("climate: read dataset header: %w", err)
	}

	header := dec.Header()
	timeCol := ""
	switch {
	case hasColumn(header, "valid_time"):
		timeCol = "valid_time"
	case hasColumn(header, "date"):
		timeCol = "date"
	default:
		return nil, &ColumnError{Column: "valid_time", Err: ErrMissingTimeColumn}
	}
	if !hasColumn(header, "tp") {
		return nil, &ColumnError{Column: "tp", Err: ErrMissingColumn}
	}

	// A column is numeric unless it has unparseable cells and never a finite
	// value. Unparseable cells of numeric columns are NaN.
	parsed := make(map[string]bool)
	invalid := make(map[string]int)

	var rows []domain.DatasetRow
	for line := 2; ; line++ {
		var ts datasetTimes
		if err := dec.Decode(&ts); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("climate: decode dataset line %d: %w", line, err)
		}
		when := ts.ValidTime.Time
		if timeCol == "date" {
			when = ts.Date.Time
		}
		if when.IsZero() {
			continue
		}

		row := domain.DatasetRow{
			Date:   when,
			Year:   when.Year(),
			Values: make(map[string]float64),
		}
		record := dec.Record()
		for _, idx := range dec.Unused() {
			name := header[idx]
			var v Float
			if err := v.UnmarshalCSV([]byte(record[idx])); err != nil {
				invalid[name]++
				v = Float(math.NaN())
			} else if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
				parsed[name] = true
			}
			row.Values[name] = float64(v)
		}
		if lat, ok := row.Values["latitude"]; ok {
			row.Latitude = &lat
		}
		if lon, ok := row.Values["longitude"]; ok {
			row.Longitude = &lon
		}
		rows = append(rows, row)
	}

	numeric := make(map[string]bool)
	for _, h := range header {
		if h == "valid_time" || h == "date" {
			continue
		}
		numeric[h] = h == "tp" || parsed[h] || invalid[h] == 0
	}

	ds := &Dataset{Rows: rows}
	for _, h := range header {
		if numeric[h] && h != "year" {
			ds.Columns = append(ds.Columns, h)
		}
	}
	for i := range ds.Rows {
		for name := range ds.Rows[i].Values {
			if !numeric[name] {
				delete(ds.Rows[i].Values, name)
			}
		}
	}

	ds.Monthly = monthlyMean(rows, func(r domain.DatasetRow) (time.Time, float64) {
		return r.Date, value(r, "tp")
	})
	if len(ds.Monthly) == 0 {
		return nil, fmt.Errorf("climate: dataset: %w", ErrNoMonthlyData)
	}
	return ds, nil
}

// YearRange returns the first and last year present.
func (d *Dataset) YearRange() (int, int) {
	if len(d.Rows) == 0 {
		return 0, 0
	}
	lo, hi := d.Rows[0].Year, d.Rows[0].Year
	for _, r := range d.Rows[1:] {
		lo = min(lo, r.Year)
		hi = max(hi, r.Year)
	}
	return lo, hi
}

// Summary describes the filterable columns and year range.
func (d *Dataset) Summary() domain.VariableSummary {
	lo, hi := d.YearRange()
	return domain.VariableSummary{Variables: d.Columns, YearMin: lo, YearMax: hi}
}

// Series returns the monthly mean of variable for years in [from, to].
// A zero bound is open.
func (d *Dataset) Series(variable string, from, to int) ([]domain.MonthlyPoint, error) {
	if !hasColumn(d.Columns, variable) {
		return nil, fmt.Errorf("climate: %q: %w", variable, ErrUnknownVariable)
	}
	selected := make([]domain.DatasetRow, 0, len(d.Rows))
	for _, r := range d.Rows {
		if (from == 0 || r.Year >= from) && (to == 0 || r.Year <= to) {
			selected = append(selected, r)
		}
	}
	return monthlyMean(selected, func(r domain.DatasetRow) (time.Time, float64) {
		return r.Date, value(r, variable)
	}), nil
}

// value returns the named cell of r, or NaN when the row has none.
func value(r domain.DatasetRow, name string) float64 {
	v, ok := r.Values[name]
	if !ok {
		return math.NaN()
	}
	return v
}

// ReanalysisOptions controls spatial aggregation of the gridded export.
type ReanalysisOptions struct {
	// SiteRadiusKm keeps only cells within this distance of Riohacha; 0 keeps all.
	SiteRadiusKm float64
}

type reanalysisRecord struct {
	ValidTime Timestamp `csv:"valid_time"`
	Latitude  Float     `csv:"latitude"`
	Longitude Float     `csv:"longitude"`
	T2m       Float     `csv:"t2m"`
	Swvl1     Float     `csv:"swvl1"`
	Swvl2     Float     `csv:"swvl2"`
	Swvl3     Float     `csv:"swvl3"`
	Swvl4     Float     `csv:"swvl4"`
	Ssrd      Float     `csv:"ssrd"`
	Pev       Float     `csv:"pev"`
	E         Float     `csv:"e"`
	Tp        Float     `csv:"tp"`
}

func (r reanalysisRecord) values() [9]float64 {
	return [9]float64{
		float64(r.T2m), float64(r.Swvl1), float64(r.Swvl2), float64(r.Swvl3), float64(r.Swvl4),
		float64(r.Ssrd), float64(r.Pev), float64(r.E), float64(r.Tp),
	}
}

// LoadReanalysisFile opens path and loads it with LoadReanalysis.
func LoadReanalysisFile(path string, opts ReanalysisOptions) ([]domain.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("climate: open reanalysis: %w", err)
	}
	defer f.Close()
	return LoadReanalysis(f, opts)
}

// LoadReanalysis reads the gridded reanalysis export, drops incomplete rows and
// averages the remaining cells into one observation per month.
func LoadReanalysis(r io.Reader, opts ReanalysisOptions) ([]domain.Observation, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("climate: read reanalysis header: %w", err)
	}
	header := dec.Header()
	if !hasColumn(header, "valid_time") {
		return nil, &ColumnError{Column: "valid_time", Err: ErrMissingTimeColumn}
	}
	for _, name := range domain.FeatureNames {
		if !hasColumn(header, name) {
			return nil, &ColumnError{Column: name, Err: ErrMissingColumn}
		}
	}
	if opts.SiteRadiusKm > 0 {
		for _, name := range []string{"latitude", "longitude"} {
			if !hasColumn(header, name) {
				return nil, &ColumnError{Column: name, Err: ErrMissingColumn}
			}
		}
	}

	type acc struct {
		sum [9]float64
		n   int
	}
	byMonth := make(map[time.Time]*acc)

	for line := 2; ; line++ {
		var rec reanalysisRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("climate: decode reanalysis line %d: %w", line, err)
		}
		if rec.ValidTime.IsZero() {
			continue
		}
		vals := rec.values()
		if !allFinite(vals[:]) {
			continue
		}
		if opts.SiteRadiusKm > 0 {
			lat, lon := float64(rec.Latitude), float64(rec.Longitude)
			if math.IsNaN(lat) || math.IsNaN(lon) {
				continue
			}
			if utils.Haversine(domain.RiohachaLat, domain.RiohachaLon, lat, lon) > opts.SiteRadiusKm {
				continue
			}
		}
		key := MonthStart(rec.ValidTime.Time)
		a, ok := byMonth[key]
		if !ok {
			a = &acc{}
			byMonth[key] = a
		}
		for i, v := range vals {
			a.sum[i] += v
		}
		a.n++
	}

	out := make([]domain.Observation, 0, len(byMonth))
	for month, a := range byMonth {
		var m [9]float64
		for i := range m {
			m[i] = a.sum[i] / float64(a.n)
		}
		out = append(out, domain.Observation{
			Time: month, T2m: m[0], Swvl1: m[1], Swvl2: m[2], Swvl3: m[3], Swvl4: m[4],
			Ssrd: m[5], Pev: m[6], E: m[7], Tp: m[8],
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("climate: reanalysis: %w", ErrNoMonthlyData)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

type probabilityRecord struct {
	ValidTime Timestamp `csv:"valid_time"`
	Proba     Float     `csv:"proba"`
}

// LoadProbabilitiesFile opens path and loads it with LoadProbabilities.
func LoadProbabilitiesFile(path string) ([]domain.DroughtProbability, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("climate: open probabilities: %w", err)
	}
	defer f.Close()
	return LoadProbabilities(f)
}

// LoadProbabilities reads the model output file (valid_time, proba) and
// resamples it to monthly means.
func LoadProbabilities(r io.Reader) ([]domain.DroughtProbability, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("climate: read probabilities header: %w", err)
	}
	for _, name := range []string{"valid_time", "proba"} {
		if !hasColumn(dec.Header(), name) {
			return nil, &ColumnError{Column: name, Err: ErrMissingColumn}
		}
	}

	var recs []probabilityRecord
	if err := dec.Decode(&recs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("climate: decode probabilities: %w", err)
	}

	monthly := monthlyMean(recs, func(r probabilityRecord) (time.Time, float64) {
		return r.ValidTime.Time, float64(r.Proba)
	})
	if len(monthly) == 0 {
		return nil, fmt.Errorf("climate: probabilities: %w", ErrNoMonthlyData)
	}
	out := make([]domain.DroughtProbability, len(monthly))
	for i, p := range monthly {
		pct := p.Value * 100
		out[i] = domain.DroughtProbability{
			Date:        p.Date,
			Probability: p.Value,
			Percent:     utils.RoundTo(pct, 1),
			Band:        domain.RiskBand(pct),
		}
	}
	return out, nil
}

// monthlyMean groups values by month start and averages the finite ones.
// Months without a finite value are dropped.
func monthlyMean[T any](items []T, get func(T) (time.Time, float64)) []domain.MonthlyPoint {
	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[time.Time]*acc)
	for _, it := range items {
		t, v := get(it)
		if t.IsZero() || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		key := MonthStart(t)
		a, ok := groups[key]
		if !ok {
			a = &acc{}
			groups[key] = a
		}
		a.sum += v
		a.n++
	}
	out := make([]domain.MonthlyPoint, 0, len(groups))
	for month, a := range groups {
		out = append(out, domain.MonthlyPoint{Date: month, Value: a.sum / float64(a.n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}

func allFinite(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
