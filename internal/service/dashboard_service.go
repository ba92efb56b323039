package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/sarida/backend/internal/assets"
	"github.com/sarida/backend/internal/cache"
	"github.com/sarida/backend/internal/climate"
	"github.com/sarida/backend/internal/config"
	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/internal/observability"
)

// outlookMonths is the precipitation history shown before the projection.
const outlookMonths = 12

// AssetEnsurer materialises an input file before it is read.
type AssetEnsurer interface {
	Ensure(ctx context.Context, a assets.Asset) error
}

// DashboardOptions selects the input files and analysis parameters.
type DashboardOptions struct {
	Dataset     assets.Asset
	Reanalysis  assets.Asset
	Probability assets.Asset

	Site      climate.ReanalysisOptions
	Pipeline  climate.PipelineConfig
	CacheSize int
}

// DashboardOptionsFromConfig builds the options from the loaded configuration.
func DashboardOptionsFromConfig(cfg *config.Config) (DashboardOptions, error) {
	spacing, err := climate.ParseSpacing(cfg.TrendSpacing)
	if err != nil {
		return DashboardOptions{}, err
	}
	dataset, reanalysis, probability := assets.Assets(cfg)
	return DashboardOptions{
		Dataset:     dataset,
		Reanalysis:  reanalysis,
		Probability: probability,
		Site:        climate.ReanalysisOptions{SiteRadiusKm: cfg.SiteRadiusKm},
		Pipeline: climate.PipelineConfig{
			Windows:     domain.DefaultWindows,
			Calibration: climate.Calibration{StartYear: cfg.CalibrationStart, EndYear: cfg.CalibrationEnd},
			Spacing:     spacing,
		},
		CacheSize: cfg.CacheSize,
	}, nil
}

// DashboardService loads the input files and derives every dashboard panel.
// Parsed files and pipeline results are memoised by file identity.
type DashboardService struct {
	opts    DashboardOptions
	fetcher AssetEnsurer
	events  []domain.HistoricalEvent
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	datasets      *cache.Cache[*climate.Dataset]
	observations  *cache.Cache[[]domain.Observation]
	analyses      *cache.Cache[domain.Analysis]
	probabilities *cache.Cache[[]domain.DroughtProbability]
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(
	opts DashboardOptions,
	fetcher AssetEnsurer,
	events []domain.HistoricalEvent,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *DashboardService {
	s := &DashboardService{
		opts:          opts,
		fetcher:       fetcher,
		events:        events,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
		datasets:      cache.New[*climate.Dataset](opts.CacheSize),
		observations:  cache.New[[]domain.Observation](opts.CacheSize),
		analyses:      cache.New[domain.Analysis](opts.CacheSize),
		probabilities: cache.New[[]domain.DroughtProbability](opts.CacheSize),
	}
	s.datasets.OnLookup = s.lookupRecorder("dataset")
	s.observations.OnLookup = s.lookupRecorder("reanalysis")
	s.analyses.OnLookup = s.lookupRecorder("analysis")
	s.probabilities.OnLookup = s.lookupRecorder("probability")
	return s
}

func (s *DashboardService) lookupRecorder(kind string) func(bool) {
	return func(hit bool) {
		if s.metrics == nil {
			return
		}
		result := "miss"
		if hit {
			result = "hit"
		}
		s.metrics.CacheLookups.WithLabelValues(kind, result).Inc()
	}
}

// Purge drops every memoised input and result.
func (s *DashboardService) Purge() {
	s.datasets.Purge()
	s.observations.Purge()
	s.analyses.Purge()
	s.probabilities.Purge()
	s.logger.Info("input cache purged")
}

// Dataset returns the parsed climate dataset.
func (s *DashboardService) Dataset(ctx context.Context) (*climate.Dataset, error) {
	if err := s.fetcher.Ensure(ctx, s.opts.Dataset); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(s.datasets, s.opts.Dataset.LocalPath, func() (*climate.Dataset, error) {
		return climate.LoadDatasetFile(s.opts.Dataset.LocalPath)
	})
}

// Variables returns the numeric dataset columns and the year range.
func (s *DashboardService) Variables(ctx context.Context) (domain.VariableSummary, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return domain.VariableSummary{}, err
	}
	return ds.Summary(), nil
}

// Series returns the monthly mean of variable between the given years.
func (s *DashboardService) Series(ctx context.Context, variable string, from, to int) ([]domain.MonthlyPoint, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Series(variable, from, to)
}

// Outlook returns the last twelve months of precipitation and a projected
// next month equal to their mean.
func (s *DashboardService) Outlook(ctx context.Context) (domain.Outlook, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return domain.Outlook{}, err
	}
	return BuildOutlook(ds.Monthly), nil
}

// BuildOutlook projects the month after monthly as the mean of its last twelve values.
func BuildOutlook(monthly []domain.MonthlyPoint) domain.Outlook {
	if len(monthly) == 0 {
		return domain.Outlook{}
	}
	history := monthly[max(0, len(monthly)-outlookMonths):]
	var sum float64
	for _, p := range history {
		sum += p.Value
	}
	last := history[len(history)-1].Date
	return domain.Outlook{
		History: append([]domain.MonthlyPoint(nil), history...),
		Projection: domain.MonthlyPoint{
			Date:  last.AddDate(0, 1, 0),
			Value: sum / float64(len(history)),
		},
	}
}

// Probability returns the model's monthly drought probability.
func (s *DashboardService) Probability(ctx context.Context) ([]domain.DroughtProbability, error) {
	if err := s.fetcher.Ensure(ctx, s.opts.Probability); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(s.probabilities, s.opts.Probability.LocalPath, func() ([]domain.DroughtProbability, error) {
		return climate.LoadProbabilitiesFile(s.opts.Probability.LocalPath)
	})
}

// Observations returns the monthly reanalysis records in raw units.
func (s *DashboardService) Observations(ctx context.Context) ([]domain.Observation, error) {
	if err := s.fetcher.Ensure(ctx, s.opts.Reanalysis); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(s.observations, s.opts.Reanalysis.LocalPath, func() ([]domain.Observation, error) {
		return climate.LoadReanalysisFile(s.opts.Reanalysis.LocalPath, s.opts.Site)
	})
}

// Converted returns the reanalysis records in display units.
func (s *DashboardService) Converted(ctx context.Context) ([]domain.Observation, error) {
	obs, err := s.Observations(ctx)
	if err != nil {
		return nil, err
	}
	return climate.Convert(obs), nil
}

// Analysis runs load, convert, index, join and trend on the reanalysis file.
func (s *DashboardService) Analysis(ctx context.Context) (domain.Analysis, error) {
	obs, err := s.Observations(ctx)
	if err != nil {
		return domain.Analysis{}, err
	}
	return cache.GetOrLoad(s.analyses, s.opts.Reanalysis.LocalPath, func() (domain.Analysis, error) {
		start := s.clock.Now()
		a, err := climate.RunPipeline(obs, s.opts.Pipeline)
		if s.metrics != nil {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			s.metrics.PipelineRuns.WithLabelValues(outcome).Inc()
			s.metrics.PipelineDuration.Observe(s.clock.Since(start).Seconds())
		}
		if err != nil {
			return domain.Analysis{}, err
		}
		s.logger.Info("analysis computed", "rows", len(a.Rows), "trends", len(a.Trends))
		return a, nil
	})
}

// Defaults returns the playground form defaults: the last converted observation.
func (s *DashboardService) Defaults(ctx context.Context) (domain.PredictionRequest, error) {
	obs, err := s.Converted(ctx)
	if err != nil {
		return domain.PredictionRequest{}, err
	}
	last := obs[len(obs)-1]
	return domain.PredictionRequest{
		T2m: last.T2m, Swvl1: last.Swvl1, Swvl2: last.Swvl2, Swvl3: last.Swvl3, Swvl4: last.Swvl4,
		Ssrd: last.Ssrd, Pev: last.Pev, E: last.E, Tp: last.Tp,
	}, nil
}

// Events returns the historical events catalogue.
func (s *DashboardService) Events() []domain.HistoricalEvent {
	return s.events
}

// LatestProbability returns the most recent drought probability in percent.
func (s *DashboardService) LatestProbability(ctx context.Context) (*float64, error) {
	probs, err := s.Probability(ctx)
	if err != nil {
		return nil, err
	}
	p := probs[len(probs)-1].Percent
	return &p, nil
}

// GetDashboardData builds every section concurrently using goroutines.
// A failing section is marked unavailable; the others are still returned.
func (s *DashboardService) GetDashboardData(ctx context.Context) domain.DashboardData {
	var (
		data domain.DashboardData
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ds, err := s.Dataset(ctx)
		if err != nil {
			fail(err)
			data.Variables = unavailable[domain.VariableSummary](err)
			data.Outlook = unavailable[domain.Outlook](err)
			return
		}
		data.Variables = available(ds.Summary())
		data.Outlook = available(BuildOutlook(ds.Monthly))
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		probs, err := s.Probability(ctx)
		if err != nil {
			fail(err)
			data.Probability = unavailable[[]domain.DroughtProbability](err)
			return
		}
		data.Probability = available(probs)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a, err := s.Analysis(ctx)
		if err != nil {
			fail(err)
			data.Trends = unavailable[[]domain.TrendResult](err)
			data.Latest = unavailable[domain.Observation](err)
			return
		}
		data.Trends = available(a.Trends)
		if row, ok := a.Latest(); ok {
			data.Latest = available(row.Observation)
		} else {
			data.Latest = domain.Section[domain.Observation]{Message: msgNoJoinedRows}
		}
	}()

	wg.Wait()

	for _, err := range errs {
		s.logger.Warn("dashboard section unavailable", "error", err)
	}

	data.Timestamp = s.clock.Now()
	return data
}

// User-facing section messages.
const (
	msgAssetUnavailable = "No se encontró el archivo de datos de esta sección. Se omite la visualización."
	msgNoMonthlyData    = "El archivo no contiene datos mensuales válidos."
	msgNoJoinedRows     = "No hay meses con todos los índices de sequía definidos."
	msgSectionFailed    = "No se pudieron cargar los datos de esta sección."
)

// SectionMessage returns the message shown in place of a section that failed with err.
func SectionMessage(err error) string {
	var colErr *climate.ColumnError
	switch {
	case errors.As(err, &colErr):
		return colErr.Message()
	case errors.Is(err, assets.ErrAssetUnavailable):
		return msgAssetUnavailable
	case errors.Is(err, climate.ErrNoMonthlyData):
		return msgNoMonthlyData
	default:
		return fmt.Sprintf("%s (%v)", msgSectionFailed, err)
	}
}

func available[T any](v T) domain.Section[T] {
	return domain.Section[T]{Available: true, Data: v}
}

func unavailable[T any](err error) domain.Section[T] {
	return domain.Section[T]{Message: SectionMessage(err)}
}
