package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/internal/observability"
)

var (
	// ErrModelUnavailable is returned when no classifier was loaded at startup.
	ErrModelUnavailable = errors.New("drought model unavailable")
	// ErrInvalidFeatures is returned for vectors containing NaN or Inf.
	ErrInvalidFeatures = errors.New("invalid feature vector")
)

// Result messages shown next to the prediction.
const (
	msgDrought   = "Condiciones compatibles con sequía."
	msgNoDrought = "Sin indicios fuertes de sequía."
)

// PlaygroundService runs the drought classifier on user supplied features.
type PlaygroundService struct {
	model   *domain.Model
	repo    DataRepository
	logger  *slog.Logger
	metrics *observability.Metrics

	wgBg sync.WaitGroup // tracks background prediction log writes
}

// NewPlaygroundService creates the playground. model may be nil when the
// classifier could not be loaded; predictions then fail with ErrModelUnavailable.
func NewPlaygroundService(model *domain.Model, repo DataRepository, logger *slog.Logger, metrics *observability.Metrics) *PlaygroundService {
	return &PlaygroundService{model: model, repo: repo, logger: logger, metrics: metrics}
}

// Available reports whether a classifier is loaded.
func (s *PlaygroundService) Available() bool {
	return s.model != nil
}

// Model returns the loaded classifier, or nil.
func (s *PlaygroundService) Model() *domain.Model {
	return s.model
}

// WaitBackground blocks until pending prediction logs are written.
func (s *PlaygroundService) WaitBackground() {
	s.wgBg.Wait()
}

// Predict validates req and runs the classifier once. Backend failures are
// returned wrapped in ErrClassifier and are not retried.
func (s *PlaygroundService) Predict(ctx context.Context, req domain.PredictionRequest) (domain.PredictionResponse, error) {
	if s.model == nil {
		return domain.PredictionResponse{}, ErrModelUnavailable
	}

	x := req.Vector()
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.count("invalid")
			return domain.PredictionResponse{}, fmt.Errorf("playground: %s is not a finite number: %w",
				domain.FeatureNames[i], ErrInvalidFeatures)
		}
	}

	resp, err := s.run(ctx, x)
	if err != nil {
		s.count("error")
		s.logger.Warn("prediction failed", "model", s.model.Name, "error", err)
		return domain.PredictionResponse{}, err
	}
	s.count("success")

	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.SavePredictionLog(bgCtx, req, resp); err != nil {
			s.logger.Warn("failed to save prediction log", "error", err)
		}
	}()

	return resp, nil
}

func (s *PlaygroundService) run(ctx context.Context, x domain.FeatureVector) (domain.PredictionResponse, error) {
	var resp domain.PredictionResponse

	switch s.model.Kind {
	case domain.ModelWithProbability:
		p, err := s.model.Proba.PredictProba(ctx, x)
		if err != nil {
			return resp, err
		}
		class, err := s.model.Proba.Predict(ctx, x)
		if err != nil {
			return resp, err
		}
		resp.Class = class
		resp.Probability = &p
	default:
		class, err := s.model.Label.Predict(ctx, x)
		if err != nil {
			return resp, err
		}
		resp.Class = class
	}

	resp.Drought = resp.Class == 1
	resp.Message = msgNoDrought
	if resp.Drought {
		resp.Message = msgDrought
	}
	return resp, nil
}

func (s *PlaygroundService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Predictions.WithLabelValues(outcome).Inc()
	}
}
