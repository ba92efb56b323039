package domain

import (
	"context"
	"time"
)

// FeatureVector is the classifier input in training order:
// t2m, swvl1, swvl2, swvl3, swvl4, ssrd, pev, e, tp.
type FeatureVector [9]float64

// FeatureNames lists the feature columns in FeatureVector order.
var FeatureNames = [9]string{"t2m", "swvl1", "swvl2", "swvl3", "swvl4", "ssrd", "pev", "e", "tp"}

// PredictionRequest represents input for the drought classifier playground
type PredictionRequest struct {
	T2m   float64 `json:"t2m"`
	Swvl1 float64 `json:"swvl1"`
	Swvl2 float64 `json:"swvl2"`
	Swvl3 float64 `json:"swvl3"`
	Swvl4 float64 `json:"swvl4"`
	Ssrd  float64 `json:"ssrd"`
	Pev   float64 `json:"pev"`
	E     float64 `json:"e"`
	Tp    float64 `json:"tp"`
}

// Vector returns the request as an ordered feature vector.
func (r PredictionRequest) Vector() FeatureVector {
	return FeatureVector{r.T2m, r.Swvl1, r.Swvl2, r.Swvl3, r.Swvl4, r.Ssrd, r.Pev, r.E, r.Tp}
}

// PredictionResponse represents classifier output
type PredictionResponse struct {
	Class       int      `json:"class"`
	Probability *float64 `json:"probability,omitempty"`
	Drought     bool     `json:"drought"`
	Message     string   `json:"message"`
}

// Report is a free-text field observation submitted by a user.
type Report struct {
	ID           string    `json:"id" csv:"-"`
	Timestamp    time.Time `json:"timestamp" csv:"timestamp"`
	Name         string    `json:"name" csv:"name"`
	Municipality string    `json:"municipality" csv:"municipality"`
	Message      string    `json:"message" csv:"message"`
}

// DataRepository defines the interface for data persistence
type DataRepository interface {
	// SaveReport mirrors a submitted report
	SaveReport(ctx context.Context, r Report) error

	// ListReports returns the most recent reports, newest first
	ListReports(ctx context.Context, limit int) ([]Report, error)

	// SavePredictionLog persists a prediction request/response
	SavePredictionLog(ctx context.Context, req PredictionRequest, resp PredictionResponse) error

	// Health checks database connectivity
	Health(ctx context.Context) error
}

// ReportPublisher fans submitted reports out to other systems.
type ReportPublisher interface {
	PublishReport(ctx context.Context, r Report) error
}

// LanguageModel generates a text reply for a prompt.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
