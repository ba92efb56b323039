package postgres

import (
	"context"
	"sync"

	"github.com/sarida/backend/internal/domain"
)

// MockRepository implements domain.DataRepository in memory for tests and
// for running without a database
type MockRepository struct {
	mu          sync.Mutex
	reports     []domain.Report
	predictions []domain.PredictionResponse
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{}
}

// SaveReport keeps the report in memory
func (r *MockRepository) SaveReport(ctx context.Context, rep domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

// ListReports returns the in-memory reports, newest first
func (r *MockRepository) ListReports(ctx context.Context, limit int) ([]domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Report, 0, len(r.reports))
	for i := len(r.reports) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, r.reports[i])
	}
	return out, nil
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}

// SavePredictionLog keeps the response in memory
func (r *MockRepository) SavePredictionLog(ctx context.Context, req domain.PredictionRequest, resp domain.PredictionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions = append(r.predictions, resp)
	return nil
}

// Predictions returns the logged prediction responses
func (r *MockRepository) Predictions() []domain.PredictionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PredictionResponse(nil), r.predictions...)
}
