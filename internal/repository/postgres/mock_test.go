package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarida/backend/internal/domain"
)

var (
	_ domain.DataRepository = (*PostgresRepository)(nil)
	_ domain.DataRepository = (*MockRepository)(nil)
)

func TestMockRepository_ListReportsNewestFirst(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, repo.SaveReport(ctx, domain.Report{Name: name}))
	}

	got, err := repo.ListReports(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Name)
	assert.Equal(t, "b", got[1].Name)

	all, err := repo.ListReports(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMockRepository_PredictionLog(t *testing.T) {
	repo := NewMockRepository()
	p := 0.8
	require.NoError(t, repo.SavePredictionLog(context.Background(), domain.PredictionRequest{}, domain.PredictionResponse{Class: 1, Probability: &p}))
	require.Len(t, repo.Predictions(), 1)
	assert.Equal(t, 1, repo.Predictions()[0].Class)
	assert.NoError(t, repo.Health(context.Background()))
}
