//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/internal/repository/postgres"
	"github.com/sarida/backend/internal/repository/reportlog"
	"github.com/sarida/backend/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPostgres runs a disposable PostgreSQL container and returns a migrated repository.
func startPostgres(ctx context.Context, t *testing.T) (*postgres.PostgresRepository, *pgxpool.Pool) {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("sarida"),
		tcpostgres.WithUsername("sarida"),
		tcpostgres.WithPassword("sarida"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := postgres.NewPostgresRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migration is repeatable")
	return repo, pool
}

func TestPostgresRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo, pool := startPostgres(ctx, t)
	require.NoError(t, repo.Health(ctx))

	older := domain.Report{
		ID:           "r-1",
		Timestamp:    time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Name:         "Ana",
		Municipality: "Uribia",
		Message:      "El pozo comunitario se secó",
	}
	newer := domain.Report{
		ID:           "r-2",
		Timestamp:    time.Date(2025, 6, 5, 14, 30, 12, 0, time.UTC),
		Municipality: "Manaure",
		Message:      "Sin lluvias desde marzo",
	}
	require.NoError(t, repo.SaveReport(ctx, older))
	require.NoError(t, repo.SaveReport(ctx, newer))
	require.NoError(t, repo.SaveReport(ctx, newer), "duplicate ids are ignored")

	reports, err := repo.ListReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, newer, reports[0])
	assert.Equal(t, older, reports[1])

	proba := 0.72
	require.NoError(t, repo.SavePredictionLog(ctx,
		domain.PredictionRequest{T2m: 28.4, Tp: 1.2},
		domain.PredictionResponse{Class: 1, Probability: &proba, Drought: true}))
	require.NoError(t, repo.SavePredictionLog(ctx,
		domain.PredictionRequest{T2m: 25.1, Tp: 6.3},
		domain.PredictionResponse{Class: 0}))

	var total, withProba int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*), count(probability) FROM prediction_logs`).Scan(&total, &withProba))
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, withProba)
}

func TestReportServiceMirrorsToPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo, _ := startPostgres(ctx, t)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 5, 14, 30, 12, 0, time.UTC))
	log := reportlog.New(filepath.Join(t.TempDir(), "reportes_usuarios.csv"))
	svc := service.NewReportService(log, repo, nil, clock, discardLogger(), nil)

	submitted, err := svc.Submit(ctx, "Ana", "Uribia", "El pozo comunitario se secó")
	require.NoError(t, err)
	svc.WaitBackground()

	mirrored, err := repo.ListReports(ctx, 5)
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, submitted, mirrored[0])

	local, err := log.Recent(5)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, submitted.Message, local[0].Message)
}
