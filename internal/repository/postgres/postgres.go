package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sarida/backend/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS field_reports (
		id           TEXT PRIMARY KEY,
		submitted_at TIMESTAMPTZ NOT NULL,
		name         TEXT NOT NULL,
		municipality TEXT NOT NULL,
		message      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS field_reports_submitted_at_idx ON field_reports (submitted_at DESC);

	CREATE TABLE IF NOT EXISTS prediction_logs (
		id          BIGSERIAL PRIMARY KEY,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		t2m         DOUBLE PRECISION,
		swvl1       DOUBLE PRECISION,
		swvl2       DOUBLE PRECISION,
		swvl3       DOUBLE PRECISION,
		swvl4       DOUBLE PRECISION,
		ssrd        DOUBLE PRECISION,
		pev         DOUBLE PRECISION,
		e           DOUBLE PRECISION,
		tp          DOUBLE PRECISION,
		class       INTEGER NOT NULL,
		probability DOUBLE PRECISION
	);
`

// PostgresRepository implements domain.DataRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the report and prediction tables if they do not exist
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to migrate: %w", err)
	}
	return nil
}

// SaveReport mirrors a field report to PostgreSQL
func (r *PostgresRepository) SaveReport(ctx context.Context, rep domain.Report) error {
	query := `
		INSERT INTO field_reports (id, submitted_at, name, municipality, message)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, rep.ID, rep.Timestamp, rep.Name, rep.Municipality, rep.Message)
	if err != nil {
		return fmt.Errorf("postgres: failed to save report: %w", err)
	}

	return nil
}

// ListReports retrieves the most recent reports from PostgreSQL
func (r *PostgresRepository) ListReports(ctx context.Context, limit int) ([]domain.Report, error) {
	query := `
		SELECT id, submitted_at, name, municipality, message
		FROM field_reports
		ORDER BY submitted_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query reports: %w", err)
	}
	defer rows.Close()

	var results []domain.Report
	for rows.Next() {
		var rep domain.Report
		if err := rows.Scan(&rep.ID, &rep.Timestamp, &rep.Name, &rep.Municipality, &rep.Message); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan report row: %w", err)
		}
		rep.Timestamp = rep.Timestamp.UTC()
		results = append(results, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate reports: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

// SavePredictionLog persists a classifier request/response to PostgreSQL
func (r *PostgresRepository) SavePredictionLog(ctx context.Context, req domain.PredictionRequest, resp domain.PredictionResponse) error {
	query := `
		INSERT INTO prediction_logs (
			t2m, swvl1, swvl2, swvl3, swvl4, ssrd, pev, e, tp, class, probability
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	// Label-only models have no probability; store NULL
	var probability interface{}
	if resp.Probability != nil {
		probability = *resp.Probability
	}

	_, err := r.pool.Exec(ctx, query,
		req.T2m, req.Swvl1, req.Swvl2, req.Swvl3, req.Swvl4, req.Ssrd, req.Pev, req.E, req.Tp,
		resp.Class, probability,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save prediction log: %w", err)
	}

	return nil
}
