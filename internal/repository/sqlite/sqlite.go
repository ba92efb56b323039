package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sarida/backend/internal/domain"
)

// timeLayout has fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Repository implements domain.DataRepository on a local SQLite file (pure Go
// driver), for deployments without PostgreSQL.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.Warn("could not set WAL mode", "error", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS field_reports (
		id TEXT PRIMARY KEY,
		submitted_at TEXT NOT NULL,
		name TEXT NOT NULL,
		municipality TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS prediction_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		t2m REAL, swvl1 REAL, swvl2 REAL, swvl3 REAL, swvl4 REAL,
		ssrd REAL, pev REAL, e REAL, tp REAL,
		class INTEGER NOT NULL,
		probability REAL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) SaveReport(ctx context.Context, rep domain.Report) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO field_reports(id, submitted_at, name, municipality, message) VALUES(?,?,?,?,?)`,
		rep.ID, rep.Timestamp.UTC().Format(timeLayout), rep.Name, rep.Municipality, rep.Message)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save report: %w", err)
	}
	return nil
}

func (r *Repository) ListReports(ctx context.Context, limit int) ([]domain.Report, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, submitted_at, name, municipality, message FROM field_reports ORDER BY submitted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		var rep domain.Report
		var ts string
		if err := rows.Scan(&rep.ID, &ts, &rep.Name, &rep.Municipality, &rep.Message); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan report row: %w", err)
		}
		if t, err := time.Parse(timeLayout, ts); err == nil {
			rep.Timestamp = t
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *Repository) SavePredictionLog(ctx context.Context, req domain.PredictionRequest, resp domain.PredictionResponse) error {
	var probability any
	if resp.Probability != nil {
		probability = *resp.Probability
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO prediction_logs(created_at, t2m, swvl1, swvl2, swvl3, swvl4, ssrd, pev, e, tp, class, probability)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().UTC().Format(timeLayout),
		req.T2m, req.Swvl1, req.Swvl2, req.Swvl3, req.Swvl4, req.Ssrd, req.Pev, req.E, req.Tp,
		resp.Class, probability)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save prediction log: %w", err)
	}
	return nil
}

func (r *Repository) Health(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
