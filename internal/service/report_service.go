package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/internal/observability"
	"github.com/sarida/backend/internal/repository/reportlog"
)

// ErrEmptyReport is returned when the report message is blank.
var ErrEmptyReport = errors.New("empty report")

// ReportService records field reports in the append-only log and mirrors
// them to the configured secondary stores.
type ReportService struct {
	log       *reportlog.Log
	repo      DataRepository
	publisher domain.ReportPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	wgBg sync.WaitGroup
}

// NewReportService creates a report service. repo and publisher may be nil.
func NewReportService(log *reportlog.Log, repo DataRepository, publisher domain.ReportPublisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *ReportService {
	return &ReportService{
		log:       log,
		repo:      repo,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// WaitBackground blocks until pending mirror writes complete.
func (s *ReportService) WaitBackground() {
	s.wgBg.Wait()
}

// Submit appends a report to the log. Only the log write can fail the call;
// mirror failures are logged and counted.
func (s *ReportService) Submit(ctx context.Context, name, municipality, message string) (domain.Report, error) {
	if strings.TrimSpace(message) == "" {
		return domain.Report{}, ErrEmptyReport
	}

	r := domain.Report{
		ID:           uuid.NewString(),
		Timestamp:    s.clock.Now().UTC().Truncate(time.Second),
		Name:         strings.TrimSpace(name),
		Municipality: strings.TrimSpace(municipality),
		Message:      message,
	}
	if err := s.log.Append(r); err != nil {
		return domain.Report{}, fmt.Errorf("report_service: failed to append report: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ReportsSubmitted.Inc()
	}
	s.logger.Info("report submitted", "id", r.ID, "municipality", r.Municipality)

	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		s.mirror(bgCtx, r)
	}()

	return r, nil
}

func (s *ReportService) mirror(ctx context.Context, r domain.Report) {
	if s.repo != nil {
		if err := s.repo.SaveReport(ctx, r); err != nil {
			s.mirrorFailed("repository", r, err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishReport(ctx, r); err != nil {
			s.mirrorFailed("kafka", r, err)
		}
	}
}

func (s *ReportService) mirrorFailed(mirror string, r domain.Report, err error) {
	s.logger.Warn("failed to mirror report", "mirror", mirror, "id", r.ID, "error", err)
	if s.metrics != nil {
		s.metrics.MirrorErrors.WithLabelValues(mirror).Inc()
	}
}

// Recent returns up to limit reports from the log, newest first.
func (s *ReportService) Recent(limit int) ([]domain.Report, error) {
	reports, err := s.log.Recent(limit)
	if err != nil {
		return nil, fmt.Errorf("report_service: failed to read reports: %w", err)
	}
	return reports, nil
}
