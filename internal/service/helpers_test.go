package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sarida/backend/internal/assets"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// reanalysisCSV renders n months of raw reanalysis whose precipitation triples
// from month step on.
func reanalysisCSV(n, step int) string {
	var b strings.Builder
	b.WriteString("valid_time,t2m,swvl1,swvl2,swvl3,swvl4,ssrd,pev,e,tp\n")
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		tp := 0.001
		if i >= step {
			tp = 0.003
		}
		fmt.Fprintf(&b, "%s,300,0.2,0.2,0.2,0.2,20000000,-0.002,-0.001,%g\n",
			start.AddDate(0, i, 0).Format("2006-01-02"), tp)
	}
	return b.String()
}

func datasetCSV(months int) string {
	var b strings.Builder
	b.WriteString("valid_time,year,tp,t2m\n")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < months; i++ {
		d := start.AddDate(0, i, 0)
		fmt.Fprintf(&b, "%s,%d,%d,300\n", d.Format("2006-01-02"), d.Year(), i+1)
	}
	return b.String()
}

const probabilityCSV = "valid_time,proba\n2024-01-01,0.2\n2024-02-01,0.55\n2024-03-01,0.91\n"

// localFetcher succeeds for files that exist and reports the rest unavailable.
type localFetcher struct{}

func (localFetcher) Ensure(_ context.Context, a assets.Asset) error {
	if _, err := os.Stat(a.LocalPath); err != nil {
		return fmt.Errorf("assets: %s: %w", a.Name, assets.ErrAssetUnavailable)
	}
	return nil
}
