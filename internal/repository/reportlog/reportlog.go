package reportlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/sarida/backend/internal/domain"
)

// TimeLayout is the ISO-8601 timestamp written at the start of every line.
const TimeLayout = "2006-01-02T15:04:05Z07:00"

var header = []string{"timestamp", "name", "municipality", "message"}

type record struct {
	Timestamp    string `csv:"timestamp"`
	Name         string `csv:"name"`
	Municipality string `csv:"municipality"`
	Message      string `csv:"message"`
}

// Log is the append-only CSV report file. The file has no header; every line
// is timestamp, name, municipality, message.
type Log struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Path() string { return l.path }

// Append writes r as exactly one CSV record.
func (l *Log) Append(r domain.Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reportlog: open %s: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false

	rec := record{
		Timestamp:    r.Timestamp.UTC().Format(TimeLayout),
		Name:         r.Name,
		Municipality: r.Municipality,
		Message:      r.Message,
	}
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("reportlog: encode report: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("reportlog: write report: %w", err)
	}
	return nil
}

// Recent returns up to limit reports, newest first. A missing file yields no
// reports and lines without a valid timestamp are skipped.
func (l *Log) Recent(limit int) ([]domain.Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reportlog: open %s: %w", l.path, err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f), header...)
	if err != nil {
		return nil, fmt.Errorf("reportlog: read %s: %w", l.path, err)
	}

	var all []domain.Report
	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("reportlog: decode %s: %w", l.path, err)
		}
		ts, err := time.Parse(TimeLayout, rec.Timestamp)
		if err != nil {
			// Hand-edited or truncated lines are skipped.
			continue
		}
		all = append(all, domain.Report{
			Timestamp:    ts,
			Name:         rec.Name,
			Municipality: rec.Municipality,
			Message:      rec.Message,
		})
	}

	out := make([]domain.Report, 0, len(all))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}
