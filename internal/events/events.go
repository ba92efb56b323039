package events

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sarida/backend/internal/domain"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

type catalogue struct {
	Events []domain.HistoricalEvent `yaml:"events"`
}

// Load reads the events catalogue at path, or the built-in La Guajira
// catalogue when path is empty. Events are returned newest first.
func Load(path string) ([]domain.HistoricalEvent, error) {
	data := defaultCatalogue
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("events: failed to read %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes a YAML events catalogue.
func Parse(data []byte) ([]domain.HistoricalEvent, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("events: failed to parse catalogue: %w", err)
	}
	for i, e := range c.Events {
		if e.Label == "" {
			return nil, fmt.Errorf("events: event %d has no label", i)
		}
		if e.Start.IsZero() {
			return nil, fmt.Errorf("events: event %q has no start date", e.Label)
		}
		if e.End.IsZero() {
			c.Events[i].End = e.Start
		} else if e.End.Before(e.Start) {
			return nil, fmt.Errorf("events: event %q ends before it starts", e.Label)
		}
	}
	sort.SliceStable(c.Events, func(i, j int) bool {
		return c.Events[i].Start.After(c.Events[j].Start)
	})
	return c.Events, nil
}
