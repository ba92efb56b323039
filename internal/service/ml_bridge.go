package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/sarida/backend/internal/domain"
)

// ErrClassifier wraps every failure reported by the model service.
var ErrClassifier = errors.New("classifier error")

// Capability names advertised by the model service in GET /metadata.
const (
	capPredict      = "predict"
	capPredictProba = "predict_proba"
)

// modelMetadata is the GET /metadata response of the model service.
type modelMetadata struct {
	Name         string   `json:"name"`
	Features     []string `json:"features"`
	Capabilities []string `json:"capabilities"`
}

type featuresBody struct {
	Features domain.FeatureVector `json:"features"`
}

type predictBody struct {
	Class int `json:"class"`
}

type probaBody struct {
	Probability float64 `json:"probability"`
}

// MLBridge handles communication with the model service that hosts the
// trained drought classifier.
type MLBridge struct {
	serviceURL string
	httpClient *http.Client
}

// NewMLBridge creates a new ML bridge
func NewMLBridge(serviceURL string, timeout time.Duration) *MLBridge {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MLBridge{
		serviceURL: serviceURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// LoadClassifier reads the model metadata once and returns the model tagged
// with its capability. A model without "predict" is rejected.
func LoadClassifier(ctx context.Context, serviceURL string, timeout time.Duration) (*domain.Model, error) {
	b := NewMLBridge(serviceURL, timeout)

	var meta modelMetadata
	if err := b.do(ctx, http.MethodGet, "/metadata", nil, &meta); err != nil {
		return nil, fmt.Errorf("ml_bridge: failed to load metadata: %w", err)
	}
	if len(meta.Features) > 0 && !slices.Equal(meta.Features, domain.FeatureNames[:]) {
		return nil, fmt.Errorf("ml_bridge: model expects features %v, want %v: %w",
			meta.Features, domain.FeatureNames, ErrClassifier)
	}
	if !slices.Contains(meta.Capabilities, capPredict) {
		return nil, fmt.Errorf("ml_bridge: model %q does not support %s: %w", meta.Name, capPredict, ErrClassifier)
	}

	name := meta.Name
	if name == "" {
		name = "drought-classifier"
	}
	if slices.Contains(meta.Capabilities, capPredictProba) {
		return domain.NewProbabilityModel(name, b), nil
	}
	return domain.NewLabelOnlyModel(name, b), nil
}

// Predict returns the predicted class for x.
func (b *MLBridge) Predict(ctx context.Context, x domain.FeatureVector) (int, error) {
	var out predictBody
	if err := b.do(ctx, http.MethodPost, "/predict", featuresBody{Features: x}, &out); err != nil {
		return 0, fmt.Errorf("ml_bridge: predict: %w", err)
	}
	if out.Class != 0 && out.Class != 1 {
		return 0, fmt.Errorf("ml_bridge: predict returned class %d: %w", out.Class, ErrClassifier)
	}
	return out.Class, nil
}

// PredictProba returns the probability of the drought class for x.
func (b *MLBridge) PredictProba(ctx context.Context, x domain.FeatureVector) (float64, error) {
	var out probaBody
	if err := b.do(ctx, http.MethodPost, "/predict_proba", featuresBody{Features: x}, &out); err != nil {
		return 0, fmt.Errorf("ml_bridge: predict_proba: %w", err)
	}
	if out.Probability < 0 || out.Probability > 1 {
		return 0, fmt.Errorf("ml_bridge: probability %v out of range: %w", out.Probability, ErrClassifier)
	}
	return out.Probability, nil
}

// Health checks ML service connectivity
func (b *MLBridge) Health(ctx context.Context) error {
	if err := b.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("ml_bridge: health check failed: %w", err)
	}
	return nil
}

func (b *MLBridge) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.serviceURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClassifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrClassifier, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrClassifier, err)
	}
	return nil
}
