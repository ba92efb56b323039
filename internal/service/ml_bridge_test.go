package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarida/backend/internal/domain"
)

func newModelServer(t *testing.T, capabilities []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metadata", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":         "modelo_sequia_hgb",
			"features":     domain.FeatureNames,
			"capabilities": capabilities,
		})
	})
	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		var body featuresBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		class := 0
		if body.Features[8] < 10 {
			class = 1
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"class": class})
	})
	mux.HandleFunc("POST /predict_proba", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"probability": 0.82})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadClassifier_WithProbability(t *testing.T) {
	srv := newModelServer(t, []string{"predict", "predict_proba"})

	m, err := LoadClassifier(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.ModelWithProbability, m.Kind)
	assert.Equal(t, "modelo_sequia_hgb", m.Name)
	require.NotNil(t, m.Proba)

	x := domain.FeatureVector{26, 0.2, 0.2, 0.2, 0.2, 200, -60, -30, 5}
	class, err := m.Proba.Predict(context.Background(), x)
	require.NoError(t, err)
	assert.Equal(t, 1, class)

	p, err := m.Proba.PredictProba(context.Background(), x)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, p, 1e-12)
}

func TestLoadClassifier_LabelOnly(t *testing.T) {
	srv := newModelServer(t, []string{"predict"})

	m, err := LoadClassifier(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.ModelLabelOnly, m.Kind)
	assert.Nil(t, m.Proba)
	require.NotNil(t, m.Label)
}

func TestLoadClassifier_Rejects(t *testing.T) {
	t.Run("no predict capability", func(t *testing.T) {
		srv := newModelServer(t, []string{"predict_proba"})
		_, err := LoadClassifier(context.Background(), srv.URL, time.Second)
		assert.ErrorIs(t, err, ErrClassifier)
	})

	t.Run("feature order mismatch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"features":["tp","t2m"],"capabilities":["predict"]}`))
		}))
		defer srv.Close()
		_, err := LoadClassifier(context.Background(), srv.URL, time.Second)
		assert.ErrorIs(t, err, ErrClassifier)
	})

	t.Run("service down", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := LoadClassifier(context.Background(), url, time.Second)
		assert.ErrorIs(t, err, ErrClassifier)
	})
}

func TestMLBridge_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewMLBridge(srv.URL, time.Second)
	_, err := b.Predict(context.Background(), domain.FeatureVector{})
	require.ErrorIs(t, err, ErrClassifier)
	assert.Contains(t, err.Error(), "model crashed")

	assert.Error(t, b.Health(context.Background()))
}

func TestMLBridge_InvalidOutputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			_, _ = w.Write([]byte(`{"class": 7}`))
		case "/predict_proba":
			_, _ = w.Write([]byte(`{"probability": 1.5}`))
		}
	}))
	defer srv.Close()

	b := NewMLBridge(srv.URL, time.Second)
	_, err := b.Predict(context.Background(), domain.FeatureVector{})
	assert.ErrorIs(t, err, ErrClassifier)
	_, err = b.PredictProba(context.Background(), domain.FeatureVector{})
	assert.ErrorIs(t, err, ErrClassifier)
}
