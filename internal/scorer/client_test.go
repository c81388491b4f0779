package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/streamrisk/fraud-scoring-worker/configs"
	"github.com/streamrisk/fraud-scoring-worker/internal/features"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScorer(t *testing.T, handler http.HandlerFunc) (Scorer, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &configs.Config{
		ScorerEndpoint:        srv.URL,
		ScorerTimeout:         5 * time.Second,
		ScorerMaxThrottleWait: time.Second,
	}
	return NewScorer(ScorerConfig{
		Logger: zap.NewNop(),
		Cnf:    cfg,
		Client: srv.Client(),
	}), srv
}

func TestScore_SendsSingleInstanceAndReturnsFirstPrediction(t *testing.T) {
	var gotBody predictRequest
	s, _ := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"predictions":     []any{map[string]any{"scores": []any{0.8, 0.2}}},
			"deployedModelId": "model-77",
		})
	})

	vec := features.NewDefaultVector(120.0)
	raw, err := s.Score(context.Background(), vec)
	require.NoError(t, err)

	require.Len(t, gotBody.Instances, 1)
	assert.Equal(t, 120.0, gotBody.Instances[0]["tx_amount"])
	assert.Equal(t, "model-77", raw.ModelVersion)

	p, err := InterpretPrediction(raw.Prediction)
	require.NoError(t, err)
	assert.Equal(t, 0.2, p)
}

func TestScore_AcceptsSnakeCaseModelVersion(t *testing.T) {
	s, _ := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"predictions":       []any{0.1},
			"deployed_model_id": "legacy-3",
		})
	})

	raw, err := s.Score(context.Background(), features.NewDefaultVector(1))
	require.NoError(t, err)
	assert.Equal(t, "legacy-3", raw.ModelVersion)
}

func TestScore_EndpointErrorIsTransient(t *testing.T) {
	s, _ := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := s.Score(context.Background(), features.NewDefaultVector(1))
	require.Error(t, err)

	var pe *pkg.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, pkg.ErrScorerInvocationCode.Code, pe.Code.Code)
	assert.True(t, pe.Code.Transient)
}

func TestScore_ConnectionRefusedIsTransient(t *testing.T) {
	s, srv := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close() // force connection failure

	_, err := s.Score(context.Background(), features.NewDefaultVector(1))
	require.Error(t, err)

	var pe *pkg.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, pkg.ErrScorerInvocationCode.Code, pe.Code.Code)
}

func TestScore_EmptyPredictionsIsContractMismatch(t *testing.T) {
	s, _ := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"predictions":     []any{},
			"deployedModelId": "model-77",
		})
	})

	_, err := s.Score(context.Background(), features.NewDefaultVector(1))
	require.Error(t, err)

	var pe *pkg.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, pkg.ErrUnrecognizedShapeCode.Code, pe.Code.Code)
	assert.False(t, pe.Code.Transient)
}
