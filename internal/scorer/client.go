package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/streamrisk/fraud-scoring-worker/configs"
	"github.com/streamrisk/fraud-scoring-worker/internal/features"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	"github.com/streamrisk/fraud-scoring-worker/pkg/utils"
	"go.uber.org/zap"
)

// Scorer sends a single-instance prediction request to the hosted model
// endpoint and returns the raw (uninterpreted) prediction for this
// transaction plus the deployed model version.
type Scorer interface {
	Score(ctx context.Context, vec features.FeatureVector) (*RawPrediction, error)
}

// RawPrediction is the scorer's answer before shape interpretation.
type RawPrediction struct {
	Prediction   any
	ModelVersion string
}

type predictRequest struct {
	Instances []features.FeatureVector `json:"instances"`
}

type predictResponse struct {
	Predictions     []any  `json:"predictions"`
	DeployedModelID string `json:"deployedModelId"`
	// Older deployments emit snake_case.
	DeployedModelIDLegacy string `json:"deployed_model_id"`
}

type ScorerConfig struct {
	Logger  *zap.Logger
	Cnf     *configs.Config
	Limiter *pkg.DistributedLimiter
	// Client overrides the default tuned client; used by tests.
	Client *http.Client
}

type clientImpl struct {
	logger   *zap.Logger
	cnf      *configs.Config
	limiter  *pkg.DistributedLimiter
	endpoint string
	client   *http.Client
}

func NewScorer(cfg ScorerConfig) Scorer {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = utils.NewHTTPClient(utils.WithClientTimeout(cfg.Cnf.ScorerTimeout))
	}
	return &clientImpl{
		logger:   cfg.Logger,
		cnf:      cfg.Cnf,
		limiter:  cfg.Limiter,
		endpoint: cfg.Cnf.ScorerEndpoint,
		client:   httpClient,
	}
}

func (c *clientImpl) Score(ctx context.Context, vec features.FeatureVector) (*RawPrediction, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.cnf.ScorerMaxThrottleWait); err != nil {
			return nil, pkg.NewPipelineError(pkg.ErrRateLimitThrottledCode, pkg.StageScore, "", err)
		}
	}

	body, err := json.Marshal(predictRequest{Instances: []features.FeatureVector{vec}})
	if err != nil {
		return nil, pkg.NewPipelineError(pkg.ErrScorerInvocationCode, pkg.StageScore, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkg.NewPipelineError(pkg.ErrScorerInvocationCode, pkg.StageScore, "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, pkg.NewPipelineError(pkg.ErrScorerInvocationCode, pkg.StageScore, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, pkg.NewPipelineError(pkg.ErrScorerInvocationCode, pkg.StageScore, "",
			fmt.Errorf("scorer returned status %d: %s", resp.StatusCode, string(snippet)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, pkg.NewPipelineError(pkg.ErrScorerInvocationCode, pkg.StageScore, "", err)
	}
	if len(out.Predictions) == 0 {
		// An empty predictions list is a contract mismatch, not an outage.
		return nil, pkg.NewPipelineError(pkg.ErrUnrecognizedShapeCode, pkg.StageScore, "",
			fmt.Errorf("scorer response contains no predictions"))
	}

	version := out.DeployedModelID
	if utils.IsEmpty(version) {
		version = out.DeployedModelIDLegacy
	}
	if utils.IsEmpty(version) {
		version = "unknown"
		c.logger.Warn("scorer_response_missing_model_version")
	}

	return &RawPrediction{Prediction: out.Predictions[0], ModelVersion: version}, nil
}
