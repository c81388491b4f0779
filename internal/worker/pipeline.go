package worker

import (
	"context"
	"errors"
	"time"

	"github.com/streamrisk/fraud-scoring-worker/internal/features"
	"github.com/streamrisk/fraud-scoring-worker/internal/observability"
	"github.com/streamrisk/fraud-scoring-worker/internal/recorder"
	"github.com/streamrisk/fraud-scoring-worker/internal/scorer"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	"github.com/streamrisk/fraud-scoring-worker/pkg/models"
	"github.com/streamrisk/fraud-scoring-worker/pkg/views"
	"go.uber.org/zap"
)

// Pipeline runs the fixed per-message transform: event -> feature vector ->
// score -> interpreted probability -> recorded prediction. Every stage must
// fully succeed before the next begins; the first failure short-circuits and
// surfaces as a stage-tagged PipelineError for a single ack/retry decision
// at the consumer boundary.
type Pipeline interface {
	Process(ctx context.Context, event views.TransactionEvent) (*models.ScoredPrediction, error)
}

type PipelineConfig struct {
	Logger   *zap.Logger
	Resolver features.Resolver
	Scorer   scorer.Scorer
	Recorder recorder.Recorder
}

type pipelineImpl struct {
	logger   *zap.Logger
	resolver features.Resolver
	scorer   scorer.Scorer
	recorder recorder.Recorder
}

func NewPipeline(cfg PipelineConfig) Pipeline {
	return &pipelineImpl{
		logger:   cfg.Logger,
		resolver: cfg.Resolver,
		scorer:   cfg.Scorer,
		recorder: cfg.Recorder,
	}
}

func (p *pipelineImpl) Process(ctx context.Context, event views.TransactionEvent) (*models.ScoredPrediction, error) {
	// The consumer validates before calling; re-check here so a caller that
	// skips validation cannot score an absent amount as 0.
	if event.TxAmount == nil {
		return nil, pkg.NewPipelineError(pkg.ErrMalformedMessageCode, pkg.StageReceived, event.TxID,
			errors.New("TX_AMOUNT missing"))
	}
	txTime, err := event.Timestamp()
	if err != nil {
		return nil, pkg.NewPipelineError(pkg.ErrMalformedMessageCode, pkg.StageReceived, event.TxID, err)
	}

	vec, err := p.stageResolve(ctx, event, txTime)
	if err != nil {
		return nil, annotate(err, event.TxID)
	}

	raw, err := p.stageScore(ctx, event.TxID, vec)
	if err != nil {
		return nil, annotate(err, event.TxID)
	}

	probability, err := p.stageInterpret(raw)
	if err != nil {
		return nil, annotate(err, event.TxID)
	}

	prediction, err := p.stageRecord(ctx, event.TxID, probability, raw.ModelVersion)
	if err != nil {
		return nil, annotate(err, event.TxID)
	}

	p.logger.Info("transaction_scored",
		zap.String(pkg.TxId, event.TxID),
		zap.Float64("fraud_probability", prediction.FraudProbability),
		zap.Bool("is_fraud", prediction.IsFraud),
		zap.String("model_version", prediction.ModelVersion))
	return prediction, nil
}

func (p *pipelineImpl) stageResolve(ctx context.Context, event views.TransactionEvent, txTime time.Time) (features.FeatureVector, error) {
	defer observeStage(pkg.StageFeatureResolve)()
	return p.resolver.Resolve(ctx, event.CustomerID, event.TerminalID, *event.TxAmount, txTime)
}

func (p *pipelineImpl) stageScore(ctx context.Context, txID string, vec features.FeatureVector) (*scorer.RawPrediction, error) {
	defer observeStage(pkg.StageScore)()
	return p.scorer.Score(ctx, vec)
}

func (p *pipelineImpl) stageInterpret(raw *scorer.RawPrediction) (float64, error) {
	defer observeStage(pkg.StageInterpret)()
	return scorer.InterpretPrediction(raw.Prediction)
}

func (p *pipelineImpl) stageRecord(ctx context.Context, txID string, probability float64, modelVersion string) (*models.ScoredPrediction, error) {
	defer observeStage(pkg.StageRecord)()
	return p.recorder.Record(ctx, txID, probability, modelVersion)
}

func observeStage(stage pkg.Stage) func() {
	start := time.Now()
	return func() {
		observability.StageLatency.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}

// annotate stamps the transaction id onto stage errors raised below the
// pipeline, where the id is not in scope.
func annotate(err error, txID string) error {
	var pe *pkg.PipelineError
	if errors.As(err, &pe) {
		if pe.TxID == "" {
			pe.TxID = txID
		}
		return pe
	}
	return pkg.AsPipelineError(err, txID)
}
