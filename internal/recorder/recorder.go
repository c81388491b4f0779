package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	"github.com/streamrisk/fraud-scoring-worker/pkg/models"
	"go.uber.org/zap"
)

// TargetSchema documents the fixed column set of the sink; emitted alongside
// write failures so schema drift is diagnosable from logs alone.
const TargetSchema = "online_fraud_predictions(tx_id, fraud_probability, is_fraud, model_version, created_at)"

const insertSQL = `
INSERT INTO online_fraud_predictions (tx_id, fraud_probability, is_fraud, model_version, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tx_id) DO NOTHING`

// Recorder persists scored predictions. Writes are idempotent on tx_id so a
// redelivered message that already recorded its prediction is a no-op.
// Record returns the prediction it persisted, created_at included.
type Recorder interface {
	Record(ctx context.Context, txID string, fraudProbability float64, modelVersion string) (*models.ScoredPrediction, error)
	RecordBatch(ctx context.Context, predictions []models.ScoredPrediction) error
}

// Store is the slice of the database layer the recorder needs; satisfied by
// *database.DB (routed to the writer).
type Store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type RecorderConfig struct {
	Logger *zap.Logger
	DB     Store
}

type recorderImpl struct {
	logger *zap.Logger
	db     Store
}

func NewRecorder(cfg RecorderConfig) Recorder {
	return &recorderImpl{logger: cfg.Logger, db: cfg.DB}
}

func (r *recorderImpl) Record(ctx context.Context, txID string, fraudProbability float64, modelVersion string) (*models.ScoredPrediction, error) {
	p := models.NewScoredPrediction(txID, fraudProbability, modelVersion)

	tag, err := r.db.Exec(ctx, insertSQL, p.TxID, p.FraudProbability, p.IsFraud, p.ModelVersion, p.CreatedAt)
	if err != nil {
		r.logger.Error("prediction_write_failed",
			zap.String(pkg.TxId, txID),
			zap.String("target_schema", TargetSchema),
			zap.Error(err))
		return nil, pkg.HandleSQLError(r.logger, pkg.ErrRecordWriteCode, pkg.StageRecord, txID, err)
	}
	if tag.RowsAffected() == 0 {
		// Conflict path: a prior delivery already recorded this transaction.
		r.logger.Info("prediction_already_recorded", zap.String(pkg.TxId, txID))
	}
	return &p, nil
}

// RecordBatch inserts many predictions in one transaction. Per-row failures
// are collected with their tx ids and the target schema before the whole
// batch is rolled back and reported; nothing is dropped silently.
func (r *recorderImpl) RecordBatch(ctx context.Context, predictions []models.ScoredPrediction) error {
	if len(predictions) == 0 {
		return nil
	}

	var failed []string
	err := r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range predictions {
			batch.Queue(insertSQL, p.TxID, p.FraudProbability, p.IsFraud, p.ModelVersion, p.CreatedAt)
		}

		results := tx.SendBatch(ctx, batch)
		defer func() { _ = results.Close() }()

		for _, p := range predictions {
			if _, execErr := results.Exec(); execErr != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", p.TxID, execErr))
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d/%d rows rejected against %s: %s",
				len(failed), len(predictions), TargetSchema, strings.Join(failed, "; "))
		}
		return nil
	})
	if err != nil {
		r.logger.Error("prediction_batch_write_failed",
			zap.Int("batch_size", len(predictions)),
			zap.Strings("failed_rows", failed),
			zap.String("target_schema", TargetSchema),
			zap.Error(err))
		return pkg.NewPipelineError(pkg.ErrRecordWriteCode, pkg.StageRecord, "", err)
	}
	return nil
}
