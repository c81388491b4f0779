package features

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	"go.uber.org/zap"
)

// Resolver produces a model-ready feature vector for a transaction key by a
// point-in-time join over the precomputed aggregate tables.
type Resolver interface {
	Resolve(ctx context.Context, customerID, terminalID string, txAmount float64, txTimestamp time.Time) (FeatureVector, error)
}

// RowQuerier is the slice of the database layer the resolver needs;
// satisfied by *database.DB (routed to read replicas).
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ResolverConfig struct {
	Logger    *zap.Logger
	DB        RowQuerier
	Streaming *StreamingOverlay
}

type resolverImpl struct {
	logger    *zap.Logger
	db        RowQuerier
	streaming *StreamingOverlay
}

func NewResolver(cfg ResolverConfig) Resolver {
	return &resolverImpl{
		logger:    cfg.Logger,
		db:        cfg.DB,
		streaming: cfg.Streaming,
	}
}

// Only rows with feature_ts at or before the transaction timestamp are
// eligible (no lookahead); the most recent eligible row per key wins. The
// LEFT JOIN plus COALESCE guarantees a fully populated row even when a
// customer or terminal has never been aggregated.
const featureQuery = `
WITH customer_features AS (
    SELECT
        customer_id_nb_tx_15min_window,
        customer_id_avg_amount_15min_window,
        customer_id_nb_tx_30min_window,
        customer_id_avg_amount_30min_window,
        customer_id_nb_tx_60min_window,
        customer_id_avg_amount_60min_window,
        customer_id_nb_tx_1day_window,
        customer_id_avg_amount_1day_window,
        customer_id_nb_tx_7day_window,
        customer_id_avg_amount_7day_window,
        customer_id_nb_tx_14day_window,
        customer_id_avg_amount_14day_window,
        ROW_NUMBER() OVER (ORDER BY feature_ts DESC) AS rn
    FROM customer_spending_features
    WHERE customer_id = $1
      AND feature_ts <= $3
),
terminal_features AS (
    SELECT
        terminal_id_nb_tx_1day_window,
        terminal_id_risk_1day_window,
        terminal_id_nb_tx_7day_window,
        terminal_id_risk_7day_window,
        terminal_id_nb_tx_14day_window,
        terminal_id_risk_14day_window,
        ROW_NUMBER() OVER (ORDER BY feature_ts DESC) AS rn
    FROM terminal_risk_features
    WHERE terminal_id = $2
      AND feature_ts <= $3
)
SELECT
    COALESCE(c.customer_id_nb_tx_15min_window, 0),
    COALESCE(c.customer_id_avg_amount_15min_window, 0),
    COALESCE(c.customer_id_nb_tx_30min_window, 0),
    COALESCE(c.customer_id_avg_amount_30min_window, 0),
    COALESCE(c.customer_id_nb_tx_60min_window, 0),
    COALESCE(c.customer_id_avg_amount_60min_window, 0),
    COALESCE(c.customer_id_nb_tx_1day_window, 0),
    COALESCE(c.customer_id_avg_amount_1day_window, 0),
    COALESCE(c.customer_id_nb_tx_7day_window, 0),
    COALESCE(c.customer_id_avg_amount_7day_window, 0),
    COALESCE(c.customer_id_nb_tx_14day_window, 0),
    COALESCE(c.customer_id_avg_amount_14day_window, 0),
    COALESCE(t.terminal_id_nb_tx_1day_window, 0),
    COALESCE(t.terminal_id_risk_1day_window, 0),
    COALESCE(t.terminal_id_nb_tx_7day_window, 0),
    COALESCE(t.terminal_id_risk_7day_window, 0),
    COALESCE(t.terminal_id_nb_tx_14day_window, 0),
    COALESCE(t.terminal_id_risk_14day_window, 0)
FROM (SELECT 1) AS tx
LEFT JOIN customer_features c ON c.rn = 1
LEFT JOIN terminal_features t ON t.rn = 1`

// scanColumns mirrors the SELECT column order of featureQuery.
var scanColumns = append(append([]string{}, customerKeys...), terminalBatchKeys...)

func (r *resolverImpl) Resolve(ctx context.Context, customerID, terminalID string, txAmount float64, txTimestamp time.Time) (FeatureVector, error) {
	vec := NewDefaultVector(txAmount)

	vals := make([]float64, len(scanColumns))
	dest := make([]any, len(scanColumns))
	for i := range vals {
		dest[i] = &vals[i]
	}

	row := r.db.QueryRow(ctx, featureQuery, customerID, terminalID, txTimestamp)
	if err := row.Scan(dest...); err != nil {
		return nil, pkg.HandleSQLError(r.logger, pkg.ErrFeatureLookupCode, pkg.StageFeatureResolve, "", err)
	}
	for i, key := range scanColumns {
		vec[key] = vals[i]
	}

	// Short-window terminal aggregates come from the streaming cache; a cold
	// or lagging cache leaves them at 0, mirroring the batch defaults.
	if r.streaming != nil {
		r.streaming.Apply(ctx, terminalID, vec)
	}

	return vec, nil
}
