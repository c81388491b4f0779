//go:build integration

package features

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streamrisk/fraud-scoring-worker/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Requires a reachable Postgres, e.g.
//
//	TEST_DATABASE_ADDR=app:app@localhost:5432/fraud go test -tags integration ./internal/features
func setupIntegrationDB(t *testing.T) *database.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_ADDR")
	if dsn == "" {
		t.Skip("TEST_DATABASE_ADDR not set")
	}

	logger := zap.NewNop()
	db, closer, err := database.New(context.Background(), logger, database.Config{
		PrimaryDSN: dsn,
		MaxConns:   2,
		MinConns:   1,
	})
	require.NoError(t, err)
	t.Cleanup(closer)
	require.NoError(t, database.RunMigrations(logger, dsn))
	return db
}

func TestResolve_ExcludesFutureAggregates(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	// Fresh ids per run so reruns never collide on the primary key.
	customerID := "C-" + uuid.NewString()
	terminalID := "M-" + uuid.NewString()
	asOf := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	insert := func(query string, args ...any) {
		_, err := db.Exec(ctx, query, args...)
		require.NoError(t, err)
	}

	// One eligible customer row an hour before the transaction, and a newer
	// row an hour after it that must never be visible.
	insert(`INSERT INTO customer_spending_features
	        (customer_id, feature_ts, customer_id_nb_tx_1day_window, customer_id_avg_amount_1day_window)
	        VALUES ($1, $2, $3, $4)`,
		customerID, asOf.Add(-time.Hour), 3.0, 42.5)
	insert(`INSERT INTO customer_spending_features
	        (customer_id, feature_ts, customer_id_nb_tx_1day_window, customer_id_avg_amount_1day_window)
	        VALUES ($1, $2, $3, $4)`,
		customerID, asOf.Add(time.Hour), 99.0, 9999.0)

	insert(`INSERT INTO terminal_risk_features
	        (terminal_id, feature_ts, terminal_id_risk_1day_window)
	        VALUES ($1, $2, $3)`,
		terminalID, asOf.Add(-time.Hour), 0.8)
	insert(`INSERT INTO terminal_risk_features
	        (terminal_id, feature_ts, terminal_id_risk_1day_window)
	        VALUES ($1, $2, $3)`,
		terminalID, asOf.Add(time.Hour), 1.0)

	resolver := NewResolver(ResolverConfig{Logger: zap.NewNop(), DB: db})
	vec, err := resolver.Resolve(ctx, customerID, terminalID, 120.0, asOf)
	require.NoError(t, err)

	// Only the rows at or before the transaction timestamp are visible.
	assert.Equal(t, 3.0, vec["customer_id_nb_tx_1day_window"])
	assert.Equal(t, 42.5, vec["customer_id_avg_amount_1day_window"])
	assert.Equal(t, 0.8, vec["terminal_id_risk_1day_window"])
}

func TestResolve_PicksLatestEligibleRow(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	customerID := "C-" + uuid.NewString()
	asOf := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Three eligible rows; the most recent one wins, including one exactly
	// at the transaction timestamp (<=, not <).
	for i, nb := range []float64{1, 2, 7} {
		ts := asOf.Add(-time.Duration(2-i) * time.Hour) // ..., -1h, asOf
		_, err := db.Exec(ctx, `INSERT INTO customer_spending_features
		        (customer_id, feature_ts, customer_id_nb_tx_1day_window)
		        VALUES ($1, $2, $3)`,
			customerID, ts, nb)
		require.NoError(t, err)
	}

	resolver := NewResolver(ResolverConfig{Logger: zap.NewNop(), DB: db})
	vec, err := resolver.Resolve(ctx, customerID, "M-"+uuid.NewString(), 10.0, asOf)
	require.NoError(t, err)
	assert.Equal(t, 7.0, vec["customer_id_nb_tx_1day_window"])
}

func TestResolve_UnknownIdsYieldDefaults(t *testing.T) {
	db := setupIntegrationDB(t)

	resolver := NewResolver(ResolverConfig{Logger: zap.NewNop(), DB: db})
	vec, err := resolver.Resolve(context.Background(), "C-"+uuid.NewString(), "M-"+uuid.NewString(), 55.0, time.Now().UTC())
	require.NoError(t, err)

	assert.Empty(t, vec.MissingKeys())
	assert.Equal(t, 55.0, vec["tx_amount"])
	assert.Equal(t, 0.0, vec["customer_id_nb_tx_1day_window"])
}
