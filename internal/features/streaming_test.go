package features

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOverlay(t *testing.T) (*StreamingOverlay, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStreamingOverlay(client, zap.NewNop()), mr
}

func TestApply_FoldsShortWindowAggregates(t *testing.T) {
	overlay, mr := newOverlay(t)
	mr.HSet("terminal:agg:M1",
		"nb_tx_15min", "4",
		"risk_15min", "0.25",
		"nb_tx_60min", "11",
	)

	vec := NewDefaultVector(10)
	overlay.Apply(context.Background(), "M1", vec)

	assert.Equal(t, 4.0, vec["terminal_id_nb_tx_15min_window"])
	assert.Equal(t, 0.25, vec["terminal_id_risk_15min_window"])
	assert.Equal(t, 11.0, vec["terminal_id_nb_tx_60min_window"])
	// Fields absent from the hash stay at their zero default.
	assert.Zero(t, vec["terminal_id_risk_60min_window"])
	assert.Zero(t, vec["terminal_id_nb_tx_30min_window"])
}

func TestApply_ColdCacheLeavesDefaults(t *testing.T) {
	overlay, _ := newOverlay(t)

	vec := NewDefaultVector(10)
	overlay.Apply(context.Background(), "M-unknown", vec)

	require.Empty(t, vec.MissingKeys())
	for _, key := range ModelFeatureKeys() {
		if key == "tx_amount" {
			continue
		}
		assert.Zero(t, vec[key])
	}
}

func TestApply_SkipsUnparseableAndUnknownFields(t *testing.T) {
	overlay, mr := newOverlay(t)
	mr.HSet("terminal:agg:M1",
		"nb_tx_15min", "not-a-number",
		"some_other_field", "7",
		"risk_30min", "0.5",
	)

	vec := NewDefaultVector(10)
	overlay.Apply(context.Background(), "M1", vec)

	assert.Zero(t, vec["terminal_id_nb_tx_15min_window"])
	assert.Equal(t, 0.5, vec["terminal_id_risk_30min_window"])
	require.Empty(t, vec.MissingKeys())
}

func TestApply_RedisDownDegradesToDefaults(t *testing.T) {
	overlay, mr := newOverlay(t)
	mr.Close()

	vec := NewDefaultVector(10)
	overlay.Apply(context.Background(), "M1", vec)

	require.Empty(t, vec.MissingKeys())
	assert.Zero(t, vec["terminal_id_nb_tx_15min_window"])
}
