package features

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// terminalAggKeyPrefix is written by the streaming aggregation job; each
// terminal hash carries the short-window counters the batch tables lack.
const terminalAggKeyPrefix = "terminal:agg:"

// Hash field → vector key. Fields absent from the hash stay at the vector's
// zero default.
var streamingFieldMap = map[string]string{
	"nb_tx_15min": "terminal_id_nb_tx_15min_window",
	"risk_15min":  "terminal_id_risk_15min_window",
	"nb_tx_30min": "terminal_id_nb_tx_30min_window",
	"risk_30min":  "terminal_id_risk_30min_window",
	"nb_tx_60min": "terminal_id_nb_tx_60min_window",
	"risk_60min":  "terminal_id_risk_60min_window",
}

// StreamingOverlay reads short-window terminal aggregates from Redis and
// folds them into a resolved vector. Failures degrade to the zero defaults
// rather than failing the lookup; only the batch store is authoritative.
type StreamingOverlay struct {
	client *redis.Client
	logger *zap.Logger
}

func NewStreamingOverlay(client *redis.Client, logger *zap.Logger) *StreamingOverlay {
	return &StreamingOverlay{client: client, logger: logger}
}

func (s *StreamingOverlay) Apply(ctx context.Context, terminalID string, vec FeatureVector) {
	fields, err := s.client.HGetAll(ctx, terminalAggKeyPrefix+terminalID).Result()
	if err != nil {
		s.logger.Warn("streaming_feature_read_failed",
			zap.String("terminal_id", terminalID), zap.Error(err))
		return
	}
	if len(fields) == 0 {
		return // cold cache or unknown terminal
	}

	for field, raw := range fields {
		key, ok := streamingFieldMap[strings.ToLower(field)]
		if !ok {
			continue
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.logger.Warn("streaming_feature_unparseable",
				zap.String("terminal_id", terminalID),
				zap.String("field", field),
				zap.String("value", raw))
			continue
		}
		vec[key] = val
	}
}
