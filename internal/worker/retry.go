package worker

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/streamrisk/fraud-scoring-worker/internal/observability"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	"github.com/streamrisk/fraud-scoring-worker/pkg/utils"
	"github.com/streamrisk/fraud-scoring-worker/pkg/views"
	"go.uber.org/zap"
)

// nack returns a failed message to the queue: republish to the retry topic
// with an incremented attempt counter and a backoff deadline, or dead-letter
// once attempts are exhausted. The original offset is committed either way;
// ownership of the message has moved to the retry topic or the DLQ.
func (k *ConsumerConfig) nack(log *zap.Logger, msg *kafka.Message, event views.TransactionEvent, pe *pkg.PipelineError) {
	attempt := retryCount(msg) + 1
	if attempt > k.Config.MaxRetryCount {
		log.Error("Retry attempts exhausted; dead-lettering",
			zap.String(pkg.TxId, event.TxID),
			zap.Int("attempts", attempt-1),
			zap.String("code", pe.Code.Code))
		k.sendToDLQ(msg, event.TxID, "retries_exhausted:"+pe.Code.Code, pe.Error())
		k.commits.Ack(event.TxID, msg)
		return
	}

	delay := utils.CalculateExponentialBackoffWithJitter(attempt, k.Config.RetryBaseBackoff, k.Config.MaxRetryBackoff)
	nextAttempt := time.Now().UTC().Add(delay)

	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.Config.KafkaRetryTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: pkg.HeaderTraceId, Value: []byte(traceIDOf(msg))},
			{Key: pkg.HeaderRetryCount, Value: []byte(strconv.Itoa(attempt))},
			{Key: pkg.HeaderFailReason, Value: []byte(pe.Code.Code)},
			{Key: pkg.HeaderNextAttempt, Value: []byte(nextAttempt.Format(time.RFC3339Nano))},
		},
	}, nil)
	if err != nil {
		// Leave the offset uncommitted: the broker redelivers the original.
		log.Error("Failed to publish to retry topic; message will redeliver",
			zap.String(pkg.TxId, event.TxID), zap.Error(err))
		return
	}

	observability.RetriesPublished.WithLabelValues(k.topic).Inc()
	log.Info("Republished for retry",
		zap.String(pkg.TxId, event.TxID),
		zap.Int("attempt", attempt),
		zap.Duration("backoff", delay))
	k.commits.Ack(event.TxID, msg)
}

// sendToDLQ wraps the original payload with failure context for operators.
func (k *ConsumerConfig) sendToDLQ(original *kafka.Message, txID, reason, errMsg string) {
	payload := map[string]any{
		"originalTopic":     topicOf(original),
		"originalPartition": original.TopicPartition.Partition,
		"originalOffset":    int64(original.TopicPartition.Offset),
		"value":             string(original.Value),
		"failureReason":     reason,
		"error":             errMsg,
		"failedAt":          time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		k.Logger.Error("Failed to marshal DLQ payload", zap.String(pkg.TxId, txID), zap.Error(err))
		return
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.Config.KafkaDLQTopic,
			Partition: kafka.PartitionAny,
		},
		Key:     original.Key,
		Value:   b,
		Headers: append(original.Headers, kafka.Header{Key: pkg.HeaderFailReason, Value: []byte(reason)}),
	}, nil)
	if err != nil {
		k.Logger.Error("Failed to produce to DLQ", zap.String(pkg.TxId, txID), zap.Error(err))
		return
	}
	observability.DLQPublished.WithLabelValues(k.topic, reason).Inc()
	k.Logger.Info("Sent to DLQ", zap.String(pkg.TxId, txID), zap.String("reason", reason))
}

// waitForAttempt honors the backoff deadline stamped on retry messages.
// Returns false when the context is canceled mid-wait; the uncommitted
// offset redelivers after restart.
func (k *ConsumerConfig) waitForAttempt(msg *kafka.Message) bool {
	deadline, ok := nextAttemptAt(msg)
	if !ok {
		return true
	}
	wait := time.Until(deadline)
	if wait <= 0 {
		return true
	}
	select {
	case <-k.Context.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

func retryCount(msg *kafka.Message) int {
	for _, h := range msg.Headers {
		if h.Key == pkg.HeaderRetryCount {
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

func nextAttemptAt(msg *kafka.Message) (time.Time, bool) {
	for _, h := range msg.Headers {
		if h.Key == pkg.HeaderNextAttempt {
			if ts, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func topicOf(msg *kafka.Message) string {
	if msg.TopicPartition.Topic == nil {
		return ""
	}
	return *msg.TopicPartition.Topic
}

func traceIDOf(msg *kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == pkg.HeaderTraceId {
			return string(h.Value)
		}
	}
	return ""
}
