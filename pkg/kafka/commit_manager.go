package kafkautils

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	"go.uber.org/zap"
)

type tp struct {
	topic     string
	partition int32
}

// OffsetCommitter is the slice of the Kafka consumer the manager needs;
// satisfied by *kafka.Consumer.
type OffsetCommitter interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
}

// CommitManager commits offsets in order even though messages finish out of
// order under the concurrency semaphore. An offset is committed only once
// every lower offset on the same partition has been acknowledged, so a crash
// redelivers (at-least-once) instead of skipping unscored transactions.
type CommitManager struct {
	mu       sync.Mutex
	high     map[tp]int64              // last committed offset per partition
	done     map[tp]map[int64]struct{} // processed offsets not yet committed
	consumer OffsetCommitter
	log      *zap.Logger
}

func NewCommitManager(c OffsetCommitter, l *zap.Logger) *CommitManager {
	return &CommitManager{
		high:     make(map[tp]int64),
		done:     make(map[tp]map[int64]struct{}),
		consumer: c,
		log:      l,
	}
}

func (m *CommitManager) Ack(txID string, msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tp{topic: *msg.TopicPartition.Topic, partition: msg.TopicPartition.Partition}
	off := int64(msg.TopicPartition.Offset)

	if m.done[key] == nil {
		m.done[key] = map[int64]struct{}{}
	}
	m.done[key][off] = struct{}{}

	next := m.high[key]
	for {
		if _, ok := m.done[key][next+1]; ok {
			next++
		} else {
			break
		}
	}
	if next == m.high[key] {
		return
	}

	tpToCommit := kafka.TopicPartition{Topic: &key.topic, Partition: key.partition, Offset: kafka.Offset(next + 1)}
	if _, err := m.consumer.CommitOffsets([]kafka.TopicPartition{tpToCommit}); err != nil {
		// The done set stays intact so a later Ack retries the same prefix;
		// a transient broker error must not wedge commits behind a gap.
		m.log.Error("offset_commit_failed",
			zap.String(pkg.TxId, txID),
			zap.String("topic", key.topic),
			zap.Int32("partition", key.partition),
			zap.Int64("attempted_offset", next), zap.Error(err))
		return
	}

	for o := m.high[key] + 1; o <= next; o++ {
		delete(m.done[key], o)
	}
	m.high[key] = next
	m.log.Debug("offset_committed",
		zap.String(pkg.TxId, txID),
		zap.String("topic", key.topic),
		zap.Int32("partition", key.partition),
		zap.Int64("offset", next))
}

// Observe registers a partition's starting point so the first committed
// offset is relative to where the consumer group actually resumed.
func (m *CommitManager) Observe(msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tp{topic: *msg.TopicPartition.Topic, partition: msg.TopicPartition.Partition}
	if _, seen := m.high[key]; !seen {
		m.high[key] = int64(msg.TopicPartition.Offset) - 1
	}
}
