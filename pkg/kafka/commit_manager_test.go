package kafkautils

import (
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type committerStub struct {
	err       error
	committed []kafka.Offset
}

func (c *committerStub) CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, o := range offsets {
		c.committed = append(c.committed, o.Offset)
	}
	return offsets, nil
}

func msgAt(topic string, offset int64) *kafka.Message {
	return &kafka.Message{TopicPartition: kafka.TopicPartition{
		Topic:     &topic,
		Partition: 0,
		Offset:    kafka.Offset(offset),
	}}
}

func TestAck_CommitsOnlyContiguousPrefix(t *testing.T) {
	stub := &committerStub{}
	m := NewCommitManager(stub, zap.NewNop())
	m.Observe(msgAt("tx", 10))

	// Offset 12 finishes first; nothing can commit past the gap at 10-11.
	m.Ack("T12", msgAt("tx", 12))
	assert.Empty(t, stub.committed)

	// 10 completes: commit position advances to 11 (next offset to read).
	m.Ack("T10", msgAt("tx", 10))
	require.Equal(t, []kafka.Offset{11}, stub.committed)

	// 11 closes the gap: the walk carries through the already-acked 12.
	m.Ack("T11", msgAt("tx", 11))
	assert.Equal(t, []kafka.Offset{11, 13}, stub.committed)
}

func TestAck_AnchorsToFirstObservedOffset(t *testing.T) {
	stub := &committerStub{}
	m := NewCommitManager(stub, zap.NewNop())
	m.Observe(msgAt("tx", 40))
	m.Observe(msgAt("tx", 41)) // later observations must not move the anchor

	m.Ack("T40", msgAt("tx", 40))
	assert.Equal(t, []kafka.Offset{41}, stub.committed)
}

func TestAck_CommitFailureDoesNotWedgeProgress(t *testing.T) {
	stub := &committerStub{err: errors.New("broker unavailable")}
	m := NewCommitManager(stub, zap.NewNop())
	m.Observe(msgAt("tx", 10))

	// The broker rejects the first commit; the acknowledged prefix must be
	// retained so a later Ack can retry it.
	m.Ack("T10", msgAt("tx", 10))
	assert.Empty(t, stub.committed)

	stub.err = nil
	m.Ack("T11", msgAt("tx", 11))
	require.Equal(t, []kafka.Offset{12}, stub.committed, "retry must carry the previously acked offset")

	// Subsequent acks keep advancing normally.
	m.Ack("T12", msgAt("tx", 12))
	assert.Equal(t, []kafka.Offset{12, 13}, stub.committed)
}

func TestAck_TracksPartitionsIndependently(t *testing.T) {
	stub := &committerStub{}
	m := NewCommitManager(stub, zap.NewNop())

	txTopic, retryTopic := "tx", "tx.retry"
	m.Observe(&kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &txTopic, Partition: 0, Offset: 5}})
	m.Observe(&kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &retryTopic, Partition: 0, Offset: 100}})

	m.Ack("A", &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &txTopic, Partition: 0, Offset: 5}})
	m.Ack("B", &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &retryTopic, Partition: 0, Offset: 100}})

	assert.Equal(t, []kafka.Offset{6, 101}, stub.committed)
}
