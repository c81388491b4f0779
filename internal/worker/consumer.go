package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/go-playground/validator/v10"
	"github.com/streamrisk/fraud-scoring-worker/configs"
	"github.com/streamrisk/fraud-scoring-worker/internal/observability"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	kafkautils "github.com/streamrisk/fraud-scoring-worker/pkg/kafka"
	"github.com/streamrisk/fraud-scoring-worker/pkg/utils"
	"github.com/streamrisk/fraud-scoring-worker/pkg/views"
	"go.uber.org/zap"
)

// Consumer drives message consumption from one topic and maps each message's
// pipeline outcome to exactly one acknowledge/retry decision.
type Consumer interface {
	Start() func()
}

// ConsumerConfig holds configuration and dependencies for a transaction consumer.
type ConsumerConfig struct {
	Context  context.Context
	Logger   *zap.Logger
	Config   *configs.Config
	Pipeline Pipeline

	// internal initialization
	topic    string
	group    string
	delayed  bool // honor the next-attempt header before processing (retry topic)
	consumer *kafka.Consumer
	producer *kafka.Producer
	validate *validator.Validate
	commits  *kafkautils.CommitManager
	sem      chan struct{}   // Semaphore bounding in-flight messages
	wg       *sync.WaitGroup // Tracks in-flight handlers for drain on close
}

// NewTxConsumer initializes the consumer for the live transaction topic.
func NewTxConsumer(cfg ConsumerConfig) Consumer {
	cfg.topic = cfg.Config.KafkaTxTopic
	cfg.group = cfg.Config.KafkaTxConsumerGroup
	cfg.delayed = false
	return newConsumer(cfg)
}

// NewRetryConsumer initializes the consumer for the retry topic. It waits
// out each message's backoff deadline before re-running the pipeline.
func NewRetryConsumer(cfg ConsumerConfig) Consumer {
	cfg.topic = cfg.Config.KafkaRetryTopic
	cfg.group = cfg.Config.KafkaRetryConsumerGroup
	cfg.delayed = true
	return newConsumer(cfg)
}

func newConsumer(cfg ConsumerConfig) Consumer {
	kafkaConsumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"group.id":           cfg.group,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false, // offsets commit only after a durable write
	})
	if err != nil {
		cfg.Logger.Fatal("Failed to create Kafka consumer", zap.String("topic", cfg.topic), zap.Error(err))
	}

	// One producer serves both the retry topic and the DLQ.
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		cfg.Logger.Fatal("Failed to create retry/DLQ producer", zap.Error(err))
	}

	cfg.consumer = kafkaConsumer
	cfg.producer = producer
	cfg.validate = validator.New()
	cfg.commits = kafkautils.NewCommitManager(kafkaConsumer, cfg.Logger)
	cfg.sem = make(chan struct{}, cfg.Config.MaxInflightMessages)
	cfg.wg = &sync.WaitGroup{}
	return &cfg
}

// Start initiates the consumption loop and returns a cleanup function that
// drains in-flight messages before closing the subscription handle.
func (k *ConsumerConfig) Start() func() {
	if err := k.consumer.SubscribeTopics([]string{k.topic}, nil); err != nil {
		k.Logger.Fatal("Failed to subscribe to Kafka topic", zap.String("topic", k.topic), zap.Error(err))
	}

	k.Logger.Info("Listening to Kafka topic",
		zap.String("topic", k.topic),
		zap.String("group", k.group))

	go func() {
		for {
			select {
			case <-k.Context.Done():
				return
			default:
			}
			msg, err := k.consumer.ReadMessage(time.Second)
			if err != nil {
				if kErr, ok := err.(kafka.Error); ok && kErr.Code() == kafka.ErrTimedOut {
					continue
				}
				k.Logger.Error("Failed to read Kafka message", zap.Error(err))
				continue
			}
			observability.MessagesReceived.WithLabelValues(k.topic).Inc()
			k.commits.Observe(msg)

			// Acquire semaphore slot, blocking if the in-flight limit is reached
			k.sem <- struct{}{}
			observability.InflightMessages.Inc()
			k.wg.Add(1)
			go func(m *kafka.Message) {
				defer func() {
					<-k.sem
					observability.InflightMessages.Dec()
					k.wg.Done()
				}()
				k.processMessage(m)
			}(msg)
		}
	}()

	return func() {
		k.wg.Wait() // let in-flight messages finish their current step
		if k.producer != nil {
			k.producer.Flush(5000)
			k.producer.Close()
		}
		if err := k.consumer.Close(); err != nil {
			k.Logger.Error("Failed to close Kafka consumer", zap.Error(err))
			return
		}
		k.Logger.Info("Kafka consumer closed successfully", zap.String("topic", k.topic))
	}
}

// processMessage handles one message end to end: decode, validate, run the
// pipeline, then acknowledge or route to retry/DLQ.
func (k *ConsumerConfig) processMessage(msg *kafka.Message) {
	select {
	case <-k.Context.Done():
		return // Exit if context is canceled; uncommitted message redelivers
	default:
	}

	if k.delayed {
		if !k.waitForAttempt(msg) {
			return
		}
	}

	// Trace ids survive retry republishing, so one transaction's attempts
	// correlate across topics.
	traceID := traceIDOf(msg)
	if traceID == "" {
		traceID = utils.GenerateTraceID()
		msg.Headers = append(msg.Headers, kafka.Header{Key: pkg.HeaderTraceId, Value: []byte(traceID)})
	}
	log := k.Logger.With(zap.String(pkg.TraceId, traceID))

	var event views.TransactionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error("Failed to decode transaction message", zap.Error(err))
		k.sendToDLQ(msg, event.TxID, "json_unmarshal_error", err.Error())
		k.commits.Ack(event.TxID, msg) // skip: redelivery would fail identically
		return
	}
	if err := k.validate.Struct(&event); err != nil {
		log.Error("Transaction message missing required fields",
			zap.String(pkg.TxId, event.TxID), zap.Error(err))
		k.sendToDLQ(msg, event.TxID, "validation_error", err.Error())
		k.commits.Ack(event.TxID, msg)
		return
	}

	start := time.Now()
	prediction, procErr := k.Pipeline.Process(k.Context, event)
	if procErr != nil {
		k.handleFailure(log, msg, event, procErr)
		return
	}

	observability.ProcessLatency.WithLabelValues(k.topic).Observe(time.Since(start).Seconds())
	observability.TransactionsScored.WithLabelValues(k.topic).Inc()
	observability.FraudProbability.Observe(prediction.FraudProbability)
	k.commits.Ack(event.TxID, msg)
}

// handleFailure converts one pipeline error into one retry decision:
// malformed events dead-letter immediately, everything else goes through
// the retry topic until attempts are exhausted.
func (k *ConsumerConfig) handleFailure(log *zap.Logger, msg *kafka.Message, event views.TransactionEvent, procErr error) {
	pe := pkg.AsPipelineError(procErr, event.TxID)
	observability.PipelineFailed.WithLabelValues(k.topic, string(pe.Stage), pe.Code.Code).Inc()

	if pe.Code.Code == pkg.ErrMalformedMessageCode.Code {
		log.Error("Unprocessable transaction message",
			zap.String(pkg.TxId, event.TxID), zap.Error(pe))
		k.sendToDLQ(msg, event.TxID, pe.Code.Code, pe.Error())
		k.commits.Ack(event.TxID, msg)
		return
	}

	if !pkg.IsTransient(pe) {
		// Same mechanical path as transient failures, but loud: retrying an
		// adapter/model mismatch will not fix it without a deploy.
		log.Error("non_transient_pipeline_failure",
			zap.String(pkg.TxId, event.TxID),
			zap.String("stage", string(pe.Stage)),
			zap.String("code", pe.Code.Code),
			zap.Error(pe))
	} else {
		log.Warn("pipeline_failure",
			zap.String(pkg.TxId, event.TxID),
			zap.String("stage", string(pe.Stage)),
			zap.String("code", pe.Code.Code),
			zap.Error(pe))
	}

	k.nack(log, msg, event, pe)
}
