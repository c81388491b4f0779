package configs

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/streamrisk/fraud-scoring-worker/pkg/utils"
	"go.uber.org/zap"
)

// Config holds application configuration for the fraud scoring worker.
type Config struct {
	MetricsAddr string `mapstructure:"METRICS_ADDR" validate:"required"`

	KafkaBrokers            string        `mapstructure:"KAFKA_BROKERS" validate:"required"`
	KafkaPartition          uint32        `mapstructure:"KAFKA_PARTITION" validate:"min=1"`
	KafkaTxTopic            string        `mapstructure:"KAFKA_TX_TOPIC" validate:"required"`
	KafkaTxConsumerGroup    string        `mapstructure:"KAFKA_TX_CONSUMER_GROUP" validate:"required"`
	KafkaRetryTopic         string        `mapstructure:"KAFKA_RETRY_TOPIC" validate:"required"`
	KafkaRetryConsumerGroup string        `mapstructure:"KAFKA_RETRY_CONSUMER_GROUP" validate:"required"`
	KafkaRetryRetention     time.Duration `mapstructure:"KAFKA_RETRY_RETENTION" validate:"required"`
	KafkaDLQTopic           string        `mapstructure:"KAFKA_DLQ_TOPIC" validate:"required"`
	KafkaDLQRetention       time.Duration `mapstructure:"KAFKA_DLQ_RETENTION" validate:"required"`

	PrimaryDbAddr string `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReadDbAddr    string `mapstructure:"READ_DB_ADDR"`
	MaxDbCons     int32  `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons     int32  `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`

	RedisAddr string `mapstructure:"REDIS_ADDR" validate:"required"`

	ScorerEndpoint        string        `mapstructure:"SCORER_ENDPOINT" validate:"required,url"`
	ScorerTimeout         time.Duration `mapstructure:"SCORER_TIMEOUT" validate:"required"`
	ScorerRateLimitPerSec int           `mapstructure:"SCORER_RATE_LIMIT_PER_SEC" validate:"min=1"`
	ScorerRequestBurst    int           `mapstructure:"SCORER_REQUEST_BURST" validate:"min=1"`
	ScorerMaxThrottleWait time.Duration `mapstructure:"SCORER_MAX_THROTTLE_WAIT" validate:"required"` // Throttle wait guard: fail fast if a token takes longer than this

	RetryBaseBackoff time.Duration `mapstructure:"RETRY_BASE_BACKOFF" validate:"required"`
	MaxRetryBackoff  time.Duration `mapstructure:"MAX_RETRY_BACKOFF" validate:"required"`
	MaxRetryCount    int           `mapstructure:"MAX_RETRY_COUNT" validate:"min=1,max=10"`

	// Bounded in-flight processing per consumer instance; 1 preserves strict
	// per-partition ordering, higher values trade ordering for throughput.
	MaxInflightMessages int `mapstructure:"MAX_INFLIGHT_MESSAGES" validate:"min=1"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("KAFKA_PARTITION", "4")
	viper.SetDefault("MAX_INFLIGHT_MESSAGES", "1")
	viper.SetDefault("SCORER_TIMEOUT", "15s")
	viper.SetDefault("SCORER_RATE_LIMIT_PER_SEC", "50")
	viper.SetDefault("SCORER_REQUEST_BURST", "100")
	viper.SetDefault("SCORER_MAX_THROTTLE_WAIT", "3s")
	viper.SetDefault("RETRY_BASE_BACKOFF", "5s")
	viper.SetDefault("MAX_RETRY_BACKOFF", "5m")
	viper.SetDefault("MAX_RETRY_COUNT", "3")

	// Optional: read from config.<env>.yaml if present
	switch os.Getenv("APP_ENV") {
	case "dev":
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	case "qa":
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	default:
		viper.SetConfigName("config.prod")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
