package pkg

const (
	TraceId string = "trace_id"
	TxId    string = "tx_id"
)

const (
	HeaderTraceId     string = "x-trace-id"
	HeaderRetryCount  string = "x-retry-count"
	HeaderFailReason  string = "x-fail-reason"
	HeaderNextAttempt string = "x-next-attempt-at"
)

// Stage identifies how far a message made it through the scoring pipeline.
type Stage string

const (
	StageReceived       Stage = "received"
	StageFeatureResolve Stage = "feature_resolve"
	StageScore          Stage = "score"
	StageInterpret      Stage = "interpret"
	StageRecord         Stage = "record"
	StageUnknown        Stage = "unknown"
)
