package pkg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrorCode defines a standardized pipeline error code.
// Transient codes are safe to retry; the rest will fail identically on
// redelivery and only go through the retry path for uniform handling.
type ErrorCode struct {
	Code      string
	Transient bool
	Message   string // default message
}

var (
	ErrMalformedMessageCode    = ErrorCode{Code: "PIPE_MALFORMED_MESSAGE", Transient: false, Message: "malformed transaction message"}
	ErrFeatureLookupCode       = ErrorCode{Code: "PIPE_FEATURE_LOOKUP", Transient: true, Message: "feature lookup failed"}
	ErrScorerInvocationCode    = ErrorCode{Code: "PIPE_SCORER_INVOCATION", Transient: true, Message: "scorer invocation failed"}
	ErrUnrecognizedShapeCode   = ErrorCode{Code: "PIPE_UNRECOGNIZED_SHAPE", Transient: false, Message: "unrecognized scorer response shape"}
	ErrRecordWriteCode         = ErrorCode{Code: "PIPE_RECORD_WRITE", Transient: true, Message: "prediction write failed"}
	ErrRateLimitThrottledCode  = ErrorCode{Code: "PIPE_SCORER_THROTTLED", Transient: true, Message: "scorer request throttled"}
	ErrUnknownCode             = ErrorCode{Code: "PIPE_UNKNOWN", Transient: true, Message: "unclassified pipeline failure"}
)

// PipelineError carries the failing stage and transaction through the
// message loop so a single ack/retry decision can be made at the boundary.
type PipelineError struct {
	Code    ErrorCode
	Stage   Stage
	TxID    string
	Message string
	Cause   error // internal cause (wrapped)
}

func (e PipelineError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s [stage=%s tx=%s]", e.Message, e.Stage, e.TxID)
	}
	return fmt.Sprintf("%s [stage=%s tx=%s]: %v", e.Message, e.Stage, e.TxID, e.Cause)
}
func (e PipelineError) Unwrap() error { return e.Cause }

func NewPipelineError(code ErrorCode, stage Stage, txID string, cause error) *PipelineError {
	return &PipelineError{Code: code, Stage: stage, TxID: txID, Message: code.Message, Cause: cause}
}

// AsPipelineError unwraps err into a PipelineError. Errors raised outside the
// taxonomy keep an explicit unknown code and stage rather than borrowing a
// stage they never reached, so failure metrics stay attributable.
func AsPipelineError(err error, txID string) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{Code: ErrUnknownCode, Stage: StageUnknown, TxID: txID, Message: err.Error(), Cause: err}
}

// IsTransient reports whether the error is safe to retry.
func IsTransient(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code.Transient
	}
	return true // unknown errors default to retryable
}

// HandleSQLError maps pg errors to a PipelineError with the given code, logging rich context.
func HandleSQLError(logger *zap.Logger, code ErrorCode, stage Stage, txID string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		// Point-in-time lookups use LEFT JOIN and should never surface this;
		// treat it as a lookup failure rather than silently defaulting.
		logger.Warn("sql_no_rows", zap.String(TxId, txID), zap.String("stage", string(stage)))
		return NewPipelineError(code, stage, txID, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		logger.Error("sql_error_unknown", zap.String(TxId, txID), zap.String("stage", string(stage)), zap.Error(err))
		return NewPipelineError(code, stage, txID, err)
	}

	logger.Error("sql_error",
		zap.String(TxId, txID),
		zap.String("stage", string(stage)),
		zap.String("code", pgErr.Code),
		zap.String("message", pgErr.Message),
		zap.String("detail", pgErr.Detail),
		zap.String("table", pgErr.TableName),
		zap.String("column", pgErr.ColumnName),
		zap.String("constraint", pgErr.ConstraintName),
	)
	return NewPipelineError(code, stage, txID, pgErr)
}
