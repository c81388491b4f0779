package pkg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsPipelineError_UnwrapsTaggedErrors(t *testing.T) {
	inner := NewPipelineError(ErrFeatureLookupCode, StageFeatureResolve, "T1", errors.New("timeout"))
	wrapped := fmt.Errorf("resolving features: %w", inner)

	pe := AsPipelineError(wrapped, "ignored")
	assert.Equal(t, ErrFeatureLookupCode.Code, pe.Code.Code)
	assert.Equal(t, StageFeatureResolve, pe.Stage)
	assert.Equal(t, "T1", pe.TxID, "an already-tagged error keeps its own tx id")
}

func TestAsPipelineError_UnknownErrorsStayUnattributed(t *testing.T) {
	pe := AsPipelineError(errors.New("something odd"), "T9")

	// Untagged errors must not borrow a stage they never reached.
	assert.Equal(t, ErrUnknownCode.Code, pe.Code.Code)
	assert.Equal(t, StageUnknown, pe.Stage)
	assert.Equal(t, "T9", pe.TxID)
	assert.True(t, pe.Code.Transient, "unknown failures default to retryable")
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"feature lookup retries", NewPipelineError(ErrFeatureLookupCode, StageFeatureResolve, "T1", nil), true},
		{"unrecognized shape does not", NewPipelineError(ErrUnrecognizedShapeCode, StageInterpret, "T1", nil), false},
		{"malformed message does not", NewPipelineError(ErrMalformedMessageCode, StageReceived, "T1", nil), false},
		{"wrapped tagged error", fmt.Errorf("x: %w", NewPipelineError(ErrUnrecognizedShapeCode, StageInterpret, "T1", nil)), false},
		{"plain error defaults to retryable", errors.New("dial tcp: refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
}

func TestPipelineError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	pe := NewPipelineError(ErrRecordWriteCode, StageRecord, "T1", cause)

	assert.Contains(t, pe.Error(), "stage=record")
	assert.Contains(t, pe.Error(), "tx=T1")
	assert.Contains(t, pe.Error(), "boom")
	require.ErrorIs(t, pe, cause)
}
