package views

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionEvent_DecodeAndValidate(t *testing.T) {
	payload := `{"TX_ID":"T1","TX_AMOUNT":120.5,"CUSTOMER_ID":"C1","TERMINAL_ID":"M1","TX_TS":"2024-01-01T00:00:00Z"}`

	var event TransactionEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))
	require.NoError(t, validator.New().Struct(&event))

	require.NotNil(t, event.TxAmount)
	assert.Equal(t, 120.5, *event.TxAmount)

	ts, err := event.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts)
}

func TestTransactionEvent_MissingAmountFailsValidation(t *testing.T) {
	payload := `{"TX_ID":"T1","CUSTOMER_ID":"C1","TERMINAL_ID":"M1","TX_TS":"2024-01-01T00:00:00Z"}`

	var event TransactionEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))
	assert.Nil(t, event.TxAmount)

	err := validator.New().Struct(&event)
	require.Error(t, err, "an absent TX_AMOUNT must not score as 0")

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "TxAmount", verrs[0].StructField())
	assert.Equal(t, "required", verrs[0].Tag())
}

func TestTransactionEvent_ZeroAmountIsValid(t *testing.T) {
	payload := `{"TX_ID":"T1","TX_AMOUNT":0,"CUSTOMER_ID":"C1","TERMINAL_ID":"M1","TX_TS":"2024-01-01T00:00:00Z"}`

	var event TransactionEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))
	require.NoError(t, validator.New().Struct(&event))
	assert.Equal(t, 0.0, *event.TxAmount)
}

func TestTransactionEvent_NegativeAmountFailsValidation(t *testing.T) {
	payload := `{"TX_ID":"T1","TX_AMOUNT":-3,"CUSTOMER_ID":"C1","TERMINAL_ID":"M1","TX_TS":"2024-01-01T00:00:00Z"}`

	var event TransactionEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))
	require.Error(t, validator.New().Struct(&event))
}

func TestTransactionEvent_TimestampRejectsNonRFC3339(t *testing.T) {
	event := TransactionEvent{TxTS: "01/01/2024 00:00"}
	_, err := event.Timestamp()
	assert.Error(t, err)
}
