package views

import (
	"time"
)

// TransactionEvent is the inbound queue payload. Field names follow the
// upstream transaction generator exactly; TX_TS is ISO-8601/RFC3339.
// TX_AMOUNT is a pointer so an absent field fails validation instead of
// decoding to a scoreable 0.
type TransactionEvent struct {
	TxID       string   `json:"TX_ID" validate:"required"`
	TxAmount   *float64 `json:"TX_AMOUNT" validate:"required,gte=0"`
	CustomerID string   `json:"CUSTOMER_ID" validate:"required"`
	TerminalID string   `json:"TERMINAL_ID" validate:"required"`
	TxTS       string   `json:"TX_TS" validate:"required"`
}

// Timestamp parses TX_TS. Validation accepts the field as a string so the
// parse failure surfaces as a malformed-message error, not a JSON one.
func (t TransactionEvent) Timestamp() (time.Time, error) {
	return time.Parse(time.RFC3339, t.TxTS)
}
