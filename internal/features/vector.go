package features

// FeatureVector is the flat, model-ready mapping sent to the scorer. Keys
// match the training dataset column names exactly.
type FeatureVector map[string]float64

// Model feature keys, grouped the way the aggregation jobs produce them.
// Every key must be present in a resolved vector; absent aggregates are 0.
var (
	customerKeys = []string{
		"customer_id_nb_tx_15min_window",
		"customer_id_avg_amount_15min_window",
		"customer_id_nb_tx_30min_window",
		"customer_id_avg_amount_30min_window",
		"customer_id_nb_tx_60min_window",
		"customer_id_avg_amount_60min_window",
		"customer_id_nb_tx_1day_window",
		"customer_id_avg_amount_1day_window",
		"customer_id_nb_tx_7day_window",
		"customer_id_avg_amount_7day_window",
		"customer_id_nb_tx_14day_window",
		"customer_id_avg_amount_14day_window",
	}
	terminalBatchKeys = []string{
		"terminal_id_nb_tx_1day_window",
		"terminal_id_risk_1day_window",
		"terminal_id_nb_tx_7day_window",
		"terminal_id_risk_7day_window",
		"terminal_id_nb_tx_14day_window",
		"terminal_id_risk_14day_window",
	}
	// Short-window terminal aggregates come from the streaming cache, not
	// the batch tables.
	terminalStreamingKeys = []string{
		"terminal_id_nb_tx_15min_window",
		"terminal_id_risk_15min_window",
		"terminal_id_nb_tx_30min_window",
		"terminal_id_risk_30min_window",
		"terminal_id_nb_tx_60min_window",
		"terminal_id_risk_60min_window",
	}
)

// ModelFeatureKeys returns the full fixed key set the deployed model expects.
func ModelFeatureKeys() []string {
	keys := make([]string, 0, 1+len(customerKeys)+len(terminalBatchKeys)+len(terminalStreamingKeys))
	keys = append(keys, "tx_amount")
	keys = append(keys, customerKeys...)
	keys = append(keys, terminalBatchKeys...)
	keys = append(keys, terminalStreamingKeys...)
	return keys
}

// NewDefaultVector builds an all-default vector: every model key at 0 and
// the transaction amount as the only observed feature.
func NewDefaultVector(txAmount float64) FeatureVector {
	vec := make(FeatureVector, 1+len(customerKeys)+len(terminalBatchKeys)+len(terminalStreamingKeys))
	for _, k := range ModelFeatureKeys() {
		vec[k] = 0
	}
	vec["tx_amount"] = txAmount
	return vec
}

// MissingKeys reports model keys absent from the vector. A resolved vector
// must return an empty slice.
func (v FeatureVector) MissingKeys() []string {
	var missing []string
	for _, k := range ModelFeatureKeys() {
		if _, ok := v[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
