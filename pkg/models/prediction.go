package models

import (
	"time"
)

// FraudThreshold is the calibrated decision boundary: is_fraud is strictly
// greater-than, so a probability of exactly 0.5 is not flagged.
const FraudThreshold = 0.5

// ScoredPrediction maps to table `online_fraud_predictions`.
type ScoredPrediction struct {
	TxID             string
	FraudProbability float64
	IsFraud          bool
	ModelVersion     string
	CreatedAt        time.Time
}

// NewScoredPrediction derives is_fraud and stamps write-capture time.
func NewScoredPrediction(txID string, fraudProbability float64, modelVersion string) ScoredPrediction {
	return ScoredPrediction{
		TxID:             txID,
		FraudProbability: fraudProbability,
		IsFraud:          fraudProbability > FraudThreshold,
		ModelVersion:     modelVersion,
		CreatedAt:        time.Now().UTC(),
	}
}
