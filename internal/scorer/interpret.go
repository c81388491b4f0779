package scorer

import (
	"encoding/json"
	"fmt"

	"github.com/streamrisk/fraud-scoring-worker/pkg"
)

// The scorer's output contract drifts between model deployments, so the
// interpreter is a closed set of shape decoders tried in priority order.
// No match is a hard error: silently defaulting to 0 or 1 would mislabel
// transactions.
type shapeDecoder struct {
	name   string
	decode func(any) (float64, bool)
}

var shapeDecoders = []shapeDecoder{
	{"labeled_probability_array", decodeLabeledProbs},
	{"probability_scalar", decodeProbabilityField},
	{"scores_array", decodeScoresField},
	{"raw_sequence", decodeRawSequence},
	{"bare_scalar", decodeScalar},
}

// InterpretPrediction normalizes a raw prediction into a fraud probability
// in [0,1]. Returns an unrecognized-shape error when no decoder matches or
// the matched value is out of range.
func InterpretPrediction(raw any) (float64, error) {
	for _, d := range shapeDecoders {
		p, ok := d.decode(raw)
		if !ok {
			continue
		}
		if p < 0 || p > 1 {
			return 0, pkg.NewPipelineError(pkg.ErrUnrecognizedShapeCode, pkg.StageInterpret, "",
				fmt.Errorf("shape %s produced out-of-range probability %v", d.name, p))
		}
		return p, nil
	}
	return 0, pkg.NewPipelineError(pkg.ErrUnrecognizedShapeCode, pkg.StageInterpret, "",
		fmt.Errorf("no known response shape matches %T", raw))
}

// decodeLabeledProbs handles the logistic-regression format: class
// probabilities in tx_fraud_probs parallel to class labels in
// tx_fraud_values; the probability at the positive label ("1") wins.
func decodeLabeledProbs(raw any) (float64, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return 0, false
	}
	probs, ok := toFloatSlice(m["tx_fraud_probs"])
	if !ok {
		return 0, false
	}
	labels, ok := m["tx_fraud_values"].([]any)
	if !ok || len(labels) != len(probs) {
		return 0, false
	}
	for i, label := range labels {
		if isPositiveLabel(label) {
			return probs[i], true
		}
	}
	return 0, false
}

func decodeProbabilityField(raw any) (float64, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return 0, false
	}
	return toFloat(m["probability"])
}

// decodeScoresField reads a binary [negative, positive] scores array.
func decodeScoresField(raw any) (float64, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return 0, false
	}
	scores, ok := toFloatSlice(m["scores"])
	if !ok || len(scores) < 2 {
		return 0, false
	}
	return scores[1], true
}

// decodeRawSequence reads a bare sequence: second element under the binary
// convention, or the only element of a one-element sequence.
func decodeRawSequence(raw any) (float64, bool) {
	seq, ok := toFloatSlice(raw)
	if !ok || len(seq) == 0 {
		return 0, false
	}
	if len(seq) > 1 {
		return seq[1], true
	}
	return seq[0], true
}

func decodeScalar(raw any) (float64, bool) {
	return toFloat(raw)
}

func isPositiveLabel(label any) bool {
	switch v := label.(type) {
	case string:
		return v == "1"
	case float64:
		return v == 1
	case int:
		return v == 1
	case json.Number:
		return v.String() == "1"
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toFloatSlice(v any) ([]float64, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
