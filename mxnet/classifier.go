package mxnet

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// Classification pairs a label with the score the model assigned to it.
type Classification struct {
	Label string
	Score float32
}

// Classifier decorates a Predictor's first output with labels and returns
// the top scoring classes. Label files are parsed by the caller; the
// classifier only consumes the resulting label list, in class order.
type Classifier struct {
	predictor *Predictor
	labels    []string
}

// NewClassifier wraps a predictor with a label set. The label list must
// not be empty; its order must match the model's class order.
func NewClassifier(p *Predictor, labels []string) (*Classifier, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("label set cannot be empty")
	}
	return &Classifier{
		predictor: p,
		labels:    slices.Clone(labels),
	}, nil
}

// Classify runs one batch element of input buffers through the model and
// returns the topK classes by descending score, labeled from the first
// graph output. If topK is zero or negative, the full label set is
// returned.
func (c *Classifier) Classify(ctx context.Context, inputs [][]float32, topK int) ([]Classification, error) {
	outputs, err := c.predictor.Predict(ctx, inputs)
	if err != nil {
		return nil, err
	}

	scores := outputs[0]
	if len(scores) > len(c.labels) {
		return nil, fmt.Errorf("model produced %d scores but only %d labels are configured", len(scores), len(c.labels))
	}

	result := make([]Classification, len(scores))
	for i, s := range scores {
		result[i] = Classification{Label: c.labels[i], Score: s}
	}
	slices.SortStableFunc(result, func(a, b Classification) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if topK > 0 && topK < len(result) {
		result = result[:topK]
	}
	return result, nil
}
