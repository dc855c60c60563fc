// Package usage estimates token usage and cost, enforces plan quotas and
// records billable operations.
package usage

import (
	"math"
	"unicode/utf8"
)

// EstimateTokens approximates tokens as characters/4 rounded up. It is a cheap
// length heuristic, not a tokenizer.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// Rates are USD prices per million tokens.
type Rates struct {
	InputPerMillion     float64
	OutputPerMillion    float64
	EmbeddingPerMillion float64
}

func (r Rates) ChatCost(inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)*r.InputPerMillion/1e6 + float64(outputTokens)*r.OutputPerMillion/1e6
	return roundMicro(cost)
}

func (r Rates) EmbeddingCost(tokens int) float64 {
	return roundMicro(float64(tokens) * r.EmbeddingPerMillion / 1e6)
}

// roundMicro keeps costs at micro-dollar precision so sums stay stable.
func roundMicro(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
