// Package cost turns reported token usage into a monetary amount.
package cost

import "math"

// Rates is the per-token price of a model
type Rates struct {
	Input    float64 `json:"input"`
	Output   float64 `json:"output"`
	Currency string  `json:"currency"`
}

// Usage is the token accounting reported by the completion service
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Breakdown is the computed cost of one call
type Breakdown struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
}

// Calculate prices u at r. Each side is rounded to 6 decimals and Amount is
// their plain sum, so Amount == InputCost + OutputCost holds exactly.
func Calculate(u Usage, r Rates) Breakdown {
	in := round6(float64(clamp(u.InputTokens)) * r.Input)
	out := round6(float64(clamp(u.OutputTokens)) * r.Output)

	return Breakdown{
		InputCost:  in,
		OutputCost: out,
		Amount:     in + out,
		Currency:   r.Currency,
	}
}

// Map renders the breakdown for generation metadata
func (b Breakdown) Map() map[string]any {
	return map[string]any{
		"input_cost":  b.InputCost,
		"output_cost": b.OutputCost,
		"amount":      b.Amount,
		"currency":    b.Currency,
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func round6(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}
