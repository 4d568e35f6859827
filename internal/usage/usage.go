// Package usage tracks token consumption and monetary cost of completion calls.
package usage

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const tokensPerUnit = 1000.0

// Default prices per 1K tokens and currency symbol.
const (
	DefaultInputPer1K  = 0.0008
	DefaultOutputPer1K = 0.002
	DefaultCurrency    = "¥"
)

// Pricing holds the unit prices used to derive cost from token counts.
// It is an immutable value handed to clients and formatters at construction.
type Pricing struct {
	InputPer1K  float64 // price per 1K prompt tokens
	OutputPer1K float64 // price per 1K completion tokens
	Currency    string  // symbol printed before amounts
}

// DefaultPricing returns the built-in unit prices.
func DefaultPricing() Pricing {
	return Pricing{
		InputPer1K:  DefaultInputPer1K,
		OutputPer1K: DefaultOutputPer1K,
		Currency:    DefaultCurrency,
	}
}

// Cost computes the Stats for one call from its token counts.
func (p Pricing) Cost(promptTokens, completionTokens int) Stats {
	promptCost := float64(promptTokens) / tokensPerUnit * p.InputPer1K
	completionCost := float64(completionTokens) / tokensPerUnit * p.OutputPer1K
	return Stats{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		PromptCost:       promptCost,
		CompletionCost:   completionCost,
		TotalCost:        promptCost + completionCost,
	}
}

// Format renders s with this pricing's currency symbol.
func (p Pricing) Format(s Stats) string {
	return Format(s, p.Currency)
}

// Stats is the token and cost record of one or more completion calls.
// The zero value means no usage.
type Stats struct {
	PromptTokens     int
	CompletionTokens int
	PromptCost       float64
	CompletionCost   float64
	TotalCost        float64
}

// IsZero reports whether s records no usage at all.
func (s Stats) IsZero() bool {
	return s == Stats{}
}

// Merge adds delta to total field by field.
func Merge(total, delta Stats) Stats {
	return Stats{
		PromptTokens:     total.PromptTokens + delta.PromptTokens,
		CompletionTokens: total.CompletionTokens + delta.CompletionTokens,
		PromptCost:       total.PromptCost + delta.PromptCost,
		CompletionCost:   total.CompletionCost + delta.CompletionCost,
		TotalCost:        total.TotalCost + delta.TotalCost,
	}
}

// Sum folds all stats into one total.
func Sum(stats ...Stats) Stats {
	var total Stats
	for _, s := range stats {
		total = Merge(total, s)
	}
	return total
}

// Format renders s as a human-readable block. Token counts are grouped by
// thousands, amounts have four decimals.
func Format(s Stats, currency string) string {
	p := message.NewPrinter(language.English)

	var b strings.Builder
	b.WriteString("=== Token Usage ===\n")
	p.Fprintf(&b, "Input tokens:  %d\n", s.PromptTokens)
	p.Fprintf(&b, "Output tokens: %d\n", s.CompletionTokens)
	fmt.Fprintf(&b, "Input cost:    %s%.4f\n", currency, s.PromptCost)
	fmt.Fprintf(&b, "Output cost:   %s%.4f\n", currency, s.CompletionCost)
	fmt.Fprintf(&b, "Total cost:    %s%.4f", currency, s.TotalCost)
	return b.String()
}

// Short renders a one-line summary for progress reporting.
func Short(s Stats, currency string) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("in=%d out=%d", s.PromptTokens, s.CompletionTokens) +
		fmt.Sprintf(" cost=%s%.4f", currency, s.TotalCost)
}
