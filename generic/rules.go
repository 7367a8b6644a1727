package generic

import "github.com/shopspring/decimal"

// =============================================================================
// RULE TABLES - Editable scoring configuration (Rule Store payload)
// =============================================================================

// CompletionRateRule maps a completion-rate bracket [MinRate, MaxRate) to a
// score delta. A nil MaxRate is unbounded.
type CompletionRateRule struct {
	MinRate decimal.Decimal
	MaxRate *decimal.Decimal
	Delta   decimal.Decimal
}

// Matches reports whether rate falls in the half-open bracket.
func (r CompletionRateRule) Matches(rate decimal.Decimal) bool {
	if rate.LessThan(r.MinRate) {
		return false
	}
	return r.MaxRate == nil || rate.LessThan(*r.MaxRate)
}

// CountTier prices the occurrences numbered [MinCount, MaxCount] within a
// scoring window. A nil MaxCount is unbounded.
type CountTier struct {
	MinCount             int
	MaxCount             *int
	PenaltyPerOccurrence decimal.Decimal
}

// Matches reports whether the nth occurrence falls in this tier.
func (t CountTier) Matches(n int) bool {
	if n < t.MinCount {
		return false
	}
	return t.MaxCount == nil || n <= *t.MaxCount
}

// PenaltyConfig holds the attendance penalties. Penalties are <= 0.
//
// When tiers are present for a kind they take precedence over the flat
// per-occurrence value of that kind.
type PenaltyConfig struct {
	Enabled                       bool
	LatePenaltyPerOccurrence      decimal.Decimal
	NoClockInPenaltyPerOccurrence decimal.Decimal
	LateTiers                     []CountTier
	NoClockInTiers                []CountTier
}

// RuleSet is everything the Rule Store holds.
type RuleSet struct {
	CompletionRules []CompletionRateRule
	Penalty         PenaltyConfig
}

// DefaultRuleSet is used before any rule table has been stored.
func DefaultRuleSet() RuleSet {
	sixty := decimal.NewFromInt(60)
	eighty := decimal.NewFromInt(80)
	hundred := decimal.NewFromInt(100)
	return RuleSet{
		CompletionRules: []CompletionRateRule{
			{MinRate: decimal.Zero, MaxRate: &sixty, Delta: decimal.NewFromInt(-2)},
			{MinRate: sixty, MaxRate: &eighty, Delta: decimal.NewFromInt(-1)},
			{MinRate: eighty, MaxRate: &hundred, Delta: decimal.Zero},
			{MinRate: hundred, MaxRate: nil, Delta: decimal.NewFromInt(1)},
		},
		Penalty: PenaltyConfig{
			Enabled:                       true,
			LatePenaltyPerOccurrence:      decimal.NewFromInt(-1),
			NoClockInPenaltyPerOccurrence: decimal.NewFromInt(-2),
		},
	}
}
