package scoring

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/crew-engine/generic"
)

// =============================================================================
// COMPLETION-RATE TABLE
// =============================================================================

// RateTable is a validated, ordered completion-rate rule table.
type RateTable struct {
	rules []generic.CompletionRateRule
}

// NewRateTable orders rules by descending MinRate. Rules with an empty
// or inverted bracket, or a negative MinRate, are left out and reported;
// a rate that would have hit them gets a zero delta. Overlaps are kept and
// resolved by order.
func NewRateTable(rules []generic.CompletionRateRule) (RateTable, []error) {
	var errs []error
	valid := make([]generic.CompletionRateRule, 0, len(rules))
	for i, r := range rules {
		switch {
		case r.MinRate.IsNegative():
			errs = append(errs, &generic.RuleError{Table: "completion_rate", Index: i, Reason: "negative minRate"})
		case r.MaxRate != nil && !r.MaxRate.GreaterThan(r.MinRate):
			errs = append(errs, &generic.RuleError{Table: "completion_rate", Index: i,
				Reason: fmt.Sprintf("empty bracket [%s, %s)", r.MinRate, r.MaxRate)})
		default:
			valid = append(valid, r)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].MinRate.GreaterThan(valid[j].MinRate) })
	return RateTable{rules: valid}, errs
}

// Delta returns the first matching rule's delta, or zero.
func (t RateTable) Delta(rate decimal.Decimal) decimal.Decimal {
	for _, r := range t.rules {
		if r.Matches(rate) {
			return r.Delta
		}
	}
	return decimal.Zero
}

func (t RateTable) Len() int { return len(t.rules) }
