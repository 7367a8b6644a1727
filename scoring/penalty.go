package scoring

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/crew-engine/generic"
)

// =============================================================================
// PENALTY POLICIES
// =============================================================================

// PenaltyPolicy prices attendance occurrences within one scoring window.
// Cost is cumulative: the daily replay takes differences between
// consecutive counts, so a tiered policy yields non-uniform daily deltas.
type PenaltyPolicy interface {
	Cost(occurrences int) decimal.Decimal
	Name() string
}

// FlatPenalty charges the same amount for every occurrence.
type FlatPenalty struct {
	PerOccurrence decimal.Decimal
}

func (p FlatPenalty) Cost(n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return p.PerOccurrence.Mul(decimal.NewFromInt(int64(n)))
}

func (p FlatPenalty) Name() string { return "flat" }

// TieredPenalty prices the i-th occurrence by the tier containing i.
// Tiers are looked up by descending MinCount, first match wins; an
// occurrence outside every tier costs nothing.
type TieredPenalty struct {
	tiers []generic.CountTier
}

func NewTieredPenalty(tiers []generic.CountTier) TieredPenalty {
	sorted := append([]generic.CountTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinCount > sorted[j].MinCount })
	return TieredPenalty{tiers: sorted}
}

func (p TieredPenalty) Cost(n int) decimal.Decimal {
	total := decimal.Zero
	for i := 1; i <= n; i++ {
		total = total.Add(p.marginal(i))
	}
	return total
}

func (p TieredPenalty) marginal(i int) decimal.Decimal {
	for _, t := range p.tiers {
		if t.Matches(i) {
			return t.PenaltyPerOccurrence
		}
	}
	return decimal.Zero
}

func (p TieredPenalty) Name() string { return "tiered" }

// NoPenalty is used when penalties are disabled.
type NoPenalty struct{}

func (NoPenalty) Cost(int) decimal.Decimal { return decimal.Zero }
func (NoPenalty) Name() string             { return "disabled" }

// PoliciesFor builds the late and no-clock-in policies from a config.
// Tiers win over the flat value when both are present. Positive amounts
// are configuration errors: the offending value is treated as zero.
func PoliciesFor(cfg generic.PenaltyConfig) (late, noClockIn PenaltyPolicy, errs []error) {
	if !cfg.Enabled {
		return NoPenalty{}, NoPenalty{}, nil
	}
	late, errs = policyFor("late", cfg.LatePenaltyPerOccurrence, cfg.LateTiers, errs)
	noClockIn, errs = policyFor("no_clock_in", cfg.NoClockInPenaltyPerOccurrence, cfg.NoClockInTiers, errs)
	return late, noClockIn, errs
}

func policyFor(kind string, flat decimal.Decimal, tiers []generic.CountTier, errs []error) (PenaltyPolicy, []error) {
	if len(tiers) > 0 {
		valid := make([]generic.CountTier, 0, len(tiers))
		for i, t := range tiers {
			switch {
			case t.PenaltyPerOccurrence.IsPositive():
				errs = append(errs, &generic.RuleError{Table: kind + "_tiers", Index: i, Reason: "penalty must be <= 0"})
			case t.MinCount < 1 || (t.MaxCount != nil && *t.MaxCount < t.MinCount):
				errs = append(errs, &generic.RuleError{Table: kind + "_tiers", Index: i, Reason: "invalid count bracket"})
			default:
				valid = append(valid, t)
			}
		}
		return NewTieredPenalty(valid), errs
	}
	if flat.IsPositive() {
		errs = append(errs, &generic.RuleError{Table: "penalty", Index: 0, Reason: kind + " penalty must be <= 0"})
		return FlatPenalty{PerOccurrence: decimal.Zero}, errs
	}
	return FlatPenalty{PerOccurrence: flat}, errs
}
