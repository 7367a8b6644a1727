/*
Package workitem normalizes schedule task records into one canonical shape.

PURPOSE:
  Work items are authored in two shapes. Older records carry a single
  responsiblePerson with item-level targetQuantity/actualQuantity; newer
  ones carry a collaborators list with per-person quantities. Every other
  package reads items only through this package.

SOLO VS COLLABORATIVE:
  Solo:          one contributor, the responsible person
  Shared:        contributors pool one actual against one target; every
                 contributor gets the same completion rate
  Separate:      each contributor has an independent target/actual pair

TARGET PRECEDENCE (TargetFor):
  1. The contributor's own target, if > 0
  2. Collaborative and nobody has an own target: item target / contributors
  3. Solo: the item target

SEE ALSO:
  - accumulation/engine.go: credits CreditFor to leaderboards
  - scoring/engine.go: prices CompletionRate through the rule table
*/
package workitem

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/crew-engine/generic"
)

// =============================================================================
// TYPES
// =============================================================================

type CollabMode string

const (
	Shared   CollabMode = "shared"
	Separate CollabMode = "separate"
)

type Contributor struct {
	Name   string
	Target decimal.Decimal
	Actual decimal.Decimal
}

// WorkItem is the canonical form. Contributors is never nil for an item
// that can contribute, and names in it are unique.
type WorkItem struct {
	ID              string
	Content         string
	IsCollaborative bool
	Mode            CollabMode
	Contributors    []Contributor

	// Target and Actual are the item-level pair. Shared items use it as the
	// pooled pair; legacy solo records only have this pair.
	Target decimal.Decimal
	Actual decimal.Decimal

	// LastAccumulatedBy is the legacy per-contributor watermark carried by
	// the record itself. Unparseable dates are dropped.
	LastAccumulatedBy map[string]generic.TimePoint

	// PendingChange marks an item with an unresolved change request.
	PendingChange bool
}

// Key identifies the item in the accumulation ledger.
func (w WorkItem) Key() string {
	if w.ID != "" {
		return w.ID
	}
	return w.Content
}

// Skippable reports whether the item can never contribute.
func (w WorkItem) Skippable() bool {
	return w.Content == "" || len(w.Contributors) == 0
}

func (w WorkItem) isShared() bool {
	return w.IsCollaborative && w.Mode == Shared
}

func (w WorkItem) find(name string) (Contributor, bool) {
	name = strings.TrimSpace(name)
	for _, c := range w.Contributors {
		if c.Name == name {
			return c, true
		}
	}
	return Contributor{}, false
}

// =============================================================================
// NORMALIZE
// =============================================================================

// Normalize converts either authoring shape. It never fails: missing or
// malformed fields become empty or zero.
func Normalize(raw generic.RawWorkItem) WorkItem {
	return NormalizeIn(raw, nil)
}

// NormalizeIn is Normalize with legacy lastAccumulatedBy timestamps read as
// calendar days in loc.
func NormalizeIn(raw generic.RawWorkItem, loc *time.Location) WorkItem {
	item := WorkItem{
		ID:              strings.TrimSpace(raw.ID),
		Content:         strings.TrimSpace(raw.Content),
		IsCollaborative: raw.IsCollaborative,
		Mode:            parseMode(raw.CollabMode),
		Target:          nonNegative(raw.TargetQuantity.Decimal),
		Actual:          nonNegative(raw.ActualQuantity.Decimal),
		PendingChange:   strings.EqualFold(strings.TrimSpace(raw.ChangeRequestStatus), "pending"),
	}

	listed := dedupe(raw.Collaborators)
	responsible := strings.TrimSpace(raw.ResponsiblePerson)

	switch {
	case item.IsCollaborative && len(listed) > 0:
		item.Contributors = listed
	case item.IsCollaborative:
		// Collaborative record without a list: credit the responsible person.
		if responsible != "" {
			item.Contributors = []Contributor{{Name: responsible, Target: item.Target, Actual: item.Actual}}
		}
	default:
		item.Contributors = soloContributor(item, responsible, listed)
	}

	if len(raw.LastAccumulatedBy) > 0 {
		item.LastAccumulatedBy = make(map[string]generic.TimePoint, len(raw.LastAccumulatedBy))
		for name, value := range raw.LastAccumulatedBy {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if tp, err := generic.ParseDateIn(value, loc); err == nil {
				item.LastAccumulatedBy[name] = tp
			}
		}
	}
	return item
}

func soloContributor(item WorkItem, responsible string, listed []Contributor) []Contributor {
	if responsible != "" {
		return []Contributor{{Name: responsible, Target: item.Target, Actual: item.Actual}}
	}
	if len(listed) == 0 {
		return nil
	}
	c := listed[0]
	if item.Target.IsPositive() {
		c.Target = item.Target
	}
	if item.Actual.IsPositive() {
		c.Actual = item.Actual
	}
	return []Contributor{c}
}

func dedupe(raw []generic.RawContributor) []Contributor {
	seen := make(map[string]bool, len(raw))
	var out []Contributor
	for _, rc := range raw {
		name := strings.TrimSpace(rc.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Contributor{
			Name:   name,
			Target: nonNegative(rc.TargetQuantity.Decimal),
			Actual: nonNegative(rc.ActualQuantity.Decimal),
		})
	}
	return out
}

func parseMode(s string) CollabMode {
	if strings.EqualFold(strings.TrimSpace(s), string(Shared)) {
		return Shared
	}
	return Separate
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// QUERIES
// =============================================================================

// Contribution is one contributor's view of an item.
type Contribution struct {
	Name   string
	Actual decimal.Decimal // the contributor's own reported actual
	Credit decimal.Decimal // what a leaderboard receives, see CreditFor
}

// ContributorsOf lists every contributor in authored order.
func ContributorsOf(item WorkItem) []Contribution {
	out := make([]Contribution, 0, len(item.Contributors))
	for _, c := range item.Contributors {
		out = append(out, Contribution{Name: c.Name, Actual: c.Actual, Credit: CreditFor(item, c.Name)})
	}
	return out
}

// PooledPair returns the shared-mode pair: the item-level value when set,
// otherwise the sum over contributors. Each half falls back independently.
func PooledPair(item WorkItem) (target, actual decimal.Decimal) {
	target, actual = item.Target, item.Actual
	if !target.IsPositive() {
		target = decimal.Zero
		for _, c := range item.Contributors {
			target = target.Add(c.Target)
		}
	}
	if !actual.IsPositive() {
		actual = decimal.Zero
		for _, c := range item.Contributors {
			actual = actual.Add(c.Actual)
		}
	}
	return target, actual
}

// TargetFor resolves one contributor's target. Unknown names get zero.
func TargetFor(item WorkItem, name string) decimal.Decimal {
	c, ok := item.find(name)
	if !ok {
		return decimal.Zero
	}
	if item.isShared() {
		target, _ := PooledPair(item)
		return target
	}
	if c.Target.IsPositive() {
		return c.Target
	}
	if item.IsCollaborative {
		if anyPositive(item.Contributors, func(c Contributor) decimal.Decimal { return c.Target }) {
			return decimal.Zero
		}
		return splitEvenly(item.Target, len(item.Contributors))
	}
	return item.Target
}

// ActualFor resolves one contributor's actual. Separate-mode records that
// predate per-contributor actuals split the item actual evenly.
func ActualFor(item WorkItem, name string) decimal.Decimal {
	c, ok := item.find(name)
	if !ok {
		return decimal.Zero
	}
	if item.isShared() {
		_, actual := PooledPair(item)
		return actual
	}
	if c.Actual.IsPositive() {
		return c.Actual
	}
	if item.IsCollaborative {
		if anyPositive(item.Contributors, func(c Contributor) decimal.Decimal { return c.Actual }) {
			return decimal.Zero
		}
		return splitEvenly(item.Actual, len(item.Contributors))
	}
	return item.Actual
}

// CompletionRate is 100*actual/target, or zero when the target is zero.
// The result is not rounded.
func CompletionRate(item WorkItem, name string) decimal.Decimal {
	target := TargetFor(item, name)
	if !target.IsPositive() {
		return decimal.Zero
	}
	return ActualFor(item, name).Mul(generic.Hundred).Div(target)
}

// CreditFor is the quantity credited to a leaderboard for one contributor.
// Shared items always split the pooled actual evenly, so the credits of all
// contributors sum to the pool regardless of who reported an own actual.
func CreditFor(item WorkItem, name string) decimal.Decimal {
	c, ok := item.find(name)
	if !ok {
		return decimal.Zero
	}
	if item.isShared() {
		_, actual := PooledPair(item)
		return splitEvenly(actual, len(item.Contributors))
	}
	if c.Actual.IsPositive() {
		return c.Actual
	}
	return ActualFor(item, name)
}

func anyPositive(cs []Contributor, field func(Contributor) decimal.Decimal) bool {
	for _, c := range cs {
		if field(c).IsPositive() {
			return true
		}
	}
	return false
}

func splitEvenly(total decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n)))
}
