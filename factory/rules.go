/*
Package factory converts rule documents into scoring rule tables.

PURPOSE:
  The Rule Store holds editable tables: completion-rate brackets and
  attendance penalties. Evaluators edit them as JSON (admin API) or YAML
  (rule file on disk). The factory turns either into a generic.RuleSet.

FAIL CLOSED:
  A document that does not parse at all is rejected. Inside a parseable
  document, every broken entry (non-numeric value, missing bound) is
  dropped and reported as a RuleError; a dropped bracket prices its rates
  at zero and a broken penalty value counts as zero. A broken table never
  stops scoring.

DOCUMENT SCHEMA:
  {
    "completionRateRules": [
      {"minRate": 0,  "maxRate": 60,   "delta": -2},
      {"minRate": 60, "maxRate": null, "delta": 0}
    ],
    "penaltyConfig": {
      "enabled": true,
      "latePenaltyPerOccurrence": -1,
      "noClockInPenaltyPerOccurrence": -2,
      "lateTiers": [{"minCount": 1, "maxCount": 3, "penaltyPerOccurrence": -1}]
    }
  }

  Numbers may also be numeric strings. A missing section keeps the
  default for that section.

SEE ALSO:
  - watcher.go: file-backed source with hot reload
  - generic/rules.go: RuleSet
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/crew-engine/generic"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// RuleDocument is the wire form. Numeric fields are decoded as any so a
// bad value can be reported per entry instead of failing the document.
type RuleDocument struct {
	CompletionRateRules []CompletionRuleDoc `json:"completionRateRules" yaml:"completionRateRules"`
	PenaltyConfig       *PenaltyDoc         `json:"penaltyConfig,omitempty" yaml:"penaltyConfig,omitempty"`
}

type CompletionRuleDoc struct {
	MinRate any `json:"minRate" yaml:"minRate"`
	MaxRate any `json:"maxRate" yaml:"maxRate"`
	Delta   any `json:"delta" yaml:"delta"`
}

type PenaltyDoc struct {
	Enabled                       *bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	LatePenaltyPerOccurrence      any       `json:"latePenaltyPerOccurrence" yaml:"latePenaltyPerOccurrence"`
	NoClockInPenaltyPerOccurrence any       `json:"noClockInPenaltyPerOccurrence" yaml:"noClockInPenaltyPerOccurrence"`
	LateTiers                     []TierDoc `json:"lateTiers,omitempty" yaml:"lateTiers,omitempty"`
	NoClockInTiers                []TierDoc `json:"noClockInTiers,omitempty" yaml:"noClockInTiers,omitempty"`
}

type TierDoc struct {
	MinCount             any `json:"minCount" yaml:"minCount"`
	MaxCount             any `json:"maxCount" yaml:"maxCount"`
	PenaltyPerOccurrence any `json:"penaltyPerOccurrence" yaml:"penaltyPerOccurrence"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseRuleSet decodes a JSON or YAML document. The error is non-nil only
// when the document itself is unreadable; entry problems come back as
// diagnostics alongside a usable RuleSet.
func ParseRuleSet(data []byte) (generic.RuleSet, []error, error) {
	var doc RuleDocument
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return generic.RuleSet{}, nil, fmt.Errorf("%w: empty rule document", generic.ErrInvalidRule)
	}
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return generic.RuleSet{}, nil, fmt.Errorf("%w: %v", generic.ErrInvalidRule, err)
		}
	} else if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return generic.RuleSet{}, nil, fmt.Errorf("%w: %v", generic.ErrInvalidRule, err)
	}
	rs, diags := doc.ToRuleSet()
	return rs, diags, nil
}

// ToRuleSet converts a decoded document, dropping broken entries.
func (doc RuleDocument) ToRuleSet() (generic.RuleSet, []error) {
	defaults := generic.DefaultRuleSet()
	var diags []error

	rs := generic.RuleSet{CompletionRules: defaults.CompletionRules, Penalty: defaults.Penalty}
	if doc.CompletionRateRules != nil {
		rs.CompletionRules = make([]generic.CompletionRateRule, 0, len(doc.CompletionRateRules))
		for i, r := range doc.CompletionRateRules {
			rule, err := r.toRule(i)
			if err != nil {
				diags = append(diags, err)
				continue
			}
			rs.CompletionRules = append(rs.CompletionRules, rule)
		}
	}
	if doc.PenaltyConfig != nil {
		var pdiags []error
		rs.Penalty, pdiags = doc.PenaltyConfig.toConfig()
		diags = append(diags, pdiags...)
	}
	return rs, diags
}

func (r CompletionRuleDoc) toRule(i int) (generic.CompletionRateRule, error) {
	bad := func(reason string) error {
		return &generic.RuleError{Table: "completion_rate", Index: i, Reason: reason}
	}
	minRate, ok := toDecimal(r.MinRate)
	if !ok {
		return generic.CompletionRateRule{}, bad(fmt.Sprintf("minRate %v is not a number", r.MinRate))
	}
	delta, ok := toDecimal(r.Delta)
	if !ok {
		return generic.CompletionRateRule{}, bad(fmt.Sprintf("delta %v is not a number", r.Delta))
	}
	rule := generic.CompletionRateRule{MinRate: minRate, Delta: delta}
	if !isNull(r.MaxRate) {
		maxRate, ok := toDecimal(r.MaxRate)
		if !ok {
			return generic.CompletionRateRule{}, bad(fmt.Sprintf("maxRate %v is not a number", r.MaxRate))
		}
		rule.MaxRate = &maxRate
	}
	return rule, nil
}

func (p PenaltyDoc) toConfig() (generic.PenaltyConfig, []error) {
	var diags []error
	cfg := generic.PenaltyConfig{Enabled: true}
	if p.Enabled != nil {
		cfg.Enabled = *p.Enabled
	}
	flat := func(field string, v any) decimal.Decimal {
		if isNull(v) {
			return decimal.Zero
		}
		d, ok := toDecimal(v)
		if !ok {
			diags = append(diags, &generic.RuleError{Table: "penalty", Reason: fmt.Sprintf("%s %v is not a number", field, v)})
			return decimal.Zero
		}
		return d
	}
	cfg.LatePenaltyPerOccurrence = flat("latePenaltyPerOccurrence", p.LatePenaltyPerOccurrence)
	cfg.NoClockInPenaltyPerOccurrence = flat("noClockInPenaltyPerOccurrence", p.NoClockInPenaltyPerOccurrence)

	var tierDiags []error
	cfg.LateTiers, tierDiags = toTiers("late_tiers", p.LateTiers)
	diags = append(diags, tierDiags...)
	cfg.NoClockInTiers, tierDiags = toTiers("no_clock_in_tiers", p.NoClockInTiers)
	diags = append(diags, tierDiags...)
	return cfg, diags
}

func toTiers(table string, docs []TierDoc) ([]generic.CountTier, []error) {
	var tiers []generic.CountTier
	var diags []error
	for i, d := range docs {
		minCount, okMin := toDecimal(d.MinCount)
		penalty, okPenalty := toDecimal(d.PenaltyPerOccurrence)
		if !okMin || !okPenalty {
			diags = append(diags, &generic.RuleError{Table: table, Index: i, Reason: "minCount and penaltyPerOccurrence must be numbers"})
			continue
		}
		tier := generic.CountTier{MinCount: int(minCount.IntPart()), PenaltyPerOccurrence: penalty}
		if !isNull(d.MaxCount) {
			maxCount, ok := toDecimal(d.MaxCount)
			if !ok {
				diags = append(diags, &generic.RuleError{Table: table, Index: i, Reason: "maxCount must be a number or null"})
				continue
			}
			n := int(maxCount.IntPart())
			tier.MaxCount = &n
		}
		tiers = append(tiers, tier)
	}
	return tiers, diags
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// toDecimal accepts the numeric shapes both decoders produce, and numeric
// strings.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// =============================================================================
// ENCODING
// =============================================================================

// MarshalRuleSet renders a RuleSet as a JSON rule document.
func MarshalRuleSet(rs generic.RuleSet) ([]byte, error) {
	num := func(d decimal.Decimal) any { return json.Number(d.String()) }
	doc := RuleDocument{CompletionRateRules: make([]CompletionRuleDoc, 0, len(rs.CompletionRules))}
	for _, r := range rs.CompletionRules {
		rd := CompletionRuleDoc{MinRate: num(r.MinRate), Delta: num(r.Delta)}
		if r.MaxRate != nil {
			rd.MaxRate = num(*r.MaxRate)
		}
		doc.CompletionRateRules = append(doc.CompletionRateRules, rd)
	}
	enabled := rs.Penalty.Enabled
	doc.PenaltyConfig = &PenaltyDoc{
		Enabled:                       &enabled,
		LatePenaltyPerOccurrence:      num(rs.Penalty.LatePenaltyPerOccurrence),
		NoClockInPenaltyPerOccurrence: num(rs.Penalty.NoClockInPenaltyPerOccurrence),
		LateTiers:                     tierDocs(rs.Penalty.LateTiers),
		NoClockInTiers:                tierDocs(rs.Penalty.NoClockInTiers),
	}
	return json.Marshal(doc)
}

func tierDocs(tiers []generic.CountTier) []TierDoc {
	var out []TierDoc
	for _, t := range tiers {
		td := TierDoc{MinCount: t.MinCount, PenaltyPerOccurrence: json.Number(t.PenaltyPerOccurrence.String())}
		if t.MaxCount != nil {
			td.MaxCount = *t.MaxCount
		}
		out = append(out, td)
	}
	return out
}

// =============================================================================
// STORED RULE SOURCE
// =============================================================================

// StoredRuleSource reads the rule document from the store on every call,
// so an edit through the API takes effect on the next score.
type StoredRuleSource struct {
	Store  generic.RuleDocumentStore
	Logger *zap.Logger
}

var _ generic.RuleSource = (*StoredRuleSource)(nil)

// Load returns the current RuleSet; DefaultRuleSet until a document exists.
func (s *StoredRuleSource) Load(ctx context.Context) (generic.RuleSet, error) {
	doc, ok, err := s.Store.LoadRuleDocument(ctx)
	if err != nil {
		return generic.RuleSet{}, fmt.Errorf("load rule document: %w", err)
	}
	if !ok {
		return generic.DefaultRuleSet(), nil
	}
	rs, diags, err := ParseRuleSet(doc)
	if err != nil {
		// Stored documents are validated on write; an unreadable one prices
		// everything at zero.
		s.logger().Error("stored rule document unreadable", zap.Error(err))
		return generic.RuleSet{}, nil
	}
	for _, d := range diags {
		s.logger().Warn("rule entry ignored", zap.Error(d))
	}
	return rs, nil
}

func (s *StoredRuleSource) CompletionRateRules(ctx context.Context) ([]generic.CompletionRateRule, error) {
	rs, err := s.Load(ctx)
	return rs.CompletionRules, err
}

func (s *StoredRuleSource) PenaltyConfig(ctx context.Context) (generic.PenaltyConfig, error) {
	rs, err := s.Load(ctx)
	return rs.Penalty, err
}

func (s *StoredRuleSource) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
