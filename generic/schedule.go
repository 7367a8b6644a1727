package generic

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEDULE - One day's crew plan as the external store holds it
// =============================================================================

// Schedule is the persisted aggregate. Work items stay in their raw authored
// shape; workitem.Normalize turns them into the canonical model.
type Schedule struct {
	ID        ScheduleID    `json:"id"`
	Date      TimePoint     `json:"-"`
	WorkItems []RawWorkItem `json:"workItems"`
}

// RawWorkItem accepts both authoring shapes: legacy solo fields
// (responsiblePerson/targetQuantity/actualQuantity) and the contributor list.
type RawWorkItem struct {
	ID                string            `json:"id,omitempty"`
	Content           string            `json:"content"`
	IsCollaborative   bool              `json:"isCollaborative,omitempty"`
	CollabMode        string            `json:"collabMode,omitempty"`
	ResponsiblePerson string            `json:"responsiblePerson,omitempty"`
	TargetQuantity    Number            `json:"targetQuantity,omitzero"`
	ActualQuantity    Number            `json:"actualQuantity,omitzero"`
	Collaborators     []RawContributor  `json:"collaborators,omitempty"`
	LastAccumulatedBy map[string]string `json:"lastAccumulatedBy,omitempty"`

	// ChangeRequestStatus is set while an edit request on this item awaits
	// review ("pending"). Pending items are excluded from scoring.
	ChangeRequestStatus string `json:"changeRequestStatus,omitempty"`
}

// Clone deep-copies the work items so the copy can be stamped freely.
func (s Schedule) Clone() Schedule {
	out := s
	out.WorkItems = make([]RawWorkItem, len(s.WorkItems))
	for i, item := range s.WorkItems {
		c := item
		c.Collaborators = append([]RawContributor(nil), item.Collaborators...)
		if item.LastAccumulatedBy != nil {
			c.LastAccumulatedBy = make(map[string]string, len(item.LastAccumulatedBy))
			for k, v := range item.LastAccumulatedBy {
				c.LastAccumulatedBy[k] = v
			}
		}
		out.WorkItems[i] = c
	}
	return out
}

type RawContributor struct {
	Name           string `json:"name"`
	TargetQuantity Number `json:"targetQuantity,omitzero"`
	ActualQuantity Number `json:"actualQuantity,omitzero"`
}

// =============================================================================
// NUMBER - Lenient numeric field
// =============================================================================

// Number decodes a JSON number or numeric string. Anything else (null,
// empty, garbage) decodes to zero instead of failing the whole record.
type Number struct {
	decimal.Decimal
}

func NewNumber(v float64) Number { return Number{Decimal: decimal.NewFromFloat(v)} }

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		n.Decimal = decimal.Zero
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			n.Decimal = decimal.Zero
			return nil
		}
		s = strings.TrimSpace(raw)
	}
	n.Decimal = MustParseDecimal(s)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

// IsZero reports a zero value; omitzero fields use it to drop unset numbers.
func (n Number) IsZero() bool { return n.Decimal.IsZero() }
