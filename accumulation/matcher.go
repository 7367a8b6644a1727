package accumulation

import (
	"fmt"
	"strings"

	"github.com/warp/crew-engine/generic"
	"github.com/warp/crew-engine/workitem"
)

// =============================================================================
// MATCHER - Work item content -> leaderboard
// =============================================================================

// Matcher resolves the leaderboard a work item feeds. No match is not an
// error: the item simply has no leaderboard effect.
type Matcher interface {
	Match(item workitem.WorkItem, boards []generic.Leaderboard) (generic.Leaderboard, bool)
}

// Field extracts one comparable field from a leaderboard.
type Field struct {
	Name string
	Get  func(generic.Leaderboard) string
}

var (
	FieldWorkContent = Field{Name: "workContent", Get: func(lb generic.Leaderboard) string { return lb.WorkContent }}
	FieldTitle       = Field{Name: "title", Get: func(lb generic.Leaderboard) string { return lb.Title }}
	FieldName        = Field{Name: "name", Get: func(lb generic.Leaderboard) string { return lb.Name }}
	FieldID          = Field{Name: "id", Get: func(lb generic.Leaderboard) string { return string(lb.ID) }}
)

// Predicate compares item content with a leaderboard field. Both sides are
// already normalized and non-empty.
type Predicate func(content, field string) bool

// ContainsEither is substring containment in either direction.
func ContainsEither(content, field string) bool {
	return strings.Contains(content, field) || strings.Contains(field, content)
}

// Equal is exact comparison.
func Equal(content, field string) bool { return content == field }

// OrderedMatcher tries each field in order across all leaderboards before
// moving to the next field, so a workContent match on any leaderboard wins
// over a title match on an earlier one. Within a field, leaderboard order
// decides.
type OrderedMatcher struct {
	Fields    []Field
	Predicate Predicate

	// Normalize is applied to both sides before comparing. Nil keeps the
	// strings as they are.
	Normalize func(string) string

	// Subject picks the item text to compare. Nil uses the content.
	Subject func(workitem.WorkItem) string
}

func (m OrderedMatcher) Match(item workitem.WorkItem, boards []generic.Leaderboard) (generic.Leaderboard, bool) {
	subject := item.Content
	if m.Subject != nil {
		subject = m.Subject(item)
	}
	subject = m.normalize(subject)
	if subject == "" {
		return generic.Leaderboard{}, false
	}
	for _, f := range m.Fields {
		for _, lb := range boards {
			value := m.normalize(f.Get(lb))
			if value == "" {
				continue
			}
			if m.Predicate(subject, value) {
				return lb, true
			}
		}
	}
	return generic.Leaderboard{}, false
}

func (m OrderedMatcher) normalize(s string) string {
	if m.Normalize == nil {
		return s
	}
	return m.Normalize(s)
}

// DefaultMatcher is case-sensitive two-way containment against
// workContent, then title, then name.
func DefaultMatcher() OrderedMatcher {
	return OrderedMatcher{
		Fields:    []Field{FieldWorkContent, FieldTitle, FieldName},
		Predicate: ContainsEither,
	}
}

// FoldedMatcher is DefaultMatcher over trimmed, case-folded text with
// inner whitespace collapsed.
func FoldedMatcher() OrderedMatcher {
	m := DefaultMatcher()
	m.Normalize = func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	return m
}

// ExactIDMatcher matches items whose id equals a leaderboard id.
func ExactIDMatcher() OrderedMatcher {
	return OrderedMatcher{
		Fields:    []Field{FieldID},
		Predicate: Equal,
		Subject:   func(item workitem.WorkItem) string { return item.ID },
	}
}

// MatcherByName resolves a configured strategy: "default" (or empty),
// "folded" or "id". Names are case-insensitive.
func MatcherByName(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultMatcher(), nil
	case "folded":
		return FoldedMatcher(), nil
	case "id":
		return ExactIDMatcher(), nil
	}
	return nil, fmt.Errorf("unknown matcher %q (want default, folded or id)", name)
}
