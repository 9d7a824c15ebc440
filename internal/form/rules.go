package form

import "fmt"

// Conditions supported by the rule-based system.
const (
	ConditionNotBlank  = "not_blank"
	ConditionIsBlank   = "is_blank"
	ConditionEquals    = "equals"
	ConditionNotEquals = "not_equals"
)

// Action tags a satisfied rule may carry. Only ActionRequireNote changes
// engine behavior (it forces the item's required flag for the evaluation
// cycle); the rest are surfaced to the host as metadata.
const (
	ActionRequireNote   = "require_note"
	ActionShowQuestions = "show_questions"
	ActionNotify        = "notify"
	ActionRequireFiles  = "require_files"
	ActionRequireAction = "require_action"
)

// MatchRule evaluates a single rule against the controlling item's value.
// Unrecognized conditions evaluate to false.
func MatchRule(r Rule, value any) bool {
	switch r.Condition {
	case ConditionNotBlank:
		return hasValue(value)
	case ConditionIsBlank:
		return !hasValue(value)
	case ConditionEquals:
		return equalValues(value, r.Value)
	case ConditionNotEquals:
		return !equalValues(value, r.Value)
	default:
		return false
	}
}

// HasAction reports whether the rule carries the given action tag.
func (r Rule) HasAction(action string) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// hasValue is the "has a value" predicate: non-nil and non-empty-string.
func hasValue(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// equalValues compares within a type family: numbers numerically (all JSON
// numbers decode as float64), everything else only when the kinds agree.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, aok := toFloat(a); aok {
		bn, bok := toFloat(b)
		return bok && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
