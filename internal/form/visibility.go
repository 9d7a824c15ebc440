package form

// Visibility is the outcome of one evaluation cycle: which items are
// currently eligible for display, which hidden items had answers removed,
// which items had required forced on by a satisfied require_note rule, and
// the satisfied rules per item so the host can react to their action tags.
type Visibility struct {
	Visible        map[string]bool
	Cleared        []string
	ForcedRequired map[string]bool
	SatisfiedRules map[string][]Rule
}

// IsVisible reports whether the item id is in the visible set.
func (v Visibility) IsVisible(id string) bool {
	return v.Visible[id]
}

// VisibleIDs returns the visible set as a slice in template order.
func (v Visibility) VisibleIDs(t *Template) []string {
	var out []string
	for _, item := range t.Items() {
		if v.Visible[item.ID] {
			out = append(out, item.ID)
		}
	}
	return out
}

// EvaluateVisibility computes the full visible-item set for the template
// against the current answers, running to a fixed point so multi-hop
// dependency chains (B depends on A, C depends on B) settle in one call.
// Answers of items that end up hidden are deleted from the map and reported
// in Cleared. The result is a pure function of (template, answers).
func EvaluateVisibility(t *Template, answers map[string]Answer) Visibility {
	res := Visibility{
		Visible:        map[string]bool{},
		ForcedRequired: map[string]bool{},
		SatisfiedRules: map[string][]Rule{},
	}
	if t == nil {
		return res
	}
	items := t.Items()

	// Each pass can only clear answers, so the loop terminates after at
	// most one pass per item plus the final stable pass.
	for pass := 0; pass <= len(items); pass++ {
		visible := map[string]bool{}
		forced := map[string]bool{}
		satisfied := map[string][]Rule{}

		for _, item := range items {
			show, sat, requireNote := itemVisible(item, answers)
			if !show {
				continue
			}
			visible[item.ID] = true
			if len(sat) > 0 {
				satisfied[item.ID] = sat
			}
			if requireNote {
				forced[item.ID] = true
			}
		}

		changed := false
		for id := range answers {
			if !visible[id] {
				delete(answers, id)
				res.Cleared = append(res.Cleared, id)
				changed = true
			}
		}
		if !changed && sameSet(visible, res.Visible) && pass > 0 {
			res.Visible = visible
			res.ForcedRequired = forced
			res.SatisfiedRules = satisfied
			return res
		}
		res.Visible = visible
		res.ForcedRequired = forced
		res.SatisfiedRules = satisfied
	}
	return res
}

// itemVisible decides one item's visibility from the current answers.
// Returns the satisfied rules (rule-based arm only) and whether one of them
// forces the required flag.
func itemVisible(item Item, answers map[string]Answer) (bool, []Rule, bool) {
	cond := item.Conditional
	switch {
	case cond == nil:
		return true, nil, false

	case cond.Legacy != nil:
		// A legacy conditional without a source item is inert.
		if cond.Legacy.DependsOn == "" {
			return true, nil, false
		}
		return EvalLegacyCondition(cond.Legacy.ShowWhen, answerValue(answers, cond.Legacy.DependsOn)), nil, false

	case cond.RuleBased != nil:
		rb := cond.RuleBased
		if !rb.Enabled || len(rb.Rules) == 0 {
			return true, nil, false
		}
		value := answerValue(answers, rb.DependsOn)
		var sat []Rule
		requireNote := false
		for _, rule := range rb.Rules {
			if !MatchRule(rule, value) {
				return false, nil, false
			}
			sat = append(sat, rule)
			if rule.HasAction(ActionRequireNote) {
				requireNote = true
			}
		}
		return true, sat, requireNote

	default:
		return true, nil, false
	}
}

// answerValue returns the raw value answered for the item, or nil. An
// unresolvable reference therefore evaluates as "condition not satisfied".
func answerValue(answers map[string]Answer, id string) any {
	if a, ok := answers[id]; ok {
		return a.Value
	}
	return nil
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
