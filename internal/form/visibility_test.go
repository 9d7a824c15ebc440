package form

import "testing"

func selectItem(id string, values ...string) Item {
	item := Item{ID: id, Type: TypeSingleSelect, Label: id}
	for _, v := range values {
		item.Options = append(item.Options, Option{Value: v, Label: v})
	}
	return item
}

func legacyDependent(id, source, showWhen string) Item {
	return Item{
		ID:    id,
		Type:  TypeText,
		Label: id,
		Conditional: &Conditional{
			Legacy: &LegacyConditional{DependsOn: source, ShowWhen: showWhen},
		},
	}
}

func singleSectionTemplate(items ...Item) *Template {
	return &Template{
		ID:       "tpl-1",
		Sections: []Section{{ID: "sec-1", Title: "Section 1", Items: items}},
	}
}

func answerMap(pairs ...any) map[string]Answer {
	m := map[string]Answer{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i].(string)] = Answer{Value: pairs[i+1]}
	}
	return m
}

func TestDefaultVisibility(t *testing.T) {
	tmpl := singleSectionTemplate(
		selectItem("A", "Sí", "No"),
		legacyDependent("B", "A", `"value" === "Sí"`),
		Item{ID: "C", Type: TypeText, Label: "C", Conditional: &Conditional{
			RuleBased: &RuleConditional{Enabled: false, DependsOn: "A", Rules: []Rule{{Condition: ConditionNotBlank}}},
		}},
	)
	vis := EvaluateVisibility(tmpl, map[string]Answer{})
	if !vis.IsVisible("A") {
		t.Fatalf("item without conditional must be visible by default")
	}
	if vis.IsVisible("B") {
		t.Fatalf("legacy dependent must be hidden without a matching answer")
	}
	if !vis.IsVisible("C") {
		t.Fatalf("disabled rule conditional must leave the item visible")
	}
}

func TestLegacyConditionalToggle(t *testing.T) {
	tmpl := singleSectionTemplate(
		selectItem("A", "Sí", "No"),
		legacyDependent("B", "A", `"value" === "Sí"`),
	)

	answers := answerMap("A", "Sí", "B", "details")
	vis := EvaluateVisibility(tmpl, answers)
	if !vis.IsVisible("B") {
		t.Fatalf("B must be visible when A is Sí")
	}

	answers["A"] = Answer{Value: "No"}
	vis = EvaluateVisibility(tmpl, answers)
	if vis.IsVisible("B") {
		t.Fatalf("B must hide when A flips to No")
	}
	if _, kept := answers["B"]; kept {
		t.Fatalf("hidden item's answer must be cleared")
	}
	if len(vis.Cleared) != 1 || vis.Cleared[0] != "B" {
		t.Fatalf("expected cleared=[B], got %v", vis.Cleared)
	}
}

func TestRuleConditionalWithRequireNote(t *testing.T) {
	tmpl := singleSectionTemplate(
		selectItem("check", "Pass", "Fail"),
		Item{ID: "note", Type: TypeTextarea, Label: "Explain", Conditional: &Conditional{
			RuleBased: &RuleConditional{
				Enabled:   true,
				DependsOn: "check",
				Rules:     []Rule{{Condition: ConditionEquals, Value: "Fail", Actions: []string{ActionRequireNote, ActionNotify}}},
			},
		}},
	)

	answers := answerMap("check", "Fail")
	vis := EvaluateVisibility(tmpl, answers)
	if !vis.IsVisible("note") {
		t.Fatalf("note must be visible on Fail")
	}
	if !vis.ForcedRequired["note"] {
		t.Fatalf("require_note action must force required")
	}
	sat := vis.SatisfiedRules["note"]
	if len(sat) != 1 || !sat[0].HasAction(ActionNotify) {
		t.Fatalf("satisfied rules must carry action tags, got %v", sat)
	}

	answers = answerMap("check", "Pass", "note", "leftover")
	vis = EvaluateVisibility(tmpl, answers)
	if vis.IsVisible("note") {
		t.Fatalf("note must hide on Pass")
	}
	if _, kept := answers["note"]; kept {
		t.Fatalf("note answer must be cleared on hide")
	}
}

func TestRuleConditionalAndCombination(t *testing.T) {
	tmpl := singleSectionTemplate(
		selectItem("check", "Pass", "Fail"),
		Item{ID: "followup", Type: TypeText, Label: "Follow up", Conditional: &Conditional{
			RuleBased: &RuleConditional{
				Enabled:   true,
				DependsOn: "check",
				Rules: []Rule{
					{Condition: ConditionNotBlank},
					{Condition: ConditionNotEquals, Value: "Pass"},
				},
			},
		}},
	)

	vis := EvaluateVisibility(tmpl, answerMap("check", "Fail"))
	if !vis.IsVisible("followup") {
		t.Fatalf("both rules satisfied, followup must show")
	}
	vis = EvaluateVisibility(tmpl, answerMap("check", "Pass"))
	if vis.IsVisible("followup") {
		t.Fatalf("second rule unsatisfied, followup must hide")
	}
}

func TestChainedConditionalsSettle(t *testing.T) {
	// A controls B, B controls C. Flipping A must hide both in one call.
	tmpl := singleSectionTemplate(
		selectItem("A", "Sí", "No"),
		legacyDependent("B", "A", `"value" === "Sí"`),
		Item{ID: "C", Type: TypeText, Label: "C", Conditional: &Conditional{
			RuleBased: &RuleConditional{Enabled: true, DependsOn: "B", Rules: []Rule{{Condition: ConditionNotBlank}}},
		}},
	)

	answers := answerMap("A", "Sí", "B", "filled", "C", "deep")
	vis := EvaluateVisibility(tmpl, answers)
	if !vis.IsVisible("B") || !vis.IsVisible("C") {
		t.Fatalf("chain must be fully visible while satisfied")
	}

	answers["A"] = Answer{Value: "No"}
	vis = EvaluateVisibility(tmpl, answers)
	if vis.IsVisible("B") || vis.IsVisible("C") {
		t.Fatalf("multi-hop chain must settle hidden, got visible=%v", vis.Visible)
	}
	if len(answers) != 1 {
		t.Fatalf("B and C answers must both be cleared, got %v", answers)
	}
}

func TestVisibilityIsPure(t *testing.T) {
	tmpl := singleSectionTemplate(
		selectItem("A", "Sí", "No"),
		legacyDependent("B", "A", `"value" === "Sí"`),
	)
	first := EvaluateVisibility(tmpl, answerMap("A", "Sí"))
	second := EvaluateVisibility(tmpl, answerMap("A", "Sí"))
	if !sameSet(first.Visible, second.Visible) {
		t.Fatalf("recomputing visibility must be deterministic: %v vs %v", first.Visible, second.Visible)
	}
}

func TestUnresolvableReferenceHides(t *testing.T) {
	tmpl := singleSectionTemplate(
		legacyDependent("B", "missing", `"value" === "Sí"`),
		Item{ID: "C", Type: TypeText, Label: "C", Conditional: &Conditional{
			RuleBased: &RuleConditional{Enabled: true, DependsOn: "ghost", Rules: []Rule{{Condition: ConditionNotBlank}}},
		}},
	)
	vis := EvaluateVisibility(tmpl, map[string]Answer{})
	if vis.IsVisible("B") || vis.IsVisible("C") {
		t.Fatalf("unresolvable references must evaluate as not satisfied")
	}
}
