package form

import (
	"encoding/json"
	"testing"
)

func TestParseTemplateDecodesBothConditionalShapes(t *testing.T) {
	data := []byte(`{
		"id": "tpl-mixed",
		"version": "3",
		"sections": [{
			"id": "sec-1",
			"title": "Mixed",
			"items": [
				{"id": "A", "type": "single_select", "label": "A",
				 "options": [{"value": "Sí", "label": "Sí"}, {"value": "No", "label": "No"}]},
				{"id": "B", "type": "text", "label": "B",
				 "conditional": {"dependsOn": "A", "showWhen": "\"value\" === \"Sí\""}},
				{"id": "C", "type": "textarea", "label": "C",
				 "conditional": {"enabled": true, "dependsOn": "A",
				   "rules": [{"condition": "equals", "value": "No", "actions": ["require_note"]}]}}
			]
		}]
	}`)

	tmpl, err := ParseTemplate(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ValidateTemplate(tmpl); err != nil {
		t.Fatalf("validate: %v", err)
	}

	b, _ := tmpl.Item("B")
	if b.Conditional == nil || b.Conditional.Legacy == nil {
		t.Fatalf("B must decode to the legacy arm: %+v", b.Conditional)
	}
	if b.Conditional.Legacy.DependsOn != "A" || b.Conditional.Legacy.ShowWhen != `"value" === "Sí"` {
		t.Fatalf("unexpected legacy conditional %+v", b.Conditional.Legacy)
	}

	c, _ := tmpl.Item("C")
	if c.Conditional == nil || c.Conditional.RuleBased == nil {
		t.Fatalf("C must decode to the rule-based arm: %+v", c.Conditional)
	}
	rb := c.Conditional.RuleBased
	if !rb.Enabled || rb.DependsOn != "A" || len(rb.Rules) != 1 {
		t.Fatalf("unexpected rule conditional %+v", rb)
	}
	if rb.Rules[0].Condition != ConditionEquals || !rb.Rules[0].HasAction(ActionRequireNote) {
		t.Fatalf("unexpected rule %+v", rb.Rules[0])
	}
}

func TestConditionalRulesListWinsWithoutEnabled(t *testing.T) {
	var c Conditional
	data := []byte(`{"dependsOn": "A", "rules": [{"condition": "not_blank"}]}`)
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.RuleBased == nil || c.Legacy != nil {
		t.Fatalf("a rules list alone must select the rule-based arm: %+v", c)
	}
}

func TestConditionalMarshalRoundtrip(t *testing.T) {
	for _, orig := range []Conditional{
		{Legacy: &LegacyConditional{DependsOn: "A", ShowWhen: `"value" === "x"`}},
		{RuleBased: &RuleConditional{Enabled: true, DependsOn: "A", Rules: []Rule{{Condition: ConditionIsBlank}}}},
	} {
		data, err := json.Marshal(orig)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var back Conditional
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if (orig.Legacy == nil) != (back.Legacy == nil) || (orig.RuleBased == nil) != (back.RuleBased == nil) {
			t.Fatalf("roundtrip changed the active arm: %s", data)
		}
	}
}

func TestValidateTemplateFailures(t *testing.T) {
	cases := []struct {
		name string
		tmpl *Template
	}{
		{"nil", nil},
		{"missing id", &Template{Sections: []Section{{ID: "s", Items: []Item{{ID: "x", Type: TypeText, Label: "x"}}}}}},
		{"no sections", &Template{ID: "t"}},
		{"empty section", &Template{ID: "t", Sections: []Section{{ID: "s", Title: "s"}}}},
		{"item without id", &Template{ID: "t", Sections: []Section{{ID: "s", Items: []Item{{Type: TypeText, Label: "x"}}}}}},
		{"duplicate item ids", &Template{ID: "t", Sections: []Section{
			{ID: "s1", Items: []Item{{ID: "x", Type: TypeText, Label: "x"}}},
			{ID: "s2", Items: []Item{{ID: "x", Type: TypeText, Label: "x"}}},
		}}},
		{"duplicate option values", &Template{ID: "t", Sections: []Section{{ID: "s", Items: []Item{
			{ID: "x", Type: TypeSelect, Label: "x", Options: []Option{{Value: "a", Label: "A"}, {Value: "a", Label: "B"}}},
		}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateTemplate(tc.tmpl); err == nil {
				t.Fatalf("expected a validation error")
			}
		})
	}
}

func TestTemplateLookups(t *testing.T) {
	tmpl := twoSectionTemplate()
	if got := tmpl.SectionOf("summary"); got != 1 {
		t.Fatalf("SectionOf(summary) = %d, want 1", got)
	}
	if got := tmpl.SectionOf("ghost"); got != -1 {
		t.Fatalf("SectionOf(ghost) = %d, want -1", got)
	}
	if items := tmpl.Items(); len(items) != 3 {
		t.Fatalf("Items() = %d items, want 3", len(items))
	}
	if _, ok := tmpl.Item("age"); !ok {
		t.Fatalf("Item(age) must resolve")
	}
}
