package form

import "testing"

func iptr(i int) *int { return &i }

func twoSectionTemplate() *Template {
	return &Template{
		ID: "tpl-2",
		Sections: []Section{
			{ID: "sec-0", Title: "First", Items: []Item{
				{ID: "name", Type: TypeText, Label: "Name", Required: true},
				{ID: "age", Type: TypeNumber, Label: "Age", Validation: &Constraints{Min: fptr(18), Max: fptr(120)}},
			}},
			{ID: "sec-1", Title: "Second", Items: []Item{
				{ID: "summary", Type: TypeTextarea, Label: "Summary", Required: true},
			}},
		},
	}
}

func TestRequiredOnlyWhenVisible(t *testing.T) {
	tmpl := singleSectionTemplate(
		selectItem("A", "Sí", "No"),
		Item{
			ID: "B", Type: TypeText, Label: "B", Required: true,
			Conditional: &Conditional{Legacy: &LegacyConditional{DependsOn: "A", ShowWhen: `"value" === "Sí"`}},
		},
	)

	answers := answerMap("A", "No")
	vis := EvaluateVisibility(tmpl, answers)
	errs := ValidateAll(tmpl, answers, vis)
	if _, bad := errs["B"]; bad {
		t.Fatalf("hidden required item must not produce an error: %v", errs)
	}

	answers = answerMap("A", "Sí")
	vis = EvaluateVisibility(tmpl, answers)
	errs = ValidateAll(tmpl, answers, vis)
	if errs["B"] != msgRequired {
		t.Fatalf("visible unanswered required item must error, got %v", errs)
	}
	if len(errs) != 1 {
		t.Fatalf("exactly one error expected, got %v", errs)
	}
}

func TestSectionScopedValidation(t *testing.T) {
	tmpl := twoSectionTemplate()
	answers := map[string]Answer{}
	vis := EvaluateVisibility(tmpl, answers)

	existing := map[string]string{"summary": msgRequired}
	errs := ValidateSection(tmpl, 0, answers, vis, existing)
	if errs["name"] != msgRequired {
		t.Fatalf("section 0 required field must error, got %v", errs)
	}
	if errs["summary"] != msgRequired {
		t.Fatalf("section 1 errors must be left untouched, got %v", errs)
	}

	// Fixing the section 0 field and revalidating clears only its error.
	answers["name"] = Answer{Value: "Ana"}
	errs = ValidateSection(tmpl, 0, answers, vis, errs)
	if _, bad := errs["name"]; bad {
		t.Fatalf("answered field must clear on revalidation: %v", errs)
	}
	if errs["summary"] != msgRequired {
		t.Fatalf("out-of-section error lost: %v", errs)
	}
}

func TestConstraintOrderLastWins(t *testing.T) {
	tmpl := singleSectionTemplate(Item{
		ID: "code", Type: TypeText, Label: "Code",
		Validation: &Constraints{MinLength: iptr(5), Pattern: `^[0-9]+$`},
	})
	answers := answerMap("code", "abc")
	vis := EvaluateVisibility(tmpl, answers)
	errs := ValidateAll(tmpl, answers, vis)
	// Both minLength and pattern fail; pattern is applied last and wins.
	if errs["code"] != "Invalid format" {
		t.Fatalf("last applicable rule must win, got %q", errs["code"])
	}
}

func TestNumericConstraints(t *testing.T) {
	tmpl := twoSectionTemplate()
	answers := answerMap("name", "Ana", "age", float64(12), "summary", "ok")
	vis := EvaluateVisibility(tmpl, answers)
	errs := ValidateAll(tmpl, answers, vis)
	if errs["age"] != "Must be at least 18" {
		t.Fatalf("min violation expected, got %v", errs)
	}

	answers["age"] = Answer{Value: float64(130)}
	errs = ValidateAll(tmpl, answers, vis)
	if errs["age"] != "Must be at most 120" {
		t.Fatalf("max violation expected, got %v", errs)
	}

	// Numeric strings from number inputs are accepted.
	answers["age"] = Answer{Value: "42"}
	errs = ValidateAll(tmpl, answers, vis)
	if _, bad := errs["age"]; bad {
		t.Fatalf("valid value must not error: %v", errs)
	}
}

func TestLengthConstraints(t *testing.T) {
	tmpl := singleSectionTemplate(Item{
		ID: "note", Type: TypeTextarea, Label: "Note",
		Validation: &Constraints{MinLength: iptr(3), MaxLength: iptr(5)},
	})
	vis := EvaluateVisibility(tmpl, map[string]Answer{})

	errs := ValidateAll(tmpl, answerMap("note", "ab"), vis)
	if errs["note"] != "Must be at least 3 characters" {
		t.Fatalf("minLength expected, got %v", errs)
	}
	errs = ValidateAll(tmpl, answerMap("note", "abcdef"), vis)
	if errs["note"] != "Must be at most 5 characters" {
		t.Fatalf("maxLength expected, got %v", errs)
	}
	errs = ValidateAll(tmpl, answerMap("note", "abcd"), vis)
	if len(errs) != 0 {
		t.Fatalf("in-range value must not error: %v", errs)
	}
}

func TestBadPatternDegrades(t *testing.T) {
	tmpl := singleSectionTemplate(Item{
		ID: "x", Type: TypeText, Label: "x",
		Validation: &Constraints{Pattern: `([`},
	})
	answers := answerMap("x", "whatever")
	vis := EvaluateVisibility(tmpl, answers)
	if errs := ValidateAll(tmpl, answers, vis); len(errs) != 0 {
		t.Fatalf("uncompilable pattern must not error the item: %v", errs)
	}
}

func TestForcedRequiredValidates(t *testing.T) {
	tmpl := singleSectionTemplate(
		selectItem("check", "Pass", "Fail"),
		Item{ID: "note", Type: TypeTextarea, Label: "Explain", Conditional: &Conditional{
			RuleBased: &RuleConditional{
				Enabled:   true,
				DependsOn: "check",
				Rules:     []Rule{{Condition: ConditionEquals, Value: "Fail", Actions: []string{ActionRequireNote}}},
			},
		}},
	)
	answers := answerMap("check", "Fail")
	vis := EvaluateVisibility(tmpl, answers)
	errs := ValidateAll(tmpl, answers, vis)
	if errs["note"] != msgRequired {
		t.Fatalf("require_note must force a required error, got %v", errs)
	}
}
