package form

import "testing"

func TestEvalLegacyCondition(t *testing.T) {
	cases := []struct {
		name  string
		cond  string
		value any
		want  bool
	}{
		{"string equals match", `"value" === "Sí"`, "Sí", true},
		{"string equals mismatch", `"value" === "Sí"`, "No", false},
		{"string not equals", `"value" !== "No"`, "Sí", true},
		{"string not equals same", `"value" !== "No"`, "No", false},
		{"numeric gt", `value > 5`, float64(12), true},
		{"numeric gt false", `value > 5`, float64(3), false},
		{"numeric lt", `value < 5`, float64(3), true},
		{"numeric gte boundary", `value >= 12`, float64(12), true},
		{"numeric lte boundary", `value <= 5`, float64(5), true},
		{"numeric lte false", `value <= 5`, float64(6), false},
		{"string against numeric grammar", `value > 5`, "twelve", false},
		{"nil value", `"value" === "Sí"`, nil, false},
		{"garbage", "garbage", "x", false},
		{"empty condition", "", "x", false},
		{"unsupported operator", `value == 5`, float64(5), false},
		{"spaces tolerated", `  "value"   ===   "ok" `, "ok", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvalLegacyCondition(tc.cond, tc.value); got != tc.want {
				t.Fatalf("EvalLegacyCondition(%q, %v) = %v, want %v", tc.cond, tc.value, got, tc.want)
			}
		})
	}
}

func TestEvalLegacyConditionNeverPanics(t *testing.T) {
	for _, cond := range []string{`"unterminated === "x"`, `>>>`, `value value value`, `"a" === `} {
		if EvalLegacyCondition(cond, "anything") {
			t.Fatalf("malformed condition %q must fail closed", cond)
		}
	}
}

func TestMatchRule(t *testing.T) {
	cases := []struct {
		name  string
		rule  Rule
		value any
		want  bool
	}{
		{"not_blank with value", Rule{Condition: ConditionNotBlank}, "x", true},
		{"not_blank empty string", Rule{Condition: ConditionNotBlank}, "", false},
		{"not_blank nil", Rule{Condition: ConditionNotBlank}, nil, false},
		{"not_blank zero number", Rule{Condition: ConditionNotBlank}, float64(0), true},
		{"is_blank nil", Rule{Condition: ConditionIsBlank}, nil, true},
		{"is_blank with value", Rule{Condition: ConditionIsBlank}, "x", false},
		{"equals string", Rule{Condition: ConditionEquals, Value: "Fail"}, "Fail", true},
		{"equals mismatch", Rule{Condition: ConditionEquals, Value: "Fail"}, "Pass", false},
		{"equals numeric coercion", Rule{Condition: ConditionEquals, Value: float64(3)}, 3, true},
		{"equals cross-type", Rule{Condition: ConditionEquals, Value: "3"}, float64(3), false},
		{"not_equals", Rule{Condition: ConditionNotEquals, Value: "Fail"}, "Pass", true},
		{"unknown condition", Rule{Condition: "matches_regex", Value: ".*"}, "x", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchRule(tc.rule, tc.value); got != tc.want {
				t.Fatalf("MatchRule(%+v, %v) = %v, want %v", tc.rule, tc.value, got, tc.want)
			}
		})
	}
}
