package form

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Legacy conditions are a tiny closed grammar, matched with anchored patterns
// instead of a tokenizer. The patterns are tried in the order the legacy
// system defined: string equality, string inequality, then the four numeric
// comparisons. Anything that matches none of them evaluates to false, so a
// malformed condition can hide an item but never reveal one.
var (
	quoted       = `"((?:[^"\\]|\\.)*)"`
	number       = `(-?\d+(?:\.\d+)?)`
	reStringEq   = regexp.MustCompile(`^\s*` + quoted + `\s*===\s*` + quoted + `\s*$`)
	reStringNeq  = regexp.MustCompile(`^\s*` + quoted + `\s*!==\s*` + quoted + `\s*$`)
	reNumGT      = regexp.MustCompile(`^\s*` + number + `\s*>\s*` + number + `\s*$`)
	reNumLT      = regexp.MustCompile(`^\s*` + number + `\s*<\s*` + number + `\s*$`)
	reNumGTE     = regexp.MustCompile(`^\s*` + number + `\s*>=\s*` + number + `\s*$`)
	reNumLTE     = regexp.MustCompile(`^\s*` + number + `\s*<=\s*` + number + `\s*$`)
	reValueToken = regexp.MustCompile(`\bvalue\b`)
)

// EvalLegacyCondition substitutes the runtime value into a legacy condition
// string and evaluates it. Fail-closed: unmatched or malformed input is false.
func EvalLegacyCondition(cond string, value any) bool {
	if strings.TrimSpace(cond) == "" {
		return false
	}
	sub := substituteValue(cond, value)

	if m := reStringEq.FindStringSubmatch(sub); m != nil {
		return m[1] == m[2]
	}
	if m := reStringNeq.FindStringSubmatch(sub); m != nil {
		return m[1] != m[2]
	}
	if m := reNumGT.FindStringSubmatch(sub); m != nil {
		return compareNums(m[1], m[2], func(a, b float64) bool { return a > b })
	}
	if m := reNumLT.FindStringSubmatch(sub); m != nil {
		return compareNums(m[1], m[2], func(a, b float64) bool { return a < b })
	}
	if m := reNumGTE.FindStringSubmatch(sub); m != nil {
		return compareNums(m[1], m[2], func(a, b float64) bool { return a >= b })
	}
	if m := reNumLTE.FindStringSubmatch(sub); m != nil {
		return compareNums(m[1], m[2], func(a, b float64) bool { return a <= b })
	}
	return false
}

// substituteValue replaces the `value` placeholder with the JSON literal of
// the runtime value. Templates write the placeholder either quoted
// ("value" === "Sí") or bare (value > 5); the quoted form is replaced whole
// so the literal's own quotes are not doubled.
func substituteValue(cond string, value any) string {
	lit := jsonLiteral(value)
	if strings.Contains(cond, `"value"`) {
		return strings.ReplaceAll(cond, `"value"`, lit)
	}
	return reValueToken.ReplaceAllString(cond, lit)
}

func jsonLiteral(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func compareNums(a, b string, cmp func(float64, float64) bool) bool {
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return false
	}
	return cmp(x, y)
}
