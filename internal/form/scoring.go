package form

import (
	"math"
	"strconv"
)

// DefaultPassingScore applies when a template does not set a threshold.
const DefaultPassingScore = 70

// Score is the aggregate over visible, scoring-enabled items.
type Score struct {
	Total      float64 `json:"total"`
	Max        float64 `json:"max"`
	Percentage float64 `json:"percentage"`
}

// ItemScore computes one item's score for the given answer value. Checkbox
// items score trueScore/falseScore on truthiness; option-backed items score
// the matched option; everything else contributes zero.
func ItemScore(item Item, value any) float64 {
	if item.Scoring == nil || !item.Scoring.Enabled {
		return 0
	}
	if item.Type == TypeCheckbox {
		if isTruthy(value) {
			return item.Scoring.TrueScore
		}
		return item.Scoring.FalseScore
	}
	if len(item.Options) > 0 {
		if opt, ok := matchOption(item.Options, value); ok {
			return opt.Score
		}
	}
	return 0
}

// ComputeScore aggregates total, max and percentage over the visible set.
// Max counts every visible scoring-enabled item's weight whether or not it
// is answered; total only counts answered items. Percentage is rounded to
// two decimals and is zero when nothing scorable is visible.
func ComputeScore(t *Template, answers map[string]Answer, visible map[string]bool) Score {
	var s Score
	if t == nil {
		return s
	}
	for _, item := range t.Items() {
		if !visible[item.ID] || item.Scoring == nil || !item.Scoring.Enabled {
			continue
		}
		s.Max += item.Scoring.Weight
		if a, ok := answers[item.ID]; ok {
			s.Total += ItemScore(item, a.Value)
		}
	}
	if s.Max > 0 {
		s.Percentage = round2(s.Total / s.Max * 100)
	}
	return s
}

// Passed applies the template's passing threshold to a computed score.
func Passed(t *Template, s Score) bool {
	return s.Percentage >= t.PassingScore()
}

// matchOption finds the option whose value matches the answer. Values are
// stored as strings in templates; numeric answers match their canonical
// string form.
func matchOption(options []Option, value any) (Option, bool) {
	str, ok := valueString(value)
	if !ok {
		return Option{}, false
	}
	for _, opt := range options {
		if opt.Value == str {
			return opt, true
		}
	}
	return Option{}, false
}

func valueString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		if x {
			return "true", true
		}
		return "false", true
	default:
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return "", false
	}
}

func isTruthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true" || x == "Sí" || x == "yes"
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return false
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
