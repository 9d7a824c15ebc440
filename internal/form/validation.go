package form

import (
	"fmt"
	"regexp"
	"strconv"
)

// Validation errors are returned as data, never raised: a map of item id to
// a single human-readable message. Hidden items are never validated, even
// when required.

const msgRequired = "Required field"

// ValidateAll validates every visible item of the template and returns a
// fresh error map.
func ValidateAll(t *Template, answers map[string]Answer, vis Visibility) map[string]string {
	errs := map[string]string{}
	for si := range t.Sections {
		validateInto(errs, t, si, answers, vis)
	}
	return errs
}

// ValidateSection validates one section only, for paged navigation. Errors
// for items outside the section are carried over from existing untouched;
// errors for the section's own items are replaced.
func ValidateSection(t *Template, section int, answers map[string]Answer, vis Visibility, existing map[string]string) map[string]string {
	errs := map[string]string{}
	for id, msg := range existing {
		errs[id] = msg
	}
	if section < 0 || section >= len(t.Sections) {
		return errs
	}
	for _, item := range t.Sections[section].Items {
		delete(errs, item.ID)
	}
	validateInto(errs, t, section, answers, vis)
	return errs
}

func validateInto(errs map[string]string, t *Template, section int, answers map[string]Answer, vis Visibility) {
	for _, item := range t.Sections[section].Items {
		if !vis.Visible[item.ID] {
			continue
		}
		answer, answered := answers[item.ID]
		required := item.Required || vis.ForcedRequired[item.ID]
		if required && (!answered || !hasValue(answer.Value)) {
			errs[item.ID] = msgRequired
			continue
		}
		if !answered || !hasValue(answer.Value) || item.Validation == nil {
			continue
		}
		if msg := checkConstraints(*item.Validation, answer.Value); msg != "" {
			errs[item.ID] = msg
		}
	}
}

// checkConstraints applies the constraint rules in the fixed order
// minLength, maxLength, min, max, pattern. The last failing rule wins, so
// only one message survives per item.
func checkConstraints(c Constraints, value any) string {
	msg := ""
	str, isStr := value.(string)
	if c.MinLength != nil && isStr && len([]rune(str)) < *c.MinLength {
		msg = fmt.Sprintf("Must be at least %d characters", *c.MinLength)
	}
	if c.MaxLength != nil && isStr && len([]rune(str)) > *c.MaxLength {
		msg = fmt.Sprintf("Must be at most %d characters", *c.MaxLength)
	}
	if num, ok := numericValue(value); ok {
		if c.Min != nil && num < *c.Min {
			msg = fmt.Sprintf("Must be at least %v", *c.Min)
		}
		if c.Max != nil && num > *c.Max {
			msg = fmt.Sprintf("Must be at most %v", *c.Max)
		}
	}
	if c.Pattern != "" && isStr {
		// A pattern that does not compile degrades to "no constraint".
		if re, err := regexp.Compile(c.Pattern); err == nil && !re.MatchString(str) {
			msg = "Invalid format"
		}
	}
	return msg
}

// numericValue extracts a number from an answer, accepting the string form
// number inputs produce.
func numericValue(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok && s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
