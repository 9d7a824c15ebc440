// Package form implements the inspection-form engine: a declarative template
// of sections and typed items, a mutable answer set, and the visibility,
// scoring and validation logic that ties them together. The package is pure
// and synchronous; persistence and rendering live with the caller.
package form

import (
	"encoding/json"
	"fmt"
)

// ItemType enumerates the answerable field kinds a template may declare.
type ItemType string

const (
	TypeText         ItemType = "text"
	TypeTextarea     ItemType = "textarea"
	TypeNumber       ItemType = "number"
	TypeDate         ItemType = "date"
	TypeDatetime     ItemType = "datetime"
	TypeSelect       ItemType = "select"
	TypeSingleSelect ItemType = "single_select"
	TypeCheckbox     ItemType = "checkbox"
	TypeAssetRef     ItemType = "asset-reference"
	TypeLocationRef  ItemType = "location-reference"
	TypeArea         ItemType = "area"
	TypePhoto        ItemType = "photo"
	TypeSignature    ItemType = "signature"
	TypeRating       ItemType = "rating"
)

// Template is a versioned, reusable form definition.
type Template struct {
	ID       string           `json:"id"`
	Version  string           `json:"version,omitempty"`
	Name     string           `json:"name,omitempty"`
	Sections []Section        `json:"sections"`
	Scoring  *TemplateScoring `json:"scoring,omitempty"`
}

// TemplateScoring holds the aggregate scoring settings of a template.
type TemplateScoring struct {
	Enabled      bool     `json:"enabled"`
	MaxScore     float64  `json:"maxScore,omitempty"`
	PassingScore *float64 `json:"passingScore,omitempty"`
}

// Section is one page/group of items.
type Section struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Items       []Item `json:"items"`
}

// Item is one answerable (or purely informational) unit of a section.
type Item struct {
	ID          string       `json:"id"`
	Type        ItemType     `json:"type"`
	Label       string       `json:"label"`
	Required    bool         `json:"required,omitempty"`
	Options     []Option     `json:"options,omitempty"`
	OptionsKey  string       `json:"optionsKey,omitempty"`
	Scoring     *ItemScoring `json:"scoring,omitempty"`
	Validation  *Constraints `json:"validation,omitempty"`
	Conditional *Conditional `json:"conditional,omitempty"`
}

// ItemScoring configures one item's contribution to the aggregate score.
type ItemScoring struct {
	Enabled     bool    `json:"enabled"`
	Weight      float64 `json:"weight,omitempty"`
	ScoringType string  `json:"scoringType,omitempty"`
	TrueScore   float64 `json:"trueScore,omitempty"`
	FalseScore  float64 `json:"falseScore,omitempty"`
}

// Constraints are the per-item validation rules applied to present answers.
type Constraints struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// Option is a selectable value for select-like items.
type Option struct {
	Value         string  `json:"value"`
	Label         string  `json:"label"`
	Subtitle      string  `json:"subtitle,omitempty"`
	Color         string  `json:"color,omitempty"`
	Score         float64 `json:"score,omitempty"`
	RequirePhoto  bool    `json:"requirePhoto,omitempty"`
	RequireNote   bool    `json:"requireNote,omitempty"`
	RequireField  bool    `json:"requireField,omitempty"`
	FollowUpLabel string  `json:"followUpLabel,omitempty"`
	FieldType     string  `json:"fieldType,omitempty"`
}

// LegacyConditional is the string-expression conditional format: the item is
// shown when ShowWhen evaluates true against the DependsOn item's answer.
type LegacyConditional struct {
	DependsOn string `json:"dependsOn"`
	ShowWhen  string `json:"showWhen"`
}

// RuleConditional is the rule-based conditional format. All rules must match
// (logical AND) for the item to be shown.
type RuleConditional struct {
	Enabled   bool   `json:"enabled"`
	DependsOn string `json:"dependsOn"`
	Rules     []Rule `json:"rules"`
}

// Rule is a single condition of a RuleConditional, with the follow-up action
// tags the host reacts to when the rule is satisfied.
type Rule struct {
	Condition string   `json:"condition"`
	Value     any      `json:"value,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

// Conditional is a tagged union over the two conditional formats that coexist
// in stored templates. Exactly one arm is set.
type Conditional struct {
	Legacy    *LegacyConditional
	RuleBased *RuleConditional
}

// conditionalProbe covers both wire shapes so UnmarshalJSON can pick an arm.
type conditionalProbe struct {
	DependsOn string          `json:"dependsOn"`
	ShowWhen  string          `json:"showWhen"`
	Enabled   *bool           `json:"enabled"`
	Rules     json.RawMessage `json:"rules"`
}

// UnmarshalJSON decodes either conditional shape. The rule-based shape wins
// when it is unambiguously present (an enabled flag or a rules list).
func (c *Conditional) UnmarshalJSON(data []byte) error {
	var probe conditionalProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Enabled != nil || len(probe.Rules) > 0 {
		rb := &RuleConditional{DependsOn: probe.DependsOn}
		if probe.Enabled != nil {
			rb.Enabled = *probe.Enabled
		}
		if len(probe.Rules) > 0 {
			if err := json.Unmarshal(probe.Rules, &rb.Rules); err != nil {
				return fmt.Errorf("conditional rules: %w", err)
			}
		}
		c.RuleBased = rb
		c.Legacy = nil
		return nil
	}
	c.Legacy = &LegacyConditional{DependsOn: probe.DependsOn, ShowWhen: probe.ShowWhen}
	c.RuleBased = nil
	return nil
}

// MarshalJSON emits the active arm in its original wire shape.
func (c Conditional) MarshalJSON() ([]byte, error) {
	if c.RuleBased != nil {
		return json.Marshal(c.RuleBased)
	}
	if c.Legacy != nil {
		return json.Marshal(c.Legacy)
	}
	return []byte("null"), nil
}

// Answer is the user's current response to one item. Score is filled in by
// the session once visibility and scoring have run.
type Answer struct {
	Value     any      `json:"value"`
	Label     string   `json:"label,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Score     *float64 `json:"score,omitempty"`
}

// ParseTemplate decodes a template from JSON. It does not validate shape;
// call ValidateTemplate before creating sessions from untrusted input.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &t, nil
}

// ValidateTemplate checks the structural invariants a usable template must
// hold: at least one section, no empty sections, unique item ids. This is a
// hard failure before a session exists; a session never re-checks it and
// degrades gracefully on anything this misses.
func ValidateTemplate(t *Template) error {
	if t == nil {
		return fmt.Errorf("template is nil")
	}
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if len(t.Sections) == 0 {
		return fmt.Errorf("template %s has no sections", t.ID)
	}
	seen := map[string]bool{}
	for si, sec := range t.Sections {
		if len(sec.Items) == 0 {
			return fmt.Errorf("section %d (%s) has no items", si, sec.ID)
		}
		for _, item := range sec.Items {
			if item.ID == "" {
				return fmt.Errorf("section %s contains an item without id", sec.ID)
			}
			if seen[item.ID] {
				return fmt.Errorf("duplicate item id %s", item.ID)
			}
			seen[item.ID] = true
			values := map[string]bool{}
			for _, opt := range item.Options {
				if values[opt.Value] {
					return fmt.Errorf("item %s has duplicate option value %q", item.ID, opt.Value)
				}
				values[opt.Value] = true
			}
		}
	}
	return nil
}

// Items returns all items of the template in section order.
func (t *Template) Items() []Item {
	var out []Item
	for _, sec := range t.Sections {
		out = append(out, sec.Items...)
	}
	return out
}

// Item looks up an item by id across all sections.
func (t *Template) Item(id string) (Item, bool) {
	for _, sec := range t.Sections {
		for _, item := range sec.Items {
			if item.ID == id {
				return item, true
			}
		}
	}
	return Item{}, false
}

// SectionOf returns the index of the section containing the item id, or -1.
func (t *Template) SectionOf(id string) int {
	for si, sec := range t.Sections {
		for _, item := range sec.Items {
			if item.ID == id {
				return si
			}
		}
	}
	return -1
}

// PassingScore returns the pass threshold, defaulting to 70 when the
// template omits one.
func (t *Template) PassingScore() float64 {
	if t.Scoring != nil && t.Scoring.PassingScore != nil {
		return *t.Scoring.PassingScore
	}
	return DefaultPassingScore
}
