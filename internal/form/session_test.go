package form

import (
	"errors"
	"testing"
	"time"
)

func newTestSession(t *testing.T, tmpl *Template, prior map[string]Answer) *Session {
	t.Helper()
	s, err := NewSession(tmpl, prior)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestSessionFullFlow(t *testing.T) {
	tmpl := twoSectionTemplate()
	tmpl.Sections[0].Items = append(tmpl.Sections[0].Items, Item{
		ID: "ok", Type: TypeCheckbox, Label: "OK?",
		Scoring: &ItemScoring{Enabled: true, Weight: 1, TrueScore: 1},
	})
	tmpl.Scoring = &TemplateScoring{Enabled: true, PassingScore: fptr(70)}

	s := newTestSession(t, tmpl, nil)
	if s.State() != StateEditing || s.Section() != 0 {
		t.Fatalf("fresh session must edit section 0")
	}

	// Next blocked by the unanswered required field.
	if s.NextSection() {
		t.Fatalf("next must fail while required field is empty")
	}
	if s.Errors()["name"] != msgRequired {
		t.Fatalf("expected required error, got %v", s.Errors())
	}

	if err := s.SetAnswer("name", "Ana"); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if _, bad := s.Errors()["name"]; bad {
		t.Fatalf("setting an answer must clear its error")
	}
	if err := s.SetAnswer("ok", true); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if !s.NextSection() {
		t.Fatalf("next must advance once section is clean: %v", s.Errors())
	}
	if s.Section() != 1 {
		t.Fatalf("expected section 1, got %d", s.Section())
	}

	s.PreviousSection()
	if s.Section() != 0 {
		t.Fatalf("previous must move back unconditionally")
	}
	s.NextSection()

	if err := s.SetAnswer("summary", "all good"); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	sub, err := s.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("state must be submitted")
	}
	if sub.Score.Total != 1 || sub.Score.Percentage != 100 || !sub.Passed {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if err := s.SetAnswer("name", "late"); !errors.Is(err, ErrSubmitted) {
		t.Fatalf("mutations after submit must fail, got %v", err)
	}
}

func TestSubmitRejectedPositionsFirstErrorSection(t *testing.T) {
	tmpl := twoSectionTemplate()
	s := newTestSession(t, tmpl, nil)
	if err := s.SetAnswer("name", "Ana"); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	s.NextSection()

	_, err := s.Submit()
	var rejected *SubmitRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected SubmitRejected, got %v", err)
	}
	if rejected.Section != 1 || rejected.Errors["summary"] != msgRequired {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
	if s.State() != StateEditing || s.Section() != 1 {
		t.Fatalf("session must return to editing at the failing section")
	}
}

func TestSessionCascadingClear(t *testing.T) {
	tmpl := singleSectionTemplate(
		selectItem("A", "Sí", "No"),
		legacyDependent("B", "A", `"value" === "Sí"`),
	)
	s := newTestSession(t, tmpl, nil)

	if err := s.SetAnswer("A", "Sí"); err != nil {
		t.Fatalf("set A: %v", err)
	}
	if !s.Visibility().IsVisible("B") {
		t.Fatalf("B must show after A=Sí")
	}
	if err := s.SetAnswer("B", "detail"); err != nil {
		t.Fatalf("set B: %v", err)
	}

	if err := s.SetAnswer("A", "No"); err != nil {
		t.Fatalf("flip A: %v", err)
	}
	if s.Visibility().IsVisible("B") {
		t.Fatalf("B must hide after A=No")
	}
	if _, kept := s.Answers()["B"]; kept {
		t.Fatalf("B's answer must be removed when hidden")
	}
}

func TestSessionRequireNoteCycle(t *testing.T) {
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
	s := newTestSession(t, tmpl, nil)

	if err := s.SetAnswer("check", "Fail"); err != nil {
		t.Fatalf("set check: %v", err)
	}
	if !s.Visibility().IsVisible("note") {
		t.Fatalf("note must show on Fail")
	}
	if _, err := s.Submit(); err == nil {
		t.Fatalf("submit must reject while forced-required note is empty")
	}
	if err := s.SetAnswer("note", "valve cracked"); err != nil {
		t.Fatalf("set note: %v", err)
	}
	if _, err := s.Submit(); err != nil {
		t.Fatalf("submit after note: %v", err)
	}
}

func TestSessionResumesDraft(t *testing.T) {
	tmpl := twoSectionTemplate()
	prior := answerMap("name", "Ana", "summary", "done")
	s := newTestSession(t, tmpl, prior)
	if len(s.Answers()) != 2 {
		t.Fatalf("draft answers must be preserved, got %v", s.Answers())
	}
	if _, err := s.Submit(); err != nil {
		t.Fatalf("complete draft must submit: %v", err)
	}
}

func TestSessionCachesOptionLabel(t *testing.T) {
	tmpl := singleSectionTemplate(Item{
		ID: "loc", Type: TypeLocationRef, Label: "Location",
		Options: []Option{{Value: "loc-9", Label: "Boiler room", Subtitle: "Basement"}},
	})
	s := newTestSession(t, tmpl, nil)
	if err := s.SetAnswer("loc", "loc-9"); err != nil {
		t.Fatalf("set loc: %v", err)
	}
	if got := s.Answers()["loc"].Label; got != "Boiler room" {
		t.Fatalf("display label must be cached, got %q", got)
	}
}

func TestSessionRejectsInvalidTemplate(t *testing.T) {
	bad := &Template{ID: "bad"}
	if _, err := NewSession(bad, nil); err == nil {
		t.Fatalf("template without sections must be rejected before a session exists")
	}
	dup := &Template{ID: "dup", Sections: []Section{{ID: "s", Title: "s", Items: []Item{
		{ID: "x", Type: TypeText, Label: "x"},
		{ID: "x", Type: TypeText, Label: "x again"},
	}}}}
	if _, err := NewSession(dup, nil); err == nil {
		t.Fatalf("duplicate item ids must be rejected")
	}
}
