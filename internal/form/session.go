package form

import (
	"errors"
	"fmt"
	"time"
)

// State of a form session. Submitting is transient within Submit; a caller
// observes Editing until a successful Submit lands in Submitted.
type State string

const (
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
)

// ErrSubmitted is returned by mutations on a session that already submitted.
var ErrSubmitted = errors.New("session already submitted")

// SubmitRejected reports a failed submit as data: the full error map and the
// first section containing an error, where the session now points.
type SubmitRejected struct {
	Section int
	Errors  map[string]string
}

func (e *SubmitRejected) Error() string {
	return fmt.Sprintf("submit rejected: %d invalid item(s), first in section %d", len(e.Errors), e.Section)
}

// Submission is the finalized payload handed to the host for persistence.
type Submission struct {
	Answers map[string]Answer `json:"answers"`
	Score   Score             `json:"score"`
	Passed  bool              `json:"passed"`
}

// Session is the live, mutable state for one user filling one template
// instance. It is single-writer: every mutation runs to completion before
// the next, and the template reference is never mutated.
type Session struct {
	tmpl    *Template
	answers map[string]Answer
	vis     Visibility
	errors  map[string]string
	score   Score
	section int
	state   State

	// Now is swappable for tests; answers are stamped with it.
	Now func() time.Time
}

// NewSession validates the template and creates a session, optionally
// resuming from a prior answer set (a draft). Visibility and score are
// initialized immediately.
func NewSession(t *Template, prior map[string]Answer) (*Session, error) {
	if err := ValidateTemplate(t); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	answers := map[string]Answer{}
	for id, a := range prior {
		answers[id] = a
	}
	s := &Session{
		tmpl:    t,
		answers: answers,
		errors:  map[string]string{},
		state:   StateEditing,
		Now:     time.Now,
	}
	s.recompute()
	return s, nil
}

// SetAnswer records a value for an item, clears that item's error, and
// re-runs visibility (to a fixed point) and scoring. Items hidden by the
// change have their answers removed.
func (s *Session) SetAnswer(itemID string, value any) error {
	if s.state == StateSubmitted {
		return ErrSubmitted
	}
	item, ok := s.tmpl.Item(itemID)
	if !ok {
		return fmt.Errorf("unknown item %s", itemID)
	}
	a := Answer{Value: value, Timestamp: s.Now().UTC().Format(time.RFC3339)}
	if opt, matched := matchOption(item.Options, value); matched {
		a.Label = opt.Label
	}
	s.answers[itemID] = a
	delete(s.errors, itemID)
	s.recompute()
	return nil
}

// NextSection validates the current section; on success it advances and
// returns true, otherwise the session stays put and the section's errors
// are surfaced (errors outside the section are untouched).
func (s *Session) NextSection() bool {
	if s.state == StateSubmitted {
		return false
	}
	s.errors = ValidateSection(s.tmpl, s.section, s.answers, s.vis, s.errors)
	for _, item := range s.tmpl.Sections[s.section].Items {
		if _, bad := s.errors[item.ID]; bad {
			return false
		}
	}
	if s.section < len(s.tmpl.Sections)-1 {
		s.section++
	}
	return true
}

// Seek positions the session at a section without validation, clamped to the
// template's bounds. Used when rehydrating a stored draft.
func (s *Session) Seek(section int) {
	if s.state == StateSubmitted {
		return
	}
	if section < 0 {
		section = 0
	}
	if max := len(s.tmpl.Sections) - 1; section > max {
		section = max
	}
	s.section = section
}

// PreviousSection moves back without validation.
func (s *Session) PreviousSection() {
	if s.state != StateSubmitted && s.section > 0 {
		s.section--
	}
}

// Submit validates the whole template. On failure the session returns to
// Editing positioned at the first section containing an error and a
// *SubmitRejected describes the failure; on success the session becomes
// Submitted and the finalized payload is returned.
func (s *Session) Submit() (*Submission, error) {
	if s.state == StateSubmitted {
		return nil, ErrSubmitted
	}
	s.state = StateSubmitting
	s.errors = ValidateAll(s.tmpl, s.answers, s.vis)
	if len(s.errors) > 0 {
		s.state = StateEditing
		s.section = s.firstErrorSection()
		return nil, &SubmitRejected{Section: s.section, Errors: copyErrors(s.errors)}
	}
	s.state = StateSubmitted
	return &Submission{
		Answers: s.Answers(),
		Score:   s.score,
		Passed:  Passed(s.tmpl, s.score),
	}, nil
}

// recompute runs visibility to a fixed point, then rescores and refreshes
// the per-answer score cache.
func (s *Session) recompute() {
	s.vis = EvaluateVisibility(s.tmpl, s.answers)
	for _, id := range s.vis.Cleared {
		delete(s.errors, id)
	}
	s.score = ComputeScore(s.tmpl, s.answers, s.vis.Visible)
	for id, a := range s.answers {
		if item, ok := s.tmpl.Item(id); ok && item.Scoring != nil && item.Scoring.Enabled {
			v := ItemScore(item, a.Value)
			a.Score = &v
			s.answers[id] = a
		}
	}
}

func (s *Session) firstErrorSection() int {
	for si, sec := range s.tmpl.Sections {
		for _, item := range sec.Items {
			if _, bad := s.errors[item.ID]; bad {
				return si
			}
		}
	}
	return 0
}

// Accessors. Maps are copied so callers cannot bypass the orchestrator.

func (s *Session) State() State { return s.state }

func (s *Session) Section() int { return s.section }

func (s *Session) Score() Score { return s.score }

func (s *Session) Template() *Template { return s.tmpl }

func (s *Session) Answers() map[string]Answer {
	out := make(map[string]Answer, len(s.answers))
	for id, a := range s.answers {
		out[id] = a
	}
	return out
}

func (s *Session) Errors() map[string]string {
	return copyErrors(s.errors)
}

func (s *Session) Visibility() Visibility { return s.vis }

// SatisfiedRules exposes the rules satisfied for an item this cycle so the
// host can act on their action tags (notify, require_files, ...).
func (s *Session) SatisfiedRules(itemID string) []Rule {
	return s.vis.SatisfiedRules[itemID]
}

func copyErrors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
