package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"formline/internal/config"
	"formline/internal/db"
	"formline/internal/domain"
	"formline/internal/engine"
	"formline/internal/form"
	"formline/internal/migrate"
	"formline/internal/repo"
)

const checklistSchema = `{
	"id": "safety-checklist",
	"version": "1",
	"name": "Safety checklist",
	"scoring": {"enabled": true, "passingScore": 70},
	"sections": [
		{
			"id": "general",
			"title": "General",
			"items": [
				{"id": "inspector", "type": "text", "label": "Inspector", "required": true},
				{"id": "extinguisher_ok", "type": "checkbox", "label": "Extinguisher charged",
				 "scoring": {"enabled": true, "weight": 1, "trueScore": 1}},
				{"id": "leaks", "type": "single_select", "label": "Any leaks?",
				 "options": [{"value": "Sí", "label": "Sí"}, {"value": "No", "label": "No"}]},
				{"id": "leak_detail", "type": "textarea", "label": "Describe the leak", "required": true,
				 "conditional": {"dependsOn": "leaks", "showWhen": "\"value\" === \"Sí\""}}
			]
		},
		{
			"id": "closing",
			"title": "Closing",
			"items": [
				{"id": "summary", "type": "textarea", "label": "Summary", "required": true}
			]
		}
	]
}`

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func importChecklist(t *testing.T, e engine.Engine) {
	t.Helper()
	if _, err := e.ImportTemplate(context.Background(), []byte(checklistSchema), "tester"); err != nil {
		t.Fatalf("import template: %v", err)
	}
}

func TestImportTemplateRejectsMalformed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.ImportTemplate(ctx, []byte(`{"id": "empty", "sections": []}`), "tester"); err == nil {
		t.Fatalf("template without sections must be rejected")
	}
	if _, err := e.ImportTemplate(ctx, []byte(`not json`), "tester"); err == nil {
		t.Fatalf("unparseable template must be rejected")
	}
	if _, err := e.Repo.LatestTemplate(ctx, "empty"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected template must not be stored, got %v", err)
	}
}

func TestInspectionLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	importChecklist(t, e)

	insp, err := e.StartInspection(ctx, "safety-checklist", "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if insp.Status != "draft" || insp.Section != 0 {
		t.Fatalf("fresh inspection must be a draft at section 0: %+v", insp)
	}

	if _, err := e.AnswerItem(ctx, insp.ID, "inspector", "Ana", "ana"); err != nil {
		t.Fatalf("answer inspector: %v", err)
	}
	if _, err := e.AnswerItem(ctx, insp.ID, "extinguisher_ok", true, "ana"); err != nil {
		t.Fatalf("answer extinguisher: %v", err)
	}
	insp, err = e.NextSection(ctx, insp.ID, "ana")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if insp.Section != 1 {
		t.Fatalf("clean section must advance, got section %d", insp.Section)
	}
	if _, err := e.AnswerItem(ctx, insp.ID, "summary", "all clear", "ana"); err != nil {
		t.Fatalf("answer summary: %v", err)
	}

	done, err := e.SubmitInspection(ctx, insp.ID, "ana")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if done.Status != "submitted" || done.SubmittedAt == nil {
		t.Fatalf("submitted inspection: %+v", done)
	}
	if done.Sequence == nil || *done.Sequence != "INS-000001" {
		t.Fatalf("expected sequence INS-000001, got %v", done.Sequence)
	}
	if done.Percentage == nil || *done.Percentage != 100 || done.Passed == nil || !*done.Passed {
		t.Fatalf("expected full passing score: %+v", done)
	}

	if _, err := e.AnswerItem(ctx, done.ID, "summary", "late edit", "ana"); !errors.Is(err, form.ErrSubmitted) {
		t.Fatalf("submitted inspections must be immutable, got %v", err)
	}

	// The sequence counter carries over to the next submission.
	second, err := e.StartInspection(ctx, "safety-checklist", "bob")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	for _, step := range []struct {
		item  string
		value any
	}{
		{"inspector", "Bob"},
		{"summary", "ok"},
	} {
		if _, err := e.AnswerItem(ctx, second.ID, step.item, step.value, "bob"); err != nil {
			t.Fatalf("answer %s: %v", step.item, err)
		}
	}
	done2, err := e.SubmitInspection(ctx, second.ID, "bob")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if done2.Sequence == nil || *done2.Sequence != "INS-000002" {
		t.Fatalf("expected INS-000002, got %v", done2.Sequence)
	}
}

func TestSubmitRejectedPersistsErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	importChecklist(t, e)

	insp, err := e.StartInspection(ctx, "safety-checklist", "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.AnswerItem(ctx, insp.ID, "inspector", "Ana", "ana"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	_, err = e.SubmitInspection(ctx, insp.ID, "ana")
	var rejected *engine.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Section != 1 || rejected.Errors["summary"] == "" {
		t.Fatalf("unexpected rejection %+v", rejected)
	}

	stored, err := e.Repo.GetInspection(ctx, insp.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != "draft" || stored.Section != 1 {
		t.Fatalf("rejected draft must stay editable at the failing section: %+v", stored)
	}
	if stored.ErrorsJSON == nil {
		t.Fatalf("errors must be persisted")
	}
	var errs map[string]string
	if err := json.Unmarshal([]byte(*stored.ErrorsJSON), &errs); err != nil || errs["summary"] == "" {
		t.Fatalf("stored errors: %v %v", errs, err)
	}
}

func TestConditionalClearSurvivesPersistence(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	importChecklist(t, e)

	insp, err := e.StartInspection(ctx, "safety-checklist", "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.AnswerItem(ctx, insp.ID, "leaks", "Sí", "ana"); err != nil {
		t.Fatalf("answer leaks: %v", err)
	}
	if _, err := e.AnswerItem(ctx, insp.ID, "leak_detail", "valve dripping", "ana"); err != nil {
		t.Fatalf("answer detail: %v", err)
	}
	stored, err := e.AnswerItem(ctx, insp.ID, "leaks", "No", "ana")
	if err != nil {
		t.Fatalf("flip leaks: %v", err)
	}
	var answers map[string]form.Answer
	if err := json.Unmarshal([]byte(stored.AnswersJSON), &answers); err != nil {
		t.Fatalf("stored answers: %v", err)
	}
	if _, kept := answers["leak_detail"]; kept {
		t.Fatalf("hidden answer must be cleared from storage, got %v", answers)
	}
}

func TestStartInspectionResumesDraft(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	importChecklist(t, e)

	first, err := e.StartInspection(ctx, "safety-checklist", "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	again, err := e.StartInspection(ctx, "safety-checklist", "ana")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("same author and template must resume the open draft")
	}
	other, err := e.StartInspection(ctx, "safety-checklist", "bob")
	if err != nil {
		t.Fatalf("other author: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("drafts are per author")
	}
}

func TestSnapshotPinning(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	importChecklist(t, e)

	insp, err := e.StartInspection(ctx, "safety-checklist", "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// A new version with a different item set lands while the draft is open.
	v2 := `{
		"id": "safety-checklist",
		"version": "2",
		"sections": [
			{"id": "general", "title": "General", "items": [
				{"id": "blocker", "type": "text", "label": "Blocker", "required": true}
			]}
		]
	}`
	if _, err := e.ImportTemplate(ctx, []byte(v2), "admin"); err != nil {
		t.Fatalf("import v2: %v", err)
	}

	if _, err := e.AnswerItem(ctx, insp.ID, "inspector", "Ana", "ana"); err != nil {
		t.Fatalf("the pinned snapshot must still accept v1 items: %v", err)
	}
	if _, err := e.AnswerItem(ctx, insp.ID, "blocker", "nope", "ana"); err == nil {
		t.Fatalf("v2 items must not leak into a pinned v1 draft")
	}
}

func TestReferenceOptionsInjected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	loc, err := e.CreateLocation(ctx, domain.Location{Name: "Boiler room"}, "admin")
	if err != nil {
		t.Fatalf("create location: %v", err)
	}

	schema := `{
		"id": "loc-form",
		"sections": [{"id": "s", "title": "Site", "items": [
			{"id": "where", "type": "location-reference", "label": "Where"}
		]}]
	}`
	if _, err := e.ImportTemplate(ctx, []byte(schema), "admin"); err != nil {
		t.Fatalf("import: %v", err)
	}
	insp, err := e.StartInspection(ctx, "loc-form", "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	tmpl, err := form.ParseTemplate([]byte(insp.TemplateJSON))
	if err != nil {
		t.Fatalf("pinned template: %v", err)
	}
	item, _ := tmpl.Item("where")
	if len(item.Options) != 1 || item.Options[0].Value != loc.ID || item.Options[0].Label != "Boiler room" {
		t.Fatalf("location options must be injected into the snapshot, got %v", item.Options)
	}
}

func TestPresetOptionsInjected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	schema := `{
		"id": "preset-form",
		"sections": [{"id": "s", "title": "State", "items": [
			{"id": "state", "type": "single_select", "label": "State", "optionsKey": "condition",
			 "scoring": {"enabled": true, "weight": 2}}
		]}]
	}`
	if _, err := e.ImportTemplate(ctx, []byte(schema), "admin"); err != nil {
		t.Fatalf("import: %v", err)
	}
	insp, err := e.StartInspection(ctx, "preset-form", "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	tmpl, err := form.ParseTemplate([]byte(insp.TemplateJSON))
	if err != nil {
		t.Fatalf("pinned template: %v", err)
	}
	item, _ := tmpl.Item("state")
	if len(item.Options) != 3 || item.Options[0].Value != "Good" {
		t.Fatalf("preset options must be injected, got %v", item.Options)
	}
}

func TestStartInspectionUnknownPresetFails(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	schema := `{
		"id": "bad-preset",
		"sections": [{"id": "s", "title": "S", "items": [
			{"id": "state", "type": "single_select", "label": "State", "optionsKey": "no-such-preset"}
		]}]
	}`
	if _, err := e.ImportTemplate(ctx, []byte(schema), "admin"); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := e.StartInspection(ctx, "bad-preset", "ana"); err == nil {
		t.Fatalf("unknown preset key must fail the start")
	}
}

func TestArchiveTemplateBlocksNewInspections(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	importChecklist(t, e)

	if err := e.ArchiveTemplate(ctx, "safety-checklist", "admin"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := e.StartInspection(ctx, "safety-checklist", "ana"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("archived templates must not start inspections, got %v", err)
	}
}

func TestEventsRecorded(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	importChecklist(t, e)

	insp, err := e.StartInspection(ctx, "safety-checklist", "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.AnswerItem(ctx, insp.ID, "inspector", "Ana", "ana"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	evts, err := e.Repo.LatestEvents(ctx, 10, "", "inspection", insp.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected started+answered events, got %d", len(evts))
	}
	if evts[0].Type != "inspection.answered" || evts[1].Type != "inspection.started" {
		t.Fatalf("unexpected event order: %s, %s", evts[0].Type, evts[1].Type)
	}
	if evts[0].ActorID != "ana" {
		t.Fatalf("actor must be recorded, got %q", evts[0].ActorID)
	}
}
