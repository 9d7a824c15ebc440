package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"formline/internal/config"
	"formline/internal/domain"
	"formline/internal/events"
	"formline/internal/form"
	"formline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// RejectedError carries a failed submit across the engine boundary with the
// failing section and per-item messages intact.
type RejectedError struct {
	Section int
	Errors  map[string]string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("inspection rejected: %d invalid item(s), first in section %d", len(e.Errors), e.Section)
}

// ImportTemplate validates a template document and stores it as a new
// version. A malformed schema is a hard failure; nothing is written.
func (e Engine) ImportTemplate(ctx context.Context, schemaJSON []byte, actorID string) (domain.TemplateRecord, error) {
	tmpl, err := form.ParseTemplate(schemaJSON)
	if err != nil {
		return domain.TemplateRecord{}, err
	}
	if err := form.ValidateTemplate(tmpl); err != nil {
		return domain.TemplateRecord{}, fmt.Errorf("invalid template: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	version := tmpl.Version
	if version == "" {
		version = now
	}
	rec := domain.TemplateRecord{
		ID:         tmpl.ID,
		Version:    version,
		Name:       tmpl.Name,
		Status:     "active",
		SchemaJSON: string(schemaJSON),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TemplateRecord{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTemplate(ctx, tx, rec); err != nil {
		return domain.TemplateRecord{}, fmt.Errorf("insert template: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "template.imported", "template", rec.ID, actorID, events.EventPayload{
		"version":  rec.Version,
		"sections": len(tmpl.Sections),
	}); err != nil {
		return domain.TemplateRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TemplateRecord{}, err
	}
	return rec, nil
}

// ArchiveTemplate retires every version of a template. Running drafts keep
// their pinned snapshots.
func (e Engine) ArchiveTemplate(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ArchiveTemplate(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "template.archived", "template", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// StartInspection opens a draft against the latest active version of a
// template. The resolved template (reference options injected) is pinned on
// the inspection; if the author already has an open draft for the template it
// is resumed instead.
func (e Engine) StartInspection(ctx context.Context, templateID, actorID string) (domain.Inspection, error) {
	if actorID == "" {
		return domain.Inspection{}, errors.New("actor_id required")
	}
	if draft, err := e.Repo.DraftInspection(ctx, templateID, actorID); err == nil {
		return draft, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Inspection{}, err
	}

	rec, err := e.Repo.LatestTemplate(ctx, templateID)
	if err != nil {
		return domain.Inspection{}, err
	}
	tmpl, err := form.ParseTemplate([]byte(rec.SchemaJSON))
	if err != nil {
		return domain.Inspection{}, fmt.Errorf("stored template %s: %w", rec.ID, err)
	}
	if err := e.resolveOptions(ctx, tmpl); err != nil {
		return domain.Inspection{}, err
	}
	pinned, err := json.Marshal(tmpl)
	if err != nil {
		return domain.Inspection{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	insp := domain.Inspection{
		ID:              uuid.NewString(),
		TemplateID:      rec.ID,
		TemplateVersion: rec.Version,
		TemplateJSON:    string(pinned),
		Status:          "draft",
		AnswersJSON:     "{}",
		AuthorID:        actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInspection(ctx, tx, insp); err != nil {
		return domain.Inspection{}, fmt.Errorf("insert inspection: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "inspection.started", "inspection", insp.ID, actorID, events.EventPayload{
		"template_id":      rec.ID,
		"template_version": rec.Version,
	}); err != nil {
		return domain.Inspection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, err
	}
	return insp, nil
}

// AnswerItem applies one answer to a draft and persists the recomputed
// state. Hidden items cleared by the change disappear from the stored
// answers as well.
func (e Engine) AnswerItem(ctx context.Context, inspectionID, itemID string, value any, actorID string) (domain.Inspection, error) {
	return e.mutateDraft(ctx, inspectionID, actorID, "inspection.answered",
		events.EventPayload{"item_id": itemID},
		func(s *form.Session) error {
			return s.SetAnswer(itemID, value)
		})
}

// NextSection validates the current section and advances the draft when it
// is clean. The persisted section and errors reflect the outcome either way.
func (e Engine) NextSection(ctx context.Context, inspectionID, actorID string) (domain.Inspection, error) {
	return e.mutateDraft(ctx, inspectionID, actorID, "inspection.section.changed",
		events.EventPayload{"direction": "next"},
		func(s *form.Session) error {
			s.NextSection()
			return nil
		})
}

// PreviousSection moves a draft back one section without validation.
func (e Engine) PreviousSection(ctx context.Context, inspectionID, actorID string) (domain.Inspection, error) {
	return e.mutateDraft(ctx, inspectionID, actorID, "inspection.section.changed",
		events.EventPayload{"direction": "previous"},
		func(s *form.Session) error {
			s.PreviousSection()
			return nil
		})
}

// SubmitInspection validates the whole draft. On failure the draft is
// repositioned at the first failing section and a *RejectedError is
// returned; on success the inspection is finalized with its score and a
// generated sequence number.
func (e Engine) SubmitInspection(ctx context.Context, inspectionID, actorID string) (domain.Inspection, error) {
	insp, sess, err := e.hydrate(ctx, inspectionID)
	if err != nil {
		return domain.Inspection{}, err
	}
	if insp.Status != "draft" {
		return domain.Inspection{}, form.ErrSubmitted
	}

	now := e.now().UTC().Format(time.RFC3339)
	sub, err := sess.Submit()
	if err != nil {
		var rejected *form.SubmitRejected
		if !errors.As(err, &rejected) {
			return domain.Inspection{}, err
		}
		if perr := e.persistSession(ctx, &insp, sess, now); perr != nil {
			return domain.Inspection{}, perr
		}
		return insp, &RejectedError{Section: rejected.Section, Errors: rejected.Errors}
	}

	answersJSON, err := json.Marshal(sub.Answers)
	if err != nil {
		return domain.Inspection{}, err
	}
	insp.AnswersJSON = string(answersJSON)
	insp.ErrorsJSON = nil
	insp.Status = "submitted"
	insp.Score = &sub.Score.Total
	insp.MaxScore = &sub.Score.Max
	insp.Percentage = &sub.Score.Percentage
	insp.Passed = &sub.Passed
	insp.UpdatedAt = now
	insp.SubmittedAt = &now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()
	prefix := e.Config.Defaults.SequencePrefix
	n, err := e.Repo.NextSequence(ctx, tx, prefix)
	if err != nil {
		return domain.Inspection{}, fmt.Errorf("next sequence: %w", err)
	}
	seq := fmt.Sprintf("%s-%06d", prefix, n)
	insp.Sequence = &seq
	if err := e.Repo.UpdateInspection(ctx, tx, insp); err != nil {
		return domain.Inspection{}, err
	}
	if err := e.Events.Append(ctx, tx, "inspection.submitted", "inspection", insp.ID, actorID, events.EventPayload{
		"sequence":   seq,
		"percentage": sub.Score.Percentage,
		"passed":     sub.Passed,
	}); err != nil {
		return domain.Inspection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, err
	}
	return insp, nil
}

// CreateAsset registers an inspectable asset.
func (e Engine) CreateAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error) {
	if a.Name == "" {
		return domain.Asset{}, errors.New("name is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = "active"
	}
	if a.LocationID != nil {
		if _, err := e.Repo.GetLocation(ctx, *a.LocationID); err != nil {
			return domain.Asset{}, fmt.Errorf("location %s: %w", *a.LocationID, err)
		}
	}
	a.CreatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAsset(ctx, tx, a); err != nil {
		return domain.Asset{}, err
	}
	if err := e.Events.Append(ctx, tx, "asset.created", "asset", a.ID, actorID, events.EventPayload{"name": a.Name}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

// CreateLocation registers a location.
func (e Engine) CreateLocation(ctx context.Context, l domain.Location, actorID string) (domain.Location, error) {
	if l.Name == "" {
		return domain.Location{}, errors.New("name is required")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.ParentID != nil {
		if _, err := e.Repo.GetLocation(ctx, *l.ParentID); err != nil {
			return domain.Location{}, fmt.Errorf("parent %s: %w", *l.ParentID, err)
		}
	}
	l.CreatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Location{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertLocation(ctx, tx, l); err != nil {
		return domain.Location{}, err
	}
	if err := e.Events.Append(ctx, tx, "location.created", "location", l.ID, actorID, events.EventPayload{"name": l.Name}); err != nil {
		return domain.Location{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Location{}, err
	}
	return l, nil
}

// mutateDraft rehydrates a session from the stored draft, applies fn, and
// persists the resulting state inside one transaction.
func (e Engine) mutateDraft(ctx context.Context, inspectionID, actorID, evtType string, payload events.EventPayload, fn func(*form.Session) error) (domain.Inspection, error) {
	insp, sess, err := e.hydrate(ctx, inspectionID)
	if err != nil {
		return domain.Inspection{}, err
	}
	if insp.Status != "draft" {
		return domain.Inspection{}, form.ErrSubmitted
	}
	if err := fn(sess); err != nil {
		return domain.Inspection{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.persistSessionEvent(ctx, &insp, sess, now, evtType, actorID, payload); err != nil {
		return domain.Inspection{}, err
	}
	return insp, nil
}

func (e Engine) persistSession(ctx context.Context, insp *domain.Inspection, sess *form.Session, now string) error {
	return e.persistSessionEvent(ctx, insp, sess, now, "", "", nil)
}

func (e Engine) persistSessionEvent(ctx context.Context, insp *domain.Inspection, sess *form.Session, now, evtType, actorID string, payload events.EventPayload) error {
	answersJSON, err := json.Marshal(sess.Answers())
	if err != nil {
		return err
	}
	insp.AnswersJSON = string(answersJSON)
	insp.Section = sess.Section()
	if errs := sess.Errors(); len(errs) > 0 {
		data, err := json.Marshal(errs)
		if err != nil {
			return err
		}
		s := string(data)
		insp.ErrorsJSON = &s
	} else {
		insp.ErrorsJSON = nil
	}
	score := sess.Score()
	insp.Score = &score.Total
	insp.MaxScore = &score.Max
	insp.Percentage = &score.Percentage
	insp.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateInspection(ctx, tx, *insp); err != nil {
		return err
	}
	if evtType != "" {
		if err := e.Events.Append(ctx, tx, evtType, "inspection", insp.ID, actorID, payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// hydrate rebuilds a live session from an inspection's pinned template and
// stored answers, positioned at the stored section.
func (e Engine) hydrate(ctx context.Context, inspectionID string) (domain.Inspection, *form.Session, error) {
	insp, err := e.Repo.GetInspection(ctx, inspectionID)
	if err != nil {
		return domain.Inspection{}, nil, err
	}
	tmpl, err := form.ParseTemplate([]byte(insp.TemplateJSON))
	if err != nil {
		return domain.Inspection{}, nil, fmt.Errorf("pinned template of %s: %w", insp.ID, err)
	}
	var answers map[string]form.Answer
	if insp.AnswersJSON != "" {
		if err := json.Unmarshal([]byte(insp.AnswersJSON), &answers); err != nil {
			return domain.Inspection{}, nil, fmt.Errorf("stored answers of %s: %w", insp.ID, err)
		}
	}
	sess, err := form.NewSession(tmpl, answers)
	if err != nil {
		return domain.Inspection{}, nil, err
	}
	sess.Now = e.now
	sess.Seek(insp.Section)
	return insp, sess, nil
}

// resolveOptions fills reference and preset-backed items with concrete
// option lists before the template is pinned.
func (e Engine) resolveOptions(ctx context.Context, tmpl *form.Template) error {
	var assetOpts, locationOpts []form.Option
	for si := range tmpl.Sections {
		for ii := range tmpl.Sections[si].Items {
			item := &tmpl.Sections[si].Items[ii]
			if len(item.Options) > 0 {
				continue
			}
			switch {
			case item.Type == form.TypeAssetRef:
				if assetOpts == nil {
					assets, err := e.Repo.ListAssets(ctx, "")
					if err != nil {
						return err
					}
					for _, a := range assets {
						assetOpts = append(assetOpts, form.Option{Value: a.ID, Label: a.Name, Subtitle: a.Category})
					}
				}
				item.Options = assetOpts
			case item.Type == form.TypeLocationRef:
				if locationOpts == nil {
					locations, err := e.Repo.ListLocations(ctx)
					if err != nil {
						return err
					}
					for _, l := range locations {
						locationOpts = append(locationOpts, form.Option{Value: l.ID, Label: l.Name})
					}
				}
				item.Options = locationOpts
			case item.OptionsKey != "":
				preset, ok := e.Config.Presets[item.OptionsKey]
				if !ok {
					return fmt.Errorf("item %s references unknown options preset %s", item.ID, item.OptionsKey)
				}
				for _, opt := range preset.Options {
					item.Options = append(item.Options, form.Option{
						Value: opt.Value,
						Label: opt.Label,
						Score: opt.Score,
						Color: opt.Color,
					})
				}
			}
		}
	}
	return nil
}
