package repo

import (
	"context"
	"database/sql"
	"strings"

	"formline/internal/domain"
)

const inspectionCols = `id,template_id,template_version,template_json,sequence,status,section,answers_json,errors_json,score,max_score,percentage,passed,author_id,created_at,updated_at,submitted_at`

func scanInspection(scan func(dest ...any) error) (domain.Inspection, error) {
	var i domain.Inspection
	var sequence, errorsJSON, submittedAt sql.NullString
	var score, maxScore, percentage sql.NullFloat64
	var passed sql.NullBool
	err := scan(&i.ID, &i.TemplateID, &i.TemplateVersion, &i.TemplateJSON, &sequence, &i.Status, &i.Section,
		&i.AnswersJSON, &errorsJSON, &score, &maxScore, &percentage, &passed, &i.AuthorID,
		&i.CreatedAt, &i.UpdatedAt, &submittedAt)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	if err != nil {
		return i, err
	}
	if sequence.Valid {
		i.Sequence = &sequence.String
	}
	if errorsJSON.Valid {
		i.ErrorsJSON = &errorsJSON.String
	}
	if score.Valid {
		i.Score = &score.Float64
	}
	if maxScore.Valid {
		i.MaxScore = &maxScore.Float64
	}
	if percentage.Valid {
		i.Percentage = &percentage.Float64
	}
	if passed.Valid {
		i.Passed = &passed.Bool
	}
	if submittedAt.Valid {
		i.SubmittedAt = &submittedAt.String
	}
	return i, nil
}

func (r Repo) InsertInspection(ctx context.Context, tx *sql.Tx, i domain.Inspection) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO inspections(`+inspectionCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		i.ID, i.TemplateID, i.TemplateVersion, i.TemplateJSON, nullableStringPtr(i.Sequence), i.Status, i.Section,
		i.AnswersJSON, nullableStringPtr(i.ErrorsJSON), nullableFloatPtr(i.Score), nullableFloatPtr(i.MaxScore),
		nullableFloatPtr(i.Percentage), nullableBoolPtr(i.Passed), i.AuthorID, i.CreatedAt, i.UpdatedAt,
		nullableStringPtr(i.SubmittedAt))
	return err
}

// UpdateInspection rewrites the mutable columns of a draft or submitted
// inspection.
func (r Repo) UpdateInspection(ctx context.Context, tx *sql.Tx, i domain.Inspection) error {
	res, err := tx.ExecContext(ctx, `UPDATE inspections SET sequence=?, status=?, section=?, answers_json=?, errors_json=?, score=?, max_score=?, percentage=?, passed=?, updated_at=?, submitted_at=? WHERE id=?`,
		nullableStringPtr(i.Sequence), i.Status, i.Section, i.AnswersJSON, nullableStringPtr(i.ErrorsJSON),
		nullableFloatPtr(i.Score), nullableFloatPtr(i.MaxScore), nullableFloatPtr(i.Percentage),
		nullableBoolPtr(i.Passed), i.UpdatedAt, nullableStringPtr(i.SubmittedAt), i.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetInspection(ctx context.Context, id string) (domain.Inspection, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+inspectionCols+` FROM inspections WHERE id=?`, id)
	return scanInspection(row.Scan)
}

func (r Repo) GetInspectionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Inspection, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+inspectionCols+` FROM inspections WHERE id=?`, id)
	return scanInspection(row.Scan)
}

// DraftInspection returns the author's open draft for a template, if any.
func (r Repo) DraftInspection(ctx context.Context, templateID, authorID string) (domain.Inspection, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+inspectionCols+` FROM inspections WHERE template_id=? AND author_id=? AND status='draft' ORDER BY created_at DESC, id DESC LIMIT 1`,
		templateID, authorID)
	return scanInspection(row.Scan)
}

type InspectionFilters struct {
	TemplateID      string
	Status          string
	AuthorID        string
	Passed          *bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListInspections(ctx context.Context, f InspectionFilters) ([]domain.Inspection, error) {
	var clauses []string
	var args []any
	if f.TemplateID != "" {
		clauses = append(clauses, "template_id=?")
		args = append(args, f.TemplateID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AuthorID != "" {
		clauses = append(clauses, "author_id=?")
		args = append(args, f.AuthorID)
	}
	if f.Passed != nil {
		clauses = append(clauses, "passed=?")
		args = append(args, *f.Passed)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + inspectionCols + ` FROM inspections ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Inspection
	for rows.Next() {
		i, err := scanInspection(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBoolPtr(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
