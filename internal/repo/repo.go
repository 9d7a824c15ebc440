package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"formline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const templateCols = `id,version,COALESCE(name,'') AS name,status,schema_json,created_at,updated_at`

func scanTemplate(scan func(dest ...any) error) (domain.TemplateRecord, error) {
	var t domain.TemplateRecord
	err := scan(&t.ID, &t.Version, &t.Name, &t.Status, &t.SchemaJSON, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.TemplateRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO templates(id,version,name,status,schema_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.Version, nullable(t.Name), t.Status, t.SchemaJSON, t.CreatedAt, t.UpdatedAt)
	return err
}

// GetTemplate returns a specific template version.
func (r Repo) GetTemplate(ctx context.Context, id, version string) (domain.TemplateRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateCols+` FROM templates WHERE id=? AND version=?`, id, version)
	return scanTemplate(row.Scan)
}

// LatestTemplate returns the newest active version of a template.
func (r Repo) LatestTemplate(ctx context.Context, id string) (domain.TemplateRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateCols+` FROM templates WHERE id=? AND status='active' ORDER BY created_at DESC, version DESC LIMIT 1`, id)
	return scanTemplate(row.Scan)
}

// ListTemplates returns the newest version of every template.
func (r Repo) ListTemplates(ctx context.Context, status string) ([]domain.TemplateRecord, error) {
	clauses := []string{"1=1"}
	var args []any
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT ` + templateCols + ` FROM templates t
WHERE ` + strings.Join(clauses, " AND ") + `
AND NOT EXISTS (SELECT 1 FROM templates newer WHERE newer.id=t.id AND newer.created_at > t.created_at)
ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TemplateRecord
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ArchiveTemplate marks all versions of a template archived. Archived
// templates cannot start new inspections; pinned snapshots keep old ones
// working.
func (r Repo) ArchiveTemplate(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE templates SET status='archived' WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextSequence reserves the next counter value for a prefix inside tx.
func (r Repo) NextSequence(ctx context.Context, tx *sql.Tx, prefix string) (int64, error) {
	if _, err := tx.ExecContext(ctx, `INSERT INTO sequences(prefix,next) VALUES (?,1) ON CONFLICT(prefix) DO NOTHING`, prefix); err != nil {
		return 0, err
	}
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT next FROM sequences WHERE prefix=?`, prefix).Scan(&n); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sequences SET next=next+1 WHERE prefix=?`, prefix); err != nil {
		return 0, err
	}
	return n, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
