package repo

import (
	"context"
	"database/sql"

	"formline/internal/domain"
)

func (r Repo) InsertAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assets(id,name,category,location_id,status,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.Name, nullable(a.Category), nullableStringPtr(a.LocationID), a.Status, a.CreatedAt)
	return err
}

func (r Repo) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	var a domain.Asset
	var category sql.NullString
	var locationID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,category,location_id,status,created_at FROM assets WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &category, &locationID, &a.Status, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if category.Valid {
		a.Category = category.String
	}
	if locationID.Valid {
		a.LocationID = &locationID.String
	}
	return a, nil
}

// ListAssets returns active assets, optionally filtered by location.
func (r Repo) ListAssets(ctx context.Context, locationID string) ([]domain.Asset, error) {
	query := `SELECT id,name,category,location_id,status,created_at FROM assets WHERE status='active'`
	var args []any
	if locationID != "" {
		query += ` AND location_id=?`
		args = append(args, locationID)
	}
	query += ` ORDER BY name ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var category, locID sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &category, &locID, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		if category.Valid {
			a.Category = category.String
		}
		if locID.Valid {
			a.LocationID = &locID.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) RetireAsset(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE assets SET status='retired' WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertLocation(ctx context.Context, tx *sql.Tx, l domain.Location) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO locations(id,name,parent_id,created_at) VALUES (?,?,?,?)`,
		l.ID, l.Name, nullableStringPtr(l.ParentID), l.CreatedAt)
	return err
}

func (r Repo) GetLocation(ctx context.Context, id string) (domain.Location, error) {
	var l domain.Location
	var parentID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,parent_id,created_at FROM locations WHERE id=?`, id).
		Scan(&l.ID, &l.Name, &parentID, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if parentID.Valid {
		l.ParentID = &parentID.String
	}
	return l, nil
}

func (r Repo) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,parent_id,created_at FROM locations ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Location
	for rows.Next() {
		var l domain.Location
		var parentID sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &parentID, &l.CreatedAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			l.ParentID = &parentID.String
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
