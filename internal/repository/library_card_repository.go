package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/dac-governance/internal/model"
)

const libraryCardColumns = "id, user_id, institution_id, era_commons_id, create_user_id, created_at"

func scanLibraryCard(row interface{ Scan(...interface{}) error }, c *model.LibraryCard) error {
	var era sql.NullString
	if err := row.Scan(&c.ID, &c.UserID, &c.InstitutionID, &era, &c.CreateUserID, &c.CreatedAt); err != nil {
		return err
	}
	c.EraCommonsID = era.String
	return nil
}

// GetLibraryCard returns ErrNotFound for unknown ids.
func (s *SQLStore) GetLibraryCard(ctx context.Context, id uint64) (model.LibraryCard, error) {
	var c model.LibraryCard
	err := scanLibraryCard(s.q.QueryRowContext(ctx,
		"SELECT "+libraryCardColumns+" FROM library_card WHERE id=? LIMIT 1", id), &c)
	return c, notFound(err)
}

// ListLibraryCards returns a user's cards, oldest first.
func (s *SQLStore) ListLibraryCards(ctx context.Context, userID uint64) ([]model.LibraryCard, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+libraryCardColumns+" FROM library_card WHERE user_id=? ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LibraryCard
	for rows.Next() {
		var c model.LibraryCard
		if err := scanLibraryCard(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateLibraryCard relies on the (user_id, institution_id) unique key.
func (s *SQLStore) CreateLibraryCard(ctx context.Context, c *model.LibraryCard) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO library_card (user_id, institution_id, era_commons_id, create_user_id) VALUES (?,?,?,?)",
		c.UserID, c.InstitutionID, c.EraCommonsID, c.CreateUserID)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return s.q.QueryRowContext(ctx, "SELECT created_at FROM library_card WHERE id=?", c.ID).Scan(&c.CreatedAt)
}

// DeleteLibraryCard returns ErrNotFound when nothing was deleted.
func (s *SQLStore) DeleteLibraryCard(ctx context.Context, id uint64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM library_card WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
