package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/dac-governance/internal/model"
)

const darColumns = "id, reference_id, user_id, collection_id, status, project_title, rationale, " +
	"manual_review, parent_reference_id, create_date, sort_date, submission_date"

// GetDar fetches a DAR by reference id together with its dataset ids.
func (s *SQLStore) GetDar(ctx context.Context, referenceID string) (model.DataAccessRequest, error) {
	dars, err := s.queryDars(ctx, "SELECT "+darColumns+" FROM dar WHERE reference_id=?", referenceID)
	if err != nil {
		return model.DataAccessRequest{}, err
	}
	if len(dars) == 0 {
		return model.DataAccessRequest{}, ErrNotFound
	}
	return dars[0], nil
}

// CreateDar inserts the DAR row and its dataset links.
func (s *SQLStore) CreateDar(ctx context.Context, d *model.DataAccessRequest) error {
	return s.WithTx(ctx, func(tx Store) error {
		st := tx.(*SQLStore)
		res, err := st.q.ExecContext(ctx,
			"INSERT INTO dar (reference_id, user_id, collection_id, status, project_title, rationale, "+
				"manual_review, parent_reference_id, create_date, sort_date, submission_date) VALUES (?,?,?,?,?,?,?,?,?,?,?)",
			d.ReferenceID, d.UserID, nullUint(d.CollectionID), d.Data.Status, d.Data.ProjectTitle,
			d.Data.Rationale, d.Data.ManualReview, d.Data.ParentReferenceID,
			d.CreateDate, d.SortDate, d.SubmissionDate)
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
		d.ID = uint64(id)
		return st.replaceDarDatasets(ctx, d.ReferenceID, d.DatasetIDs)
	})
}

// UpdateDar writes the mutable columns.  collection_id is only set while
// it is still NULL so a DAR never moves between collections.
func (s *SQLStore) UpdateDar(ctx context.Context, d *model.DataAccessRequest) error {
	return s.WithTx(ctx, func(tx Store) error {
		st := tx.(*SQLStore)
		res, err := st.q.ExecContext(ctx,
			"UPDATE dar SET status=?, project_title=?, rationale=?, manual_review=?, parent_reference_id=?, "+
				"sort_date=?, submission_date=?, collection_id=COALESCE(collection_id, ?) WHERE reference_id=?",
			d.Data.Status, d.Data.ProjectTitle, d.Data.Rationale, d.Data.ManualReview,
			d.Data.ParentReferenceID, d.SortDate, d.SubmissionDate, nullUint(d.CollectionID), d.ReferenceID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := st.GetDar(ctx, d.ReferenceID); err != nil {
				return err
			}
		}
		if err := st.replaceDarDatasets(ctx, d.ReferenceID, d.DatasetIDs); err != nil {
			return err
		}
		stored, err := st.GetDar(ctx, d.ReferenceID)
		if err != nil {
			return err
		}
		*d = stored
		return nil
	})
}

func (s *SQLStore) replaceDarDatasets(ctx context.Context, referenceID string, ids []uint64) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM dar_dataset WHERE reference_id=?", referenceID); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	query := "INSERT INTO dar_dataset (reference_id, dataset_id) VALUES "
	args := make([]interface{}, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, referenceID, id)
	}
	_, err := s.q.ExecContext(ctx, query, args...)
	return err
}

// CreateCollection inserts an empty collection and sets c.ID.  ErrConflict
// when the dar_code is taken.  DARs join it through UpdateDar, so callers
// create and fill a collection inside one WithTx.
func (s *SQLStore) CreateCollection(ctx context.Context, c *model.DarCollection) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO dar_collection (dar_code, create_user_id, create_date) VALUES (?,?,?)",
		c.DarCode, c.CreateUserID, c.CreateDate)
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
	return nil
}

// GetCollection fetches a collection and every DAR attached to it.
func (s *SQLStore) GetCollection(ctx context.Context, id uint64) (model.DarCollection, error) {
	var c model.DarCollection
	err := s.q.QueryRowContext(ctx,
		"SELECT id, dar_code, create_user_id, create_date FROM dar_collection WHERE id=? LIMIT 1", id).
		Scan(&c.ID, &c.DarCode, &c.CreateUserID, &c.CreateDate)
	if err != nil {
		return model.DarCollection{}, notFound(err)
	}
	dars, err := s.queryDars(ctx, "SELECT "+darColumns+" FROM dar WHERE collection_id=?", id)
	if err != nil {
		return model.DarCollection{}, err
	}
	c.Dars = make(map[string]model.DataAccessRequest, len(dars))
	for _, d := range dars {
		c.Dars[d.ReferenceID] = d
	}
	return c, nil
}

// ListCollections returns every collection with its DARs, ordered by id.
// Filtering by viewer happens in the service layer.
func (s *SQLStore) ListCollections(ctx context.Context) ([]model.DarCollection, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT id FROM dar_collection ORDER BY id")
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.DarCollection, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetCollection(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLStore) queryDars(ctx context.Context, q string, args ...interface{}) ([]model.DataAccessRequest, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var dars []model.DataAccessRequest
	for rows.Next() {
		var (
			d          model.DataAccessRequest
			collection sql.NullInt64
			rationale  sql.NullString
			parent     sql.NullString
			submitted  sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.ReferenceID, &d.UserID, &collection, &d.Data.Status,
			&d.Data.ProjectTitle, &rationale, &d.Data.ManualReview, &parent,
			&d.CreateDate, &d.SortDate, &submitted); err != nil {
			rows.Close()
			return nil, err
		}
		d.CollectionID = uintPtr(collection)
		d.Data.Rationale = rationale.String
		d.Data.ParentReferenceID = parent.String
		if submitted.Valid {
			t := submitted.Time
			d.SubmissionDate = &t
		}
		dars = append(dars, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range dars {
		if dars[i].DatasetIDs, err = s.darDatasetIDs(ctx, dars[i].ReferenceID); err != nil {
			return nil, err
		}
	}
	return dars, nil
}

func (s *SQLStore) darDatasetIDs(ctx context.Context, referenceID string) ([]uint64, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT dataset_id FROM dar_dataset WHERE reference_id=? ORDER BY dataset_id", referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
