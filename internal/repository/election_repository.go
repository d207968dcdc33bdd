package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/dac-governance/internal/model"
)

const electionColumns = "id, reference_id, dataset_id, election_type, status, create_date, last_update, " +
	"final_vote, final_rationale, version"

// GetElection reads one election without locking it.  It returns
// ErrNotFound when no row has the id.
func (s *SQLStore) GetElection(ctx context.Context, id uint64) (model.Election, error) {
	return s.oneElection(ctx, "SELECT "+electionColumns+" FROM election WHERE id=?", id)
}

// LockElection reads the election row with SELECT ... FOR UPDATE.  It must
// run inside WithTx for the lock to outlive the statement; callers locking
// several elections take them in ascending id order so two batches cannot
// deadlock.
func (s *SQLStore) LockElection(ctx context.Context, id uint64) (model.Election, error) {
	return s.oneElection(ctx, "SELECT "+electionColumns+" FROM election WHERE id=? FOR UPDATE", id)
}

// FindOpenElection returns the newest open election of typ for referenceID
// whose scope overlaps datasetID.  Dataset 0 is the whole request, so it
// overlaps every dataset and every dataset overlaps it.  It returns
// ErrNotFound when none is open.  Run it inside the transaction that
// creates the election so the check and the insert see the same rows.
func (s *SQLStore) FindOpenElection(ctx context.Context, referenceID string, typ model.ElectionType, datasetID uint64) (model.Election, error) {
	return s.oneElection(ctx,
		"SELECT "+electionColumns+" FROM election WHERE reference_id=? AND election_type=? AND status=? "+
			"AND (dataset_id=? OR dataset_id=0 OR ?=0) ORDER BY id DESC LIMIT 1",
		referenceID, typ, model.ElectionOpen, datasetID, datasetID)
}

// ListOpenElections returns every open election ordered by id.  Roster
// changes use it to find the elections whose voters must follow the DAC.
func (s *SQLStore) ListOpenElections(ctx context.Context) ([]model.Election, error) {
	return s.queryElections(ctx,
		"SELECT "+electionColumns+" FROM election WHERE status=? ORDER BY id", model.ElectionOpen)
}

// LatestElection returns the most recently created election of typ for
// referenceID across datasets, or ErrNotFound.
func (s *SQLStore) LatestElection(ctx context.Context, referenceID string, typ model.ElectionType) (model.Election, error) {
	return s.oneElection(ctx,
		"SELECT "+electionColumns+" FROM election WHERE reference_id=? AND election_type=? ORDER BY id DESC LIMIT 1",
		referenceID, typ)
}

// ListElectionsByReference returns the elections of the references in id
// order, which is creation order.  An empty list returns nil.
func (s *SQLStore) ListElectionsByReference(ctx context.Context, referenceIDs []string) ([]model.Election, error) {
	if len(referenceIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(referenceIDs))
	for i, r := range referenceIDs {
		args[i] = r
	}
	return s.queryElections(ctx,
		"SELECT "+electionColumns+" FROM election WHERE reference_id IN ("+placeholders(len(args))+") ORDER BY id",
		args...)
}

// CreateElection inserts the election with the next version number for
// its (reference, type, dataset) key and sets e.ID and e.Version.  The
// version read and the insert are two statements, so call it inside
// WithTx.  A duplicate key maps to ErrConflict.
func (s *SQLStore) CreateElection(ctx context.Context, e *model.Election) error {
	var version int
	err := s.q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM election WHERE reference_id=? AND election_type=? AND dataset_id=?",
		e.ReferenceID, e.Type, e.DatasetID).Scan(&version)
	if err != nil {
		return err
	}
	e.Version = version + 1
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO election (reference_id, dataset_id, election_type, status, create_date, last_update, "+
			"final_vote, final_rationale, version) VALUES (?,?,?,?,?,?,?,?,?)",
		e.ReferenceID, e.DatasetID, e.Type, e.Status, e.CreateDate, e.LastUpdate,
		nullBool(e.FinalVote), e.FinalRationale, e.Version)
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
	e.ID = uint64(id)
	return nil
}

// UpdateElection writes status, last update and the final decision.  The
// reference, type and dataset of an election never change.  It returns
// ErrNotFound when the row is gone.
func (s *SQLStore) UpdateElection(ctx context.Context, e *model.Election) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE election SET status=?, last_update=?, final_vote=?, final_rationale=? WHERE id=?",
		e.Status, e.LastUpdate, nullBool(e.FinalVote), e.FinalRationale, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetElection(ctx, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteElection removes the election row.  Delete its votes first in the
// same transaction; the vote table references the election.
func (s *SQLStore) DeleteElection(ctx context.Context, id uint64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM election WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) oneElection(ctx context.Context, q string, args ...interface{}) (model.Election, error) {
	list, err := s.queryElections(ctx, q, args...)
	if err != nil {
		return model.Election{}, err
	}
	if len(list) == 0 {
		return model.Election{}, ErrNotFound
	}
	return list[0], nil
}

func (s *SQLStore) queryElections(ctx context.Context, q string, args ...interface{}) ([]model.Election, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Election
	for rows.Next() {
		var (
			e          model.Election
			lastUpdate sql.NullTime
			finalVote  sql.NullBool
			rationale  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ReferenceID, &e.DatasetID, &e.Type, &e.Status, &e.CreateDate,
			&lastUpdate, &finalVote, &rationale, &e.Version); err != nil {
			return nil, err
		}
		if lastUpdate.Valid {
			t := lastUpdate.Time
			e.LastUpdate = &t
		}
		e.FinalVote = boolPtr(finalVote)
		e.FinalRationale = rationale.String
		out = append(out, e)
	}
	return out, rows.Err()
}
