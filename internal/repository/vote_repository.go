package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/dac-governance/internal/model"
)

const voteColumns = "id, election_id, user_id, vote_type, vote, rationale, create_date, update_date"

// CreateVotes inserts the votes and returns them with ids assigned.  The
// inserts are separate statements: call it inside WithTx so a failure
// part way leaves no votes behind.  A second vote of the same type for a
// user on one election maps to ErrConflict.
func (s *SQLStore) CreateVotes(ctx context.Context, votes []model.Vote) ([]model.Vote, error) {
	out := make([]model.Vote, 0, len(votes))
	for _, v := range votes {
		res, err := s.q.ExecContext(ctx,
			"INSERT INTO vote (election_id, user_id, vote_type, vote, rationale, create_date, update_date) VALUES (?,?,?,?,?,?,?)",
			v.ElectionID, v.UserID, v.Type, nullBool(v.Vote), v.Rationale, v.CreateDate, v.UpdateDate)
		if err != nil {
			if isDuplicate(err) {
				return nil, ErrConflict
			}
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		v.ID = uint64(id)
		out = append(out, v)
	}
	return out, nil
}

// ListVotes returns the votes among ids that exist, ordered by id.
func (s *SQLStore) ListVotes(ctx context.Context, ids []uint64) ([]model.Vote, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryVotes(ctx,
		"SELECT "+voteColumns+" FROM vote WHERE id IN ("+placeholders(len(ids))+") ORDER BY id", args...)
}

// ListVotesByElection returns every vote of the election ordered by id.
// Tallies read it after LockElection so the set cannot change underneath.
func (s *SQLStore) ListVotesByElection(ctx context.Context, electionID uint64) ([]model.Vote, error) {
	return s.queryVotes(ctx, "SELECT "+voteColumns+" FROM vote WHERE election_id=? ORDER BY id", electionID)
}

// UpdateVote writes the value, rationale and update date of v.  Election,
// user and type are immutable.  It returns ErrNotFound for a missing vote.
func (s *SQLStore) UpdateVote(ctx context.Context, v model.Vote) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE vote SET vote=?, rationale=?, update_date=? WHERE id=?",
		nullBool(v.Vote), v.Rationale, v.UpdateDate, v.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := s.q.QueryRowContext(ctx, "SELECT 1 FROM vote WHERE id=?", v.ID).Scan(&exists)
		return notFound(err)
	}
	return nil
}

// DeleteVote removes a single vote, as when its voter leaves the DAC.  It
// returns ErrNotFound when the vote does not exist.
func (s *SQLStore) DeleteVote(ctx context.Context, id uint64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM vote WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVotesByElection removes every vote of the election.  Deleting an
// election with no votes is not an error.
func (s *SQLStore) DeleteVotesByElection(ctx context.Context, electionID uint64) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM vote WHERE election_id=?", electionID)
	return err
}

func (s *SQLStore) queryVotes(ctx context.Context, q string, args ...interface{}) ([]model.Vote, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Vote
	for rows.Next() {
		var (
			v         model.Vote
			value     sql.NullBool
			rationale sql.NullString
			updated   sql.NullTime
		)
		if err := rows.Scan(&v.ID, &v.ElectionID, &v.UserID, &v.Type, &value, &rationale,
			&v.CreateDate, &updated); err != nil {
			return nil, err
		}
		v.Vote = boolPtr(value)
		v.Rationale = rationale.String
		if updated.Valid {
			t := updated.Time
			v.UpdateDate = &t
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
