package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/dac-governance/internal/model"
)

const datasetColumns = "id, name, dac_id, consent_id, custodian_user_id, needs_collaborator_letter, needs_ethics_approval, active"

// GetDac returns ErrNotFound for unknown ids.
func (s *SQLStore) GetDac(ctx context.Context, id uint64) (model.Dac, error) {
	var d model.Dac
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM dac WHERE id=? LIMIT 1", id).
		Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt)
	return d, notFound(err)
}

// GetDataset returns ErrNotFound for unknown ids.
func (s *SQLStore) GetDataset(ctx context.Context, id uint64) (model.Dataset, error) {
	sets, err := s.queryDatasets(ctx, "SELECT "+datasetColumns+" FROM dataset WHERE id=?", id)
	if err != nil {
		return model.Dataset{}, err
	}
	if len(sets) == 0 {
		return model.Dataset{}, ErrNotFound
	}
	return sets[0], nil
}

// ListDatasets returns the datasets among ids that exist, ordered by id.
func (s *SQLStore) ListDatasets(ctx context.Context, ids []uint64) ([]model.Dataset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryDatasets(ctx,
		"SELECT "+datasetColumns+" FROM dataset WHERE id IN ("+placeholders(len(ids))+") ORDER BY id", args...)
}

// ListDatasetsByConsent returns the datasets registered under a consent.
func (s *SQLStore) ListDatasetsByConsent(ctx context.Context, consentID string) ([]model.Dataset, error) {
	if consentID == "" {
		return nil, nil
	}
	return s.queryDatasets(ctx,
		"SELECT "+datasetColumns+" FROM dataset WHERE consent_id=? ORDER BY id", consentID)
}

func (s *SQLStore) queryDatasets(ctx context.Context, q string, args ...interface{}) ([]model.Dataset, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Dataset
	for rows.Next() {
		var (
			d         model.Dataset
			consent   sql.NullString
			custodian sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.DacID, &consent, &custodian,
			&d.NeedsCollaboratorLetter, &d.NeedsEthicsApproval, &d.Active); err != nil {
			return nil, err
		}
		d.ConsentID = consent.String
		d.CustodianUserID = uintPtr(custodian)
		out = append(out, d)
	}
	return out, rows.Err()
}
