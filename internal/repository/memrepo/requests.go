package memrepo

import (
	"context"
	"sort"

	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
)

func (m *Store) GetDar(ctx context.Context, referenceID string) (model.DataAccessRequest, error) {
	defer m.lock()()
	d, ok := m.s.dars[referenceID]
	if !ok {
		return model.DataAccessRequest{}, repository.ErrNotFound
	}
	return copyDar(d), nil
}

func (m *Store) CreateDar(ctx context.Context, d *model.DataAccessRequest) error {
	defer m.lock()()
	if _, ok := m.s.dars[d.ReferenceID]; ok {
		return repository.ErrConflict
	}
	d.ID = m.nextID()
	m.s.dars[d.ReferenceID] = copyDar(*d)
	return nil
}

func (m *Store) UpdateDar(ctx context.Context, d *model.DataAccessRequest) error {
	defer m.lock()()
	stored, ok := m.s.dars[d.ReferenceID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Data = d.Data
	stored.DatasetIDs = append([]uint64(nil), d.DatasetIDs...)
	stored.SortDate = d.SortDate
	stored.SubmissionDate = d.SubmissionDate
	if stored.CollectionID == nil && d.CollectionID != nil {
		cid := *d.CollectionID
		stored.CollectionID = &cid
	}
	m.s.dars[d.ReferenceID] = stored
	*d = copyDar(stored)
	return nil
}

func (m *Store) CreateCollection(ctx context.Context, c *model.DarCollection) error {
	defer m.lock()()
	c.ID = m.nextID()
	row := *c
	row.Dars = nil
	m.s.collections[c.ID] = row
	return nil
}

func (m *Store) GetCollection(ctx context.Context, id uint64) (model.DarCollection, error) {
	defer m.lock()()
	return m.collection(id)
}

func (m *Store) collection(id uint64) (model.DarCollection, error) {
	c, ok := m.s.collections[id]
	if !ok {
		return model.DarCollection{}, repository.ErrNotFound
	}
	c.Dars = map[string]model.DataAccessRequest{}
	for ref, d := range m.s.dars {
		if d.CollectionID != nil && *d.CollectionID == id {
			c.Dars[ref] = copyDar(d)
		}
	}
	return c, nil
}

func (m *Store) ListCollections(ctx context.Context) ([]model.DarCollection, error) {
	defer m.lock()()
	out := make([]model.DarCollection, 0, len(m.s.collections))
	for id := range m.s.collections {
		c, _ := m.collection(id)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Elections ----

func (m *Store) GetElection(ctx context.Context, id uint64) (model.Election, error) {
	defer m.lock()()
	e, ok := m.s.elections[id]
	if !ok {
		return model.Election{}, repository.ErrNotFound
	}
	return e, nil
}

// LockElection is GetElection; the store lock already serialises writers.
func (m *Store) LockElection(ctx context.Context, id uint64) (model.Election, error) {
	return m.GetElection(ctx, id)
}

func (m *Store) FindOpenElection(ctx context.Context, referenceID string, typ model.ElectionType, datasetID uint64) (model.Election, error) {
	defer m.lock()()
	for _, e := range m.s.elections {
		if e.ReferenceID != referenceID || e.Type != typ || e.Status != model.ElectionOpen {
			continue
		}
		if e.DatasetID == datasetID || e.DatasetID == 0 || datasetID == 0 {
			return e, nil
		}
	}
	return model.Election{}, repository.ErrNotFound
}

func (m *Store) ListOpenElections(ctx context.Context) ([]model.Election, error) {
	defer m.lock()()
	var out []model.Election
	for _, e := range m.s.elections {
		if e.Status == model.ElectionOpen {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) LatestElection(ctx context.Context, referenceID string, typ model.ElectionType) (model.Election, error) {
	defer m.lock()()
	var latest model.Election
	for _, e := range m.s.elections {
		if e.ReferenceID != referenceID || e.Type != typ {
			continue
		}
		if latest.ID == 0 || e.ID > latest.ID {
			latest = e
		}
	}
	if latest.ID == 0 {
		return model.Election{}, repository.ErrNotFound
	}
	return latest, nil
}

func (m *Store) ListElectionsByReference(ctx context.Context, referenceIDs []string) ([]model.Election, error) {
	defer m.lock()()
	want := map[string]bool{}
	for _, r := range referenceIDs {
		want[r] = true
	}
	var out []model.Election
	for _, e := range m.s.elections {
		if want[e.ReferenceID] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) CreateElection(ctx context.Context, e *model.Election) error {
	defer m.lock()()
	version := 0
	for _, other := range m.s.elections {
		if other.ReferenceID == e.ReferenceID && other.Type == e.Type && other.DatasetID == e.DatasetID && other.Version > version {
			version = other.Version
		}
	}
	e.ID = m.nextID()
	e.Version = version + 1
	m.s.elections[e.ID] = *e
	return nil
}

func (m *Store) UpdateElection(ctx context.Context, e *model.Election) error {
	defer m.lock()()
	if _, ok := m.s.elections[e.ID]; !ok {
		return repository.ErrNotFound
	}
	m.s.elections[e.ID] = *e
	return nil
}

func (m *Store) DeleteElection(ctx context.Context, id uint64) error {
	defer m.lock()()
	if _, ok := m.s.elections[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.s.elections, id)
	return nil
}

// ---- Votes ----

func (m *Store) CreateVotes(ctx context.Context, votes []model.Vote) ([]model.Vote, error) {
	defer m.lock()()
	out := make([]model.Vote, 0, len(votes))
	for _, v := range votes {
		for _, existing := range m.s.votes {
			if existing.ElectionID == v.ElectionID && existing.UserID == v.UserID && existing.Type == v.Type {
				return nil, repository.ErrConflict
			}
		}
		v.ID = m.nextID()
		m.s.votes[v.ID] = v
		out = append(out, v)
	}
	return out, nil
}

func (m *Store) ListVotes(ctx context.Context, ids []uint64) ([]model.Vote, error) {
	defer m.lock()()
	out := make([]model.Vote, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.s.votes[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Store) ListVotesByElection(ctx context.Context, electionID uint64) ([]model.Vote, error) {
	defer m.lock()()
	var out []model.Vote
	for _, v := range m.s.votes {
		if v.ElectionID == electionID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) UpdateVote(ctx context.Context, v model.Vote) error {
	defer m.lock()()
	if _, ok := m.s.votes[v.ID]; !ok {
		return repository.ErrNotFound
	}
	m.s.votes[v.ID] = v
	return nil
}

func (m *Store) DeleteVote(ctx context.Context, id uint64) error {
	defer m.lock()()
	if _, ok := m.s.votes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.s.votes, id)
	return nil
}

func (m *Store) DeleteVotesByElection(ctx context.Context, electionID uint64) error {
	defer m.lock()()
	for id, v := range m.s.votes {
		if v.ElectionID == electionID {
			delete(m.s.votes, id)
		}
	}
	return nil
}

// ---- Library cards ----

func (m *Store) GetLibraryCard(ctx context.Context, id uint64) (model.LibraryCard, error) {
	defer m.lock()()
	c, ok := m.s.libraryCards[id]
	if !ok {
		return model.LibraryCard{}, repository.ErrNotFound
	}
	return c, nil
}

func (m *Store) ListLibraryCards(ctx context.Context, userID uint64) ([]model.LibraryCard, error) {
	defer m.lock()()
	var out []model.LibraryCard
	for _, c := range m.s.libraryCards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) CreateLibraryCard(ctx context.Context, c *model.LibraryCard) error {
	defer m.lock()()
	for _, existing := range m.s.libraryCards {
		if existing.UserID == c.UserID && existing.InstitutionID == c.InstitutionID {
			return repository.ErrConflict
		}
	}
	c.ID = m.nextID()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.clock()
	}
	m.s.libraryCards[c.ID] = *c
	return nil
}

func (m *Store) DeleteLibraryCard(ctx context.Context, id uint64) error {
	defer m.lock()()
	if _, ok := m.s.libraryCards[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.s.libraryCards, id)
	return nil
}
