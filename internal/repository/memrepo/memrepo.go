// Package memrepo is an in-memory implementation of repository.Store.  It
// backs the test suites and the APP_STORE=memory development mode.  All
// operations serialise on one mutex; WithTx holds it for the whole
// callback and restores a snapshot when the callback fails.
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
)

type refreshRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

type state struct {
	seq          uint64
	users        map[uint64]model.User
	passwords    map[uint64]string
	tokens       map[string]refreshRow
	dacs         map[uint64]model.Dac
	datasets     map[uint64]model.Dataset
	dars         map[string]model.DataAccessRequest
	collections  map[uint64]model.DarCollection
	elections    map[uint64]model.Election
	votes        map[uint64]model.Vote
	libraryCards map[uint64]model.LibraryCard
}

// Store is safe for concurrent use.
type Store struct {
	mu    *sync.Mutex
	s     *state
	inTx  bool
	clock func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		s: &state{
			users:        map[uint64]model.User{},
			passwords:    map[uint64]string{},
			tokens:       map[string]refreshRow{},
			dacs:         map[uint64]model.Dac{},
			datasets:     map[uint64]model.Dataset{},
			dars:         map[string]model.DataAccessRequest{},
			collections:  map[uint64]model.DarCollection{},
			elections:    map[uint64]model.Election{},
			votes:        map[uint64]model.Vote{},
			libraryCards: map[uint64]model.LibraryCard{},
		},
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (m *Store) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Store) nextID() uint64 {
	m.s.seq++
	return m.s.seq
}

// reserve keeps generated ids clear of an explicitly seeded id.
func (m *Store) reserve(id uint64) {
	if id > m.s.seq {
		m.s.seq = id
	}
}

// WithTx runs fn while holding the store lock.  Changes made by fn are
// discarded when it returns an error.
func (m *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.s.clone()
	tx := &Store{mu: m.mu, s: m.s, inTx: true, clock: m.clock}
	if err := fn(tx); err != nil {
		*m.s = *snap
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := &state{
		seq:          s.seq,
		users:        make(map[uint64]model.User, len(s.users)),
		passwords:    make(map[uint64]string, len(s.passwords)),
		tokens:       make(map[string]refreshRow, len(s.tokens)),
		dacs:         make(map[uint64]model.Dac, len(s.dacs)),
		datasets:     make(map[uint64]model.Dataset, len(s.datasets)),
		dars:         make(map[string]model.DataAccessRequest, len(s.dars)),
		collections:  make(map[uint64]model.DarCollection, len(s.collections)),
		elections:    make(map[uint64]model.Election, len(s.elections)),
		votes:        make(map[uint64]model.Vote, len(s.votes)),
		libraryCards: make(map[uint64]model.LibraryCard, len(s.libraryCards)),
	}
	for k, v := range s.users {
		c.users[k] = copyUser(v)
	}
	for k, v := range s.passwords {
		c.passwords[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.dacs {
		c.dacs[k] = v
	}
	for k, v := range s.datasets {
		c.datasets[k] = v
	}
	for k, v := range s.dars {
		c.dars[k] = copyDar(v)
	}
	for k, v := range s.collections {
		c.collections[k] = v
	}
	for k, v := range s.elections {
		c.elections[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	for k, v := range s.libraryCards {
		c.libraryCards[k] = v
	}
	return c
}

func copyUser(u model.User) model.User {
	u.Roles = append([]model.UserRole(nil), u.Roles...)
	return u
}

func copyDar(d model.DataAccessRequest) model.DataAccessRequest {
	d.DatasetIDs = append([]uint64(nil), d.DatasetIDs...)
	return d
}

// ---- Seeding ----

// PutDac inserts or replaces a DAC.  A zero ID is assigned.
func (m *Store) PutDac(d model.Dac) model.Dac {
	defer m.lock()()
	if d.ID == 0 {
		d.ID = m.nextID()
	}
	m.reserve(d.ID)
	m.s.dacs[d.ID] = d
	return d
}

// PutDataset inserts or replaces a dataset.  A zero ID is assigned.
func (m *Store) PutDataset(d model.Dataset) model.Dataset {
	defer m.lock()()
	if d.ID == 0 {
		d.ID = m.nextID()
	}
	m.reserve(d.ID)
	m.s.datasets[d.ID] = d
	return d
}

// PutUser inserts or replaces a user.  A zero ID is assigned.
func (m *Store) PutUser(u model.User) model.User {
	defer m.lock()()
	if u.ID == 0 {
		u.ID = m.nextID()
	}
	m.reserve(u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.clock()
	}
	m.s.users[u.ID] = copyUser(u)
	return u
}

// ---- Users ----

func (m *Store) GetUser(ctx context.Context, id uint64) (model.User, error) {
	defer m.lock()()
	u, ok := m.s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return copyUser(u), nil
}

func (m *Store) GetUserCredentials(ctx context.Context, email string) (model.User, string, error) {
	defer m.lock()()
	for _, u := range m.s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), m.s.passwords[u.ID], nil
		}
	}
	return model.User{}, "", repository.ErrNotFound
}

func (m *Store) CreateUser(ctx context.Context, u *model.User, passwordHash string) error {
	defer m.lock()()
	for _, existing := range m.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrEmailExists
		}
	}
	u.ID = m.nextID()
	u.CreatedAt = m.clock()
	m.s.users[u.ID] = copyUser(*u)
	m.s.passwords[u.ID] = passwordHash
	return nil
}

func (m *Store) SetUserInstitution(ctx context.Context, userID, institutionID uint64) error {
	defer m.lock()()
	u, ok := m.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	inst := institutionID
	u.InstitutionID = &inst
	m.s.users[userID] = u
	return nil
}

func (m *Store) AddUserRole(ctx context.Context, userID uint64, role model.UserRole) error {
	defer m.lock()()
	u, ok := m.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.HasRoleInstance(role) {
		return repository.ErrConflict
	}
	u = copyUser(u)
	u.Roles = append(u.Roles, role)
	m.s.users[userID] = u
	return nil
}

func (m *Store) RemoveUserRole(ctx context.Context, userID uint64, role model.UserRole) error {
	defer m.lock()()
	u, ok := m.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	kept := make([]model.UserRole, 0, len(u.Roles))
	for _, r := range u.Roles {
		if !r.SameScope(role) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(u.Roles) {
		return repository.ErrNotFound
	}
	u.Roles = kept
	m.s.users[userID] = u
	return nil
}

func (m *Store) ListDacMembers(ctx context.Context, dacID uint64) ([]model.User, error) {
	defer m.lock()()
	var out []model.User
	for _, u := range m.s.users {
		for _, r := range u.Roles {
			if r.Name.DacScoped() && r.DacID != nil && *r.DacID == dacID {
				out = append(out, copyUser(u))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Tokens ----

func (m *Store) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	defer m.lock()()
	m.s.tokens[tokenHash] = refreshRow{userID: userID, exp: exp}
	return nil
}

func (m *Store) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	defer m.lock()()
	row, ok := m.s.tokens[tokenHash]
	if !ok || row.revoked || m.clock().After(row.exp) {
		return 0, repository.ErrNotFound
	}
	return row.userID, nil
}

func (m *Store) RevokeRefresh(ctx context.Context, tokenHash string) error {
	defer m.lock()()
	if row, ok := m.s.tokens[tokenHash]; ok {
		row.revoked = true
		m.s.tokens[tokenHash] = row
	}
	return nil
}

// ---- DACs and datasets ----

func (m *Store) GetDac(ctx context.Context, id uint64) (model.Dac, error) {
	defer m.lock()()
	d, ok := m.s.dacs[id]
	if !ok {
		return model.Dac{}, repository.ErrNotFound
	}
	return d, nil
}

func (m *Store) GetDataset(ctx context.Context, id uint64) (model.Dataset, error) {
	defer m.lock()()
	d, ok := m.s.datasets[id]
	if !ok {
		return model.Dataset{}, repository.ErrNotFound
	}
	return d, nil
}

func (m *Store) ListDatasets(ctx context.Context, ids []uint64) ([]model.Dataset, error) {
	defer m.lock()()
	out := make([]model.Dataset, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.s.datasets[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Store) ListDatasetsByConsent(ctx context.Context, consentID string) ([]model.Dataset, error) {
	defer m.lock()()
	var out []model.Dataset
	for _, d := range m.s.datasets {
		if consentID != "" && d.ConsentID == consentID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
