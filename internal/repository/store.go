package repository

import (
	"context"
	"time"

	"github.com/iliyamo/dac-governance/internal/model"
)

// UserStore persists users, their roles and their credentials.
type UserStore interface {
	GetUser(ctx context.Context, id uint64) (model.User, error)
	// GetUserCredentials returns the user and its bcrypt password hash.
	GetUserCredentials(ctx context.Context, email string) (model.User, string, error)
	CreateUser(ctx context.Context, u *model.User, passwordHash string) error
	SetUserInstitution(ctx context.Context, userID, institutionID uint64) error
	AddUserRole(ctx context.Context, userID uint64, role model.UserRole) error
	RemoveUserRole(ctx context.Context, userID uint64, role model.UserRole) error
	// ListDacMembers returns every user holding a Chairperson or Member
	// role scoped to the DAC.
	ListDacMembers(ctx context.Context, dacID uint64) ([]model.User, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	// ValidateRefresh returns the owning user of a live token or ErrNotFound.
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeRefresh(ctx context.Context, tokenHash string) error
}

// DatasetStore reads datasets and DACs.
type DatasetStore interface {
	GetDac(ctx context.Context, id uint64) (model.Dac, error)
	GetDataset(ctx context.Context, id uint64) (model.Dataset, error)
	ListDatasets(ctx context.Context, ids []uint64) ([]model.Dataset, error)
	ListDatasetsByConsent(ctx context.Context, consentID string) ([]model.Dataset, error)
}

// DarStore persists data access requests and collections.
type DarStore interface {
	GetDar(ctx context.Context, referenceID string) (model.DataAccessRequest, error)
	CreateDar(ctx context.Context, d *model.DataAccessRequest) error
	// UpdateDar writes the data payload, dataset ids and dates.  A
	// collection id is only written when the stored row has none.
	UpdateDar(ctx context.Context, d *model.DataAccessRequest) error
	CreateCollection(ctx context.Context, c *model.DarCollection) error
	GetCollection(ctx context.Context, id uint64) (model.DarCollection, error)
	ListCollections(ctx context.Context) ([]model.DarCollection, error)
}

// ElectionStore persists elections.
type ElectionStore interface {
	GetElection(ctx context.Context, id uint64) (model.Election, error)
	// LockElection reads an election and holds it for the rest of the
	// current transaction so concurrent tallies serialise.
	LockElection(ctx context.Context, id uint64) (model.Election, error)
	// FindOpenElection returns an open election of typ for the reference
	// whose dataset scope overlaps datasetID; dataset 0 overlaps all.
	FindOpenElection(ctx context.Context, referenceID string, typ model.ElectionType, datasetID uint64) (model.Election, error)
	ListOpenElections(ctx context.Context) ([]model.Election, error)
	// LatestElection returns the most recently created election of a type
	// for a reference, across datasets.
	LatestElection(ctx context.Context, referenceID string, typ model.ElectionType) (model.Election, error)
	ListElectionsByReference(ctx context.Context, referenceIDs []string) ([]model.Election, error)
	// CreateElection assigns ID and the next Version for the
	// (reference, type, dataset) key.
	CreateElection(ctx context.Context, e *model.Election) error
	UpdateElection(ctx context.Context, e *model.Election) error
	DeleteElection(ctx context.Context, id uint64) error
}

// VoteStore persists votes.
type VoteStore interface {
	CreateVotes(ctx context.Context, votes []model.Vote) ([]model.Vote, error)
	ListVotes(ctx context.Context, ids []uint64) ([]model.Vote, error)
	ListVotesByElection(ctx context.Context, electionID uint64) ([]model.Vote, error)
	UpdateVote(ctx context.Context, v model.Vote) error
	DeleteVote(ctx context.Context, id uint64) error
	DeleteVotesByElection(ctx context.Context, electionID uint64) error
}

// LibraryCardStore persists library cards.
type LibraryCardStore interface {
	GetLibraryCard(ctx context.Context, id uint64) (model.LibraryCard, error)
	ListLibraryCards(ctx context.Context, userID uint64) ([]model.LibraryCard, error)
	// CreateLibraryCard returns ErrConflict when the user already holds a
	// card for the institution.
	CreateLibraryCard(ctx context.Context, c *model.LibraryCard) error
	DeleteLibraryCard(ctx context.Context, id uint64) error
}

// Store is the persistence gateway.  WithTx runs fn against a Store bound
// to a single transaction; the transaction commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	UserStore
	TokenStore
	DatasetStore
	DarStore
	ElectionStore
	VoteStore
	LibraryCardStore
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
