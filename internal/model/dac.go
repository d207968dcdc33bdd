package model

import "time"

// Dac is a Data Access Committee.  The committee roster is not stored on
// the row itself; it is the set of users holding a Chairperson or Member
// role scoped to the DAC.
type Dac struct {
	ID          uint64    `json:"dacId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createDate"`
}

// Dataset is a collection of data owned by exactly one DAC.
//
// Fields:
//  ID                      – primary key identifier.
//  Name                    – display name.
//  DacID                   – owning committee.
//  ConsentID               – consent whose data use letter must be
//                            translated before access can be voted on;
//                            empty when the dataset has none.
//  CustodianUserID         – user approving DataSet elections, if any.
//  NeedsCollaboratorLetter – data use flag.
//  NeedsEthicsApproval     – data use flag.
//  Active                  – inactive datasets cannot be requested.
type Dataset struct {
	ID                      uint64  `json:"datasetId"`
	Name                    string  `json:"name"`
	DacID                   uint64  `json:"dacId"`
	ConsentID               string  `json:"consentId,omitempty"`
	CustodianUserID         *uint64 `json:"custodianUserId,omitempty"`
	NeedsCollaboratorLetter bool    `json:"needsCollaboratorLetter"`
	NeedsEthicsApproval     bool    `json:"needsEthicsApproval"`
	Active                  bool    `json:"active"`
}

// LibraryCard is the credential proving a researcher's institutional
// standing.  A user holds at most one card per institution.
type LibraryCard struct {
	ID            uint64    `json:"id"`
	UserID        uint64    `json:"userId"`
	InstitutionID uint64    `json:"institutionId"`
	EraCommonsID  string    `json:"eraCommonsId,omitempty"`
	CreateUserID  uint64    `json:"createUserId"`
	CreatedAt     time.Time `json:"createDate"`
}
