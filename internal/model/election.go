package model

import "time"

// ElectionType identifies the decision an election resolves.
type ElectionType string

const (
	// ElectionDataAccess decides whether a researcher gets access to a dataset.
	ElectionDataAccess ElectionType = "DataAccess"
	// ElectionTranslateDUL approves the translation of a consent's data use letter.
	ElectionTranslateDUL ElectionType = "TranslateDUL"
	// ElectionRP reviews the research purpose of a request.
	ElectionRP ElectionType = "RP"
	// ElectionDataSet is the single data custodian approval.
	ElectionDataSet ElectionType = "DataSet"
)

// ParseElectionType resolves an election type from its API name.
func ParseElectionType(s string) (ElectionType, bool) {
	switch ElectionType(s) {
	case ElectionDataAccess, ElectionTranslateDUL, ElectionRP, ElectionDataSet:
		return ElectionType(s), true
	}
	return "", false
}

// ElectionStatus is the lifecycle state of an election.
type ElectionStatus string

const (
	ElectionOpen            ElectionStatus = "Open"
	ElectionClosed          ElectionStatus = "Closed"
	ElectionCanceled        ElectionStatus = "Canceled"
	ElectionPendingApproval ElectionStatus = "PendingApproval"
)

// Terminal reports whether no further transition is possible.
func (s ElectionStatus) Terminal() bool {
	return s == ElectionClosed || s == ElectionCanceled
}

// Election is one voting round for a reference (DAR or consent) and, for
// request elections, one dataset of that reference.
type Election struct {
	ID             uint64         `json:"electionId"`
	ReferenceID    string         `json:"referenceId"`
	DatasetID      uint64         `json:"datasetId"`
	Type           ElectionType   `json:"electionType"`
	Status         ElectionStatus `json:"status"`
	CreateDate     time.Time      `json:"createDate"`
	LastUpdate     *time.Time     `json:"lastUpdate,omitempty"`
	FinalVote      *bool          `json:"finalVote,omitempty"`
	FinalRationale string         `json:"finalRationale,omitempty"`
	Version        int            `json:"version"`
}

// VoteType is the capacity in which a participant votes.
type VoteType string

const (
	VoteChairperson VoteType = "Chairperson"
	VoteDAC         VoteType = "DAC"
	VoteAgreement   VoteType = "Agreement"
	VoteFinal       VoteType = "Final"
)

// Vote is one participant's decision within an election.  A nil Vote
// means the participant has not voted yet.
type Vote struct {
	ID         uint64     `json:"voteId"`
	ElectionID uint64     `json:"electionId"`
	UserID     uint64     `json:"userId"`
	Type       VoteType   `json:"type"`
	Vote       *bool      `json:"vote"`
	Rationale  string     `json:"rationale,omitempty"`
	CreateDate time.Time  `json:"createDate"`
	UpdateDate *time.Time `json:"updateDate,omitempty"`
}

// Cast reports whether a value has been recorded.
func (v Vote) Cast() bool { return v.Vote != nil }
