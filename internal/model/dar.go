package model

import (
	"sort"
	"time"
)

// DarStatus is the researcher-visible status of a data access request.
type DarStatus string

const (
	DarDraft     DarStatus = "Draft"
	DarSubmitted DarStatus = "Submitted"
	DarApproved  DarStatus = "Approved"
	DarDenied    DarStatus = "Denied"
	DarCanceled  DarStatus = "Canceled"
)

// DarData is the mutable payload of a request.
type DarData struct {
	Status            DarStatus `json:"status"`
	ProjectTitle      string    `json:"projectTitle"`
	Rationale         string    `json:"rationale,omitempty"`
	ManualReview      bool      `json:"manualReview"`
	ParentReferenceID string    `json:"parentReferenceId,omitempty"`
}

// DataAccessRequest is keyed by ReferenceID rather than the numeric id.
// CollectionID is nil for drafts and immutable once set.
type DataAccessRequest struct {
	ID             uint64     `json:"id"`
	ReferenceID    string     `json:"referenceId"`
	UserID         uint64     `json:"userId"`
	CollectionID   *uint64    `json:"collectionId,omitempty"`
	DatasetIDs     []uint64   `json:"datasetIds"`
	Data           DarData    `json:"data"`
	CreateDate     time.Time  `json:"createDate"`
	SortDate       time.Time  `json:"sortDate"`
	SubmissionDate *time.Time `json:"submissionDate,omitempty"`
}

// IsCanceled reports whether the request has been withdrawn.
func (d DataAccessRequest) IsCanceled() bool { return d.Data.Status == DarCanceled }

// CollectionStatus is derived from the statuses of a collection's DARs.
type CollectionStatus string

const (
	CollectionSubmitted CollectionStatus = "Submitted"
	CollectionComplete  CollectionStatus = "Complete"
	CollectionCanceled  CollectionStatus = "Canceled"
)

// DarCollection groups the DARs a researcher submitted together.
type DarCollection struct {
	ID           uint64                       `json:"darCollectionId"`
	DarCode      string                       `json:"darCode"`
	CreateUserID uint64                       `json:"createUserId"`
	CreateDate   time.Time                    `json:"createDate"`
	Dars         map[string]DataAccessRequest `json:"dars"`
}

// DatasetIDs returns the union of the dataset ids of every DAR, sorted.
func (c DarCollection) DatasetIDs() []uint64 {
	seen := map[uint64]bool{}
	var ids []uint64
	for _, d := range c.Dars {
		for _, id := range d.DatasetIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReferenceIDs returns the reference ids of every DAR, sorted.
func (c DarCollection) ReferenceIDs() []string {
	refs := make([]string, 0, len(c.Dars))
	for ref := range c.Dars {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Status derives the collection status.  An empty collection counts as
// submitted.
func (c DarCollection) Status() CollectionStatus {
	if len(c.Dars) == 0 {
		return CollectionSubmitted
	}
	canceled, decided := 0, 0
	for _, d := range c.Dars {
		switch d.Data.Status {
		case DarCanceled:
			canceled++
		case DarApproved, DarDenied:
			decided++
		}
	}
	switch {
	case canceled == len(c.Dars):
		return CollectionCanceled
	case decided == len(c.Dars):
		return CollectionComplete
	}
	return CollectionSubmitted
}
