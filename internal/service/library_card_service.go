package service

import (
	"context"

	"github.com/iliyamo/dac-governance/internal/authz"
	"github.com/iliyamo/dac-governance/internal/model"
)

// LibraryCardService issues and withdraws library cards.  Admins manage
// every card; signing officials manage cards of their own institution.
type LibraryCardService struct {
	deps Deps
}

func NewLibraryCardService(d Deps) *LibraryCardService {
	return &LibraryCardService{deps: d.withDefaults()}
}

// Create issues a card to userID for institutionID.  A second card for the
// same user and institution is a Conflict.
func (s *LibraryCardService) Create(ctx context.Context, actor model.User, userID, institutionID uint64, eraCommonsID string) (model.LibraryCard, error) {
	st := s.deps.Store
	holder, err := st.GetUser(ctx, userID)
	if err != nil {
		return model.LibraryCard{}, storeErr(err, "user")
	}
	inst := institutionID
	target := authz.Target{OwnerInstitutionID: &inst}
	if !authz.Authorize(actor, authz.ActionCreate, target).Allowed() {
		return model.LibraryCard{}, forbidden("not allowed to issue library cards for institution %d", institutionID)
	}
	if holder.InstitutionID != nil && *holder.InstitutionID != institutionID && !actor.HasRole(model.RoleAdmin) {
		return model.LibraryCard{}, forbidden("user %d belongs to another institution", userID)
	}
	card := model.LibraryCard{
		UserID:        userID,
		InstitutionID: institutionID,
		EraCommonsID:  eraCommonsID,
		CreateUserID:  actor.ID,
	}
	if err := st.CreateLibraryCard(ctx, &card); err != nil {
		return model.LibraryCard{}, storeErr(err, "library card")
	}
	s.deps.Log.Info("library card %d issued to user %d for institution %d", card.ID, userID, institutionID)
	return card, nil
}

// List returns the cards of userID.  Users always see their own cards.
func (s *LibraryCardService) List(ctx context.Context, actor model.User, userID uint64) ([]model.LibraryCard, error) {
	st := s.deps.Store
	holder, err := st.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	target := authz.Target{OwnerID: holder.ID, OwnerInstitutionID: holder.InstitutionID}
	if !authz.Authorize(actor, authz.ActionView, target).Allowed() {
		return nil, forbidden("not allowed to view library cards of user %d", userID)
	}
	cards, err := st.ListLibraryCards(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "library card")
	}
	if cards == nil {
		cards = []model.LibraryCard{}
	}
	return cards, nil
}

// Delete withdraws a card.  The card's institution scopes the check, so a
// signing official of another institution is Forbidden.
func (s *LibraryCardService) Delete(ctx context.Context, actor model.User, id uint64) error {
	st := s.deps.Store
	card, err := st.GetLibraryCard(ctx, id)
	if err != nil {
		return storeErr(err, "library card")
	}
	inst := card.InstitutionID
	if !authz.Authorize(actor, authz.ActionDelete, authz.Target{OwnerInstitutionID: &inst}).Allowed() {
		return forbidden("not allowed to delete library card %d", id)
	}
	if err := st.DeleteLibraryCard(ctx, id); err != nil {
		return storeErr(err, "library card")
	}
	s.deps.Log.Info("library card %d deleted by user %d", id, actor.ID)
	return nil
}
