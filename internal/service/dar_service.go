package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/dac-governance/internal/authz"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
)

// DarService drives data access requests and their collections from
// draft to decision.
type DarService struct {
	deps      Deps
	elections *ElectionService
}

func NewDarService(d Deps, elections *ElectionService) *DarService {
	return &DarService{deps: d.withDefaults(), elections: elections}
}

// DarInput is the researcher-supplied content of a request.
type DarInput struct {
	// ReferenceID selects an existing draft; empty starts a new request.
	ReferenceID  string
	DatasetIDs   []uint64
	ProjectTitle string
	Rationale    string
}

// CollectionView is a collection with its derived status.
type CollectionView struct {
	model.DarCollection
	Status       model.CollectionStatus `json:"status"`
	DatasetScope []uint64               `json:"datasetIds"`
}

func viewOf(c model.DarCollection) CollectionView {
	return CollectionView{DarCollection: c, Status: c.Status(), DatasetScope: c.DatasetIDs()}
}

// SaveDraft creates or updates a draft request owned by actor.
func (s *DarService) SaveDraft(ctx context.Context, actor model.User, in DarInput) (model.DataAccessRequest, error) {
	st := s.deps.Store
	if _, err := s.requestableDatasets(ctx, st, in.DatasetIDs); err != nil {
		return model.DataAccessRequest{}, err
	}
	now := s.deps.Now()
	if in.ReferenceID == "" {
		dar := model.DataAccessRequest{
			ReferenceID: uuid.NewString(),
			UserID:      actor.ID,
			DatasetIDs:  uniqueSorted(in.DatasetIDs),
			Data: model.DarData{
				Status:       model.DarDraft,
				ProjectTitle: in.ProjectTitle,
				Rationale:    in.Rationale,
			},
			CreateDate: now,
			SortDate:   now,
		}
		if err := st.CreateDar(ctx, &dar); err != nil {
			return model.DataAccessRequest{}, storeErr(err, "data access request")
		}
		return dar, nil
	}
	dar, err := s.ownedDraft(ctx, st, actor, in.ReferenceID)
	if err != nil {
		return model.DataAccessRequest{}, err
	}
	dar.DatasetIDs = uniqueSorted(in.DatasetIDs)
	dar.Data.ProjectTitle = in.ProjectTitle
	dar.Data.Rationale = in.Rationale
	dar.SortDate = now
	if err := st.UpdateDar(ctx, &dar); err != nil {
		return model.DataAccessRequest{}, storeErr(err, "data access request")
	}
	return dar, nil
}

// Submit turns the input into a submitted request inside a new
// collection.  The researcher must hold a library card.  Matching and the
// new request notification run after the write commits; their failures
// are only logged.
func (s *DarService) Submit(ctx context.Context, actor model.User, in DarInput) (CollectionView, error) {
	st := s.deps.Store
	cards, err := st.ListLibraryCards(ctx, actor.ID)
	if err != nil {
		return CollectionView{}, storeErr(err, "library card")
	}
	if len(cards) == 0 {
		return CollectionView{}, badRequest("a library card is required to submit a data access request")
	}
	datasets, err := s.requestableDatasets(ctx, st, in.DatasetIDs)
	if err != nil {
		return CollectionView{}, err
	}

	var collection model.DarCollection
	err = st.WithTx(ctx, func(tx repository.Store) error {
		var (
			dar model.DataAccessRequest
			err error
		)
		now := s.deps.Now()
		if in.ReferenceID != "" {
			if dar, err = s.ownedDraft(ctx, tx, actor, in.ReferenceID); err != nil {
				return err
			}
		} else {
			dar = model.DataAccessRequest{ReferenceID: uuid.NewString(), UserID: actor.ID, CreateDate: now}
		}
		if dar.CollectionID != nil {
			return badRequest("data access request %s already belongs to a collection", dar.ReferenceID)
		}
		c := model.DarCollection{
			DarCode:      darCode(),
			CreateUserID: actor.ID,
			CreateDate:   now,
		}
		if err := tx.CreateCollection(ctx, &c); err != nil {
			return storeErr(err, "collection")
		}
		dar.CollectionID = &c.ID
		dar.DatasetIDs = uniqueSorted(in.DatasetIDs)
		dar.Data.Status = model.DarSubmitted
		dar.Data.ProjectTitle = in.ProjectTitle
		dar.Data.Rationale = in.Rationale
		dar.SortDate = now
		dar.SubmissionDate = &now
		if dar.ID == 0 {
			err = tx.CreateDar(ctx, &dar)
		} else {
			err = tx.UpdateDar(ctx, &dar)
		}
		if err != nil {
			return storeErr(err, "data access request")
		}
		collection, err = tx.GetCollection(ctx, c.ID)
		return storeErr(err, "collection")
	})
	if err != nil {
		return CollectionView{}, err
	}
	s.deps.Log.Success("submitted collection %s (%d) for user %d", collection.DarCode, collection.ID, actor.ID)

	for _, ref := range collection.ReferenceIDs() {
		s.deps.reprocess(ctx, ref)
	}
	chairs, err := s.chairsOf(ctx, datasetDacIDs(datasets))
	if err != nil {
		s.deps.Log.Warn("resolving chairs for collection %d: %v", collection.ID, err)
	}
	s.deps.notify(ctx, NotifyNewDar, chairs, map[string]string{
		"darCode":      collection.DarCode,
		"collectionId": strconv.FormatUint(collection.ID, 10),
	})
	return viewOf(collection), nil
}

// GetDar returns a request when actor may view it.  Drafts are visible
// only to their owner and admins.
func (s *DarService) GetDar(ctx context.Context, actor model.User, referenceID string) (model.DataAccessRequest, error) {
	st := s.deps.Store
	dar, err := st.GetDar(ctx, referenceID)
	if err != nil {
		return model.DataAccessRequest{}, storeErr(err, "data access request")
	}
	target, err := s.darTarget(ctx, st, dar)
	if err != nil {
		return model.DataAccessRequest{}, err
	}
	res := authz.Authorize(actor, authz.ActionView, target)
	if !res.Allowed() || (dar.Data.Status == model.DarDraft && res.Role != model.RoleAdmin && res.Role != model.RoleResearcher) {
		return model.DataAccessRequest{}, notFound("data access request %s not found", referenceID)
	}
	return dar, nil
}

// GetCollection returns a collection when actor may view it.  Collections
// actor may not view are reported as missing.
func (s *DarService) GetCollection(ctx context.Context, actor model.User, id uint64) (CollectionView, error) {
	st := s.deps.Store
	c, err := st.GetCollection(ctx, id)
	if err != nil {
		return CollectionView{}, storeErr(err, "collection")
	}
	target, err := s.collectionTarget(ctx, st, c)
	if err != nil {
		return CollectionView{}, err
	}
	if !authz.Authorize(actor, authz.ActionView, target).Allowed() {
		return CollectionView{}, notFound("collection %d not found", id)
	}
	return viewOf(c), nil
}

// ListCollections returns the collections actor may view.  A non-empty
// role restricts the listing to what that one role grants; actor must
// hold the role.
func (s *DarService) ListCollections(ctx context.Context, actor model.User, role string) ([]CollectionView, error) {
	as, err := actingAs(actor, role)
	if err != nil {
		return nil, err
	}
	st := s.deps.Store
	all, err := st.ListCollections(ctx)
	if err != nil {
		return nil, storeErr(err, "collection")
	}
	candidates := make([]model.DarCollection, 0, len(all))
	targets := make(map[uint64]authz.Target, len(all))
	for _, c := range all {
		if as.onlyOwn && c.CreateUserID != actor.ID {
			continue
		}
		target, err := s.collectionTarget(ctx, st, c)
		if err != nil {
			return nil, err
		}
		targets[c.ID] = target
		candidates = append(candidates, c)
	}
	visible := authz.Filter(as.user, authz.ActionView, candidates, func(c model.DarCollection) authz.Target {
		return targets[c.ID]
	})
	out := make([]CollectionView, len(visible))
	for i, c := range visible {
		out[i] = viewOf(c)
	}
	return out, nil
}

// Cancel withdraws requests of a collection.
//
// A researcher cancels the whole collection they created; doing so twice is
// a BadRequest.  An admin cancels the whole collection and a chair cancels
// the requests touching their DACs; both are idempotent.  Every open
// election of a canceled request is canceled with it.  role selects the
// capacity when actor holds several; empty picks owner, then admin, then
// chair.
func (s *DarService) Cancel(ctx context.Context, actor model.User, collectionID uint64, role string) (CollectionView, error) {
	st := s.deps.Store
	c, err := st.GetCollection(ctx, collectionID)
	if err != nil {
		return CollectionView{}, storeErr(err, "collection")
	}
	target, err := s.collectionTarget(ctx, st, c)
	if err != nil {
		return CollectionView{}, err
	}
	capacity, err := cancelCapacity(actor, c, role)
	if err != nil {
		return CollectionView{}, err
	}
	switch capacity {
	case model.RoleResearcher:
		if c.CreateUserID != actor.ID {
			return CollectionView{}, notFound("collection %d not found", collectionID)
		}
		if c.Status() == model.CollectionCanceled {
			return CollectionView{}, badRequest("collection %d is already canceled", collectionID)
		}
	case model.RoleAdmin:
	case model.RoleChairperson:
		as, _ := actingAs(actor, string(model.RoleChairperson))
		if !authz.Authorize(as.user, authz.ActionCancel, target).Allowed() {
			return CollectionView{}, s.hideOrForbid(actor, target, collectionID)
		}
	default:
		return CollectionView{}, s.hideOrForbid(actor, target, collectionID)
	}

	var (
		canceledVotes []model.Vote
		out           model.DarCollection
	)
	err = st.WithTx(ctx, func(tx repository.Store) error {
		canceledVotes = nil
		fresh, err := tx.GetCollection(ctx, collectionID)
		if err != nil {
			return storeErr(err, "collection")
		}
		for _, ref := range fresh.ReferenceIDs() {
			dar := fresh.Dars[ref]
			if capacity == model.RoleChairperson && !s.touchesDacs(ctx, tx, dar, actor.DacIDs()) {
				continue
			}
			votes, err := s.cancelDar(ctx, tx, dar)
			if err != nil {
				return err
			}
			canceledVotes = append(canceledVotes, votes...)
		}
		out, err = tx.GetCollection(ctx, collectionID)
		return storeErr(err, "collection")
	})
	if err != nil {
		return CollectionView{}, err
	}
	s.deps.Log.Info("collection %d canceled by user %d as %s", collectionID, actor.ID, capacity)
	s.deps.notify(ctx, NotifyElectionCanceled, voterIDs(canceledVotes), map[string]string{
		"collectionId": strconv.FormatUint(collectionID, 10),
	})
	return viewOf(out), nil
}

// cancelDar cancels a request and its open elections.  It returns the
// votes of the elections it canceled.
func (s *DarService) cancelDar(ctx context.Context, st repository.Store, dar model.DataAccessRequest) ([]model.Vote, error) {
	elections, err := st.ListElectionsByReference(ctx, []string{dar.ReferenceID})
	if err != nil {
		return nil, storeErr(err, "election")
	}
	var votes []model.Vote
	for i := range elections {
		changed, err := s.elections.CancelElection(ctx, st, &elections[i])
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		vs, err := st.ListVotesByElection(ctx, elections[i].ID)
		if err != nil {
			return nil, storeErr(err, "vote")
		}
		votes = append(votes, vs...)
	}
	if !dar.IsCanceled() {
		dar.Data.Status = model.DarCanceled
		dar.SortDate = s.deps.Now()
		if err := st.UpdateDar(ctx, &dar); err != nil {
			return nil, storeErr(err, "data access request")
		}
	}
	return votes, nil
}

// Resubmit starts a new draft from a canceled collection.  Only the
// collection's creator may resubmit; anyone else is told the collection
// does not exist.
func (s *DarService) Resubmit(ctx context.Context, actor model.User, collectionID uint64) (model.DataAccessRequest, error) {
	st := s.deps.Store
	c, err := st.GetCollection(ctx, collectionID)
	if err != nil {
		return model.DataAccessRequest{}, storeErr(err, "collection")
	}
	if c.CreateUserID != actor.ID {
		return model.DataAccessRequest{}, notFound("collection %d not found", collectionID)
	}
	if status := c.Status(); status != model.CollectionCanceled {
		return model.DataAccessRequest{}, badRequest("collection %d is %s; only canceled collections can be resubmitted", collectionID, status)
	}
	refs := c.ReferenceIDs()
	source := c.Dars[refs[0]]
	now := s.deps.Now()
	draft := model.DataAccessRequest{
		ReferenceID: uuid.NewString(),
		UserID:      actor.ID,
		DatasetIDs:  c.DatasetIDs(),
		Data: model.DarData{
			Status:            model.DarDraft,
			ProjectTitle:      source.Data.ProjectTitle,
			Rationale:         source.Data.Rationale,
			ManualReview:      source.Data.ManualReview,
			ParentReferenceID: source.ReferenceID,
		},
		CreateDate: now,
		SortDate:   now,
	}
	if err := st.CreateDar(ctx, &draft); err != nil {
		return model.DataAccessRequest{}, storeErr(err, "data access request")
	}
	s.deps.Log.Info("collection %d resubmitted as draft %s", collectionID, draft.ReferenceID)
	return draft, nil
}

// CreateElectionsForCollection opens a DataAccess and an RP election for
// every (request, dataset) pair of the collection that actor may open
// elections on.  If any of them cannot be opened, for example because one
// already has an open election, nothing is written.
func (s *DarService) CreateElectionsForCollection(ctx context.Context, actor model.User, collectionID uint64) ([]ElectionDetail, error) {
	st := s.deps.Store
	c, err := st.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, storeErr(err, "collection")
	}
	target, err := s.collectionTarget(ctx, st, c)
	if err != nil {
		return nil, err
	}
	if !authz.Authorize(actor, authz.ActionCreate, target).Allowed() {
		return nil, s.hideOrForbid(actor, target, collectionID)
	}

	var created []ElectionDetail
	err = st.WithTx(ctx, func(tx repository.Store) error {
		created = nil
		for _, ref := range c.ReferenceIDs() {
			dar := c.Dars[ref]
			if dar.Data.Status != model.DarSubmitted {
				continue
			}
			datasets, err := tx.ListDatasets(ctx, dar.DatasetIDs)
			if err != nil {
				return storeErr(err, "dataset")
			}
			for _, ds := range datasets {
				if !authz.Authorize(actor, authz.ActionCreate, authz.Target{DacIDs: []uint64{ds.DacID}}).Allowed() {
					continue
				}
				for _, typ := range []model.ElectionType{model.ElectionDataAccess, model.ElectionRP} {
					plan, err := s.elections.plan(ctx, tx, actor, typ, ref, ds.ID)
					if err != nil {
						return err
					}
					d, err := s.elections.open(ctx, tx, plan)
					if err != nil {
						return err
					}
					created = append(created, d)
				}
			}
		}
		if len(created) == 0 {
			return badRequest("no elections could be opened for collection %d", collectionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range created {
		s.deps.notify(ctx, NotifyNewCase, voterIDs(d.Votes), map[string]string{
			"electionId":   strconv.FormatUint(d.Election.ID, 10),
			"referenceId":  d.Election.ReferenceID,
			"electionType": string(d.Election.Type),
		})
	}
	return created, nil
}

// requestableDatasets loads the datasets and checks every id exists and is
// active.
func (s *DarService) requestableDatasets(ctx context.Context, st repository.Store, ids []uint64) ([]model.Dataset, error) {
	ids = uniqueSorted(ids)
	if len(ids) == 0 {
		return nil, badRequest("at least one dataset is required")
	}
	sets, err := st.ListDatasets(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "dataset")
	}
	if len(sets) != len(ids) {
		return nil, badRequest("unknown dataset requested")
	}
	for _, ds := range sets {
		if !ds.Active {
			return nil, badRequest("dataset %d is not active", ds.ID)
		}
	}
	return sets, nil
}

// ownedDraft loads a draft owned by actor.
func (s *DarService) ownedDraft(ctx context.Context, st repository.Store, actor model.User, referenceID string) (model.DataAccessRequest, error) {
	dar, err := st.GetDar(ctx, referenceID)
	if err != nil {
		return model.DataAccessRequest{}, storeErr(err, "data access request")
	}
	if dar.UserID != actor.ID {
		return model.DataAccessRequest{}, notFound("data access request %s not found", referenceID)
	}
	if dar.Data.Status != model.DarDraft {
		return model.DataAccessRequest{}, badRequest("data access request %s is %s, not a draft", referenceID, dar.Data.Status)
	}
	return dar, nil
}

func (s *DarService) darTarget(ctx context.Context, st repository.Store, dar model.DataAccessRequest) (authz.Target, error) {
	owner, err := st.GetUser(ctx, dar.UserID)
	if err != nil {
		return authz.Target{}, storeErr(err, "user")
	}
	sets, err := st.ListDatasets(ctx, dar.DatasetIDs)
	if err != nil {
		return authz.Target{}, storeErr(err, "dataset")
	}
	return authz.Target{OwnerID: owner.ID, OwnerInstitutionID: owner.InstitutionID, DacIDs: datasetDacIDs(sets)}, nil
}

func (s *DarService) collectionTarget(ctx context.Context, st repository.Store, c model.DarCollection) (authz.Target, error) {
	owner, err := st.GetUser(ctx, c.CreateUserID)
	if err != nil {
		return authz.Target{}, storeErr(err, "user")
	}
	sets, err := st.ListDatasets(ctx, c.DatasetIDs())
	if err != nil {
		return authz.Target{}, storeErr(err, "dataset")
	}
	return authz.Target{OwnerID: owner.ID, OwnerInstitutionID: owner.InstitutionID, DacIDs: datasetDacIDs(sets)}, nil
}

// touchesDacs reports whether any dataset of dar belongs to one of dacIDs.
func (s *DarService) touchesDacs(ctx context.Context, st repository.Store, dar model.DataAccessRequest, dacIDs []uint64) bool {
	sets, err := st.ListDatasets(ctx, dar.DatasetIDs)
	if err != nil {
		s.deps.Log.Warn("loading datasets of %s: %v", dar.ReferenceID, err)
		return false
	}
	for _, id := range datasetDacIDs(sets) {
		if containsUint(dacIDs, id) {
			return true
		}
	}
	return false
}

// hideOrForbid is NotFound for actors that may not even view the target
// and Forbidden for the rest.
func (s *DarService) hideOrForbid(actor model.User, target authz.Target, collectionID uint64) error {
	if !authz.Authorize(actor, authz.ActionView, target).Allowed() {
		return notFound("collection %d not found", collectionID)
	}
	return forbidden("not allowed to modify collection %d", collectionID)
}

func (s *DarService) chairsOf(ctx context.Context, dacIDs []uint64) ([]uint64, error) {
	seen := map[uint64]bool{}
	var ids []uint64
	for _, dacID := range dacIDs {
		members, err := s.deps.Store.ListDacMembers(ctx, dacID)
		if err != nil {
			return ids, err
		}
		for _, u := range members {
			if u.IsChairOf(dacID) && !seen[u.ID] {
				seen[u.ID] = true
				ids = append(ids, u.ID)
			}
		}
	}
	return ids, nil
}

// actor restricted to one role.
type actorView struct {
	user    model.User
	onlyOwn bool
}

// actingAs narrows actor to the named role.  An empty role keeps every
// role.  Researcher narrows to the collections actor created.
func actingAs(actor model.User, role string) (actorView, error) {
	if strings.TrimSpace(role) == "" {
		return actorView{user: actor}, nil
	}
	name, err := model.ParseRoleName(role)
	if err != nil {
		return actorView{}, badRequest("%v", err)
	}
	if !actor.HasRole(name) {
		return actorView{}, badRequest("user does not hold role %s", name)
	}
	narrowed := actor
	narrowed.Roles = nil
	for _, r := range actor.Roles {
		if r.Name == name {
			narrowed.Roles = append(narrowed.Roles, r)
		}
	}
	return actorView{user: narrowed, onlyOwn: name == model.RoleResearcher}, nil
}

// cancelCapacity decides in which role actor cancels c.
func cancelCapacity(actor model.User, c model.DarCollection, role string) (model.RoleName, error) {
	if strings.TrimSpace(role) != "" {
		name, err := model.ParseRoleName(role)
		if err != nil {
			return "", badRequest("%v", err)
		}
		if name != model.RoleResearcher && !actor.HasRole(name) {
			return "", badRequest("user does not hold role %s", name)
		}
		return name, nil
	}
	switch {
	case c.CreateUserID == actor.ID:
		return model.RoleResearcher, nil
	case actor.HasRole(model.RoleAdmin):
		return model.RoleAdmin, nil
	case actor.HasRole(model.RoleChairperson):
		return model.RoleChairperson, nil
	}
	return "", nil
}

// darCode is the human-facing collection code.
func darCode() string {
	return "DAR-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func uniqueSorted(ids []uint64) []uint64 {
	seen := map[uint64]bool{}
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
