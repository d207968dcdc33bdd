package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/dac-governance/internal/authz"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
	"github.com/iliyamo/dac-governance/internal/tally"
)

// ElectionService owns the election lifecycle: creation with its voter
// rows, deletion, closure after a tally and cancellation.
type ElectionService struct {
	deps Deps
}

func NewElectionService(d Deps) *ElectionService {
	return &ElectionService{deps: d.withDefaults()}
}

// ElectionDetail is an election with its votes.
type ElectionDetail struct {
	Election model.Election `json:"election"`
	Votes    []model.Vote   `json:"votes"`
}

// CreateElection opens an election of typ for referenceID.  For
// TranslateDUL elections referenceID is a consent id; for the other types
// it is a DAR reference id and datasetID selects one of its datasets.  A
// zero datasetID opens one election covering every dataset of the
// request, voted on by the union of their DACs.
func (s *ElectionService) CreateElection(ctx context.Context, actor model.User, typ model.ElectionType, referenceID string, datasetID uint64) (ElectionDetail, error) {
	var out ElectionDetail
	err := s.deps.Store.WithTx(ctx, func(tx repository.Store) error {
		plan, err := s.plan(ctx, tx, actor, typ, referenceID, datasetID)
		if err != nil {
			return err
		}
		out, err = s.open(ctx, tx, plan)
		return err
	})
	if err != nil {
		return ElectionDetail{}, err
	}
	s.deps.notify(ctx, NotifyNewCase, voterIDs(out.Votes), map[string]string{
		"electionId":   strconv.FormatUint(out.Election.ID, 10),
		"referenceId":  out.Election.ReferenceID,
		"electionType": string(out.Election.Type),
	})
	return out, nil
}

// electionPlan is a validated election waiting to be written.
type electionPlan struct {
	election model.Election
	voters   []model.Vote
}

// plan validates a creation request and resolves the voters.  It writes
// nothing.
func (s *ElectionService) plan(ctx context.Context, st repository.Store, actor model.User, typ model.ElectionType, referenceID string, datasetID uint64) (electionPlan, error) {
	var (
		datasets []model.Dataset
		err      error
	)
	switch typ {
	case model.ElectionTranslateDUL:
		datasets, err = st.ListDatasetsByConsent(ctx, referenceID)
		if err != nil {
			return electionPlan{}, storeErr(err, "consent")
		}
		if len(datasets) == 0 {
			return electionPlan{}, notFound("consent %s not found", referenceID)
		}
		if datasetID != 0 {
			ds, ok := findDataset(datasets, datasetID)
			if !ok {
				return electionPlan{}, badRequest("dataset %d does not use consent %s", datasetID, referenceID)
			}
			datasets = []model.Dataset{ds}
		}
	case model.ElectionDataAccess, model.ElectionRP, model.ElectionDataSet:
		dar, err := st.GetDar(ctx, referenceID)
		if err != nil {
			return electionPlan{}, storeErr(err, "data access request")
		}
		switch dar.Data.Status {
		case model.DarCanceled:
			return electionPlan{}, badRequest("data access request %s is canceled", referenceID)
		case model.DarDraft:
			return electionPlan{}, badRequest("data access request %s has not been submitted", referenceID)
		}
		if datasetID == 0 && len(dar.DatasetIDs) == 1 {
			datasetID = dar.DatasetIDs[0]
		}
		if datasetID == 0 {
			if typ == model.ElectionDataSet {
				return electionPlan{}, badRequest("datasetId is required for a DataSet election")
			}
			datasets, err = st.ListDatasets(ctx, dar.DatasetIDs)
			if err != nil {
				return electionPlan{}, storeErr(err, "dataset")
			}
			break
		}
		if !containsUint(dar.DatasetIDs, datasetID) {
			return electionPlan{}, badRequest("dataset %d is not part of request %s", datasetID, referenceID)
		}
		ds, err := st.GetDataset(ctx, datasetID)
		if err != nil {
			return electionPlan{}, storeErr(err, "dataset")
		}
		datasets = []model.Dataset{ds}
	default:
		return electionPlan{}, badRequest("invalid election type %q", typ)
	}

	dacIDs := datasetDacIDs(datasets)
	if !authz.Authorize(actor, authz.ActionCreate, authz.Target{DacIDs: dacIDs}).Allowed() {
		return electionPlan{}, forbidden("not allowed to open elections for these datasets")
	}

	if open, err := st.FindOpenElection(ctx, referenceID, typ, datasetID); err == nil {
		return electionPlan{}, badRequest("an open %s election already exists for %s (election %d, %s)",
			typ, referenceID, open.ID, scopeName(open.DatasetID))
	} else if !errors.Is(err, repository.ErrNotFound) {
		return electionPlan{}, storeErr(err, "election")
	}

	if typ == model.ElectionDataAccess {
		for _, ds := range datasets {
			if ds.ConsentID == "" {
				continue
			}
			dul, err := st.LatestElection(ctx, ds.ConsentID, model.ElectionTranslateDUL)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return electionPlan{}, storeErr(err, "election")
			}
			if err != nil || dul.Status != model.ElectionClosed {
				return electionPlan{}, badRequest("data use letter for consent %s has not been translated", ds.ConsentID)
			}
		}
	}

	now := s.deps.Now()
	plan := electionPlan{election: model.Election{
		ReferenceID: referenceID,
		DatasetID:   datasetID,
		Type:        typ,
		Status:      model.ElectionOpen,
		CreateDate:  now,
	}}
	if typ == model.ElectionDataSet {
		voter, err := custodian(ctx, st, datasets[0])
		if err != nil {
			return electionPlan{}, err
		}
		plan.voters = []model.Vote{{UserID: voter, Type: model.VoteFinal, CreateDate: now}}
		return plan, nil
	}
	plan.voters, err = rosterVotes(ctx, st, dacIDs, now)
	if err != nil {
		return electionPlan{}, err
	}
	return plan, nil
}

// open writes a planned election and its votes.
func (s *ElectionService) open(ctx context.Context, st repository.Store, p electionPlan) (ElectionDetail, error) {
	e := p.election
	if err := st.CreateElection(ctx, &e); err != nil {
		return ElectionDetail{}, storeErr(err, "election")
	}
	votes := make([]model.Vote, len(p.voters))
	for i, v := range p.voters {
		v.ElectionID = e.ID
		votes[i] = v
	}
	created, err := st.CreateVotes(ctx, votes)
	if err != nil {
		return ElectionDetail{}, storeErr(err, "vote")
	}
	s.deps.Log.Info("opened %s election %d for %s (dataset %d, %d votes)", e.Type, e.ID, e.ReferenceID, e.DatasetID, len(created))
	return ElectionDetail{Election: e, Votes: created}, nil
}

// rosterVotes creates a DAC vote for every chair and member of the DACs
// and an additional Chairperson vote for every chair.
func rosterVotes(ctx context.Context, st repository.Store, dacIDs []uint64, now time.Time) ([]model.Vote, error) {
	seen := map[uint64]bool{}
	var votes []model.Vote
	chairs := 0
	for _, dacID := range dacIDs {
		members, err := st.ListDacMembers(ctx, dacID)
		if err != nil {
			return nil, storeErr(err, "DAC")
		}
		for _, u := range members {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			votes = append(votes, model.Vote{UserID: u.ID, Type: model.VoteDAC, CreateDate: now})
			if chairOfAny(u, dacIDs) {
				chairs++
				votes = append(votes, model.Vote{UserID: u.ID, Type: model.VoteChairperson, CreateDate: now})
			}
		}
	}
	if chairs == 0 {
		return nil, badRequest("no chairperson is assigned to the DAC")
	}
	return votes, nil
}

// custodian picks the voter of a DataSet election: the dataset custodian,
// or the lowest-id chair of the owning DAC.
func custodian(ctx context.Context, st repository.Store, ds model.Dataset) (uint64, error) {
	if ds.CustodianUserID != nil {
		return *ds.CustodianUserID, nil
	}
	members, err := st.ListDacMembers(ctx, ds.DacID)
	if err != nil {
		return 0, storeErr(err, "DAC")
	}
	for _, u := range members {
		if u.IsChairOf(ds.DacID) {
			return u.ID, nil
		}
	}
	return 0, badRequest("dataset %d has no custodian and its DAC has no chairperson", ds.ID)
}

// GetElection returns an election and its votes when actor may view it.
func (s *ElectionService) GetElection(ctx context.Context, actor model.User, id uint64) (ElectionDetail, error) {
	st := s.deps.Store
	e, err := st.GetElection(ctx, id)
	if err != nil {
		return ElectionDetail{}, storeErr(err, "election")
	}
	dacIDs, err := electionDacIDs(ctx, st, e)
	if err != nil {
		return ElectionDetail{}, err
	}
	if !authz.Authorize(actor, authz.ActionView, authz.Target{DacIDs: dacIDs}).Allowed() {
		return ElectionDetail{}, notFound("election %d not found", id)
	}
	votes, err := st.ListVotesByElection(ctx, id)
	if err != nil {
		return ElectionDetail{}, storeErr(err, "vote")
	}
	return ElectionDetail{Election: e, Votes: votes}, nil
}

// ListElectionsForReference returns the elections of a reference that
// actor may view, oldest first.
func (s *ElectionService) ListElectionsForReference(ctx context.Context, actor model.User, referenceID string) ([]model.Election, error) {
	st := s.deps.Store
	all, err := st.ListElectionsByReference(ctx, []string{referenceID})
	if err != nil {
		return nil, storeErr(err, "election")
	}
	targets := make(map[uint64]authz.Target, len(all))
	for _, e := range all {
		dacIDs, err := electionDacIDs(ctx, st, e)
		if err != nil {
			return nil, err
		}
		targets[e.ID] = authz.Target{DacIDs: dacIDs}
	}
	return authz.Filter(actor, authz.ActionView, all, func(e model.Election) authz.Target {
		return targets[e.ID]
	}), nil
}

// DeleteElection removes an open election and its votes.  Only an admin or
// a chair of the election's DAC may delete.
func (s *ElectionService) DeleteElection(ctx context.Context, actor model.User, referenceID string, id uint64) error {
	return s.deps.Store.WithTx(ctx, func(tx repository.Store) error {
		e, err := tx.LockElection(ctx, id)
		if err != nil {
			return storeErr(err, "election")
		}
		if e.ReferenceID != referenceID {
			return notFound("election %d not found for %s", id, referenceID)
		}
		dacIDs, err := electionDacIDs(ctx, tx, e)
		if err != nil {
			return err
		}
		if !authz.Authorize(actor, authz.ActionDelete, authz.Target{DacIDs: dacIDs}).Allowed() {
			return forbidden("not allowed to delete election %d", id)
		}
		if e.Status != model.ElectionOpen {
			return badRequest("election %d is %s", id, e.Status)
		}
		if err := tx.DeleteVotesByElection(ctx, id); err != nil {
			return storeErr(err, "vote")
		}
		if err := tx.DeleteElection(ctx, id); err != nil {
			return storeErr(err, "election")
		}
		s.deps.Log.Info("deleted election %d for %s", id, referenceID)
		return nil
	})
}

// CloseElection moves an open election to Closed with the tally outcome
// and the deciding vote's rationale.  Closing a closed election is a
// no-op; closing a canceled one is a BadRequest.  It must run inside the
// caller's transaction.
func (s *ElectionService) CloseElection(ctx context.Context, st repository.Store, e *model.Election, outcome tally.Outcome, rationale string) error {
	switch e.Status {
	case model.ElectionClosed:
		return nil
	case model.ElectionCanceled:
		return badRequest("election %d is canceled", e.ID)
	}
	now := s.deps.Now()
	e.Status = model.ElectionClosed
	e.FinalVote = outcome.Bool()
	e.FinalRationale = rationale
	e.LastUpdate = &now
	if err := st.UpdateElection(ctx, e); err != nil {
		return storeErr(err, "election")
	}
	s.deps.Log.Success("closed %s election %d for %s with outcome %s", e.Type, e.ID, e.ReferenceID, outcome)
	return nil
}

// CancelElection moves an open election to Canceled.  Terminal elections
// are left alone.  It must run inside the caller's transaction and
// reports whether the election changed.
func (s *ElectionService) CancelElection(ctx context.Context, st repository.Store, e *model.Election) (bool, error) {
	if e.Status.Terminal() {
		return false, nil
	}
	now := s.deps.Now()
	e.Status = model.ElectionCanceled
	e.LastUpdate = &now
	if err := st.UpdateElection(ctx, e); err != nil {
		return false, storeErr(err, "election")
	}
	s.deps.Log.Info("canceled %s election %d for %s", e.Type, e.ID, e.ReferenceID)
	return true, nil
}

// settlement is what settling one election changed.
type settlement struct {
	closure  *Closure
	dar      *model.DataAccessRequest
	approved []uint64
}

// settle tallies an open election and closes it when resolvable.  Closing
// a DataAccess election re-derives the status of its request.  It must run
// inside the caller's transaction, after LockElection.
func (s *ElectionService) settle(ctx context.Context, st repository.Store, e *model.Election) (settlement, error) {
	if e.Status != model.ElectionOpen {
		return settlement{}, nil
	}
	votes, err := st.ListVotesByElection(ctx, e.ID)
	if err != nil {
		return settlement{}, storeErr(err, "vote")
	}
	res := tally.Tally(*e, votes)
	if !res.Resolvable {
		return settlement{}, nil
	}
	if err := s.CloseElection(ctx, st, e, res.Outcome, decidingRationale(*e, votes)); err != nil {
		return settlement{}, err
	}
	out := settlement{closure: &Closure{ElectionID: e.ID, ReferenceID: e.ReferenceID, Type: e.Type, Outcome: res.Outcome.String()}}
	if e.Type == model.ElectionDataAccess {
		out.dar, out.approved, err = s.decideDar(ctx, st, e.ReferenceID)
	}
	return out, err
}

// decideDar derives a request's status from its DataAccess elections.
// Each dataset is decided by the newest non-canceled DataAccess election
// covering it, its own or one over the whole request.  The request stays
// Submitted until every dataset is decided and is Approved only when every
// dataset is approved.  It returns the request and its approved datasets
// when the status changed.
func (s *ElectionService) decideDar(ctx context.Context, st repository.Store, referenceID string) (*model.DataAccessRequest, []uint64, error) {
	dar, err := st.GetDar(ctx, referenceID)
	if err != nil {
		return nil, nil, storeErr(err, "data access request")
	}
	if dar.IsCanceled() || dar.Data.Status == model.DarDraft {
		return nil, nil, nil
	}
	elections, err := st.ListElectionsByReference(ctx, []string{referenceID})
	if err != nil {
		return nil, nil, storeErr(err, "election")
	}
	decisions, complete := datasetDecisions(dar.DatasetIDs, elections)
	if !complete {
		return nil, nil, nil
	}
	status := model.DarApproved
	var approved []uint64
	for _, id := range dar.DatasetIDs {
		if decisions[id] {
			approved = append(approved, id)
		} else {
			status = model.DarDenied
		}
	}
	if status == dar.Data.Status {
		return nil, nil, nil
	}
	dar.Data.Status = status
	dar.SortDate = s.deps.Now()
	if err := st.UpdateDar(ctx, &dar); err != nil {
		return nil, nil, storeErr(err, "data access request")
	}
	s.deps.Log.Info("request %s %s (%d of %d datasets approved)", dar.ReferenceID, status, len(approved), len(dar.DatasetIDs))
	return &dar, approved, nil
}

// datasetDecisions maps each dataset to the outcome of the newest
// non-canceled DataAccess election covering it.  complete is false while
// any dataset lacks a closed one.
func datasetDecisions(datasetIDs []uint64, elections []model.Election) (map[uint64]bool, bool) {
	out := make(map[uint64]bool, len(datasetIDs))
	for _, ds := range datasetIDs {
		var latest *model.Election
		for i := range elections {
			e := &elections[i]
			if e.Type != model.ElectionDataAccess || e.Status == model.ElectionCanceled {
				continue
			}
			if e.DatasetID != ds && e.DatasetID != 0 {
				continue
			}
			if latest == nil || e.ID > latest.ID {
				latest = e
			}
		}
		if latest == nil || latest.Status != model.ElectionClosed || latest.FinalVote == nil {
			return out, false
		}
		out[ds] = *latest.FinalVote
	}
	return out, true
}

// announce tells requesters about the decisions in settled.  Call it once
// the transaction that produced them has committed.
func (s *ElectionService) announce(ctx context.Context, settled []settlement) {
	for _, st := range settled {
		if st.dar == nil {
			continue
		}
		s.deps.notify(ctx, NotifyDarDecision, []uint64{st.dar.UserID}, map[string]string{
			"referenceId":      st.dar.ReferenceID,
			"status":           string(st.dar.Data.Status),
			"approvedDatasets": joinIDs(st.approved),
		})
	}
}

// syncVoter brings user's votes on the open elections of dacID in line
// with the roles user now holds.  A new chair or member gets the votes the
// roster would have given them; a leaver loses theirs, cast or not, and
// elections the removal leaves resolvable are settled.  DataSet elections
// keep their single custodian vote.  It must run inside the caller's
// transaction.
func (s *ElectionService) syncVoter(ctx context.Context, st repository.Store, user model.User, dacID uint64) ([]settlement, error) {
	open, err := st.ListOpenElections(ctx)
	if err != nil {
		return nil, storeErr(err, "election")
	}
	now := s.deps.Now()
	var settled []settlement
	for _, candidate := range open {
		if candidate.Type == model.ElectionDataSet {
			continue
		}
		dacIDs, err := electionDacIDs(ctx, st, candidate)
		if err != nil {
			return nil, err
		}
		if !containsUint(dacIDs, dacID) {
			continue
		}
		e, err := st.LockElection(ctx, candidate.ID)
		if err != nil {
			return nil, storeErr(err, "election")
		}
		votes, err := st.ListVotesByElection(ctx, e.ID)
		if err != nil {
			return nil, storeErr(err, "vote")
		}
		held := map[model.VoteType]model.Vote{}
		for _, v := range votes {
			if v.UserID == user.ID {
				held[v.Type] = v
			}
		}
		want := map[model.VoteType]bool{
			model.VoteDAC:         memberOfAny(user, dacIDs),
			model.VoteChairperson: chairOfAny(user, dacIDs),
		}
		var add []model.Vote
		removed := 0
		for _, typ := range []model.VoteType{model.VoteDAC, model.VoteChairperson} {
			v, ok := held[typ]
			switch {
			case want[typ] && !ok:
				add = append(add, model.Vote{ElectionID: e.ID, UserID: user.ID, Type: typ, CreateDate: now})
			case !want[typ] && ok:
				if err := st.DeleteVote(ctx, v.ID); err != nil {
					return nil, storeErr(err, "vote")
				}
				removed++
			}
		}
		if len(add) > 0 {
			if _, err := st.CreateVotes(ctx, add); err != nil {
				return nil, storeErr(err, "vote")
			}
		}
		if len(add) == 0 && removed == 0 {
			continue
		}
		s.deps.Log.Info("election %d: user %d gained %d and lost %d votes", e.ID, user.ID, len(add), removed)
		if removed == 0 {
			continue
		}
		out, err := s.settle(ctx, st, &e)
		if err != nil {
			return nil, err
		}
		if out.closure != nil {
			settled = append(settled, out)
		}
	}
	return settled, nil
}

// electionDacIDs resolves the DACs responsible for an election.
func electionDacIDs(ctx context.Context, st repository.Store, e model.Election) ([]uint64, error) {
	if e.DatasetID != 0 {
		ds, err := st.GetDataset(ctx, e.DatasetID)
		if err != nil {
			return nil, storeErr(err, "dataset")
		}
		return []uint64{ds.DacID}, nil
	}
	if e.Type == model.ElectionTranslateDUL {
		sets, err := st.ListDatasetsByConsent(ctx, e.ReferenceID)
		if err != nil {
			return nil, storeErr(err, "dataset")
		}
		return datasetDacIDs(sets), nil
	}
	dar, err := st.GetDar(ctx, e.ReferenceID)
	if err != nil {
		return nil, storeErr(err, "data access request")
	}
	sets, err := st.ListDatasets(ctx, dar.DatasetIDs)
	if err != nil {
		return nil, storeErr(err, "dataset")
	}
	return datasetDacIDs(sets), nil
}

func datasetDacIDs(sets []model.Dataset) []uint64 {
	seen := map[uint64]bool{}
	var ids []uint64
	for _, ds := range sets {
		if !seen[ds.DacID] {
			seen[ds.DacID] = true
			ids = append(ids, ds.DacID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func findDataset(sets []model.Dataset, id uint64) (model.Dataset, bool) {
	for _, ds := range sets {
		if ds.ID == id {
			return ds, true
		}
	}
	return model.Dataset{}, false
}

func memberOfAny(u model.User, dacIDs []uint64) bool {
	for _, id := range u.DacIDs() {
		if containsUint(dacIDs, id) {
			return true
		}
	}
	return false
}

func chairOfAny(u model.User, dacIDs []uint64) bool {
	for _, id := range dacIDs {
		if u.IsChairOf(id) {
			return true
		}
	}
	return false
}

func containsUint(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func scopeName(datasetID uint64) string {
	if datasetID == 0 {
		return "whole request"
	}
	return "dataset " + strconv.FormatUint(datasetID, 10)
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}

func voterIDs(votes []model.Vote) []uint64 {
	seen := map[uint64]bool{}
	var ids []uint64
	for _, v := range votes {
		if !seen[v.UserID] {
			seen[v.UserID] = true
			ids = append(ids, v.UserID)
		}
	}
	return ids
}
