package service

import (
	"context"
	"sort"

	"github.com/iliyamo/dac-governance/internal/authz"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
)

// VoteService applies vote writes and closes the elections they resolve.
type VoteService struct {
	deps      Deps
	elections *ElectionService
}

func NewVoteService(d Deps, elections *ElectionService) *VoteService {
	return &VoteService{deps: d.withDefaults(), elections: elections}
}

// Closure reports an election closed by a vote update.
type Closure struct {
	ElectionID  uint64             `json:"electionId"`
	ReferenceID string             `json:"referenceId"`
	Type        model.ElectionType `json:"electionType"`
	Outcome     string             `json:"outcome"`
}

// VoteUpdate is the result of a bulk update.
type VoteUpdate struct {
	Votes  []model.Vote `json:"votes"`
	Closed []Closure    `json:"closedElections"`
}

// UpdateVotesWithValue sets value and rationale on the caller's votes and
// re-evaluates every affected election.  The whole batch is validated
// before anything is written: unknown or foreign vote ids are NotFound,
// votes on elections the caller may no longer vote on are Forbidden, votes
// on elections that no longer accept them are BadRequest, and an approval
// of a DataAccess election whose requester holds no library card rejects
// the batch.  The writes and closures then run in one transaction that
// locks the elections in id order, so the batch applies completely or not
// at all.
func (s *VoteService) UpdateVotesWithValue(ctx context.Context, actor model.User, voteIDs []uint64, value bool, rationale string) (VoteUpdate, error) {
	batch, err := s.load(ctx, actor, voteIDs)
	if err != nil {
		return VoteUpdate{}, err
	}
	changes := func(v model.Vote) bool {
		return v.Vote == nil || *v.Vote != value || v.Rationale != rationale
	}
	if err := s.checkWritable(batch, changes); err != nil {
		return VoteUpdate{}, err
	}
	if value {
		if err := s.checkLibraryCards(ctx, batch); err != nil {
			return VoteUpdate{}, err
		}
	}

	var (
		out     VoteUpdate
		settled []settlement
	)
	err = s.deps.Store.WithTx(ctx, func(tx repository.Store) error {
		out, settled = VoteUpdate{}, nil
		now := s.deps.Now()
		for _, g := range batch {
			e, err := tx.LockElection(ctx, g.election.ID)
			if err != nil {
				return storeErr(err, "election")
			}
			current, err := tx.ListVotes(ctx, g.ids())
			if err != nil {
				return storeErr(err, "vote")
			}
			if len(current) != len(g.votes) {
				return notFound("vote not found")
			}
			if err := s.checkWritable([]electionVotes{{election: e, votes: current}}, changes); err != nil {
				return err
			}
			for i := range current {
				v := &current[i]
				if !changes(*v) {
					continue
				}
				val := value
				v.Vote = &val
				v.Rationale = rationale
				v.UpdateDate = &now
				if err := tx.UpdateVote(ctx, *v); err != nil {
					return storeErr(err, "vote")
				}
			}
			out.Votes = append(out.Votes, current...)
			res, err := s.elections.settle(ctx, tx, &e)
			if err != nil {
				return err
			}
			if res.closure != nil {
				out.Closed = append(out.Closed, *res.closure)
				settled = append(settled, res)
			}
		}
		return nil
	})
	if err != nil {
		return VoteUpdate{}, err
	}
	s.elections.announce(ctx, settled)
	sort.Slice(out.Votes, func(i, j int) bool { return out.Votes[i].ID < out.Votes[j].ID })
	return out, nil
}

// UpdateRationale sets only the rationale of the caller's votes.  It never
// closes an election.
func (s *VoteService) UpdateRationale(ctx context.Context, actor model.User, voteIDs []uint64, rationale string) ([]model.Vote, error) {
	batch, err := s.load(ctx, actor, voteIDs)
	if err != nil {
		return nil, err
	}
	changes := func(v model.Vote) bool { return v.Rationale != rationale }
	if err := s.checkWritable(batch, changes); err != nil {
		return nil, err
	}
	var out []model.Vote
	err = s.deps.Store.WithTx(ctx, func(tx repository.Store) error {
		out = nil
		now := s.deps.Now()
		for _, g := range batch {
			for _, v := range g.votes {
				if changes(v) {
					v.Rationale = rationale
					v.UpdateDate = &now
					if err := tx.UpdateVote(ctx, v); err != nil {
						return storeErr(err, "vote")
					}
				}
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// electionVotes are the batch's votes on one election.
type electionVotes struct {
	election model.Election
	votes    []model.Vote
}

func (g electionVotes) ids() []uint64 {
	ids := make([]uint64, len(g.votes))
	for i, v := range g.votes {
		ids[i] = v.ID
	}
	return ids
}

// load resolves the vote ids, checks that every one belongs to actor and
// that actor may still vote on its election, and groups them by election
// in id order.
func (s *VoteService) load(ctx context.Context, actor model.User, voteIDs []uint64) ([]electionVotes, error) {
	if len(voteIDs) == 0 {
		return nil, badRequest("voteIds is required")
	}
	seen := map[uint64]bool{}
	var ids []uint64
	for _, id := range voteIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	votes, err := s.deps.Store.ListVotes(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "vote")
	}
	if len(votes) != len(ids) {
		return nil, notFound("vote not found")
	}
	byElection := map[uint64]*electionVotes{}
	var order []uint64
	for _, v := range votes {
		if v.UserID != actor.ID {
			return nil, notFound("vote %d not found", v.ID)
		}
		g, ok := byElection[v.ElectionID]
		if !ok {
			e, err := s.deps.Store.GetElection(ctx, v.ElectionID)
			if err != nil {
				return nil, storeErr(err, "election")
			}
			if err := s.mayVote(ctx, actor, e); err != nil {
				return nil, err
			}
			g = &electionVotes{election: e}
			byElection[v.ElectionID] = g
			order = append(order, v.ElectionID)
		}
		g.votes = append(g.votes, v)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]electionVotes, len(order))
	for i, id := range order {
		out[i] = *byElection[id]
	}
	return out, nil
}

// checkWritable rejects votes on elections that no longer accept writes.
// RP votes stay editable after closure; other types only while open.
// Votes that changes reports as unchanged are always accepted so a
// repeated request stays a no-op.
func (s *VoteService) checkWritable(batch []electionVotes, changes func(model.Vote) bool) error {
	for _, g := range batch {
		e := g.election
		if e.Status == model.ElectionOpen || (e.Type == model.ElectionRP && e.Status == model.ElectionClosed) {
			continue
		}
		for _, v := range g.votes {
			if changes(v) {
				return badRequest("election %d is %s and no longer accepts votes", e.ID, e.Status)
			}
		}
	}
	return nil
}

// checkLibraryCards rejects approving access for a requester that holds
// no library card.  It reads only, so a failure leaves every election in
// the batch untouched.
func (s *VoteService) checkLibraryCards(ctx context.Context, batch []electionVotes) error {
	checked := map[string]bool{}
	for _, g := range batch {
		e := g.election
		if e.Type != model.ElectionDataAccess || checked[e.ReferenceID] {
			continue
		}
		checked[e.ReferenceID] = true
		dar, err := s.deps.Store.GetDar(ctx, e.ReferenceID)
		if err != nil {
			return storeErr(err, "data access request")
		}
		cards, err := s.deps.Store.ListLibraryCards(ctx, dar.UserID)
		if err != nil {
			return storeErr(err, "library card")
		}
		if len(cards) == 0 {
			return badRequest("the requester of %s holds no library card; access cannot be approved", e.ReferenceID)
		}
	}
	return nil
}

// mayVote asks the resolver whether actor still votes on e.  A DataSet
// election's single vote belongs to the custodian it was assigned to,
// who need not sit on the DAC.
func (s *VoteService) mayVote(ctx context.Context, actor model.User, e model.Election) error {
	if e.Type == model.ElectionDataSet {
		return nil
	}
	dacIDs, err := electionDacIDs(ctx, s.deps.Store, e)
	if err != nil {
		return err
	}
	if res := authz.Authorize(actor, authz.ActionVote, authz.Target{DacIDs: dacIDs}); !res.Allowed() {
		return forbidden("not allowed to vote on election %d: %s", e.ID, res.Reason)
	}
	return nil
}

// decidingRationale is the rationale of the vote that decides e.
func decidingRationale(e model.Election, votes []model.Vote) string {
	want := model.VoteChairperson
	if e.Type == model.ElectionDataSet {
		want = model.VoteFinal
	}
	for _, v := range votes {
		if (v.Type == want || (want == model.VoteFinal && v.Type == model.VoteAgreement)) && v.Rationale != "" {
			return v.Rationale
		}
	}
	return ""
}
