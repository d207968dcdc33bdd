package tally

import (
	"testing"

	"github.com/iliyamo/dac-governance/internal/model"
)

func boolp(b bool) *bool { return &b }

// dacVotes builds the vote set of a DAC election: one DAC vote per member,
// plus a DAC and a Chairperson vote for the chair.
func dacVotes(members int) []model.Vote {
	var votes []model.Vote
	id := uint64(1)
	for i := 0; i < members; i++ {
		votes = append(votes, model.Vote{ID: id, UserID: uint64(10 + i), Type: model.VoteDAC})
		id++
	}
	votes = append(votes,
		model.Vote{ID: id, UserID: 1, Type: model.VoteDAC},
		model.Vote{ID: id + 1, UserID: 1, Type: model.VoteChairperson},
	)
	return votes
}

// assignments enumerates every nil/yes/no assignment over n votes.
func assignments(n int) [][]*bool {
	states := []*bool{nil, boolp(true), boolp(false)}
	out := [][]*bool{{}}
	for i := 0; i < n; i++ {
		var next [][]*bool
		for _, prefix := range out {
			for _, s := range states {
				row := append(append([]*bool{}, prefix...), s)
				next = append(next, row)
			}
		}
		out = next
	}
	return out
}

func apply(votes []model.Vote, values []*bool) []model.Vote {
	cp := make([]model.Vote, len(votes))
	copy(cp, votes)
	for i := range cp {
		cp[i].Vote = values[i]
	}
	return cp
}

func chairValue(votes []model.Vote) *bool {
	for _, v := range votes {
		if v.Type == model.VoteChairperson {
			return v.Vote
		}
	}
	return nil
}

func TestChairDecides(t *testing.T) {
	for _, typ := range []model.ElectionType{model.ElectionDataAccess, model.ElectionTranslateDUL, model.ElectionRP} {
		e := model.Election{ID: 1, Type: typ}
		base := dacVotes(2)
		for _, values := range assignments(len(base)) {
			votes := apply(base, values)
			chair := chairValue(votes)
			if chair == nil {
				continue
			}
			got := Tally(e, votes).Outcome
			want := No
			if *chair {
				want = Yes
			}
			if got != want {
				t.Fatalf("%s: outcome %s, want %s for votes %v", typ, got, want, values)
			}
		}
	}
}

func TestResolvabilityMonotonic(t *testing.T) {
	for _, typ := range []model.ElectionType{model.ElectionDataAccess, model.ElectionRP, model.ElectionDataSet} {
		e := model.Election{ID: 1, Type: typ}
		base := dacVotes(2)
		if typ == model.ElectionDataSet {
			base = []model.Vote{{ID: 1, UserID: 3, Type: model.VoteFinal}}
		}
		for _, values := range assignments(len(base)) {
			votes := apply(base, values)
			if !Tally(e, votes).Resolvable {
				continue
			}
			for i := range votes {
				if votes[i].Cast() {
					continue
				}
				for _, v := range []bool{true, false} {
					more := apply(votes, values)
					more[i].Vote = boolp(v)
					if !Tally(e, more).Resolvable {
						t.Fatalf("%s: casting vote %d flipped resolvable for %v", typ, i, values)
					}
				}
			}
		}
	}
}

func TestRPFastTrack(t *testing.T) {
	yes, no := boolp(true), boolp(false)
	tests := []struct {
		name   string
		values []*bool // four members, chair DAC, chair Chairperson
		want   Result
	}{
		{"majority with pending votes", []*bool{yes, yes, nil, nil, yes, yes}, Result{true, Yes}},
		{"dissent still below majority", []*bool{yes, no, nil, nil, yes, yes}, Result{false, Yes}},
		{"all cast, chair decides", []*bool{yes, yes, no, no, yes, yes}, Result{true, Yes}},
		{"chair pending", []*bool{yes, yes, yes, yes, yes, nil}, Result{false, Undetermined}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tally(model.Election{ID: 1, Type: model.ElectionRP}, apply(dacVotes(4), tt.values))
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTally(t *testing.T) {
	yes, no := boolp(true), boolp(false)
	tests := []struct {
		name  string
		typ   model.ElectionType
		votes []*bool // member, member, chair DAC, chair Chairperson
		want  Result
	}{
		{"all yes closes", model.ElectionDataAccess, []*bool{yes, yes, yes, yes}, Result{true, Yes}},
		{"chair no overrides members", model.ElectionDataAccess, []*bool{yes, yes, yes, no}, Result{true, No}},
		{"member pending", model.ElectionDataAccess, []*bool{yes, nil, yes, yes}, Result{false, Yes}},
		{"chair pending", model.ElectionDataAccess, []*bool{yes, yes, yes, nil}, Result{false, Undetermined}},
		{"rp fast track on majority", model.ElectionRP, []*bool{yes, nil, yes, yes}, Result{true, Yes}},
		{"rp no majority yet", model.ElectionRP, []*bool{nil, nil, yes, yes}, Result{false, Yes}},
		{"rp chair no waits for all", model.ElectionRP, []*bool{yes, nil, yes, no}, Result{false, No}},
		{"dul chair decides", model.ElectionTranslateDUL, []*bool{no, no, no, yes}, Result{true, Yes}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tally(model.Election{ID: 1, Type: tt.typ}, apply(dacVotes(2), tt.votes))
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTallyCustodian(t *testing.T) {
	e := model.Election{ID: 1, Type: model.ElectionDataSet}
	if r := Tally(e, nil); r.Resolvable {
		t.Fatalf("election without votes must not resolve: %+v", r)
	}
	pending := []model.Vote{{ID: 1, Type: model.VoteFinal}}
	if r := Tally(e, pending); r.Resolvable || r.Outcome != Undetermined {
		t.Fatalf("pending custodian vote: %+v", r)
	}
	pending[0].Vote = boolp(false)
	if r := Tally(e, pending); !r.Resolvable || r.Outcome != No {
		t.Fatalf("custodian no: %+v", r)
	}
}

func TestNoChairNeverResolves(t *testing.T) {
	votes := []model.Vote{{ID: 1, Type: model.VoteDAC, Vote: boolp(true)}}
	if r := Tally(model.Election{Type: model.ElectionDataAccess}, votes); r.Resolvable {
		t.Fatalf("election without chair vote resolved: %+v", r)
	}
}
