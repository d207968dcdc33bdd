// Package tally decides whether an election can be resolved from its
// current set of votes and what the outcome is.  Nothing here touches
// storage; the election service feeds it the votes it read inside the
// election's unit of work.
package tally

import "github.com/iliyamo/dac-governance/internal/model"

// Outcome is the decision an election's votes point to.
type Outcome int

const (
	Undetermined Outcome = iota
	Yes
	No
)

func (o Outcome) String() string {
	switch o {
	case Yes:
		return "Yes"
	case No:
		return "No"
	}
	return "Undetermined"
}

// Bool returns the outcome as a vote value, nil when undetermined.
func (o Outcome) Bool() *bool {
	if o == Undetermined {
		return nil
	}
	v := o == Yes
	return &v
}

// Result is the verdict of a tally.
type Result struct {
	Resolvable bool
	Outcome    Outcome
}

// Tally evaluates votes under the rules of the election's type:
//
//   - DataAccess and TranslateDUL: the chair decides.  Resolvable once every
//     DAC, Chairperson and Final vote is cast.
//   - RP: the chair decides as above.  It is also resolvable early, with
//     outcome Yes, when every Chairperson vote is cast and yes and more than
//     half of all DAC votes (cast or not) are yes.  DAC No votes do not
//     block this path, so casting another vote never turns a resolvable
//     RP election back into an unresolvable one.
//   - DataSet: the custodian's Final/Agreement vote decides as soon as it
//     is cast.
//
// For chair-decided types the outcome follows the chair vote whenever it is
// cast, whether or not the election is resolvable yet.
func Tally(e model.Election, votes []model.Vote) Result {
	switch e.Type {
	case model.ElectionDataSet:
		return custodianDecides(votes)
	case model.ElectionRP:
		r := chairDecides(votes)
		if !r.Resolvable && r.Outcome == Yes && allChairsCast(votes) && dacMajorityYes(votes) {
			r.Resolvable = true
		}
		return r
	default:
		return chairDecides(votes)
	}
}

func chairDecides(votes []model.Vote) Result {
	chairs := 0
	outcome := Undetermined
	complete := true
	for _, v := range votes {
		switch v.Type {
		case model.VoteChairperson:
			chairs++
			if !v.Cast() {
				complete = false
				continue
			}
			if !*v.Vote {
				outcome = No
			} else if outcome == Undetermined {
				outcome = Yes
			}
		case model.VoteDAC, model.VoteFinal:
			if !v.Cast() {
				complete = false
			}
		}
	}
	return Result{Resolvable: chairs > 0 && complete, Outcome: outcome}
}

func custodianDecides(votes []model.Vote) Result {
	found := false
	outcome := Undetermined
	for _, v := range votes {
		if v.Type != model.VoteFinal && v.Type != model.VoteAgreement {
			continue
		}
		found = true
		if !v.Cast() {
			return Result{}
		}
		if !*v.Vote {
			outcome = No
		} else if outcome == Undetermined {
			outcome = Yes
		}
	}
	if !found {
		return Result{}
	}
	return Result{Resolvable: true, Outcome: outcome}
}

func allChairsCast(votes []model.Vote) bool {
	for _, v := range votes {
		if v.Type == model.VoteChairperson && !v.Cast() {
			return false
		}
	}
	return true
}

func dacMajorityYes(votes []model.Vote) bool {
	total, yes := 0, 0
	for _, v := range votes {
		if v.Type != model.VoteDAC {
			continue
		}
		total++
		if v.Cast() && *v.Vote {
			yes++
		}
	}
	return total > 0 && yes*2 > total
}
