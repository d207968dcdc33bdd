package service

import (
	"reflect"
	"testing"

	"github.com/iliyamo/dac-governance/internal/model"
)

// allowed marks a table row that must succeed.
const allowed Kind = -1

func TestSigningOfficialRoleChanges(t *testing.T) {
	f := newFixture(t)
	homeless := f.store.PutUser(model.User{Email: "n@example.org"})

	tests := []struct {
		name   string
		actor  model.User
		target uint64
		role   string
		dacID  uint64
		revoke bool
		want   Kind
	}{
		{"grant data submitter in institution", f.so, f.researcher.ID, "DataSubmitter", 0, false, allowed},
		{"grant chairperson", f.so, f.researcher.ID, "Chairperson", dacID, false, KindBadRequest},
		{"grant admin", f.so, f.researcher.ID, "Admin", 0, false, KindBadRequest},
		{"unknown role", f.so, f.researcher.ID, "Wizard", 0, false, KindBadRequest},
		{"other institution", f.so, f.outsider.ID, "ITDirector", 0, false, KindForbidden},
		{"own signing official role", f.so, f.so.ID, "SigningOfficial", 0, true, KindForbidden},
		{"revoke missing role", f.so, f.researcher.ID, "ITDirector", 0, true, KindNotModified},
		{"not a signing official", f.member1, f.researcher.ID, "DataSubmitter", 0, false, KindForbidden},
		{"unknown user", f.so, 4242, "DataSubmitter", 0, false, KindNotFound},
		{"dac role without dac", f.admin, f.member1.ID, "Member", 0, false, KindBadRequest},
		{"dac role on unknown dac", f.admin, f.member1.ID, "Member", 99, false, KindNotFound},
		{"admin grants chair", f.admin, f.member1.ID, "Chairperson", 8, false, allowed},
		{"grant to user without institution", f.so, homeless.ID, "DataSubmitter", 0, false, allowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.revoke {
				_, err = f.users.RemoveRole(f.ctx, tt.actor, tt.target, tt.role, tt.dacID)
			} else {
				_, err = f.users.AddRole(f.ctx, tt.actor, tt.target, tt.role, tt.dacID)
			}
			if tt.want == allowed {
				if err != nil {
					t.Fatalf("error = %v", err)
				}
				return
			}
			wantKind(t, err, tt.want)
		})
	}

	got, err := f.store.GetUser(f.ctx, homeless.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.InstitutionID == nil || *got.InstitutionID != institution {
		t.Errorf("institution = %v, want %d", got.InstitutionID, institution)
	}
}

func TestRoleGrantAndRevoke(t *testing.T) {
	f := newFixture(t)

	u, err := f.users.AddRole(f.ctx, f.so, f.researcher.ID, "ITDirector", 0)
	if err != nil {
		t.Fatalf("AddRole() error = %v", err)
	}
	if !u.HasRole(model.RoleITDirector) {
		t.Errorf("roles = %+v, want ITDirector", u.Roles)
	}
	_, err = f.users.AddRole(f.ctx, f.so, f.researcher.ID, "ITDirector", 0)
	wantKind(t, err, KindNotModified)

	u, err = f.users.RemoveRole(f.ctx, f.so, f.researcher.ID, "ITDirector", 0)
	if err != nil {
		t.Fatalf("RemoveRole() error = %v", err)
	}
	if u.HasRole(model.RoleITDirector) {
		t.Errorf("ITDirector still held: %+v", u.Roles)
	}
	_, err = f.users.RemoveRole(f.ctx, f.so, f.researcher.ID, "ITDirector", 0)
	wantKind(t, err, KindNotModified)
}

func TestDacRolesAreScoped(t *testing.T) {
	f := newFixture(t)
	u, err := f.users.AddRole(f.ctx, f.admin, f.member1.ID, "Member", 8)
	if err != nil {
		t.Fatalf("AddRole() error = %v", err)
	}
	if got := u.DacIDs(); len(got) != 2 {
		t.Errorf("DAC ids = %v, want memberships of 7 and 8", got)
	}
	_, err = f.users.AddRole(f.ctx, f.admin, f.member1.ID, "Member", dacID)
	wantKind(t, err, KindNotModified)
}

func votesByType(t *testing.T, f *fixture, electionID, userID uint64) map[model.VoteType]int {
	t.Helper()
	votes, err := f.store.ListVotesByElection(f.ctx, electionID)
	if err != nil {
		t.Fatal(err)
	}
	out := map[model.VoteType]int{}
	for _, v := range votes {
		if v.UserID == userID {
			out[v.Type]++
		}
	}
	return out
}

func TestRevokedMemberLeavesOpenElections(t *testing.T) {
	f := newFixture(t)
	d, ref := openAccessElection(t, f)
	for _, u := range []model.User{f.member1, f.chair} {
		if _, err := f.votes.UpdateVotesWithValue(f.ctx, u, voteIDsOf(d, u.ID), true, ""); err != nil {
			t.Fatal(err)
		}
	}
	if e, _ := f.store.GetElection(f.ctx, d.Election.ID); e.Status != model.ElectionOpen {
		t.Fatalf("election %s while member2 is pending", e.Status)
	}

	if _, err := f.users.RemoveRole(f.ctx, f.admin, f.member2.ID, "Member", dacID); err != nil {
		t.Fatalf("RemoveRole() error = %v", err)
	}
	if got := votesByType(t, f, d.Election.ID, f.member2.ID); len(got) != 0 {
		t.Errorf("member2 still holds votes %v", got)
	}
	e, _ := f.store.GetElection(f.ctx, d.Election.ID)
	if e.Status != model.ElectionClosed || e.FinalVote == nil || !*e.FinalVote {
		t.Errorf("election = %s final %v, want Closed with Yes", e.Status, e.FinalVote)
	}
	dar, _ := f.store.GetDar(f.ctx, ref)
	if dar.Data.Status != model.DarApproved {
		t.Errorf("DAR status = %s, want Approved", dar.Data.Status)
	}
	kinds := f.notifier.kinds()
	if kinds[len(kinds)-1] != NotifyDarDecision {
		t.Errorf("last notification = %s, want %s", kinds[len(kinds)-1], NotifyDarDecision)
	}
}

func TestGrantedDacRolesJoinOpenElections(t *testing.T) {
	f := newFixture(t)
	d, _ := openAccessElection(t, f)
	newcomer := f.store.PutUser(model.User{Email: "new@example.org", InstitutionID: ptr(1)})

	tests := []struct {
		name  string
		user  model.User
		role  string
		dac   uint64
		votes map[model.VoteType]int
	}{
		{"member of another DAC", newcomer, "Member", 8, map[model.VoteType]int{}},
		{"new member", newcomer, "Member", dacID, map[model.VoteType]int{model.VoteDAC: 1}},
		{"member promoted to chair", f.member1, "Chairperson", dacID, map[model.VoteType]int{model.VoteDAC: 1, model.VoteChairperson: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.users.AddRole(f.ctx, f.admin, tt.user.ID, tt.role, tt.dac); err != nil {
				t.Fatalf("AddRole() error = %v", err)
			}
			got := votesByType(t, f, d.Election.ID, tt.user.ID)
			if !reflect.DeepEqual(got, tt.votes) {
				t.Errorf("votes = %v, want %v", got, tt.votes)
			}
		})
	}

	if e, _ := f.store.GetElection(f.ctx, d.Election.ID); e.Status != model.ElectionOpen {
		t.Errorf("election = %s after grants, want Open", e.Status)
	}
}

func TestLastChairpersonStays(t *testing.T) {
	f := newFixture(t)
	d, _ := openAccessElection(t, f)

	_, err := f.users.RemoveRole(f.ctx, f.admin, f.chair.ID, "Chairperson", dacID)
	wantKind(t, err, KindForbidden)
	if got := votesByType(t, f, d.Election.ID, f.chair.ID); got[model.VoteChairperson] != 1 {
		t.Fatalf("chair votes = %v after refused revoke", got)
	}

	if _, err := f.users.AddRole(f.ctx, f.admin, f.member1.ID, "Chairperson", dacID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.users.RemoveRole(f.ctx, f.admin, f.chair.ID, "Chairperson", dacID); err != nil {
		t.Fatalf("RemoveRole() with a second chair error = %v", err)
	}
	if got := votesByType(t, f, d.Election.ID, f.chair.ID); len(got) != 0 {
		t.Errorf("former chair still holds votes %v", got)
	}
	if e, _ := f.store.GetElection(f.ctx, d.Election.ID); e.Status != model.ElectionOpen {
		t.Errorf("election = %s, want Open until the new chair votes", e.Status)
	}
}
