package service

import (
	"errors"
	"testing"

	"github.com/iliyamo/dac-governance/internal/model"
)

func TestSubmitRequiresLibraryCard(t *testing.T) {
	f := newFixture(t)
	_, err := f.dars.Submit(f.ctx, f.researcher, DarInput{DatasetIDs: []uint64{f.ds1.ID}, ProjectTitle: "p"})
	wantKind(t, err, KindBadRequest)
	if all, _ := f.store.ListCollections(f.ctx); len(all) != 0 {
		t.Errorf("%d collections written", len(all))
	}
}

func TestSubmitSideEffects(t *testing.T) {
	f := newFixture(t)
	f.giveCard(t, f.researcher)
	f.notifier.err = errors.New("mail relay down")

	c, ref := f.submit(t, f.ds1, f.ds2)
	if c.Status != model.CollectionSubmitted {
		t.Errorf("collection status = %s", c.Status)
	}
	dar := c.Dars[ref]
	if dar.CollectionID == nil || *dar.CollectionID != c.ID || dar.SubmissionDate == nil {
		t.Errorf("dar = %+v", dar)
	}
	if len(f.matcher.refs) != 1 || f.matcher.refs[0] != ref {
		t.Errorf("reprocessed %v, want [%s]", f.matcher.refs, ref)
	}
	if kinds := f.notifier.kinds(); len(kinds) != 1 || kinds[0] != NotifyNewDar {
		t.Errorf("notifications = %v", kinds)
	}
	if got := f.notifier.sent[0].recipients; len(got) != 1 || got[0] != f.chair.ID {
		t.Errorf("new DAR recipients = %v, want chair", got)
	}
}

func TestSubmitDraft(t *testing.T) {
	f := newFixture(t)
	f.giveCard(t, f.researcher)
	draft, err := f.dars.SaveDraft(f.ctx, f.researcher, DarInput{DatasetIDs: []uint64{f.ds1.ID}, ProjectTitle: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.dars.SaveDraft(f.ctx, f.outsider, DarInput{ReferenceID: draft.ReferenceID, DatasetIDs: []uint64{f.ds1.ID}, ProjectTitle: "x"})
	wantKind(t, err, KindNotFound)

	c, err := f.dars.Submit(f.ctx, f.researcher, DarInput{ReferenceID: draft.ReferenceID, DatasetIDs: []uint64{f.ds1.ID, f.ds2.ID}, ProjectTitle: "v2"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	got, ok := c.Dars[draft.ReferenceID]
	if !ok || got.Data.Status != model.DarSubmitted || got.Data.ProjectTitle != "v2" || len(got.DatasetIDs) != 2 {
		t.Errorf("submitted draft = %+v", got)
	}
	_, err = f.dars.Submit(f.ctx, f.researcher, DarInput{ReferenceID: draft.ReferenceID, DatasetIDs: []uint64{f.ds1.ID}, ProjectTitle: "v3"})
	wantKind(t, err, KindBadRequest)

	_, err = f.dars.GetDar(f.ctx, f.outsider, draft.ReferenceID)
	wantKind(t, err, KindNotFound)
	if _, err := f.dars.GetDar(f.ctx, f.member1, draft.ReferenceID); err != nil {
		t.Errorf("member GetDar() error = %v", err)
	}
}

func TestSubmitRejectsUnknownDatasets(t *testing.T) {
	f := newFixture(t)
	f.giveCard(t, f.researcher)
	inactive := f.store.PutDataset(model.Dataset{Name: "old", DacID: dacID})
	for _, ids := range [][]uint64{nil, {4242}, {inactive.ID}} {
		_, err := f.dars.Submit(f.ctx, f.researcher, DarInput{DatasetIDs: ids, ProjectTitle: "p"})
		wantKind(t, err, KindBadRequest)
	}
}

func TestCancelCascade(t *testing.T) {
	f := newFixture(t)
	f.giveCard(t, f.researcher)
	c, ref := f.submit(t, f.ds1, f.ds2)

	created, err := f.dars.CreateElectionsForCollection(f.ctx, f.chair, c.ID)
	if err != nil {
		t.Fatalf("CreateElectionsForCollection() error = %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("created %d elections, want DataAccess and RP for 2 datasets", len(created))
	}

	out, err := f.dars.Cancel(f.ctx, f.researcher, c.ID, "")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if out.Status != model.CollectionCanceled {
		t.Errorf("collection status = %s", out.Status)
	}
	for r, d := range out.Dars {
		if d.Data.Status != model.DarCanceled {
			t.Errorf("DAR %s status = %s", r, d.Data.Status)
		}
	}
	elections, _ := f.store.ListElectionsByReference(f.ctx, []string{ref})
	for _, e := range elections {
		if e.Status != model.ElectionCanceled {
			t.Errorf("election %d status = %s, want Canceled", e.ID, e.Status)
		}
	}

	_, err = f.dars.Cancel(f.ctx, f.researcher, c.ID, string(model.RoleResearcher))
	wantKind(t, err, KindBadRequest)
	if _, err := f.dars.Cancel(f.ctx, f.admin, c.ID, string(model.RoleAdmin)); err != nil {
		t.Errorf("admin repeat cancel error = %v", err)
	}
	if _, err := f.dars.Cancel(f.ctx, f.chair, c.ID, ""); err != nil {
		t.Errorf("chair repeat cancel error = %v", err)
	}
}

func TestCancelPermissions(t *testing.T) {
	f := newFixture(t)
	f.giveCard(t, f.researcher)
	c, _ := f.submit(t, f.ds1)

	_, err := f.dars.Cancel(f.ctx, f.outsider, c.ID, "")
	wantKind(t, err, KindNotFound)
	_, err = f.dars.Cancel(f.ctx, f.member1, c.ID, "")
	wantKind(t, err, KindForbidden)
	_, err = f.dars.Cancel(f.ctx, f.member1, c.ID, "Admin")
	wantKind(t, err, KindBadRequest)
	_, err = f.dars.Cancel(f.ctx, f.member1, c.ID, "Wizard")
	wantKind(t, err, KindBadRequest)
	_, err = f.dars.Cancel(f.ctx, f.researcher, 4242, "")
	wantKind(t, err, KindNotFound)

	out, err := f.dars.Cancel(f.ctx, f.chair, c.ID, string(model.RoleChairperson))
	if err != nil {
		t.Fatalf("chair Cancel() error = %v", err)
	}
	if out.Status != model.CollectionCanceled {
		t.Errorf("status = %s", out.Status)
	}
}

func TestResubmit(t *testing.T) {
	f := newFixture(t)
	f.giveCard(t, f.researcher)
	c, ref := f.submit(t, f.ds1, f.ds2)

	_, err := f.dars.Resubmit(f.ctx, f.researcher, c.ID)
	wantKind(t, err, KindBadRequest)

	if _, err := f.dars.Cancel(f.ctx, f.researcher, c.ID, ""); err != nil {
		t.Fatal(err)
	}
	_, err = f.dars.Resubmit(f.ctx, f.admin, c.ID)
	wantKind(t, err, KindNotFound)
	_, err = f.dars.Resubmit(f.ctx, f.researcher, 4242)
	wantKind(t, err, KindNotFound)

	draft, err := f.dars.Resubmit(f.ctx, f.researcher, c.ID)
	if err != nil {
		t.Fatalf("Resubmit() error = %v", err)
	}
	if draft.Data.Status != model.DarDraft || draft.CollectionID != nil {
		t.Errorf("draft = %+v", draft)
	}
	if draft.Data.ParentReferenceID != ref || draft.ReferenceID == ref {
		t.Errorf("draft parent = %q, reference = %q", draft.Data.ParentReferenceID, draft.ReferenceID)
	}
	if draft.Data.ProjectTitle != "genomes" || len(draft.DatasetIDs) != 2 {
		t.Errorf("draft data not copied: %+v", draft)
	}
}

func TestCreateElectionsForCollectionIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.giveCard(t, f.researcher)
	c, ref := f.submit(t, f.ds1, f.ds2)
	if _, err := f.elections.CreateElection(f.ctx, f.chair, model.ElectionDataAccess, ref, f.ds2.ID); err != nil {
		t.Fatal(err)
	}

	_, err := f.dars.CreateElectionsForCollection(f.ctx, f.chair, c.ID)
	wantKind(t, err, KindBadRequest)
	elections, _ := f.store.ListElectionsByReference(f.ctx, []string{ref})
	if len(elections) != 1 {
		t.Errorf("%d elections after failed batch, want 1", len(elections))
	}

	_, err = f.dars.CreateElectionsForCollection(f.ctx, f.outsider, c.ID)
	wantKind(t, err, KindNotFound)
	_, err = f.dars.CreateElectionsForCollection(f.ctx, f.member1, c.ID)
	wantKind(t, err, KindForbidden)
}

func TestListCollections(t *testing.T) {
	f := newFixture(t)
	f.giveCard(t, f.researcher)
	c, _ := f.submit(t, f.ds1)

	tests := []struct {
		name  string
		actor model.User
		role  string
		want  int
	}{
		{"owner", f.researcher, "", 1},
		{"owner as researcher", f.researcher, "Researcher", 1},
		{"chair", f.chair, "Chairperson", 1},
		{"member", f.member1, "", 1},
		{"signing official of the institution", f.so, "SigningOfficial", 1},
		{"admin", f.admin, "Admin", 1},
		{"outsider", f.outsider, "", 0},
		{"outsider as researcher", f.outsider, "Researcher", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.dars.ListCollections(f.ctx, tt.actor, tt.role)
			if err != nil {
				t.Fatalf("ListCollections() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d collections, want %d", len(got), tt.want)
			}
			if tt.want == 1 && got[0].ID != c.ID {
				t.Errorf("got collection %d, want %d", got[0].ID, c.ID)
			}
		})
	}

	_, err := f.dars.ListCollections(f.ctx, f.member1, "Admin")
	wantKind(t, err, KindBadRequest)
	if _, err := f.dars.GetCollection(f.ctx, f.outsider, c.ID); KindOf(err) != KindNotFound {
		t.Errorf("outsider GetCollection() error = %v, want not found", err)
	}
}
