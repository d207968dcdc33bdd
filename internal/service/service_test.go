package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository/memrepo"
)

type sent struct {
	kind       NotificationKind
	recipients []uint64
	data       map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, kind NotificationKind, recipients []uint64, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{kind: kind, recipients: recipients, data: data})
	return n.err
}

func (n *recordingNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []NotificationKind
	for _, s := range n.sent {
		out = append(out, s.kind)
	}
	return out
}

type recordingMatcher struct {
	mu   sync.Mutex
	refs []string
	err  error
}

func (m *recordingMatcher) Reprocess(ctx context.Context, referenceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = append(m.refs, referenceID)
	return m.err
}

const (
	institution uint64 = 5
	dacID       uint64 = 7
)

type fixture struct {
	ctx      context.Context
	store    *memrepo.Store
	notifier *recordingNotifier
	matcher  *recordingMatcher

	elections *ElectionService
	votes     *VoteService
	dars      *DarService
	users     *UserService
	cards     *LibraryCardService

	admin, chair, member1, member2, researcher, so, outsider model.User
	ds1, ds2, consented                                      model.Dataset
}

func ptr(v uint64) *uint64 { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    memrepo.New(),
		notifier: &recordingNotifier{},
		matcher:  &recordingMatcher{},
	}
	deps := Deps{Store: f.store, Notifier: f.notifier, Matcher: f.matcher}
	f.elections = NewElectionService(deps)
	f.votes = NewVoteService(deps, f.elections)
	f.dars = NewDarService(deps, f.elections)
	f.users = NewUserService(deps, f.elections)
	f.cards = NewLibraryCardService(deps)

	f.store.PutDac(model.Dac{ID: dacID, Name: "DAC 7"})
	f.store.PutDac(model.Dac{ID: 8, Name: "DAC 8"})
	f.ds1 = f.store.PutDataset(model.Dataset{Name: "ds1", DacID: dacID, Active: true})
	f.ds2 = f.store.PutDataset(model.Dataset{Name: "ds2", DacID: dacID, Active: true})
	f.consented = f.store.PutDataset(model.Dataset{Name: "ds3", DacID: dacID, ConsentID: "consent-1", Active: true})

	user := func(email string, inst *uint64, roles ...model.UserRole) model.User {
		return f.store.PutUser(model.User{Email: email, InstitutionID: inst, Roles: roles})
	}
	f.admin = user("admin@example.org", nil, model.NewUserRole(model.RoleAdmin, nil))
	f.chair = user("chair@example.org", ptr(1), model.NewUserRole(model.RoleChairperson, ptr(dacID)))
	f.member1 = user("m1@example.org", ptr(1), model.NewUserRole(model.RoleMember, ptr(dacID)))
	f.member2 = user("m2@example.org", ptr(1), model.NewUserRole(model.RoleMember, ptr(dacID)))
	f.researcher = user("r@example.org", ptr(institution), model.NewUserRole(model.RoleResearcher, nil))
	f.so = user("so@example.org", ptr(institution), model.NewUserRole(model.RoleSigningOfficial, nil))
	f.outsider = user("x@example.org", ptr(9), model.NewUserRole(model.RoleResearcher, nil))
	return f
}

func (f *fixture) giveCard(t *testing.T, u model.User) model.LibraryCard {
	t.Helper()
	card := model.LibraryCard{UserID: u.ID, InstitutionID: institution, CreateUserID: f.admin.ID}
	if err := f.store.CreateLibraryCard(f.ctx, &card); err != nil {
		t.Fatalf("CreateLibraryCard() error = %v", err)
	}
	return card
}

// submit files a request for the datasets as the researcher and returns
// the collection and the reference id of its request.
func (f *fixture) submit(t *testing.T, datasets ...model.Dataset) (CollectionView, string) {
	t.Helper()
	var ids []uint64
	for _, ds := range datasets {
		ids = append(ids, ds.ID)
	}
	c, err := f.dars.Submit(f.ctx, f.researcher, DarInput{DatasetIDs: ids, ProjectTitle: "genomes"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	refs := c.ReferenceIDs()
	if len(refs) != 1 {
		t.Fatalf("Submit() created %d requests, want 1", len(refs))
	}
	return c, refs[0]
}

func voteIDsOf(d ElectionDetail, userID uint64) []uint64 {
	var ids []uint64
	for _, v := range d.Votes {
		if v.UserID == userID {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

func wantKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("error kind = %s (%v), want %s", got, err, want)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", badRequest("x"), KindBadRequest},
		{"wrapped", storeErr(errors.New("boom"), "vote"), KindInternal},
		{"plain", errors.New("boom"), KindInternal},
		{"not modified", notModified("x"), KindNotModified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
	if msg := Message(storeErr(errors.New("dial tcp: refused"), "vote")); msg != "internal" {
		t.Errorf("Message() leaked cause: %q", msg)
	}
}
