package groups

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/materials"
	"github.com/oneman/oneman-backend/internal/messages"
	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/internal/users"
	"github.com/oneman/oneman-backend/pkg/db"
	"github.com/oneman/oneman-backend/pkg/db/dbtest"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/outbox"
	"github.com/oneman/oneman-backend/pkg/pagination"
	"github.com/oneman/oneman-backend/pkg/types"
)

type fixture struct {
	conn      *gorm.DB
	svc       Service
	log       messages.Service
	materials materials.Service
	u1        session.Actor
	u2        session.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	tx := db.NewFromGorm(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	repo := NewRepository(conn)

	log, err := messages.NewService(messages.ServiceParams{
		Repo:   messages.NewRepository(conn),
		Groups: repo,
		Tx:     tx,
		Outbox: emitter,
		Hub:    messages.NewHub(nil, nil),
	})
	require.NoError(t, err)

	ledger, err := materials.NewService(materials.ServiceParams{
		Repo:     materials.NewRepository(conn),
		Groups:   repo,
		Tx:       tx,
		Messages: log,
		Outbox:   emitter,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Users:    users.NewRepository(conn),
		Tx:       tx,
		Messages: log,
		Outbox:   emitter,
	})
	require.NoError(t, err)

	f := &fixture{
		conn:      conn,
		svc:       svc,
		log:       log,
		materials: ledger,
		u1:        session.Actor{UserID: "u1", Email: "u1@oneman.dev", Name: "Asha"},
		u2:        session.Actor{UserID: "u2", Email: "u2@oneman.dev", Name: "Ravi"},
	}
	for _, a := range []session.Actor{f.u1, f.u2, {UserID: "u3", Email: "u3@oneman.dev"}} {
		require.NoError(t, conn.Create(&models.User{ID: a.UserID, Email: a.Email, Username: a.UserID}).Error)
	}
	return f
}

func (f *fixture) create(t *testing.T, kind enums.GroupKind, name string) *GroupDTO {
	t.Helper()
	group, err := f.svc.Create(context.Background(), f.u1, CreateInput{
		Kind:      kind,
		Name:      name,
		Location:  "Pune",
		Category:  "telecom",
		Companies: []string{"airtel"},
	})
	require.NoError(t, err)
	return group
}

func (f *fixture) texts(t *testing.T, ref types.GroupRef) []string {
	t.Helper()
	page, err := f.log.List(context.Background(), f.u1, ref, pagination.Params{})
	require.NoError(t, err)
	out := []string{}
	for _, m := range page.Messages {
		if m.Text != nil {
			out = append(out, *m.Text)
		}
	}
	return out
}

func reasonOf(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	details, _ := typed.Details().(map[string]any)
	reason, _ := details["reason"].(string)
	return reason
}

func refOf(g *GroupDTO) types.GroupRef {
	return types.GroupRef{Kind: g.Kind, ID: g.ID}
}

func TestSiteLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	site := f.create(t, enums.GroupKindSite, "siteX")
	assert.Equal(t, "u1", site.AdminID)
	assert.Equal(t, []string{"u1"}, site.Members)
	assert.Empty(t, site.Materials)
	ref := refOf(site)

	added, err := f.materials.Add(ctx, f.u1, materials.AddInput{
		Group: ref, Name: "Cable Ties", Unit: "pieces", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.Len(t, added.Ledger.Materials, 1)
	entry := added.Ledger.Materials[0]
	assert.Equal(t, "Cable Ties", entry.Name)
	assert.Equal(t, "pieces", entry.Unit)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(100)))

	res, err := f.svc.AddMember(ctx, f.u1, ref, "u2")
	require.NoError(t, err)
	assert.True(t, res.Added)
	assert.Equal(t, []string{"u1", "u2"}, res.Members)

	err = f.svc.RemoveMember(ctx, f.u1, ref, "u1")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, "CannotRemoveAdmin", reasonOf(err))

	removed, err := f.materials.Remove(ctx, f.u1, materials.RemoveInput{Group: ref, EntryID: entry.ID, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	require.Len(t, removed.Ledger.Materials, 1)
	assert.True(t, removed.Ledger.Materials[0].Amount.Equal(decimal.NewFromInt(60)))

	removed, err = f.materials.Remove(ctx, f.u1, materials.RemoveInput{Group: ref, EntryID: entry.ID, Amount: decimal.NewFromInt(60)})
	require.NoError(t, err)
	assert.Empty(t, removed.Ledger.Materials)

	got, err := f.svc.Get(ctx, f.u2, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.Members)
	assert.Empty(t, got.Materials)
	assert.False(t, got.IsAdmin)

	assert.Contains(t, f.texts(t, ref), "u2@oneman.dev was added to the group")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := "http://cdn.oneman.dev/x.png"

	cases := map[string]CreateInput{
		"kind":      {Kind: "warehouse", Name: "A", Location: "B", Companies: []string{"airtel"}},
		"name":      {Kind: enums.GroupKindSite, Name: " ", Location: "B", Companies: []string{"airtel"}},
		"location":  {Kind: enums.GroupKindSite, Name: "A", Companies: []string{"airtel"}},
		"companies": {Kind: enums.GroupKindSite, Name: "A", Location: "B"},
		"company":   {Kind: enums.GroupKindSite, Name: "A", Location: "B", Companies: []string{"acme"}},
		"category":  {Kind: enums.GroupKindSite, Name: "A", Location: "B", Category: "gaspipeline", Companies: []string{"airtel"}},
		"photo":     {Kind: enums.GroupKindSite, Name: "A", Location: "B", Companies: []string{"airtel"}, PhotoURL: &bad},
	}
	for name, input := range cases {
		_, err := f.svc.Create(ctx, f.u1, input)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err), name)
	}

	store, err := f.svc.Create(ctx, f.u1, CreateInput{
		Kind: enums.GroupKindStore, Name: "Depot", Location: "Nashik", Companies: []string{" Adani ", "adani", "reliance"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"adani", "reliance"}, store.Companies)
	assert.Nil(t, store.Category)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventGroupCreated).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestGetChecksAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	site := f.create(t, enums.GroupKindSite, "siteX")

	_, err := f.svc.Get(ctx, f.u2, refOf(site))
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = f.svc.Get(ctx, f.u1, types.GroupRef{Kind: enums.GroupKindSite, ID: uuid.New()})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.Get(ctx, f.u1, types.GroupRef{Kind: enums.GroupKindStore, ID: site.ID})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestMembershipRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := refOf(f.create(t, enums.GroupKindSite, "siteX"))
	_, err := f.svc.AddMember(ctx, f.u1, ref, "u2")
	require.NoError(t, err)

	_, err = f.svc.AddMember(ctx, f.u2, ref, "u3")
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(f.svc.RemoveMember(ctx, f.u2, ref, "u2")))

	_, err = f.svc.UpdateSettings(ctx, f.u2, ref, UpdateInput{Name: strPtr("Mine")})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
}

func TestAddMemberEdgeCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := refOf(f.create(t, enums.GroupKindSite, "siteX"))

	_, err := f.svc.AddMember(ctx, f.u1, ref, "ghost")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.AddMember(ctx, f.u1, ref, " ")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	res, err := f.svc.AddMember(ctx, f.u1, ref, "u1")
	require.NoError(t, err)
	assert.False(t, res.Added)
	assert.Equal(t, []string{"u1"}, res.Members)

	_, err = f.svc.AddMember(ctx, f.u1, ref, "u2")
	require.NoError(t, err)
	res, err = f.svc.AddMember(ctx, f.u1, ref, "u2")
	require.NoError(t, err)
	assert.False(t, res.Added)

	assert.Equal(t, []string{"u2@oneman.dev was added to the group"}, f.texts(t, ref))

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventMemberAdded).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestAddMemberByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := refOf(f.create(t, enums.GroupKindStore, "Central Store"))

	res, err := f.svc.AddMemberByEmail(ctx, f.u1, ref, "  U3@OneMan.dev ")
	require.NoError(t, err)
	assert.True(t, res.Added)
	assert.Equal(t, []string{"u1", "u3"}, res.Members)
	assert.Equal(t, []string{"u3@oneman.dev was added to the group"}, f.texts(t, ref))

	res, err = f.svc.AddMemberByEmail(ctx, f.u1, ref, "u3@oneman.dev")
	require.NoError(t, err)
	assert.False(t, res.Added)

	_, err = f.svc.AddMemberByEmail(ctx, f.u1, ref, "nobody@oneman.dev")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.AddMemberByEmail(ctx, f.u1, ref, "not-an-email")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = f.svc.AddMemberByEmail(ctx, f.u2, ref, "u2@oneman.dev")
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
}

func TestRemoveMemberPostsNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := refOf(f.create(t, enums.GroupKindSite, "siteX"))
	_, err := f.svc.AddMember(ctx, f.u1, ref, "u2")
	require.NoError(t, err)

	sub, err := f.log.Subscribe(ctx, f.u1, ref)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveMember(ctx, f.u1, ref, "u2"))
	ev := <-sub
	assert.Equal(t, messages.EventCreated, ev.Type)
	require.NotNil(t, ev.Message)
	assert.True(t, ev.Message.IsSystem())

	require.NoError(t, f.svc.RemoveMember(ctx, f.u1, ref, "u2"))

	texts := f.texts(t, ref)
	assert.Equal(t, []string{"u2@oneman.dev was added to the group", "A member was removed from the group"}, texts)

	_, err = f.svc.Get(ctx, f.u2, ref)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := refOf(f.create(t, enums.GroupKindStore, "Depot"))

	photo := "https://cdn.oneman.dev/depot.png"
	got, err := f.svc.UpdateSettings(ctx, f.u1, ref, UpdateInput{Name: strPtr(" Depot 2 "), PhotoURL: &photo})
	require.NoError(t, err)
	assert.Equal(t, "Depot 2", got.Name)
	require.NotNil(t, got.PhotoURL)
	assert.Equal(t, photo, *got.PhotoURL)

	got, err = f.svc.UpdateSettings(ctx, f.u1, ref, UpdateInput{PhotoURL: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, got.PhotoURL)

	reloaded, err := f.svc.Get(ctx, f.u1, ref)
	require.NoError(t, err)
	assert.Equal(t, "Depot 2", reloaded.Name)
	assert.Nil(t, reloaded.PhotoURL)

	_, err = f.svc.UpdateSettings(ctx, f.u1, ref, UpdateInput{})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestListMineAndMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, enums.GroupKindSite, "A")
	b := f.create(t, enums.GroupKindStore, "B")
	c := f.create(t, enums.GroupKindStore, "C")
	_, err := f.svc.AddMember(ctx, f.u1, refOf(b), "u2")
	require.NoError(t, err)

	all, err := f.svc.ListMine(ctx, f.u1, "", uuid.Nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	stores, err := f.svc.ListMine(ctx, f.u1, enums.GroupKindStore, c.ID)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, b.ID, stores[0].ID)
	assert.Equal(t, int64(2), stores[0].MemberCount)
	assert.True(t, stores[0].IsAdmin)

	theirs, err := f.svc.ListMine(ctx, f.u2, "", uuid.Nil)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.False(t, theirs[0].IsAdmin)

	_, err = f.svc.ListMine(ctx, f.u1, "warehouse", uuid.Nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	members, err := f.svc.ListMembers(ctx, f.u2, refOf(b))
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "u1", members[0].UserID)
	assert.True(t, members[0].IsAdmin)
	require.NotNil(t, members[1].Email)
	assert.Equal(t, "u2@oneman.dev", *members[1].Email)

	_, err = f.svc.ListMembers(ctx, f.u2, refOf(a))
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
}

func strPtr(s string) *string { return &s }
