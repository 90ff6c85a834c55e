package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/internal/groups"
	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/types"
)

type stubGroupService struct {
	groups.Service
	created     groups.CreateInput
	updated     groups.UpdateInput
	createResp  *groups.GroupDTO
	addResp     *groups.MembershipResult
	removedUser string
	addedUser   string
	addedEmail  string
	gotRef      types.GroupRef
	gotExclude  uuid.UUID
	err         error
}

func (s *stubGroupService) Create(ctx context.Context, actor session.Actor, input groups.CreateInput) (*groups.GroupDTO, error) {
	s.created = input
	return s.createResp, s.err
}

func (s *stubGroupService) UpdateSettings(ctx context.Context, actor session.Actor, ref types.GroupRef, input groups.UpdateInput) (*groups.GroupDTO, error) {
	s.updated = input
	return &groups.GroupDTO{ID: ref.ID, Kind: ref.Kind}, s.err
}

func (s *stubGroupService) ListMine(ctx context.Context, actor session.Actor, kind enums.GroupKind, exclude uuid.UUID) ([]groups.GroupSummary, error) {
	s.gotExclude = exclude
	return []groups.GroupSummary{}, s.err
}

func (s *stubGroupService) AddMember(ctx context.Context, actor session.Actor, ref types.GroupRef, userID string) (*groups.MembershipResult, error) {
	s.gotRef = ref
	s.addedUser = userID
	return s.addResp, s.err
}

func (s *stubGroupService) AddMemberByEmail(ctx context.Context, actor session.Actor, ref types.GroupRef, email string) (*groups.MembershipResult, error) {
	s.gotRef = ref
	s.addedEmail = email
	return s.addResp, s.err
}

func (s *stubGroupService) RemoveMember(ctx context.Context, actor session.Actor, ref types.GroupRef, userID string) error {
	s.gotRef = ref
	s.removedUser = userID
	return s.err
}

func TestGroupCreateReturnsCreated(t *testing.T) {
	id := uuid.New()
	svc := &stubGroupService{createResp: &groups.GroupDTO{ID: id, Kind: enums.GroupKindSite, Name: "Depot"}}
	handler := GroupCreate(svc, nil)

	body := `{"name":"Depot","location":"North yard","category":"telecom","companies":["acme"]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/sites", body, map[string]string{"kind": "sites"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.created.Kind != enums.GroupKindSite || svc.created.Name != "Depot" {
		t.Fatalf("unexpected create input %+v", svc.created)
	}
	var envelope struct {
		Data groups.GroupDTO `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != id {
		t.Fatalf("expected id %s got %s", id, envelope.Data.ID)
	}
}

func TestGroupCreateSanitizesText(t *testing.T) {
	svc := &stubGroupService{createResp: &groups.GroupDTO{ID: uuid.New()}}
	body := `{"name":"  Depot\u0000 7 ","location":"North\n  yard","category":" telecom ","companies":["  Jio "]}`
	rec := httptest.NewRecorder()
	GroupCreate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/sites", body, map[string]string{"kind": "sites"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.created.Name != "Depot 7" || svc.created.Location != "North yard" || svc.created.Category != "telecom" {
		t.Fatalf("unexpected create input %+v", svc.created)
	}
	if len(svc.created.Companies) != 1 || svc.created.Companies[0] != "Jio" {
		t.Fatalf("unexpected companies %v", svc.created.Companies)
	}
}

func TestGroupUpdateSanitizesOptionalFields(t *testing.T) {
	svc := &stubGroupService{}
	rec := httptest.NewRecorder()
	GroupUpdate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPatch, "/", `{"location":"  Gate\t4 "}`, groupParams("sites", uuid.NewString())))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.updated.Name != nil {
		t.Fatalf("absent name should stay nil, got %q", *svc.updated.Name)
	}
	if svc.updated.Location == nil || *svc.updated.Location != "Gate 4" {
		t.Fatalf("unexpected location %v", svc.updated.Location)
	}
}

func TestGroupCreateRejectsMissingFields(t *testing.T) {
	handler := GroupCreate(&stubGroupService{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/sites", `{"location":"x"}`, map[string]string{"kind": "sites"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGroupListParsesExclude(t *testing.T) {
	exclude := uuid.New()
	svc := &stubGroupService{}
	handler := GroupList(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/sites?exclude="+exclude.String(), "", map[string]string{"kind": "sites"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.gotExclude != exclude {
		t.Fatalf("expected exclude %s got %s", exclude, svc.gotExclude)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/sites?exclude=nope", "", map[string]string{"kind": "sites"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad exclude got %d", rec.Code)
	}
}

func TestMemberAddStatusReflectsChange(t *testing.T) {
	groupID := uuid.New()
	cases := []struct {
		added bool
		want  int
	}{
		{added: true, want: http.StatusCreated},
		{added: false, want: http.StatusOK},
	}
	for _, tc := range cases {
		svc := &stubGroupService{addResp: &groups.MembershipResult{Members: []string{"user-1", "user-2"}, Added: tc.added}}
		rec := httptest.NewRecorder()
		MemberAdd(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/members", `{"userId":"user-2"}`, groupParams("stores", groupID.String())))
		if rec.Code != tc.want {
			t.Fatalf("added=%v: expected %d got %d", tc.added, tc.want, rec.Code)
		}
		if svc.gotRef.Kind != enums.GroupKindStore || svc.gotRef.ID != groupID {
			t.Fatalf("unexpected ref %+v", svc.gotRef)
		}
	}
}

func TestMemberAddByUserIDOrEmail(t *testing.T) {
	tests := []struct {
		body      string
		wantCode  int
		wantUser  string
		wantEmail string
	}{
		{`{"userId":"user-2"}`, http.StatusCreated, "user-2", ""},
		{`{"email":"ravi@example.com"}`, http.StatusCreated, "", "ravi@example.com"},
		{`{"email":"not-an-email"}`, http.StatusBadRequest, "", ""},
		{`{}`, http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		svc := &stubGroupService{addResp: &groups.MembershipResult{Added: true}}
		rec := httptest.NewRecorder()
		MemberAdd(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/members", tt.body, groupParams("sites", uuid.NewString())))
		if rec.Code != tt.wantCode {
			t.Fatalf("%s: expected %d got %d: %s", tt.body, tt.wantCode, rec.Code, rec.Body.String())
		}
		if svc.addedUser != tt.wantUser || svc.addedEmail != tt.wantEmail {
			t.Fatalf("%s: routed to user=%q email=%q", tt.body, svc.addedUser, svc.addedEmail)
		}
	}
}

func TestMemberRemove(t *testing.T) {
	groupID := uuid.New()
	svc := &stubGroupService{}
	params := groupParams("sites", groupID.String())
	params["userId"] = "user-2"

	rec := httptest.NewRecorder()
	MemberRemove(svc, nil).ServeHTTP(rec, newRequest(http.MethodDelete, "/members/user-2", "", params))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if svc.removedUser != "user-2" {
		t.Fatalf("expected user-2 removed, got %q", svc.removedUser)
	}
}

func TestMemberRemoveAdminIsStateConflict(t *testing.T) {
	groupID := uuid.New()
	svc := &stubGroupService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "the admin cannot be removed").WithReason("CannotRemoveAdmin")}
	params := groupParams("sites", groupID.String())
	params["userId"] = "user-1"

	rec := httptest.NewRecorder()
	MemberRemove(svc, nil).ServeHTTP(rec, newRequest(http.MethodDelete, "/members/user-1", "", params))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
	if _, reason := errorReason(t, rec); reason != "CannotRemoveAdmin" {
		t.Fatalf("expected CannotRemoveAdmin reason, got %q", reason)
	}
}

func TestGroupRoutesRejectUnknownKind(t *testing.T) {
	rec := httptest.NewRecorder()
	GroupGet(&stubGroupService{}, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/", "", groupParams("trucks", uuid.NewString())))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
