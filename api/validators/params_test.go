package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
)

func withParams(params map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestParseGroupRef(t *testing.T) {
	id := uuid.New()
	ref, err := ParseGroupRef(withParams(map[string]string{"kind": "stores", "groupId": id.String()}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.Kind != enums.GroupKindStore || ref.ID != id {
		t.Fatalf("unexpected ref %+v", ref)
	}

	_, err = ParseGroupRef(withParams(map[string]string{"kind": "depots", "groupId": id.String()}))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown kind, got %v", err)
	}

	_, err = ParseGroupRef(withParams(map[string]string{"kind": "sites", "groupId": "nope"}))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGroupRefBody(t *testing.T) {
	var nilBody *GroupRefBody
	if ref, err := nilBody.Ref(); ref != nil || err != nil {
		t.Fatalf("expected nil ref, got %v %v", ref, err)
	}

	id := uuid.New()
	ref, err := (&GroupRefBody{Kind: "site", ID: id.String()}).Ref()
	if err != nil || ref.Kind != enums.GroupKindSite || ref.ID != id {
		t.Fatalf("unexpected ref %v %v", ref, err)
	}

	if _, err := (&GroupRefBody{Kind: "shed", ID: id.String()}).Ref(); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
