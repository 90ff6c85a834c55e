package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/oneman/oneman-backend/api/middleware"
	"github.com/oneman/oneman-backend/internal/session"
)

var testActor = session.Actor{UserID: "user-1", Email: "user-1@example.com", Name: "User One"}

// newRequest builds a request with chi route params and the test actor.
func newRequest(method, target, body string, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithActor(ctx, testActor)
	return req.WithContext(ctx)
}

func groupParams(kind, id string) map[string]string {
	return map[string]string{"kind": kind, "groupId": id}
}

func errorReason(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	reason, _ := envelope.Error.Details["reason"].(string)
	return envelope.Error.Code, reason
}
