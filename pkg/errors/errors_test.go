package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", detailsOK: true},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", retryable: true, detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesSentinel(t *testing.T) {
	sentinel := stdErrors.New("insufficient quantity")
	wrapped := Wrap(CodeStateConflict, sentinel, "remove material").WithReason("InsufficientQuantity")

	if !stdErrors.Is(wrapped, sentinel) {
		t.Fatal("Wrap did not preserve cause")
	}
	if CodeOf(fmt.Errorf("outer: %w", wrapped)) != CodeStateConflict {
		t.Fatalf("expected code to survive fmt wrapping")
	}
	details, ok := wrapped.Details().(map[string]any)
	if !ok || details["reason"] != "InsufficientQuantity" {
		t.Fatalf("expected reason detail, got %#v", wrapped.Details())
	}
}

func TestWithReasonKeepsExistingDetails(t *testing.T) {
	err := New(CodeValidation, "bad amount").
		WithDetails(map[string]any{"field": "amount"}).
		WithReason("InvalidAmount")
	details := err.Details().(map[string]any)
	if details["field"] != "amount" || details["reason"] != "InvalidAmount" {
		t.Fatalf("unexpected details %#v", details)
	}
}

func TestCodeOfUntyped(t *testing.T) {
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatal("expected untyped errors to map to internal")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "group_members_pkey", TableName: "group_members"}
	err := Wrap(CodeDependency, pgErr, "add member")

	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "group_members_pkey" {
		t.Fatalf("unexpected pg details %+v", dump)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %v", dump.Chain)
	}
}
