package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
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
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeReferenceNotFound, status: http.StatusUnprocessableEntity, publicMsg: "payment reference not found", detailsOK: true},
		{code: CodePersistence, status: http.StatusServiceUnavailable, publicMsg: "storage unavailable", retryable: true},
		{code: CodeTransport, status: http.StatusBadGateway, publicMsg: "downstream system unreachable", retryable: true, detailsOK: true},
		{code: CodeQueueFull, status: http.StatusServiceUnavailable, publicMsg: "processing queue is full", retryable: true},
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

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodePersistence, cause, "insert ledger row")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "PERSISTENCE_ERROR: insert ledger row: boom" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeReferenceNotFound, "no such order"))
	if got := As(err); got == nil || got.Code() != CodeReferenceNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeReferenceNotFound) {
		t.Fatalf("IsCode should match wrapped code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) {
		t.Fatalf("nil is not retryable")
	}
	if !Retryable(stdErrors.New("socket closed")) {
		t.Fatalf("untyped errors should be retryable")
	}
	if Retryable(New(CodeValidation, "bad")) {
		t.Fatalf("validation errors are terminal")
	}
	if !Retryable(Wrap(CodeTransport, stdErrors.New("eof"), "post")) {
		t.Fatalf("transport errors should be retryable")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("handle: %w", Wrap(CodePersistence, stdErrors.New("conn reset"), "claim"))
	dump := Dump(err)
	if dump.Code != CodePersistence {
		t.Fatalf("expected persistence code, got %s", dump.Code)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(dump.Chain), dump.Chain)
	}
}
