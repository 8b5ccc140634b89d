package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
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
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "concurrent modification detected", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeStockUnavailable, status: http.StatusConflict, publicMsg: "stock unavailable", detailsOK: true},
		{code: CodeSerialAlreadyExported, status: http.StatusConflict, publicMsg: "serial already exported", detailsOK: true},
		{code: CodeOverRefund, status: http.StatusUnprocessableEntity, publicMsg: "refund exceeds exported quantity", detailsOK: true},
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientBalance, status: http.StatusUnprocessableEntity, publicMsg: "insufficient available balance", detailsOK: true},
		{code: CodeIntegrityViolation, status: http.StatusInternalServerError, publicMsg: "data integrity violation"},
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
	base := New(CodeInvalidArgument, "quantity must be positive")
	if base.Code() != CodeInvalidArgument {
		t.Fatalf("expected invalid argument code, got %s", base.Code())
	}
	if base.Message() != "quantity must be positive" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	base.WithDetails(map[string]any{"field": "quantity"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if got := Newf(CodeNotFound, "order %d not found", 42).Message(); got != "order 42 not found" {
		t.Fatalf("unexpected formatted message %q", got)
	}
}

func TestIsCodeWalksChain(t *testing.T) {
	inner := New(CodeStockUnavailable, "lot L1 exhausted")
	outer := Wrap(CodeInternal, fmt.Errorf("allocate line: %w", inner), "create order")
	if !IsCode(outer, CodeStockUnavailable) {
		t.Fatal("expected nested code to be found")
	}
	if IsCode(outer, CodeOverRefund) {
		t.Fatal("unexpected code match")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatal("nil error has no code")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(CodeInsufficientBalance, "available 50000.00"))
	typed := As(err)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeInsufficientBalance {
		t.Fatalf("unexpected code %s", typed.Code())
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("plain errors are not typed")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeIntegrityViolation, stdErrors.New("wallet missing"), "credit vendor")
	dump := Dump(err)
	if dump.Code != CodeIntegrityViolation {
		t.Fatalf("unexpected dump code %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(dump.Chain))
	}
}

func TestDumpClassifiesPostgresErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_payouts_cashout", TableName: "payouts"}
	dump := Dump(Wrap(CodeConflict, fmt.Errorf("insert payout: %w", pgErr), "execute cashout"))
	if dump.PGCode != "23505" || dump.PGConstraint != "ux_payouts_cashout" {
		t.Fatalf("unexpected pg details %+v", dump.PGDetails)
	}
	if dump.PGClass != "integrity_constraint_violation" {
		t.Fatalf("unexpected pg class %q", dump.PGClass)
	}

	pqDump := Dump(&pq.Error{Code: "40001", Message: "could not serialize access"})
	if pqDump.PGClass != "transaction_rollback" || pqDump.PGMessage != "could not serialize access" {
		t.Fatalf("unexpected pq dump %+v", pqDump.PGDetails)
	}
}
