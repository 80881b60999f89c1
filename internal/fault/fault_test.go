package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(NotFound("escrow", "e1")); got != KindNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", got)
	}
	// Wrapped faults keep their discriminant.
	wrapped := fmt.Errorf("lookup: %w", Unauthorized("nope"))
	if got := KindOf(wrapped); got != KindUnauthorized {
		t.Fatalf("expected UNAUTHORIZED through wrap, got %s", got)
	}
	// Foreign errors collapse to INTERNAL.
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("expected INTERNAL for plain error, got %s", got)
	}
}

func TestInsufficientFundsCarriesAmounts(t *testing.T) {
	err := InsufficientFunds(512_500, 100_000)
	if err.Details["required"] != int64(512_500) || err.Details["available"] != int64(100_000) {
		t.Fatalf("unexpected details: %v", err.Details)
	}
	if !IsKind(err, KindInsufficientFunds) {
		t.Fatalf("kind mismatch: %s", err.Kind)
	}
}

func TestInternalUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("storage fault", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable via errors.Is")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInvalidState, http.StatusConflict},
		{KindUnauthorized, http.StatusForbidden},
		{KindInsufficientFunds, http.StatusUnprocessableEntity},
		{KindBadRequest, http.StatusBadRequest},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.kind); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}
