package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates ledger failures so boundary layers can branch on a
// stable tag instead of matching error strings.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindInvalidState      Kind = "INVALID_STATE"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindBadRequest        Kind = "BAD_REQUEST"
	KindInternal          Kind = "INTERNAL"
)

// Error is the tagged failure type shared by every ledger operation. Details
// carries structured context for audit logging; it never includes another
// user's balance.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the discriminant from err, or KindInternal when err is not
// a fault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given discriminant.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// NotFound marks a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: resource + " not found",
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// Conflict marks a uniqueness violation, e.g. a second escrow for one offer.
func Conflict(message string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Message: message, Details: details}
}

// InvalidState rejects a transition, recording where the resource is and
// where it would need to be.
func InvalidState(current, required string) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("invalid state %s, requires %s", current, required),
		Details: map[string]any{"current": current, "required": required},
	}
}

// Unauthorized rejects a caller that is not a participant of the resource.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// InsufficientFunds carries the amounts involved so the caller can surface
// the shortfall.
func InsufficientFunds(required, available int64) *Error {
	return &Error{
		Kind:    KindInsufficientFunds,
		Message: "insufficient funds",
		Details: map[string]any{"required": required, "available": available},
	}
}

// BadRequest rejects malformed input before any mutation.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// Internal wraps a storage fault. Mid-unit faults are fatal to the operation
// and surface as this kind once the unit rolled back.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}

// HTTPStatus maps a discriminant to the response status used by the HTTP
// boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
