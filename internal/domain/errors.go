package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindPrecondition      ErrorKind = "precondition"
	KindGateway           ErrorKind = "gateway"
	KindSignature         ErrorKind = "signature"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindForbidden         ErrorKind = "forbidden"
)

// Error is the single error type surfaced by the core. errors.Is matches a
// kind sentinel (Code empty) by kind and any other Error by code.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Kind sentinels.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrPrecondition      = &Error{Kind: KindPrecondition}
	ErrGateway           = &Error{Kind: KindGateway}
	ErrSignature         = &Error{Kind: KindSignature}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

var (
	ErrLeadNotFound       = &Error{Kind: KindNotFound, Code: "LEAD_NOT_FOUND", Message: "lead not found"}
	ErrAttemptNotFound    = &Error{Kind: KindNotFound, Code: "PAYMENT_NOT_FOUND", Message: "payment attempt not found"}
	ErrClaimantNotFound   = &Error{Kind: KindNotFound, Code: "CLAIMANT_NOT_FOUND", Message: "claimant profile not found"}
	ErrLeadUnavailable    = &Error{Kind: KindConflict, Code: "LEAD_UNAVAILABLE", Message: "lead no longer available"}
	ErrReservationExpired = &Error{Kind: KindConflict, Code: "RESERVATION_EXPIRED", Message: "lead no longer available"}
	ErrNotReserved        = &Error{Kind: KindConflict, Code: "NOT_RESERVED", Message: "lead is not reserved"}
	ErrStaleWrite         = &Error{Kind: KindConflict, Code: "CONCURRENT_UPDATE", Message: "record was modified concurrently"}
	ErrPendingExists      = &Error{Kind: KindConflict, Code: "PENDING_ATTEMPT_EXISTS", Message: "a pending payment attempt already exists"}
	ErrAlreadyRefunded    = &Error{Kind: KindConflict, Code: "ALREADY_REFUNDED", Message: "payment already refunded"}
	ErrNotRefundable      = &Error{Kind: KindConflict, Code: "NOT_REFUNDABLE", Message: "payment is not completed"}
	ErrLeadNotClaimed     = &Error{Kind: KindConflict, Code: "LEAD_NOT_CLAIMED", Message: "lead is not claimed by the payer"}
	ErrAttemptTerminal    = &Error{Kind: KindConflict, Code: "PAYMENT_TERMINAL", Message: "payment attempt is no longer pending"}
	ErrClaimLost          = &Error{Kind: KindConflict, Code: "CLAIM_LOST", Message: "lead no longer available; payment will be refunded"}
	ErrReservationActive  = &Error{Kind: KindConflict, Code: "RESERVATION_ACTIVE", Message: "reservation has not expired"}
	ErrPriceLocked        = &Error{Kind: KindConflict, Code: "PRICE_LOCKED", Message: "price can no longer change"}
	ErrClaimantIneligible = &Error{Kind: KindPrecondition, Code: "CLAIMANT_NOT_ELIGIBLE", Message: "claimant not eligible"}
	ErrClaimantLocation   = &Error{Kind: KindPrecondition, Code: "CLAIMANT_LOCATION_UNAVAILABLE", Message: "claimant location unavailable"}
	ErrLeadLocation       = &Error{Kind: KindPrecondition, Code: "LEAD_LOCATION_UNAVAILABLE", Message: "lead location unavailable"}
	ErrOutsideRadius      = &Error{Kind: KindPrecondition, Code: "OUTSIDE_SERVICE_RADIUS", Message: "lead outside service radius"}
	ErrNotHolder          = &Error{Kind: KindPrecondition, Code: "NOT_RESERVATION_HOLDER", Message: "lead is not reserved by this claimant"}
	ErrNoPrice            = &Error{Kind: KindPrecondition, Code: "PRICE_UNRESOLVABLE", Message: "lead has no resolvable price"}
	ErrAdminOnly          = &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: "admin access required"}
	ErrNotOwner           = &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: "action not permitted for this actor"}
	ErrBadSignature       = &Error{Kind: KindSignature, Code: "INVALID_SIGNATURE", Message: "invalid webhook signature"}
)

// NewValidationError carries per-field failures.
func NewValidationError(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message, Fields: fields}
}

func NewTransitionError(from, to LeadStatus) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("cannot move lead from %s to %s", from, to),
	}
}

// NewGatewayError keeps the provider message verbatim.
func NewGatewayError(message string, cause error) *Error {
	return &Error{Kind: KindGateway, Code: "GATEWAY_ERROR", Message: message, Err: cause}
}

func NewGatewayTimeout(cause error) *Error {
	return &Error{Kind: KindGateway, Code: "GATEWAY_TIMEOUT", Message: "payment gateway timed out", Err: cause}
}

func NewSignatureError(cause error) *Error {
	return &Error{Kind: KindSignature, Code: ErrBadSignature.Code, Message: ErrBadSignature.Message, Err: cause}
}

// AsError returns the domain error inside err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
