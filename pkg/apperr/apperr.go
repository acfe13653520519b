package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream_unavailable"
	default:
		return "internal"
	}
}

// Error carries a failure category and a stable code. Two errors match under
// errors.Is when their codes are equal, so a sentinel can be compared against
// an instance created with a more specific message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// With returns a copy of a sentinel carrying a specific message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a copy of a sentinel wrapping cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

var (
	ErrInvalidInput        = New(KindValidation, "INVALID_INPUT", "invalid input")
	ErrCartNotFound        = New(KindNotFound, "CART_NOT_FOUND", "cart not found")
	ErrItemNotFound        = New(KindNotFound, "ITEM_NOT_FOUND", "cart item not found")
	ErrOrderNotFound       = New(KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrEmptyCart           = New(KindValidation, "EMPTY_CART", "cannot checkout empty cart")
	ErrInvalidOrder        = New(KindValidation, "INVALID_ORDER", "invalid order")
	ErrNotAvailable        = New(KindConflict, "NOT_AVAILABLE", "product not available in requested quantity")
	ErrInsufficientStock   = New(KindConflict, "INSUFFICIENT_STOCK", "insufficient stock")
	ErrInvalidTransition   = New(KindConflict, "INVALID_TRANSITION", "invalid status transition")
	ErrVersionConflict     = New(KindConflict, "VERSION_CONFLICT", "concurrent modification")
	ErrKeyReused           = New(KindConflict, "IDEMPOTENCY_KEY_REUSED", "idempotency key reused with a different request")
	ErrStockRejected       = New(KindConflict, "STOCK_REJECTED", "inventory rejected stock adjustment")
	ErrUpstreamUnavailable = New(KindUpstream, "UPSTREAM_UNAVAILABLE", "upstream service unavailable")
)

var byCode = map[string]*Error{}

func init() {
	for _, e := range []*Error{
		ErrInvalidInput, ErrCartNotFound, ErrItemNotFound, ErrOrderNotFound, ErrEmptyCart,
		ErrInvalidOrder, ErrNotAvailable, ErrInsufficientStock, ErrInvalidTransition,
		ErrVersionConflict, ErrKeyReused, ErrStockRejected, ErrUpstreamUnavailable,
	} {
		byCode[e.Code] = e
	}
}

// FromCode rebuilds a typed error from a code received over the wire.
func FromCode(code, msg string) *Error {
	if e, ok := byCode[code]; ok {
		return e.With("%s", msg)
	}
	return New(KindInternal, "INTERNAL", msg)
}

// InsufficientStock mirrors the inventory answer: available is always reported as
// zero because the gateway only answers yes/no.
func InsufficientStock(productID string, requested, available int) *Error {
	return ErrInsufficientStock.With("insufficient stock for product %s. requested: %d, available: %d",
		productID, requested, available)
}
