package domain

import (
	"errors"
	"fmt"
)

// ValidationError is a rejected precondition. It is reported to the user
// and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// IdentityError means the caller has no authenticated user.
type IdentityError struct {
	Reason string
}

func (e *IdentityError) Error() string { return "identity: " + e.Reason }

type Stage string

const (
	StageCreateOrder      Stage = "create_order"
	StageCreateOrderLines Stage = "create_order_lines"
	StageRecordPayment    Stage = "record_payment"
	StageCommit           Stage = "commit"
)

// BackendError wraps a persistence failure together with the checkout
// stage it happened in.
type BackendError struct {
	Stage Stage
	Err   error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend: %s failed", e.Stage)
	}
	return fmt.Sprintf("backend: %s: %v", e.Stage, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is matches any BackendError of the same stage when target carries no
// cause, so errors.Is(err, ErrCreateOrder) works on wrapped failures.
func (e *BackendError) Is(target error) bool {
	t, ok := target.(*BackendError)
	if !ok || t.Err != nil {
		return false
	}
	return t.Stage == e.Stage
}

var (
	ErrItemUnavailable = &ValidationError{Field: "item", Reason: "item is not available"}
	ErrInvalidQuantity = &ValidationError{Field: "quantity", Reason: "quantity must be positive"}

	ErrEmptyCart            = &ValidationError{Field: "cart", Reason: "cart is empty"}
	ErrPickupTimeRequired   = &ValidationError{Field: "pickup_time", Reason: "pickup time is required"}
	ErrPickupTimeInPast     = &ValidationError{Field: "pickup_time", Reason: "pickup time must be in the future"}
	ErrPickupTooSoon        = &ValidationError{Field: "pickup_time", Reason: "pickup time is too soon"}
	ErrPaymentMethodInvalid = &ValidationError{Field: "payment_method", Reason: "payment method must be card or cash"}
	ErrCardNumberRequired   = &ValidationError{Field: "card_number", Reason: "card number is required"}
	ErrCardNumberInvalid    = &ValidationError{Field: "card_number", Reason: "card number is malformed"}
	ErrCardExpiryRequired   = &ValidationError{Field: "expiry_date", Reason: "expiry date is required"}
	ErrCardExpiryInvalid    = &ValidationError{Field: "expiry_date", Reason: "expiry date must be a future MM/YY"}
	ErrCVVRequired          = &ValidationError{Field: "cvv", Reason: "CVV is required"}
	ErrCVVInvalid           = &ValidationError{Field: "cvv", Reason: "CVV must be 3 or 4 digits"}
	ErrCardholderRequired   = &ValidationError{Field: "cardholder_name", Reason: "cardholder name is required"}

	ErrNotAuthenticated = &IdentityError{Reason: "sign in to continue"}

	ErrCreateOrder      = &BackendError{Stage: StageCreateOrder}
	ErrCreateOrderLines = &BackendError{Stage: StageCreateOrderLines}
	ErrRecordPayment    = &BackendError{Stage: StageRecordPayment}

	ErrNotFound          = errors.New("not found")
	ErrItemNotFound      = fmt.Errorf("catalog item %w", ErrNotFound)
	ErrOrderNotFound     = fmt.Errorf("order %w", ErrNotFound)
	ErrAlreadyExists     = errors.New("already exists")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsIdentity(err error) bool {
	var ie *IdentityError
	return errors.As(err, &ie)
}

func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
