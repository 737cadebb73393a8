package payment

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrInvalidAmount             = errors.New("payment: invalid amount")
	ErrUnexpectedGrantType       = errors.New("payment: unexpected grant type")
	ErrIncomingPaymentCreation   = errors.New("payment: incoming payment creation failed")
	ErrOutgoingPaymentCreation   = errors.New("payment: outgoing payment creation failed")
	ErrGrantNotAccepted          = errors.New("payment: grant not accepted")
	ErrVerificationIndeterminate = errors.New("payment: payment verification indeterminate")
)

// GrantRequestError wraps a failed grant request with the access type it
// was scoped to (incoming-payment, quote, outgoing-payment).
type GrantRequestError struct {
	Scope string // Access type the grant was scoped to
	Err   error  // Underlying error
}

func (e *GrantRequestError) Error() string {
	return fmt.Sprintf("payment: %s grant request failed: %v", e.Scope, e.Err)
}

func (e *GrantRequestError) Unwrap() error { return e.Err }

// QuoteError wraps quote creation failures with the receiver's public
// name for user-facing messaging.
type QuoteError struct {
	ReceiverName string // Receiver's public name if known
	Err          error  // Underlying error
}

func (e *QuoteError) Error() string {
	if e.ReceiverName != "" {
		return fmt.Sprintf("payment: quote creation for %s failed: %v", e.ReceiverName, e.Err)
	}
	return fmt.Sprintf("payment: quote creation failed: %v", e.Err)
}

func (e *QuoteError) Unwrap() error { return e.Err }
