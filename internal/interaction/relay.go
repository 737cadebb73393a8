// Package interaction drives the user-facing authorization step of a
// payment: the sender is redirected to their wallet's authorization
// server, approves or declines the grant there, and is sent back to the
// callback endpoint. The relay carries that callback result to the
// coordinator awaiting it, and the coordinator reconciles it against
// the pending grant via the continuation endpoint.
package interaction

import (
	"log/slog"
	"sync"
)

// resultRejected is the result query value the authorization server
// sends back when the user declines the grant.
const resultRejected = "grant_rejected"

// Outcome classifies the redirect-back signal from the authorization
// server. A missing interaction reference is distinct from an explicit
// rejection: the former is a broken callback, the latter a user choice.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeRejected   Outcome = "rejected"
	OutcomeMissingRef Outcome = "missing_ref"
)

// Result is the out-of-band signal delivered via browser redirect.
// Correlated to a pending grant only by the payment id in the callback
// path; never persisted beyond the flow.
type Result struct {
	InteractRef string  `json:"interactRef,omitempty"`
	Outcome     Outcome `json:"outcome"`
	Hash        string  `json:"hash,omitempty"`
}

// FromCallback classifies raw callback query parameters.
func FromCallback(interactRef, result, hash string) Result {
	r := Result{InteractRef: interactRef, Hash: hash}
	switch {
	case result == resultRejected:
		r.Outcome = OutcomeRejected
	case interactRef == "":
		r.Outcome = OutcomeMissingRef
	default:
		r.Outcome = OutcomeAccepted
	}
	return r
}

// Relay hands interaction results from the callback handler to the
// coordinator waiting on the same payment id. Delivery is exactly once:
// the first callback for a payment id wins, later or duplicate
// callbacks are dropped, and a result for a payment nobody is waiting
// on is dropped too.
type Relay struct {
	mu      sync.Mutex
	waiters map[string]chan Result
	logger  *slog.Logger
}

// NewRelay creates an empty relay.
func NewRelay(logger *slog.Logger) *Relay {
	return &Relay{
		waiters: make(map[string]chan Result),
		logger:  logger,
	}
}

// Register announces a waiter for the payment id and returns the
// channel its result will arrive on. The release func must be called
// once the waiter is done (result received, cancelled, or abandoned);
// it is safe to call after delivery.
func (r *Relay) Register(paymentID string) (<-chan Result, func()) {
	ch := make(chan Result, 1)
	r.mu.Lock()
	r.waiters[paymentID] = ch
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if cur, ok := r.waiters[paymentID]; ok && cur == ch {
			delete(r.waiters, paymentID)
		}
		r.mu.Unlock()
	}
	return ch, release
}

// Deliver routes a callback result to the registered waiter. Returns
// false when no waiter is registered, which covers late callbacks,
// duplicates, and payment ids this process never issued.
func (r *Relay) Deliver(paymentID string, res Result) bool {
	r.mu.Lock()
	ch, ok := r.waiters[paymentID]
	if ok {
		// Removing the entry before sending makes a second callback
		// with the same payment id a no-op
		delete(r.waiters, paymentID)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Info("interaction callback dropped, no waiter", "payment_id", paymentID)
		return false
	}

	ch <- res
	return true
}

// Waiting reports whether a waiter is currently registered for the
// payment id.
func (r *Relay) Waiting(paymentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.waiters[paymentID]
	return ok
}
