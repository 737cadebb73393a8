package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/interledger/publisher-tools/internal/metrics"
	"github.com/interledger/publisher-tools/internal/openpayments"
	"github.com/interledger/publisher-tools/internal/payment"
	"github.com/interledger/publisher-tools/internal/traces"
)

var (
	// ErrCancelled reports that the user abandoned the authorization
	// step before the authorization server responded.
	ErrCancelled = errors.New("interaction: cancelled before authorization completed")

	// ErrNoInteractRef reports a callback that carried neither an
	// interaction reference nor an explicit rejection.
	ErrNoInteractRef = errors.New("interaction: callback missing interact_ref")
)

// Status is the coordinator's position in the authorization step.
type Status string

const (
	StateIdle             Status = "idle"
	StateAwaitingRedirect Status = "awaiting_redirect"
	StateAwaitingCallback Status = "awaiting_callback"
	StateAccepted         Status = "accepted"
	StateRejected         Status = "rejected"
	StateErrored          Status = "errored"
	StateCancelled        Status = "cancelled"
)

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	switch s {
	case StateAccepted, StateRejected, StateErrored, StateCancelled:
		return true
	}
	return false
}

// Confirmer reconciles a pending grant against the authorization
// server's continuation endpoint. Satisfied by *payment.GrantService.
type Confirmer interface {
	ConfirmGrant(ctx context.Context, grant *openpayments.PendingGrant, interactRef string) (*openpayments.FinalizedGrant, error)
}

// Coordinator drives one payment attempt through the interactive
// authorization step. It owns the pending grant for the duration of the
// wait and consumes its continuation at most once. One coordinator per
// attempt; not reusable.
type Coordinator struct {
	confirmer Confirmer
	relay     *Relay
	logger    *slog.Logger

	mu     sync.Mutex
	status Status

	cancel     chan struct{}
	cancelOnce sync.Once
}

// NewCoordinator creates a coordinator for a single payment attempt.
func NewCoordinator(confirmer Confirmer, relay *Relay, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		confirmer: confirmer,
		relay:     relay,
		logger:    logger,
		status:    StateIdle,
		cancel:    make(chan struct{}),
	}
}

// State returns the coordinator's current status.
func (c *Coordinator) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) setState(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Cancel abandons the wait. The pending grant is discarded without a
// continuation call; the authorization server never hears from us
// again. Safe to call more than once and from any goroutine.
func (c *Coordinator) Cancel() {
	c.cancelOnce.Do(func() { close(c.cancel) })
}

// Await blocks until the interaction callback for the grant's payment
// id arrives, then reconciles it:
//
//   - explicit rejection: returns (nil, nil), state Rejected. Not an
//     error; the user said no.
//   - accepted callback: calls the continuation endpoint once. A
//     finalized grant yields state Accepted; a null confirmation or a
//     continuation failure yields state Errored.
//   - callback without an interaction reference: state Errored,
//     ErrNoInteractRef.
//   - Cancel or context expiry: state Cancelled, ErrCancelled. No
//     continuation call is made.
//
// The coordinator enforces no timeout of its own; the grant's
// continue.wait is advisory for polling flows and this one is
// redirect-driven.
func (c *Coordinator) Await(ctx context.Context, grant *payment.PendingOutgoingGrant) (*openpayments.FinalizedGrant, error) {
	ctx, span := traces.StartSpan(ctx, "interaction.Await",
		traces.PaymentID(grant.PaymentID),
	)
	defer span.End()

	ch, release := c.relay.Register(grant.PaymentID)
	defer release()

	// The redirect URL is already in the caller's hands; opening it is
	// the caller's side of the contract, so the two waiting states
	// collapse into one here
	c.setState(StateAwaitingRedirect)
	c.setState(StateAwaitingCallback)

	var res Result
	select {
	case res = <-ch:
	case <-c.cancel:
		c.setState(StateCancelled)
		metrics.InteractionsTotal.WithLabelValues("cancelled").Inc()
		c.logger.Info("interaction cancelled", "payment_id", grant.PaymentID)
		return nil, ErrCancelled
	case <-ctx.Done():
		c.setState(StateCancelled)
		metrics.InteractionsTotal.WithLabelValues("cancelled").Inc()
		c.logger.Info("interaction wait abandoned", "payment_id", grant.PaymentID, "error", ctx.Err())
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}

	return c.reconcile(ctx, grant, res)
}

// Settle reconciles a result that reached the caller out of band: the
// callback page handed it to the widget, which echoes it back. Same
// terminal states and continuation contract as Await, without the wait.
func (c *Coordinator) Settle(ctx context.Context, grant *payment.PendingOutgoingGrant, res Result) (*openpayments.FinalizedGrant, error) {
	ctx, span := traces.StartSpan(ctx, "interaction.Settle",
		traces.PaymentID(grant.PaymentID),
	)
	defer span.End()

	c.setState(StateAwaitingCallback)
	return c.reconcile(ctx, grant, res)
}

func (c *Coordinator) reconcile(ctx context.Context, grant *payment.PendingOutgoingGrant, res Result) (*openpayments.FinalizedGrant, error) {
	switch res.Outcome {
	case OutcomeRejected:
		c.setState(StateRejected)
		metrics.InteractionsTotal.WithLabelValues("rejected").Inc()
		c.logger.Info("grant rejected by user", "payment_id", grant.PaymentID)
		return nil, nil

	case OutcomeMissingRef:
		c.setState(StateErrored)
		metrics.InteractionsTotal.WithLabelValues("errored").Inc()
		return nil, ErrNoInteractRef
	}

	finalized, err := c.confirmer.ConfirmGrant(ctx, &grant.Grant, res.InteractRef)
	if err != nil {
		c.setState(StateErrored)
		metrics.InteractionsTotal.WithLabelValues("errored").Inc()
		return nil, err
	}
	if finalized == nil {
		// Continuation answered but issued no access token; the grant
		// is still pending on the server's side
		c.setState(StateErrored)
		metrics.InteractionsTotal.WithLabelValues("errored").Inc()
		return nil, payment.ErrGrantNotAccepted
	}

	c.setState(StateAccepted)
	metrics.InteractionsTotal.WithLabelValues("accepted").Inc()
	c.logger.Info("grant accepted", "payment_id", grant.PaymentID)
	return finalized, nil
}
