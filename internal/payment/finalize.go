package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/interledger/publisher-tools/internal/metrics"
	"github.com/interledger/publisher-tools/internal/openpayments"
	"github.com/interledger/publisher-tools/internal/traces"
)

// VerificationStatus reports the settlement check after an outgoing
// payment was created.
type VerificationStatus string

const (
	// StatusCompleted: the transfer settled.
	StatusCompleted VerificationStatus = "completed"
	// StatusPending: the payment exists but has not settled yet.
	StatusPending VerificationStatus = "pending"
	// StatusFailed: the resource server marked the payment failed.
	StatusFailed VerificationStatus = "failed"
	// StatusUnknown: verification could not be performed. The payment may
	// still have succeeded — never report this as failure.
	StatusUnknown VerificationStatus = "unknown"
)

// Verification is the result of re-fetching a finalized payment.
type Verification struct {
	Status          VerificationStatus           `json:"status"`
	OutgoingPayment *openpayments.OutgoingPayment `json:"outgoingPayment,omitempty"`
	IncomingPayment *openpayments.IncomingPayment `json:"incomingPayment,omitempty"`
}

// Finalizer creates the outgoing payment once the interactive grant is
// confirmed, and verifies settlement.
type Finalizer struct {
	client Client
	logger *slog.Logger
}

// NewFinalizer creates a finalizer.
func NewFinalizer(client Client, logger *slog.Logger) *Finalizer {
	return &Finalizer{client: client, logger: logger}
}

// Finalize creates the outgoing payment on the sender's resource server
// using the finalized grant's access token and the quote id. Once
// issued, the operation cannot be cancelled — the payment may already be
// irrevocably created upstream. Resource-server rejections (including
// quote expiry) are surfaced verbatim via the wrapped error.
func (f *Finalizer) Finalize(ctx context.Context, grant *openpayments.FinalizedGrant, sender *openpayments.WalletAddress, quote *Quote, note string) (*openpayments.OutgoingPayment, error) {
	ctx, span := traces.StartSpan(ctx, "payment.Finalize",
		traces.WalletAddress(sender.ID),
	)
	defer span.End()

	timer := time.Now()
	defer func() {
		metrics.PaymentFlowDuration.WithLabelValues("finalize").Observe(time.Since(timer).Seconds())
	}()

	req := &openpayments.OutgoingPaymentRequest{
		WalletAddress: sender.ID,
		QuoteID:       quote.ID,
	}
	if note != "" {
		// note is untrusted publisher/visitor text; it travels as opaque
		// metadata and is never rendered by this service
		req.Metadata = map[string]string{"description": note}
	}

	op, err := f.client.CreateOutgoingPayment(ctx, sender.ResourceServer, grant.AccessToken, req)
	if err != nil {
		metrics.OutgoingPaymentsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrOutgoingPaymentCreation, err)
	}

	metrics.OutgoingPaymentsTotal.WithLabelValues("created").Inc()
	f.logger.Info("outgoing payment created",
		"outgoing_payment_id", op.ID,
		"quote_id", quote.ID,
		"sender", sender.ID,
	)
	return op, nil
}

// Verify re-fetches the outgoing payment (and, when the incoming-payment
// grant token is available, the incoming payment) to confirm the
// transfer settled. A fetch failure yields StatusUnknown: the payment
// side effect may already be irreversible, so indeterminate is reported
// distinctly and never downgraded to failure.
func (f *Finalizer) Verify(ctx context.Context, outgoingPaymentID, accessToken, incomingPaymentGrantToken, incomingPaymentID string) *Verification {
	ctx, span := traces.StartSpan(ctx, "payment.Verify")
	defer span.End()

	v := &Verification{Status: StatusUnknown}

	op, err := f.client.GetOutgoingPayment(ctx, outgoingPaymentID, accessToken)
	if err != nil {
		metrics.OutgoingPaymentsTotal.WithLabelValues("unknown").Inc()
		f.logger.Warn("outgoing payment verification indeterminate",
			"outgoing_payment_id", outgoingPaymentID,
			"error", err,
		)
		return v
	}
	v.OutgoingPayment = op

	if op.Failed {
		v.Status = StatusFailed
		metrics.OutgoingPaymentsTotal.WithLabelValues("verified_failed").Inc()
		return v
	}

	// Cross-check the receiving side when we still hold the
	// incoming-payment grant token from the quote stage
	if incomingPaymentGrantToken != "" && incomingPaymentID != "" {
		ip, err := f.client.GetIncomingPayment(ctx, incomingPaymentID, incomingPaymentGrantToken)
		if err != nil {
			f.logger.Warn("incoming payment verification indeterminate",
				"incoming_payment_id", incomingPaymentID,
				"error", err,
			)
			// Sender side looked fine; report what we know
			v.Status = StatusPending
			return v
		}
		v.IncomingPayment = ip
		if ip.Completed || (ip.ReceivedAmount != nil && ip.ReceivedAmount.Value != "" && ip.ReceivedAmount.Value != "0") {
			v.Status = StatusCompleted
			metrics.OutgoingPaymentsTotal.WithLabelValues("verified").Inc()
			return v
		}
	}

	if op.SentAmount != nil && op.SentAmount.Value != "" && op.SentAmount.Value != "0" {
		v.Status = StatusCompleted
		metrics.OutgoingPaymentsTotal.WithLabelValues("verified").Inc()
		return v
	}

	v.Status = StatusPending
	return v
}
