package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/interledger/publisher-tools/internal/idgen"
	"github.com/interledger/publisher-tools/internal/metrics"
	"github.com/interledger/publisher-tools/internal/openpayments"
	"github.com/interledger/publisher-tools/internal/traces"
)

// PendingOutgoingGrant is an interactive outgoing-payment grant awaiting
// user approval, together with the correlation id and nonce minted for
// its finish redirect. Owned by one payment attempt; never shared.
type PendingOutgoingGrant struct {
	Grant     openpayments.PendingGrant `json:"grant"`
	PaymentID string                    `json:"paymentId"`
	Nonce     string                    `json:"nonce"`
}

// GrantService requests interactive outgoing-payment grants and confirms
// them after user interaction.
type GrantService struct {
	client Client
	// redirectBase is this service's public base URL; the authorization
	// server sends the user back to it after interaction
	redirectBase string
	logger       *slog.Logger
}

// NewGrantService creates a grant service.
func NewGrantService(client Client, redirectBase string, logger *slog.Logger) *GrantService {
	return &GrantService{
		client:       client,
		redirectBase: strings.TrimSuffix(redirectBase, "/"),
		logger:       logger,
	}
}

// CallbackPath returns the interaction finish path for a payment id.
func (s *GrantService) CallbackPath(paymentID string) string {
	return "/api/payment/interaction/" + paymentID + "/callback"
}

// RequestInteractiveGrant requests an outgoing-payment grant limited to
// the quoted amounts, to be approved by the sender via redirect. The
// correlation id and nonce are freshly random per request so concurrent
// attempts cannot confuse each other's callbacks.
func (s *GrantService) RequestInteractiveGrant(ctx context.Context, sender *openpayments.WalletAddress, debitAmount, receiveAmount openpayments.Amount) (*PendingOutgoingGrant, error) {
	paymentID := idgen.WithPrefix("pay_")
	nonce := idgen.Nonce()

	ctx, span := traces.StartSpan(ctx, "payment.RequestInteractiveGrant",
		traces.WalletAddress(sender.ID),
		traces.PaymentID(paymentID),
	)
	defer span.End()

	resp, err := s.client.RequestGrant(ctx, sender.AuthServer, &openpayments.GrantRequest{
		AccessToken: openpayments.AccessTokenRequest{Access: []openpayments.Access{{
			Type:       openpayments.AccessTypeOutgoingPayment,
			Actions:    []string{"create", "read", "list"},
			Identifier: sender.ID,
			Limits: &openpayments.AccessLimits{
				DebitAmount:   &debitAmount,
				ReceiveAmount: &receiveAmount,
			},
		}}},
		Interact: &openpayments.InteractRequest{
			Start: []string{"redirect"},
			Finish: &openpayments.InteractFinish{
				Method: "redirect",
				URI:    s.redirectBase + s.CallbackPath(paymentID),
				Nonce:  nonce,
			},
		},
	})
	if err != nil {
		metrics.GrantRequestsTotal.WithLabelValues(openpayments.AccessTypeOutgoingPayment, "failed").Inc()
		return nil, &GrantRequestError{Scope: openpayments.AccessTypeOutgoingPayment, Err: err}
	}

	// An immediately-issued grant here means the authorization server
	// skipped user consent: protocol violation, fail hard.
	if _, finalized := resp.AsFinalized(); finalized {
		metrics.GrantRequestsTotal.WithLabelValues(openpayments.AccessTypeOutgoingPayment, "unexpected_immediate").Inc()
		return nil, fmt.Errorf("%w: authorization server issued a grant without interaction", ErrUnexpectedGrantType)
	}

	pending, ok := resp.AsPending()
	if !ok || pending.Continue.URI == "" {
		metrics.GrantRequestsTotal.WithLabelValues(openpayments.AccessTypeOutgoingPayment, "failed").Inc()
		return nil, &GrantRequestError{
			Scope: openpayments.AccessTypeOutgoingPayment,
			Err:   fmt.Errorf("grant response has no usable interact/continue blocks"),
		}
	}

	metrics.GrantRequestsTotal.WithLabelValues(openpayments.AccessTypeOutgoingPayment, "pending").Inc()
	s.logger.Info("interactive grant requested",
		"payment_id", paymentID,
		"sender", sender.ID,
		"debit_amount", debitAmount.Value,
	)

	return &PendingOutgoingGrant{Grant: *pending, PaymentID: paymentID, Nonce: nonce}, nil
}

// ConfirmGrant calls the pending grant's continuation endpoint with the
// interaction reference. It returns (nil, nil) when the grant was not
// accepted (no issued access token); the caller decides whether to
// re-prompt or abort. Call at most once per pending grant — a second
// continuation with the same reference is outside the authorization
// server's contract.
func (s *GrantService) ConfirmGrant(ctx context.Context, grant *openpayments.PendingGrant, interactRef string) (*openpayments.FinalizedGrant, error) {
	ctx, span := traces.StartSpan(ctx, "payment.ConfirmGrant")
	defer span.End()

	resp, err := s.client.ContinueGrant(ctx, grant.Continue.URI, grant.Continue.AccessToken.Value, interactRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGrantNotAccepted, err)
	}

	fin, ok := resp.AsFinalized()
	if !ok {
		// Continuation answered but the grant is still pending or was
		// denied: not an error, just not accepted
		s.logger.Info("grant continuation returned no access token")
		return nil, nil
	}

	return fin, nil
}
