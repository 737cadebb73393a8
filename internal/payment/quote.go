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

// QuoteService obtains a quote for a payment between two wallets:
// a non-interactive incoming-payment grant on the receiver's auth
// server, an incoming payment placeholder on the receiver's resource
// server, a non-interactive quote grant on the sender's auth server,
// and finally the quote itself.
type QuoteService struct {
	client Client
	// incomingPaymentExpiry bounds how long the created incoming payment
	// stays payable
	incomingPaymentExpiry time.Duration
	logger                *slog.Logger
}

// NewQuoteService creates a quote service.
func NewQuoteService(client Client, incomingPaymentExpiry time.Duration, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		client:                client,
		incomingPaymentExpiry: incomingPaymentExpiry,
		logger:                logger,
	}
}

// CreateQuote quotes a payment of the given source-currency amount
// (decimal string, e.g. "10.00") from sender to receiver. note is
// untrusted text carried opaquely into the incoming payment's metadata.
func (s *QuoteService) CreateQuote(ctx context.Context, sender, receiver *openpayments.WalletAddress, amount, note string) (*Quote, error) {
	ctx, span := traces.StartSpan(ctx, "payment.CreateQuote",
		traces.WalletAddress(sender.ID),
		traces.Amount(amount),
	)
	defer span.End()

	timer := time.Now()
	defer func() {
		metrics.PaymentFlowDuration.WithLabelValues("quote").Observe(time.Since(timer).Seconds())
	}()

	debitAmount, err := ToMinorUnits(amount, sender.AssetCode, sender.AssetScale)
	if err != nil {
		metrics.QuotesCreatedTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	// Step 1: incoming-payment grant on the receiver's auth server
	ipToken, err := s.nonInteractiveGrant(ctx, receiver.AuthServer, openpayments.Access{
		Type:    openpayments.AccessTypeIncomingPayment,
		Actions: []string{"read", "create", "complete"},
	})
	if err != nil {
		metrics.QuotesCreatedTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	// Step 2: incoming payment placeholder on the receiver, no fixed
	// amount, bounded expiry
	ipReq := &openpayments.IncomingPaymentRequest{
		WalletAddress: receiver.ID,
		ExpiresAt:     time.Now().Add(s.incomingPaymentExpiry).UTC(),
	}
	if note != "" {
		ipReq.Metadata = map[string]string{"description": note}
	}
	incomingPayment, err := s.client.CreateIncomingPayment(ctx, receiver.ResourceServer, ipToken, ipReq)
	if err != nil {
		metrics.QuotesCreatedTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrIncomingPaymentCreation, err)
	}

	// Step 3: quote grant on the sender's auth server
	quoteToken, err := s.nonInteractiveGrant(ctx, sender.AuthServer, openpayments.Access{
		Type:    openpayments.AccessTypeQuote,
		Actions: []string{"create", "read"},
	})
	if err != nil {
		metrics.QuotesCreatedTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	// Step 4: the quote itself, debiting the sender
	quote, err := s.client.CreateQuote(ctx, sender.ResourceServer, quoteToken, &openpayments.QuoteRequest{
		WalletAddress: sender.ID,
		Receiver:      incomingPayment.ID,
		Method:        openpayments.PaymentMethodILP,
		DebitAmount:   &debitAmount,
	})
	if err != nil {
		metrics.QuotesCreatedTotal.WithLabelValues("failed").Inc()
		return nil, &QuoteError{ReceiverName: receiver.PublicName, Err: err}
	}

	s.logger.Info("quote created",
		"quote_id", quote.ID,
		"sender", sender.ID,
		"receiver", receiver.ID,
		"debit_amount", quote.DebitAmount.Value,
		"receive_amount", quote.ReceiveAmount.Value,
	)
	metrics.QuotesCreatedTotal.WithLabelValues("created").Inc()

	return &Quote{Quote: *quote, IncomingPaymentGrantToken: ipToken}, nil
}

// nonInteractiveGrant requests an immediately-issued grant. An
// authorization server answering with a pending/interactive grant here
// violates the protocol and fails fast; it is never retried.
func (s *QuoteService) nonInteractiveGrant(ctx context.Context, authServer string, access openpayments.Access) (string, error) {
	resp, err := s.client.RequestGrant(ctx, authServer, &openpayments.GrantRequest{
		AccessToken: openpayments.AccessTokenRequest{Access: []openpayments.Access{access}},
	})
	if err != nil {
		metrics.GrantRequestsTotal.WithLabelValues(access.Type, "failed").Inc()
		return "", &GrantRequestError{Scope: access.Type, Err: err}
	}

	if _, pending := resp.AsPending(); pending {
		metrics.GrantRequestsTotal.WithLabelValues(access.Type, "unexpected_interactive").Inc()
		return "", &GrantRequestError{Scope: access.Type, Err: ErrUnexpectedGrantType}
	}

	fin, ok := resp.AsFinalized()
	if !ok {
		metrics.GrantRequestsTotal.WithLabelValues(access.Type, "failed").Inc()
		return "", &GrantRequestError{Scope: access.Type, Err: fmt.Errorf("grant response carries no access token")}
	}

	metrics.GrantRequestsTotal.WithLabelValues(access.Type, "issued").Inc()
	return fin.AccessToken, nil
}
