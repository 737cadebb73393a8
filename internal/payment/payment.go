// Package payment implements the Open Payments interactive-grant payment
// flow: quoting a payment, requesting an interactive outgoing-payment
// grant, confirming the grant after user interaction, and finalizing the
// outgoing payment.
//
// Flow:
//  1. QuoteService.CreateQuote — non-interactive grants, incoming payment
//     on the receiver, quote on the sender
//  2. GrantService.RequestInteractiveGrant — pending grant + redirect URL
//  3. user approves out-of-band (see internal/interaction)
//  4. GrantService.ConfirmGrant — one-shot continuation
//  5. Finalizer.Finalize + Verify — outgoing payment, settlement check
//
// Every stage either succeeds or fails outright; nothing is retried.
package payment

import (
	"context"

	"github.com/interledger/publisher-tools/internal/openpayments"
)

// Client is the subset of the Open Payments client the flow services
// use. Satisfied by *openpayments.Client.
type Client interface {
	RequestGrant(ctx context.Context, authServer string, req *openpayments.GrantRequest) (*openpayments.GrantResponse, error)
	ContinueGrant(ctx context.Context, continueURI, continueToken, interactRef string) (*openpayments.GrantResponse, error)
	CreateIncomingPayment(ctx context.Context, resourceServer, token string, req *openpayments.IncomingPaymentRequest) (*openpayments.IncomingPayment, error)
	GetIncomingPayment(ctx context.Context, id, token string) (*openpayments.IncomingPayment, error)
	CreateQuote(ctx context.Context, resourceServer, token string, req *openpayments.QuoteRequest) (*openpayments.Quote, error)
	CreateOutgoingPayment(ctx context.Context, resourceServer, token string, req *openpayments.OutgoingPaymentRequest) (*openpayments.OutgoingPayment, error)
	GetOutgoingPayment(ctx context.Context, id, token string) (*openpayments.OutgoingPayment, error)
}

// Quote bundles the resource-server quote with the incoming-payment
// grant token the finalize stage later needs to verify settlement on the
// receiver's server.
type Quote struct {
	openpayments.Quote
	IncomingPaymentGrantToken string `json:"incomingPaymentGrantToken"`
}
