package payment

import (
	"context"

	"github.com/interledger/publisher-tools/internal/openpayments"
)

// fakeClient scripts Open Payments responses per method. Zero-value
// methods fail loudly so tests only exercise what they script.
type fakeClient struct {
	grantResponses []*openpayments.GrantResponse
	grantErr       error
	grantRequests  []*openpayments.GrantRequest
	grantServers   []string

	continueResponse *openpayments.GrantResponse
	continueErr      error
	continueCalls    int
	continueURI      string
	continueToken    string
	continueRef      string

	incomingPayment    *openpayments.IncomingPayment
	incomingPaymentErr error
	incomingPaymentReq *openpayments.IncomingPaymentRequest

	quote    *openpayments.Quote
	quoteErr error
	quoteReq *openpayments.QuoteRequest

	outgoingPayment    *openpayments.OutgoingPayment
	outgoingPaymentErr error
	outgoingPaymentReq *openpayments.OutgoingPaymentRequest

	getOutgoing    *openpayments.OutgoingPayment
	getOutgoingErr error
	getIncoming    *openpayments.IncomingPayment
	getIncomingErr error
}

func (f *fakeClient) RequestGrant(_ context.Context, authServer string, req *openpayments.GrantRequest) (*openpayments.GrantResponse, error) {
	f.grantRequests = append(f.grantRequests, req)
	f.grantServers = append(f.grantServers, authServer)
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	i := len(f.grantRequests) - 1
	if i >= len(f.grantResponses) {
		i = len(f.grantResponses) - 1
	}
	return f.grantResponses[i], nil
}

func (f *fakeClient) ContinueGrant(_ context.Context, uri, token, ref string) (*openpayments.GrantResponse, error) {
	f.continueCalls++
	f.continueURI, f.continueToken, f.continueRef = uri, token, ref
	if f.continueErr != nil {
		return nil, f.continueErr
	}
	return f.continueResponse, nil
}

func (f *fakeClient) CreateIncomingPayment(_ context.Context, _, _ string, req *openpayments.IncomingPaymentRequest) (*openpayments.IncomingPayment, error) {
	f.incomingPaymentReq = req
	if f.incomingPaymentErr != nil {
		return nil, f.incomingPaymentErr
	}
	return f.incomingPayment, nil
}

func (f *fakeClient) GetIncomingPayment(_ context.Context, _, _ string) (*openpayments.IncomingPayment, error) {
	return f.getIncoming, f.getIncomingErr
}

func (f *fakeClient) CreateQuote(_ context.Context, _, _ string, req *openpayments.QuoteRequest) (*openpayments.Quote, error) {
	f.quoteReq = req
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeClient) CreateOutgoingPayment(_ context.Context, _, _ string, req *openpayments.OutgoingPaymentRequest) (*openpayments.OutgoingPayment, error) {
	f.outgoingPaymentReq = req
	if f.outgoingPaymentErr != nil {
		return nil, f.outgoingPaymentErr
	}
	return f.outgoingPayment, nil
}

func (f *fakeClient) GetOutgoingPayment(_ context.Context, _, _ string) (*openpayments.OutgoingPayment, error) {
	return f.getOutgoing, f.getOutgoingErr
}

// Response builders

func finalizedGrant(token string) *openpayments.GrantResponse {
	return &openpayments.GrantResponse{
		AccessToken: &openpayments.AccessToken{Value: token},
	}
}

func pendingGrant(redirect, continueURI, continueToken string) *openpayments.GrantResponse {
	return &openpayments.GrantResponse{
		Interact: &openpayments.Interact{Redirect: redirect, Finish: "finish-token"},
		Continue: &openpayments.Continue{
			AccessToken: openpayments.TokenValue{Value: continueToken},
			URI:         continueURI,
			Wait:        30,
		},
	}
}

func testSender() *openpayments.WalletAddress {
	return &openpayments.WalletAddress{
		ID:             "https://wallet.example/alice",
		PublicName:     "Alice",
		AssetCode:      "USD",
		AssetScale:     2,
		AuthServer:     "https://auth.sender.example",
		ResourceServer: "https://rs.sender.example",
	}
}

func testReceiver() *openpayments.WalletAddress {
	return &openpayments.WalletAddress{
		ID:             "https://wallet.example/bob",
		PublicName:     "Bob's Blog",
		AssetCode:      "EUR",
		AssetScale:     2,
		AuthServer:     "https://auth.receiver.example",
		ResourceServer: "https://rs.receiver.example",
	}
}
