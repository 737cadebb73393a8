package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interledger/publisher-tools/internal/openpayments"
	"github.com/interledger/publisher-tools/internal/payment"
)

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return do(srv, method, path, string(raw))
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func finalizedResponse(token string) *openpayments.GrantResponse {
	return &openpayments.GrantResponse{
		AccessToken: &openpayments.AccessToken{Value: token},
	}
}

func pendingResponse() *openpayments.GrantResponse {
	return &openpayments.GrantResponse{
		Interact: &openpayments.Interact{
			Redirect: "https://auth.sender.example/interact/xyz",
			Finish:   "finish-token",
		},
		Continue: &openpayments.Continue{
			URI:         "https://auth.sender.example/continue/abc",
			AccessToken: openpayments.TokenValue{Value: "cont-token"},
		},
	}
}

// -----------------------------------------------------------------------------
// Quote endpoint
// -----------------------------------------------------------------------------

func TestCreateQuote(t *testing.T) {
	client := &stubClient{
		grantResponses: []*openpayments.GrantResponse{
			finalizedResponse("ip-token"),
			finalizedResponse("quote-token"),
		},
		incomingPayment: &openpayments.IncomingPayment{
			ID: "https://rs.receiver.example/incoming-payments/ip1",
		},
		quote: &openpayments.Quote{
			ID:            "https://rs.sender.example/quotes/q1",
			WalletAddress: "https://wallet.example/alice",
			Receiver:      "https://rs.receiver.example/incoming-payments/ip1",
			DebitAmount:   openpayments.Amount{Value: "102", AssetCode: "USD", AssetScale: 2},
			ReceiveAmount: openpayments.Amount{Value: "91", AssetCode: "EUR", AssetScale: 2},
		},
	}
	srv := newTestServer(t, client)

	w := doJSON(t, srv, http.MethodPost, "/api/payment/quote", CreateQuoteRequest{
		SenderWalletAddress:   "$wallet.example/alice",
		ReceiverWalletAddress: "https://wallet.example/bob",
		Amount:                "1.00",
		Note:                  "thanks for the article",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var quote payment.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, "https://rs.sender.example/quotes/q1", quote.ID)
	assert.Equal(t, "102", quote.DebitAmount.Value)
	assert.Equal(t, "ip-token", quote.IncomingPaymentGrantToken)
	assert.Equal(t, 2, client.grantCalls)
}

func TestCreateQuote_Validation(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	w := do(srv, http.MethodPost, "/api/payment/quote", `{"senderWalletAddress": "$wallet.example/alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeJSON(t, w)["error"])

	w = doJSON(t, srv, http.MethodPost, "/api/payment/quote", CreateQuoteRequest{
		SenderWalletAddress:   "$wallet.example/alice",
		ReceiverWalletAddress: "https://wallet.example/bob",
		Amount:                "not-a-number",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_amount", decodeJSON(t, w)["error"])
}

func TestCreateQuote_UnknownWallet(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	w := doJSON(t, srv, http.MethodPost, "/api/payment/quote", CreateQuoteRequest{
		SenderWalletAddress:   "$wallet.example/alice",
		ReceiverWalletAddress: "https://wallet.example/nobody",
		Amount:                "1.00",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "wallet_address_not_found", body["error"])
	assert.Contains(t, body["message"], "receiver")
}

func TestCreateQuote_GrantFailureHidesUpstreamBody(t *testing.T) {
	client := &stubClient{
		grantErr: &openpayments.HTTPError{
			Status: 500,
			URL:    "https://auth.receiver.example/",
			Body:   `{"secret":"internal auth server detail"}`,
		},
	}
	srv := newTestServer(t, client)

	w := doJSON(t, srv, http.MethodPost, "/api/payment/quote", CreateQuoteRequest{
		SenderWalletAddress:   "$wallet.example/alice",
		ReceiverWalletAddress: "https://wallet.example/bob",
		Amount:                "1.00",
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "grant_request_failed", body["error"])
	assert.Contains(t, body["message"], "incoming-payment")
	assert.NotContains(t, w.Body.String(), "internal auth server detail")
}

// -----------------------------------------------------------------------------
// Grant endpoint
// -----------------------------------------------------------------------------

func TestRequestGrant(t *testing.T) {
	client := &stubClient{
		grantResponses: []*openpayments.GrantResponse{pendingResponse()},
	}
	srv := newTestServer(t, client)

	w := doJSON(t, srv, http.MethodPost, "/api/payment/grant", RequestGrantRequest{
		WalletAddress: "$wallet.example/alice",
		DebitAmount:   openpayments.Amount{Value: "102", AssetCode: "USD", AssetScale: 2},
		ReceiveAmount: openpayments.Amount{Value: "91", AssetCode: "EUR", AssetScale: 2},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	assert.True(t, strings.HasPrefix(body["paymentId"].(string), "pay_"))
	assert.NotEmpty(t, body["nonce"])
	assert.Equal(t, "https://auth.sender.example/interact/xyz", body["redirectUrl"])

	grant, ok := body["grant"].(map[string]any)
	require.True(t, ok)
	assert.NotNil(t, grant["continue"])
}

func TestRequestGrant_ImmediateGrantRejected(t *testing.T) {
	client := &stubClient{
		grantResponses: []*openpayments.GrantResponse{finalizedResponse("no-consent-token")},
	}
	srv := newTestServer(t, client)

	w := doJSON(t, srv, http.MethodPost, "/api/payment/grant", RequestGrantRequest{
		WalletAddress: "$wallet.example/alice",
		DebitAmount:   openpayments.Amount{Value: "102", AssetCode: "USD", AssetScale: 2},
		ReceiveAmount: openpayments.Amount{Value: "91", AssetCode: "EUR", AssetScale: 2},
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "unexpected_grant_type", decodeJSON(t, w)["error"])
	assert.NotContains(t, w.Body.String(), "no-consent-token")
}

// -----------------------------------------------------------------------------
// Finalize endpoint
// -----------------------------------------------------------------------------

func testFinalizeRequest() FinalizeRequest {
	expires := time.Now().Add(5 * time.Minute).UTC()
	return FinalizeRequest{
		WalletAddress: "$wallet.example/alice",
		PendingGrant: payment.PendingOutgoingGrant{
			Grant: openpayments.PendingGrant{
				Interact: openpayments.Interact{Redirect: "https://auth.sender.example/interact/xyz"},
				Continue: openpayments.Continue{
					URI:         "https://auth.sender.example/continue/abc",
					AccessToken: openpayments.TokenValue{Value: "cont-token"},
				},
			},
			PaymentID: "pay_test123",
			Nonce:     "nonce-1",
		},
		Quote: payment.Quote{
			Quote: openpayments.Quote{
				ID:            "https://rs.sender.example/quotes/q1",
				WalletAddress: "https://wallet.example/alice",
				Receiver:      "https://rs.receiver.example/incoming-payments/ip1",
				DebitAmount:   openpayments.Amount{Value: "102", AssetCode: "USD", AssetScale: 2},
				ReceiveAmount: openpayments.Amount{Value: "91", AssetCode: "EUR", AssetScale: 2},
				ExpiresAt:     &expires,
			},
			IncomingPaymentGrantToken: "ip-token",
		},
	}
}

func settledStub() *stubClient {
	return &stubClient{
		continueResponse: finalizedResponse("op-token"),
		outgoingPayment: &openpayments.OutgoingPayment{
			ID:            "https://rs.sender.example/outgoing-payments/op1",
			WalletAddress: "https://wallet.example/alice",
			QuoteID:       "https://rs.sender.example/quotes/q1",
			Receiver:      "https://rs.receiver.example/incoming-payments/ip1",
			DebitAmount:   openpayments.Amount{Value: "102", AssetCode: "USD", AssetScale: 2},
			ReceiveAmount: openpayments.Amount{Value: "91", AssetCode: "EUR", AssetScale: 2},
		},
		getOutgoing: &openpayments.OutgoingPayment{
			ID:         "https://rs.sender.example/outgoing-payments/op1",
			SentAmount: &openpayments.Amount{Value: "102", AssetCode: "USD", AssetScale: 2},
		},
		getIncoming: &openpayments.IncomingPayment{
			ID:        "https://rs.receiver.example/incoming-payments/ip1",
			Completed: true,
		},
	}
}

func TestFinalize_WithInteractRef(t *testing.T) {
	client := settledStub()
	srv := newTestServer(t, client)

	req := testFinalizeRequest()
	req.InteractRef = "ref-1"
	req.Hash = "hash-1"
	w := doJSON(t, srv, http.MethodPost, "/api/payment/finalize", req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	assert.Equal(t, "completed", body["status"])

	op, ok := body["outgoingPayment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://rs.sender.example/outgoing-payments/op1", op["id"])

	assert.Equal(t, 1, client.continueCalls)
	assert.NotContains(t, w.Body.String(), "op-token")
	assert.NotContains(t, w.Body.String(), "ip-token")
}

func TestFinalize_SuspendsUntilCallback(t *testing.T) {
	client := settledStub()
	srv := newTestServer(t, client)

	req := testFinalizeRequest()
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doJSON(t, srv, http.MethodPost, "/api/payment/finalize", req)
	}()

	// The finalize request registers a waiter before blocking
	require.Eventually(t, func() bool {
		return srv.relay.Waiting(req.PendingGrant.PaymentID)
	}, 2*time.Second, 5*time.Millisecond)

	cb := do(srv, http.MethodGet,
		"/api/payment/interaction/"+req.PendingGrant.PaymentID+"/callback?interact_ref="+url.QueryEscape("ref-1"),
		"")
	assert.Equal(t, http.StatusOK, cb.Code)
	assert.Contains(t, cb.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, cb.Body.String(), "wm_interaction_result")
	assert.Contains(t, cb.Body.String(), "ref-1")

	select {
	case w := <-done:
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "completed", decodeJSON(t, w)["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("finalize request did not resume after the callback")
	}
	assert.Equal(t, 1, client.continueCalls)
}

func TestFinalize_Rejected(t *testing.T) {
	client := settledStub()
	srv := newTestServer(t, client)

	req := testFinalizeRequest()
	req.Result = "grant_rejected"
	w := doJSON(t, srv, http.MethodPost, "/api/payment/finalize", req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rejected", decodeJSON(t, w)["status"])
	// Declined grants are never continued
	assert.Equal(t, 0, client.continueCalls)
}

func TestFinalize_MissingInteractRef(t *testing.T) {
	srv := newTestServer(t, settledStub())

	req := testFinalizeRequest()
	req.Result = "grant_invalid"
	w := doJSON(t, srv, http.MethodPost, "/api/payment/finalize", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_interact_ref", decodeJSON(t, w)["error"])
}

func TestFinalize_GrantNotAccepted(t *testing.T) {
	client := settledStub()
	client.continueResponse = &openpayments.GrantResponse{}
	srv := newTestServer(t, client)

	req := testFinalizeRequest()
	req.InteractRef = "ref-1"
	w := doJSON(t, srv, http.MethodPost, "/api/payment/finalize", req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "grant_not_accepted", decodeJSON(t, w)["error"])
	assert.NotContains(t, w.Body.String(), "cont-token")
}

func TestFinalize_ExpiredQuote(t *testing.T) {
	client := settledStub()
	client.outgoingErr = &openpayments.HTTPError{
		Status: 400,
		URL:    "https://rs.sender.example/outgoing-payments",
		Body:   `{"error":"quote expired"}`,
	}
	srv := newTestServer(t, client)

	req := testFinalizeRequest()
	req.InteractRef = "ref-1"
	w := doJSON(t, srv, http.MethodPost, "/api/payment/finalize", req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "outgoing_payment_failed", body["error"])
	assert.Contains(t, body["message"], "expired")
	assert.NotContains(t, w.Body.String(), "quote expired")
}

func TestFinalize_IncompleteBody(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	req := testFinalizeRequest()
	req.PendingGrant.Grant.Continue.URI = ""
	w := doJSON(t, srv, http.MethodPost, "/api/payment/finalize", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeJSON(t, w)["message"], "pendingGrant")

	req = testFinalizeRequest()
	req.Quote.ID = ""
	w = doJSON(t, srv, http.MethodPost, "/api/payment/finalize", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeJSON(t, w)["message"], "quote")
}

// -----------------------------------------------------------------------------
// Interaction callback
// -----------------------------------------------------------------------------

func TestInteractionCallback_RejectedPage(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	w := do(srv, http.MethodGet, "/api/payment/interaction/pay_x/callback?result=grant_rejected", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "grant_rejected")
	assert.Contains(t, w.Body.String(), "window.opener.postMessage")
}
