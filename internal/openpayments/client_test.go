package openpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interledger/publisher-tools/internal/signing"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	signer, err := signing.NewSigner("test-key", bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	return NewClient(signer, "https://wallet.example/operator")
}

func TestGetWalletAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_ = json.NewEncoder(w).Encode(WalletAddress{
			ID:         "https://wallet.example/alice",
			PublicName: "Alice",
			AssetCode:  "USD",
			AssetScale: 2,
			AuthServer: "https://auth.example",
		})
	}))
	defer srv.Close()

	wa, err := newTestClient(t).GetWalletAddress(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://wallet.example/alice", wa.ID)
	assert.Equal(t, 2, wa.AssetScale)
	// resourceServer omitted upstream: derived from the address origin
	assert.Equal(t, "https://wallet.example", wa.ResourceServer)
}

func TestGetWalletAddress_404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(t).GetWalletAddress(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetWalletAddress_BadShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"publicName": "no id here"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t).GetWalletAddress(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRequestGrant_SignedAndFillsClient(t *testing.T) {
	var got GrantRequest
	var sigInput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sigInput = r.Header.Get("Signature-Input")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(GrantResponse{
			AccessToken: &AccessToken{Value: "tok-1"},
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(t).RequestGrant(context.Background(), srv.URL, &GrantRequest{
		AccessToken: AccessTokenRequest{Access: []Access{{
			Type:    AccessTypeIncomingPayment,
			Actions: []string{"read", "create", "complete"},
		}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://wallet.example/operator", got.Client)
	assert.Contains(t, sigInput, `"@method"`)
	assert.Contains(t, sigInput, `"content-digest"`)

	fin, ok := resp.AsFinalized()
	require.True(t, ok)
	assert.Equal(t, "tok-1", fin.AccessToken)
}

func TestContinueGrant_SendsGNAPTokenAndRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GNAP continue-token", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ref-42", body["interact_ref"])
		_ = json.NewEncoder(w).Encode(GrantResponse{AccessToken: &AccessToken{Value: "final"}})
	}))
	defer srv.Close()

	resp, err := newTestClient(t).ContinueGrant(context.Background(), srv.URL, "continue-token", "ref-42")
	require.NoError(t, err)
	_, ok := resp.AsFinalized()
	assert.True(t, ok)
}

func TestCreateIncomingPayment(t *testing.T) {
	expires := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/incoming-payments", r.URL.Path)
		assert.Equal(t, "GNAP ip-token", r.Header.Get("Authorization"))
		var req IncomingPaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://wallet.example/bob", req.WalletAddress)
		assert.Equal(t, "thanks!", req.Metadata["description"])
		_ = json.NewEncoder(w).Encode(IncomingPayment{
			ID:            "https://rs.example/incoming-payments/ip-1",
			WalletAddress: req.WalletAddress,
			ExpiresAt:     &expires,
			CreatedAt:     time.Now().UTC(),
		})
	}))
	defer srv.Close()

	ip, err := newTestClient(t).CreateIncomingPayment(context.Background(), srv.URL, "ip-token", &IncomingPaymentRequest{
		WalletAddress: "https://wallet.example/bob",
		ExpiresAt:     expires,
		Metadata:      map[string]string{"description": "thanks!"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://rs.example/incoming-payments/ip-1", ip.ID)
}

func TestCreateQuote_UpstreamErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t).CreateQuote(context.Background(), srv.URL, "bad-token", &QuoteRequest{
		WalletAddress: "https://wallet.example/alice",
		Receiver:      "https://rs.example/incoming-payments/ip-1",
		Method:        PaymentMethodILP,
	})
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Status)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestCreateOutgoingPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/outgoing-payments", r.URL.Path)
		var req OutgoingPaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(OutgoingPayment{
			ID:            "https://rs.example/outgoing-payments/op-1",
			WalletAddress: req.WalletAddress,
			QuoteID:       req.QuoteID,
			CreatedAt:     time.Now().UTC(),
		})
	}))
	defer srv.Close()

	op, err := newTestClient(t).CreateOutgoingPayment(context.Background(), srv.URL, "op-token", &OutgoingPaymentRequest{
		WalletAddress: "https://wallet.example/alice",
		QuoteID:       "https://rs.example/quotes/q-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://rs.example/outgoing-payments/op-1", op.ID)
	assert.Equal(t, "https://rs.example/quotes/q-1", op.QuoteID)
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://wallet.example", originOf("https://wallet.example/alice/sub"))
	assert.Equal(t, "https://wallet.example", originOf("https://wallet.example"))
}

