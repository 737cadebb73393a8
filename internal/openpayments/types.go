// Package openpayments is a typed client for the Open Payments protocol:
// wallet address discovery, GNAP grant requests and continuation against
// authorization servers, and incoming-payment / quote / outgoing-payment
// operations against resource servers. All authorization- and
// resource-server requests are signed (RFC 9421 HTTP message signatures).
package openpayments

import "time"

// WalletAddress is the discovery document behind a wallet address URL.
// Immutable once resolved.
type WalletAddress struct {
	ID             string `json:"id"`
	PublicName     string `json:"publicName,omitempty"`
	AssetCode      string `json:"assetCode"`
	AssetScale     int    `json:"assetScale"`
	AuthServer     string `json:"authServer"`
	ResourceServer string `json:"resourceServer"`
}

// Amount is a fixed-point monetary amount: Value is a non-negative
// integer string in minor units; display value = Value / 10^AssetScale.
type Amount struct {
	Value      string `json:"value"`
	AssetCode  string `json:"assetCode"`
	AssetScale int    `json:"assetScale"`
}

// Access describes one entry of a grant's requested access rights.
type Access struct {
	Type       string        `json:"type"`
	Actions    []string      `json:"actions"`
	Identifier string        `json:"identifier,omitempty"`
	Limits     *AccessLimits `json:"limits,omitempty"`
}

// AccessLimits bounds an outgoing-payment access grant.
type AccessLimits struct {
	DebitAmount   *Amount `json:"debitAmount,omitempty"`
	ReceiveAmount *Amount `json:"receiveAmount,omitempty"`
}

// GrantRequest is the body POSTed to an authorization server.
type GrantRequest struct {
	AccessToken AccessTokenRequest `json:"access_token"`
	Client      string             `json:"client"`
	Interact    *InteractRequest   `json:"interact,omitempty"`
}

// AccessTokenRequest wraps the requested access list.
type AccessTokenRequest struct {
	Access []Access `json:"access"`
}

// InteractRequest asks for redirect-based user interaction.
type InteractRequest struct {
	Start  []string       `json:"start"`
	Finish *InteractFinish `json:"finish,omitempty"`
}

// InteractFinish tells the authorization server where to send the user
// after interaction. Nonce must be cryptographically random per request.
type InteractFinish struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Nonce  string `json:"nonce"`
}

// AccessToken is an issued token from the authorization server.
type AccessToken struct {
	Value     string   `json:"value"`
	Manage    string   `json:"manage,omitempty"`
	ExpiresIn int      `json:"expires_in,omitempty"`
	Access    []Access `json:"access,omitempty"`
}

// Interact is the interaction block of a pending grant.
type Interact struct {
	Redirect string `json:"redirect"`
	Finish   string `json:"finish"`
}

// Continue is the continuation handle of a grant response.
type Continue struct {
	AccessToken TokenValue `json:"access_token"`
	URI         string     `json:"uri"`
	Wait        int        `json:"wait,omitempty"`
}

// TokenValue carries a bare token value.
type TokenValue struct {
	Value string `json:"value"`
}

// GrantResponse is the raw authorization server response to a grant
// request or continuation. It is a tagged union: a pending grant carries
// an interact block and no usable access token; a finalized grant
// carries an issued access token. Use AsPending/AsFinalized rather than
// inspecting fields.
type GrantResponse struct {
	AccessToken *AccessToken `json:"access_token,omitempty"`
	Interact    *Interact    `json:"interact,omitempty"`
	Continue    *Continue    `json:"continue,omitempty"`
}

// PendingGrant is an authorization request awaiting external user
// action. Consumed exactly once by grant continuation.
type PendingGrant struct {
	Interact Interact `json:"interact"`
	Continue Continue `json:"continue"`
}

// FinalizedGrant is an accepted grant whose access token authorizes
// exactly one outgoing-payment creation.
type FinalizedGrant struct {
	AccessToken string `json:"accessToken"`
	ManageURL   string `json:"manageUrl,omitempty"`
}

// AsPending returns the pending-grant view if the response represents an
// authorization awaiting user interaction.
func (g *GrantResponse) AsPending() (*PendingGrant, bool) {
	if g == nil || g.Interact == nil || g.Interact.Redirect == "" || g.Continue == nil {
		return nil, false
	}
	return &PendingGrant{Interact: *g.Interact, Continue: *g.Continue}, true
}

// AsFinalized returns the finalized-grant view if the response carries an
// issued access token.
func (g *GrantResponse) AsFinalized() (*FinalizedGrant, bool) {
	if g == nil || g.AccessToken == nil || g.AccessToken.Value == "" {
		return nil, false
	}
	return &FinalizedGrant{AccessToken: g.AccessToken.Value, ManageURL: g.AccessToken.Manage}, true
}

// IncomingPayment is the receiving side of a payment on the receiver's
// resource server.
type IncomingPayment struct {
	ID             string            `json:"id"`
	WalletAddress  string            `json:"walletAddress"`
	IncomingAmount *Amount           `json:"incomingAmount,omitempty"`
	ReceivedAmount *Amount           `json:"receivedAmount,omitempty"`
	Completed      bool              `json:"completed"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// IncomingPaymentRequest creates an incoming payment with no fixed
// amount and a bounded expiry.
type IncomingPaymentRequest struct {
	WalletAddress string            `json:"walletAddress"`
	ExpiresAt     time.Time         `json:"expiresAt"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Quote is a fixed exchange-rate offer binding a debit amount to a
// receive amount for one payment. Immutable; unusable after ExpiresAt.
type Quote struct {
	ID            string     `json:"id"`
	WalletAddress string     `json:"walletAddress"`
	Receiver      string     `json:"receiver"`
	DebitAmount   Amount     `json:"debitAmount"`
	ReceiveAmount Amount     `json:"receiveAmount"`
	Method        string     `json:"method"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// QuoteRequest creates a quote on the sender's resource server.
type QuoteRequest struct {
	WalletAddress string  `json:"walletAddress"`
	Receiver      string  `json:"receiver"`
	Method        string  `json:"method"`
	DebitAmount   *Amount `json:"debitAmount,omitempty"`
}

// OutgoingPayment is the sending side of a payment on the sender's
// resource server.
type OutgoingPayment struct {
	ID            string            `json:"id"`
	WalletAddress string            `json:"walletAddress"`
	QuoteID       string            `json:"quoteId,omitempty"`
	Receiver      string            `json:"receiver"`
	DebitAmount   Amount            `json:"debitAmount"`
	ReceiveAmount Amount            `json:"receiveAmount"`
	SentAmount    *Amount           `json:"sentAmount,omitempty"`
	Failed        bool              `json:"failed"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// OutgoingPaymentRequest creates an outgoing payment from a quote.
type OutgoingPaymentRequest struct {
	WalletAddress string            `json:"walletAddress"`
	QuoteID       string            `json:"quoteId"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Grant access type constants.
const (
	AccessTypeIncomingPayment = "incoming-payment"
	AccessTypeQuote           = "quote"
	AccessTypeOutgoingPayment = "outgoing-payment"
)

// PaymentMethodILP is the only quote method this client requests.
const PaymentMethodILP = "ilp"
