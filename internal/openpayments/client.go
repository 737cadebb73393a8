package openpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/interledger/publisher-tools/internal/signing"
)

// Errors
var (
	ErrNotFound        = errors.New("openpayments: resource not found")
	ErrInvalidResponse = errors.New("openpayments: response does not match expected shape")
	ErrRequestFailed   = errors.New("openpayments: request failed")
)

// HTTPError carries the upstream status for a non-2xx response. The
// response body is truncated and never logged above debug level; it may
// contain upstream diagnostics but never our tokens.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openpayments: %s returned %d", e.URL, e.Status)
}

// Unwrap lets callers match errors.Is(err, ErrNotFound) on 404s.
func (e *HTTPError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrRequestFailed
}

const (
	defaultTimeout = 30 * time.Second
	maxErrBody     = 512
)

// Client talks to Open Payments authorization and resource servers.
// Construct one per process and inject it; it holds no per-request
// mutable state and is safe for concurrent use.
type Client struct {
	signed   *http.Client // signs every request (auth/resource servers)
	plain    *http.Client // unsigned (wallet address discovery is public)
	clientID string       // wallet address URL identifying this client in grant requests
	logger   *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout overrides the HTTP timeout on both underlying clients.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.signed.Timeout = d
		c.plain.Timeout = d
	}
}

// NewClient creates a client whose authorization- and resource-server
// requests are signed with signer. clientID is the wallet address URL
// presented as the client identity in grant requests.
func NewClient(signer *signing.Signer, clientID string, opts ...Option) *Client {
	c := &Client{
		signed: &http.Client{
			Transport: signing.NewTransport(signer, nil),
			Timeout:   defaultTimeout,
		},
		plain:    &http.Client{Timeout: defaultTimeout},
		clientID: clientID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetWalletAddress fetches the wallet address document behind url.
// The caller is responsible for validating the URL grammar first.
func (c *Client) GetWalletAddress(ctx context.Context, url string) (*WalletAddress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.plain.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp, url)
	}

	var wa WalletAddress
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&wa); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if wa.ID == "" || wa.AuthServer == "" || wa.AssetCode == "" || wa.AssetScale < 0 {
		return nil, fmt.Errorf("%w: missing required wallet address fields", ErrInvalidResponse)
	}
	// Some wallets omit resourceServer; derive it from the address origin.
	if wa.ResourceServer == "" {
		wa.ResourceServer = originOf(wa.ID)
	}
	return &wa, nil
}

// RequestGrant POSTs a grant request to the authorization server.
// The client identity is filled in from the client's configuration.
func (c *Client) RequestGrant(ctx context.Context, authServer string, greq *GrantRequest) (*GrantResponse, error) {
	if greq.Client == "" {
		greq.Client = c.clientID
	}
	var out GrantResponse
	if err := c.postJSON(ctx, authServer, "", greq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContinueGrant calls a pending grant's continuation endpoint with the
// interaction reference. Call at most once per pending grant.
func (c *Client) ContinueGrant(ctx context.Context, continueURI, continueToken, interactRef string) (*GrantResponse, error) {
	body := struct {
		InteractRef string `json:"interact_ref"`
	}{InteractRef: interactRef}

	var out GrantResponse
	if err := c.postJSON(ctx, continueURI, continueToken, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateIncomingPayment creates an incoming payment on the receiver's
// resource server.
func (c *Client) CreateIncomingPayment(ctx context.Context, resourceServer, token string, preq *IncomingPaymentRequest) (*IncomingPayment, error) {
	var out IncomingPayment
	if err := c.postJSON(ctx, joinPath(resourceServer, "incoming-payments"), token, preq, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: incoming payment has no id", ErrInvalidResponse)
	}
	return &out, nil
}

// GetIncomingPayment re-fetches an incoming payment by its id URL.
func (c *Client) GetIncomingPayment(ctx context.Context, id, token string) (*IncomingPayment, error) {
	var out IncomingPayment
	if err := c.getJSON(ctx, id, token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateQuote creates a quote on the sender's resource server.
func (c *Client) CreateQuote(ctx context.Context, resourceServer, token string, qreq *QuoteRequest) (*Quote, error) {
	var out Quote
	if err := c.postJSON(ctx, joinPath(resourceServer, "quotes"), token, qreq, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.DebitAmount.Value == "" {
		return nil, fmt.Errorf("%w: quote is missing id or debit amount", ErrInvalidResponse)
	}
	return &out, nil
}

// CreateOutgoingPayment creates an outgoing payment on the sender's
// resource server using a finalized grant's access token.
func (c *Client) CreateOutgoingPayment(ctx context.Context, resourceServer, token string, oreq *OutgoingPaymentRequest) (*OutgoingPayment, error) {
	var out OutgoingPayment
	if err := c.postJSON(ctx, joinPath(resourceServer, "outgoing-payments"), token, oreq, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: outgoing payment has no id", ErrInvalidResponse)
	}
	return &out, nil
}

// GetOutgoingPayment re-fetches an outgoing payment by its id URL.
func (c *Client) GetOutgoingPayment(ctx context.Context, id, token string) (*OutgoingPayment, error) {
	var out OutgoingPayment
	if err := c.getJSON(ctx, id, token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// -----------------------------------------------------------------------------
// Transport helpers
// -----------------------------------------------------------------------------

func (c *Client) postJSON(ctx context.Context, url, token string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "GNAP "+token)
	}

	return c.do(req, url, out)
}

func (c *Client) getJSON(ctx context.Context, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "GNAP "+token)
	}

	return c.do(req, url, out)
}

func (c *Client) do(req *http.Request, url string, out any) error {
	start := time.Now()
	resp, err := c.signed.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("open payments call",
		"method", req.Method,
		"url", url,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpError(resp, url)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func httpError(resp *http.Response, url string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	return &HTTPError{Status: resp.StatusCode, URL: url, Body: string(body)}
}

// joinPath appends a resource path segment to a server base URL.
func joinPath(base, p string) string {
	return strings.TrimSuffix(base, "/") + "/" + p
}

// originOf reduces a URL to its scheme://host origin.
func originOf(rawURL string) string {
	const sep = "://"
	i := strings.Index(rawURL, sep)
	if i < 0 {
		return rawURL
	}
	rest := rawURL[i+len(sep):]
	if j := strings.Index(rest, "/"); j >= 0 {
		rest = rest[:j]
	}
	return rawURL[:i] + sep + rest
}
