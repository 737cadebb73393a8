// Package wallet resolves human-entered wallet addresses into canonical
// Open Payments wallet address documents.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/interledger/publisher-tools/internal/openpayments"
	"github.com/interledger/publisher-tools/internal/security"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrInvalidWalletAddress  = errors.New("wallet: invalid wallet address")
	ErrWalletAddressNotFound = errors.New("wallet: wallet address not found")
)

// shortFormPrefix marks payment-pointer short form ($example.com/alice).
const shortFormPrefix = "$"

// defaultPath is used when a short-form address has no path component.
const defaultPath = "/.well-known/pay"

// AddressFetcher fetches a wallet address document. Satisfied by
// *openpayments.Client.
type AddressFetcher interface {
	GetWalletAddress(ctx context.Context, url string) (*openpayments.WalletAddress, error)
}

// HostGuard validates that a host is acceptable for server-side fetching.
type HostGuard func(rawURL string) error

// Resolver resolves wallet address strings. One resolution attempt per
// call; retrying is the caller's decision.
type Resolver struct {
	fetcher AddressFetcher
	guard   HostGuard
}

// Option configures the resolver.
type Option func(*Resolver)

// WithHostGuard replaces the default SSRF guard (nil disables it; tests only).
func WithHostGuard(g HostGuard) Option {
	return func(r *Resolver) { r.guard = g }
}

// NewResolver creates a resolver backed by fetcher. By default resolved
// URLs are checked against the SSRF guard before fetching, since the
// input is untrusted text from a publisher's site.
func NewResolver(fetcher AddressFetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		guard:   security.ValidateEndpointURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve normalizes input and fetches its wallet address document.
// Network failures and 404s map to ErrWalletAddressNotFound; grammar
// violations and schema mismatches map to ErrInvalidWalletAddress.
func (r *Resolver) Resolve(ctx context.Context, input string) (*openpayments.WalletAddress, error) {
	canonical, err := Canonicalize(input)
	if err != nil {
		return nil, err
	}

	if r.guard != nil {
		if err := r.guard(canonical); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWalletAddress, err)
		}
	}

	wa, err := r.fetcher.GetWalletAddress(ctx, canonical)
	if err != nil {
		switch {
		case errors.Is(err, openpayments.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrWalletAddressNotFound, canonical)
		case errors.Is(err, openpayments.ErrInvalidResponse):
			return nil, fmt.Errorf("%w: %v", ErrInvalidWalletAddress, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrWalletAddressNotFound, err)
		}
	}
	return wa, nil
}

// Canonicalize converts a wallet address string ($ short form or https
// URL) to its canonical https:// form, enforcing the wallet address
// grammar: https scheme, no query, fragment, port, or credentials.
func Canonicalize(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidWalletAddress)
	}

	if strings.HasPrefix(s, shortFormPrefix) {
		rest := strings.TrimPrefix(s, shortFormPrefix)
		if rest == "" {
			return "", fmt.Errorf("%w: empty payment pointer", ErrInvalidWalletAddress)
		}
		s = "https://" + rest
		// Bare pointer ($example.com) targets the well-known path
		if u, err := url.Parse(s); err == nil && (u.Path == "" || u.Path == "/") {
			s = "https://" + u.Host + defaultPath
		}
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWalletAddress, err)
	}

	switch {
	case u.Scheme != "https":
		return "", fmt.Errorf("%w: scheme must be https", ErrInvalidWalletAddress)
	case u.Host == "":
		return "", fmt.Errorf("%w: missing host", ErrInvalidWalletAddress)
	case u.RawQuery != "":
		return "", fmt.Errorf("%w: query string not allowed", ErrInvalidWalletAddress)
	case u.Fragment != "" || u.RawFragment != "":
		return "", fmt.Errorf("%w: fragment not allowed", ErrInvalidWalletAddress)
	case u.Port() != "":
		return "", fmt.Errorf("%w: port not allowed", ErrInvalidWalletAddress)
	case u.User != nil:
		return "", fmt.Errorf("%w: credentials not allowed", ErrInvalidWalletAddress)
	}

	// Drop any trailing slash so equivalent spellings compare equal
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}
