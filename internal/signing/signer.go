// Package signing implements HTTP message signatures (RFC 9421) for
// backend-to-backend requests to Open Payments authorization and
// resource servers. All outbound requests cover the method and target
// URI; requests with a body additionally cover content-digest,
// content-length, and content-type.
package signing

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSeed  = errors.New("signing: ed25519 seed must be 32 bytes")
	ErrEmptyKeyID   = errors.New("signing: key id is required")
	ErrNilRequest   = errors.New("signing: nil request")
	ErrSigningError = errors.New("signing: failed to sign request")
)

// Signer signs HTTP requests with a static ed25519 key.
// A Signer is safe for concurrent use.
type Signer struct {
	keyID string
	priv  ed25519.PrivateKey

	// now is swappable for tests
	now func() time.Time
}

// NewSigner creates a Signer from a 32-byte ed25519 seed.
func NewSigner(keyID string, seed []byte) (*Signer, error) {
	if keyID == "" {
		return nil, ErrEmptyKeyID
	}
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidSeed
	}
	return &Signer{
		keyID: keyID,
		priv:  ed25519.NewKeyFromSeed(seed),
		now:   time.Now,
	}, nil
}

// KeyID returns the key id carried in signature parameters.
func (s *Signer) KeyID() string { return s.keyID }

// PublicKey returns the ed25519 public key for JWKS publication.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// coveredComponents returns the derived components and headers covered by
// the signature for the given request. Body-describing headers are only
// covered when a body is present.
func coveredComponents(req *http.Request, hasBody bool) []string {
	components := []string{"@method", "@target-uri"}
	if req.Header.Get("Authorization") != "" {
		components = append(components, "authorization")
	}
	if hasBody {
		components = append(components, "content-digest", "content-length", "content-type")
	}
	return components
}

// SignRequest signs req, adding Content-Digest (when body is non-empty)
// plus Signature-Input and Signature headers.
func (s *Signer) SignRequest(req *http.Request, body []byte) error {
	if req == nil {
		return ErrNilRequest
	}

	if len(body) > 0 {
		req.Header.Set("Content-Digest", contentDigest(body))
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	components := coveredComponents(req, len(body) > 0)

	base, err := signatureBase(req, components)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSigningError, err)
	}

	params := signatureParams(components, s.keyID, s.now().Unix())
	full := base + fmt.Sprintf("%q: %s", "@signature-params", params)

	sig := ed25519.Sign(s.priv, []byte(full))

	req.Header.Set("Signature-Input", "sig1="+params)
	req.Header.Set("Signature", "sig1=:"+base64.StdEncoding.EncodeToString(sig)+":")
	return nil
}

// contentDigest computes the sha-256 structured-field digest of body.
func contentDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("sha-256=:%s:", base64.StdEncoding.EncodeToString(sum[:]))
}

// signatureBase builds the RFC 9421 signature base for the covered components.
func signatureBase(req *http.Request, components []string) (string, error) {
	var b strings.Builder

	for _, comp := range components {
		var value string
		switch comp {
		case "@method":
			value = req.Method
		case "@target-uri":
			value = req.URL.String()
		case "@authority":
			value = req.Host
			if value == "" {
				value = req.URL.Host
			}
		default:
			if strings.HasPrefix(comp, "@") {
				return "", fmt.Errorf("unsupported derived component %q", comp)
			}
			value = req.Header.Get(comp)
			if value == "" {
				return "", fmt.Errorf("covered header %q is not set", comp)
			}
		}
		fmt.Fprintf(&b, "%q: %s\n", strings.ToLower(comp), value)
	}

	return b.String(), nil
}

// signatureParams builds the @signature-params value.
func signatureParams(components []string, keyID string, created int64) string {
	quoted := make([]string, len(components))
	for i, c := range components {
		quoted[i] = strconv.Quote(strings.ToLower(c))
	}
	return fmt.Sprintf("(%s);created=%d;keyid=%q;alg=%q",
		strings.Join(quoted, " "), created, keyID, "ed25519")
}
