package signing

import (
	"bytes"
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that signs every outgoing request.
// Construct one per client (explicit injection); it holds no mutable state.
type Transport struct {
	Signer *Signer
	Base   http.RoundTripper
}

// NewTransport wraps base with request signing. A nil base uses
// http.DefaultTransport.
func NewTransport(signer *Signer, base http.RoundTripper) *Transport {
	return &Transport{Signer: signer, Base: base}
}

// RoundTrip buffers the request body (bodies here are small JSON
// documents), signs the request, and delegates to the base transport.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = b
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	if err := t.Signer.SignRequest(req, body); err != nil {
		return nil, err
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
