// Package configstore persists widget configuration documents keyed by
// the publisher's wallet address. Documents are opaque JSON from this
// service's perspective: the admin UI defines their shape, we only
// enforce well-formedness and size.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("configstore: config not found")
	ErrInvalidDocument  = errors.New("configstore: config is not a JSON object")
	ErrDocumentTooLarge = errors.New("configstore: config exceeds size limit")
)

// MaxDocumentSize bounds a stored config document.
const MaxDocumentSize = 64 * 1024

// Document is a versioned widget configuration for one wallet address.
type Document struct {
	WalletAddress string          `json:"walletAddress"`
	Config        json.RawMessage `json:"config"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Store persists widget configuration documents.
type Store interface {
	Get(ctx context.Context, walletAddress string) (*Document, error)
	// Put creates or replaces the document, incrementing its version.
	Put(ctx context.Context, walletAddress string, config json.RawMessage) (*Document, error)
	Delete(ctx context.Context, walletAddress string) error
}

// validateConfig enforces the only two rules this service has about
// document contents.
func validateConfig(config json.RawMessage) error {
	if len(config) > MaxDocumentSize {
		return ErrDocumentTooLarge
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(config, &obj); err != nil {
		return ErrInvalidDocument
	}
	return nil
}
