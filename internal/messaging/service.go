// Package messaging provides the outbound SMS delivery abstraction used by the relay.
package messaging

import (
	"context"
	"errors"
)

// ErrServiceStopped is returned by sends issued after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends body to a recipient and returns the provider message id.
	SendMessage(ctx context.Context, to string, body string) (string, error)

	// Stop rejects further sends.
	Stop() error
}
