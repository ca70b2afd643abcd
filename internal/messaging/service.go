// Package messaging provides pluggable WhatsApp delivery backends for CartCheck.
//
// The Cloud API backend is the default: outbound sends and media downloads go
// through the Graph API, and inbound messages arrive via the HTTP webhook.
// The whatsmeow backend is a self-contained alternative that needs no webhook,
// and the Twilio backend covers deployments already routed through Twilio.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/kindatcart/cartcheck/internal/models"
)

// DefaultChannelBufferSize defines the buffer size for inbound message channels.
const DefaultChannelBufferSize = 100

// ErrServiceStopped is returned by operations on a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// ErrMediaNotSupported is returned by backends that cannot resolve media
// references themselves.
var ErrMediaNotSupported = errors.New("media download not supported by this backend")

// phoneNumberRegex matches every non-digit rune for canonicalization.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier, returning the canonical form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a plain-text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// DownloadMedia resolves a provider media reference to raw bytes and a
	// declared media type.
	DownloadMedia(ctx context.Context, mediaID string) (data []byte, mediaType string, err error)

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of inbound messages for backends that
	// receive them directly rather than through the webhook.
	Responses() <-chan models.IncomingMessage
}

// canonicalizeRecipient strips all non-digit characters and validates the
// result has at least 6 digits.
func canonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if recipient != canonical {
		slog.Debug("messaging canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
