// Package models: WhatsApp Cloud API webhook payload shapes.
//
// Only the fields CartCheck consumes are declared; everything else in the
// provider payload is ignored by encoding/json.
package models

// WebhookPayload is the top-level Cloud API webhook envelope.
type WebhookPayload struct {
	Entry []WebhookEntry `json:"entry"`
}

// WebhookEntry is one account-level entry in a webhook delivery.
type WebhookEntry struct {
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange wraps the value object of a single change notification.
type WebhookChange struct {
	Value WebhookValue `json:"value"`
}

// WebhookValue carries the messages and contact info of a change.
type WebhookValue struct {
	Messages []WebhookMessage `json:"messages"`
	Contacts []WebhookContact `json:"contacts"`
}

// WebhookMessage is one inbound message. Type is "text", "image", or another
// provider message type CartCheck does not handle.
type WebhookMessage struct {
	From  string        `json:"from"`
	Type  string        `json:"type"`
	Text  *WebhookText  `json:"text,omitempty"`
	Image *WebhookImage `json:"image,omitempty"`
}

// WebhookText is the body of a text message.
type WebhookText struct {
	Body string `json:"body"`
}

// WebhookImage is the media reference of an image message.
type WebhookImage struct {
	ID string `json:"id"`
}

// WebhookContact carries the sender's display name.
type WebhookContact struct {
	Profile WebhookProfile `json:"profile"`
}

// WebhookProfile is the profile object inside a contact entry.
type WebhookProfile struct {
	Name string `json:"name"`
}
