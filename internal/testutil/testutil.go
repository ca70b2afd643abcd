// Package testutil provides common test utilities and helpers for CartCheck tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/kindatcart/cartcheck/internal/models"
)

var digitsOnly = regexp.MustCompile(`\D`)

// MockMessenger records outbound messages and serves canned media downloads.
// It satisfies both messaging.Service and flow.MessageSender.
type MockMessenger struct {
	mu        sync.Mutex
	Sent      []SentMessage
	Media     map[string][]byte
	MediaType string
	SendErr   error
	MediaErr  error
	responses chan models.IncomingMessage
}

// SentMessage is one recorded outbound message.
type SentMessage struct {
	To   string
	Body string
}

// NewMockMessenger creates an empty mock messenger.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{
		Media:     make(map[string][]byte),
		MediaType: "image/jpeg",
		responses: make(chan models.IncomingMessage, 8),
	}
}

// ValidateAndCanonicalizeRecipient strips non-digits and requires 6+ digits.
func (m *MockMessenger) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := digitsOnly.ReplaceAllString(recipient, "")
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q", recipient)
	}
	return canonical, nil
}

// SendMessage records the outbound message, or fails with SendErr when set.
func (m *MockMessenger) SendMessage(ctx context.Context, to string, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

// DownloadMedia returns the canned payload for the media ID.
func (m *MockMessenger) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	if m.MediaErr != nil {
		return nil, "", m.MediaErr
	}
	data, ok := m.Media[mediaID]
	if !ok {
		return nil, "", fmt.Errorf("unknown media id %q", mediaID)
	}
	return data, m.MediaType, nil
}

// Start is a no-op.
func (m *MockMessenger) Start(ctx context.Context) error { return nil }

// Stop closes the responses channel.
func (m *MockMessenger) Stop() error {
	close(m.responses)
	return nil
}

// Responses returns the inbound message channel.
func (m *MockMessenger) Responses() <-chan models.IncomingMessage {
	return m.responses
}

// Inject feeds an inbound message into the responses channel.
func (m *MockMessenger) Inject(in models.IncomingMessage) {
	m.responses <- in
}

// LastSent returns the most recently sent message, failing the test when
// nothing has been sent.
func (m *MockMessenger) LastSent(t *testing.T) SentMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		t.Fatal("no messages sent")
	}
	return m.Sent[len(m.Sent)-1]
}

// SentCount returns how many messages have been sent.
func (m *MockMessenger) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}
