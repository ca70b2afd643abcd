package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kindatcart/cartcheck/internal/flow"
	"github.com/kindatcart/cartcheck/internal/models"
	"github.com/kindatcart/cartcheck/internal/store"
	"github.com/kindatcart/cartcheck/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *testutil.MockMessenger) {
	t.Helper()
	st := store.NewInMemoryStore()
	msg := testutil.NewMockMessenger()
	engine := flow.NewEngine(st, msg, nil)
	server := NewServer(engine, msg, st, WithVerifyToken("secret-token"))
	return server, msg
}

// waitForSent polls the mock messenger until at least n messages were sent.
// Webhook dispatch is asynchronous, so handlers return before the engine runs.
func waitForSent(t *testing.T, msg *testutil.MockMessenger, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg.SentCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages, got %d", n, msg.SentCount())
}

func TestWebhookVerification(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	cases := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "valid handshake", query: "hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", wantStatus: http.StatusOK, wantBody: "12345"},
		{name: "wrong token", query: "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", wantStatus: http.StatusForbidden},
		{name: "wrong mode", query: "hub.mode=unsubscribe&hub.verify_token=secret-token&hub.challenge=12345", wantStatus: http.StatusForbidden},
		{name: "missing params", query: "", wantStatus: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tc.query, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			testutil.AssertHTTPStatus(t, tc.wantStatus, rr.Code, "webhook verification")
			if tc.wantBody != "" && rr.Body.String() != tc.wantBody {
				t.Errorf("expected challenge echo %q, got %q", tc.wantBody, rr.Body.String())
			}
		})
	}
}

func TestWebhookVerificationWithoutConfiguredToken(t *testing.T) {
	st := store.NewInMemoryStore()
	msg := testutil.NewMockMessenger()
	server := NewServer(flow.NewEngine(st, msg, nil), msg, st)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=x", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "verification with no token configured")
}

func TestWebhookPostAlwaysAcks(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	cases := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: "{not json"},
		{name: "empty object", body: "{}"},
		{name: "statuses only", body: `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x"}]}}]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook ACK")
			testutil.AssertJSONResponse(t, rr, string(models.APIStatusOK))
		})
	}
}

func TestWebhookPostDispatchesTextMessage(t *testing.T) {
	server, msg := newTestServer(t)
	payload := `{
		"entry": [{"changes": [{"value": {
			"contacts": [{"profile": {"name": "Dana"}}],
			"messages": [{"from": "15551234567", "type": "text", "text": {"body": "hi"}}]
		}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook dispatch")
	waitForSent(t, msg, 1)
	sent := msg.LastSent(t)
	if sent.To != "15551234567" {
		t.Errorf("expected reply to sender, got %q", sent.To)
	}
	if !strings.Contains(sent.Body, "Dana") {
		t.Errorf("expected welcome to greet sender by name, got %q", sent.Body)
	}
}

func TestWebhookPostNudgesUnsupportedType(t *testing.T) {
	server, msg := newTestServer(t)
	payload := `{
		"entry": [{"changes": [{"value": {
			"messages": [{"from": "15551234567", "type": "audio"}]
		}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook dispatch")
	waitForSent(t, msg, 1)
	if !strings.Contains(msg.LastSent(t).Body, "text message or a photo") {
		t.Errorf("expected nudge for unsupported type, got %q", msg.LastSent(t).Body)
	}
}

func TestIncomingFromWebhook(t *testing.T) {
	text := incomingFromWebhook(models.WebhookMessage{
		From: "15551234567",
		Type: "text",
		Text: &models.WebhookText{Body: "hello"},
	}, "Dana")
	if text.Kind != models.MessageKindText || text.Text != "hello" || text.Name != "Dana" {
		t.Errorf("unexpected text mapping: %+v", text)
	}

	image := incomingFromWebhook(models.WebhookMessage{
		From:  "15551234567",
		Type:  "image",
		Image: &models.WebhookImage{ID: "media-9"},
	}, "")
	if image.Kind != models.MessageKindImage || image.MediaID != "media-9" {
		t.Errorf("unexpected image mapping: %+v", image)
	}

	other := incomingFromWebhook(models.WebhookMessage{From: "15551234567", Type: "sticker"}, "")
	if other.Kind == models.MessageKindText || other.Kind == models.MessageKindImage {
		t.Errorf("unsupported type should keep its own kind, got %q", other.Kind)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/webhook", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "webhook method check")
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health check")
	response := testutil.AssertJSONResponse(t, rr, string(models.APIStatusOK))
	result, ok := response["result"].(map[string]interface{})
	if !ok || result["status"] != "healthy" {
		t.Errorf("unexpected health payload: %v", response)
	}
}
